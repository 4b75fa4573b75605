// Package app composes the chat client with fx.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/conversation"
	"github.com/matheus3301/chatline/internal/lock"
	"github.com/matheus3301/chatline/internal/logging"
	"github.com/matheus3301/chatline/internal/outbox"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/render"
	"github.com/matheus3301/chatline/internal/selection"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/store"
	intsync "github.com/matheus3301/chatline/internal/sync"
	"github.com/matheus3301/chatline/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// ChatPage is the path of the chat page that deep links point at.
const ChatPage = "/chat"

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
	// Command is recorded in the profile lock.
	Command string
	// Console mirrors warnings to stderr; the TUI leaves it off.
	Console bool
	// Link is a deep link selecting the initial contact.
	Link string
}

// Handle exposes the composed components to the front ends.
type Handle struct {
	Config     *config.Config
	Logger     *zap.Logger
	Bus        *bus.Bus
	Machine    *status.Machine
	Store      *store.DB
	Channel    *transport.Channel
	API        *api.Client
	Renderer   *render.Renderer
	Loop       *conversation.Loop
	Outbox     *outbox.Sender
	Controller *selection.Controller
}

// Module returns the fx module of the client, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatline",
		fx.Supply(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideDecoder,
			provideChannel,
			provideClient,
			provideRenderer,
			provideSender,
			provideLoop,
			provideSyncEngine,
			provideReconciler,
			provideController,
			newHandle,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	if p.Config != nil {
		return p.Config
	}
	return profile.LoadConfig(p.Profile)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Console)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), p.Command)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so only the holder touches the database.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.StorePath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideDecoder reads zone-less server timestamps as UTC, matching what send_message writes.
func provideDecoder(cfg *config.Config) chat.Decoder {
	return chat.Decoder{BaseURL: cfg.Server.BaseURL, Location: time.UTC}
}

func provideChannel(cfg *config.Config, dec chat.Decoder, m *status.Machine, b *bus.Bus, logger *zap.Logger) (*transport.Channel, error) {
	u, err := transport.SocketURL(cfg.Server.BaseURL, cfg.Server.SocketPath)
	if err != nil {
		return nil, err
	}
	return transport.New(transport.Options{
		URL:          u,
		Cookie:       cfg.Server.Cookie,
		UserID:       cfg.User.ID,
		ReconnectMin: cfg.Transport.ReconnectMin,
		ReconnectMax: cfg.Transport.ReconnectMax,
		PingInterval: cfg.Transport.PingInterval,
		Decoder:      dec,
	}, m, b, logger), nil
}

func provideClient(cfg *config.Config, dec chat.Decoder, logger *zap.Logger) *api.Client {
	return api.NewClient(api.Options{
		BaseURL: cfg.Server.BaseURL,
		Cookie:  cfg.Server.Cookie,
		Timeout: cfg.Chat.FetchTimeout,
		Decoder: dec,
	}, logger)
}

func provideRenderer(cfg *config.Config) *render.Renderer {
	return render.New(cfg.User.ID, cfg.Location(), cfg.Chat.Locale)
}

func provideSender(db *store.DB, ch *transport.Channel, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, ch, b, logger, outbox.Options{})
}

func provideLoop(cfg *config.Config, client *api.Client, ch *transport.Channel, sender *outbox.Sender, b *bus.Bus, logger *zap.Logger) *conversation.Loop {
	var retry conversation.RetryQueue
	if cfg.Chat.Outbox {
		retry = sender
	}
	opts := conversation.Options{
		ViewerID:       cfg.User.ID,
		ViewerUsername: cfg.User.Username,
		EchoWindow:     cfg.Chat.EchoWindow,
		Retry:          cfg.Chat.Outbox,
	}
	return conversation.NewLoop(opts, cfg.Chat.QueueSize, client, ch, retry, b, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideReconciler(db *store.DB, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, logger)
}

func provideController(cfg *config.Config, loop *conversation.Loop, db *store.DB, b *bus.Bus, logger *zap.Logger) (*selection.Controller, error) {
	page := strings.TrimRight(cfg.Server.BaseURL, "/") + ChatPage
	return selection.New(page, loop, db, b, logger)
}

func newHandle(
	cfg *config.Config,
	logger *zap.Logger,
	b *bus.Bus,
	m *status.Machine,
	db *store.DB,
	ch *transport.Channel,
	client *api.Client,
	r *render.Renderer,
	loop *conversation.Loop,
	sender *outbox.Sender,
	ctrl *selection.Controller,
) *Handle {
	return &Handle{
		Config:     cfg,
		Logger:     logger,
		Bus:        b,
		Machine:    m,
		Store:      db,
		Channel:    ch,
		API:        client,
		Renderer:   r,
		Loop:       loop,
		Outbox:     sender,
		Controller: ctrl,
	}
}

// seeds converts configured contacts into roster entries.
func seeds(cfg *config.Config) []chat.Contact {
	out := make([]chat.Contact, 0, len(cfg.Contacts))
	for _, s := range cfg.Contacts {
		out = append(out, chat.Contact{ID: s.ID, DisplayName: s.Name})
	}
	return out
}

func registerLifecycle(
	lc fx.Lifecycle,
	p Params,
	cfg *config.Config,
	b *bus.Bus,
	lk *lock.Lock,
	db *store.DB,
	ch *transport.Channel,
	loop *conversation.Loop,
	sender *outbox.Sender,
	engine *intsync.Engine,
	reconciler *intsync.Reconciler,
	ctrl *selection.Controller,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			roster, err := reconciler.Roster(seeds(cfg))
			if err != nil {
				return err
			}
			loop.Seed(roster)

			// Persist roster changes published by the loop.
			engine.Start(context.Background())
			loop.Start(context.Background())

			ch.OnMessage(loop.Receive)
			ch.OnPresence(loop.Presence)
			if err := ch.Connect(context.Background()); err != nil {
				return err
			}
			sender.Start(context.Background())

			if err := ctrl.Start(p.Link); err != nil {
				logger.Warn("initial selection failed", zap.Error(err))
			}
			logger.Info("client started", zap.String("user_id", cfg.User.ID), zap.Int("contacts", len(roster)))
			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			if err := ch.Close(); err != nil {
				logger.Warn("error closing channel", zap.Error(err))
			}
			loop.Stop()
			// After the loop so its last contact updates are written.
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped", zap.Uint64("bus_dropped", b.Dropped()))
			_ = logger.Sync()
			return nil
		},
	})
}
