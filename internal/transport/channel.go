// Package transport implements the realtime channel to the chat backend: a
// websocket carrying JSON envelopes, re-dialled with backoff whenever it drops.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	handshakeWait  = 10 * time.Second
	sendBufferSize = 64
	maxFrameSize   = 1 << 20
)

// NoticeUnavailable is published when a dial attempt fails.
const NoticeUnavailable = "cannot connect to realtime service"

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("transport closed")

// Options configures a Channel.
type Options struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// Cookie is sent with the upgrade request.
	Cookie string
	// UserID is announced with join_user on every connection.
	UserID       string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingInterval time.Duration
	Decoder      chat.Decoder
}

// Channel is the realtime connection. Handlers run on the read goroutine in
// delivery order and must not block for long.
type Channel struct {
	opts    Options
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu         sync.Mutex
	send       chan []byte
	onMessage  []func(chat.Message)
	onPresence []func(chat.Presence)
	started    bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a channel. Nothing is dialled until Connect.
func New(opts Options, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	return &Channel{
		opts:    opts,
		machine: machine,
		bus:     b,
		logger:  logger.Named("transport"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeWait,
		},
	}
}

// SocketURL derives the websocket endpoint from the REST base URL.
func SocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// OnMessage registers a handler for validated new_message events.
func (c *Channel) OnMessage(h func(chat.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, h)
}

// OnPresence registers a handler for status_update events.
func (c *Channel) OnPresence(h func(chat.Presence)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = append(c.onPresence, h)
}

// Connect starts the connection supervisor. Calling it again is a no-op.
// The supervisor lives until ctx is cancelled or Close is called.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.supervise(ctx)
	return nil
}

// Connected reports whether an emit would currently be written.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send != nil && c.machine.IsConnected()
}

// Send queues event for the current connection. It does not wait for the
// write. Returns *chat.NotConnectedError while disconnected.
func (c *Channel) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(chat.Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil || !c.machine.IsConnected() {
		return &chat.NotConnectedError{Event: event}
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("%w: %s: send buffer full", chat.ErrSendRejected, event)
	}
}

// Close stops the supervisor and closes the socket. It waits for the
// connection goroutines to exit.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		_ = c.machine.Transition(status.Closed)
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Channel) supervise(ctx context.Context) {
	defer close(c.done)
	defer func() { _ = c.machine.Transition(status.Closed) }()

	backoff := c.opts.ReconnectMin
	notified := false
	for {
		if err := c.machine.Transition(status.Connecting); err != nil {
			c.logger.Error("unexpected state", zap.Error(err))
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !notified {
				c.bus.Notify(bus.KindNoticeWarn, NoticeUnavailable)
				notified = true
			}
			_ = c.machine.Transition(status.Reconnecting)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.opts.ReconnectMax)
			continue
		}

		backoff = c.opts.ReconnectMin
		notified = false
		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection lost", zap.Error(err))
		_ = c.machine.Transition(status.Reconnecting)
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Cookie != "" {
		header.Set("Cookie", c.opts.Cookie)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	return conn, nil
}

// serve joins, marks the channel connected and runs the pumps until either
// fails or ctx is done.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameSize)

	join, err := json.Marshal(chat.JoinPayload{UserID: c.opts.UserID})
	if err != nil {
		_ = conn.Close()
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(chat.Envelope{Event: chat.EventJoinUser, Data: join}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("join_user: %w", err)
	}

	send := make(chan []byte, sendBufferSize)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	if err := c.machine.Transition(status.Connected); err != nil {
		c.logger.Error("unexpected state", zap.Error(err))
	}
	c.logger.Info("connected", zap.String("url", c.opts.URL), zap.String("user_id", c.opts.UserID))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(conn) })
	g.Go(func() error { return c.writePump(gctx, conn, send) })
	g.Go(func() error {
		<-gctx.Done()
		c.detach(send)
		return conn.Close()
	})
	return g.Wait()
}

// detach stops Send from queueing on send once its connection is going
// away. A newer connection's queue is left alone.
func (c *Channel) detach(send chan []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == send {
		c.send = nil
	}
}

func (c *Channel) readPump(conn *websocket.Conn) error {
	pongWait := 2 * c.opts.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return ctx.Err()
		}
	}
}

func (c *Channel) dispatch(data []byte) {
	var env chat.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping undecodable frame", zap.Error(err))
		return
	}

	switch env.Event {
	case chat.EventNewMessage:
		var w chat.WireMessage
		if err := json.Unmarshal(env.Data, &w); err != nil {
			c.logger.Warn("dropping new_message", zap.Error(err))
			return
		}
		m, err := c.opts.Decoder.Message(w)
		if err != nil {
			c.logger.Warn("dropping new_message", zap.Error(err))
			return
		}
		c.mu.Lock()
		handlers := c.onMessage
		c.mu.Unlock()
		for _, h := range handlers {
			h(m)
		}
	case chat.EventStatusUpdate:
		var p chat.StatusPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("dropping status_update", zap.Error(err))
			return
		}
		pr, err := c.opts.Decoder.Presence(p)
		if err != nil {
			c.logger.Warn("dropping status_update", zap.Error(err))
			return
		}
		c.mu.Lock()
		handlers := c.onPresence
		c.mu.Unlock()
		for _, h := range handlers {
			h(pr)
		}
	default:
		c.logger.Debug("ignoring event", zap.String("event", env.Event))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
