package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/zap"
)

const previewLen = 100

// Engine persists roster changes published by the conversation loop.
// It subscribes to "contact." events on the bus and writes them in batches.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger.Named("sync"),
	}
}

// Start subscribes to contact events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("contact.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleBatch(append([]bus.Event{evt}, drain(ch)...))
			case <-ctx.Done():
				// Keep whatever was already published.
				e.handleBatch(drain(ch))
				return
			}
		}
	}()
}

// Stop stops the engine after flushing buffered events.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func drain(ch <-chan bus.Event) []bus.Event {
	var evts []bus.Event
	for {
		select {
		case evt := <-ch:
			evts = append(evts, evt)
		default:
			return evts
		}
	}
}

func (e *Engine) handleBatch(evts []bus.Event) {
	// Later events for the same contact supersede earlier ones.
	latest := make(map[string]int, len(evts))
	var batch []chat.Contact
	for _, evt := range evts {
		if evt.Kind != bus.KindContact {
			continue
		}
		c, ok := evt.Payload.(chat.Contact)
		if !ok || c.ID == "" {
			continue
		}
		if i, seen := latest[c.ID]; seen {
			batch[i] = c
			continue
		}
		latest[c.ID] = len(batch)
		batch = append(batch, c)
	}
	if len(batch) == 0 {
		return
	}
	if err := e.IngestContacts(batch); err != nil {
		e.logger.Error("failed to persist contacts", zap.Error(err), zap.Int("count", len(batch)))
		return
	}
	e.logger.Debug("contacts persisted", zap.Int("count", len(batch)))
}

// IngestContact stores a single contact (idempotent).
func (e *Engine) IngestContact(c chat.Contact) error {
	sc := toStore(c)
	if err := e.db.UpsertContact(&sc); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

// IngestContacts stores contacts in one transaction.
func (e *Engine) IngestContacts(cs []chat.Contact) error {
	rows := make([]store.Contact, len(cs))
	for i, c := range cs {
		rows[i] = toStore(c)
	}
	if err := e.db.BulkUpsertContacts(rows); err != nil {
		return fmt.Errorf("upsert contacts: %w", err)
	}
	return nil
}

func toStore(c chat.Contact) store.Contact {
	var at int64
	if !c.LastMessageAt.IsZero() {
		at = c.LastMessageAt.UnixMilli()
	}
	return store.Contact{
		ID:                 c.ID,
		DisplayName:        c.DisplayName,
		Online:             c.Online,
		LastMessagePreview: truncate(c.LastMessagePreview, previewLen),
		LastMessageAt:      at,
		UnreadCount:        c.UnreadCount,
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
