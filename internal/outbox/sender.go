package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultInterval is how often queued entries are retried.
	DefaultInterval = 2 * time.Second
	// DefaultMaxAttempts bounds redelivery of one message.
	DefaultMaxAttempts = 5
)

// Emitter is the realtime channel used for redelivery.
type Emitter interface {
	Connected() bool
	Send(event string, payload any) error
}

// Options tunes the sender.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

// Sender stores sends that failed and re-emits them once the channel is connected.
type Sender struct {
	db      *store.DB
	emitter Emitter
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, emitter Emitter, b *bus.Bus, logger *zap.Logger, opts Options) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Sender{
		db:      db,
		emitter: emitter,
		bus:     b,
		logger:  logger.Named("outbox"),
		opts:    opts,
	}
}

// Enqueue stores a failed message for redelivery. The temporary id becomes
// the outbox client id so results can be matched to the conversation.
func (s *Sender) Enqueue(m chat.Message) error {
	e := &store.OutboxEntry{
		ClientMsgID: m.ID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Timestamp:   m.Timestamp.UnixMilli(),
	}
	if m.Attachment != nil {
		e.AttachmentID = m.Attachment.ID
		e.AttachmentFilename = m.Attachment.Filename
	}
	if err := s.db.QueueOutbox(e); err != nil {
		return err
	}
	s.logger.Info("message queued", zap.String("client_msg_id", m.ID), zap.String("recipient_id", m.RecipientID))
	s.bus.Publish(bus.Event{
		Kind:    bus.KindOutboxQueued,
		Payload: bus.OutboxResult{ClientMsgID: m.ID, RecipientID: m.RecipientID},
	})
	return nil
}

// Start re-queues entries interrupted by a previous run and begins draining.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.RecoverOutbox(); err != nil {
		s.logger.Error("failed to recover outbox", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("recovered interrupted sends", zap.Int64("count", n))
	}
	// Subscribe before returning so no reconnect is missed.
	var changes <-chan bus.Event
	unsub := func() {}
	if s.bus != nil {
		changes, unsub = s.bus.Subscribe("transport.", 8)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, changes, unsub)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context, changes <-chan bus.Event, unsub func()) {
	defer close(s.done)
	defer unsub()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case evt := <-changes:
			// Drain right away when the channel comes back.
			if c, ok := evt.Payload.(status.StatusChange); ok && c.To == status.Connected {
				s.processPending(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	if !s.emitter.Connected() {
		return
	}
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}
		attempts := entry.Attempts + 1
		result := bus.OutboxResult{ClientMsgID: entry.ClientMsgID, RecipientID: entry.RecipientID}

		err := s.emitter.Send(chat.EventSendMessage, chat.EncodeSend(message(entry)))
		if err != nil {
			s.logger.Warn("redelivery failed", zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID), zap.Int("attempts", attempts))
			if attempts < s.opts.MaxAttempts {
				_ = s.db.MarkOutboxRetry(entry.ClientMsgID, err.Error())
				continue
			}
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			result.Error = err.Error()
			s.bus.Publish(bus.Event{Kind: bus.KindOutboxFailed, Payload: result})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		s.logger.Info("message redelivered", zap.String("client_msg_id", entry.ClientMsgID), zap.Int("attempts", attempts))
		s.bus.Publish(bus.Event{Kind: bus.KindOutboxSent, Payload: result})
	}
}

// message rebuilds the outgoing message of an entry.
func message(e store.OutboxEntry) chat.Message {
	m := chat.Message{
		ID:          e.ClientMsgID,
		RecipientID: e.RecipientID,
		Content:     e.Content,
		Timestamp:   time.UnixMilli(e.Timestamp),
	}
	if e.AttachmentID != "" {
		m.Attachment = &chat.Attachment{ID: e.AttachmentID, Filename: e.AttachmentFilename}
	}
	return m
}
