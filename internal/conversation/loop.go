package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"go.uber.org/zap"
)

// DefaultQueueSize bounds the inbound event queue.
const DefaultQueueSize = 256

// ErrStopped is returned when posting to a loop that is not running.
var ErrStopped = errors.New("conversation loop stopped")

// Fetcher loads history pages.
type Fetcher interface {
	FetchInitial(ctx context.Context, contactID string) ([]chat.Message, error)
	FetchBefore(ctx context.Context, contactID, beforeID string) ([]chat.Message, error)
}

// Emitter writes events on the realtime channel.
type Emitter interface {
	Send(event string, payload any) error
}

// RetryQueue stores failed sends for later redelivery.
type RetryQueue interface {
	Enqueue(m chat.Message) error
}

type selectEvent struct{ contactID string }

type reloadEvent struct{}

type olderEvent struct{}

type contactsEvent struct{ contacts []chat.Contact }

type receiveEvent struct{ msg chat.Message }

type presenceEvent struct{ p chat.Presence }

type sendEvent struct {
	content string
	att     *chat.Attachment
	reply   chan sendReply
}

type historyEvent struct {
	contactID string
	seq       uint64
	msgs      []chat.Message
	err       error
	older     bool
}

type sendReply struct {
	msg chat.Message
	err error
}

// Loop serialises every mutation of a State onto one goroutine. Inputs from
// the UI, the transport, fetch completions and outbox results all pass
// through a bounded queue and are reduced in arrival order.
type Loop struct {
	state   *State
	events  chan any
	fetcher Fetcher
	emitter Emitter
	retry   RetryQueue
	bus     *bus.Bus
	logger  *zap.Logger

	snap    atomic.Pointer[Snapshot]
	effects sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
}

// NewLoop creates a loop. retry may be nil, which disables redelivery.
func NewLoop(opts Options, queueSize int, fetcher Fetcher, emitter Emitter, retry RetryQueue, b *bus.Bus, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if retry == nil {
		opts.Retry = false
	}
	l := &Loop{
		state:   NewState(opts),
		events:  make(chan any, queueSize),
		fetcher: fetcher,
		emitter: emitter,
		retry:   retry,
		bus:     b,
		logger:  logger.Named("conversation"),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	l.snap.Store(l.state.Snapshot())
	return l
}

// Seed installs the startup roster. It must be called before Start.
func (l *Loop) Seed(cs []chat.Contact) {
	l.state.SetContacts(cs)
	l.snap.Store(l.state.Snapshot())
}

// Start runs the loop in the background until Stop or ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.Run(ctx)
}

// Stop cancels the loop and waits for it and its effects to finish.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.stopped
}

// Run reduces events until ctx is done. It must be called at most once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	defer l.effects.Wait()
	defer close(l.done)

	var outbox <-chan bus.Event
	if l.bus != nil {
		ch, unsub := l.bus.Subscribe("outbox.", 256)
		defer unsub()
		outbox = ch
	}

	for {
		select {
		case ev := <-l.events:
			l.handle(ctx, ev)
		case evt := <-outbox:
			l.handleOutbox(ctx, evt)
		case <-ctx.Done():
			return
		}
		l.publish()
	}
}

// Snapshot returns the latest published state.
func (l *Loop) Snapshot() *Snapshot {
	return l.snap.Load()
}

// Select activates a contact.
func (l *Loop) Select(contactID string) error {
	return l.post(context.Background(), selectEvent{contactID: contactID})
}

// Reload retries the initial history load of the active contact.
func (l *Loop) Reload() error {
	return l.post(context.Background(), reloadEvent{})
}

// LoadOlder asks for the page before the oldest shown message.
func (l *Loop) LoadOlder() error {
	return l.post(context.Background(), olderEvent{})
}

// SetContacts merges a roster into the state.
func (l *Loop) SetContacts(cs []chat.Contact) error {
	return l.post(context.Background(), contactsEvent{contacts: cs})
}

// Receive feeds a live message; it is the transport's message handler.
func (l *Loop) Receive(m chat.Message) {
	if err := l.post(context.Background(), receiveEvent{msg: m}); err != nil {
		l.logger.Debug("dropping message after stop", zap.String("id", m.ID))
	}
}

// Presence feeds a presence update; it is the transport's presence handler.
func (l *Loop) Presence(p chat.Presence) {
	_ = l.post(context.Background(), presenceEvent{p: p})
}

// Send echoes a message locally and emits it. It returns chat.ErrNotReady
// unless the active conversation has loaded.
func (l *Loop) Send(ctx context.Context, content string, att *chat.Attachment) (chat.Message, error) {
	reply := make(chan sendReply, 1)
	if err := l.post(ctx, sendEvent{content: content, att: att, reply: reply}); err != nil {
		return chat.Message{}, err
	}
	select {
	case r := <-reply:
		return r.msg, r.err
	case <-ctx.Done():
		return chat.Message{}, ctx.Err()
	case <-l.done:
		return chat.Message{}, ErrStopped
	}
}

func (l *Loop) post(ctx context.Context, ev any) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

func (l *Loop) handle(ctx context.Context, ev any) {
	s := l.state
	var cmds []Command
	switch ev := ev.(type) {
	case selectEvent:
		cmds = s.SelectContact(ev.contactID)
		l.logger.Info("contact selected", zap.String("contact_id", ev.contactID), zap.Uint64("seq", s.Seq()))
	case reloadEvent:
		cmds = s.Reload()
	case olderEvent:
		cmds = s.LoadOlder()
	case contactsEvent:
		s.SetContacts(ev.contacts)
	case receiveEvent:
		cmds = s.Receive(ev.msg)
	case presenceEvent:
		cmds = s.Presence(ev.p)
	case sendEvent:
		m, c, err := s.Send(ev.content, ev.att)
		ev.reply <- sendReply{msg: m, err: err}
		cmds = c
	case historyEvent:
		if !s.current(ev.contactID, ev.seq) {
			l.logger.Debug("discarding stale history",
				zap.String("contact_id", ev.contactID), zap.Uint64("seq", ev.seq), zap.Uint64("current", s.Seq()))
			return
		}
		switch {
		case ev.older && ev.err != nil:
			cmds = s.OlderFailed(ev.contactID, ev.seq, ev.err)
		case ev.older:
			cmds = s.OlderLoaded(ev.contactID, ev.seq, ev.msgs)
		case ev.err != nil:
			l.logger.Warn("history load failed", zap.String("contact_id", ev.contactID), zap.Error(ev.err))
			cmds = s.HistoryFailed(ev.contactID, ev.seq, ev.err)
		default:
			cmds = s.HistoryLoaded(ev.contactID, ev.seq, ev.msgs)
		}
	default:
		l.logger.Error("unknown event", zap.Any("event", ev))
	}
	l.exec(ctx, cmds)
}

func (l *Loop) handleOutbox(ctx context.Context, evt bus.Event) {
	res, ok := evt.Payload.(bus.OutboxResult)
	if !ok {
		return
	}
	switch evt.Kind {
	case bus.KindOutboxSent:
		l.exec(ctx, l.state.SendDelivered(res.ClientMsgID))
	case bus.KindOutboxFailed:
		l.exec(ctx, l.state.SendAbandoned(res.ClientMsgID, res.Error))
	}
}

func (l *Loop) exec(ctx context.Context, cmds []Command) {
	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case FetchInitial:
			l.spawn(ctx, func(ctx context.Context) any {
				msgs, err := l.fetcher.FetchInitial(ctx, cmd.ContactID)
				return historyEvent{contactID: cmd.ContactID, seq: cmd.Seq, msgs: msgs, err: err}
			})
		case FetchOlder:
			l.spawn(ctx, func(ctx context.Context) any {
				msgs, err := l.fetcher.FetchBefore(ctx, cmd.ContactID, cmd.BeforeID)
				return historyEvent{contactID: cmd.ContactID, seq: cmd.Seq, msgs: msgs, err: err, older: true}
			})
		case Emit:
			// The emitter only queues, so sends leave in the order they were made.
			if err := l.emitter.Send(chat.EventSendMessage, chat.EncodeSend(cmd.Message)); err != nil {
				l.logger.Warn("send failed", zap.String("temp_id", cmd.Message.ID), zap.Error(err))
				l.exec(ctx, l.state.SendFailed(cmd.Message, err))
			}
		case QueueRetry:
			if err := l.retry.Enqueue(cmd.Message); err != nil {
				l.logger.Error("failed to queue retry", zap.String("temp_id", cmd.Message.ID), zap.Error(err))
				l.bus.Notify(bus.KindNoticeError, "message could not be queued for retry")
			}
		case PersistContact:
			l.bus.Publish(bus.Event{Kind: bus.KindContact, Payload: cmd.Contact})
		case Notify:
			l.bus.Notify(cmd.Kind, cmd.Text)
		}
	}
}

// spawn runs fn off the loop and posts its result back.
func (l *Loop) spawn(ctx context.Context, fn func(context.Context) any) {
	l.effects.Add(1)
	go func() {
		defer l.effects.Done()
		result := fn(ctx)
		_ = l.post(ctx, result)
	}()
}

func (l *Loop) publish() {
	snap := l.state.Snapshot()
	l.snap.Store(snap)
	l.bus.Publish(bus.Event{Kind: bus.KindViewUpdated, Payload: snap})
}
