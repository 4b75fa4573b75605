package bus

import "time"

// Event kinds published by chatline components. Subscribers filter by prefix, so
// "notice." receives every notice level.
const (
	KindNoticeInfo   = "notice.info"
	KindNoticeWarn   = "notice.warn"
	KindNoticeError  = "notice.error"
	KindViewUpdated  = "view.updated"
	KindTransport    = "transport.status_changed"
	KindContact      = "contact.changed"
	KindSelection    = "selection.changed"
	KindOutboxSent   = "outbox.sent"
	KindOutboxFailed = "outbox.failed"
	KindOutboxQueued = "outbox.queued"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Notice is the payload of notice.* events: a short user-facing text.
type Notice struct {
	Text string
}

// OutboxResult is the payload of outbox.* events.
type OutboxResult struct {
	ClientMsgID string
	RecipientID string
	Error       string
}
