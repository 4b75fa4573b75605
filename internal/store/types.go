package store

// Contact is the persisted roster entry. Times are unix milliseconds.
type Contact struct {
	ID                 string
	DisplayName        string
	Online             bool
	LastMessagePreview string
	LastMessageAt      int64
	UnreadCount        int
}

// Outbox entry states.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry represents an outgoing message awaiting (re)delivery.
type OutboxEntry struct {
	ID                 int64
	ClientMsgID        string
	RecipientID        string
	Content            string
	AttachmentID       string
	AttachmentFilename string
	Timestamp          int64
	Status             string // queued, sending, sent, failed
	Attempts           int
	ErrorMessage       string
	CreatedAt          int64
}
