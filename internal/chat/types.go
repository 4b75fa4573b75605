package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks ids generated locally for an optimistic echo.
const TempIDPrefix = "temp-"

// DeliveryStatus describes where a message is in its delivery lifecycle.
type DeliveryStatus string

const (
	// Confirmed messages carry a server-assigned id.
	Confirmed DeliveryStatus = "confirmed"
	// Sent messages were emitted on the channel but the server echo has not arrived.
	Sent DeliveryStatus = "sent"
	// Failed messages could not be emitted.
	Failed DeliveryStatus = "failed"
)

// Attachment is a file attached to a message.
type Attachment struct {
	ID       string
	Filename string
	URL      string
}

// Message is a single chat message.
type Message struct {
	ID             string
	SenderID       string
	RecipientID    string
	SenderUsername string
	Content        string
	Timestamp      time.Time
	Attachment     *Attachment
	Status         DeliveryStatus
}

// Counterpart returns the id of the other party of the message from the viewer's side.
func (m Message) Counterpart(viewerID string) string {
	if m.SenderID == viewerID {
		return m.RecipientID
	}
	return m.SenderID
}

// IsTemp reports whether the message still carries a local temporary id.
func (m Message) IsTemp() bool {
	return IsTempID(m.ID)
}

// Contact is an entry of the viewer's contact list.
type Contact struct {
	ID                 string
	DisplayName        string
	Online             bool
	LastMessagePreview string
	LastMessageAt      time.Time
	UnreadCount        int
}

// Name returns the display name, falling back to the id.
func (c Contact) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ID
}

// Presence is a contact online/offline update.
type Presence struct {
	UserID string
	Online bool
}

// NewTempID returns a fresh temporary message id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
