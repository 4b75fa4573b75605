package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Channel event names.
const (
	EventJoinUser     = "join_user"
	EventSendMessage  = "send_message"
	EventNewMessage   = "new_message"
	EventStatusUpdate = "status_update"
)

// SendTimestampLayout is the minute-precision layout of outgoing timestamps.
const SendTimestampLayout = "2006-01-02 15:04"

// ID is a wire identifier that may arrive as a JSON string or number.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Envelope frames every event on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WireAttachment is the attachment shape used on the wire.
type WireAttachment struct {
	ID       ID     `json:"id"`
	Filename string `json:"filename"`
}

// WireMessage is a message as delivered by new_message and /get_messages.
type WireMessage struct {
	ID             ID              `json:"id"`
	SenderID       ID              `json:"sender_id"`
	RecipientID    ID              `json:"recipient_id"`
	Content        string          `json:"content"`
	Timestamp      string          `json:"timestamp"`
	SenderUsername string          `json:"sender_username,omitempty"`
	Attachment     *WireAttachment `json:"attachment,omitempty"`
}

// JoinPayload is the data of join_user.
type JoinPayload struct {
	UserID string `json:"user_id"`
}

// SendPayload is the data of send_message.
type SendPayload struct {
	RecipientID string          `json:"recipient_id"`
	Content     string          `json:"content"`
	Timestamp   string          `json:"timestamp"`
	Attachment  *WireAttachment `json:"attachment,omitempty"`
}

// StatusPayload is the data of status_update.
type StatusPayload struct {
	UserID ID   `json:"user_id"`
	Online bool `json:"online"`
}

// Decoder turns wire payloads into validated domain records.
type Decoder struct {
	// BaseURL prefixes attachment download links.
	BaseURL string
	// Location interprets timestamps that carry no zone.
	Location *time.Location
}

// Message validates w and converts it. Required: id, sender_id, recipient_id, timestamp.
func (d Decoder) Message(w WireMessage) (Message, error) {
	switch {
	case w.ID == "":
		return Message{}, fmt.Errorf("%w: message without id", ErrMalformedPayload)
	case IsTempID(string(w.ID)):
		return Message{}, fmt.Errorf("%w: message %s uses a temporary id", ErrMalformedPayload, w.ID)
	case w.SenderID == "":
		return Message{}, fmt.Errorf("%w: message %s without sender_id", ErrMalformedPayload, w.ID)
	case w.RecipientID == "":
		return Message{}, fmt.Errorf("%w: message %s without recipient_id", ErrMalformedPayload, w.ID)
	}
	ts, err := ParseTimestamp(w.Timestamp, d.Location)
	if err != nil {
		return Message{}, fmt.Errorf("%w: message %s: %v", ErrMalformedPayload, w.ID, err)
	}
	m := Message{
		ID:             string(w.ID),
		SenderID:       string(w.SenderID),
		RecipientID:    string(w.RecipientID),
		SenderUsername: w.SenderUsername,
		Content:        w.Content,
		Timestamp:      ts,
		Status:         Confirmed,
	}
	if w.Attachment != nil {
		if w.Attachment.ID == "" {
			return Message{}, fmt.Errorf("%w: message %s has attachment without id", ErrMalformedPayload, w.ID)
		}
		m.Attachment = &Attachment{
			ID:       string(w.Attachment.ID),
			Filename: w.Attachment.Filename,
			URL:      DownloadURL(d.BaseURL, string(w.Attachment.ID)),
		}
	}
	return m, nil
}

// Messages converts a page of wire messages. One malformed entry fails the page.
func (d Decoder) Messages(ws []WireMessage) ([]Message, error) {
	out := make([]Message, 0, len(ws))
	for _, w := range ws {
		m, err := d.Message(w)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Presence converts a status_update payload.
func (d Decoder) Presence(p StatusPayload) (Presence, error) {
	if p.UserID == "" {
		return Presence{}, fmt.Errorf("%w: status_update without user_id", ErrMalformedPayload)
	}
	return Presence{UserID: string(p.UserID), Online: p.Online}, nil
}

// EncodeSend builds the send_message payload for m.
func EncodeSend(m Message) SendPayload {
	p := SendPayload{
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Timestamp:   m.Timestamp.UTC().Format(SendTimestampLayout),
	}
	if m.Attachment != nil {
		p.Attachment = &WireAttachment{ID: ID(m.Attachment.ID), Filename: m.Attachment.Filename}
	}
	return p
}

// DownloadURL returns the download link of an attachment.
func DownloadURL(baseURL, attachmentID string) string {
	return strings.TrimRight(baseURL, "/") + "/download_attachment/" + attachmentID
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	SendTimestampLayout,
}

// ParseTimestamp accepts ISO-8601 timestamps with or without zone. Zone-less values are
// read in loc (UTC when nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
