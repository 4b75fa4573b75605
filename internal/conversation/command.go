package conversation

import "github.com/matheus3301/chatline/internal/chat"

// Command is a side effect requested by the reducer. The loop executes
// commands outside the reducer and feeds their results back as events.
type Command interface {
	command()
}

// FetchInitial loads the latest history page of a contact.
type FetchInitial struct {
	ContactID string
	Seq       uint64
}

// FetchOlder loads the page before BeforeID.
type FetchOlder struct {
	ContactID string
	Seq       uint64
	BeforeID  string
}

// Emit writes send_message for a temporary message.
type Emit struct {
	Message chat.Message
}

// QueueRetry hands a failed send to the outbox.
type QueueRetry struct {
	Message chat.Message
}

// PersistContact records the new state of a contact.
type PersistContact struct {
	Contact chat.Contact
}

// Notify shows a non-blocking notice.
type Notify struct {
	Kind string
	Text string
}

func (FetchInitial) command()   {}
func (FetchOlder) command()     {}
func (Emit) command()           {}
func (QueueRetry) command()     {}
func (PersistContact) command() {}
func (Notify) command()         {}
