// Package conversation owns the active conversation and the contact roster.
// State is a reducer: it never performs I/O, it returns Commands. Loop runs
// the reducer on a single goroutine and executes the commands.
package conversation

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
)

// ErrEmptyMessage is returned when sending neither text nor an attachment.
var ErrEmptyMessage = errors.New("empty message")

// FilePrefix prefixes the content of attachment-only messages.
const FilePrefix = "[文件] "

// DefaultEchoWindow bounds how far apart a temporary message and the
// server's echo of it may be.
const DefaultEchoWindow = 30 * time.Second

// Options configures a State.
type Options struct {
	ViewerID       string
	ViewerUsername string
	EchoWindow     time.Duration
	// Retry queues failed sends for redelivery.
	Retry bool
	Now   func() time.Time
}

// State is the conversation reducer. It is not safe for concurrent use.
type State struct {
	opts Options

	phase    Phase
	active   string
	seq      uint64
	messages []chat.Message
	ids      map[string]struct{}
	// pending holds live messages for the active contact received while Loading.
	pending       []chat.Message
	loadErr       error
	olderInFlight bool
	exhausted     bool
	contacts      map[string]*chat.Contact
	// redelivered holds temporary ids the outbox emitted after a failure.
	// Their echo may arrive long after the original timestamp.
	redelivered map[string]struct{}
}

// NewState creates an Idle state with an empty roster.
func NewState(opts Options) *State {
	if opts.EchoWindow <= 0 {
		opts.EchoWindow = DefaultEchoWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &State{
		opts:     opts,
		phase:    Idle,
		ids:         make(map[string]struct{}),
		contacts:    make(map[string]*chat.Contact),
		redelivered: make(map[string]struct{}),
	}
}

// Phase returns the current phase.
func (s *State) Phase() Phase { return s.phase }

// Active returns the active contact id, empty when none.
func (s *State) Active() string { return s.active }

// Seq returns the sequence number of the current history request.
func (s *State) Seq() uint64 { return s.seq }

// SetContacts merges a roster. Known contacts keep their live state.
func (s *State) SetContacts(cs []chat.Contact) {
	for _, c := range cs {
		c := c
		if c.ID == "" {
			continue
		}
		if cur, ok := s.contacts[c.ID]; ok {
			if c.DisplayName != "" {
				cur.DisplayName = c.DisplayName
			}
			continue
		}
		if c.ID == s.active {
			c.UnreadCount = 0
		}
		c.UnreadCount = max(c.UnreadCount, 0)
		s.contacts[c.ID] = &c
	}
}

// HasContact reports whether id is in the roster.
func (s *State) HasContact(id string) bool {
	_, ok := s.contacts[id]
	return ok
}

// SelectContact activates id and requests its history. It is valid in every
// phase; results of earlier requests become stale.
func (s *State) SelectContact(id string) []Command {
	if id == "" {
		return nil
	}
	_ = s.transition(Loading)
	s.seq++
	s.active = id
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.redelivered = make(map[string]struct{})
	s.pending = nil
	s.loadErr = nil
	s.olderInFlight = false
	s.exhausted = false

	c := s.contact(id)
	c.UnreadCount = 0
	return []Command{
		FetchInitial{ContactID: id, Seq: s.seq},
		PersistContact{Contact: *c},
	}
}

// Reload re-requests the active contact's history after a failure.
func (s *State) Reload() []Command {
	if s.active == "" {
		return nil
	}
	_ = s.transition(Loading)
	s.seq++
	s.loadErr = nil
	s.olderInFlight = false
	return []Command{FetchInitial{ContactID: s.active, Seq: s.seq}}
}

func (s *State) current(contactID string, seq uint64) bool {
	return contactID == s.active && seq == s.seq
}

// HistoryLoaded installs an initial page. Stale pages are ignored.
func (s *State) HistoryLoaded(contactID string, seq uint64, msgs []chat.Message) []Command {
	if s.phase != Loading || !s.current(contactID, seq) {
		return nil
	}
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b chat.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	// Temporary messages survive a reload.
	temps := slices.DeleteFunc(slices.Clone(s.messages), func(m chat.Message) bool { return !m.IsTemp() })
	s.messages = nil
	s.ids = make(map[string]struct{})
	for _, m := range sorted {
		s.appendMessage(m)
	}
	for _, m := range s.pending {
		if _, dup := s.ids[m.ID]; !dup {
			s.appendMessage(m)
		}
	}
	for _, t := range temps {
		if !slices.ContainsFunc(s.messages, func(m chat.Message) bool { return s.confirms(m, t) }) {
			s.appendMessage(t)
		}
	}
	s.pending = nil
	s.loadErr = nil
	_ = s.transition(Ready)

	if len(s.messages) == 0 {
		return nil
	}
	c := s.contact(contactID)
	if touch(c, s.messages[len(s.messages)-1]) {
		return []Command{PersistContact{Contact: *c}}
	}
	return nil
}

// HistoryFailed records a failed initial load. The conversation stays in
// Loading with a visible error until Reload or another selection.
func (s *State) HistoryFailed(contactID string, seq uint64, err error) []Command {
	if s.phase != Loading || !s.current(contactID, seq) {
		return nil
	}
	s.loadErr = err
	return []Command{Notify{Kind: bus.KindNoticeError, Text: "failed to load messages"}}
}

// LoadOlder requests the page before the oldest confirmed message. Only one
// request is in flight at a time, and nothing is requested once the
// beginning of the conversation has been reached.
func (s *State) LoadOlder() []Command {
	if s.phase != Ready || s.olderInFlight || s.exhausted {
		return nil
	}
	idx := slices.IndexFunc(s.messages, func(m chat.Message) bool { return !m.IsTemp() })
	if idx < 0 {
		s.exhausted = true
		return nil
	}
	s.olderInFlight = true
	return []Command{FetchOlder{ContactID: s.active, Seq: s.seq, BeforeID: s.messages[idx].ID}}
}

// OlderLoaded prepends an older page. An empty page, or one holding only
// messages already shown, marks the conversation exhausted.
func (s *State) OlderLoaded(contactID string, seq uint64, msgs []chat.Message) []Command {
	if !s.current(contactID, seq) {
		return nil
	}
	s.olderInFlight = false

	fresh := make([]chat.Message, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := s.ids[m.ID]; dup {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		s.exhausted = true
		return nil
	}
	for id := range seen {
		s.ids[id] = struct{}{}
	}
	s.messages = append(fresh, s.messages...)
	return nil
}

// OlderFailed clears the in-flight flag so the user can try again.
func (s *State) OlderFailed(contactID string, seq uint64, err error) []Command {
	if !s.current(contactID, seq) {
		return nil
	}
	s.olderInFlight = false
	return []Command{Notify{Kind: bus.KindNoticeWarn, Text: "failed to load older messages"}}
}

// Send appends a temporary message for the active contact and asks for it
// to be emitted.
func (s *State) Send(content string, att *chat.Attachment) (chat.Message, []Command, error) {
	if s.phase != Ready || s.active == "" {
		return chat.Message{}, nil, chat.ErrNotReady
	}
	content = strings.TrimSpace(content)
	if content == "" && att == nil {
		return chat.Message{}, nil, ErrEmptyMessage
	}
	if content == "" {
		content = FilePrefix + att.Filename
	}
	m := chat.Message{
		ID:             chat.NewTempID(),
		SenderID:       s.opts.ViewerID,
		RecipientID:    s.active,
		SenderUsername: s.opts.ViewerUsername,
		Content:        content,
		Timestamp:      s.opts.Now(),
		Attachment:     att,
		Status:         chat.Sent,
	}
	s.appendMessage(m)

	c := s.contact(s.active)
	cmds := []Command{Emit{Message: m}}
	if touch(c, m) {
		cmds = append(cmds, PersistContact{Contact: *c})
	}
	return m, cmds, nil
}

// SendFailed marks a temporary message failed and, when retries are
// enabled, hands it to the outbox.
func (s *State) SendFailed(m chat.Message, err error) []Command {
	if i := s.indexOf(m.ID); i >= 0 {
		s.messages[i].Status = chat.Failed
	}
	text := "message not sent"
	if errors.Is(err, chat.ErrTransportUnavailable) {
		text = "message not sent: not connected"
	}
	cmds := []Command{}
	if s.opts.Retry {
		text += ", will retry"
		m.Status = chat.Failed
		cmds = append(cmds, QueueRetry{Message: m})
	}
	return append(cmds, Notify{Kind: bus.KindNoticeWarn, Text: text})
}

// SendDelivered records that the outbox emitted a previously failed message.
func (s *State) SendDelivered(tempID string) []Command {
	if i := s.indexOf(tempID); i >= 0 && s.messages[i].Status == chat.Failed {
		s.messages[i].Status = chat.Sent
		s.redelivered[tempID] = struct{}{}
	}
	return nil
}

// SendAbandoned records that the outbox gave up on a message.
func (s *State) SendAbandoned(tempID, reason string) []Command {
	if i := s.indexOf(tempID); i >= 0 {
		s.messages[i].Status = chat.Failed
	}
	return []Command{Notify{Kind: bus.KindNoticeError, Text: fmt.Sprintf("gave up sending message: %s", reason)}}
}

// Receive applies a live message. Messages for other contacts only touch
// the roster; messages for the active one are appended, replace a matching
// temporary echo, or are dropped as duplicates.
func (s *State) Receive(m chat.Message) []Command {
	counterpart := m.Counterpart(s.opts.ViewerID)
	if counterpart == "" {
		return nil
	}
	c := s.contact(counterpart)
	if c.DisplayName == "" && m.SenderID == counterpart {
		c.DisplayName = m.SenderUsername
	}
	touch(c, m)

	switch {
	case counterpart != s.active:
		if m.SenderID != s.opts.ViewerID {
			c.UnreadCount++
		}
	case s.phase == Loading:
		if !slices.ContainsFunc(s.pending, func(p chat.Message) bool { return p.ID == m.ID }) {
			s.pending = append(s.pending, m)
		}
	default:
		if _, dup := s.ids[m.ID]; dup {
			break
		}
		if m.SenderID == s.opts.ViewerID {
			if i := s.echoOf(m); i >= 0 {
				delete(s.ids, s.messages[i].ID)
				delete(s.redelivered, s.messages[i].ID)
				s.ids[m.ID] = struct{}{}
				s.messages[i] = m
				break
			}
		}
		s.appendMessage(m)
	}
	return []Command{PersistContact{Contact: *c}}
}

// Presence updates a known contact's online flag.
func (s *State) Presence(p chat.Presence) []Command {
	c, ok := s.contacts[p.UserID]
	if !ok || c.Online == p.Online {
		return nil
	}
	c.Online = p.Online
	return []Command{PersistContact{Contact: *c}}
}

// echoOf finds the temporary message m confirms.
func (s *State) echoOf(m chat.Message) int {
	return slices.IndexFunc(s.messages, func(t chat.Message) bool { return s.confirms(m, t) })
}

// confirms reports whether server message m is the echo of temporary
// message t: same sender, recipient and content, within the echo window.
// The server may echo the minute-precision timestamp it was sent.
// Redelivered messages match regardless of the window.
func (s *State) confirms(m, t chat.Message) bool {
	if m.IsTemp() || !t.IsTemp() {
		return false
	}
	if m.SenderID != t.SenderID || m.RecipientID != t.RecipientID || m.Content != t.Content {
		return false
	}
	if _, ok := s.redelivered[t.ID]; ok {
		return true
	}
	d := min(m.Timestamp.Sub(t.Timestamp).Abs(), m.Timestamp.Sub(t.Timestamp.Truncate(time.Minute)).Abs())
	return d <= s.opts.EchoWindow
}

func (s *State) indexOf(id string) int {
	return slices.IndexFunc(s.messages, func(m chat.Message) bool { return m.ID == id })
}

func (s *State) appendMessage(m chat.Message) {
	s.messages = append(s.messages, m)
	s.ids[m.ID] = struct{}{}
}

// contact returns the roster entry for id, creating it when unknown.
func (s *State) contact(id string) *chat.Contact {
	c, ok := s.contacts[id]
	if !ok {
		c = &chat.Contact{ID: id}
		s.contacts[id] = c
	}
	return c
}

// touch moves the contact's preview forward to m; it reports whether anything changed.
func touch(c *chat.Contact, m chat.Message) bool {
	if m.Timestamp.Before(c.LastMessageAt) {
		return false
	}
	preview := m.Content
	if preview == "" && m.Attachment != nil {
		preview = FilePrefix + m.Attachment.Filename
	}
	changed := c.LastMessagePreview != preview || !c.LastMessageAt.Equal(m.Timestamp)
	c.LastMessagePreview = preview
	c.LastMessageAt = m.Timestamp
	return changed
}

// Snapshot is an immutable copy of the state for readers outside the loop.
type Snapshot struct {
	Phase        Phase
	Seq          uint64
	ActiveID     string
	Active       chat.Contact
	Messages     []chat.Message
	Contacts     []chat.Contact
	LoadErr      error
	LoadingOlder bool
	Exhausted    bool
}

// Snapshot copies the state. Contacts are ordered by last activity.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Phase:        s.phase,
		Seq:          s.seq,
		ActiveID:     s.active,
		Messages:     slices.Clone(s.messages),
		Contacts:     make([]chat.Contact, 0, len(s.contacts)),
		LoadErr:      s.loadErr,
		LoadingOlder: s.olderInFlight,
		Exhausted:    s.exhausted,
	}
	for _, c := range s.contacts {
		snap.Contacts = append(snap.Contacts, *c)
	}
	slices.SortFunc(snap.Contacts, func(a, b chat.Contact) int {
		if c := b.LastMessageAt.Compare(a.LastMessageAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name(), b.Name()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if c, ok := s.contacts[s.active]; ok {
		snap.Active = *c
	}
	return snap
}

// Contact returns a roster entry by id.
func (snap *Snapshot) Contact(id string) (chat.Contact, bool) {
	for _, c := range snap.Contacts {
		if c.ID == id {
			return c, true
		}
	}
	return chat.Contact{}, false
}
