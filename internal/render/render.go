// Package render turns conversation messages into display rows. Everything
// here is a pure function of its inputs and the injected clock.
package render

import (
	"time"
	"unicode/utf8"

	"github.com/matheus3301/chatline/internal/chat"
)

// TimeLayout is the per-message time label.
const TimeLayout = "2006-01-02 15:04"

// Supported locales.
const (
	LocaleZH = "zh"
	LocaleEN = "en"
)

type labels struct {
	today, yesterday, dateLayout string
	you, sending, failed         string
	loading, loadFailed, older   string
}

var localeLabels = map[string]labels{
	LocaleZH: {
		today: "今天", yesterday: "昨天", dateLayout: "2006年1月2日",
		you: "我", sending: "发送中…", failed: "发送失败",
		loading: "加载聊天记录中...", loadFailed: "加载失败", older: "加载中...",
	},
	LocaleEN: {
		today: "Today", yesterday: "Yesterday", dateLayout: "January 2, 2006",
		you: "You", sending: "sending…", failed: "failed to send",
		loading: "Loading messages...", loadFailed: "Failed to load messages", older: "Loading...",
	},
}

// Renderer projects messages from the point of view of one user.
type Renderer struct {
	viewerID string
	loc      *time.Location
	labels   labels
	now      func() time.Time
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// New creates a renderer for viewerID. Unknown locales fall back to zh.
func New(viewerID string, loc *time.Location, locale string, opts ...Option) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	l, ok := localeLabels[locale]
	if !ok {
		l = localeLabels[LocaleZH]
	}
	r := &Renderer{viewerID: viewerID, loc: loc, labels: l, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ViewerID returns the id rows are rendered for.
func (r *Renderer) ViewerID() string { return r.viewerID }

// LoadingLabel is shown while the initial history page loads.
func (r *Renderer) LoadingLabel() string { return r.labels.loading }

// LoadFailedLabel is shown when the initial history page failed.
func (r *Renderer) LoadFailedLabel() string { return r.labels.loadFailed }

// OlderLabel is shown above the messages while an older page loads.
func (r *Renderer) OlderLabel() string { return r.labels.older }

// Link is an attachment download link.
type Link struct {
	Label string
	URL   string
}

// Row is one rendered message.
type Row struct {
	ID     string
	Sent   bool
	Avatar string // empty on sent rows
	Sender string
	Text   string
	Time   string
	// Day is the calendar day of the message in the display location.
	Day        string
	Attachment *Link
	Status     chat.DeliveryStatus
	// Marker flags temporary messages; empty for confirmed ones.
	Marker string
}

// Item is either a date divider or a message row.
type Item struct {
	Divider string
	Row     *Row
}

// IsDivider reports whether the item is a date divider.
func (i Item) IsDivider() bool { return i.Row == nil }

// Render renders a single message.
func (r *Renderer) Render(m chat.Message) Row {
	local := m.Timestamp.In(r.loc)
	row := Row{
		ID:     m.ID,
		Sent:   m.SenderID == r.viewerID,
		Text:   m.Content,
		Time:   local.Format(TimeLayout),
		Day:    local.Format(time.DateOnly),
		Status: m.Status,
	}
	if row.Sent {
		row.Sender = r.labels.you
	} else {
		row.Avatar = Avatar(m.SenderUsername)
		row.Sender = m.SenderUsername
		if row.Sender == "" {
			row.Sender = m.SenderID
		}
	}
	if m.Attachment != nil {
		row.Attachment = &Link{Label: m.Attachment.Filename, URL: m.Attachment.URL}
		if row.Attachment.Label == "" {
			row.Attachment.Label = m.Attachment.ID
		}
	}
	if m.IsTemp() {
		switch m.Status {
		case chat.Failed:
			row.Marker = r.labels.failed
		default:
			row.Marker = r.labels.sending
		}
	}
	return row
}

// Project renders msgs in order and inserts a divider before the first
// message of every calendar day. Dividers are recomputed from scratch on
// every call, so repeated projections never accumulate them.
func (r *Renderer) Project(msgs []chat.Message) []Item {
	items := make([]Item, 0, len(msgs)+4)
	lastDay := ""
	for _, m := range msgs {
		row := r.Render(m)
		if row.Day != lastDay {
			items = append(items, Item{Divider: r.DateLabel(m.Timestamp)})
			lastDay = row.Day
		}
		items = append(items, Item{Row: &row})
	}
	return items
}

// DateLabel names the calendar day of t relative to the renderer's clock.
func (r *Renderer) DateLabel(t time.Time) string {
	t = t.In(r.loc)
	now := r.now().In(r.loc)
	switch {
	case sameDay(t, now):
		return r.labels.today
	case sameDay(t, now.AddDate(0, 0, -1)):
		return r.labels.yesterday
	default:
		return t.Format(r.labels.dateLayout)
	}
}

// Avatar is the first character of username, or "?" when there is none.
func Avatar(username string) string {
	if username == "" {
		return "?"
	}
	ch, _ := utf8.DecodeRuneInString(username)
	if ch == utf8.RuneError {
		return "?"
	}
	return string(ch)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
