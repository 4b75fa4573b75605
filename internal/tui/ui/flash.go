package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a flash notification with a level and expiry.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// Expired reports whether the message is no longer shown at now.
func (m FlashMessage) Expired(now time.Time) bool {
	return !now.Before(m.Expires)
}

// flashTTL is how long each level stays on screen.
var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// noticeLevel maps bus notices onto flash levels.
var noticeLevel = map[string]FlashLevel{
	bus.KindNoticeInfo:  FlashInfo,
	bus.KindNoticeWarn:  FlashWarn,
	bus.KindNoticeError: FlashErr,
}

// FlashModel holds the current notification. Watchers are woken on every
// new message; a slow watcher misses intermediate ones.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	watchCh chan FlashMessage
	now     func() time.Time
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		watchCh: make(chan FlashMessage, 8),
		now:     time.Now,
	}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) { f.show(msg, FlashInfo) }

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) { f.show(msg, FlashWarn) }

// Err sets an error-level flash message.
func (f *FlashModel) Err(err error) { f.show(err.Error(), FlashErr) }

// Set sets an info-level message shown for d.
func (f *FlashModel) Set(msg string, d time.Duration) {
	f.set(msg, FlashInfo, d)
}

// Notice shows a notice.* bus event. It reports false for other events.
func (f *FlashModel) Notice(evt bus.Event) bool {
	n, ok := evt.Payload.(bus.Notice)
	if !ok {
		return false
	}
	level, ok := noticeLevel[evt.Kind]
	if !ok {
		return false
	}
	f.show(n.Text, level)
	return true
}

func (f *FlashModel) show(msg string, level FlashLevel) {
	f.set(msg, level, flashTTL[level])
}

func (f *FlashModel) set(msg string, level FlashLevel, d time.Duration) {
	fm := FlashMessage{
		Text:    msg,
		Level:   level,
		Expires: f.now().Add(d),
	}
	f.mu.Lock()
	f.current = fm
	f.mu.Unlock()
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Get returns the current flash message text, or empty if expired.
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns the current flash message, or nil if expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	m := f.current
	f.mu.RUnlock()
	if m.Expired(f.now()) {
		return nil
	}
	return &m
}

// Watch returns a channel that receives flash messages.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the UI component that displays flash notifications.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg on the bar, or clears it when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	color := fb.theme.FlashInfoColor
	icon := ""
	switch msg.Level {
	case FlashWarn:
		color, icon = fb.theme.FlashWarnColor, "! "
	case FlashErr:
		color, icon = fb.theme.FlashErrColor, "✗ "
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s%s[-]", ColorName(color), icon, tview.Escape(msg.Text))
}
