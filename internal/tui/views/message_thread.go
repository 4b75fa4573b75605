package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatline/internal/conversation"
	"github.com/matheus3301/chatline/internal/render"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the active conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	renderer *render.Renderer
	messages *tview.TextView
	composer *tview.InputField
	title    string
	seq      uint64
	count    int
	lastID   string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme, renderer *render.Renderer) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		renderer: renderer,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := strings.TrimSpace(composer.GetText())
		if text != "" {
			mt.onSend(text)
			composer.SetText("")
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Init implements Component.
func (mt *MessageThread) Init() {}

// Start implements Component.
func (mt *MessageThread) Start() {}

// Stop implements Component.
func (mt *MessageThread) Stop() {}

// FocusTarget implements Component.
func (mt *MessageThread) FocusTarget() tview.Primitive { return mt.messages }

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "o", Description: "Older"},
		{Key: "r", Description: "Reload"},
		{Key: "d", Description: "Details"},
		{Key: "s", Description: "Share"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnSend sets the callback when a message is submitted.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update redraws the thread from a snapshot. The view follows the newest
// message unless the update only prepended older history.
func (mt *MessageThread) Update(snap *conversation.Snapshot) {
	if snap == nil || snap.ActiveID == "" {
		mt.title = ""
		mt.messages.Clear()
		mt.messages.SetTitle(" Messages ")
		return
	}

	mt.title = snap.Active.Name()
	presence := ""
	if snap.Active.Online {
		presence = fmt.Sprintf(" [%s]●[-]", ui.ColorName(mt.theme.OnlineColor))
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s%s ", tview.Escape(mt.title), presence))

	muted := ui.ColorName(mt.theme.MutedColor)
	var b strings.Builder
	switch {
	case snap.Phase == conversation.Loading && snap.LoadErr != nil:
		fmt.Fprintf(&b, "\n[%s]%s: %s[-]\n[%s]:reload to retry[-]\n",
			ui.ColorName(mt.theme.FlashErrColor), mt.renderer.LoadFailedLabel(),
			tview.Escape(snap.LoadErr.Error()), muted)
	case snap.Phase == conversation.Loading:
		fmt.Fprintf(&b, "\n[%s]%s[-]\n", muted, mt.renderer.LoadingLabel())
	default:
		if snap.LoadingOlder {
			fmt.Fprintf(&b, "[%s]%s[-]\n\n", muted, mt.renderer.OlderLabel())
		} else if snap.Exhausted {
			fmt.Fprintf(&b, "[%s::d]·[-:-:-]\n\n", muted)
		}
		b.WriteString(render.TerminalText(mt.renderer.Project(snap.Messages), mt.theme.MessageStyle()))
	}

	grew := snap.Seq != mt.seq || len(snap.Messages) > mt.count
	prepended := snap.Seq == mt.seq && mt.count > 0 && len(snap.Messages) > mt.count &&
		snap.Messages[len(snap.Messages)-1].ID == mt.lastID
	mt.seq = snap.Seq
	mt.count = len(snap.Messages)
	mt.lastID = ""
	if n := len(snap.Messages); n > 0 {
		mt.lastID = snap.Messages[n-1].ID
	}

	mt.messages.SetText(b.String())
	switch {
	case prepended:
		mt.messages.ScrollToBeginning()
	case grew:
		mt.messages.ScrollToEnd()
	}
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
