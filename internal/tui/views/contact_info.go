package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/render"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// ContactInfo displays detailed information about a contact.
type ContactInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewContactInfo creates a new contact info view.
func NewContactInfo(theme *ui.Theme) *ContactInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Contact Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ContactInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ContactInfo) Name() string { return "Details" }

// Init implements Component.
func (ci *ContactInfo) Init() {}

// Start implements Component.
func (ci *ContactInfo) Start() {}

// Stop implements Component.
func (ci *ContactInfo) Stop() {}

// FocusTarget implements Component.
func (ci *ContactInfo) FocusTarget() tview.Primitive { return ci }

// Hints implements Component.
func (ci *ContactInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "s", Description: "Share"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders contact details along with its deep link.
func (ci *ContactInfo) Update(c chat.Contact, link string) {
	ci.Clear()
	if c.ID == "" {
		return
	}

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	presence := "offline"
	if c.Online {
		presence = "online"
	}
	lastActive := "-"
	if !c.LastMessageAt.IsZero() {
		lastActive = c.LastMessageAt.Local().Format(time.DateTime)
	}
	preview := c.LastMessagePreview
	if preview == "" {
		preview = "-"
	}

	rows := []struct{ label, value string }{
		{"Name:", c.Name()},
		{"ID:", c.ID},
		{"Presence:", presence},
		{"Unread:", fmt.Sprint(c.UnreadCount)},
		{"Last Active:", lastActive},
		{"Last Message:", preview},
		{"Link:", link},
	}
	_, _ = fmt.Fprintln(ci)
	for _, r := range rows {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n",
			fg, r.label, ct, tview.Escape(render.Sanitize(r.value)))
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(c.Name())))
}
