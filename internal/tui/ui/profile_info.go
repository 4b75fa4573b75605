package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// ProfileData holds the header summary of the running client.
type ProfileData struct {
	Profile  string
	User     string
	Server   string
	Status   string
	Contacts int
	Unread   int
	Uptime   time.Duration
}

// ProfileInfo displays profile metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data *ProfileData) {
	pi.Clear()
	if data == nil {
		return
	}

	fg := ColorName(pi.theme.FgColor)
	ct := ColorName(pi.theme.CounterColor)

	user := data.User
	if user == "" {
		user = "-"
	}

	text := fmt.Sprintf(
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Server:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]   [%s]%d (%d unread)[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fg, ct, tview.Escape(data.Profile),
		fg, ct, tview.Escape(user),
		fg, ct, tview.Escape(data.Server),
		fg, ct, data.Status,
		fg, ct, data.Contacts, data.Unread,
		fg, ct, formatDuration(data.Uptime),
	)

	_, _ = fmt.Fprint(pi, text)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
