package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// FocusTarget implements Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpSection struct {
	title string
	keys  [][2]string
}

var helpSections = []helpSection{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"/", "Filter contacts"},
		{"?", "Help"},
		{"Esc", "Cancel / Go back"},
		{"q", "Quit"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Contacts", [][2]string{
		{"Enter", "Open chat"},
		{"1-9", "Open Nth contact"},
		{"0", "Clear filter"},
		{"j/k", "Move down / up"},
	}},
	{"Chat", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send message (in composer)"},
		{"o / PgUp", "Load older messages"},
		{"r", "Reload history"},
		{"d", "Contact details"},
		{"s", "Share link as QR code"},
	}},
	{"Commands (: mode)", [][2]string{
		{":chat <name>", "Open chat by name or id"},
		{":attach <path>", "Send a file to the active chat"},
		{":add <username>", "Send a friend request"},
		{":older", "Load older messages"},
		{":reload", "Reload history"},
		{":link", "Show the link of the active chat"},
		{":qr", "Share the active chat as QR code"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit application"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, k := range s.keys {
			fmt.Fprintf(&b, "  [%s]%-16s[-:-:-] %s\n", kc, tview.Escape(k[0]), k[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
