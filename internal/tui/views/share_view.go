package views

import (
	"fmt"

	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// ShareView shows a contact's deep link as a QR code.
type ShareView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewShareView creates a new share view.
func NewShareView(theme *ui.Theme) *ShareView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Share ")
	tv.SetTitleColor(theme.TitleColor)

	return &ShareView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (sv *ShareView) Name() string { return "Share" }

// Init implements Component.
func (sv *ShareView) Init() {}

// Start implements Component.
func (sv *ShareView) Start() {}

// Stop implements Component.
func (sv *ShareView) Stop() {}

// FocusTarget implements Component.
func (sv *ShareView) FocusTarget() tview.Primitive { return sv }

// Hints implements Component.
func (sv *ShareView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Show renders the QR code above the link it encodes.
func (sv *ShareView) Show(name, qr, link string) {
	sv.Clear()
	lc := ui.ColorName(sv.theme.LinkColor)
	_, _ = fmt.Fprintf(sv, "\nScan to open the chat with %s\n\n", tview.Escape(name))
	_, _ = fmt.Fprint(sv, qr)
	_, _ = fmt.Fprintf(sv, "\n[%s::u]%s[-:-:-]\n", lc, tview.Escape(link))
	sv.ScrollToBeginning()
}

// ShowMessage replaces the view content with a plain message.
func (sv *ShareView) ShowMessage(msg string) {
	sv.Clear()
	_, _ = fmt.Fprintf(sv, "\n\n%s", tview.Escape(msg))
}
