package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/render"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// ContactList is the roster table.
type ContactList struct {
	*tview.Table
	theme    *ui.Theme
	contacts []chat.Contact
	visible  []chat.Contact
	active   string
	filter   string
	now      func() time.Time
}

// NewContactList creates a new contact list table.
func NewContactList(theme *ui.Theme) *ContactList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Contacts ")
	table.SetTitleColor(theme.TitleColor)

	return &ContactList{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
}

// Name implements Component.
func (cl *ContactList) Name() string { return "Contacts" }

// Init implements Component.
func (cl *ContactList) Init() {}

// Start implements Component.
func (cl *ContactList) Start() {}

// Stop implements Component.
func (cl *ContactList) Stop() {}

// FocusTarget implements Component.
func (cl *ContactList) FocusTarget() tview.Primitive { return cl }

// Hints implements Component.
func (cl *ContactList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list. Contacts arrive ordered by last activity.
func (cl *ContactList) Update(contacts []chat.Contact, activeID string) {
	cl.contacts = contacts
	cl.active = activeID
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ContactList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ContactList) ClearFilter() {
	cl.filter = ""
	cl.render()
}

// Filter returns the active filter text.
func (cl *ContactList) Filter() string { return cl.filter }

func (cl *ContactList) matches(c chat.Contact) bool {
	return cl.filter == "" ||
		containsFold(c.Name(), cl.filter) ||
		containsFold(c.ID, cl.filter) ||
		containsFold(c.LastMessagePreview, cl.filter)
}

func (cl *ContactList) render() {
	selected := cl.SelectedContact()
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	cl.visible = cl.visible[:0]
	now := cl.now()
	for _, c := range cl.contacts {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		dot := "[" + ui.ColorName(cl.theme.MutedColor) + "]○[-]"
		if c.Online {
			dot = "[" + ui.ColorName(cl.theme.OnlineColor) + "]●[-]"
		}
		name := fmt.Sprintf(" %s %s", dot, tview.Escape(render.Sanitize(c.Name())))
		if c.ID == cl.active {
			name = "[::b]" + name + "[::-]"
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = strconv.Itoa(c.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(name).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(render.Sanitize(c.LastMessagePreview))).SetExpansion(2).SetMaxWidth(48).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastMessageAt, now)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(unread).SetTextColor(cl.theme.UnreadColor).SetAlign(tview.AlignRight))
	}

	// Keep the cursor on the same contact across refreshes.
	for i, c := range cl.visible {
		if c.ID == selected {
			cl.Select(i+1, 0)
			break
		}
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Contacts (%d/%d) filter: %s ", len(cl.visible), len(cl.contacts), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Contacts (%d) ", len(cl.contacts)))
	}
}

// SelectedContact returns the id of the contact under the cursor.
func (cl *ContactList) SelectedContact() string {
	row, _ := cl.GetSelection()
	return cl.ContactByIndex(row)
}

// ContactByIndex returns the id of the Nth visible contact (1-based).
func (cl *ContactList) ContactByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ID
}
