package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Crumbs is the breadcrumb bar under the pages. A page can carry a label
// (the chat page shows the contact name); pages without one show their name.
type Crumbs struct {
	*tview.TextView
	theme  *Theme
	labels map[string]string
	stack  []string
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
		labels:   make(map[string]string),
	}
}

// SetLabel sets the text shown for page and redraws the trail.
func (c *Crumbs) SetLabel(page, label string) {
	if c.labels[page] == label {
		return
	}
	c.labels[page] = label
	c.Update(c.stack)
}

// Update renders the trail for stack, root first.
func (c *Crumbs) Update(stack []string) {
	c.stack = append(c.stack[:0], stack...)
	c.Clear()

	parts := make([]string, 0, len(stack))
	for i, page := range stack {
		text := page
		if l := c.labels[page]; l != "" {
			text = l
		}
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]",
			ColorName(fg), ColorName(bg), attr, tview.Escape(text)))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " > "))
}

// ColorName returns a tview-compatible color tag for c.
func ColorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
