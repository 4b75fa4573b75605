package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // true for 0-9 shortcuts (displayed in a different color)
}

// Component is a page of the TUI. Start and Stop bracket the time it is
// on top of the page stack.
type Component interface {
	tview.Primitive
	Name() string
	Init()
	Start()
	Stop()
	Hints() []MenuHint
	// FocusTarget is the primitive that takes focus when the page is shown.
	FocusTarget() tview.Primitive
}
