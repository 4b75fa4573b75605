package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages keeps a navigation stack over tview.Pages. Only the top page is
// visible; onChange receives a copy of the stack after every change.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pushing the current page is a no-op.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	p.hideTop()
	p.stack = append(p.stack, name)
	p.raise(name)
}

// Pop removes the top page and returns it. The root page is never popped;
// Pop returns empty there.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.Current()
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.raise(p.Current())
	return top
}

// Replace swaps the top page for name, keeping the pages below it.
func (p *Pages) Replace(name string) {
	if len(p.stack) == 0 {
		p.Reset(name)
		return
	}
	p.hideTop()
	p.stack[len(p.stack)-1] = name
	p.raise(name)
}

// Reset clears the stack and shows only the given page.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.raise(name)
}

// Current returns the name of the top page, empty when the stack is empty.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the page stack, root first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

func (p *Pages) hideTop() {
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
}

func (p *Pages) raise(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
