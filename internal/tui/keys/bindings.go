package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Hint returns the menu hint of the action.
func (a *Action) Hint() ui.MenuHint {
	label := a.Label
	if label == "" && a.Key == tcell.KeyRune {
		label = string(a.Rune)
	}
	return ui.MenuHint{Key: label, Description: a.Description}
}

type binding struct {
	name   string
	action *Action
}

// Registry holds keybindings organized by scope. Bindings are kept in
// registration order, which is also the order of their hints.
type Registry struct {
	global []binding
	views  map[string][]binding
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{
		views: make(map[string][]binding),
	}
}

// AddGlobal registers a global keybinding, replacing one with the same name.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers a view-specific keybinding, replacing one with the same name.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = upsert(r.views[view], name, action)
}

func upsert(bs []binding, name string, action *Action) []binding {
	for i := range bs {
		if bs[i].name == name {
			bs[i].action = action
			return bs
		}
	}
	return append(bs, binding{name: name, action: action})
}

// Hints returns visible keybinding hints for a given view: view bindings
// first, then globals.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, b := range r.views[view] {
		if b.action.Visible {
			hints = append(hints, b.action.Hint())
		}
	}
	for _, b := range r.global {
		if b.action.Visible {
			hints = append(hints, b.action.Hint())
		}
	}
	return hints
}

// HandleEvent dispatches a key event to matching action in the given view.
// Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	// Check view-specific bindings first.
	for _, b := range r.views[view] {
		if b.action.Matches(ev) {
			b.action.Handler()
			return true
		}
	}
	for _, b := range r.global {
		if b.action.Matches(ev) {
			b.action.Handler()
			return true
		}
	}
	return false
}
