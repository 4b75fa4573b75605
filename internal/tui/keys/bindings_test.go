package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestHandleEventPrefersView(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.AddView("chat", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "view" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if !r.HandleEvent("chat", ev) || got != "view" {
		t.Errorf("chat view: handled by %q, want view", got)
	}
	if !r.HandleEvent("contacts", ev) || got != "global" {
		t.Errorf("contacts view: handled by %q, want global", got)
	}
	if r.HandleEvent("contacts", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	called := false
	r.AddGlobal("older", &Action{Key: tcell.KeyPgUp, Handler: func() { called = true }})

	if !r.HandleEvent("chat", tcell.NewEventKey(tcell.KeyPgUp, 0, tcell.ModNone)) || !called {
		t.Error("PgUp not dispatched")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true})
	r.AddGlobal("hidden", &Action{Key: tcell.KeyRune, Rune: 'z', Description: "Hidden"})
	r.AddView("chat", "compose", &Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true})
	r.AddView("chat", "older", &Action{Key: tcell.KeyPgUp, Label: "PgUp", Description: "Older", Visible: true})
	r.AddView("chat", "compose", &Action{Key: tcell.KeyRune, Rune: 'i', Description: "Write", Visible: true})

	hints := r.Hints("chat")
	want := []string{"i:Write", "PgUp:Older", "q:Quit"}
	if len(hints) != len(want) {
		t.Fatalf("Hints() = %+v", hints)
	}
	for i, h := range hints {
		if got := h.Key + ":" + h.Description; got != want[i] {
			t.Errorf("hint %d = %q, want %q", i, got, want[i])
		}
	}
}
