package selection

import (
	"errors"
	"strings"
	"testing"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/conversation"
)

type fakeTarget struct {
	contacts []chat.Contact
	selected []string
	err      error
}

func (f *fakeTarget) Select(id string) error {
	if f.err != nil {
		return f.err
	}
	f.selected = append(f.selected, id)
	return nil
}

func (f *fakeTarget) Snapshot() *conversation.Snapshot {
	return &conversation.Snapshot{Contacts: f.contacts}
}

type memCheckpoints map[string]string

func (m memCheckpoints) SetState(key, value string) error {
	m[key] = value
	return nil
}

func (m memCheckpoints) GetState(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

const page = "http://127.0.0.1:39399/chat"

func newController(t *testing.T, store Checkpoints) (*Controller, *fakeTarget) {
	t.Helper()
	target := &fakeTarget{contacts: []chat.Contact{{ID: "8", DisplayName: "Alice"}, {ID: "9"}}}
	c, err := New(page, target, store, bus.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return c, target
}

func TestClickSelectsAndUpdatesLocation(t *testing.T) {
	store := memCheckpoints{}
	c, target := newController(t, store)
	var seen []string
	c.OnLocationChange(func(loc string) { seen = append(seen, loc) })

	if err := c.Click("8"); err != nil {
		t.Fatal(err)
	}

	want := page + "?contact_id=8"
	if c.Location() != want {
		t.Errorf("Location() = %q, want %q", c.Location(), want)
	}
	if len(seen) != 1 || seen[0] != want {
		t.Errorf("listener saw %v", seen)
	}
	if len(target.selected) != 1 || target.selected[0] != "8" {
		t.Errorf("selected = %v", target.selected)
	}
	if store[CheckpointKey] != "8" {
		t.Errorf("checkpoint = %q", store[CheckpointKey])
	}
}

func TestClickUnknown(t *testing.T) {
	c, target := newController(t, nil)
	if err := c.Click("404"); !errors.Is(err, ErrUnknownContact) {
		t.Errorf("Click() = %v, want ErrUnknownContact", err)
	}
	if len(target.selected) != 0 {
		t.Error("unknown contact was selected")
	}
	if c.Location() != page {
		t.Errorf("location changed to %q", c.Location())
	}
}

func TestClickSelectError(t *testing.T) {
	c, target := newController(t, nil)
	target.err = conversation.ErrStopped
	if err := c.Click("8"); !errors.Is(err, conversation.ErrStopped) {
		t.Errorf("Click() = %v", err)
	}
	if c.Location() != page {
		t.Error("location must not change when selection fails")
	}
}

func TestFromLink(t *testing.T) {
	tests := []struct {
		name     string
		link     string
		selected bool
	}{
		{"full url", page + "?contact_id=9", true},
		{"bare query", "?contact_id=8", true},
		{"no question mark", "contact_id=8", true},
		{"unknown contact", page + "?contact_id=404", false},
		{"no contact", page, false},
		{"empty id", page + "?contact_id=", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, target := newController(t, nil)
			selected, err := c.FromLink(tt.link)
			if err != nil {
				t.Fatal(err)
			}
			want := 0
			if tt.selected {
				want = 1
			}
			if selected != tt.selected || len(target.selected) != want {
				t.Errorf("FromLink(%q) = %v, selections %v", tt.link, selected, target.selected)
			}
		})
	}
}

func TestStartPrefersLinkThenCheckpoint(t *testing.T) {
	store := memCheckpoints{CheckpointKey: "9"}

	c, target := newController(t, store)
	if err := c.Start(page + "?contact_id=8"); err != nil {
		t.Fatal(err)
	}
	if len(target.selected) != 1 || target.selected[0] != "8" {
		t.Errorf("with link: selected %v", target.selected)
	}

	c, target = newController(t, memCheckpoints{CheckpointKey: "9"})
	if err := c.Start(""); err != nil {
		t.Fatal(err)
	}
	if len(target.selected) != 1 || target.selected[0] != "9" {
		t.Errorf("from checkpoint: selected %v", target.selected)
	}

	c, target = newController(t, memCheckpoints{CheckpointKey: "404"})
	if err := c.Start(page + "?contact_id=405"); err != nil {
		t.Fatal(err)
	}
	if len(target.selected) != 0 {
		t.Errorf("stale checkpoint selected %v", target.selected)
	}
}

func TestSelectionPublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("selection.", 1)
	defer unsub()
	target := &fakeTarget{contacts: []chat.Contact{{ID: "8"}}}
	c, err := New(page, target, nil, b, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Click("8"); err != nil {
		t.Fatal(err)
	}
	evt := <-ch
	if got := evt.Payload.(Change); got.ContactID != "8" || got.Location != c.Location() {
		t.Errorf("payload = %+v", got)
	}
}

func TestShareQR(t *testing.T) {
	c, _ := newController(t, nil)
	qr, err := c.ShareQR("8")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(qr, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("qr has %d rows", len(lines))
	}
	if !strings.ContainsAny(qr, "█▀▄") {
		t.Error("qr has no blocks")
	}
	if _, err := c.ShareQR(" "); err == nil {
		t.Error("ShareQR(blank) should fail")
	}
}

func TestParseLink(t *testing.T) {
	id, err := ParseLink("http://host/chat?x=1&contact_id=%2042")
	if err != nil {
		t.Fatal(err)
	}
	if id != "42" {
		t.Errorf("ParseLink() = %q, want 42", id)
	}
	if _, err := ParseLink("http://[::1"); err == nil {
		t.Error("ParseLink(bad url) should fail")
	}
}

func TestLinkRoundTrip(t *testing.T) {
	link, err := Link(page, "8")
	if err != nil {
		t.Fatal(err)
	}
	if link != page+"?contact_id=8" {
		t.Errorf("Link() = %q", link)
	}
	if id, _ := ParseLink(link); id != "8" {
		t.Errorf("ParseLink(Link()) = %q, want 8", id)
	}
}
