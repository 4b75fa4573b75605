package sync

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMigrated(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var at = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func TestEngineIngestContact(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	c := chat.Contact{ID: "8", DisplayName: "Alice", Online: true, LastMessagePreview: strings.Repeat("你", 150), LastMessageAt: at, UnreadCount: 2}
	if err := e.IngestContact(c); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := e.IngestContact(c); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetContact("8")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("contact not stored")
	}
	if got.LastMessageAt != at.UnixMilli() || got.UnreadCount != 2 || !got.Online {
		t.Errorf("stored = %+v", got)
	}
	if n := len([]rune(got.LastMessagePreview)); n != previewLen {
		t.Errorf("preview has %d runes, want %d", n, previewLen)
	}
}

func TestEngineConsumesBus(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)
	e.Start(context.Background())

	b.Publish(bus.Event{Kind: bus.KindContact, Payload: chat.Contact{ID: "8", UnreadCount: 1}})
	b.Publish(bus.Event{Kind: bus.KindContact, Payload: chat.Contact{ID: "8", UnreadCount: 3}})
	b.Publish(bus.Event{Kind: bus.KindContact, Payload: "not a contact"})
	b.Publish(bus.Event{Kind: bus.KindContact, Payload: chat.Contact{ID: "9", DisplayName: "Bob"}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := db.ContactCount()
		if err != nil {
			t.Fatal(err)
		}
		c, err := db.GetContact("8")
		if err != nil {
			t.Fatal(err)
		}
		if n == 2 && c != nil && c.UnreadCount == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("contacts not persisted: count=%d contact=%+v", n, c)
		}
		time.Sleep(10 * time.Millisecond)
	}
	e.Stop()
}

func TestEngineStopFlushes(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)
	e.Start(context.Background())

	for i := 0; i < 20; i++ {
		b.Publish(bus.Event{Kind: bus.KindContact, Payload: chat.Contact{ID: "8", UnreadCount: i}})
	}
	e.Stop()

	c, err := db.GetContact("8")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.UnreadCount != 19 {
		t.Errorf("contact = %+v, want unread 19", c)
	}
}

func TestReconcilerRoster(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertContact(&store.Contact{ID: "8", DisplayName: "Alice", Online: true, LastMessageAt: at.UnixMilli(), UnreadCount: 4}); err != nil {
		t.Fatal(err)
	}
	r := NewReconciler(db, nil)

	roster, err := r.Roster([]chat.Contact{{ID: "8", DisplayName: "Renamed"}, {ID: "9", DisplayName: "Bob"}, {ID: ""}})
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 2 {
		t.Fatalf("roster = %+v", roster)
	}
	first := roster[0]
	if first.ID != "8" || first.DisplayName != "Alice" || first.Online || first.UnreadCount != 4 || !first.LastMessageAt.Equal(at) {
		t.Errorf("stored contact = %+v", first)
	}
	if roster[1].ID != "9" || roster[1].DisplayName != "Bob" || !roster[1].LastMessageAt.IsZero() {
		t.Errorf("seeded contact = %+v", roster[1])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"你好世界", 2, "你好"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
