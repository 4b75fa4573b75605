package model

import (
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/conversation"
	"github.com/matheus3301/chatline/internal/selection"
	"github.com/matheus3301/chatline/internal/status"
)

func TestApply(t *testing.T) {
	vm := NewViewModel(nil, "http://host/chat")
	snap := &conversation.Snapshot{
		Phase:    conversation.Ready,
		Contacts: []chat.Contact{{ID: "8", UnreadCount: 2}, {ID: "9", UnreadCount: 3}},
	}

	tests := []struct {
		name   string
		evt    bus.Event
		redraw bool
	}{
		{"snapshot", bus.Event{Kind: bus.KindViewUpdated, Payload: snap}, true},
		{"status", bus.Event{Kind: bus.KindTransport, Payload: status.StatusChange{From: status.Connecting, To: status.Connected}}, true},
		{"selection", bus.Event{Kind: bus.KindSelection, Payload: selection.Change{ContactID: "8", Location: "http://host/chat?contact_id=8"}}, true},
		{"notice", bus.Event{Kind: bus.KindNoticeWarn, Payload: bus.Notice{Text: "cannot connect to realtime service"}}, true},
		{"contact", bus.Event{Kind: bus.KindContact, Payload: chat.Contact{ID: "8"}}, false},
		{"bad payload", bus.Event{Kind: bus.KindViewUpdated, Payload: "x"}, false},
	}
	for _, tt := range tests {
		if got := vm.Apply(tt.evt); got != tt.redraw {
			t.Errorf("%s: Apply() = %v, want %v", tt.name, got, tt.redraw)
		}
	}

	if vm.Snapshot() != snap {
		t.Error("snapshot not stored")
	}
	if vm.Status() != status.Connected {
		t.Errorf("Status() = %s", vm.Status())
	}
	if vm.Location() != "http://host/chat?contact_id=8" {
		t.Errorf("Location() = %q", vm.Location())
	}
	if vm.Unread() != 5 {
		t.Errorf("Unread() = %d, want 5", vm.Unread())
	}
	if vm.Flash.Get() != "cannot connect to realtime service" {
		t.Errorf("flash = %q", vm.Flash.Get())
	}
}

func TestAttach(t *testing.T) {
	b := bus.New()
	vm := NewViewModel(nil, "")
	stop := vm.Attach(b)
	defer stop()

	m := status.NewMachine(b)
	if err := m.Transition(status.Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case <-vm.RefreshCh():
	case <-time.After(time.Second):
		t.Fatal("no refresh signalled")
	}
	if vm.Status() != status.Connecting {
		t.Errorf("Status() = %s", vm.Status())
	}
	stop()
	stop()
}
