package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("transport.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindTransport, Payload: "connected"})

	select {
	case evt := <-ch:
		if evt.Kind != KindTransport {
			t.Errorf("got kind %q, want %s", evt.Kind, KindTransport)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("notice.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindViewUpdated})
	b.Notify(KindNoticeWarn, "cannot connect to realtime service")

	select {
	case evt := <-ch:
		if evt.Kind != KindNoticeWarn {
			t.Errorf("got kind %q, want %s", evt.Kind, KindNoticeWarn)
		}
		n, ok := evt.Payload.(Notice)
		if !ok || n.Text != "cannot connect to realtime service" {
			t.Errorf("payload = %#v, want notice text", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("view.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: KindViewUpdated})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("outbox.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindOutboxSent, Payload: "one"})
	b.Publish(Event{Kind: KindOutboxSent, Payload: "two"})

	evt := <-ch
	if evt.Payload != "one" {
		t.Errorf("got %v, want one", evt.Payload)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindViewUpdated})
}
