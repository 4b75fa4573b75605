package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matheus3301/chatline/internal/chat"
)

const viewer = "7"

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestState() *State {
	return NewState(Options{
		ViewerID:       viewer,
		ViewerUsername: "me",
		Retry:          true,
		Now:            func() time.Time { return t0.Add(time.Hour) },
	})
}

func in(id, from string, minute int) chat.Message {
	return chat.Message{
		ID: id, SenderID: from, RecipientID: viewer, SenderUsername: "u" + from,
		Content: "c" + id, Timestamp: t0.Add(time.Duration(minute) * time.Minute), Status: chat.Confirmed,
	}
}

func out(id, to string, minute int) chat.Message {
	return chat.Message{
		ID: id, SenderID: viewer, RecipientID: to,
		Content: "c" + id, Timestamp: t0.Add(time.Duration(minute) * time.Minute), Status: chat.Confirmed,
	}
}

func ids(msgs []chat.Message) []string {
	res := make([]string, len(msgs))
	for i, m := range msgs {
		res[i] = m.ID
	}
	return res
}

// ready selects contact and completes the initial load with msgs.
func ready(t *testing.T, s *State, contact string, msgs ...chat.Message) {
	t.Helper()
	s.SelectContact(contact)
	s.HistoryLoaded(contact, s.Seq(), msgs)
	if s.Phase() != Ready {
		t.Fatalf("phase = %s, want READY", s.Phase())
	}
}

func commandsOf[T Command](cmds []Command) []T {
	var res []T
	for _, c := range cmds {
		if v, ok := c.(T); ok {
			res = append(res, v)
		}
	}
	return res
}

func TestSelectContactFetchesOnceAndResetsUnread(t *testing.T) {
	s := newTestState()
	s.SetContacts([]chat.Contact{{ID: "8", DisplayName: "Alice", UnreadCount: 3}})

	cmds := s.SelectContact("8")

	fetches := commandsOf[FetchInitial](cmds)
	if len(fetches) != 1 || fetches[0].ContactID != "8" || fetches[0].Seq != s.Seq() {
		t.Fatalf("fetch commands = %+v", fetches)
	}
	if s.Phase() != Loading {
		t.Errorf("phase = %s, want LOADING", s.Phase())
	}
	snap := s.Snapshot()
	if snap.Active.UnreadCount != 0 || snap.ActiveID != "8" {
		t.Errorf("active = %+v", snap.Active)
	}
	persisted := commandsOf[PersistContact](cmds)
	if len(persisted) != 1 || persisted[0].Contact.UnreadCount != 0 {
		t.Errorf("persist commands = %+v", persisted)
	}
}

func TestHistoryLoadedSortsAscending(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("3", "8", 3), in("1", "8", 1), out("2", "8", 2))

	if diff := cmp.Diff([]string{"1", "2", "3"}, ids(s.Snapshot().Messages)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestStaleFetchDiscarded(t *testing.T) {
	s := newTestState()

	s.SelectContact("A")
	seqA := s.Seq()
	s.SelectContact("B")
	seqB := s.Seq()

	// B completes first, then A's late reply arrives.
	s.HistoryLoaded("B", seqB, []chat.Message{in("b1", "B", 1)})
	s.HistoryLoaded("A", seqA, []chat.Message{in("a1", "A", 1)})

	snap := s.Snapshot()
	if snap.ActiveID != "B" {
		t.Fatalf("active = %q, want B", snap.ActiveID)
	}
	if diff := cmp.Diff([]string{"b1"}, ids(snap.Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}

	// Same contact, older request.
	s.SelectContact("B")
	s.HistoryLoaded("B", seqB, []chat.Message{in("old", "B", 1)})
	if s.Phase() != Loading {
		t.Errorf("stale result for the same contact completed the load")
	}
}

func TestHistoryFailedKeepsLoadingUntilReload(t *testing.T) {
	s := newTestState()
	s.SelectContact("8")

	cmds := s.HistoryFailed("8", s.Seq(), errors.New("boom"))
	if s.Phase() != Loading {
		t.Errorf("phase = %s, want LOADING", s.Phase())
	}
	if s.Snapshot().LoadErr == nil {
		t.Error("LoadErr should be recorded")
	}
	if len(commandsOf[Notify](cmds)) != 1 {
		t.Errorf("expected one notice, got %+v", cmds)
	}
	if got := commandsOf[FetchInitial](cmds); len(got) != 0 {
		t.Error("failure must not retry automatically")
	}

	retry := commandsOf[FetchInitial](s.Reload())
	if len(retry) != 1 || retry[0].ContactID != "8" {
		t.Fatalf("Reload() = %+v", retry)
	}
	s.HistoryLoaded("8", retry[0].Seq, []chat.Message{in("1", "8", 1)})
	if s.Phase() != Ready || s.Snapshot().LoadErr != nil {
		t.Errorf("reload did not recover: phase=%s err=%v", s.Phase(), s.Snapshot().LoadErr)
	}
}

func TestReceiveAppendsForActive(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("1", "8", 1))

	for i, id := range []string{"2", "3", "4"} {
		s.Receive(in(id, "8", 10+i))
		if got := len(s.Snapshot().Messages); got != i+2 {
			t.Fatalf("after receive %s: %d messages, want %d", id, got, i+2)
		}
	}
	if s.Snapshot().Active.UnreadCount != 0 {
		t.Error("active contact must keep zero unread")
	}
}

func TestReceiveForeignIncrementsUnread(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("1", "8", 1))

	for i := 0; i < 3; i++ {
		s.Receive(in("x"+string(rune('a'+i)), "9", 5+i))
	}
	s.Receive(out("mine", "9", 9))

	snap := s.Snapshot()
	c, ok := snap.Contact("9")
	if !ok {
		t.Fatal("unknown sender should be added to the roster")
	}
	if c.UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", c.UnreadCount)
	}
	if c.LastMessagePreview != "cmine" {
		t.Errorf("preview = %q, want cmine", c.LastMessagePreview)
	}
	if c.DisplayName != "u9" {
		t.Errorf("display name = %q, want u9", c.DisplayName)
	}
	if diff := cmp.Diff([]string{"1"}, ids(snap.Messages)); diff != "" {
		t.Errorf("active conversation changed (-want +got):\n%s", diff)
	}
	if snap.Contacts[0].ID != "9" {
		t.Errorf("most recent contact first, got %q", snap.Contacts[0].ID)
	}
}

func TestReceiveDuplicateIgnored(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("1", "8", 1))

	s.Receive(in("1", "8", 1))
	s.Receive(in("2", "8", 2))
	s.Receive(in("2", "8", 2))

	if diff := cmp.Diff([]string{"1", "2"}, ids(s.Snapshot().Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestLiveMessagesDuringLoadAreMerged(t *testing.T) {
	s := newTestState()
	s.SelectContact("8")
	seq := s.Seq()

	s.Receive(in("3", "8", 3))
	s.Receive(in("9", "8", 9))
	s.HistoryLoaded("8", seq, []chat.Message{in("1", "8", 1), in("3", "8", 3)})

	if diff := cmp.Diff([]string{"1", "3", "9"}, ids(s.Snapshot().Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestSendRequiresReady(t *testing.T) {
	s := newTestState()
	if _, _, err := s.Send("hi", nil); !errors.Is(err, chat.ErrNotReady) {
		t.Errorf("Send() in Idle = %v, want ErrNotReady", err)
	}
	s.SelectContact("8")
	if _, _, err := s.Send("hi", nil); !errors.Is(err, chat.ErrNotReady) {
		t.Errorf("Send() in Loading = %v, want ErrNotReady", err)
	}
	s.HistoryLoaded("8", s.Seq(), nil)
	if _, _, err := s.Send("   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send(blank) = %v, want ErrEmptyMessage", err)
	}
}

func TestSendEchoesAndEmits(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("1", "8", 1))

	m, cmds, err := s.Send(" hello ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsTemp() || m.Status != chat.Sent || m.Content != "hello" || m.RecipientID != "8" {
		t.Errorf("temp message = %+v", m)
	}
	emits := commandsOf[Emit](cmds)
	if len(emits) != 1 || emits[0].Message.ID != m.ID {
		t.Fatalf("emit commands = %+v", emits)
	}
	msgs := s.Snapshot().Messages
	if msgs[len(msgs)-1].ID != m.ID {
		t.Error("temp message should be appended")
	}
}

func TestSendAttachmentOnly(t *testing.T) {
	s := newTestState()
	ready(t, s, "8")

	m, _, err := s.Send("", &chat.Attachment{ID: "5", Filename: "a.png"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Content != "[文件] a.png" {
		t.Errorf("content = %q", m.Content)
	}
}

func TestSelfEchoReplacesTemp(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("1", "8", 1))

	temp, _, _ := s.Send("hello", nil)
	s.Receive(in("2", "8", 70))

	echo := chat.Message{
		ID: "100", SenderID: viewer, RecipientID: "8", Content: "hello",
		Timestamp: temp.Timestamp.Truncate(time.Minute), Status: chat.Confirmed,
	}
	s.Receive(echo)

	got := s.Snapshot().Messages
	if diff := cmp.Diff([]string{"1", "100", "2"}, ids(got)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
	if got[1].Status != chat.Confirmed {
		t.Errorf("status = %s, want confirmed", got[1].Status)
	}

	// A second identical echo is a duplicate, not a new message.
	s.Receive(echo)
	if len(s.Snapshot().Messages) != 3 {
		t.Error("duplicate echo appended")
	}
}

func TestEchoOutsideWindowAppends(t *testing.T) {
	s := newTestState()
	ready(t, s, "8")

	temp, _, _ := s.Send("hello", nil)
	s.Receive(chat.Message{
		ID: "100", SenderID: viewer, RecipientID: "8", Content: "hello",
		Timestamp: temp.Timestamp.Add(10 * time.Minute), Status: chat.Confirmed,
	})
	if diff := cmp.Diff([]string{temp.ID, "100"}, ids(s.Snapshot().Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestSendFailedMarksAndQueues(t *testing.T) {
	s := newTestState()
	ready(t, s, "8")

	m, _, _ := s.Send("hello", nil)
	cmds := s.SendFailed(m, &chat.NotConnectedError{Event: chat.EventSendMessage})

	got := s.Snapshot().Messages[0]
	if got.Status != chat.Failed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	retries := commandsOf[QueueRetry](cmds)
	if len(retries) != 1 || retries[0].Message.ID != m.ID {
		t.Errorf("retry commands = %+v", retries)
	}
	notices := commandsOf[Notify](cmds)
	if len(notices) != 1 || notices[0].Text != "message not sent: not connected, will retry" {
		t.Errorf("notices = %+v", notices)
	}

	s.SendDelivered(m.ID)
	if s.Snapshot().Messages[0].Status != chat.Sent {
		t.Error("delivered retry should flip the message to sent")
	}
}

func TestRedeliveredEchoReplacesTemp(t *testing.T) {
	s := newTestState()
	ready(t, s, "8")

	temp, _, _ := s.Send("hello", nil)
	s.SendFailed(temp, &chat.NotConnectedError{Event: chat.EventSendMessage})
	s.SendDelivered(temp.ID)

	// The server stamps the echo when the outbox finally reaches it.
	s.Receive(chat.Message{
		ID: "900", SenderID: viewer, RecipientID: "8", Content: "hello",
		Timestamp: temp.Timestamp.Add(2 * time.Minute), Status: chat.Confirmed,
	})
	msgs := s.Snapshot().Messages
	if diff := cmp.Diff([]string{"900"}, ids(msgs)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
	if msgs[0].Status != chat.Confirmed {
		t.Errorf("status = %s, want confirmed", msgs[0].Status)
	}
}

func TestSendFailedWithoutRetry(t *testing.T) {
	s := NewState(Options{ViewerID: viewer})
	ready(t, s, "8")

	m, _, _ := s.Send("hello", nil)
	cmds := s.SendFailed(m, errors.New("x"))
	if len(commandsOf[QueueRetry](cmds)) != 0 {
		t.Error("retry disabled but QueueRetry emitted")
	}
	s.SendAbandoned(m.ID, "gone")
	if s.Snapshot().Messages[0].Status != chat.Failed {
		t.Error("abandoned message should stay failed")
	}
}

func TestLoadOlder(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("10", "8", 10), in("11", "8", 11))

	cmds := s.LoadOlder()
	older := commandsOf[FetchOlder](cmds)
	if len(older) != 1 || older[0].BeforeID != "10" {
		t.Fatalf("LoadOlder() = %+v", cmds)
	}
	if again := s.LoadOlder(); len(again) != 0 {
		t.Error("second LoadOlder while in flight should be a no-op")
	}

	s.OlderLoaded("8", older[0].Seq, []chat.Message{in("8", "8", 8), in("9", "8", 9), in("10", "8", 10)})
	if diff := cmp.Diff([]string{"8", "9", "10", "11"}, ids(s.Snapshot().Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestEmptyOlderBatchExhausts(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("1", "8", 1))

	older := commandsOf[FetchOlder](s.LoadOlder())
	before := s.Snapshot().Messages
	s.OlderLoaded("8", older[0].Seq, nil)

	snap := s.Snapshot()
	if !snap.Exhausted {
		t.Error("empty batch should mark the conversation exhausted")
	}
	if diff := cmp.Diff(before, snap.Messages); diff != "" {
		t.Errorf("messages changed (-want +got):\n%s", diff)
	}
	if cmds := s.LoadOlder(); len(cmds) != 0 {
		t.Errorf("LoadOlder after exhaustion = %+v, want none", cmds)
	}
}

func TestOlderForInactiveContactDiscarded(t *testing.T) {
	s := newTestState()
	ready(t, s, "A", in("a5", "A", 5))
	older := commandsOf[FetchOlder](s.LoadOlder())

	ready(t, s, "B", in("b5", "B", 5))
	s.OlderLoaded("A", older[0].Seq, []chat.Message{in("a1", "A", 1)})

	if diff := cmp.Diff([]string{"b5"}, ids(s.Snapshot().Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestOlderFailedAllowsRetry(t *testing.T) {
	s := newTestState()
	ready(t, s, "8", in("1", "8", 1))

	older := commandsOf[FetchOlder](s.LoadOlder())
	s.OlderFailed("8", older[0].Seq, errors.New("timeout"))
	if len(commandsOf[FetchOlder](s.LoadOlder())) != 1 {
		t.Error("LoadOlder should be possible again after a failure")
	}
}

func TestPresence(t *testing.T) {
	s := newTestState()
	s.SetContacts([]chat.Contact{{ID: "8"}})

	if cmds := s.Presence(chat.Presence{UserID: "8", Online: true}); len(cmds) != 1 {
		t.Errorf("presence change should persist, got %+v", cmds)
	}
	if cmds := s.Presence(chat.Presence{UserID: "8", Online: true}); len(cmds) != 0 {
		t.Error("unchanged presence should be a no-op")
	}
	if cmds := s.Presence(chat.Presence{UserID: "unknown", Online: true}); len(cmds) != 0 {
		t.Error("presence for unknown contacts is ignored")
	}
	s.SelectContact("8")
	if !s.Snapshot().Active.Online {
		t.Error("active contact should be online")
	}
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{Idle, Loading, true},
		{Idle, Ready, false},
		{Loading, Loading, true},
		{Loading, Ready, true},
		{Ready, Loading, true},
		{Ready, Idle, false},
	}
	for _, tt := range tests {
		s := &State{phase: tt.from}
		err := s.transition(tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}
}
