package serialchat

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRouter(t *testing.T, names ...string) (*GroupRouter, *Registry, *MessageStore, *stubTransport) {
	t.Helper()
	st := newStubTransport(t, names...)
	r := NewRegistry(zerolog.Nop())
	t.Cleanup(r.Close)
	store := NewMessageStore()
	return NewGroupRouter(r, store, zerolog.Nop()), r, store, st
}

func TestRouterGroupLifecycle(t *testing.T) {
	rt, _, _, _ := newTestRouter(t, "A")

	g := rt.CreateGroup("lab", "bench gear")
	if g.ID == "" || !g.ForwardingEnabled {
		t.Fatalf("unexpected group: %+v", g)
	}

	if !rt.AddMember(g.ID, "A") {
		t.Fatal("add member failed")
	}
	if rt.AddMember(g.ID, "A") {
		t.Fatal("duplicate member add must report false")
	}
	if rt.AddMember("missing", "A") {
		t.Fatal("unknown group must report false")
	}
	if rt.MemberCount(g.ID) != 1 {
		t.Fatalf("count = %d", rt.MemberCount(g.ID))
	}

	if !rt.SetGroupInfo(g.ID, "lab2", "renamed") {
		t.Fatal("set info failed")
	}
	got, ok := rt.Group(g.ID)
	if !ok || got.Name != "lab2" || got.Description != "renamed" {
		t.Fatalf("group after rename: %+v", got)
	}

	if !rt.RemoveMember(g.ID, "A") || rt.RemoveMember(g.ID, "A") {
		t.Fatal("remove member semantics wrong")
	}
	if !rt.RemoveGroup(g.ID) || rt.RemoveGroup(g.ID) {
		t.Fatal("remove group semantics wrong")
	}
}

func TestRouterGroupsKeepCreationOrder(t *testing.T) {
	rt, _, _, _ := newTestRouter(t, "A")
	first := rt.CreateGroup("first", "")
	second := rt.CreateGroup("second", "")

	groups := rt.Groups()
	if len(groups) != 2 || groups[0].ID != first.ID || groups[1].ID != second.ID {
		t.Fatalf("order lost: %v", groups)
	}
}

func TestRouterForwardsToOnlineMembers(t *testing.T) {
	rt, r, store, st := newTestRouter(t, "A", "B", "C")

	for _, name := range []string{"A", "B", "C"} {
		r.GetOrCreateHandle(name)
	}
	if err := r.Connect("A"); err != nil {
		t.Fatalf("connect A: %v", err)
	}
	if err := r.Connect("B"); err != nil {
		t.Fatalf("connect B: %v", err)
	}
	// C stays offline

	g := rt.CreateGroup("lab", "")
	rt.AddMember(g.ID, "A")
	rt.AddMember(g.ID, "B")
	rt.AddMember(g.ID, "C")

	type fwdEvent struct{ from, to string }
	forwarded := make(chan fwdEvent, 4)
	rt.OnMessageForwarded(func(from, to string, msg Message) {
		forwarded <- fwdEvent{from, to}
	})

	inbound := NewMessage("A", []byte("reading"), DirectionReceived)
	rt.handleInbound("A", inbound)

	select {
	case ev := <-forwarded:
		if ev.from != "A" || ev.to != "B" {
			t.Fatalf("forward event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no forward event")
	}

	if got := string(st.current("B").lastWrite()); got != "reading" {
		t.Fatalf("B wire payload = %q", got)
	}
	if st.current("A").writeCount() != 0 {
		t.Fatal("source port must not receive its own message")
	}

	history := store.GroupMessages(g.ID)
	if len(history) != 2 {
		t.Fatalf("group history = %d entries, want original + forwarded", len(history))
	}
	if !history[0].Equal(inbound) || history[1].Direction != DirectionSent {
		t.Fatalf("history: %+v", history)
	}
	if r.Metrics().MessagesForwarded.Load() != 1 {
		t.Fatalf("forwarded counter = %d", r.Metrics().MessagesForwarded.Load())
	}
}

func TestRouterForwardingDisabledStillRecords(t *testing.T) {
	rt, r, store, st := newTestRouter(t, "A", "B")

	r.GetOrCreateHandle("A")
	if err := r.Connect("B"); err != nil {
		t.Fatalf("connect B: %v", err)
	}

	g := rt.CreateGroup("quiet", "")
	rt.AddMember(g.ID, "A")
	rt.AddMember(g.ID, "B")
	rt.SetForwardingEnabled(g.ID, false)

	rt.handleInbound("A", NewMessage("A", []byte("x"), DirectionReceived))

	if st.current("B").writeCount() != 0 {
		t.Fatal("disabled group must not forward")
	}
	if store.GroupCount(g.ID) != 1 {
		t.Fatalf("history = %d, want the original only", store.GroupCount(g.ID))
	}
}

func TestRouterNonMemberMessagesIgnored(t *testing.T) {
	rt, r, store, _ := newTestRouter(t, "A", "B")
	r.GetOrCreateHandle("A")

	g := rt.CreateGroup("lab", "")
	rt.AddMember(g.ID, "B")

	rt.handleInbound("A", NewMessage("A", []byte("noise"), DirectionReceived))
	if store.GroupCount(g.ID) != 0 {
		t.Fatal("messages from non-members must not enter the group history")
	}
}

func TestRouterMultiGroupFanout(t *testing.T) {
	rt, r, store, _ := newTestRouter(t, "A")
	r.GetOrCreateHandle("A")

	g1 := rt.CreateGroup("one", "")
	g2 := rt.CreateGroup("two", "")
	rt.AddMember(g1.ID, "A")
	rt.AddMember(g2.ID, "A")

	rt.handleInbound("A", NewMessage("A", []byte("shared"), DirectionReceived))
	if store.GroupCount(g1.ID) != 1 || store.GroupCount(g2.ID) != 1 {
		t.Fatal("every group containing the source must record the message")
	}
}

func TestRouterForwardFailureIsBestEffort(t *testing.T) {
	rt, r, store, st := newTestRouter(t, "A", "B", "C")

	for _, name := range []string{"A", "B", "C"} {
		if err := r.Connect(name); err != nil {
			t.Fatalf("connect %s: %v", name, err)
		}
	}

	g := rt.CreateGroup("lab", "")
	rt.AddMember(g.ID, "A")
	rt.AddMember(g.ID, "B")
	rt.AddMember(g.ID, "C")

	// take B offline mid-roster so the fanout has to skip it
	r.Disconnect("B")

	rt.handleInbound("A", NewMessage("A", []byte("ping"), DirectionReceived))

	if got := string(st.current("C").lastWrite()); got != "ping" {
		t.Fatalf("C must still receive the forward, got %q", got)
	}
	// original + one successful forward
	if store.GroupCount(g.ID) != 2 {
		t.Fatalf("history = %d", store.GroupCount(g.ID))
	}
}

func TestRouterEndToEndThroughRegistry(t *testing.T) {
	rt, r, store, st := newTestRouter(t, "A", "B")

	if err := r.Connect("A"); err != nil {
		t.Fatalf("connect A: %v", err)
	}
	if err := r.Connect("B"); err != nil {
		t.Fatalf("connect B: %v", err)
	}

	g := rt.CreateGroup("live", "")
	rt.AddMember(g.ID, "A")
	rt.AddMember(g.ID, "B")

	st.current("A").readCh <- []byte("hello group")

	waitFor(t, "forward to B", func() bool {
		return string(st.current("B").lastWrite()) == "hello group"
	})
	waitFor(t, "group history", func() bool {
		return store.GroupCount(g.ID) == 2
	})
}
