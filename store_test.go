package serialchat

import (
	"fmt"
	"testing"
	"time"
)

func testMessage(port, text string, dir Direction, ts time.Time) Message {
	msg := NewMessage(port, []byte(text), dir)
	msg.Timestamp = ts
	return msg
}

func TestStoreAppendCap(t *testing.T) {
	s := NewMessageStore()
	base := time.Now()
	for i := 0; i < MaxMessagesPerPort+50; i++ {
		s.Append(testMessage("COM1", fmt.Sprintf("m%d", i), DirectionReceived, base.Add(time.Duration(i))))
	}

	if got := s.Count("COM1"); got != MaxMessagesPerPort {
		t.Fatalf("count = %d, want %d", got, MaxMessagesPerPort)
	}
	msgs := s.Messages("COM1")
	if got := msgs[0].Text(); got != "m50" {
		t.Fatalf("oldest surviving message = %q, want m50", got)
	}
	if got := msgs[len(msgs)-1].Text(); got != fmt.Sprintf("m%d", MaxMessagesPerPort+49) {
		t.Fatalf("newest message = %q", got)
	}
}

func TestStoreGroupHistoryUncapped(t *testing.T) {
	s := NewMessageStore()
	for i := 0; i < MaxMessagesPerPort+10; i++ {
		s.AppendGroup("g1", NewMessage("COM1", []byte("x"), DirectionReceived))
	}
	if got := s.GroupCount("g1"); got != MaxMessagesPerPort+10 {
		t.Fatalf("group count = %d, want %d", got, MaxMessagesPerPort+10)
	}
}

func TestStoreMessagesLimit(t *testing.T) {
	s := NewMessageStore()
	base := time.Now()
	for i := 0; i < 10; i++ {
		s.Append(testMessage("COM1", fmt.Sprintf("m%d", i), DirectionSent, base.Add(time.Duration(i))))
	}

	got := s.MessagesLimit("COM1", 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Text() != "m7" || got[2].Text() != "m9" {
		t.Fatalf("unexpected window: %q..%q", got[0].Text(), got[2].Text())
	}

	if got := s.MessagesLimit("COM1", 0); len(got) != 10 {
		t.Fatalf("non-positive limit should return everything, got %d", len(got))
	}
}

func TestStoreLastMessage(t *testing.T) {
	s := NewMessageStore()
	if last := s.LastMessage("COM1"); !last.IsZero() {
		t.Fatalf("expected zero sentinel for empty history, got %+v", last)
	}
	s.Append(NewMessage("COM1", []byte("first"), DirectionSent))
	s.Append(NewMessage("COM1", []byte("second"), DirectionReceived))
	if last := s.LastMessage("COM1"); last.Text() != "second" {
		t.Fatalf("last = %q, want second", last.Text())
	}
}

func TestStoreClearIsScoped(t *testing.T) {
	s := NewMessageStore()
	s.Append(NewMessage("COM1", []byte("a"), DirectionSent))
	s.Append(NewMessage("COM2", []byte("b"), DirectionSent))
	s.AppendGroup("g1", NewMessage("COM1", []byte("c"), DirectionReceived))

	s.Clear("COM1")
	if s.Count("COM1") != 0 {
		t.Fatal("COM1 history should be empty")
	}
	if s.Count("COM2") != 1 || s.GroupCount("g1") != 1 {
		t.Fatal("clearing one port must not touch other histories")
	}

	s.ClearGroup("g1")
	if s.GroupCount("g1") != 0 || s.Count("COM2") != 1 {
		t.Fatal("clearing a group must not touch port histories")
	}

	s.ClearAll()
	if s.TotalCount() != 0 {
		t.Fatal("expected empty store after ClearAll")
	}
}

func TestStoreAllMessagesSorted(t *testing.T) {
	s := NewMessageStore()
	base := time.Now()
	s.Append(testMessage("COM2", "late", DirectionSent, base.Add(2*time.Second)))
	s.Append(testMessage("COM1", "early", DirectionSent, base))
	s.Append(testMessage("COM2", "middle", DirectionReceived, base.Add(time.Second)))
	s.AppendGroup("g1", testMessage("COM1", "grouped", DirectionReceived, base))

	all := s.AllMessagesSorted()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3 (group histories excluded)", len(all))
	}
	if all[0].Text() != "early" || all[1].Text() != "middle" || all[2].Text() != "late" {
		t.Fatalf("wrong order: %q %q %q", all[0].Text(), all[1].Text(), all[2].Text())
	}
}

func TestStoreSortIsStableForEqualTimestamps(t *testing.T) {
	s := NewMessageStore()
	ts := time.Now()
	s.Append(testMessage("COM1", "a", DirectionSent, ts))
	s.Append(testMessage("COM1", "b", DirectionSent, ts))
	s.Append(testMessage("COM1", "c", DirectionSent, ts))

	all := s.AllMessagesSorted()
	if all[0].Text() != "a" || all[1].Text() != "b" || all[2].Text() != "c" {
		t.Fatalf("equal timestamps must keep insertion order, got %q %q %q",
			all[0].Text(), all[1].Text(), all[2].Text())
	}
}

func TestStoreLoadMessagesAppliesCap(t *testing.T) {
	s := NewMessageStore()
	msgs := make([]Message, MaxMessagesPerPort+5)
	for i := range msgs {
		msgs[i] = NewMessage("COM1", []byte(fmt.Sprintf("m%d", i)), DirectionReceived)
	}
	s.LoadMessages("COM1", msgs)
	if got := s.Count("COM1"); got != MaxMessagesPerPort {
		t.Fatalf("count = %d, want %d", got, MaxMessagesPerPort)
	}
	if got := s.Messages("COM1")[0].Text(); got != "m5" {
		t.Fatalf("oldest after load = %q, want m5", got)
	}
}
