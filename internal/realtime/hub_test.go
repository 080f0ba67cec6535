package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func messageEvent(conversationID int64, seq int) Event {
	return NewEvent(EventMessageCreated, conversationID, map[string]int{"seq": seq}, t0)
}

func seqOf(t *testing.T, evt Event) int {
	t.Helper()
	var data struct {
		Seq int `json:"seq"`
	}
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatal(err)
	}
	return data.Seq
}

func joinedHub(t *testing.T, subs ...*fakeSub) *Hub {
	t.Helper()
	members := fakeMembership{}
	for _, s := range subs {
		members[[2]int64{10, s.user}] = true
	}
	h := NewHub(members, nil, nil)
	for _, s := range subs {
		h.Register(s)
		if err := h.Join(context.Background(), s, 10); err != nil {
			t.Fatalf("Join(%s) error = %v", s.id, err)
		}
	}
	return h
}

func TestHubPublishInOrderIncludingSender(t *testing.T) {
	sender := newFakeSub("a", 1)
	other := newFakeSub("b", 2)
	h := joinedHub(t, sender, other)

	for i := 1; i <= 3; i++ {
		h.Publish(context.Background(), messageEvent(10, i))
	}

	for _, s := range []*fakeSub{sender, other} {
		events := s.events(t)
		if len(events) != 3 {
			t.Fatalf("%s received %d events, want 3", s.id, len(events))
		}
		for i, evt := range events {
			if evt.Type != EventMessageCreated || evt.ConversationID != 10 {
				t.Errorf("%s event %d = %+v", s.id, i, evt)
			}
			if seqOf(t, evt) != i+1 {
				t.Errorf("%s event %d has seq %d", s.id, i, seqOf(t, evt))
			}
		}
	}
}

func TestHubConcurrentPublishersShareOneOrder(t *testing.T) {
	a := newFakeSub("a", 1)
	b := newFakeSub("b", 2)
	h := joinedHub(t, a, b)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				h.Publish(context.Background(), messageEvent(10, p*100+i))
			}
		}(p)
	}
	wg.Wait()

	ea, eb := a.events(t), b.events(t)
	if len(ea) != 200 || len(eb) != 200 {
		t.Fatalf("received %d and %d events, want 200 each", len(ea), len(eb))
	}
	for i := range ea {
		if seqOf(t, ea[i]) != seqOf(t, eb[i]) {
			t.Fatalf("subscribers diverge at %d: %d vs %d", i, seqOf(t, ea[i]), seqOf(t, eb[i]))
		}
	}
}

func TestHubExcludeUser(t *testing.T) {
	typist := newFakeSub("a", 1)
	typistPhone := newFakeSub("a2", 1)
	other := newFakeSub("b", 2)
	h := joinedHub(t, typist, typistPhone, other)

	evt := NewEvent(EventTypingStarted, 10, TypingChange{ConversationID: 10, UserID: 1}, t0)
	evt.ExcludeUserID = 1
	h.Publish(context.Background(), evt)

	if n := len(typist.events(t)) + len(typistPhone.events(t)); n != 0 {
		t.Errorf("excluded user received %d events", n)
	}
	if n := len(other.events(t)); n != 1 {
		t.Errorf("other user received %d events, want 1", n)
	}
}

func TestHubJoinRequiresParticipant(t *testing.T) {
	outsider := newFakeSub("x", 99)
	member := newFakeSub("m", 1)
	h := joinedHub(t, member)
	h.Register(outsider)

	err := h.Join(context.Background(), outsider, 10)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("Join() error = %v, want forbidden", err)
	}
	if h.IsJoined(outsider, 10) {
		t.Error("outsider was added to the room")
	}

	h.Publish(context.Background(), messageEvent(10, 1))
	if n := len(outsider.events(t)); n != 0 {
		t.Errorf("outsider received %d events", n)
	}
}

func TestHubJoinLeaveIdempotent(t *testing.T) {
	s := newFakeSub("a", 1)
	h := joinedHub(t, s)

	if err := h.Join(context.Background(), s, 10); err != nil {
		t.Fatalf("second Join() error = %v", err)
	}
	h.Publish(context.Background(), messageEvent(10, 1))
	if n := len(s.events(t)); n != 1 {
		t.Fatalf("received %d events after double join, want 1", n)
	}

	h.Leave(s, 10)
	h.Leave(s, 10)
	if h.IsJoined(s, 10) {
		t.Error("still joined after Leave")
	}
	h.Publish(context.Background(), messageEvent(10, 2))
	if n := len(s.events(t)); n != 1 {
		t.Errorf("received %d events after leave, want 1", n)
	}
}

func TestHubJoinUnregistered(t *testing.T) {
	s := newFakeSub("a", 1)
	h := NewHub(fakeMembership{{10, 1}: true}, nil, nil)

	if err := h.Join(context.Background(), s, 10); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Join() error = %v, want invalid", err)
	}
}

func TestHubDropsFullSubscriber(t *testing.T) {
	slow := newFakeSub("slow", 1)
	fast := newFakeSub("fast", 2)
	h := joinedHub(t, slow, fast)
	slow.full = true

	h.Publish(context.Background(), messageEvent(10, 1))

	if n := len(fast.events(t)); n != 1 {
		t.Errorf("healthy subscriber received %d events, want 1", n)
	}
	if n := len(slow.events(t)); n != 0 {
		t.Errorf("full subscriber received %d events", n)
	}
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	s := newFakeSub("a", 1)
	h := joinedHub(t, s)

	h.Unregister(s)
	h.Unregister(s)
	if h.IsJoined(s, 10) || h.ActiveConnections() != 0 {
		t.Error("subscriber still tracked after Unregister")
	}
	h.Publish(context.Background(), messageEvent(10, 1))
	if n := len(s.events(t)); n != 0 {
		t.Errorf("unregistered subscriber received %d events", n)
	}
}

func TestHubPublishGlobal(t *testing.T) {
	joined := newFakeSub("a", 1)
	lobby := newFakeSub("b", 2)
	h := joinedHub(t, joined)
	h.Register(lobby)

	h.PublishGlobal(context.Background(), NewEvent(EventPresenceChanged, 0, PresenceChange{UserID: 3, Status: StatusOnline}, t0))

	for _, s := range []*fakeSub{joined, lobby} {
		events := s.events(t)
		if len(events) != 1 || events[0].Type != EventPresenceChanged {
			t.Errorf("%s events = %+v", s.id, events)
		}
	}
}

func TestHubRelayFailureFallsBackToLocal(t *testing.T) {
	s := newFakeSub("a", 1)
	h := NewHub(fakeMembership{{10, 1}: true}, failingRelay{}, nil)
	h.Register(s)
	if err := h.Join(context.Background(), s, 10); err != nil {
		t.Fatal(err)
	}

	h.Publish(context.Background(), messageEvent(10, 1))
	if n := len(s.events(t)); n != 1 {
		t.Errorf("received %d events, want local delivery of 1", n)
	}
}

func TestHubRelayRoundTrip(t *testing.T) {
	s := newFakeSub("a", 1)
	other := newFakeSub("b", 2)
	h := NewHub(fakeMembership{{10, 1}: true, {10, 2}: true}, newLoopbackRelay(), nil)
	h.Start(context.Background())
	defer h.Close()

	for _, sub := range []*fakeSub{s, other} {
		h.Register(sub)
		if err := h.Join(context.Background(), sub, 10); err != nil {
			t.Fatal(err)
		}
	}

	evt := NewEvent(EventTypingStarted, 10, TypingChange{ConversationID: 10, UserID: 1}, t0)
	evt.ExcludeUserID = 1
	h.Publish(context.Background(), evt)
	h.Publish(context.Background(), messageEvent(10, 7))

	other.waitFrame(t)
	other.waitFrame(t)
	s.waitFrame(t)

	got := other.events(t)
	if len(got) != 2 || got[0].Type != EventTypingStarted || got[1].Type != EventMessageCreated {
		t.Errorf("other events = %+v", got)
	}
	if mine := s.events(t); len(mine) != 1 || mine[0].Type != EventMessageCreated {
		t.Errorf("exclusion not carried over relay: %+v", mine)
	}
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	subs := make([]*fakeSub, 3)
	for i := range subs {
		subs[i] = newFakeSub(fmt.Sprintf("s%d", i), int64(i+1))
	}
	h := joinedHub(t, subs...)
	h.Close()

	for _, s := range subs {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			t.Errorf("%s not closed", s.id)
		}
	}
}
