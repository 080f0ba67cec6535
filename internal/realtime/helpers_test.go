package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSub struct {
	id   string
	user int64

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
	notify chan struct{}
}

func newFakeSub(id string, user int64) *fakeSub {
	return &fakeSub{id: id, user: user, notify: make(chan struct{}, 64)}
}

func (s *fakeSub) ID() string    { return s.id }
func (s *fakeSub) UserID() int64 { return s.user }

func (s *fakeSub) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClientClosed
	}
	if s.full {
		return ErrSendBufferFull
	}
	s.frames = append(s.frames, payload)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeSub) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSub) events(t *testing.T) []Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]Event, 0, len(s.frames))
	for _, f := range s.frames {
		var evt Event
		if err := json.Unmarshal(f, &evt); err != nil {
			t.Fatalf("invalid frame %s: %v", f, err)
		}
		events = append(events, evt)
	}
	return events
}

func (s *fakeSub) waitFrame(t *testing.T) {
	t.Helper()
	select {
	case <-s.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

type fakeMembership map[[2]int64]bool

func (m fakeMembership) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	return m[[2]int64{conversationID, userID}], nil
}

// loopbackRelay delivers every published payload back to its subscriber.
type loopbackRelay struct {
	ch chan []byte
}

func newLoopbackRelay() *loopbackRelay {
	return &loopbackRelay{ch: make(chan []byte, 64)}
}

func (r *loopbackRelay) Publish(_ context.Context, payload []byte) error {
	r.ch <- payload
	return nil
}

func (r *loopbackRelay) Subscribe(ctx context.Context, handler func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-r.ch:
			handler(payload)
		}
	}
}

type failingRelay struct{}

func (failingRelay) Publish(context.Context, []byte) error { return errors.New("redis down") }

func (failingRelay) Subscribe(ctx context.Context, _ func([]byte)) error {
	<-ctx.Done()
	return ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) PublishGlobal(ctx context.Context, evt Event) {
	p.Publish(ctx, evt)
}

func (p *recordingPublisher) snapshot() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func (p *recordingPublisher) count(eventType EventType) int {
	n := 0
	for _, evt := range p.snapshot() {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}
