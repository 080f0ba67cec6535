package messaging

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/database"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "messaging.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLStore(db)
}

type fixture struct {
	store     *SQLStore
	clock     *clock.Fake
	publisher *fakePublisher
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newTestStore(t),
		clock:     clock.NewFake(testEpoch),
		publisher: &fakePublisher{},
	}
	f.service = NewService(f.store, f.publisher, f.clock, 0, nil)
	return f
}

// opsRoom creates a broadcast owned by user 1 with members 2 and 3
func (f *fixture) opsRoom(t *testing.T) *ConversationDetail {
	t.Helper()
	title := "Ops Room"
	conv, err := f.service.CreateConversation(context.Background(), 1, &CreateConversationRequest{
		Kind:      KindBroadcast,
		Title:     &title,
		MemberIDs: []int64{2, 3},
	})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	f.clock.Advance(time.Second)
	return conv
}

func (f *fixture) send(t *testing.T, sender, conversationID int64, body string) *Message {
	t.Helper()
	msg, err := f.service.SendMessage(context.Background(), sender, conversationID, body)
	if err != nil {
		t.Fatalf("SendMessage(%d, %q) error = %v", sender, body, err)
	}
	return msg
}

type fakePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *fakePublisher) Publish(_ context.Context, evt realtime.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *fakePublisher) snapshot() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events...)
}

func decodeMessage(t *testing.T, data json.RawMessage) Message {
	t.Helper()
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode message payload %s: %v", data, err)
	}
	return m
}
