package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

func TestOpsRoomUnreadAndLastMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)

	if len(conv.Participants) != 3 {
		t.Fatalf("participants = %d, want 3", len(conv.Participants))
	}
	if conv.Participants[0].UserID != 1 || conv.Participants[0].Role != RoleOwner {
		t.Errorf("first participant = %+v, want owner 1", conv.Participants[0])
	}

	f.send(t, 1, conv.ID, "hello")
	f.clock.Advance(time.Second)
	f.send(t, 2, conv.ID, "ack")

	summaries, err := f.service.ListConversations(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("ListConversations() = %d entries, want 1", len(summaries))
	}
	got := summaries[0]
	if got.UnreadCount != 2 {
		t.Errorf("unread for user 3 = %d, want 2", got.UnreadCount)
	}
	if got.LastMessage == nil || got.LastMessage.Body != "ack" {
		t.Errorf("last message = %+v, want ack", got.LastMessage)
	}
	if !got.LastActivityAt.Equal(testEpoch.Add(2 * time.Second)) {
		t.Errorf("last activity = %v", got.LastActivityAt)
	}

	// own messages never count as unread
	unread, err := f.service.UnreadCount(ctx, 1, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread.UnreadCount != 1 {
		t.Errorf("unread for user 1 = %d, want 1", unread.UnreadCount)
	}

	if _, err := f.service.MarkRead(ctx, 3, conv.ID); err != nil {
		t.Fatal(err)
	}
	unread, err = f.service.UnreadCount(ctx, 3, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread.UnreadCount != 0 {
		t.Errorf("unread after MarkRead = %d, want 0", unread.UnreadCount)
	}

	f.clock.Advance(time.Second)
	f.send(t, 2, conv.ID, "status update")
	unread, _ = f.service.UnreadCount(ctx, 3, conv.ID)
	if unread.UnreadCount != 1 {
		t.Errorf("unread after new message = %d, want 1", unread.UnreadCount)
	}

	events := f.publisher.snapshot()
	if len(events) != 3 {
		t.Fatalf("published %d events, want 3", len(events))
	}
	for i, body := range []string{"hello", "ack", "status update"} {
		if events[i].Type != realtime.EventMessageCreated || events[i].ConversationID != conv.ID {
			t.Errorf("event %d = %s/%d", i, events[i].Type, events[i].ConversationID)
		}
		if m := decodeMessage(t, events[i].Data); m.Body != body {
			t.Errorf("event %d body = %q, want %q", i, m.Body, body)
		}
	}
}

func TestEditAndDeleteAreSenderOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)
	msg := f.send(t, 1, conv.ID, "evacuate sector 4")

	_, err := f.service.EditMessage(ctx, 2, msg.ID, "tampered")
	if !errors.Is(err, ErrNotSender) || !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("EditMessage() by other user error = %v, want ErrNotSender", err)
	}
	_, err = f.service.DeleteMessage(ctx, 2, msg.ID)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("DeleteMessage() by other user error = %v, want Forbidden", err)
	}

	stored, err := f.store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Body != "evacuate sector 4" || stored.EditedAt != nil || stored.IsDeleted {
		t.Errorf("message mutated by rejected calls: %+v", stored)
	}

	f.clock.Advance(time.Second)
	edited, err := f.service.EditMessage(ctx, 1, msg.ID, "evacuate sector 5")
	if err != nil {
		t.Fatalf("EditMessage() by sender error = %v", err)
	}
	if edited.Body != "evacuate sector 5" || edited.EditedAt == nil {
		t.Errorf("edited = %+v", edited)
	}

	deleted, err := f.service.DeleteMessage(ctx, 1, msg.ID)
	if err != nil {
		t.Fatalf("DeleteMessage() by sender error = %v", err)
	}
	if !deleted.IsDeleted || deleted.Body != "" || deleted.DeletedAt == nil {
		t.Errorf("deleted = %+v", deleted)
	}

	if _, err := f.service.DeleteMessage(ctx, 1, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("second DeleteMessage() error = %v, want ErrMessageNotFound", err)
	}
	if _, err := f.service.EditMessage(ctx, 1, msg.ID, "again"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("EditMessage() after delete error = %v, want NotFound", err)
	}
	if _, err := f.service.EditMessage(ctx, 1, 9999, "x"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("EditMessage() on absent message error = %v, want NotFound", err)
	}

	history, err := f.service.ListMessages(ctx, 3, conv.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || !history[0].IsDeleted || history[0].Body != "" {
		t.Errorf("history = %+v, want one deleted marker", history)
	}

	var types []realtime.EventType
	for _, evt := range f.publisher.snapshot() {
		types = append(types, evt.Type)
	}
	want := []realtime.EventType{realtime.EventMessageCreated, realtime.EventMessageUpdated, realtime.EventMessageDeleted}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestListMessagesPagesChronologically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)

	// m1 and m2 share a timestamp; id breaks the tie
	m1 := f.send(t, 1, conv.ID, "m1")
	m2 := f.send(t, 2, conv.ID, "m2")
	f.clock.Advance(time.Millisecond)
	m3 := f.send(t, 1, conv.ID, "m3")
	f.clock.Advance(time.Millisecond)
	m4 := f.send(t, 3, conv.ID, "m4")
	f.clock.Advance(time.Millisecond)
	m5 := f.send(t, 1, conv.ID, "m5")

	page := func(before int64) []int64 {
		t.Helper()
		msgs, err := f.service.ListMessages(ctx, 2, conv.ID, 2, before)
		if err != nil {
			t.Fatalf("ListMessages(before=%d) error = %v", before, err)
		}
		ids := make([]int64, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		return ids
	}

	cases := []struct {
		before int64
		want   []int64
	}{
		{0, []int64{m4.ID, m5.ID}},
		{m4.ID, []int64{m2.ID, m3.ID}},
		{m2.ID, []int64{m1.ID}},
		{m1.ID, []int64{}},
	}
	for _, tc := range cases {
		got := page(tc.before)
		if len(got) != len(tc.want) {
			t.Errorf("before=%d: got %v, want %v", tc.before, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("before=%d: got %v, want %v", tc.before, got, tc.want)
				break
			}
		}
	}

	if _, err := f.service.ListMessages(ctx, 2, conv.ID, 2, 9999); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("unknown cursor error = %v, want ErrMessageNotFound", err)
	}
}

func TestParticipancyChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)

	if _, err := f.service.GetConversation(ctx, 1, 9999); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("GetConversation(absent) error = %v", err)
	}
	if _, err := f.service.GetConversation(ctx, 9, conv.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("GetConversation(outsider) error = %v", err)
	}
	if _, err := f.service.SendMessage(ctx, 9, conv.ID, "hi"); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("SendMessage(outsider) error = %v", err)
	}
	if _, err := f.service.SendMessage(ctx, 1, 9999, "hi"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("SendMessage(absent conversation) error = %v", err)
	}
	if _, err := f.service.ListMessages(ctx, 9, conv.ID, 10, 0); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("ListMessages(outsider) error = %v", err)
	}
	if _, err := f.service.MarkRead(ctx, 9, conv.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("MarkRead(outsider) error = %v", err)
	}
	if _, err := f.service.MarkRead(ctx, 1, 9999); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("MarkRead(absent) error = %v", err)
	}
	if len(f.publisher.snapshot()) != 0 {
		t.Error("rejected operations published events")
	}

	ok, err := f.service.IsParticipant(ctx, conv.ID, 3)
	if err != nil || !ok {
		t.Errorf("IsParticipant(3) = %v, %v", ok, err)
	}
	ok, _ = f.service.IsParticipant(ctx, conv.ID, 9)
	if ok {
		t.Error("IsParticipant(9) = true")
	}
}

func TestAddParticipantOwnerOnlyAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)

	if _, err := f.service.AddParticipant(ctx, 2, conv.ID, 4); !errors.Is(err, ErrNotOwner) {
		t.Errorf("AddParticipant() by member error = %v, want ErrNotOwner", err)
	}
	if _, err := f.service.AddParticipant(ctx, 9, conv.ID, 4); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("AddParticipant() by outsider error = %v, want ErrNotParticipant", err)
	}
	if _, err := f.service.AddParticipant(ctx, 1, 9999, 4); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("AddParticipant() on absent conversation error = %v", err)
	}

	first, err := f.service.AddParticipant(ctx, 1, conv.ID, 4)
	if err != nil {
		t.Fatal(err)
	}
	if first.Role != RoleMember || !first.LastReadAt.Equal(first.JoinedAt) {
		t.Errorf("added participant = %+v", first)
	}

	f.clock.Advance(time.Minute)
	again, err := f.service.AddParticipant(ctx, 1, conv.ID, 4)
	if err != nil {
		t.Fatalf("second AddParticipant() error = %v", err)
	}
	if !again.JoinedAt.Equal(first.JoinedAt) {
		t.Errorf("re-adding changed joined_at: %v -> %v", first.JoinedAt, again.JoinedAt)
	}

	// re-adding the owner keeps the owner role
	owner, err := f.service.AddParticipant(ctx, 1, conv.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if owner.Role != RoleOwner {
		t.Errorf("owner role = %s after re-add", owner.Role)
	}
}

func TestCreateConversationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	incident := int64(77)

	cases := []struct {
		name    string
		req     CreateConversationRequest
		wantErr error
	}{
		{"direct chat without peer", CreateConversationRequest{Kind: KindDirectChat}, ErrDirectChatMembers},
		{"direct chat with self only", CreateConversationRequest{Kind: KindDirectChat, MemberIDs: []int64{1}}, ErrDirectChatMembers},
		{"direct chat with two peers", CreateConversationRequest{Kind: KindDirectChat, MemberIDs: []int64{2, 3}}, ErrDirectChatMembers},
		{"incident room without incident", CreateConversationRequest{Kind: KindIncidentLinked}, ErrIncidentRequired},
		{"unknown kind", CreateConversationRequest{Kind: "group"}, errs.ErrInvalid},
		{"bad member id", CreateConversationRequest{Kind: KindBroadcast, MemberIDs: []int64{-4}}, errs.ErrInvalid},
		{"direct chat with duplicate peer", CreateConversationRequest{Kind: KindDirectChat, MemberIDs: []int64{2, 2, 1}}, nil},
		{"incident room", CreateConversationRequest{Kind: KindIncidentLinked, IncidentID: &incident}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			detail, err := f.service.CreateConversation(ctx, 1, &req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if detail.Kind != req.Kind {
				t.Errorf("kind = %s", detail.Kind)
			}
			if req.Kind == KindDirectChat && len(detail.Participants) != 2 {
				t.Errorf("direct chat participants = %d, want 2", len(detail.Participants))
			}
		})
	}
}

func TestMessageBodyValidation(t *testing.T) {
	f := newFixture(t)
	f.service = NewService(f.store, f.publisher, f.clock, 5, nil)
	ctx := context.Background()
	conv := f.opsRoom(t)

	if _, err := f.service.SendMessage(ctx, 1, conv.ID, "   "); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("blank body error = %v", err)
	}
	_, err := f.service.SendMessage(ctx, 1, conv.ID, "toolong")
	if !errors.Is(err, errs.ErrInvalid) || !strings.Contains(err.Error(), "5") {
		t.Errorf("long body error = %v", err)
	}
	// length is counted in characters
	if _, err := f.service.SendMessage(ctx, 1, conv.ID, "héllo"); err != nil {
		t.Errorf("5-character body error = %v", err)
	}
}

func TestUnreadIgnoresDeletedMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)

	f.send(t, 1, conv.ID, "one")
	doomed := f.send(t, 1, conv.ID, "two")
	if _, err := f.service.DeleteMessage(ctx, 1, doomed.ID); err != nil {
		t.Fatal(err)
	}

	unread, err := f.service.UnreadCount(ctx, 2, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", unread.UnreadCount)
	}
}

func TestUnreadBreaksSameMillisecondTiesByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)

	// the clock does not move: send, read and send share one millisecond
	f.send(t, 1, conv.ID, "status?")
	if _, err := f.service.MarkRead(ctx, 2, conv.ID); err != nil {
		t.Fatal(err)
	}
	f.send(t, 1, conv.ID, "still there?")

	unread, err := f.service.UnreadCount(ctx, 2, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 (message after the read mark)", unread.UnreadCount)
	}

	summaries, err := f.service.ListConversations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].UnreadCount != 1 {
		t.Errorf("summary unread = %+v, want 1", summaries)
	}

	if _, err := f.service.MarkRead(ctx, 2, conv.ID); err != nil {
		t.Fatal(err)
	}
	unread, err = f.service.UnreadCount(ctx, 2, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread.UnreadCount != 0 {
		t.Errorf("unread after second read = %d, want 0", unread.UnreadCount)
	}
}

func TestMarkReadNeverMovesBackwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.opsRoom(t)

	later := testEpoch.Add(10 * time.Second)
	if _, err := f.store.MarkRead(ctx, conv.ID, 2, later); err != nil {
		t.Fatal(err)
	}
	p, err := f.store.MarkRead(ctx, conv.ID, 2, testEpoch.Add(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !p.LastReadAt.Equal(later) {
		t.Errorf("last_read_at = %v, want %v", p.LastReadAt, later)
	}
}

func TestListConversationsOrdersByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := f.opsRoom(t)
	newer, err := f.service.CreateConversation(ctx, 1, &CreateConversationRequest{Kind: KindDirectChat, MemberIDs: []int64{2}})
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Second)

	summaries, err := f.service.ListConversations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 || summaries[0].ID != newer.ID {
		t.Fatalf("initial order wrong: first = %d, want %d", summaries[0].ID, newer.ID)
	}
	if summaries[0].LastMessage != nil {
		t.Error("empty conversation has a last message")
	}

	f.send(t, 3, older.ID, "bump")
	summaries, err = f.service.ListConversations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if summaries[0].ID != older.ID {
		t.Errorf("after new message first = %d, want %d", summaries[0].ID, older.ID)
	}
	if summaries[0].Role != RoleMember {
		t.Errorf("role = %s, want member", summaries[0].Role)
	}
}
