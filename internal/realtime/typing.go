// internal/realtime/typing.go
// Debounced typing indicators per (conversation, user)

package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
)

const (
	DefaultTypingTimeout     = 6 * time.Second
	DefaultTypingRebroadcast = 3 * time.Second
)

// RoomPublisher delivers an event to a conversation room
type RoomPublisher interface {
	Publish(ctx context.Context, evt Event)
}

type typingKey struct {
	conversationID int64
	userID         int64
}

type typingState struct {
	active        bool
	gen           uint64
	timeout       clock.Timer
	lastBroadcast time.Time
}

// Typing tracks who is typing where. An indicator clears itself when no
// Start arrives within the timeout.
type Typing struct {
	entries     *keyedState[typingKey, typingState]
	events      outbox
	timeout     time.Duration
	rebroadcast time.Duration
	clock       clock.Clock
	publisher   RoomPublisher
	logger      *zap.Logger
}

// NewTyping creates a coordinator. Non-positive durations select the defaults.
func NewTyping(publisher RoomPublisher, timeout, rebroadcast time.Duration, clk clock.Clock, logger *zap.Logger) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	if rebroadcast <= 0 {
		rebroadcast = DefaultTypingRebroadcast
	}
	if clk == nil {
		clk = clock.New()
	}
	logger = logging.OrNop(logger)
	return &Typing{
		entries:     newKeyedState[typingKey, typingState](),
		timeout:     timeout,
		rebroadcast: rebroadcast,
		clock:       clk,
		publisher:   publisher,
		logger:      logger.Named("typing"),
	}
}

// Start marks the user as typing and re-arms the timeout
func (t *Typing) Start(conversationID, userID int64) {
	key := typingKey{conversationID: conversationID, userID: userID}
	t.entries.update(key, func(s *typingState) bool {
		now := t.clock.Now()
		if !s.active || now.Sub(s.lastBroadcast) >= t.rebroadcast {
			s.active = true
			s.lastBroadcast = now
			t.emit(key, EventTypingStarted)
		}

		if s.timeout != nil {
			s.timeout.Stop()
		}
		s.gen++
		gen := s.gen
		s.timeout = t.clock.AfterFunc(t.timeout, func() { t.expire(key, gen) })
		return false
	})
	t.flush()
}

// Stop clears the indicator. Stopping an idle user does nothing.
func (t *Typing) Stop(conversationID, userID int64) {
	key := typingKey{conversationID: conversationID, userID: userID}
	t.entries.update(key, func(s *typingState) bool {
		if !s.active {
			return true
		}
		if s.timeout != nil {
			s.timeout.Stop()
		}
		t.emit(key, EventTypingStopped)
		return true
	})
	t.flush()
}

func (t *Typing) expire(key typingKey, gen uint64) {
	t.entries.update(key, func(s *typingState) bool {
		if !s.active {
			return true
		}
		if s.gen != gen {
			return false
		}
		t.emit(key, EventTypingStopped)
		return true
	})
	t.flush()
}

// IsTyping reports whether the user currently has an active indicator
func (t *Typing) IsTyping(conversationID, userID int64) bool {
	typing := false
	t.entries.view(typingKey{conversationID: conversationID, userID: userID}, func(s *typingState) {
		typing = s.active
	})
	return typing
}

// emit queues the event; it is published by flush once the entry lock is released
func (t *Typing) emit(key typingKey, eventType EventType) {
	t.logger.Debug("typing changed",
		zap.Int64("conversation_id", key.conversationID),
		zap.Int64("user_id", key.userID),
		zap.String("type", string(eventType)))
	if t.publisher == nil {
		return
	}
	evt := NewEvent(eventType, key.conversationID, TypingChange{ConversationID: key.conversationID, UserID: key.userID}, t.clock.Now())
	evt.ExcludeUserID = key.userID
	t.events.push(evt)
}

func (t *Typing) flush() {
	if t.publisher == nil {
		return
	}
	t.events.flush(func(evt Event) {
		t.publisher.Publish(context.Background(), evt)
	})
}
