// internal/realtime/presence.go
// Per-user online status derived from live connection counts

package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
)

const DefaultPresenceGrace = 10 * time.Second

// GlobalPublisher delivers an event to every connection
type GlobalPublisher interface {
	PublishGlobal(ctx context.Context, evt Event)
}

type presenceState struct {
	conns  int
	online bool
	gen    uint64
	grace  clock.Timer
}

// Presence counts connections per user. A user is online while they hold at
// least one connection. The first connection announces them online; when the
// last one closes the offline announcement waits for a grace period and is
// dropped if they reconnect first.
type Presence struct {
	users     *keyedState[int64, presenceState]
	events    outbox
	grace     time.Duration
	clock     clock.Clock
	publisher GlobalPublisher
	logger    *zap.Logger
}

// NewPresence creates a tracker. A negative grace selects DefaultPresenceGrace;
// zero makes disconnects take effect immediately.
func NewPresence(publisher GlobalPublisher, grace time.Duration, clk clock.Clock, logger *zap.Logger) *Presence {
	if grace < 0 {
		grace = DefaultPresenceGrace
	}
	if clk == nil {
		clk = clock.New()
	}
	logger = logging.OrNop(logger)
	return &Presence{
		users:     newKeyedState[int64, presenceState](),
		grace:     grace,
		clock:     clk,
		publisher: publisher,
		logger:    logger.Named("presence"),
	}
}

// Connect records a new connection for userID
func (p *Presence) Connect(userID int64) {
	p.users.update(userID, func(s *presenceState) bool {
		s.conns++
		if s.conns > 1 {
			return false
		}
		if s.grace != nil {
			// Reconnected inside the grace window: still online, nothing to announce.
			s.grace.Stop()
			s.grace = nil
			s.gen++
			return false
		}
		if !s.online {
			s.online = true
			usersOnline.Inc()
			p.emit(userID, StatusOnline)
		}
		return false
	})
	p.flush()
}

// Disconnect records a closed connection for userID. Extra disconnects are ignored.
func (p *Presence) Disconnect(userID int64) {
	p.users.update(userID, func(s *presenceState) bool {
		if s.conns == 0 {
			return !s.online
		}
		s.conns--
		if s.conns > 0 {
			return false
		}
		if p.grace == 0 {
			return p.goOffline(userID, s)
		}
		s.gen++
		gen := s.gen
		s.grace = p.clock.AfterFunc(p.grace, func() { p.expire(userID, gen) })
		return false
	})
	p.flush()
}

func (p *Presence) expire(userID int64, gen uint64) {
	p.users.update(userID, func(s *presenceState) bool {
		if s.gen != gen || s.conns > 0 || !s.online {
			return s.conns == 0 && !s.online
		}
		return p.goOffline(userID, s)
	})
	p.flush()
}

func (p *Presence) goOffline(userID int64, s *presenceState) bool {
	s.grace = nil
	s.online = false
	usersOnline.Dec()
	p.emit(userID, StatusOffline)
	return true
}

// emit queues the event; it is published by flush once the user's lock is released
func (p *Presence) emit(userID int64, status string) {
	p.logger.Debug("presence changed", zap.Int64("user_id", userID), zap.String("status", status))
	if p.publisher == nil {
		return
	}
	p.events.push(NewEvent(EventPresenceChanged, 0, PresenceChange{UserID: userID, Status: status}, p.clock.Now()))
}

func (p *Presence) flush() {
	if p.publisher == nil {
		return
	}
	p.events.flush(func(evt Event) {
		p.publisher.PublishGlobal(context.Background(), evt)
	})
}

// IsOnline reports whether the user holds at least one live connection
func (p *Presence) IsOnline(userID int64) bool {
	online := false
	p.users.view(userID, func(s *presenceState) {
		online = s.conns > 0
	})
	return online
}

// ListOnline returns the ids of online users in ascending order
func (p *Presence) ListOnline() []int64 {
	ids := make([]int64, 0)
	for _, userID := range p.users.keys() {
		if p.IsOnline(userID) {
			ids = append(ids, userID)
		}
	}
	sortInt64s(ids)
	return ids
}
