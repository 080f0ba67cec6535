// internal/realtime/hub.go

package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
)

// ErrNotMember is returned by Join when the user is not a participant
var ErrNotMember = errs.New(errs.ErrForbidden, "not a participant of this conversation")

// Subscriber is a live connection that can receive serialized events.
// Send must not block.
type Subscriber interface {
	ID() string
	UserID() int64
	Send(payload []byte) error
	Close()
}

// Membership answers whether a user may join a conversation room
type Membership interface {
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
}

// Relay carries serialized events between nodes. Every node, including the
// publisher, receives each payload through Subscribe.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, handler func(payload []byte)) error
}

type room struct {
	mu      sync.Mutex
	members map[string]Subscriber
}

// envelope is the relay wire format
type envelope struct {
	Event         Event `json:"event"`
	ExcludeUserID int64 `json:"exclude_user_id,omitempty"`
	Global        bool  `json:"global,omitempty"`
}

// Hub maintains active connections and conversation rooms
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	rooms       map[int64]*room
	subRooms    map[string]map[int64]struct{}

	// serializes PublishGlobal fan-out
	globalMu sync.Mutex

	membership Membership
	relay      Relay
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub. relay may be nil for single-node deployments.
func NewHub(membership Membership, relay Relay, logger *zap.Logger) *Hub {
	logger = logging.OrNop(logger)
	return &Hub{
		subscribers: make(map[string]Subscriber),
		rooms:       make(map[int64]*room),
		subRooms:    make(map[string]map[int64]struct{}),
		membership:  membership,
		relay:       relay,
		logger:      logger.Named("hub"),
	}
}

// Register tracks a connection so it can join rooms and receive global events
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	if _, exists := h.subscribers[sub.ID()]; !exists {
		h.subscribers[sub.ID()] = sub
		h.subRooms[sub.ID()] = make(map[int64]struct{})
		connectionsActive.Inc()
	}
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("connection registered",
		zap.String("conn_id", sub.ID()),
		zap.Int64("user_id", sub.UserID()),
		zap.Int("total", total))
}

// Unregister removes a connection from every room it joined
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	rooms, exists := h.subRooms[sub.ID()]
	if !exists {
		h.mu.Unlock()
		return
	}
	for conversationID := range rooms {
		h.leaveLocked(sub.ID(), conversationID)
	}
	delete(h.subRooms, sub.ID())
	delete(h.subscribers, sub.ID())
	total := len(h.subscribers)
	h.mu.Unlock()

	connectionsActive.Dec()
	h.logger.Debug("connection unregistered",
		zap.String("conn_id", sub.ID()),
		zap.Int64("user_id", sub.UserID()),
		zap.Int("total", total))
}

// Join adds the connection to a conversation room after checking participancy.
// Joining a room twice is a no-op.
func (h *Hub) Join(ctx context.Context, sub Subscriber, conversationID int64) error {
	ok, err := h.membership.IsParticipant(ctx, conversationID, sub.UserID())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	memberships, registered := h.subRooms[sub.ID()]
	if !registered {
		return errs.New(errs.ErrInvalid, "connection is not registered")
	}

	r := h.rooms[conversationID]
	if r == nil {
		r = &room{members: make(map[string]Subscriber)}
		h.rooms[conversationID] = r
	}
	r.mu.Lock()
	r.members[sub.ID()] = sub
	r.mu.Unlock()
	memberships[conversationID] = struct{}{}
	return nil
}

// Leave removes the connection from a conversation room. Idempotent.
func (h *Hub) Leave(sub Subscriber, conversationID int64) {
	h.mu.Lock()
	h.leaveLocked(sub.ID(), conversationID)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(subID string, conversationID int64) {
	if memberships := h.subRooms[subID]; memberships != nil {
		delete(memberships, conversationID)
	}
	r := h.rooms[conversationID]
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.members, subID)
	empty := len(r.members) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, conversationID)
	}
}

// IsJoined reports whether the connection is in the conversation room
func (h *Hub) IsJoined(sub Subscriber, conversationID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subRooms[sub.ID()][conversationID]
	return ok
}

// Publish fans an event out to every connection in its conversation room,
// in publish order while the relay is healthy. Delivery is best effort and
// never fails the caller.
func (h *Hub) Publish(ctx context.Context, evt Event) {
	h.publish(ctx, envelope{Event: evt, ExcludeUserID: evt.ExcludeUserID})
}

// PublishGlobal fans an event out to every registered connection
func (h *Hub) PublishGlobal(ctx context.Context, evt Event) {
	h.publish(ctx, envelope{Event: evt, ExcludeUserID: evt.ExcludeUserID, Global: true})
}

func (h *Hub) publish(ctx context.Context, env envelope) {
	eventsPublished.WithLabelValues(string(env.Event.Type)).Inc()

	if h.relay != nil {
		payload, err := json.Marshal(env)
		if err == nil {
			if err = h.relay.Publish(ctx, payload); err == nil {
				return
			}
		}
		// Local fallback can overtake earlier events still in flight through
		// the relay, so a room may see reordered events while the relay flaps.
		// Clients recover by re-fetching history on reconnect.
		relayFailures.WithLabelValues("publish").Inc()
		h.logger.Warn("relay publish failed, delivering locally",
			zap.String("type", string(env.Event.Type)),
			zap.Int64("conversation_id", env.Event.ConversationID),
			zap.Error(err))
	}

	h.deliver(env)
}

func (h *Hub) deliver(env envelope) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		h.logger.Error("marshal event", zap.String("type", string(env.Event.Type)), zap.Error(err))
		return
	}

	if env.Global {
		h.deliverGlobal(env, payload)
		return
	}

	h.mu.RLock()
	r := h.rooms[env.Event.ConversationID]
	h.mu.RUnlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.members {
		h.send(sub, env, payload)
	}
}

func (h *Hub) deliverGlobal(env envelope, payload []byte) {
	h.globalMu.Lock()
	defer h.globalMu.Unlock()

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.send(sub, env, payload)
	}
}

func (h *Hub) send(sub Subscriber, env envelope, payload []byte) {
	if env.ExcludeUserID != 0 && sub.UserID() == env.ExcludeUserID {
		return
	}
	if err := sub.Send(payload); err != nil {
		deliveriesDropped.Inc()
		h.logger.Warn("dropped delivery",
			zap.String("conn_id", sub.ID()),
			zap.Int64("user_id", sub.UserID()),
			zap.String("type", string(env.Event.Type)),
			zap.Error(err))
	}
}

// Start consumes the relay until ctx is cancelled or Close is called.
// Without a relay it does nothing.
func (h *Hub) Start(ctx context.Context) {
	if h.relay == nil {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			err := h.relay.Subscribe(ctx, h.handleRelayed)
			if ctx.Err() != nil {
				return
			}
			relayFailures.WithLabelValues("subscribe").Inc()
			h.logger.Error("relay subscription ended, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

func (h *Hub) handleRelayed(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logger.Warn("invalid relay payload", zap.Error(err))
		return
	}
	h.deliver(env)
}

// Close stops the relay consumer and closes every registered connection
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()

	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// ActiveConnections returns the number of registered connections
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
