// internal/realtime/events.go

package realtime

import (
	"encoding/json"
	"time"
)

// EventType names a server-to-client event
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventMessageUpdated EventType = "message.updated"
	EventMessageDeleted EventType = "message.deleted"

	EventTypingStarted EventType = "typing.started"
	EventTypingStopped EventType = "typing.stopped"

	EventPresenceChanged EventType = "presence.changed"

	EventCallParticipantJoined EventType = "call.participant_joined"
	EventCallParticipantLeft   EventType = "call.participant_left"
	EventCallEnded             EventType = "call.ended"
)

// Event is the unit of fan-out. ExcludeUserID, when set, suppresses
// delivery to every connection of that user.
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	ExcludeUserID  int64           `json:"-"`
}

// NewEvent builds an event for a conversation room
func NewEvent(eventType EventType, conversationID int64, data interface{}, at time.Time) Event {
	return Event{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           mustMarshalJSON(data),
		Timestamp:      at,
	}
}

// PresenceChange is the payload of presence.changed
type PresenceChange struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

// TypingChange is the payload of typing.started and typing.stopped
type TypingChange struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

func mustMarshalJSON(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
