// internal/messaging/models.go

package messaging

import (
	"encoding/json"
	"time"
)

// ConversationKind distinguishes direct chats, broadcasts and incident rooms
type ConversationKind string

const (
	KindDirectChat     ConversationKind = "direct_chat"
	KindBroadcast      ConversationKind = "broadcast"
	KindIncidentLinked ConversationKind = "incident_linked"
)

// ParticipantRole is the role of a user within a conversation
type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "owner"
	RoleMember ParticipantRole = "member"
)

// Conversation represents a chat conversation
type Conversation struct {
	ID         int64            `json:"id"`
	Kind       ConversationKind `json:"kind"`
	Title      *string          `json:"title,omitempty"`
	IncidentID *int64           `json:"incident_id,omitempty"`
	CreatedBy  int64            `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Participant represents a conversation participant
type Participant struct {
	ConversationID int64           `json:"conversation_id"`
	UserID         int64           `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	JoinedAt       time.Time       `json:"joined_at"`
	LastReadAt     time.Time       `json:"last_read_at"`
}

// Message represents a chat message. A deleted message keeps its place in
// history with an empty body.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
}

// ConversationDetail is a conversation with its participants
type ConversationDetail struct {
	*Conversation
	Participants []*Participant `json:"participants"`
}

// ConversationSummary is one entry of a user's conversation list
type ConversationSummary struct {
	*Conversation
	Role           ParticipantRole `json:"role"`
	LastReadAt     time.Time       `json:"last_read_at"`
	LastMessage    *Message        `json:"last_message,omitempty"`
	UnreadCount    int             `json:"unread_count"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// UnreadResponse reports a caller's unread count
type UnreadResponse struct {
	ConversationID int64 `json:"conversation_id"`
	UnreadCount    int   `json:"unread_count"`
}

// Request DTOs
type CreateConversationRequest struct {
	Kind       ConversationKind `json:"kind" validate:"required,oneof=direct_chat broadcast incident_linked"`
	Title      *string          `json:"title,omitempty" validate:"omitempty,max=200"`
	IncidentID *int64           `json:"incident_id,omitempty" validate:"omitempty,gt=0"`
	MemberIDs  []int64          `json:"member_ids" validate:"dive,gt=0"`
}

type AddParticipantRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

type EditMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// WebSocket frames

// WSMessage is a client-to-server frame
type WSMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type WSMessageType string

const (
	WSTypeJoin       WSMessageType = "join"
	WSTypeLeave      WSMessageType = "leave"
	WSTypeTyping     WSMessageType = "typing"
	WSTypeStopTyping WSMessageType = "stop_typing"
	WSTypeMessage    WSMessageType = "message"
	WSTypeRead       WSMessageType = "read"
)

// WSConversationRef is the payload of join, leave, typing, stop_typing and read
type WSConversationRef struct {
	ConversationID int64 `json:"conversation_id"`
}

// WSSendMessage is the payload of a message frame
type WSSendMessage struct {
	ConversationID int64  `json:"conversation_id"`
	Body           string `json:"body"`
}
