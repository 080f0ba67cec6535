// internal/messaging/repository.go

package messaging

import (
	"context"
	"time"
)

// Repository is the durable conversation store
type Repository interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation, memberIDs []int64) error
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int64) ([]*ConversationSummary, error)

	// Participants
	AddParticipant(ctx context.Context, p *Participant) (*Participant, error)
	GetParticipant(ctx context.Context, conversationID, userID int64) (*Participant, error)
	ListParticipants(ctx context.Context, conversationID int64) ([]*Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) (*Participant, error)
	UnreadCount(ctx context.Context, conversationID, userID int64) (int, error)

	// Messages
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]*Message, error)
	EditMessage(ctx context.Context, id, senderID int64, body string, at time.Time) (*Message, error)
	DeleteMessage(ctx context.Context, id, senderID int64, at time.Time) (*Message, error)
}
