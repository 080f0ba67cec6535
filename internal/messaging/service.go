// internal/messaging/service.go

package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

var (
	ErrConversationNotFound = errs.New(errs.ErrNotFound, "conversation not found")
	ErrMessageNotFound      = errs.New(errs.ErrNotFound, "message not found")
	ErrNotParticipant       = errs.New(errs.ErrForbidden, "not a participant in this conversation")
	ErrNotSender            = errs.New(errs.ErrForbidden, "only the sender can modify this message")
	ErrNotOwner             = errs.New(errs.ErrForbidden, "only the conversation owner can add participants")
	ErrEmptyBody            = errs.New(errs.ErrInvalid, "message body is required")
	ErrDirectChatMembers    = errs.New(errs.ErrInvalid, "direct_chat requires exactly one other member")
	ErrIncidentRequired     = errs.New(errs.ErrInvalid, "incident_linked requires incident_id")
)

const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 100
	DefaultMaxMessageLen   = 4000
)

// Publisher fans events out to a conversation room
type Publisher interface {
	Publish(ctx context.Context, evt realtime.Event)
}

// Service implements conversation and message operations on behalf of a caller
type Service struct {
	repo          Repository
	publisher     Publisher
	clock         clock.Clock
	maxMessageLen int
	logger        *zap.Logger
}

// NewService creates the messaging service. publisher may be nil.
func NewService(repo Repository, publisher Publisher, clk clock.Clock, maxMessageLen int, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if maxMessageLen <= 0 {
		maxMessageLen = DefaultMaxMessageLen
	}
	logger = logging.OrNop(logger)
	return &Service{
		repo:          repo,
		publisher:     publisher,
		clock:         clk,
		maxMessageLen: maxMessageLen,
		logger:        logger.Named("messaging"),
	}
}

// CreateConversation creates a conversation owned by callerID
func (s *Service) CreateConversation(ctx context.Context, callerID int64, req *CreateConversationRequest) (*ConversationDetail, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	members := make([]int64, 0, len(req.MemberIDs))
	seen := map[int64]bool{callerID: true}
	for _, id := range req.MemberIDs {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}

	switch req.Kind {
	case KindDirectChat:
		if len(members) != 1 {
			return nil, ErrDirectChatMembers
		}
	case KindIncidentLinked:
		if req.IncidentID == nil {
			return nil, ErrIncidentRequired
		}
	}

	conv := &Conversation{
		Kind:       req.Kind,
		Title:      req.Title,
		IncidentID: req.IncidentID,
		CreatedBy:  callerID,
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateConversation(ctx, conv, members); err != nil {
		return nil, err
	}

	participants, err := s.repo.ListParticipants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversation created",
		zap.Int64("conversation_id", conv.ID),
		zap.String("kind", string(conv.Kind)),
		zap.Int64("created_by", callerID),
		zap.Int("participants", len(participants)))

	return &ConversationDetail{Conversation: conv, Participants: participants}, nil
}

// GetConversation returns the conversation with its participants
func (s *Service) GetConversation(ctx context.Context, callerID, conversationID int64) (*ConversationDetail, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireParticipant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	participants, err := s.repo.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &ConversationDetail{Conversation: conv, Participants: participants}, nil
}

// ListConversations returns the caller's conversations, most recent activity first
func (s *Service) ListConversations(ctx context.Context, callerID int64) ([]*ConversationSummary, error) {
	return s.repo.ListConversationsForUser(ctx, callerID)
}

// AddParticipant adds userID as a member. Only the owner may add; adding an
// existing participant returns the existing row.
func (s *Service) AddParticipant(ctx context.Context, callerID, conversationID, userID int64) (*Participant, error) {
	if userID <= 0 {
		return nil, errs.New(errs.ErrInvalid, "user_id must be positive")
	}
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	caller, err := s.requireParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != RoleOwner {
		return nil, ErrNotOwner
	}

	return s.repo.AddParticipant(ctx, &Participant{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           RoleMember,
		JoinedAt:       s.now(),
	})
}

// ListMessages returns up to limit messages before beforeID in chronological order
func (s *Service) ListMessages(ctx context.Context, callerID, conversationID int64, limit int, beforeID int64) ([]*Message, error) {
	if err := s.requireMember(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	if limit > MaxMessagePageSize {
		limit = MaxMessagePageSize
	}
	return s.repo.ListMessages(ctx, conversationID, limit, beforeID)
}

// SendMessage stores a message and then announces it to the room
func (s *Service) SendMessage(ctx context.Context, callerID, conversationID int64, body string) (*Message, error) {
	if err := s.validateBody(body); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID: conversationID,
		SenderID:       callerID,
		Body:           body,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.EventMessageCreated, msg)
	return msg, nil
}

// EditMessage replaces the body of the caller's own message
func (s *Service) EditMessage(ctx context.Context, callerID, messageID int64, body string) (*Message, error) {
	if err := s.validateBody(body); err != nil {
		return nil, err
	}
	msg, err := s.repo.EditMessage(ctx, messageID, callerID, body, s.now())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.EventMessageUpdated, msg)
	return msg, nil
}

// DeleteMessage soft-deletes the caller's own message
func (s *Service) DeleteMessage(ctx context.Context, callerID, messageID int64) (*Message, error) {
	msg, err := s.repo.DeleteMessage(ctx, messageID, callerID, s.now())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.EventMessageDeleted, msg)
	return msg, nil
}

// MarkRead advances the caller's read marker to now
func (s *Service) MarkRead(ctx context.Context, callerID, conversationID int64) (*Participant, error) {
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.MarkRead(ctx, conversationID, callerID, s.now())
}

// UnreadCount returns the caller's unread count for a conversation
func (s *Service) UnreadCount(ctx context.Context, callerID, conversationID int64) (*UnreadResponse, error) {
	if err := s.requireMember(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	count, err := s.repo.UnreadCount(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	return &UnreadResponse{ConversationID: conversationID, UnreadCount: count}, nil
}

// IsParticipant reports room membership for the hub
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	return s.repo.IsParticipant(ctx, conversationID, userID)
}

// requireMember checks that the conversation exists and the caller belongs to it
func (s *Service) requireMember(ctx context.Context, conversationID, callerID int64) error {
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.requireParticipant(ctx, conversationID, callerID)
	return err
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, callerID int64) (*Participant, error) {
	return s.repo.GetParticipant(ctx, conversationID, callerID)
}

func (s *Service) validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > s.maxMessageLen {
		return errs.New(errs.ErrInvalid, fmt.Sprintf("message body exceeds %d characters", s.maxMessageLen))
	}
	return nil
}

// publish runs after the write has committed; delivery problems are the hub's to log
func (s *Service) publish(ctx context.Context, eventType realtime.EventType, msg *Message) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, realtime.NewEvent(eventType, msg.ConversationID, msg, s.now()))
}

// now is truncated to the millisecond precision the store keeps
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}
