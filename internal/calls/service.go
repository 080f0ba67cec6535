// internal/calls/service.go

package calls

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/auth"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/guesttoken"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

var (
	// ErrCallNotFound covers absent and ended calls alike
	ErrCallNotFound          = errs.New(errs.ErrNotFound, "call not found")
	ErrGuestMismatch         = errs.New(errs.ErrUnauthorized, "guest token is not valid for this call")
	ErrNotCallOwner          = errs.New(errs.ErrForbidden, "only the call creator or a supervisor can end this call")
	ErrNotConversationMember = errs.New(errs.ErrForbidden, "not a participant of the linked conversation")
	ErrEmptyDisplayName      = errs.New(errs.ErrInvalid, "display_name is required")
)

// TokenIssuer mints and verifies guest capability tokens
type TokenIssuer interface {
	Issue(callID, participantID int64, displayName string) (string, time.Time, error)
	Verify(token string) (*guesttoken.Claims, error)
}

// ConversationMembership checks participancy of a linked conversation
type ConversationMembership interface {
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
}

// Publisher fans events out to a conversation room
type Publisher interface {
	Publish(ctx context.Context, evt realtime.Event)
}

// Service manages call sessions and their participants
type Service struct {
	repo          Repository
	tokens        TokenIssuer
	conversations ConversationMembership
	authorizer    *auth.RoleAuthorizer
	publisher     Publisher
	clock         clock.Clock
	logger        *zap.Logger
}

func NewService(repo Repository, tokens TokenIssuer, conversations ConversationMembership, authorizer *auth.RoleAuthorizer, publisher Publisher, clk clock.Clock, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	logger = logging.OrNop(logger)
	return &Service{
		repo:          repo,
		tokens:        tokens,
		conversations: conversations,
		authorizer:    authorizer,
		publisher:     publisher,
		clock:         clk,
		logger:        logger.Named("calls"),
	}
}

// Create starts a call with the caller as its first participant
func (s *Service) Create(ctx context.Context, caller auth.Identity, req *CreateCallRequest) (*CallDetail, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.ConversationID != nil {
		ok, err := s.conversations.IsParticipant(ctx, *req.ConversationID, caller.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotConversationMember
		}
	}

	call := &CallSession{
		Medium:         req.Medium,
		ConversationID: req.ConversationID,
		IncidentID:     req.IncidentID,
		CreatedBy:      caller.UserID,
		CreatedAt:      s.now(),
	}
	creator, err := s.repo.CreateCall(ctx, call)
	if err != nil {
		return nil, err
	}

	callsStarted.WithLabelValues(string(call.Medium)).Inc()
	s.logger.Info("call started",
		zap.Int64("call_id", call.ID),
		zap.String("medium", string(call.Medium)),
		zap.Int64("created_by", caller.UserID))

	s.publishParticipant(ctx, call, realtime.EventCallParticipantJoined, creator)
	return &CallDetail{CallSession: call, Participants: []*CallParticipant{creator}}, nil
}

// Get returns a call to its creator, anyone who has taken part, members of
// the linked conversation and elevated roles. Everyone else gets NotFound.
func (s *Service) Get(ctx context.Context, caller auth.Identity, callID int64) (*CallDetail, error) {
	call, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	visible, err := s.canView(ctx, caller, call)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrCallNotFound
	}

	participants, err := s.repo.ListParticipants(ctx, callID)
	if err != nil {
		return nil, err
	}
	return &CallDetail{CallSession: call, Participants: participants}, nil
}

func (s *Service) canView(ctx context.Context, caller auth.Identity, call *CallSession) (bool, error) {
	if call.CreatedBy == caller.UserID || s.authorizer.HasElevatedRole(caller) {
		return true, nil
	}
	if call.ConversationID != nil {
		ok, err := s.conversations.IsParticipant(ctx, *call.ConversationID, caller.UserID)
		if err != nil || ok {
			return ok, err
		}
	}
	return s.repo.HasParticipated(ctx, call.ID, caller.UserID)
}

// JoinAuthenticated adds the user to an active call, or marks them present again
func (s *Service) JoinAuthenticated(ctx context.Context, callID, userID int64) (*CallParticipant, error) {
	p, err := s.repo.JoinUser(ctx, callID, userID, s.now())
	if err != nil {
		return nil, err
	}
	s.afterParticipantChange(ctx, callID, realtime.EventCallParticipantJoined, p)
	return p, nil
}

// RequestGuestAccess admits a named guest to an active call and mints the
// token that is their only credential for it.
func (s *Service) RequestGuestAccess(ctx context.Context, callID int64, displayName string) (*GuestAccess, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrEmptyDisplayName
	}
	if err := utils.ValidateStruct(&GuestAccessRequest{DisplayName: displayName}); err != nil {
		return nil, err
	}

	p, err := s.repo.AddGuest(ctx, callID, displayName, s.now())
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			guestRejections.WithLabelValues("call_inactive").Inc()
		}
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(callID, p.ID, displayName)
	if err != nil {
		// the guest cannot act without a token; do not leave the row present
		if _, _, leaveErr := s.repo.LeaveGuest(ctx, callID, p.ID, s.now()); leaveErr != nil {
			s.logger.Error("release guest after token failure", zap.Int64("participant_id", p.ID), zap.Error(leaveErr))
		}
		return nil, err
	}

	guestTokensIssued.Inc()
	s.logger.Info("guest admitted", zap.Int64("call_id", callID), zap.Int64("participant_id", p.ID))
	s.afterParticipantChange(ctx, callID, realtime.EventCallParticipantJoined, p)

	return &GuestAccess{
		Token:         token,
		ParticipantID: p.ID,
		CallID:        callID,
		ExpiresAt:     expiresAt,
	}, nil
}

// LeaveAuthenticated marks the user as left. Leaving twice is not an error;
// leaving a call the user never joined is NotFound.
func (s *Service) LeaveAuthenticated(ctx context.Context, callID, userID int64) (*CallParticipant, error) {
	if _, err := s.repo.GetCall(ctx, callID); err != nil {
		return nil, err
	}
	p, changed, err := s.repo.LeaveUser(ctx, callID, userID, s.now())
	if err != nil {
		return nil, err
	}
	if changed {
		s.afterParticipantChange(ctx, callID, realtime.EventCallParticipantLeft, p)
	}
	return p, nil
}

// LeaveGuest marks the token holder as left. The token must have been
// issued for callID. Leaving twice is not an error.
func (s *Service) LeaveGuest(ctx context.Context, callID int64, token string) (*CallParticipant, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		guestRejections.WithLabelValues("invalid_token").Inc()
		return nil, err
	}
	if claims.CallID != callID {
		guestRejections.WithLabelValues("call_mismatch").Inc()
		return nil, ErrGuestMismatch
	}

	p, changed, err := s.repo.LeaveGuest(ctx, callID, claims.ParticipantID, s.now())
	if err != nil {
		if errors.Is(err, ErrGuestMismatch) {
			guestRejections.WithLabelValues("participant_mismatch").Inc()
		}
		return nil, err
	}
	if changed {
		s.afterParticipantChange(ctx, callID, realtime.EventCallParticipantLeft, p)
	}
	return p, nil
}

// End ends the call. Only the creator or an elevated role may end it; ending
// an ended call returns it unchanged. Callers who cannot see the call get
// NotFound.
func (s *Service) End(ctx context.Context, caller auth.Identity, callID int64) (*CallSession, error) {
	call, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	visible, err := s.canView(ctx, caller, call)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrCallNotFound
	}
	if call.CreatedBy != caller.UserID && !s.authorizer.HasElevatedRole(caller) {
		return nil, ErrNotCallOwner
	}

	ended, changed, err := s.repo.EndCall(ctx, callID, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return ended, nil
	}

	callsEnded.Inc()
	s.logger.Info("call ended", zap.Int64("call_id", callID), zap.Int64("ended_by", caller.UserID))

	if ended.ConversationID != nil && s.publisher != nil {
		s.publisher.Publish(ctx, realtime.NewEvent(realtime.EventCallEnded, *ended.ConversationID,
			CallEndedEvent{CallID: ended.ID, EndedAt: *ended.EndedAt}, s.now()))
	}
	return ended, nil
}

// afterParticipantChange publishes a participant event when the call is linked
func (s *Service) afterParticipantChange(ctx context.Context, callID int64, eventType realtime.EventType, p *CallParticipant) {
	if s.publisher == nil {
		return
	}
	call, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		s.logger.Warn("load call for event", zap.Int64("call_id", callID), zap.Error(err))
		return
	}
	s.publishParticipant(ctx, call, eventType, p)
}

func (s *Service) publishParticipant(ctx context.Context, call *CallSession, eventType realtime.EventType, p *CallParticipant) {
	if s.publisher == nil || call.ConversationID == nil {
		return
	}
	s.publisher.Publish(ctx, realtime.NewEvent(eventType, *call.ConversationID, ParticipantEvent{
		CallID:        call.ID,
		ParticipantID: p.ID,
		UserID:        p.UserID,
		GuestName:     p.GuestName,
	}, s.now()))
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}
