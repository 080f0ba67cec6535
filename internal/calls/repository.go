// internal/calls/repository.go

package calls

import (
	"context"
	"time"
)

// Repository is the durable call store. Operations that admit participants
// fail with ErrCallNotFound unless the call is active at the moment of the write.
type Repository interface {
	// CreateCall inserts the session and its creator as the first participant
	CreateCall(ctx context.Context, call *CallSession) (*CallParticipant, error)
	GetCall(ctx context.Context, id int64) (*CallSession, error)
	ListParticipants(ctx context.Context, callID int64) ([]*CallParticipant, error)
	HasParticipated(ctx context.Context, callID, userID int64) (bool, error)

	JoinUser(ctx context.Context, callID, userID int64, at time.Time) (*CallParticipant, error)
	AddGuest(ctx context.Context, callID int64, displayName string, at time.Time) (*CallParticipant, error)

	// Leave operations report changed=false when the participant had already left
	LeaveUser(ctx context.Context, callID, userID int64, at time.Time) (p *CallParticipant, changed bool, err error)
	LeaveGuest(ctx context.Context, callID, participantID int64, at time.Time) (p *CallParticipant, changed bool, err error)

	// EndCall reports changed=false when the call had already ended
	EndCall(ctx context.Context, callID int64, at time.Time) (call *CallSession, changed bool, err error)
}
