// internal/calls/models.go

package calls

import "time"

// Medium is the media type of a call
type Medium string

const (
	MediumAudio Medium = "audio"
	MediumVideo Medium = "video"
)

// Status is the lifecycle state of a call. It moves from active to ended once.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// CallSession represents a voice or video call
type CallSession struct {
	ID             int64      `json:"id"`
	Medium         Medium     `json:"medium"`
	ConversationID *int64     `json:"conversation_id,omitempty"`
	IncidentID     *int64     `json:"incident_id,omitempty"`
	Status         Status     `json:"status"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// CallParticipant is either an authenticated user or a named guest
type CallParticipant struct {
	ID        int64      `json:"id"`
	CallID    int64      `json:"call_id"`
	UserID    *int64     `json:"user_id,omitempty"`
	GuestName *string    `json:"guest_name,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// Present reports whether the participant has not left
func (p *CallParticipant) Present() bool {
	return p.LeftAt == nil
}

// IsGuest reports whether the participant joined with a guest token
func (p *CallParticipant) IsGuest() bool {
	return p.UserID == nil
}

// CallDetail is a call with its participants
type CallDetail struct {
	*CallSession
	Participants []*CallParticipant `json:"participants"`
}

// GuestAccess is returned to a guest admitted to a call
type GuestAccess struct {
	Token         string    `json:"token"`
	ParticipantID int64     `json:"participant_id"`
	CallID        int64     `json:"call_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Request DTOs
type CreateCallRequest struct {
	Medium         Medium `json:"medium" validate:"required,oneof=audio video"`
	ConversationID *int64 `json:"conversation_id,omitempty" validate:"omitempty,gt=0"`
	IncidentID     *int64 `json:"incident_id,omitempty" validate:"omitempty,gt=0"`
}

type GuestAccessRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=80"`
}

type GuestLeaveRequest struct {
	Token string `json:"token" validate:"required"`
}

// Event payloads published to a linked conversation

type ParticipantEvent struct {
	CallID        int64   `json:"call_id"`
	ParticipantID int64   `json:"participant_id"`
	UserID        *int64  `json:"user_id,omitempty"`
	GuestName     *string `json:"guest_name,omitempty"`
}

type CallEndedEvent struct {
	CallID  int64     `json:"call_id"`
	EndedAt time.Time `json:"ended_at"`
}
