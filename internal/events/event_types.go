package events

import (
	"time"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPenaltyIssued          EventType = "penalty_issued"
	EventPenaltyResolved        EventType = "penalty_resolved"
	EventPenaltyExpired         EventType = "penalty_expired"
	EventPenaltyDeleted         EventType = "penalty_deleted"
	EventUserRegistered         EventType = "user_registered"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPasswordChanged        EventType = "password_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"user_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// PenaltyPayload is attached to every penalty lifecycle event.
type PenaltyPayload struct {
	PenaltyID string               `json:"penalty_id"`
	Type      domain.PenaltyType   `json:"type"`
	Severity  domain.Severity      `json:"severity"`
	Status    domain.PenaltyStatus `json:"status"`
	Reason    string               `json:"reason"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

// NewPenaltyPayload copies the event-relevant fields of p.
func NewPenaltyPayload(p domain.Penalty) PenaltyPayload {
	return PenaltyPayload{
		PenaltyID: p.ID,
		Type:      p.Type,
		Severity:  p.Severity,
		Status:    p.Status,
		Reason:    p.Reason,
		ExpiresAt: p.ExpiresAt,
	}
}

// PasswordResetPayload carries the delivery data for a reset request.
type PasswordResetPayload struct {
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
}
