package dto

import (
	"time"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
)

// IssuePenaltyRequest payload.
type IssuePenaltyRequest struct {
	UserID       string             `json:"user_id"`
	Type         domain.PenaltyType `json:"type"`
	Severity     domain.Severity    `json:"severity"`
	Reason       string             `json:"reason"`
	Notes        *string            `json:"notes"`
	DurationDays *int               `json:"duration_days"`
}

// ResolvePenaltyRequest payload; notes may also arrive as a query parameter.
type ResolvePenaltyRequest struct {
	Notes *string `json:"notes"`
}

// PenaltyResponse is a penalty with its derived remaining time.
type PenaltyResponse struct {
	ID               string               `json:"penalty_id"`
	UserID           string               `json:"user_id"`
	Type             domain.PenaltyType   `json:"type"`
	Severity         domain.Severity      `json:"severity"`
	Reason           string               `json:"reason"`
	Notes            *string              `json:"notes,omitempty"`
	IssuedBy         string               `json:"issued_by"`
	IssuedAt         time.Time            `json:"issued_at"`
	ExpiresAt        *time.Time           `json:"expires_at"`
	Status           domain.PenaltyStatus `json:"status"`
	Resolution       *domain.Resolution   `json:"resolution,omitempty"`
	TimeRemaining    *string              `json:"time_remaining"`
	RemainingSeconds *int64               `json:"time_remaining_seconds"`
}

// NewPenaltyResponse renders p as seen at now.
func NewPenaltyResponse(p domain.Penalty, now time.Time) PenaltyResponse {
	resp := PenaltyResponse{
		ID:         p.ID,
		UserID:     p.SubjectID,
		Type:       p.Type,
		Severity:   p.Severity,
		Reason:     p.Reason,
		Notes:      p.Notes,
		IssuedBy:   p.IssuedBy,
		IssuedAt:   p.IssuedAt,
		ExpiresAt:  p.ExpiresAt,
		Status:     p.Status,
		Resolution: p.Resolution,
	}
	if text, ok := p.TimeRemaining(now); ok {
		resp.TimeRemaining = &text
	}
	if secs, ok := p.RemainingSeconds(now); ok {
		resp.RemainingSeconds = &secs
	}
	return resp
}

// NewPenaltyResponses renders a list.
func NewPenaltyResponses(penalties []domain.Penalty, now time.Time) []PenaltyResponse {
	out := make([]PenaltyResponse, 0, len(penalties))
	for _, p := range penalties {
		out = append(out, NewPenaltyResponse(p, now))
	}
	return out
}

// RestrictionCheckResponse answers the action-gate probe.
type RestrictionCheckResponse struct {
	Allowed bool                 `json:"allowed"`
	Message string               `json:"message,omitempty"`
	Checked []domain.PenaltyType `json:"checked"`
}
