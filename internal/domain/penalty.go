package domain

import (
	"errors"
	"fmt"
	"time"
)

// PenaltyType names the action class a penalty restricts.
type PenaltyType string

const (
	PenaltyReviewBan  PenaltyType = "review_ban"
	PenaltyReportBan  PenaltyType = "report_ban"
	PenaltyPostingBan PenaltyType = "posting_ban"
	PenaltySuspension PenaltyType = "suspension"
	PenaltyWarning    PenaltyType = "warning"
)

// IsValid reports whether t is a known penalty type.
func (t PenaltyType) IsValid() bool {
	switch t {
	case PenaltyReviewBan, PenaltyReportBan, PenaltyPostingBan, PenaltySuspension, PenaltyWarning:
		return true
	default:
		return false
	}
}

// Severity drives the default penalty duration.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// PenaltyStatus is the lifecycle state of a penalty.
type PenaltyStatus string

const (
	PenaltyStatusActive   PenaltyStatus = "active"
	PenaltyStatusResolved PenaltyStatus = "resolved"
	PenaltyStatusExpired  PenaltyStatus = "expired"
)

// IsValid reports whether s is a known status.
func (s PenaltyStatus) IsValid() bool {
	return s == PenaltyStatusActive || s == PenaltyStatusResolved || s == PenaltyStatusExpired
}

const secondsPerDay int64 = 24 * 60 * 60

// MaxOverrideDays bounds a duration override so the computed expiry stays representable.
const MaxOverrideDays = 1_000_000

// Resolution records who lifted a penalty and when.
type Resolution struct {
	ResolvedBy string    `json:"resolved_by"`
	Notes      *string   `json:"notes,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Penalty is a time-scoped restriction on a subject.
type Penalty struct {
	ID         string        `json:"penalty_id"`
	SubjectID  string        `json:"user_id"`
	Type       PenaltyType   `json:"type"`
	Severity   Severity      `json:"severity"`
	Reason     string        `json:"reason"`
	Notes      *string       `json:"notes,omitempty"`
	IssuedBy   string        `json:"issued_by"`
	IssuedAt   time.Time     `json:"issued_at"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	Status     PenaltyStatus `json:"status"`
	Resolution *Resolution   `json:"resolution,omitempty"`
}

// Key implements store.Record.
func (p Penalty) Key() string { return p.ID }

// Validate implements store.Record.
func (p Penalty) Validate() error {
	switch {
	case p.ID == "":
		return errors.New("penalty_id required")
	case p.SubjectID == "":
		return errors.New("user_id required")
	case !p.Type.IsValid():
		return fmt.Errorf("unknown penalty type %q", p.Type)
	case !p.Status.IsValid():
		return fmt.Errorf("unknown penalty status %q", p.Status)
	case p.IssuedAt.IsZero():
		return errors.New("issued_at required")
	case p.Status == PenaltyStatusResolved && p.Resolution == nil:
		return errors.New("resolved penalty without resolution")
	}
	return nil
}

// IsActive reports whether the penalty currently restricts its subject.
func (p Penalty) IsActive() bool {
	return p.Status == PenaltyStatusActive
}

// HasExpired reports whether the expiry instant has passed at now. Penalties without expiry never expire.
func (p Penalty) HasExpired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// ComputeExpiry returns the expiry for a penalty issued at issuedAt, or nil when it never expires.
// A positive overrideDays wins over every other rule. Warnings never expire. Otherwise the
// severity decides: minor 3 days, moderate 7, severe 14 (30 for suspensions), anything else 7.
func ComputeExpiry(t PenaltyType, severity Severity, issuedAt time.Time, overrideDays *int) *time.Time {
	var days int
	switch {
	case overrideDays != nil && *overrideDays > 0:
		days = *overrideDays
	case t == PenaltyWarning:
		return nil
	case severity == SeverityMinor:
		days = 3
	case severity == SeverityModerate:
		days = 7
	case severity == SeveritySevere && t == PenaltySuspension:
		days = 30
	case severity == SeveritySevere:
		days = 14
	default:
		days = 7
	}
	// AddDate, since day counts past the time.Duration range must not wrap.
	expiresAt := issuedAt.AddDate(0, 0, days)
	return &expiresAt
}

// ApplyExpiry is the lazy expiry transition. It returns the penalty moved to expired and true when
// it was active with a passed expiry; otherwise the penalty unchanged and false.
func ApplyExpiry(p Penalty, now time.Time) (Penalty, bool) {
	if p.Status != PenaltyStatusActive || !p.HasExpired(now) {
		return p, false
	}
	p.Status = PenaltyStatusExpired
	return p, true
}

// TimeRemaining renders the time left until expiry, e.g. "2d 4h remaining".
// The second return is false when the penalty has no expiry.
func (p Penalty) TimeRemaining(now time.Time) (string, bool) {
	secs, ok := p.RemainingSeconds(now)
	if !ok {
		return "", false
	}
	if !p.ExpiresAt.After(now) {
		return "Expired", true
	}
	days := secs / secondsPerDay
	hours := (secs % secondsPerDay) / 3600
	minutes := (secs % 3600) / 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh remaining", days, hours), true
	case hours > 0:
		return fmt.Sprintf("%dh %dm remaining", hours, minutes), true
	default:
		return fmt.Sprintf("%dm remaining", minutes), true
	}
}

// RemainingSeconds returns whole seconds until expiry, floored at zero. It is computed from Unix
// seconds so far-off expiries do not saturate.
func (p Penalty) RemainingSeconds(now time.Time) (int64, bool) {
	if p.ExpiresAt == nil {
		return 0, false
	}
	if !p.ExpiresAt.After(now) {
		return 0, true
	}
	secs := p.ExpiresAt.Unix() - now.Unix()
	if p.ExpiresAt.Nanosecond() < now.Nanosecond() {
		secs--
	}
	return secs, true
}

// RestrictionMessage is the text shown to a subject blocked by this penalty.
func (p Penalty) RestrictionMessage(now time.Time) string {
	remaining, ok := p.TimeRemaining(now)
	if !ok {
		remaining = "Unknown duration"
	}
	return fmt.Sprintf("Action blocked due to active %s (%s) - %s.", p.Type, p.Reason, remaining)
}
