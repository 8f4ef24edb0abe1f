package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/events"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
)

// PenaltyLedger issues, expires, resolves and deletes penalties and keeps each subject's
// active-penalty set in step with the ledger.
type PenaltyLedger struct {
	// mu serializes every operation that touches both the ledger and the directory links.
	mu         sync.Mutex
	penalties  repository.PenaltyRepository
	users      repository.UserDirectory
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// PenaltyDependencies bundles collaborators for the ledger.
type PenaltyDependencies struct {
	PenaltyRepo   repository.PenaltyRepository
	UserDirectory repository.UserDirectory
	Clock         clock.Clock
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
}

// IssueInput describes a new penalty.
type IssueInput struct {
	SubjectID    string
	Type         domain.PenaltyType
	Severity     domain.Severity
	Reason       string
	Notes        *string
	IssuerID     string
	OverrideDays *int
}

// LinkRepair describes the drift fixed on one subject.
type LinkRepair struct {
	UserID  string   `json:"user_id"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Expired      int          `json:"expired"`
	UsersChecked int          `json:"users_checked"`
	Repairs      []LinkRepair `json:"repairs"`
	// Orphaned lists active penalties whose subject is not in the directory.
	Orphaned []string `json:"orphaned"`
}

// NewPenaltyLedger constructs the ledger.
func NewPenaltyLedger(deps PenaltyDependencies) *PenaltyLedger {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PenaltyLedger{
		penalties:  deps.PenaltyRepo,
		users:      deps.UserDirectory,
		clock:      clk,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Issue records an active penalty and links it to its subject.
func (l *PenaltyLedger) Issue(ctx context.Context, input IssueInput) (*domain.Penalty, error) {
	reason := strings.TrimSpace(input.Reason)
	switch {
	case input.SubjectID == "":
		return nil, fmt.Errorf("%w: user_id required", domain.ErrInvalidPenaltyInput)
	case !input.Type.IsValid():
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidPenaltyInput, input.Type)
	case reason == "":
		return nil, fmt.Errorf("%w: reason required", domain.ErrInvalidPenaltyInput)
	case input.IssuerID == "":
		return nil, fmt.Errorf("%w: issuer required", domain.ErrInvalidPenaltyInput)
	case input.OverrideDays != nil && *input.OverrideDays > domain.MaxOverrideDays:
		return nil, fmt.Errorf("%w: duration cannot exceed %d days", domain.ErrInvalidPenaltyInput, domain.MaxOverrideDays)
	}
	severity := input.Severity
	if severity == "" {
		severity = domain.SeverityMinor
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.users.GetByID(ctx, input.SubjectID); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	penalty := domain.Penalty{
		ID:        uuid.NewString(),
		SubjectID: input.SubjectID,
		Type:      input.Type,
		Severity:  severity,
		Reason:    reason,
		Notes:     input.Notes,
		IssuedBy:  input.IssuerID,
		IssuedAt:  now,
		ExpiresAt: domain.ComputeExpiry(input.Type, severity, now, input.OverrideDays),
		Status:    domain.PenaltyStatusActive,
	}

	if err := l.penalties.Create(ctx, penalty); err != nil {
		return nil, fmt.Errorf("store penalty: %w", err)
	}
	if err := l.users.LinkPenalty(ctx, penalty.SubjectID, penalty.ID); err != nil {
		if _, delErr := l.penalties.Delete(ctx, penalty.ID); delErr != nil {
			l.logger.Error("penalty left without subject link",
				zap.String("penalty_id", penalty.ID),
				zap.String("user_id", penalty.SubjectID),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("link penalty: %w", err)
	}

	l.logger.Info("penalty issued",
		zap.String("penalty_id", penalty.ID),
		zap.String("user_id", penalty.SubjectID),
		zap.String("type", string(penalty.Type)),
		zap.String("issued_by", penalty.IssuedBy))
	l.publish(ctx, events.EventPenaltyIssued, penalty.IssuedBy, penalty)
	return &penalty, nil
}

// ListForSubject returns every penalty of subjectID after applying lazy expiry to them.
func (l *PenaltyLedger) ListForSubject(ctx context.Context, subjectID string) ([]domain.Penalty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.expireWhere(ctx, func(p domain.Penalty) bool { return p.SubjectID == subjectID }); err != nil {
		return nil, err
	}
	return l.penalties.ListBySubject(ctx, subjectID)
}

// ListAll returns the whole ledger after applying lazy expiry.
func (l *PenaltyLedger) ListAll(ctx context.Context) ([]domain.Penalty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.expireWhere(ctx, nil); err != nil {
		return nil, err
	}
	return l.penalties.ListAll(ctx)
}

// SweepExpired applies the expiry rule to the whole ledger and reports how many penalties moved.
func (l *PenaltyLedger) SweepExpired(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expired, err := l.expireWhere(ctx, nil)
	return len(expired), err
}

// Resolve marks the penalty resolved by moderatorID and unlinks it from its subject.
// Resolving a terminal penalty overwrites its resolution metadata.
func (l *PenaltyLedger) Resolve(ctx context.Context, penaltyID, moderatorID string, notes *string) (*domain.Penalty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	updated, err := l.penalties.Update(ctx, penaltyID, func(p *domain.Penalty) error {
		p.Status = domain.PenaltyStatusResolved
		p.Resolution = &domain.Resolution{
			ResolvedBy: moderatorID,
			Notes:      notes,
			ResolvedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := l.unlink(ctx, *updated); err != nil {
		return nil, err
	}

	l.logger.Info("penalty resolved",
		zap.String("penalty_id", updated.ID),
		zap.String("user_id", updated.SubjectID),
		zap.String("resolved_by", moderatorID))
	l.publish(ctx, events.EventPenaltyResolved, moderatorID, *updated)
	return updated, nil
}

// Delete removes the penalty record and unlinks it regardless of its status.
func (l *PenaltyLedger) Delete(ctx context.Context, penaltyID, actorID string) (*domain.Penalty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed, err := l.penalties.Delete(ctx, penaltyID)
	if err != nil {
		return nil, err
	}
	if err := l.unlink(ctx, *removed); err != nil {
		return nil, err
	}

	l.logger.Info("penalty deleted",
		zap.String("penalty_id", removed.ID),
		zap.String("user_id", removed.SubjectID),
		zap.String("deleted_by", actorID))
	l.publish(ctx, events.EventPenaltyDeleted, actorID, *removed)
	return removed, nil
}

// CheckActiveRestriction returns the restriction message of the first active penalty of subjectID
// whose type is in blocked, or an empty string when none applies.
func (l *PenaltyLedger) CheckActiveRestriction(ctx context.Context, subjectID string, blocked []domain.PenaltyType) (string, error) {
	penalties, err := l.ListForSubject(ctx, subjectID)
	if err != nil {
		return "", err
	}
	now := l.clock.Now()
	for _, p := range penalties {
		if p.IsActive() && slices.Contains(blocked, p.Type) {
			return p.RestrictionMessage(now), nil
		}
	}
	return "", nil
}

// Reconcile applies expiry, then rewrites every subject's active-penalty set to match the
// active penalties in the ledger.
func (l *PenaltyLedger) Reconcile(ctx context.Context) (ReconcileReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := ReconcileReport{Repairs: []LinkRepair{}, Orphaned: []string{}}

	expired, err := l.expireWhere(ctx, nil)
	if err != nil {
		return report, err
	}
	report.Expired = len(expired)

	penalties, err := l.penalties.ListAll(ctx)
	if err != nil {
		return report, err
	}
	active := make(map[string][]string)
	for _, p := range penalties {
		if p.IsActive() {
			active[p.SubjectID] = append(active[p.SubjectID], p.ID)
		}
	}

	users, err := l.users.ListAll(ctx)
	if err != nil {
		return report, err
	}
	report.UsersChecked = len(users)

	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
		want := active[u.ID]
		if sameSet(u.PenaltyIDs, want) {
			continue
		}

		repair := LinkRepair{UserID: u.ID}
		_, err := l.users.Update(ctx, u.ID, func(user *domain.User) error {
			repair.Added, repair.Removed = nil, nil
			kept := make([]string, 0, len(want))
			for _, id := range user.PenaltyIDs {
				if slices.Contains(want, id) && !slices.Contains(kept, id) {
					kept = append(kept, id)
				} else {
					repair.Removed = append(repair.Removed, id)
				}
			}
			for _, id := range want {
				if !slices.Contains(kept, id) {
					kept = append(kept, id)
					repair.Added = append(repair.Added, id)
				}
			}
			user.PenaltyIDs = kept
			return nil
		})
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("repair links for %s: %w", u.ID, err)
		}

		l.logger.Warn("repaired penalty links",
			zap.String("user_id", u.ID),
			zap.Strings("added", repair.Added),
			zap.Strings("removed", repair.Removed))
		report.Repairs = append(report.Repairs, repair)
	}

	for subjectID, ids := range active {
		if _, ok := known[subjectID]; !ok {
			report.Orphaned = append(report.Orphaned, ids...)
		}
	}
	if len(report.Orphaned) > 0 {
		slices.Sort(report.Orphaned)
		l.logger.Warn("active penalties without subject", zap.Strings("penalty_ids", report.Orphaned))
	}
	return report, nil
}

// expireWhere moves every matching active penalty whose expiry has passed to expired and
// unlinks it. A nil match selects the whole ledger. Callers hold l.mu.
func (l *PenaltyLedger) expireWhere(ctx context.Context, match func(domain.Penalty) bool) ([]domain.Penalty, error) {
	now := l.clock.Now()
	expired, err := l.penalties.UpdateMany(ctx, func(p *domain.Penalty) bool {
		if match != nil && !match(*p) {
			return false
		}
		next, changed := domain.ApplyExpiry(*p, now)
		if changed {
			*p = next
		}
		return changed
	})
	if err != nil {
		return nil, fmt.Errorf("apply expiry: %w", err)
	}

	for _, p := range expired {
		if err := l.unlink(ctx, p); err != nil {
			return nil, err
		}
		l.logger.Info("penalty expired",
			zap.String("penalty_id", p.ID),
			zap.String("user_id", p.SubjectID))
		l.publish(ctx, events.EventPenaltyExpired, "", p)
	}
	return expired, nil
}

// unlink drops p from its subject's active set. A subject missing from the directory is logged
// and skipped; the ledger stays authoritative.
func (l *PenaltyLedger) unlink(ctx context.Context, p domain.Penalty) error {
	err := l.users.UnlinkPenalty(ctx, p.SubjectID, p.ID)
	if errors.Is(err, domain.ErrUserNotFound) {
		l.logger.Warn("penalty subject missing from directory",
			zap.String("penalty_id", p.ID),
			zap.String("user_id", p.SubjectID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("unlink penalty: %w", err)
	}
	return nil
}

func (l *PenaltyLedger) publish(ctx context.Context, eventType events.EventType, actorID string, p domain.Penalty) {
	if l.dispatcher == nil {
		return
	}
	_ = l.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: p.SubjectID,
		ActorID:   actorID,
		Timestamp: l.clock.Now(),
		Payload:   events.NewPenaltyPayload(p),
	})
}

func sameSet(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	for _, id := range have {
		if !slices.Contains(want, id) {
			return false
		}
	}
	for _, id := range want {
		if !slices.Contains(have, id) {
			return false
		}
	}
	return true
}
