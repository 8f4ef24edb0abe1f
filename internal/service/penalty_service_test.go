package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/events"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
	"github.com/spec-kit/watchworthy-auth/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

type ledgerFixture struct {
	ledger     *PenaltyLedger
	penalties  repository.PenaltyRepository
	users      repository.UserDirectory
	clock      *clock.Fake
	dispatcher *recordingDispatcher
}

func newLedgerFixture(t *testing.T, userIDs ...string) ledgerFixture {
	t.Helper()
	clk := clock.NewFake(t0)
	users := repository.NewUserDirectory(store.NewMemory[domain.User](store.CollectionUsers, nil))
	for _, id := range userIDs {
		require.NoError(t, users.Create(context.Background(), &domain.User{
			ID:       id,
			Username: id,
			Email:    id + "@example.com",
			Role:     domain.RoleMember,
			Status:   domain.UserStatusActive,
		}))
	}
	penalties := repository.NewPenaltyRepository(store.NewMemory[domain.Penalty](store.CollectionPenalties, nil))
	dispatcher := &recordingDispatcher{}
	return ledgerFixture{
		ledger: NewPenaltyLedger(PenaltyDependencies{
			PenaltyRepo:   penalties,
			UserDirectory: users,
			Clock:         clk,
			Dispatcher:    dispatcher,
		}),
		penalties:  penalties,
		users:      users,
		clock:      clk,
		dispatcher: dispatcher,
	}
}

func (f ledgerFixture) issue(t *testing.T, subject string, typ domain.PenaltyType, severity domain.Severity, override *int) *domain.Penalty {
	t.Helper()
	p, err := f.ledger.Issue(context.Background(), IssueInput{
		SubjectID:    subject,
		Type:         typ,
		Severity:     severity,
		Reason:       "spam",
		IssuerID:     "mod-1",
		OverrideDays: override,
	})
	require.NoError(t, err)
	return p
}

func (f ledgerFixture) activeIDs(t *testing.T, subject string) []string {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), subject)
	require.NoError(t, err)
	return u.PenaltyIDs
}

func intPtr(v int) *int { return &v }

func TestPenaltyLedger_IssueExpiry(t *testing.T) {
	cases := []struct {
		name     string
		typ      domain.PenaltyType
		severity domain.Severity
		override *int
		wantDays *int
	}{
		{"minor review ban", domain.PenaltyReviewBan, domain.SeverityMinor, nil, intPtr(3)},
		{"moderate posting ban", domain.PenaltyPostingBan, domain.SeverityModerate, nil, intPtr(7)},
		{"severe report ban", domain.PenaltyReportBan, domain.SeveritySevere, nil, intPtr(14)},
		{"severe suspension", domain.PenaltySuspension, domain.SeveritySevere, nil, intPtr(30)},
		{"override wins", domain.PenaltyReviewBan, domain.SeverityMinor, intPtr(5), intPtr(5)},
		{"override beats warning", domain.PenaltyWarning, domain.SeveritySevere, intPtr(2), intPtr(2)},
		{"smallest override", domain.PenaltySuspension, domain.SeveritySevere, intPtr(1), intPtr(1)},
		{"zero override ignored", domain.PenaltyReviewBan, domain.SeverityMinor, intPtr(0), intPtr(3)},
		{"negative override ignored", domain.PenaltySuspension, domain.SeveritySevere, intPtr(-4), intPtr(30)},
		{"zero override on warning", domain.PenaltyWarning, domain.SeverityMinor, intPtr(0), nil},
		{"override past duration range", domain.PenaltyReviewBan, domain.SeverityMinor, intPtr(200000), intPtr(200000)},
		{"warning never expires", domain.PenaltyWarning, domain.SeveritySevere, nil, nil},
		{"unknown severity defaults", domain.PenaltyReviewBan, domain.Severity("extreme"), nil, intPtr(7)},
		{"empty severity is minor", domain.PenaltyReviewBan, "", nil, intPtr(3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLedgerFixture(t, "u1")
			p := f.issue(t, "u1", tc.typ, tc.severity, tc.override)

			assert.Equal(t, domain.PenaltyStatusActive, p.Status)
			assert.Equal(t, t0, p.IssuedAt)
			if tc.wantDays == nil {
				assert.Nil(t, p.ExpiresAt)
			} else {
				require.NotNil(t, p.ExpiresAt)
				assert.Equal(t, p.IssuedAt.AddDate(0, 0, *tc.wantDays), *p.ExpiresAt)
				assert.True(t, p.ExpiresAt.After(p.IssuedAt))
			}

			f.clock.Advance(time.Minute)
			listed, err := f.ledger.ListForSubject(context.Background(), "u1")
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, domain.PenaltyStatusActive, listed[0].Status)
			assert.Equal(t, []string{p.ID}, f.activeIDs(t, "u1"))
		})
	}
}


func TestPenaltyLedger_FarOffExpiryRemaining(t *testing.T) {
	f := newLedgerFixture(t, "u1")
	p := f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, intPtr(domain.MaxOverrideDays))

	secs, ok := p.RemainingSeconds(t0)
	require.True(t, ok)
	assert.Equal(t, int64(domain.MaxOverrideDays)*24*3600, secs)

	text, ok := p.TimeRemaining(t0.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("%dd 23h remaining", domain.MaxOverrideDays-1), text)
	assert.False(t, p.HasExpired(t0.AddDate(1000, 0, 0)))
}

func TestPenaltyLedger_IssueValidation(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1")

	base := IssueInput{SubjectID: "u1", Type: domain.PenaltyReviewBan, Reason: "spam", IssuerID: "mod-1"}

	bad := base
	bad.Type = "shadow_ban"
	_, err := f.ledger.Issue(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPenaltyInput)

	bad = base
	bad.Reason = "  "
	_, err = f.ledger.Issue(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPenaltyInput)

	bad = base
	bad.SubjectID = "ghost"
	_, err = f.ledger.Issue(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	bad = base
	bad.OverrideDays = intPtr(domain.MaxOverrideDays + 1)
	_, err = f.ledger.Issue(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPenaltyInput)

	all, err := f.penalties.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPenaltyLedger_LazyExpiryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1")
	p := f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)
	warning := f.issue(t, "u1", domain.PenaltyWarning, domain.SeverityMinor, nil)

	f.clock.Advance(3*day + time.Second)

	first, err := f.ledger.ListForSubject(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, first, 2)
	statuses := map[string]domain.PenaltyStatus{}
	for _, q := range first {
		statuses[q.ID] = q.Status
	}
	assert.Equal(t, domain.PenaltyStatusExpired, statuses[p.ID])
	assert.Equal(t, domain.PenaltyStatusActive, statuses[warning.ID])
	assert.Equal(t, []string{warning.ID}, f.activeIDs(t, "u1"))

	second, err := f.ledger.ListForSubject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{warning.ID}, f.activeIDs(t, "u1"))

	expiredEvents := 0
	for _, typ := range f.dispatcher.types() {
		if typ == events.EventPenaltyExpired {
			expiredEvents++
		}
	}
	assert.Equal(t, 1, expiredEvents)
}

func TestPenaltyLedger_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1")
	p := f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)

	f.clock.Set(*p.ExpiresAt)
	list, err := f.ledger.ListForSubject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PenaltyStatusActive, list[0].Status)
}

func TestPenaltyLedger_Resolve(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1")
	p := f.issue(t, "u1", domain.PenaltySuspension, domain.SeveritySevere, nil)

	_, err := f.ledger.Resolve(ctx, "missing", "mod-2", nil)
	assert.ErrorIs(t, err, domain.ErrPenaltyNotFound)

	notes := "appeal accepted"
	f.clock.Advance(time.Hour)
	resolved, err := f.ledger.Resolve(ctx, p.ID, "mod-2", &notes)
	require.NoError(t, err)
	assert.Equal(t, domain.PenaltyStatusResolved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, "mod-2", resolved.Resolution.ResolvedBy)
	assert.Equal(t, &notes, resolved.Resolution.Notes)
	assert.Equal(t, t0.Add(time.Hour), resolved.Resolution.ResolvedAt)
	assert.Empty(t, f.activeIDs(t, "u1"))

	// resolving again overwrites the metadata
	again, err := f.ledger.Resolve(ctx, p.ID, "mod-3", nil)
	require.NoError(t, err)
	assert.Equal(t, "mod-3", again.Resolution.ResolvedBy)
	assert.Nil(t, again.Resolution.Notes)
	assert.Equal(t, domain.PenaltyStatusResolved, again.Status)
}

func TestPenaltyLedger_Delete(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1")
	active := f.issue(t, "u1", domain.PenaltyPostingBan, domain.SeverityModerate, nil)
	resolved := f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)
	_, err := f.ledger.Resolve(ctx, resolved.ID, "mod-1", nil)
	require.NoError(t, err)

	_, err = f.ledger.Delete(ctx, "missing", "admin")
	assert.ErrorIs(t, err, domain.ErrPenaltyNotFound)

	for _, id := range []string{active.ID, resolved.ID} {
		removed, err := f.ledger.Delete(ctx, id, "admin")
		require.NoError(t, err)
		assert.Equal(t, id, removed.ID)
	}
	list, err := f.ledger.ListForSubject(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.activeIDs(t, "u1"))

	assert.Equal(t, []events.EventType{
		events.EventPenaltyIssued,
		events.EventPenaltyIssued,
		events.EventPenaltyResolved,
		events.EventPenaltyDeleted,
		events.EventPenaltyDeleted,
	}, f.dispatcher.types())
}

func TestPenaltyLedger_CheckActiveRestriction(t *testing.T) {
	ctx := context.Background()
	blocked := []domain.PenaltyType{domain.PenaltyReviewBan}

	t.Run("none without penalties", func(t *testing.T) {
		f := newLedgerFixture(t, "u1")
		msg, err := f.ledger.CheckActiveRestriction(ctx, "u1", blocked)
		require.NoError(t, err)
		assert.Empty(t, msg)
	})

	t.Run("active review ban blocks", func(t *testing.T) {
		f := newLedgerFixture(t, "u1")
		f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)
		f.clock.Advance(20 * time.Hour)

		msg, err := f.ledger.CheckActiveRestriction(ctx, "u1", blocked)
		require.NoError(t, err)
		assert.Equal(t, "Action blocked due to active review_ban (spam) - 2d 4h remaining.", msg)
	})

	t.Run("other types do not block", func(t *testing.T) {
		f := newLedgerFixture(t, "u1")
		f.issue(t, "u1", domain.PenaltyReportBan, domain.SeverityMinor, nil)
		msg, err := f.ledger.CheckActiveRestriction(ctx, "u1", blocked)
		require.NoError(t, err)
		assert.Empty(t, msg)
	})

	t.Run("resolved does not block", func(t *testing.T) {
		f := newLedgerFixture(t, "u1")
		p := f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)
		_, err := f.ledger.Resolve(ctx, p.ID, "mod-1", nil)
		require.NoError(t, err)
		msg, err := f.ledger.CheckActiveRestriction(ctx, "u1", blocked)
		require.NoError(t, err)
		assert.Empty(t, msg)
	})

	t.Run("expired does not block", func(t *testing.T) {
		f := newLedgerFixture(t, "u1")
		f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)
		f.clock.Advance(4 * day)
		msg, err := f.ledger.CheckActiveRestriction(ctx, "u1", blocked)
		require.NoError(t, err)
		assert.Empty(t, msg)
		assert.Empty(t, f.activeIDs(t, "u1"))
	})

	t.Run("warning without expiry", func(t *testing.T) {
		f := newLedgerFixture(t, "u1")
		f.issue(t, "u1", domain.PenaltyWarning, domain.SeverityMinor, nil)
		msg, err := f.ledger.CheckActiveRestriction(ctx, "u1", []domain.PenaltyType{domain.PenaltyWarning})
		require.NoError(t, err)
		assert.Equal(t, "Action blocked due to active warning (spam) - Unknown duration.", msg)
	})
}

func TestPenaltyLedger_SweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1", "u2")
	f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)
	f.issue(t, "u2", domain.PenaltyReportBan, domain.SeverityMinor, nil)
	kept := f.issue(t, "u2", domain.PenaltySuspension, domain.SeveritySevere, nil)

	f.clock.Advance(5 * day)
	n, err := f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.activeIDs(t, "u1"))
	assert.Equal(t, []string{kept.ID}, f.activeIDs(t, "u2"))

	n, err = f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPenaltyLedger_ListAllAppliesExpiry(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1", "u2")
	f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeverityMinor, nil)
	f.issue(t, "u2", domain.PenaltyWarning, domain.SeverityMinor, nil)

	f.clock.Advance(10 * day)
	all, err := f.ledger.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.PenaltyStatusExpired, all[0].Status)
	assert.Equal(t, domain.PenaltyStatusActive, all[1].Status)
}

func TestPenaltyLedger_Reconcile(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1", "u2")
	linked := f.issue(t, "u1", domain.PenaltyReviewBan, domain.SeveritySevere, nil)
	dropped := f.issue(t, "u2", domain.PenaltyPostingBan, domain.SeveritySevere, nil)

	// drift: u1 lost its link and carries a stale id; u2 is consistent
	_, err := f.users.Update(ctx, "u1", func(u *domain.User) error {
		u.PenaltyIDs = []string{"stale-id"}
		return nil
	})
	require.NoError(t, err)

	// an active penalty whose subject vanished from the directory
	orphan := domain.Penalty{
		ID:        "orphan",
		SubjectID: "ghost",
		Type:      domain.PenaltyReviewBan,
		Severity:  domain.SeverityMinor,
		Reason:    "spam",
		IssuedBy:  "mod-1",
		IssuedAt:  t0,
		Status:    domain.PenaltyStatusActive,
	}
	require.NoError(t, f.penalties.Create(ctx, orphan))

	report, err := f.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.UsersChecked)
	assert.Zero(t, report.Expired)
	require.Len(t, report.Repairs, 1)
	assert.Equal(t, LinkRepair{UserID: "u1", Added: []string{linked.ID}, Removed: []string{"stale-id"}}, report.Repairs[0])
	assert.Equal(t, []string{"orphan"}, report.Orphaned)

	assert.Equal(t, []string{linked.ID}, f.activeIDs(t, "u1"))
	assert.Equal(t, []string{dropped.ID}, f.activeIDs(t, "u2"))

	again, err := f.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Repairs)
}

func TestPenaltyLedger_ConcurrentIssueKeepsLinks(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Issue(ctx, IssueInput{
				SubjectID: "u1",
				Type:      domain.PenaltyReviewBan,
				Severity:  domain.SeverityMinor,
				Reason:    "spam",
				IssuerID:  "mod-1",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := f.penalties.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
	assert.Len(t, f.activeIDs(t, "u1"), 20)

	report, err := f.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Repairs)
}
