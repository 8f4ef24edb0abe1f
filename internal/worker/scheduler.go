package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/watchworthy-auth/internal/service"
)

// LedgerJobs is the part of the penalty ledger the scheduler drives.
type LedgerJobs interface {
	SweepExpired(ctx context.Context) (int, error)
	Reconcile(ctx context.Context) (service.ReconcileReport, error)
}

// Scheduler runs the periodic expiry sweep and link reconciliation.
type Scheduler struct {
	cron          *cron.Cron
	ledger        LedgerJobs
	logger        *zap.Logger
	sweepSpec     string
	reconcileSpec string
	jobTimeout    time.Duration
}

// NewScheduler builds a scheduler; specs use the six-field cron format with seconds.
func NewScheduler(ledger LedgerJobs, sweepSpec, reconcileSpec string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:          cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ledger:        ledger,
		logger:        logger,
		sweepSpec:     sweepSpec,
		reconcileSpec: reconcileSpec,
		jobTimeout:    time.Minute,
	}
}

// Start registers the jobs and starts the cron loop. An empty spec disables that job.
func (s *Scheduler) Start() error {
	if s.ledger == nil {
		return nil
	}
	if s.sweepSpec != "" {
		if _, err := s.cron.AddFunc(s.sweepSpec, s.runSweep); err != nil {
			return err
		}
	}
	if s.reconcileSpec != "" {
		if _, err := s.cron.AddFunc(s.reconcileSpec, s.runReconcile); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("penalty scheduler started",
		zap.String("sweep", s.sweepSpec),
		zap.String("reconcile", s.reconcileSpec))
	return nil
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("penalty scheduler stop timed out")
	}
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	n, err := s.ledger.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("penalty sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("penalty sweep expired penalties", zap.Int("count", n))
	}
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	report, err := s.ledger.Reconcile(ctx)
	if err != nil {
		s.logger.Error("penalty reconciliation failed", zap.Error(err))
		return
	}
	s.logger.Info("penalty reconciliation finished",
		zap.Int("users_checked", report.UsersChecked),
		zap.Int("repairs", len(report.Repairs)),
		zap.Int("orphaned", len(report.Orphaned)),
		zap.Int("expired", report.Expired))
}
