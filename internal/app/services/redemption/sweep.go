package redemption

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agoramesh/ledger/internal/app/metrics"
	"github.com/agoramesh/ledger/pkg/logger"
)

// SweepError records one principal the sweep could not pay out.
type SweepError struct {
	PrincipalID string `json:"principal_id"`
	Error       string `json:"error"`
}

// SweepResult summarises one payout sweep.
type SweepResult struct {
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Errors    []SweepError `json:"errors"`
}

// RunMonthlyPayout walks every active payout profile with a configured
// method and opens a redemption for the principal's full balance. Per
// principal failures are collected and never abort the sweep.
func (s *Service) RunMonthlyPayout(ctx context.Context) (SweepResult, error) {
	profiles, err := s.store.ListActiveProfiles(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Errors: []SweepError{}}
	for _, profile := range profiles {
		rtype, ok := profile.Method.RedemptionType()
		if !ok {
			result.Skipped++
			continue
		}

		acct, err := s.store.GetAccountByPrincipal(ctx, profile.PrincipalID)
		if err != nil {
			result.Skipped++
			continue
		}
		if acct.Balance.LessThan(s.minimums[rtype]) {
			result.Skipped++
			continue
		}

		if _, err := s.Create(ctx, profile.PrincipalID, rtype, acct.Balance); err != nil {
			s.log.WithError(err).
				WithField("principal_id", profile.PrincipalID).
				Warn("sweep payout failed")
			result.Errors = append(result.Errors, SweepError{PrincipalID: profile.PrincipalID, Error: err.Error()})
			continue
		}
		result.Processed++
	}

	metrics.RecordSweep(result.Processed, result.Skipped, len(result.Errors))
	s.log.WithField("processed", result.Processed).
		WithField("skipped", result.Skipped).
		WithField("errors", len(result.Errors)).
		Info("monthly payout sweep finished")
	return result, nil
}

// DefaultSweepSpec runs the sweep at 02:00 UTC on the first of each month.
const DefaultSweepSpec = "0 2 1 * *"

// Sweeper schedules the monthly payout sweep. It implements the lifecycle
// Service contract so the application manager owns its start and stop.
type Sweeper struct {
	svc  *Service
	spec string
	log  *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper builds a sweeper on the given cron spec; an empty spec uses
// DefaultSweepSpec.
func NewSweeper(svc *Service, spec string, log *logger.Logger) *Sweeper {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	if log == nil {
		log = logger.NewDefault("payout-sweep")
	}
	return &Sweeper{svc: svc, spec: spec, log: log}
}

func (w *Sweeper) Name() string { return "payout-sweep" }

// Start registers the cron entry and begins scheduling.
func (w *Sweeper) Start(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(w.spec, w.run); err != nil {
		return err
	}
	c.Start()
	w.cron = c
	w.running = true

	w.log.WithField("spec", w.spec).Info("payout sweeper started")
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	c := w.cron
	w.cron = nil
	w.running = false
	w.mu.Unlock()

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := w.svc.RunMonthlyPayout(ctx); err != nil {
		w.log.WithError(err).Warn("scheduled payout sweep failed")
	}
}
