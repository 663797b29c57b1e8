/*
Package maturity settles investments whose maturity date has arrived.

PURPOSE:
  The Sweeper finds active investments maturing on or before today and
  asks the ledger to settle each one. The Scheduler runs the Sweeper on a
  cron schedule; RunNow is the manual trigger and shares the same logic.

GUARANTEES:
  - Each candidate is settled independently. One failure never aborts
    the batch and never leaves a partial credit behind (the ledger's
    transaction rolls back).
  - Settlement is idempotent, so overlapping sweeps (scheduled + manual,
    or two processes) can only report already-matured investments as
    skipped. Nothing is paid twice.
  - Each settlement runs under its own timeout. On timeout the
    transaction rolls back and the investment stays active for the next
    sweep.

RUN RECORDS:
  Every sweep is persisted as an invest.SweepRun (running -> completed,
  or aborted when the candidate scan itself fails).

SEE ALSO:
  - invest/ledger.go: SettleMaturity
  - scheduler.go: cron wiring
*/
package maturity

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/invest-engine/invest"
)

// Settler is the part of the ledger the sweeper drives.
type Settler interface {
	SettleMaturity(ctx context.Context, id invest.InvestmentID) (invest.SettleResult, error)
}

// Candidates lists investments due for settlement.
type Candidates interface {
	MaturingBefore(ctx context.Context, before time.Time, limit int) ([]invest.Investment, error)
}

// Config tunes a Sweeper. Zero values fall back to defaults.
type Config struct {
	// Concurrency bounds how many settlements run at once.
	Concurrency int
	// SettleTimeout bounds one settlement, including retries.
	SettleTimeout time.Duration
	// BatchLimit caps candidates per sweep. 0 means no cap.
	BatchLimit int
}

func DefaultConfig() Config {
	return Config{Concurrency: 4, SettleTimeout: 30 * time.Second}
}

// Summary is the outcome of one sweep.
type Summary struct {
	RunID       string                `json:"run_id"`
	Trigger     invest.SweepTrigger   `json:"trigger"`
	Processed   int                   `json:"processed"`
	Skipped     int                   `json:"skipped"`
	Failed      int                   `json:"failed"`
	Failures    []invest.SweepFailure `json:"failures"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
}

type Sweeper struct {
	settler    Settler
	candidates Candidates
	runs       invest.SweepRunStore
	logger     *zap.Logger
	clock      invest.Clock
	cfg        Config

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

type Option func(*Sweeper)

// WithRunStore persists sweep runs. Without it runs are only logged.
func WithRunStore(r invest.SweepRunStore) Option { return func(s *Sweeper) { s.runs = r } }
func WithLogger(l *zap.Logger) Option { return func(s *Sweeper) { s.logger = l } }
func WithClock(c invest.Clock) Option { return func(s *Sweeper) { s.clock = c } }
func WithConfig(c Config) Option { return func(s *Sweeper) { s.cfg = c } }

func NewSweeper(settler Settler, candidates Candidates, opts ...Option) *Sweeper {
	s := &Sweeper{
		settler:    settler,
		candidates: candidates,
		logger:     zap.NewNop(),
		clock:      invest.SystemClock,
		cfg:        DefaultConfig(),
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	def := DefaultConfig()
	if s.cfg.Concurrency <= 0 {
		s.cfg.Concurrency = def.Concurrency
	}
	if s.cfg.SettleTimeout <= 0 {
		s.cfg.SettleTimeout = def.SettleTimeout
	}
	return s
}

// Sweep settles every active investment with maturityDate < tomorrow.
// The error is non-nil only if candidates could not be listed; individual
// settlement failures are reported in the Summary.
func (s *Sweeper) Sweep(ctx context.Context, trigger invest.SweepTrigger) (Summary, error) {
	started := s.clock()
	sum := Summary{RunID: s.newRunID(started), Trigger: trigger, StartedAt: started}
	log := s.logger.With(zap.String("run_id", sum.RunID), zap.String("trigger", string(trigger)))

	s.saveRun(ctx, log, invest.SweepRun{
		ID: sum.RunID, Trigger: trigger, Status: invest.SweepRunning, StartedAt: started,
	})

	due, err := s.candidates.MaturingBefore(ctx, invest.Tomorrow(started), s.cfg.BatchLimit)
	if err != nil {
		log.Error("list maturing investments", zap.Error(err))
		sweepsTotal.WithLabelValues(string(trigger), string(invest.SweepAborted)).Inc()
		completed := s.clock()
		s.saveRun(context.WithoutCancel(ctx), log, invest.SweepRun{
			ID: sum.RunID, Trigger: trigger, Status: invest.SweepAborted, Error: err.Error(),
			StartedAt: started, CompletedAt: &completed,
		})
		return sum, err
	}
	log.Info("maturity sweep started", zap.Int("candidates", len(due)))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, inv := range due {
		g.Go(func() error {
			res, err := s.settleOne(ctx, inv.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
				sum.Failures = append(sum.Failures, invest.SweepFailure{
					InvestmentID: inv.ID,
					UserID:       inv.UserID,
					Error:        err.Error(),
				})
				settlementsTotal.WithLabelValues("failed").Inc()
				log.Warn("settlement failed",
					zap.String("investment_id", string(inv.ID)),
					zap.String("user_id", string(inv.UserID)),
					zap.Error(err))
			case res == invest.AlreadyMatured:
				sum.Skipped++
				settlementsTotal.WithLabelValues("skipped").Inc()
			default:
				sum.Processed++
				settlementsTotal.WithLabelValues("settled").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(sum.Failures, func(i, j int) bool {
		return sum.Failures[i].InvestmentID < sum.Failures[j].InvestmentID
	})
	sum.CompletedAt = s.clock()

	sweepsTotal.WithLabelValues(string(trigger), string(invest.SweepCompleted)).Inc()
	sweepDuration.Observe(time.Since(started).Seconds())
	lastSweep.SetToCurrentTime()

	// Record the run even if ctx was cancelled mid-sweep.
	s.saveRun(context.WithoutCancel(ctx), log, invest.SweepRun{
		ID:          sum.RunID,
		Trigger:     trigger,
		Status:      invest.SweepCompleted,
		Processed:   sum.Processed,
		Skipped:     sum.Skipped,
		Failed:      sum.Failed,
		Failures:    sum.Failures,
		StartedAt:   started,
		CompletedAt: &sum.CompletedAt,
	})

	log.Info("maturity sweep completed",
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", sum.CompletedAt.Sub(started)))
	return sum, nil
}

func (s *Sweeper) settleOne(ctx context.Context, id invest.InvestmentID) (invest.SettleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SettleTimeout)
	defer cancel()
	return s.settler.SettleMaturity(ctx, id)
}

func (s *Sweeper) saveRun(ctx context.Context, log *zap.Logger, run invest.SweepRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SaveSweepRun(ctx, run); err != nil {
		log.Warn("save sweep run", zap.String("status", string(run.Status)), zap.Error(err))
	}
}

func (s *Sweeper) newRunID(at time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}
