package maturity_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/invest-engine/invest"
	"github.com/warp/invest-engine/invest/store"
	"github.com/warp/invest-engine/maturity"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	investDay = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)
	dueDay    = time.Date(2025, time.April, 10, 6, 0, 0, 0, time.UTC)
)

func threeMonthFD() invest.Product {
	return invest.Product{
		ID:                 "fd-3m",
		Name:               "Fixed Deposit",
		Type:               invest.ProductFD,
		MinInvestment:      invest.MustMoney("100"),
		AnnualYieldPercent: decimal.NewFromInt(8),
		TenureMonths:       3,
		RiskLevel:          invest.RiskLow,
	}
}

func twelveMonthFD() invest.Product {
	p := threeMonthFD()
	p.ID = "fd-12m"
	p.TenureMonths = 12
	return p
}

// faultyStore fails LockInvestment for the listed ids.
type faultyStore struct {
	*store.Memory
	fail map[invest.InvestmentID]bool
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(invest.Tx) error) error {
	return f.Memory.WithTx(ctx, func(tx invest.Tx) error {
		return fn(&faultyTx{Tx: tx, fail: f.fail})
	})
}

type faultyTx struct {
	invest.Tx
	fail map[invest.InvestmentID]bool
}

func (t *faultyTx) LockInvestment(ctx context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	if t.fail[id] {
		return nil, errors.New("disk I/O error")
	}
	return t.Tx.LockInvestment(ctx, id)
}

type env struct {
	mem    *store.Memory
	ledger *invest.Ledger
	now    time.Time
	mu     sync.Mutex
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) set(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = t
}

func newEnv(t *testing.T, wrap func(*store.Memory) invest.TxStore) *env {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveProduct(ctx, threeMonthFD()))
	require.NoError(t, mem.SaveProduct(ctx, twelveMonthFD()))

	e := &env{mem: mem, now: investDay}
	var txs invest.TxStore = mem
	if wrap != nil {
		txs = wrap(mem)
	}
	seq := 0
	e.ledger = invest.NewLedger(txs,
		invest.WithClock(e.clock),
		invest.WithRetry(invest.RetryPolicy{Attempts: 1}),
		invest.WithIDGenerator(func() invest.InvestmentID {
			seq++
			return invest.InvestmentID(fmt.Sprintf("inv-%d", seq))
		}))
	return e
}

func (e *env) sweeper(opts ...maturity.Option) *maturity.Sweeper {
	base := []maturity.Option{maturity.WithClock(e.clock), maturity.WithRunStore(e.mem)}
	return maturity.NewSweeper(e.ledger, e.mem, append(base, opts...)...)
}

func (e *env) invest(t *testing.T, user invest.UserID, product invest.ProductID, amount string) *invest.Investment {
	t.Helper()
	inv, err := e.ledger.Invest(context.Background(), user, product, invest.MustMoney(amount))
	require.NoError(t, err)
	return inv
}

func (e *env) open(t *testing.T, user invest.UserID, amount string) {
	t.Helper()
	require.NoError(t, e.ledger.OpenAccount(context.Background(), user, invest.MustMoney(amount)))
}

func (e *env) balance(t *testing.T, user invest.UserID) string {
	t.Helper()
	b, err := e.mem.Balance(context.Background(), user)
	require.NoError(t, err)
	return b.String()
}

func (e *env) status(t *testing.T, id invest.InvestmentID) invest.Status {
	t.Helper()
	inv, err := e.mem.Investment(context.Background(), id)
	require.NoError(t, err)
	return inv.Status
}

// =============================================================================
// SWEEP
// =============================================================================

func TestSweep_SettlesDueInvestments(t *testing.T) {
	// GIVEN: Two due investments and one that matures next year
	// WHEN: Sweeping on the due date
	// THEN: The due ones are settled and credited, the other stays active

	e := newEnv(t, nil)
	e.open(t, "u1", "10000")
	a := e.invest(t, "u1", "fd-3m", "1000")
	b := e.invest(t, "u1", "fd-3m", "500")
	later := e.invest(t, "u1", "fd-12m", "2000")
	assert.Equal(t, "6500.00", e.balance(t, "u1"))

	e.set(dueDay)
	sum, err := e.sweeper().Sweep(context.Background(), invest.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 0, sum.Failed)
	assert.Empty(t, sum.Failures)
	assert.NotEmpty(t, sum.RunID)

	// 6500 + 1000 + 80 + 500 + 40
	assert.Equal(t, "8120.00", e.balance(t, "u1"))
	assert.Equal(t, invest.StatusMatured, e.status(t, a.ID))
	assert.Equal(t, invest.StatusMatured, e.status(t, b.ID))
	assert.Equal(t, invest.StatusActive, e.status(t, later.ID))
}

func TestSweep_PartialFailure(t *testing.T) {
	// GIVEN: Three due investments where settling the second one fails
	// WHEN: Sweeping
	// THEN: {processed: 2, failed: 1}; the failure names the investment and
	//       user; the failed investment stays active and its owner is not credited

	var fs *faultyStore
	e := newEnv(t, func(m *store.Memory) invest.TxStore {
		fs = &faultyStore{Memory: m, fail: map[invest.InvestmentID]bool{}}
		return fs
	})
	e.open(t, "u1", "1000")
	e.open(t, "u2", "1000")
	e.open(t, "u3", "1000")
	first := e.invest(t, "u1", "fd-3m", "1000")
	second := e.invest(t, "u2", "fd-3m", "1000")
	third := e.invest(t, "u3", "fd-3m", "1000")
	fs.fail[second.ID] = true

	e.set(dueDay)
	sum, err := e.sweeper().Sweep(context.Background(), invest.TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, second.ID, sum.Failures[0].InvestmentID)
	assert.Equal(t, invest.UserID("u2"), sum.Failures[0].UserID)
	assert.Contains(t, sum.Failures[0].Error, "disk I/O error")

	assert.Equal(t, invest.StatusMatured, e.status(t, first.ID))
	assert.Equal(t, invest.StatusActive, e.status(t, second.ID))
	assert.Equal(t, invest.StatusMatured, e.status(t, third.ID))
	assert.Equal(t, "1080.00", e.balance(t, "u1"))
	assert.Equal(t, "0.00", e.balance(t, "u2"))
	assert.Equal(t, "1080.00", e.balance(t, "u3"))

	runs, err := e.mem.SweepRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sum.RunID, runs[0].ID)
	assert.Equal(t, invest.SweepCompleted, runs[0].Status)
	assert.Equal(t, invest.TriggerScheduled, runs[0].Trigger)
	assert.Equal(t, 1, runs[0].Failed)
	require.NotNil(t, runs[0].CompletedAt)

	// The next sweep picks up the failed one once the fault clears.
	delete(fs.fail, second.ID)
	sum, err = e.sweeper().Sweep(context.Background(), invest.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, "1080.00", e.balance(t, "u2"))
}

func TestSweep_OverlappingSweeps_PayOnce(t *testing.T) {
	// GIVEN: 20 due investments across 5 users
	// WHEN: Four sweeps run at the same time
	// THEN: Every investment is settled exactly once across all sweeps

	e := newEnv(t, nil)
	users := []invest.UserID{"a", "b", "c", "d", "e"}
	for _, u := range users {
		e.open(t, u, "1000")
		for i := 0; i < 4; i++ {
			e.invest(t, u, "fd-3m", "250")
		}
	}
	e.set(dueDay)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total maturity.Summary
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := e.sweeper().Sweep(context.Background(), invest.TriggerManual)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			total.Processed += sum.Processed
			total.Skipped += sum.Skipped
			total.Failed += sum.Failed
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, total.Processed)
	assert.Equal(t, 0, total.Failed)
	for _, u := range users {
		// 1000 + 4 * 250 * 8%
		assert.Equal(t, "1080.00", e.balance(t, u), "user %s", u)
	}
}

func TestSweep_TimeoutLeavesInvestmentActive(t *testing.T) {
	// GIVEN: A due investment whose row is held by another transaction
	// WHEN: Sweeping with a short settle timeout
	// THEN: The settlement times out, nothing is credited, and a later
	//       sweep settles it

	e := newEnv(t, nil)
	e.open(t, "u1", "1000")
	inv := e.invest(t, "u1", "fd-3m", "1000")
	e.set(dueDay)

	ctx := context.Background()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- e.mem.WithTx(ctx, func(tx invest.Tx) error {
			if _, err := tx.LockBalance(ctx, "u1"); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	sw := e.sweeper(maturity.WithConfig(maturity.Config{Concurrency: 1, SettleTimeout: 30 * time.Millisecond}))
	sum, err := sw.Sweep(ctx, invest.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, inv.ID, sum.Failures[0].InvestmentID)
	assert.Equal(t, invest.StatusActive, e.status(t, inv.ID))
	assert.Equal(t, "0.00", e.balance(t, "u1"))

	close(release)
	require.NoError(t, <-done)

	sum, err = sw.Sweep(ctx, invest.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, "1080.00", e.balance(t, "u1"))
}

func TestSweep_NothingDue(t *testing.T) {
	e := newEnv(t, nil)
	e.open(t, "u1", "1000")
	e.invest(t, "u1", "fd-3m", "1000")

	// One day before maturity.
	e.set(dueDay.AddDate(0, 0, -1))
	sum, err := e.sweeper().Sweep(context.Background(), invest.TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.Zero(t, sum.Failed)
}

type brokenCandidates struct{}

func (brokenCandidates) MaturingBefore(context.Context, time.Time, int) ([]invest.Investment, error) {
	return nil, errors.New("connection refused")
}

func TestSweep_ListFailureAbortsRun(t *testing.T) {
	e := newEnv(t, nil)
	sw := maturity.NewSweeper(e.ledger, brokenCandidates{},
		maturity.WithClock(e.clock), maturity.WithRunStore(e.mem))

	_, err := sw.Sweep(context.Background(), invest.TriggerScheduled)
	require.Error(t, err)

	runs, err := e.mem.SweepRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, invest.SweepAborted, runs[0].Status)
	assert.Contains(t, runs[0].Error, "connection refused")
}
