// Package store provides in-process implementations of the invest store
// interfaces.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/warp/invest-engine/invest"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements invest.TxStore, invest.SweepRunStore and invest.RequestLog.
//
// Committed state lives in maps guarded by mu. Transactions take per-row
// locks (one per user balance, one per investment) that are held until
// commit or rollback, and buffer their writes so that readers never see a
// half-applied transaction.
type Memory struct {
	mu          sync.RWMutex
	products    map[invest.ProductID]invest.Product
	balances    map[invest.UserID]invest.Money
	investments map[invest.InvestmentID]invest.Investment
	order       []invest.InvestmentID
	runs        map[string]invest.SweepRun
	logs        []invest.LogEntry

	users *rowLocks[invest.UserID]
	invs  *rowLocks[invest.InvestmentID]
}

func NewMemory() *Memory {
	return &Memory{
		products:    make(map[invest.ProductID]invest.Product),
		balances:    make(map[invest.UserID]invest.Money),
		investments: make(map[invest.InvestmentID]invest.Investment),
		runs:        make(map[string]invest.SweepRun),
		users:       newRowLocks[invest.UserID](),
		invs:        newRowLocks[invest.InvestmentID](),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) Product(_ context.Context, id invest.ProductID) (*invest.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, invest.ErrProductNotFound
	}
	return &p, nil
}

func (m *Memory) Products(_ context.Context) ([]invest.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]invest.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveProduct(_ context.Context, p invest.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

// =============================================================================
// COMMITTED READS
// =============================================================================

func (m *Memory) Balance(_ context.Context, userID invest.UserID) (invest.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[userID]
	if !ok {
		return invest.Money{}, invest.ErrUserNotFound
	}
	return b, nil
}

func (m *Memory) Investment(_ context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.investments[id]
	if !ok {
		return nil, invest.ErrInvestmentNotFound
	}
	inv = cloneInvestment(inv)
	return &inv, nil
}

func (m *Memory) InvestmentsByUser(_ context.Context, userID invest.UserID) ([]invest.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []invest.Investment
	for _, id := range m.order {
		if inv := m.investments[id]; inv.UserID == userID {
			out = append(out, cloneInvestment(inv))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InvestedAt.Before(out[j].InvestedAt) })
	return out, nil
}

func (m *Memory) MaturingBefore(_ context.Context, before time.Time, limit int) ([]invest.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []invest.Investment
	for _, id := range m.order {
		inv := m.investments[id]
		if inv.Status == invest.StatusActive && inv.MaturityDate.Before(before) {
			out = append(out, cloneInvestment(inv))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MaturityDate.Before(out[j].MaturityDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SumMaturedReturns(_ context.Context, userID invest.UserID) (invest.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := invest.Zero
	for _, inv := range m.investments {
		if inv.UserID == userID && inv.Status == invest.StatusMatured {
			total = total.Add(inv.ExpectedReturn)
		}
	}
	return total, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn with a transaction view. Writes are applied when fn returns
// nil and discarded otherwise. Row locks are released in both cases.
func (m *Memory) WithTx(ctx context.Context, fn func(invest.Tx) error) error {
	tx := &memoryTx{
		parent:      m,
		heldUsers:   make(map[invest.UserID]bool),
		heldInvs:    make(map[invest.InvestmentID]bool),
		balances:    make(map[invest.UserID]invest.Money),
		investments: make(map[invest.InvestmentID]invest.Investment),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	parent *Memory

	heldUsers map[invest.UserID]bool
	heldInvs  map[invest.InvestmentID]bool

	// buffered writes
	balances    map[invest.UserID]invest.Money
	investments map[invest.InvestmentID]invest.Investment
	inserted    []invest.InvestmentID
}

func (t *memoryTx) lockUser(ctx context.Context, id invest.UserID) error {
	if t.heldUsers[id] {
		return nil
	}
	if err := t.parent.users.lock(ctx, id); err != nil {
		return fmt.Errorf("lock balance %s: %w", id, err)
	}
	t.heldUsers[id] = true
	return nil
}

func (t *memoryTx) lockInvestment(ctx context.Context, id invest.InvestmentID) error {
	if t.heldInvs[id] {
		return nil
	}
	if err := t.parent.invs.lock(ctx, id); err != nil {
		return fmt.Errorf("lock investment %s: %w", id, err)
	}
	t.heldInvs[id] = true
	return nil
}

func (t *memoryTx) LockBalance(ctx context.Context, userID invest.UserID) (invest.Money, error) {
	if err := t.lockUser(ctx, userID); err != nil {
		return invest.Money{}, err
	}
	if b, ok := t.balances[userID]; ok {
		return b, nil
	}
	return t.parent.Balance(ctx, userID)
}

func (t *memoryTx) SetBalance(_ context.Context, userID invest.UserID, balance invest.Money) error {
	if !t.heldUsers[userID] {
		return fmt.Errorf("set balance %s: row not locked", userID)
	}
	if balance.IsNegative() {
		return fmt.Errorf("set balance %s to %s: %w", userID, balance, invest.ErrInsufficientFunds)
	}
	t.balances[userID] = balance
	return nil
}

func (t *memoryTx) InsertBalance(ctx context.Context, userID invest.UserID, balance invest.Money) error {
	if err := t.lockUser(ctx, userID); err != nil {
		return err
	}
	if _, ok := t.balances[userID]; ok {
		return invest.ErrUserExists
	}
	if _, err := t.parent.Balance(ctx, userID); err == nil {
		return invest.ErrUserExists
	}
	t.balances[userID] = balance
	return nil
}

func (t *memoryTx) LockInvestment(ctx context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	if err := t.lockInvestment(ctx, id); err != nil {
		return nil, err
	}
	if inv, ok := t.investments[id]; ok {
		inv = cloneInvestment(inv)
		return &inv, nil
	}
	return t.parent.Investment(ctx, id)
}

func (t *memoryTx) InsertInvestment(ctx context.Context, inv invest.Investment) error {
	if err := t.lockInvestment(ctx, inv.ID); err != nil {
		return err
	}
	if _, ok := t.investments[inv.ID]; ok {
		return fmt.Errorf("insert investment %s: duplicate id", inv.ID)
	}
	if _, err := t.parent.Investment(ctx, inv.ID); err == nil {
		return fmt.Errorf("insert investment %s: duplicate id", inv.ID)
	}
	t.investments[inv.ID] = cloneInvestment(inv)
	t.inserted = append(t.inserted, inv.ID)
	return nil
}

func (t *memoryTx) UpdateInvestment(ctx context.Context, inv invest.Investment) error {
	if !t.heldInvs[inv.ID] {
		return fmt.Errorf("update investment %s: row not locked", inv.ID)
	}
	cur, err := t.LockInvestment(ctx, inv.ID)
	if err != nil {
		return err
	}
	cur.Status = inv.Status
	cur.MaturedAt = inv.MaturedAt
	t.investments[inv.ID] = cloneInvestment(*cur)
	return nil
}

func (t *memoryTx) commit() {
	m := t.parent
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range t.balances {
		m.balances[id] = b
	}
	for id, inv := range t.investments {
		m.investments[id] = inv
	}
	m.order = append(m.order, t.inserted...)
}

func (t *memoryTx) release() {
	for id := range t.heldInvs {
		t.parent.invs.unlock(id)
	}
	for id := range t.heldUsers {
		t.parent.users.unlock(id)
	}
}

// =============================================================================
// ROW LOCKS
// =============================================================================

// rowLocks hands out one exclusive lock per key. Waiting respects ctx.
// An entry lives only while someone holds or waits for it.
type rowLocks[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*rowLock
}

type rowLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newRowLocks[K comparable]() *rowLocks[K] {
	return &rowLocks[K]{locks: make(map[K]*rowLock)}
}

func (r *rowLocks[K]) acquire(k K) *rowLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[k]
	if !ok {
		l = &rowLock{sem: semaphore.NewWeighted(1)}
		r.locks[k] = l
	}
	l.refs++
	return l
}

func (r *rowLocks[K]) drop(k K, l *rowLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, k)
	}
}

func (r *rowLocks[K]) lock(ctx context.Context, k K) error {
	l := r.acquire(k)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		r.drop(k, l)
		return err
	}
	return nil
}

func (r *rowLocks[K]) unlock(k K) {
	r.mu.Lock()
	l := r.locks[k]
	r.mu.Unlock()
	l.sem.Release(1)
	r.drop(k, l)
}

func (r *rowLocks[K]) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (m *Memory) SaveSweepRun(_ context.Context, run invest.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Failures = append([]invest.SweepFailure(nil), run.Failures...)
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) SweepRuns(_ context.Context, limit int) ([]invest.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]invest.SweepRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// REQUEST LOG
// =============================================================================

func (m *Memory) AppendLog(_ context.Context, entry invest.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *Memory) Logs(_ context.Context, userID invest.UserID, limit int) ([]invest.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []invest.LogEntry
	for i := len(m.logs) - 1; i >= 0; i-- {
		if userID != "" && m.logs[i].UserID != userID {
			continue
		}
		out = append(out, m.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneInvestment(inv invest.Investment) invest.Investment {
	if inv.MaturedAt != nil {
		t := *inv.MaturedAt
		inv.MaturedAt = &t
	}
	return inv
}
