/*
store.go - Persistence interface for balances, investments and products

PURPOSE:
  Defines the interface between the ledger and the database. Reads go
  through Store; every balance or investment mutation goes through a Tx
  handed out by TxStore.WithTx so the pair commits together or not at all.

KEY INTERFACES:
  Catalog:       Read-only product lookup (external collaborator boundary)
  Store:         Committed-state reads (portfolio, returns, sweep candidates)
  Tx:            Row-locked read-modify-write inside one transaction
  TxStore:       Store + WithTx
  SweepRunStore: Audit of maturity sweep runs
  RequestLog:    Per-request transaction log

LOCKING CONTRACT:
  Tx.LockBalance acquires exclusive access to one user's balance row and
  holds it until the transaction ends. Tx.LockInvestment does the same for
  one investment row. Callers lock the balance first, then the investment.
  Two transactions on different users never block each other (stores with
  a single writer, like SQLite, serialize anyway).

ATOMICITY:
  If fn passed to WithTx returns an error, nothing it wrote is visible.
  Readers outside the transaction only ever see committed state.

IMPLEMENTATIONS:
  - invest/store/memory.go: In-memory, per-row locks (tests, dev)
  - store/sqlite/sqlite.go: SQLite, single writer
  - store/postgres/postgres.go: PostgreSQL, SELECT ... FOR UPDATE

SEE ALSO:
  - ledger.go: The only writer
  - balance.go: Debit/Credit built on Tx
*/
package invest

import (
	"context"
	"time"
)

// =============================================================================
// CATALOG - Product lookup
// =============================================================================

// Catalog resolves investment products. Read-only from the ledger's view.
type Catalog interface {
	// Product returns ErrProductNotFound for unknown ids.
	Product(ctx context.Context, id ProductID) (*Product, error)

	Products(ctx context.Context) ([]Product, error)
}

// =============================================================================
// STORE - Committed-state reads
// =============================================================================

type Store interface {
	Catalog

	// SaveProduct upserts a product. Used for seeding the catalog.
	SaveProduct(ctx context.Context, p Product) error

	// Balance returns ErrUserNotFound for unknown users.
	Balance(ctx context.Context, userID UserID) (Money, error)

	// Investment returns ErrInvestmentNotFound for unknown ids.
	Investment(ctx context.Context, id InvestmentID) (*Investment, error)

	// InvestmentsByUser returns all investments of a user, oldest first.
	InvestmentsByUser(ctx context.Context, userID UserID) ([]Investment, error)

	// MaturingBefore returns active investments with MaturityDate < before,
	// ordered by maturity date. limit <= 0 means no limit.
	MaturingBefore(ctx context.Context, before time.Time, limit int) ([]Investment, error)

	// SumMaturedReturns sums ExpectedReturn over the user's matured investments.
	SumMaturedReturns(ctx context.Context, userID UserID) (Money, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// Tx is the write side, valid only inside WithTx.
type Tx interface {
	// LockBalance locks the user's balance row and returns the balance.
	// Returns ErrUserNotFound if the user has no balance row.
	LockBalance(ctx context.Context, userID UserID) (Money, error)

	// SetBalance writes a balance previously locked in this transaction.
	SetBalance(ctx context.Context, userID UserID, balance Money) error

	// InsertBalance creates a balance row. Returns ErrUserExists on conflict.
	InsertBalance(ctx context.Context, userID UserID, balance Money) error

	// LockInvestment locks and returns an investment row.
	LockInvestment(ctx context.Context, id InvestmentID) (*Investment, error)

	InsertInvestment(ctx context.Context, inv Investment) error

	// UpdateInvestment persists Status and MaturedAt. Other fields are frozen.
	UpdateInvestment(ctx context.Context, inv Investment) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// =============================================================================
// SWEEP RUNS - Audit of maturity sweeps
// =============================================================================

type SweepTrigger string

const (
	TriggerScheduled SweepTrigger = "scheduled"
	TriggerManual    SweepTrigger = "manual"
)

type SweepStatus string

const (
	SweepRunning   SweepStatus = "running"
	SweepCompleted SweepStatus = "completed"
	SweepAborted   SweepStatus = "aborted"
)

// SweepFailure records one investment the sweep could not settle.
type SweepFailure struct {
	InvestmentID InvestmentID `json:"investment_id"`
	UserID       UserID       `json:"user_id"`
	Error        string       `json:"error"`
}

// SweepRun is one execution of the maturity sweep.
type SweepRun struct {
	ID          string
	Trigger     SweepTrigger
	Status      SweepStatus
	Processed   int
	Skipped     int
	Failed      int
	Failures    []SweepFailure
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

type SweepRunStore interface {
	// SaveSweepRun upserts by ID.
	SaveSweepRun(ctx context.Context, run SweepRun) error

	// SweepRuns returns the most recent runs first.
	SweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}

// =============================================================================
// REQUEST LOG - One entry per API call, for observability only
// =============================================================================

type LogEntry struct {
	ID         string
	UserID     UserID
	Endpoint   string
	Method     string
	StatusCode int
	Error      string
	CreatedAt  time.Time
}

// RequestLog stores log entries. Append-only.
type RequestLog interface {
	AppendLog(ctx context.Context, entry LogEntry) error

	// Logs returns entries for a user, newest first. Empty userID returns all.
	Logs(ctx context.Context, userID UserID, limit int) ([]LogEntry, error)
}
