/*
Package sqlite provides a SQLite-backed implementation of the invest storage interfaces.

PURPOSE:
  Implements invest.TxStore, invest.SweepRunStore and invest.RequestLog
  using SQLite. Suitable for a single-process deployment and for tests
  (":memory:"). store/postgres carries the same contract to PostgreSQL
  with real row locks.

INTERFACES IMPLEMENTED:
  invest.TxStore:       Balances, products, investments, WithTx
  invest.SweepRunStore: Maturity sweep audit
  invest.RequestLog:    Per-request transaction log

KEY TABLES:
  user_balances:    One row per user, balance as decimal TEXT
  products:         Catalog (read-only to the ledger)
  investments:      Investments, never deleted
  sweep_runs:       One row per maturity sweep
  transaction_logs: One row per API request

INDEXES:
  - idx_investments_user:            Portfolio listing (hot path)
  - idx_investments_status_maturity: Sweep candidate scan

CONCURRENCY:
  SQLite has a single writer. Every WithTx holds the store mutex for
  writing and opens the transaction with BEGIN IMMEDIATE, so two ledger
  transactions never interleave and the per-row lock calls reduce to
  plain reads. Busy/locked errors are reported as invest.TransientError.
  Transactions queue on a weighted semaphore before taking the mutex, so
  a caller's deadline also bounds the wait for the writer slot.

MONEY:
  Decimals are stored as TEXT and parsed with shopspring/decimal. Nothing
  is ever summed as a float in SQL.

USAGE:
  store, err := sqlite.New("./data/invest.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := invest.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - invest/store.go: Interface definitions
  - invest/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/warp/invest-engine/invest"
)

// Store implements the invest storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// writer admits one WithTx at a time; waiting for it honours ctx.
	writer *semaphore.Weighted
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// only has one writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, writer: semaphore.NewWeighted(1)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_balances (
		user_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		min_investment TEXT NOT NULL,
		max_investment TEXT,
		annual_yield TEXT NOT NULL,
		tenure_months INTEGER NOT NULL,
		risk_level TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES user_balances(user_id),
		product_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		invested_at TEXT NOT NULL,
		status TEXT NOT NULL,
		expected_return TEXT NOT NULL,
		maturity_date TEXT NOT NULL,
		matured_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_investments_user
		ON investments(user_id, invested_at);

	-- Sweep scan: active investments by maturity date
	CREATE INDEX IF NOT EXISTS idx_investments_status_maturity
		ON investments(status, maturity_date);

	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		failures_json TEXT,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started
		ON sweep_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS transaction_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_logs_user
		ON transaction_logs(user_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG
// =============================================================================

const productColumns = `id, name, type, min_investment, max_investment, annual_yield, tenure_months, risk_level, description`

func (s *Store) Product(ctx context.Context, id invest.ProductID) (*invest.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invest.ErrProductNotFound
	}
	if err != nil {
		return nil, classify("get product", err)
	}
	return &p, nil
}

func (s *Store) Products(ctx context.Context) ([]invest.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, classify("list products", err)
	}
	defer rows.Close()

	var products []invest.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SaveProduct upserts a product.
func (s *Store) SaveProduct(ctx context.Context, p invest.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var maxInv sql.NullString
	if p.MaxInvestment != nil {
		maxInv = nullString(p.MaxInvestment.String())
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			min_investment = excluded.min_investment,
			max_investment = excluded.max_investment,
			annual_yield = excluded.annual_yield,
			tenure_months = excluded.tenure_months,
			risk_level = excluded.risk_level,
			description = excluded.description
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Type, p.MinInvestment.String(), maxInv,
		p.AnnualYieldPercent.String(), p.TenureMonths, p.RiskLevel, nullString(p.Description),
	)
	if err != nil {
		return classify("save product", err)
	}
	return nil
}

func scanProduct(row scanner) (invest.Product, error) {
	var (
		p           invest.Product
		minInv      string
		maxInv      sql.NullString
		yield       string
		description sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &minInv, &maxInv, &yield,
		&p.TenureMonths, &p.RiskLevel, &description); err != nil {
		return p, err
	}

	var err error
	if p.MinInvestment, err = invest.ParseMoney(minInv); err != nil {
		return p, fmt.Errorf("product %s: %w", p.ID, err)
	}
	if maxInv.Valid {
		m, err := invest.ParseMoney(maxInv.String)
		if err != nil {
			return p, fmt.Errorf("product %s: %w", p.ID, err)
		}
		p.MaxInvestment = &m
	}
	if p.AnnualYieldPercent, err = decimal.NewFromString(yield); err != nil {
		return p, fmt.Errorf("product %s: yield: %w", p.ID, err)
	}
	p.Description = description.String
	return p, nil
}

// =============================================================================
// COMMITTED READS
// =============================================================================

func (s *Store) Balance(ctx context.Context, userID invest.UserID) (invest.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryBalance(ctx, s.db, userID)
}

func (s *Store) Investment(ctx context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryInvestment(ctx, s.db, id)
}

// InvestmentsByUser returns a user's investments, oldest first.
func (s *Store) InvestmentsByUser(ctx context.Context, userID invest.UserID) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE user_id = ?
		ORDER BY invested_at ASC, rowid ASC
	`, userID)
}

// MaturingBefore returns active investments whose maturity date is before
// the given instant, earliest first.
func (s *Store) MaturingBefore(ctx context.Context, before time.Time, limit int) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// maturity_date is a YYYY-MM-DD string at midnight; round a mid-day
	// bound up so the string comparison matches time comparison.
	bound := invest.DateOf(before)
	if before.After(bound) {
		bound = bound.AddDate(0, 0, 1)
	}
	if limit <= 0 {
		limit = -1
	}

	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE status = ? AND maturity_date < ?
		ORDER BY maturity_date ASC, rowid ASC
		LIMIT ?
	`, invest.StatusActive, invest.FormatDate(bound), limit)
}

// SumMaturedReturns adds up expected_return of matured investments in decimal.
func (s *Store) SumMaturedReturns(ctx context.Context, userID invest.UserID) (invest.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT expected_return FROM investments WHERE user_id = ? AND status = ?`,
		userID, invest.StatusMatured)
	if err != nil {
		return invest.Money{}, classify("sum returns", err)
	}
	defer rows.Close()

	total := invest.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return invest.Money{}, err
		}
		m, err := invest.ParseMoney(v)
		if err != nil {
			return invest.Money{}, err
		}
		total = total.Add(m)
	}
	return total, rows.Err()
}

const investmentColumns = `id, user_id, product_id, amount, invested_at, status, expected_return, maturity_date, matured_at`

func (s *Store) queryInvestments(ctx context.Context, query string, args ...any) ([]invest.Investment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query investments", err)
	}
	defer rows.Close()

	var investments []invest.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

func queryInvestment(ctx context.Context, q querier, id invest.InvestmentID) (*invest.Investment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = ?`, id)
	inv, err := scanInvestment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invest.ErrInvestmentNotFound
	}
	if err != nil {
		return nil, classify("get investment", err)
	}
	return &inv, nil
}

func queryBalance(ctx context.Context, q querier, userID invest.UserID) (invest.Money, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT balance FROM user_balances WHERE user_id = ?`, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return invest.Money{}, invest.ErrUserNotFound
	}
	if err != nil {
		return invest.Money{}, classify("get balance", err)
	}
	return invest.ParseMoney(v)
}

func scanInvestment(row scanner) (invest.Investment, error) {
	var (
		inv            invest.Investment
		amount         string
		investedAt     string
		expectedReturn string
		maturityDate   string
		maturedAt      sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.UserID, &inv.ProductID, &amount, &investedAt,
		&inv.Status, &expectedReturn, &maturityDate, &maturedAt)
	if err != nil {
		return inv, err
	}

	if inv.Amount, err = invest.ParseMoney(amount); err != nil {
		return inv, fmt.Errorf("investment %s: %w", inv.ID, err)
	}
	if inv.ExpectedReturn, err = invest.ParseMoney(expectedReturn); err != nil {
		return inv, fmt.Errorf("investment %s: %w", inv.ID, err)
	}
	if inv.InvestedAt, err = parseTime(timeLayout, investedAt); err != nil {
		return inv, fmt.Errorf("investment %s: invested_at: %w", inv.ID, err)
	}
	if inv.MaturityDate, err = parseTime(dateLayout, maturityDate); err != nil {
		return inv, fmt.Errorf("investment %s: maturity_date: %w", inv.ID, err)
	}
	if maturedAt.Valid {
		t, err := parseTime(timeLayout, maturedAt.String)
		if err != nil {
			return inv, fmt.Errorf("investment %s: matured_at: %w", inv.ID, err)
		}
		inv.MaturedAt = &t
	}
	return inv, nil
}

// =============================================================================
// TRANSACTIONAL STORE (invest.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(invest.Tx) error) error {
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for writer: %w", err)
	}
	defer s.writer.Release(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

// LockBalance reads the balance. The immediate transaction already holds
// the database write lock.
func (ts *txStore) LockBalance(ctx context.Context, userID invest.UserID) (invest.Money, error) {
	return queryBalance(ctx, ts.tx, userID)
}

func (ts *txStore) SetBalance(ctx context.Context, userID invest.UserID, balance invest.Money) error {
	if balance.IsNegative() {
		return fmt.Errorf("set balance %s to %s: %w", userID, balance, invest.ErrInsufficientFunds)
	}
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE user_balances SET balance = ?, updated_at = ? WHERE user_id = ?`,
		balance.String(), now(), userID)
	if err != nil {
		return classify("set balance", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invest.ErrUserNotFound
	}
	return nil
}

func (ts *txStore) InsertBalance(ctx context.Context, userID invest.UserID, balance invest.Money) error {
	stamp := now()
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO user_balances (user_id, balance, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, balance.String(), stamp, stamp)
	if isUniqueConstraintError(err) {
		return invest.ErrUserExists
	}
	if err != nil {
		return classify("insert balance", err)
	}
	return nil
}

func (ts *txStore) LockInvestment(ctx context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	return queryInvestment(ctx, ts.tx, id)
}

func (ts *txStore) InsertInvestment(ctx context.Context, inv invest.Investment) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO investments (`+investmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.UserID, inv.ProductID, inv.Amount.String(),
		inv.InvestedAt.UTC().Format(timeLayout), inv.Status,
		inv.ExpectedReturn.String(), invest.FormatDate(inv.MaturityDate), formatTimePtr(inv.MaturedAt),
	)
	if err != nil {
		return classify("insert investment", err)
	}
	return nil
}

// UpdateInvestment persists the status transition. Frozen fields are not touched.
func (ts *txStore) UpdateInvestment(ctx context.Context, inv invest.Investment) error {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE investments SET status = ?, matured_at = ? WHERE id = ?`,
		inv.Status, formatTimePtr(inv.MaturedAt), inv.ID)
	if err != nil {
		return classify("update investment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invest.ErrInvestmentNotFound
	}
	return nil
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

// SaveSweepRun upserts a sweep run.
func (s *Store) SaveSweepRun(ctx context.Context, r invest.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failuresJSON, err := json.Marshal(r.Failures)
	if err != nil {
		return fmt.Errorf("encode sweep failures: %w", err)
	}

	query := `
		INSERT INTO sweep_runs (id, trigger_kind, status, processed, skipped, failed,
			failures_json, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed = excluded.processed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			failures_json = excluded.failures_json,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, r.Status, r.Processed, r.Skipped, r.Failed,
		string(failuresJSON), nullString(r.Error),
		r.StartedAt.UTC().Format(timeLayout), formatTimePtr(r.CompletedAt),
	)
	if err != nil {
		return classify("save sweep run", err)
	}
	return nil
}

// SweepRuns returns the most recent sweep runs first.
func (s *Store) SweepRuns(ctx context.Context, limit int) ([]invest.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, status, processed, skipped, failed, failures_json, error, started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, classify("list sweep runs", err)
	}
	defer rows.Close()

	var runs []invest.SweepRun
	for rows.Next() {
		var (
			r                      invest.SweepRun
			failuresJSON, errText  sql.NullString
			startedAt, completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &r.Processed, &r.Skipped, &r.Failed,
			&failuresJSON, &errText, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		if failuresJSON.Valid && failuresJSON.String != "" {
			if err := json.Unmarshal([]byte(failuresJSON.String), &r.Failures); err != nil {
				return nil, fmt.Errorf("sweep run %s: decode failures: %w", r.ID, err)
			}
		}
		r.Error = errText.String
		started, err := parseTime(timeLayout, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("sweep run %s: started_at: %w", r.ID, err)
		}
		r.StartedAt = started
		if completedAt.Valid {
			t, err := parseTime(timeLayout, completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("sweep run %s: completed_at: %w", r.ID, err)
			}
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// REQUEST LOG
// =============================================================================

func (s *Store) AppendLog(ctx context.Context, e invest.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_logs (id, user_id, endpoint, method, status_code, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullString(string(e.UserID)), e.Endpoint, e.Method, e.StatusCode,
		nullString(e.Error), e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return classify("append log", err)
	}
	return nil
}

// Logs returns log entries newest first. Empty userID returns every entry.
func (s *Store) Logs(ctx context.Context, userID invest.UserID, limit int) ([]invest.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, user_id, endpoint, method, status_code, error, created_at FROM transaction_logs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list logs", err)
	}
	defer rows.Close()

	var entries []invest.LogEntry
	for rows.Next() {
		var (
			e             invest.LogEntry
			user, errText sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&e.ID, &user, &e.Endpoint, &e.Method, &e.StatusCode, &errText, &createdAt); err != nil {
			return nil, err
		}
		e.UserID = invest.UserID(user.String)
		e.Error = errText.String
		created, err := parseTime(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("log entry %s: created_at: %w", e.ID, err)
		}
		e.CreatedAt = created
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so stored timestamps sort as strings.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dateLayout = "2006-01-02"
)

// parseTime rejects stored timestamps that do not match layout, so a
// corrupt row surfaces as an error instead of the zero time.
func parseTime(layout, v string) (time.Time, error) {
	t, err := time.Parse(layout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", v, err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func now() string { return time.Now().UTC().Format(timeLayout) }

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(t.UTC().Format(timeLayout))
}

// classify marks busy/locked errors transient so the ledger retries them.
func classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return &invest.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique)
}
