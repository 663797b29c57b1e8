/*
Package postgres provides a PostgreSQL-backed implementation of the invest storage interfaces.

PURPOSE:
  Same contract as store/sqlite, for deployments with more than one
  process. Concurrency control is left to the database:

    Tx.LockBalance    -> SELECT ... FROM user_balances WHERE user_id = $1 FOR UPDATE
    Tx.LockInvestment -> SELECT ... FROM investments  WHERE id = $1      FOR UPDATE

  Two transactions on different users take different row locks and run
  in parallel. The ledger always locks the balance before the investment.

TRANSIENT ERRORS:
  Serialization failure (40001), deadlock (40P01) and lock timeout (55P03)
  are returned as invest.TransientError so the ledger re-runs the whole
  transaction. Every transaction sets a local lock_timeout so a stuck
  lock surfaces as 55P03 rather than hanging the request.

MONEY:
  NUMERIC(20,2) columns. Values cross the wire as text (::text on read,
  ::numeric on write) and are parsed with shopspring/decimal.

SEE ALSO:
  - invest/store.go: Interface definitions
  - store/sqlite/sqlite.go: Single-process implementation
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/invest-engine/invest"
	"go.uber.org/zap"
)

// Options tunes the connection pool.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	LockTimeout     time.Duration
	ConnectAttempts int
	Logger          *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		LockTimeout:     5 * time.Second,
		ConnectAttempts: 5,
	}
}

// Store implements the invest storage interfaces on a pgx pool.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// Connect opens a pool, retrying with exponential backoff while the
// database comes up, then migrates the schema.
func Connect(ctx context.Context, dsn string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	attempts := opts.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Second

	var pool *pgxpool.Pool
	for i := 1; i <= attempts; i++ {
		pool, err = ping(ctx, cfg)
		if err == nil {
			break
		}
		logger.Warn("postgres connect failed",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if i == attempts {
			return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempts, err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	logger.Info("postgres connected", zap.String("host", cfg.ConnConfig.Host))

	s := &Store{pool: pool, lockTimeout: opts.LockTimeout}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func ping(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_balances (
		user_id TEXT PRIMARY KEY,
		balance NUMERIC(20,2) NOT NULL CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		min_investment NUMERIC(20,2) NOT NULL,
		max_investment NUMERIC(20,2),
		annual_yield NUMERIC(9,4) NOT NULL,
		tenure_months INTEGER NOT NULL,
		risk_level TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES user_balances(user_id),
		product_id TEXT NOT NULL,
		amount NUMERIC(20,2) NOT NULL,
		invested_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		expected_return NUMERIC(20,2) NOT NULL,
		maturity_date DATE NOT NULL,
		matured_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_investments_user
		ON investments(user_id, invested_at);
	CREATE INDEX IF NOT EXISTS idx_investments_status_maturity
		ON investments(status, maturity_date);

	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		failures JSONB,
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS transaction_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_logs_user
		ON transaction_logs(user_id, created_at DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// CATALOG
// =============================================================================

const productColumns = `id, name, type, min_investment::text, max_investment::text, annual_yield::text, tenure_months, risk_level, COALESCE(description, '')`

func (s *Store) Product(ctx context.Context, id invest.ProductID) (*invest.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, string(id))
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invest.ErrProductNotFound
	}
	if err != nil {
		return nil, classify("get product", err)
	}
	return &p, nil
}

func (s *Store) Products(ctx context.Context) ([]invest.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
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

func (s *Store) SaveProduct(ctx context.Context, p invest.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	var maxInv *string
	if p.MaxInvestment != nil {
		v := p.MaxInvestment.String()
		maxInv = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, type, min_investment, max_investment, annual_yield, tenure_months, risk_level, description)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			min_investment = EXCLUDED.min_investment,
			max_investment = EXCLUDED.max_investment,
			annual_yield = EXCLUDED.annual_yield,
			tenure_months = EXCLUDED.tenure_months,
			risk_level = EXCLUDED.risk_level,
			description = EXCLUDED.description
	`, string(p.ID), p.Name, string(p.Type), p.MinInvestment.String(), maxInv,
		p.AnnualYieldPercent.String(), p.TenureMonths, string(p.RiskLevel), p.Description)
	if err != nil {
		return classify("save product", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (invest.Product, error) {
	var (
		p                          invest.Product
		id, name, typ, risk        string
		minInv, yield, description string
		maxInv                     *string
	)
	if err := row.Scan(&id, &name, &typ, &minInv, &maxInv, &yield, &p.TenureMonths, &risk, &description); err != nil {
		return p, err
	}
	p.ID = invest.ProductID(id)
	p.Name = name
	p.Type = invest.ProductType(typ)
	p.RiskLevel = invest.RiskLevel(risk)
	p.Description = description

	var err error
	if p.MinInvestment, err = invest.ParseMoney(minInv); err != nil {
		return p, fmt.Errorf("product %s: %w", id, err)
	}
	if maxInv != nil {
		m, err := invest.ParseMoney(*maxInv)
		if err != nil {
			return p, fmt.Errorf("product %s: %w", id, err)
		}
		p.MaxInvestment = &m
	}
	if p.AnnualYieldPercent, err = decimal.NewFromString(yield); err != nil {
		return p, fmt.Errorf("product %s: yield: %w", id, err)
	}
	return p, nil
}

// =============================================================================
// COMMITTED READS
// =============================================================================

func (s *Store) Balance(ctx context.Context, userID invest.UserID) (invest.Money, error) {
	return queryBalance(ctx, s.pool, userID, "")
}

func (s *Store) Investment(ctx context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	return queryInvestment(ctx, s.pool, id, "")
}

func (s *Store) InvestmentsByUser(ctx context.Context, userID invest.UserID) ([]invest.Investment, error) {
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE user_id = $1
		ORDER BY invested_at ASC, id ASC
	`, string(userID))
}

func (s *Store) MaturingBefore(ctx context.Context, before time.Time, limit int) ([]invest.Investment, error) {
	// Compare dates, not timestamps, so the session time zone is irrelevant.
	bound := invest.DateOf(before)
	if before.After(bound) {
		bound = bound.AddDate(0, 0, 1)
	}
	query := `
		SELECT ` + investmentColumns + `
		FROM investments
		WHERE status = $1 AND maturity_date < $2::date
		ORDER BY maturity_date ASC, id ASC
	`
	args := []any{string(invest.StatusActive), invest.FormatDate(bound)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	return s.queryInvestments(ctx, query, args...)
}

func (s *Store) SumMaturedReturns(ctx context.Context, userID invest.UserID) (invest.Money, error) {
	var total string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(expected_return), 0)::numeric(20,2)::text
		FROM investments
		WHERE user_id = $1 AND status = $2
	`, string(userID), string(invest.StatusMatured)).Scan(&total)
	if err != nil {
		return invest.Money{}, classify("sum returns", err)
	}
	return invest.ParseMoney(total)
}

const investmentColumns = `id, user_id, product_id, amount::text, invested_at, status, expected_return::text, maturity_date, matured_at`

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) queryInvestments(ctx context.Context, query string, args ...any) ([]invest.Investment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("query investments", err)
	}
	defer rows.Close()

	var out []invest.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func queryBalance(ctx context.Context, db dbtx, userID invest.UserID, suffix string) (invest.Money, error) {
	var v string
	err := db.QueryRow(ctx, `SELECT balance::text FROM user_balances WHERE user_id = $1`+suffix, string(userID)).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return invest.Money{}, invest.ErrUserNotFound
	}
	if err != nil {
		return invest.Money{}, classify("get balance", err)
	}
	return invest.ParseMoney(v)
}

func queryInvestment(ctx context.Context, db dbtx, id invest.InvestmentID, suffix string) (*invest.Investment, error) {
	row := db.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`+suffix, string(id))
	inv, err := scanInvestment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invest.ErrInvestmentNotFound
	}
	if err != nil {
		return nil, classify("get investment", err)
	}
	return &inv, nil
}

func scanInvestment(row pgx.Row) (invest.Investment, error) {
	var (
		inv                      invest.Investment
		id, userID, productID    string
		status, amount, expected string
		investedAt, maturity     time.Time
		maturedAt                *time.Time
	)
	err := row.Scan(&id, &userID, &productID, &amount, &investedAt, &status, &expected, &maturity, &maturedAt)
	if err != nil {
		return inv, err
	}
	inv.ID = invest.InvestmentID(id)
	inv.UserID = invest.UserID(userID)
	inv.ProductID = invest.ProductID(productID)
	inv.Status = invest.Status(status)
	inv.InvestedAt = investedAt.UTC()
	inv.MaturityDate = invest.DateOf(maturity)
	if maturedAt != nil {
		t := maturedAt.UTC()
		inv.MaturedAt = &t
	}
	if inv.Amount, err = invest.ParseMoney(amount); err != nil {
		return inv, fmt.Errorf("investment %s: %w", id, err)
	}
	if inv.ExpectedReturn, err = invest.ParseMoney(expected); err != nil {
		return inv, fmt.Errorf("investment %s: %w", id, err)
	}
	return inv, nil
}

// =============================================================================
// TRANSACTIONAL STORE (invest.TxStore interface)
// =============================================================================

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken through
// the Tx are released at commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(invest.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		ms := s.lockTimeout.Milliseconds()
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)); err != nil {
			return classify("set lock timeout", err)
		}
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) LockBalance(ctx context.Context, userID invest.UserID) (invest.Money, error) {
	return queryBalance(ctx, ts.tx, userID, " FOR UPDATE")
}

func (ts *txStore) SetBalance(ctx context.Context, userID invest.UserID, balance invest.Money) error {
	if balance.IsNegative() {
		return fmt.Errorf("set balance %s to %s: %w", userID, balance, invest.ErrInsufficientFunds)
	}
	tag, err := ts.tx.Exec(ctx,
		`UPDATE user_balances SET balance = $2::numeric, updated_at = now() WHERE user_id = $1`,
		string(userID), balance.String())
	if err != nil {
		return classify("set balance", err)
	}
	if tag.RowsAffected() == 0 {
		return invest.ErrUserNotFound
	}
	return nil
}

func (ts *txStore) InsertBalance(ctx context.Context, userID invest.UserID, balance invest.Money) error {
	_, err := ts.tx.Exec(ctx,
		`INSERT INTO user_balances (user_id, balance) VALUES ($1, $2::numeric)`,
		string(userID), balance.String())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return invest.ErrUserExists
	}
	if err != nil {
		return classify("insert balance", err)
	}
	return nil
}

func (ts *txStore) LockInvestment(ctx context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	return queryInvestment(ctx, ts.tx, id, " FOR UPDATE")
}

func (ts *txStore) InsertInvestment(ctx context.Context, inv invest.Investment) error {
	_, err := ts.tx.Exec(ctx, `
		INSERT INTO investments (id, user_id, product_id, amount, invested_at, status, expected_return, maturity_date, matured_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8::date, $9)
	`, string(inv.ID), string(inv.UserID), string(inv.ProductID), inv.Amount.String(),
		inv.InvestedAt.UTC(), string(inv.Status), inv.ExpectedReturn.String(),
		invest.FormatDate(inv.MaturityDate), inv.MaturedAt)
	if err != nil {
		return classify("insert investment", err)
	}
	return nil
}

func (ts *txStore) UpdateInvestment(ctx context.Context, inv invest.Investment) error {
	tag, err := ts.tx.Exec(ctx,
		`UPDATE investments SET status = $2, matured_at = $3 WHERE id = $1`,
		string(inv.ID), string(inv.Status), inv.MaturedAt)
	if err != nil {
		return classify("update investment", err)
	}
	if tag.RowsAffected() == 0 {
		return invest.ErrInvestmentNotFound
	}
	return nil
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (s *Store) SaveSweepRun(ctx context.Context, r invest.SweepRun) error {
	failures, err := json.Marshal(r.Failures)
	if err != nil {
		return fmt.Errorf("encode sweep failures: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sweep_runs (id, trigger_kind, status, processed, skipped, failed, failures, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			processed = EXCLUDED.processed,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			failures = EXCLUDED.failures,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, r.ID, string(r.Trigger), string(r.Status), r.Processed, r.Skipped, r.Failed,
		failures, r.Error, r.StartedAt.UTC(), r.CompletedAt)
	if err != nil {
		return classify("save sweep run", err)
	}
	return nil
}

func (s *Store) SweepRuns(ctx context.Context, limit int) ([]invest.SweepRun, error) {
	query := `
		SELECT id, trigger_kind, status, processed, skipped, failed, failures, COALESCE(error, ''), started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list sweep runs", err)
	}
	defer rows.Close()

	var runs []invest.SweepRun
	for rows.Next() {
		var (
			r               invest.SweepRun
			trigger, status string
			failures        []byte
		)
		if err := rows.Scan(&r.ID, &trigger, &status, &r.Processed, &r.Skipped, &r.Failed,
			&failures, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Trigger = invest.SweepTrigger(trigger)
		r.Status = invest.SweepStatus(status)
		if len(failures) > 0 {
			if err := json.Unmarshal(failures, &r.Failures); err != nil {
				return nil, fmt.Errorf("sweep run %s: decode failures: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// REQUEST LOG
// =============================================================================

func (s *Store) AppendLog(ctx context.Context, e invest.LogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transaction_logs (id, user_id, endpoint, method, status_code, error, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), $7)
	`, e.ID, string(e.UserID), e.Endpoint, e.Method, e.StatusCode, e.Error, e.CreatedAt.UTC())
	if err != nil {
		return classify("append log", err)
	}
	return nil
}

func (s *Store) Logs(ctx context.Context, userID invest.UserID, limit int) ([]invest.LogEntry, error) {
	query := `SELECT id, COALESCE(user_id, ''), endpoint, method, status_code, COALESCE(error, ''), created_at FROM transaction_logs`
	var args []any
	if userID != "" {
		args = append(args, string(userID))
		query += fmt.Sprintf(` WHERE user_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list logs", err)
	}
	defer rows.Close()

	var entries []invest.LogEntry
	for rows.Next() {
		var (
			e    invest.LogEntry
			user string
		)
		if err := rows.Scan(&e.ID, &user, &e.Endpoint, &e.Method, &e.StatusCode, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = invest.UserID(user)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// classify marks contention errors transient so the ledger retries them.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
			return &invest.TransientError{Op: op, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
