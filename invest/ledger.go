/*
ledger.go - The investment ledger

PURPOSE:
  The Ledger is the single authority allowed to mutate the pairing of
  (user balance, investment). Every operation that touches money runs as
  one store transaction:

    Invest:         lock balance -> debit amount -> insert active investment
    SettleMaturity: lock balance -> lock investment -> credit payout -> mark matured

CRITICAL INVARIANTS:
  1. CONSERVATION: Money only moves between a balance and an investment.
     The only money created is the frozen ExpectedReturn, paid once.
  2. EXACTLY-ONCE PAYOUT: The status check and the credit happen under the
     same locks in the same transaction. A retry after a crash either sees
     the investment still active (and completes it) or matured (no-op).
  3. NO OVERDRAFT: Concurrent invests for one user serialize on that user's
     balance lock, so the balance check never reads a stale value.
  4. NO PARTIAL STATE: Both writes of a pair commit together or not at all.

VALIDATION ORDER (Invest):
  amount > 0 -> product exists -> amount in [min, max] -> user exists ->
  balance >= amount. Nothing is written before all checks pass.

LOCK ORDER:
  Balance first, then investment. Every transaction touches at most one
  balance and one investment, so the fixed order rules out deadlock.

RETRIES:
  Transient store errors (busy database, serialization failure, lock
  timeout) re-run the whole transaction under RetryPolicy. Everything
  else is returned to the caller as-is.

SEE ALSO:
  - balance.go: Debit/Credit
  - store.go: Tx locking contract
  - maturity/sweeper.go: Drives SettleMaturity for due investments
*/
package invest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultOpeningBalance is granted to accounts opened without an explicit amount.
var DefaultOpeningBalance = MoneyFromInt(1000)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store    TxStore
	notifier Notifier
	logger   *zap.Logger
	clock    Clock
	newID    func() InvestmentID
	retry    RetryPolicy
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option { return func(l *Ledger) { l.notifier = n } }

func WithLogger(lg *zap.Logger) Option { return func(l *Ledger) { l.logger = lg } }

func WithClock(c Clock) Option { return func(l *Ledger) { l.clock = c } }

func WithRetry(p RetryPolicy) Option { return func(l *Ledger) { l.retry = p } }

// WithIDGenerator overrides investment id generation.
func WithIDGenerator(f func() InvestmentID) Option { return func(l *Ledger) { l.newID = f } }

func NewLedger(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		clock:    SystemClock,
		newID:    func() InvestmentID { return InvestmentID(uuid.NewString()) },
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithClock returns a copy of the ledger that reads time from c. The copy
// shares the store, notifier, logger and retry policy.
func (l *Ledger) WithClock(c Clock) *Ledger {
	cp := *l
	cp.clock = c
	return &cp
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time { return l.clock() }

// =============================================================================
// INVEST
// =============================================================================

// Invest moves amount from the user's balance into a new active investment.
//
// Errors: ErrInvalidAmount, ErrProductNotFound, *RangeError (ErrInvalidRange),
// ErrUserNotFound, *InsufficientFundsError (ErrInsufficientFunds), or a
// wrapped ErrTransient once retries are exhausted.
func (l *Ledger) Invest(ctx context.Context, userID UserID, productID ProductID, amount Money) (*Investment, error) {
	start := time.Now()
	inv, after, err := l.invest(ctx, userID, productID, amount)
	ledgerOperations.WithLabelValues("invest", outcome(err)).Inc()
	ledgerOperationDuration.WithLabelValues("invest").Observe(time.Since(start).Seconds())

	if err != nil {
		l.logger.Info("invest rejected",
			zap.String("user_id", string(userID)),
			zap.String("product_id", string(productID)),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, err
	}

	l.logger.Info("investment created",
		zap.String("investment_id", string(inv.ID)),
		zap.String("user_id", string(userID)),
		zap.String("product_id", string(productID)),
		zap.String("amount", amount.String()),
		zap.String("expected_return", inv.ExpectedReturn.String()),
		zap.String("maturity_date", FormatDate(inv.MaturityDate)))

	l.notify(ctx, Event{Type: EventInvestmentCreated, Investment: inv, BalanceAfter: after, At: inv.InvestedAt})
	return &inv, nil
}

func (l *Ledger) invest(ctx context.Context, userID UserID, productID ProductID, amount Money) (Investment, Money, error) {
	if !amount.IsPositive() {
		return Investment{}, Money{}, fmt.Errorf("amount %s: %w", amount, ErrInvalidAmount)
	}

	var product *Product
	err := l.retry.Do(ctx, func() error {
		p, err := l.store.Product(ctx, productID)
		product = p
		return err
	})
	if err != nil {
		return Investment{}, Money{}, err
	}
	if !product.Accepts(amount) {
		return Investment{}, Money{}, &RangeError{
			ProductID: product.ID,
			Amount:    amount,
			Min:       product.MinInvestment,
			Max:       product.MaxInvestment,
		}
	}

	var (
		created Investment
		after   Money
	)
	err = l.retry.Do(ctx, func() error {
		return l.store.WithTx(ctx, func(tx Tx) error {
			bal, err := Debit(ctx, tx, userID, amount)
			if err != nil {
				return err
			}
			inv := NewInvestment(l.newID(), userID, *product, amount, l.clock())
			if err := tx.InsertInvestment(ctx, inv); err != nil {
				return fmt.Errorf("insert investment: %w", err)
			}
			created, after = inv, bal
			return nil
		})
	})
	return created, after, err
}

// =============================================================================
// SETTLE MATURITY
// =============================================================================

type SettleResult string

const (
	// Settled means this call credited the payout.
	Settled SettleResult = "settled"
	// AlreadyMatured means an earlier call did; nothing was written.
	AlreadyMatured SettleResult = "already_matured"
)

// SettleMaturity pays out a due investment exactly once.
// Calling it on an already matured investment is a no-op.
//
// Errors are returned as *SettlementError wrapping ErrInvestmentNotFound,
// ErrNotMatured, ErrNotActive, ErrUserNotFound or a store failure.
func (l *Ledger) SettleMaturity(ctx context.Context, id InvestmentID) (SettleResult, error) {
	start := time.Now()
	res, inv, after, err := l.settle(ctx, id)
	ledgerOperations.WithLabelValues("settle", outcome(err)).Inc()
	ledgerOperationDuration.WithLabelValues("settle").Observe(time.Since(start).Seconds())

	if err != nil {
		return "", &SettlementError{InvestmentID: id, UserID: inv.UserID, Err: err}
	}
	if res == AlreadyMatured {
		l.logger.Debug("investment already matured", zap.String("investment_id", string(id)))
		return res, nil
	}

	l.logger.Info("investment matured",
		zap.String("investment_id", string(id)),
		zap.String("user_id", string(inv.UserID)),
		zap.String("payout", inv.Payout().String()),
		zap.String("balance_after", after.String()))

	l.notify(ctx, Event{Type: EventInvestmentMatured, Investment: inv, BalanceAfter: after, At: *inv.MaturedAt})
	return res, nil
}

func (l *Ledger) settle(ctx context.Context, id InvestmentID) (SettleResult, Investment, Money, error) {
	var (
		result  SettleResult
		settled Investment
		after   Money
		owner   UserID
	)
	err := l.retry.Do(ctx, func() error {
		// Unlocked read to learn the owner so the balance can be locked first.
		inv, err := l.store.Investment(ctx, id)
		if err != nil {
			return err
		}
		owner = inv.UserID
		if inv.Status == StatusMatured {
			result, settled = AlreadyMatured, *inv
			return nil
		}

		return l.store.WithTx(ctx, func(tx Tx) error {
			if _, err := tx.LockBalance(ctx, owner); err != nil {
				return err
			}
			cur, err := tx.LockInvestment(ctx, id)
			if err != nil {
				return err
			}
			owner = cur.UserID

			if cur.Status.IsTerminal() {
				if cur.Status != StatusMatured {
					return ErrNotActive
				}
				result, settled = AlreadyMatured, *cur
				return nil
			}

			now := l.clock()
			if !cur.IsDue(now) {
				return fmt.Errorf("due %s: %w", FormatDate(cur.MaturityDate), ErrNotMatured)
			}

			bal, err := Credit(ctx, tx, cur.UserID, cur.Payout())
			if err != nil {
				return err
			}
			cur.Status = StatusMatured
			cur.MaturedAt = &now
			if err := tx.UpdateInvestment(ctx, *cur); err != nil {
				return fmt.Errorf("update investment: %w", err)
			}
			result, settled, after = Settled, *cur, bal
			return nil
		})
	})
	if err != nil {
		return "", Investment{ID: id, UserID: owner}, Money{}, err
	}
	return result, settled, after, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// OpenAccount provisions a balance for a new user.
func (l *Ledger) OpenAccount(ctx context.Context, userID UserID, opening Money) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if opening.IsNegative() {
		return fmt.Errorf("opening balance %s: %w", opening, ErrInvalidAmount)
	}
	err := l.retry.Do(ctx, func() error {
		return l.store.WithTx(ctx, func(tx Tx) error {
			return tx.InsertBalance(ctx, userID, opening)
		})
	})
	ledgerOperations.WithLabelValues("open_account", outcome(err)).Inc()
	if err != nil {
		return err
	}
	l.logger.Info("account opened", zap.String("user_id", string(userID)), zap.String("balance", opening.String()))
	return nil
}

// Balance returns the committed balance of a user.
func (l *Ledger) Balance(ctx context.Context, userID UserID) (Money, error) {
	return l.store.Balance(ctx, userID)
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) notify(ctx context.Context, e Event) {
	if err := l.notifier.Notify(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Warn("event notification failed",
			zap.String("event", string(e.Type)),
			zap.String("investment_id", string(e.Investment.ID)),
			zap.Error(err))
	}
}
