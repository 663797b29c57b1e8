/*
Package invest provides the investment ledger and maturity engine.

PURPOSE:
  This package owns the pairing of (user balance, investment record). It
  moves principal out of a user's balance into a fixed-term investment and,
  once the investment matures, moves principal plus the frozen return back.
  Nothing else in the system is allowed to mutate a balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A currency amount, fixed-point with 2 decimal places
  - Product: Read-only investment terms (bounds, yield, tenure, risk)
  - Investment: A placed investment with frozen return and maturity date
  - Status: active -> matured | cancelled (terminal states)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for money
  2. Frozen terms: ExpectedReturn and MaturityDate are computed once at
     creation and never recomputed from the live catalog
  3. Type Safety: Distinct ID types prevent mixing user/product/investment IDs
  4. Auditability: Investments are never deleted

USAGE:
  amount := invest.MustMoney("2000")
  inv, err := ledger.Invest(ctx, "user-1", "bond-6m", amount)

SEE ALSO:
  - ledger.go: Invest and SettleMaturity transactions
  - balance.go: Debit/Credit primitives
  - store.go: Persistence contract
*/
package invest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point currency amount
// =============================================================================

// MoneyPlaces is the number of decimal places money is kept at.
const MoneyPlaces = 2

// Money is a currency amount rounded to MoneyPlaces.
type Money struct {
	d decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money { return Money{d: d.Round(MoneyPlaces)} }
func MoneyFromInt(v int64) Money { return Money{d: decimal.NewFromInt(v)} }

// ParseMoney parses a decimal string. Values with more than MoneyPlaces
// fractional digits are rejected rather than silently rounded.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	if !d.Equal(d.Round(MoneyPlaces)) {
		return Money{}, fmt.Errorf("parse money %q: %w", s, ErrInvalidAmount)
	}
	return Money{d: d}, nil
}

// MustMoney is ParseMoney for constants and tests.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

var Zero = Money{}

func (m Money) Decimal() decimal.Decimal { return m.d }
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) IsPositive() bool { return m.d.IsPositive() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }
func (m Money) IsZero() bool { return m.d.IsZero() }
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) String() string { return m.d.StringFixed(MoneyPlaces) }

// Percent returns m × pct / 100, rounded to MoneyPlaces.
func (m Money) Percent(pct decimal.Decimal) Money {
	return NewMoney(m.d.Mul(pct).Div(decimal.NewFromInt(100)))
}

// MarshalJSON encodes money as a decimal string to keep precision on the wire.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	if !d.Equal(d.Round(MoneyPlaces)) {
		return fmt.Errorf("money %s: %w", d.String(), ErrInvalidAmount)
	}
	m.d = d
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ProductID string
type InvestmentID string

// =============================================================================
// PRODUCT - Investment terms (read-only to the ledger)
// =============================================================================

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type ProductType string

const (
	ProductBond  ProductType = "bond"
	ProductFD    ProductType = "fd"
	ProductMF    ProductType = "mf"
	ProductETF   ProductType = "etf"
	ProductOther ProductType = "other"
)

// Product describes what a user can invest in.
// MaxInvestment nil means the product has no upper bound.
type Product struct {
	ID                 ProductID
	Name               string
	Type               ProductType
	MinInvestment      Money
	MaxInvestment      *Money
	AnnualYieldPercent decimal.Decimal
	TenureMonths       int
	RiskLevel          RiskLevel
	Description        string
}

// Validate checks the catalog invariants.
func (p Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("product: id is required")
	}
	if p.MinInvestment.IsNegative() {
		return fmt.Errorf("product %s: negative minimum", p.ID)
	}
	if p.MaxInvestment != nil && p.MaxInvestment.LessThan(p.MinInvestment) {
		return fmt.Errorf("product %s: maximum %s below minimum %s", p.ID, p.MaxInvestment, p.MinInvestment)
	}
	if !p.AnnualYieldPercent.IsPositive() {
		return fmt.Errorf("product %s: annual yield must be positive", p.ID)
	}
	if p.TenureMonths <= 0 {
		return fmt.Errorf("product %s: tenure must be positive", p.ID)
	}
	return nil
}

// Accepts reports whether amount is inside [min, max].
func (p Product) Accepts(amount Money) bool {
	if amount.LessThan(p.MinInvestment) {
		return false
	}
	return p.MaxInvestment == nil || !amount.GreaterThan(*p.MaxInvestment)
}

// =============================================================================
// INVESTMENT - Principal locked into a product until maturity
// =============================================================================

type Status string

const (
	StatusActive    Status = "active"
	StatusMatured   Status = "matured"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool { return s == StatusMatured || s == StatusCancelled }

// Investment is a placed investment.
//
// INVARIANTS:
//   - ExpectedReturn and MaturityDate are set once by NewInvestment.
//   - Status only moves active -> matured or active -> cancelled.
type Investment struct {
	ID             InvestmentID
	UserID         UserID
	ProductID      ProductID
	Amount         Money
	InvestedAt     time.Time
	Status         Status
	ExpectedReturn Money
	MaturityDate   time.Time // calendar date, UTC midnight
	MaturedAt      *time.Time
}

// Payout is what settlement credits back to the user.
func (i Investment) Payout() Money { return i.Amount.Add(i.ExpectedReturn) }

// IsDue reports whether the investment may be settled on the given day.
func (i Investment) IsDue(today time.Time) bool {
	return !i.MaturityDate.After(DateOf(today))
}

// NewInvestment builds an active investment with its frozen fields.
// expectedReturn = amount × yield / 100; maturity = date(at) + tenure months.
func NewInvestment(id InvestmentID, userID UserID, p Product, amount Money, at time.Time) Investment {
	return Investment{
		ID:             id,
		UserID:         userID,
		ProductID:      p.ID,
		Amount:         amount,
		InvestedAt:     at.UTC(),
		Status:         StatusActive,
		ExpectedReturn: amount.Percent(p.AnnualYieldPercent),
		MaturityDate:   AddMonthsClamped(DateOf(at), p.TenureMonths),
	}
}
