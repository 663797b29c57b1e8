/*
errors.go - Centralized error types for the investment ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and the HTTP layer classify failures with errors.Is/errors.As
  against these values.

ERROR CATEGORIES:
  1. Not found - unknown user, product or investment (not retried)
  2. Validation - amount out of range, bad amount, insufficient funds (not retried)
  3. State - settling an investment that is not due or not active
  4. Transient - lock contention, busy database, I/O blip (retried with backoff)

SEE ALSO:
  - ledger.go: Produces these errors
  - retry.go: Retries transient errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package invest

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvestmentNotFound = errors.New("investment not found")

	// ErrInvalidRange is returned when the amount is outside the product bounds.
	ErrInvalidRange = errors.New("amount outside product investment range")

	// ErrInvalidAmount is returned for non-positive amounts or amounts with
	// more precision than money carries.
	ErrInvalidAmount = errors.New("invalid amount")

	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotMatured is returned when settling before the maturity date.
	ErrNotMatured = errors.New("investment not yet matured")

	// ErrNotActive is returned when settling a cancelled investment.
	ErrNotActive = errors.New("investment not active")

	ErrUserExists    = errors.New("user already exists")
	ErrInvalidUserID = errors.New("user id is required")

	// ErrTransient marks failures that may succeed on retry.
	ErrTransient = errors.New("transient store error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RangeError provides details about an amount outside product bounds.
type RangeError struct {
	ProductID ProductID
	Amount    Money
	Min       Money
	Max       *Money
}

func (e *RangeError) Error() string {
	max := "unbounded"
	if e.Max != nil {
		max = e.Max.String()
	}
	return fmt.Sprintf("amount %s outside range [%s, %s] for product %s", e.Amount, e.Min, max, e.ProductID)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for user %s: available %s, requested %s",
		e.UserID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// TransientError wraps a store failure that is worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

func (e *TransientError) Unwrap() error { return e.Err }

// SettlementError attributes a settlement failure to an investment and user.
type SettlementError struct {
	InvestmentID InvestmentID
	UserID       UserID
	Err          error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settle investment %s (user %s): %v", e.InvestmentID, e.UserID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotMatured) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrUserExists) ||
		errors.Is(err, ErrInvalidUserID)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvestmentNotFound)
}
