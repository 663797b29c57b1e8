package invest

import (
	"context"
	"fmt"
)

// =============================================================================
// BALANCE PRIMITIVES - Only valid inside TxStore.WithTx
// =============================================================================

// Debit locks the user's balance and subtracts amount.
// Fails with InsufficientFundsError when the balance would go negative.
func Debit(ctx context.Context, tx Tx, userID UserID, amount Money) (Money, error) {
	if !amount.IsPositive() {
		return Money{}, fmt.Errorf("debit %s: %w", amount, ErrInvalidAmount)
	}
	balance, err := tx.LockBalance(ctx, userID)
	if err != nil {
		return Money{}, err
	}
	if balance.LessThan(amount) {
		return balance, &InsufficientFundsError{UserID: userID, Available: balance, Requested: amount}
	}
	after := balance.Sub(amount)
	if err := tx.SetBalance(ctx, userID, after); err != nil {
		return Money{}, fmt.Errorf("debit user %s: %w", userID, err)
	}
	return after, nil
}

// Credit locks the user's balance and adds amount.
func Credit(ctx context.Context, tx Tx, userID UserID, amount Money) (Money, error) {
	if !amount.IsPositive() {
		return Money{}, fmt.Errorf("credit %s: %w", amount, ErrInvalidAmount)
	}
	balance, err := tx.LockBalance(ctx, userID)
	if err != nil {
		return Money{}, err
	}
	after := balance.Add(amount)
	if err := tx.SetBalance(ctx, userID, after); err != nil {
		return Money{}, fmt.Errorf("credit user %s: %w", userID, err)
	}
	return after, nil
}
