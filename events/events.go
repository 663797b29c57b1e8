/*
Package events publishes committed ledger events to external consumers.

PURPOSE:
  The ledger calls invest.Notifier after a transaction commits. This package
  provides notifiers that serialize the event as JSON and hand it to Redis
  pub/sub or a Kafka topic. Delivery is best effort; the ledger logs a
  failed publish and moves on.

PAYLOAD:
  {
    "event_type": "investment.matured",
    "investment_id": "...", "user_id": "...", "product_id": "...",
    "amount": "2000.00", "expected_return": "240.00",
    "status": "matured", "maturity_date": "2025-07-15",
    "balance_after": "10240.00",
    "timestamp": "2025-07-15T00:00:00Z"
  }

SEE ALSO:
  - invest/events.go: Event and Notifier
  - redis.go, kafka.go: transports
*/
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/invest-engine/invest"
)

// Payload is the wire form of an invest.Event.
type Payload struct {
	EventType      string       `json:"event_type"`
	InvestmentID   string       `json:"investment_id"`
	UserID         string       `json:"user_id"`
	ProductID      string       `json:"product_id"`
	Amount         invest.Money `json:"amount"`
	ExpectedReturn invest.Money `json:"expected_return"`
	Status         string       `json:"status"`
	MaturityDate   string       `json:"maturity_date"`
	BalanceAfter   invest.Money `json:"balance_after"`
	Timestamp      time.Time    `json:"timestamp"`
}

func NewPayload(e invest.Event) Payload {
	return Payload{
		EventType:      string(e.Type),
		InvestmentID:   string(e.Investment.ID),
		UserID:         string(e.Investment.UserID),
		ProductID:      string(e.Investment.ProductID),
		Amount:         e.Investment.Amount,
		ExpectedReturn: e.Investment.ExpectedReturn,
		Status:         string(e.Investment.Status),
		MaturityDate:   invest.FormatDate(e.Investment.MaturityDate),
		BalanceAfter:   e.BalanceAfter,
		Timestamp:      e.At.UTC(),
	}
}

func encode(e invest.Event) ([]byte, error) {
	b, err := json.Marshal(NewPayload(e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, invest.Event) error { return nil }

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []invest.Notifier

func (f Fanout) Notify(ctx context.Context, e invest.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
