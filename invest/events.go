package invest

import (
	"context"
	"time"
)

type EventType string

const (
	EventInvestmentCreated EventType = "investment.created"
	EventInvestmentMatured EventType = "investment.matured"
)

// Event is emitted after a ledger transaction commits.
type Event struct {
	Type         EventType
	Investment   Investment
	BalanceAfter Money
	At           time.Time
}

// Notifier receives committed ledger events. Delivery is best effort: a
// failed notification is logged and never undoes the committed transaction.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }
