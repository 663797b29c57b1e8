package invest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PORTFOLIO - Read-only views over committed state
// =============================================================================

// Portfolio answers questions about a user's investments. It never writes.
type Portfolio struct {
	store   Store
	catalog Catalog
}

func NewPortfolio(store Store, catalog Catalog) *Portfolio {
	if catalog == nil {
		catalog = store
	}
	return &Portfolio{store: store, catalog: catalog}
}

// ListByUser returns every investment of the user, oldest first.
// An unknown user has an empty portfolio.
func (p *Portfolio) ListByUser(ctx context.Context, userID UserID) ([]Investment, error) {
	invs, err := p.store.InvestmentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list investments for %s: %w", userID, err)
	}
	return invs, nil
}

// TotalReturns sums ExpectedReturn over matured investments. Zero when none.
func (p *Portfolio) TotalReturns(ctx context.Context, userID UserID) (Money, error) {
	total, err := p.store.SumMaturedReturns(ctx, userID)
	if err != nil {
		return Money{}, fmt.Errorf("total returns for %s: %w", userID, err)
	}
	return total, nil
}

func (p *Portfolio) Get(ctx context.Context, id InvestmentID) (*Investment, error) {
	return p.store.Investment(ctx, id)
}

// Stats summarizes a portfolio.
type Stats struct {
	UserID          UserID
	TotalInvested   Money
	InvestmentCount int
	ActiveCount     int
	MaturedCount    int
	// RiskDistribution maps risk level to its share of TotalInvested, in
	// percent with two decimal places.
	RiskDistribution map[RiskLevel]decimal.Decimal
}

// Stats computes totals and the risk mix across all of the user's
// investments, matured ones included.
func (p *Portfolio) Stats(ctx context.Context, userID UserID) (Stats, error) {
	invs, err := p.ListByUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		UserID:           userID,
		InvestmentCount:  len(invs),
		RiskDistribution: make(map[RiskLevel]decimal.Decimal),
	}

	byRisk := make(map[RiskLevel]Money)
	products := make(map[ProductID]*Product)
	for _, inv := range invs {
		prod, ok := products[inv.ProductID]
		if !ok {
			prod, err = p.catalog.Product(ctx, inv.ProductID)
			if err != nil {
				return Stats{}, fmt.Errorf("stats for %s: investment %s: %w", userID, inv.ID, err)
			}
			products[inv.ProductID] = prod
		}

		stats.TotalInvested = stats.TotalInvested.Add(inv.Amount)
		byRisk[prod.RiskLevel] = byRisk[prod.RiskLevel].Add(inv.Amount)
		switch inv.Status {
		case StatusActive:
			stats.ActiveCount++
		case StatusMatured:
			stats.MaturedCount++
		}
	}

	if stats.TotalInvested.IsZero() {
		return stats, nil
	}
	hundred := decimal.NewFromInt(100)
	for risk, amt := range byRisk {
		stats.RiskDistribution[risk] = amt.Decimal().Mul(hundred).
			DivRound(stats.TotalInvested.Decimal(), MoneyPlaces)
	}
	return stats, nil
}
