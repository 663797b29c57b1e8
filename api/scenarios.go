/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos: a product catalog, funded accounts, and investments
	that are already due so the maturity sweep has something to settle.

AVAILABLE SCENARIOS:

	starter:        Demo catalog plus two funded accounts
	maturity-demo:  Demo catalog plus an account holding one investment that
	                is due today and one that is not

HOW SCENARIOS WORK:
 1. Upsert the demo products (SaveProduct)
 2. Open accounts through the ledger (existing accounts are left alone)
 3. Optionally place investments with a back-dated ledger clock

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "maturity-demo"}
	POST /api/admin/maturity-sweep

NOTE:

	Scenarios are additive and never delete data. Loading one twice does not
	place its investments twice.

SEE ALSO:
  - handlers.go: Handler
  - cmd/server/main.go: seeds DemoProducts into an empty catalog
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/invest-engine/invest"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "starter",
		Name:        "Starter",
		Description: "Demo product catalog with two funded accounts (alice, bob)",
	},
	{
		ID:          "maturity-demo",
		Name:        "Maturity Demo",
		Description: "Account carol with a 6-month bond due today and a 12-month deposit still running",
	},
}

// DemoProducts is the catalog used by the scenarios.
func DemoProducts() []invest.Product {
	bondMax := invest.MustMoney("50000")
	fdMax := invest.MustMoney("100000")
	return []invest.Product{
		{
			ID:                 "gov-bond-6m",
			Name:               "Government Bond 6M",
			Type:               invest.ProductBond,
			MinInvestment:      invest.MustMoney("1000"),
			MaxInvestment:      &bondMax,
			AnnualYieldPercent: decimal.RequireFromString("12"),
			TenureMonths:       6,
			RiskLevel:          invest.RiskLow,
			Description:        "Short-dated sovereign bond",
		},
		{
			ID:                 "fd-12m",
			Name:               "Fixed Deposit 12M",
			Type:               invest.ProductFD,
			MinInvestment:      invest.MustMoney("500"),
			MaxInvestment:      &fdMax,
			AnnualYieldPercent: decimal.RequireFromString("7.25"),
			TenureMonths:       12,
			RiskLevel:          invest.RiskLow,
			Description:        "Bank fixed deposit",
		},
		{
			ID:                 "balanced-mf",
			Name:               "Balanced Mutual Fund",
			Type:               invest.ProductMF,
			MinInvestment:      invest.MustMoney("250"),
			AnnualYieldPercent: decimal.RequireFromString("9.5"),
			TenureMonths:       24,
			RiskLevel:          invest.RiskMedium,
			Description:        "60/40 equity and debt",
		},
		{
			ID:                 "growth-etf",
			Name:               "Growth ETF",
			Type:               invest.ProductETF,
			MinInvestment:      invest.MustMoney("100"),
			AnnualYieldPercent: decimal.RequireFromString("14"),
			TenureMonths:       36,
			RiskLevel:          invest.RiskHigh,
			Description:        "Broad growth equity index",
		},
	}
}

// SeedProducts upserts the demo catalog.
func SeedProducts(ctx context.Context, store invest.Store) error {
	for _, p := range DemoProducts() {
		if err := p.Validate(); err != nil {
			return err
		}
		if err := store.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("save product %s: %w", p.ID, err)
		}
	}
	return nil
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "starter":
		err = h.loadStarterScenario(ctx)
	case "maturity-demo":
		err = h.loadMaturityDemoScenario(ctx)
	default:
		writeError(w, r, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStarterScenario(ctx context.Context) error {
	if err := SeedProducts(ctx, h.Store); err != nil {
		return err
	}
	if _, err := h.openIfMissing(ctx, "alice", invest.MustMoney("10000")); err != nil {
		return err
	}
	_, err := h.openIfMissing(ctx, "bob", invest.MustMoney("5000"))
	return err
}

// loadMaturityDemoScenario places carol's investments with a clock seven
// months in the past, so the 6-month bond is already due.
func (h *Handler) loadMaturityDemoScenario(ctx context.Context) error {
	if err := SeedProducts(ctx, h.Store); err != nil {
		return err
	}
	opened, err := h.openIfMissing(ctx, "carol", invest.MustMoney("10000"))
	if err != nil || !opened {
		return err
	}

	backdated := h.Ledger.WithClock(func() time.Time { return h.Ledger.Now().AddDate(0, -7, 0) })

	if _, err := backdated.Invest(ctx, "carol", "gov-bond-6m", invest.MustMoney("2000")); err != nil {
		return fmt.Errorf("invest in gov-bond-6m: %w", err)
	}
	if _, err := backdated.Invest(ctx, "carol", "fd-12m", invest.MustMoney("3000")); err != nil {
		return fmt.Errorf("invest in fd-12m: %w", err)
	}
	return nil
}

// openIfMissing opens an account and reports whether it was created.
func (h *Handler) openIfMissing(ctx context.Context, id invest.UserID, opening invest.Money) (bool, error) {
	err := h.Ledger.OpenAccount(ctx, id, opening)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, invest.ErrUserExists):
		return false, nil
	default:
		return false, fmt.Errorf("open account %s: %w", id, err)
	}
}
