/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in package invest from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  All amounts are decimal strings with two places ("2000.00"). Clients may
  send either a string or a JSON number; more than two decimal places is
  rejected as an invalid amount.

VALIDATION:
  Validation is done in handlers and the ledger, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/invest-engine/invest"
	"github.com/warp/invest-engine/maturity"
)

// =============================================================================
// INVESTMENTS
// =============================================================================

// CreateInvestmentRequest is the body of POST /api/investments.
type CreateInvestmentRequest struct {
	UserID    string        `json:"user_id"`
	ProductID string        `json:"product_id"`
	Amount    *invest.Money `json:"amount"`
}

type InvestmentDTO struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	ProductID      string       `json:"product_id"`
	Amount         invest.Money `json:"amount"`
	Status         string       `json:"status"`
	ExpectedReturn invest.Money `json:"expected_return"`
	InvestedAt     string       `json:"invested_at"`
	MaturityDate   string       `json:"maturity_date"`
	MaturedAt      string       `json:"matured_at,omitempty"`
}

func toInvestmentDTO(inv invest.Investment) InvestmentDTO {
	dto := InvestmentDTO{
		ID:             string(inv.ID),
		UserID:         string(inv.UserID),
		ProductID:      string(inv.ProductID),
		Amount:         inv.Amount,
		Status:         string(inv.Status),
		ExpectedReturn: inv.ExpectedReturn,
		InvestedAt:     inv.InvestedAt.Format(time.RFC3339),
		MaturityDate:   invest.FormatDate(inv.MaturityDate),
	}
	if inv.MaturedAt != nil {
		dto.MaturedAt = inv.MaturedAt.Format(time.RFC3339)
	}
	return dto
}

func toInvestmentDTOs(invs []invest.Investment) []InvestmentDTO {
	dtos := make([]InvestmentDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvestmentDTO(inv)
	}
	return dtos
}

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductDTO struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Type               string        `json:"type"`
	MinInvestment      invest.Money  `json:"min_investment"`
	MaxInvestment      *invest.Money `json:"max_investment"`
	AnnualYieldPercent string        `json:"annual_yield_percent"`
	TenureMonths       int           `json:"tenure_months"`
	RiskLevel          string        `json:"risk_level"`
	Description        string        `json:"description,omitempty"`
}

func toProductDTO(p invest.Product) ProductDTO {
	return ProductDTO{
		ID:                 string(p.ID),
		Name:               p.Name,
		Type:               string(p.Type),
		MinInvestment:      p.MinInvestment,
		MaxInvestment:      p.MaxInvestment,
		AnnualYieldPercent: p.AnnualYieldPercent.String(),
		TenureMonths:       p.TenureMonths,
		RiskLevel:          string(p.RiskLevel),
		Description:        p.Description,
	}
}

// =============================================================================
// USERS & PORTFOLIO
// =============================================================================

// CreateUserRequest is the body of POST /api/users.
// OpeningBalance defaults to the configured opening balance when omitted.
type CreateUserRequest struct {
	ID             string        `json:"id"`
	OpeningBalance *invest.Money `json:"opening_balance"`
}

type BalanceDTO struct {
	UserID  string       `json:"user_id"`
	Balance invest.Money `json:"balance"`
}

type ReturnsDTO struct {
	UserID       string       `json:"user_id"`
	TotalReturns invest.Money `json:"total_returns"`
}

type PortfolioStatsDTO struct {
	UserID           string            `json:"user_id"`
	TotalInvested    invest.Money      `json:"total_invested"`
	InvestmentCount  int               `json:"investment_count"`
	ActiveCount      int               `json:"active_count"`
	MaturedCount     int               `json:"matured_count"`
	RiskDistribution map[string]string `json:"risk_distribution"`
}

func toStatsDTO(s invest.Stats) PortfolioStatsDTO {
	dist := make(map[string]string, len(s.RiskDistribution))
	for risk, pct := range s.RiskDistribution {
		dist[string(risk)] = pct.StringFixed(2)
	}
	return PortfolioStatsDTO{
		UserID:           string(s.UserID),
		TotalInvested:    s.TotalInvested,
		InvestmentCount:  s.InvestmentCount,
		ActiveCount:      s.ActiveCount,
		MaturedCount:     s.MaturedCount,
		RiskDistribution: dist,
	}
}

// =============================================================================
// MATURITY SWEEPS
// =============================================================================

type SweepFailureDTO struct {
	InvestmentID string `json:"investment_id"`
	UserID       string `json:"user_id"`
	Error        string `json:"error"`
}

// SweepSummaryDTO is the response of POST /api/admin/maturity-sweep.
type SweepSummaryDTO struct {
	RunID     string            `json:"run_id"`
	Trigger   string            `json:"trigger"`
	Processed int               `json:"processed"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Failures  []SweepFailureDTO `json:"failures"`
}

func toFailureDTOs(fs []invest.SweepFailure) []SweepFailureDTO {
	dtos := make([]SweepFailureDTO, len(fs))
	for i, f := range fs {
		dtos[i] = SweepFailureDTO{InvestmentID: string(f.InvestmentID), UserID: string(f.UserID), Error: f.Error}
	}
	return dtos
}

func toSweepSummaryDTO(s maturity.Summary) SweepSummaryDTO {
	return SweepSummaryDTO{
		RunID:     s.RunID,
		Trigger:   string(s.Trigger),
		Processed: s.Processed,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
		Failures:  toFailureDTOs(s.Failures),
	}
}

type SweepRunDTO struct {
	ID          string            `json:"id"`
	Trigger     string            `json:"trigger"`
	Status      string            `json:"status"`
	Processed   int               `json:"processed"`
	Skipped     int               `json:"skipped"`
	Failed      int               `json:"failed"`
	Failures    []SweepFailureDTO `json:"failures"`
	Error       string            `json:"error,omitempty"`
	StartedAt   string            `json:"started_at"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

func toSweepRunDTO(r invest.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:        r.ID,
		Trigger:   string(r.Trigger),
		Status:    string(r.Status),
		Processed: r.Processed,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Failures:  toFailureDTOs(r.Failures),
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// TRANSACTION LOGS
// =============================================================================

type LogEntryDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toLogEntryDTO(e invest.LogEntry) LogEntryDTO {
	return LogEntryDTO{
		ID:         e.ID,
		UserID:     string(e.UserID),
		Endpoint:   e.Endpoint,
		Method:     e.Method,
		StatusCode: e.StatusCode,
		Error:      e.Error,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339Nano),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
