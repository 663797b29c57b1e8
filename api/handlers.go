/*
handlers.go - HTTP API handlers for the investment ledger

PURPOSE:
  Exposes the ledger, portfolio queries and the maturity sweep via REST.
  Handles HTTP request/response and JSON serialization, and delegates to
  package invest for everything that touches money.

ENDPOINTS:
  Investments:
    POST   /api/investments                  Place an investment
    GET    /api/investments/{id}             Get one investment

  Users:
    POST   /api/users                        Open an account
    GET    /api/users/{id}/balance           Current balance
    GET    /api/users/{id}/portfolio         All investments, oldest first
    GET    /api/users/{id}/portfolio/stats   Totals and risk distribution
    GET    /api/users/{id}/returns           Sum of matured returns

  Products (read-only):
    GET    /api/products
    GET    /api/products/{id}

  Admin:
    POST   /api/admin/maturity-sweep         Run a sweep now
    GET    /api/admin/sweeps                 Recent sweep runs

  Logs:
    GET    /api/logs?user_id=&limit=         Request log entries

  Scenarios:
    GET    /api/scenarios                    List demo scenarios
    POST   /api/scenarios/load               Load a demo scenario

ERROR HANDLING:
  Errors are returned as ErrorResponse with a status derived from the
  domain error (see statusFor):
  - 400: invalid amount, amount outside product range, bad input
  - 404: unknown user, product or investment
  - 409: insufficient funds, user already exists, investment not settleable
  - 503: transient store failure after retries, or request timeout
  - 500: anything else

SECURITY NOTE:
  No authentication. User identity is taken from the request as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/invest-engine/invest"
	"github.com/warp/invest-engine/maturity"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ManualSweeper runs a maturity sweep on demand. *maturity.Scheduler
// satisfies it.
type ManualSweeper interface {
	RunNow(ctx context.Context) (maturity.Summary, error)
}

// Store is everything the handlers read directly.
type Store interface {
	invest.Store
	invest.SweepRunStore
	invest.RequestLog
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *invest.Ledger
	Portfolio *invest.Portfolio
	Store     Store
	Sweeper   ManualSweeper
	Logger    *zap.Logger

	// OpeningBalance is used by CreateUser when the request has none.
	OpeningBalance invest.Money
}

// NewHandler wires handlers around a ledger whose store also keeps sweep
// runs and request logs.
func NewHandler(ledger *invest.Ledger, store Store, sweeper ManualSweeper, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Ledger:         ledger,
		Portfolio:      invest.NewPortfolio(store, nil),
		Store:          store,
		Sweeper:        sweeper,
		Logger:         logger,
		OpeningBalance: invest.DefaultOpeningBalance,
	}
}

// =============================================================================
// INVESTMENT ENDPOINTS
// =============================================================================

// CreateInvestment places an investment.
// POST /api/investments
func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	var req CreateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, invest.ErrInvalidAmount) {
			writeDomainError(w, r, err)
			return
		}
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	setLogUser(r, invest.UserID(req.UserID))

	if req.UserID == "" || req.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and product_id are required", nil)
		return
	}
	if req.Amount == nil {
		writeDomainError(w, r, invest.ErrInvalidAmount)
		return
	}

	inv, err := h.Ledger.Invest(r.Context(), invest.UserID(req.UserID), invest.ProductID(req.ProductID), *req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvestmentDTO(*inv))
}

// GetInvestment returns one investment.
// GET /api/investments/{id}
func (h *Handler) GetInvestment(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Portfolio.Get(r.Context(), invest.InvestmentID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	setLogUser(r, inv.UserID)
	writeJSON(w, http.StatusOK, toInvestmentDTO(*inv))
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// CreateUser opens an account.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	userID := invest.UserID(req.ID)
	setLogUser(r, userID)

	opening := h.OpeningBalance
	if req.OpeningBalance != nil {
		opening = *req.OpeningBalance
	}
	if err := h.Ledger.OpenAccount(r.Context(), userID, opening); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, BalanceDTO{UserID: req.ID, Balance: opening})
}

// GetBalance returns the user's current balance.
// GET /api/users/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := userParam(r)
	bal, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{UserID: string(userID), Balance: bal})
}

// GetPortfolio lists the user's investments, oldest first.
// GET /api/users/{id}/portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	invs, err := h.Portfolio.ListByUser(r.Context(), userParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTOs(invs))
}

// GetPortfolioStats returns totals and the risk distribution.
// GET /api/users/{id}/portfolio/stats
func (h *Handler) GetPortfolioStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Portfolio.Stats(r.Context(), userParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

// GetReturns returns the sum of matured returns.
// GET /api/users/{id}/returns
func (h *Handler) GetReturns(w http.ResponseWriter, r *http.Request) {
	userID := userParam(r)
	total, err := h.Portfolio.TotalReturns(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnsDTO{UserID: string(userID), TotalReturns: total})
}

// =============================================================================
// PRODUCT ENDPOINTS
// =============================================================================

// ListProducts returns the catalog.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.Products(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns one product.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.Product(r.Context(), invest.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// TriggerSweep runs a manual maturity sweep and returns its summary.
// Individual settlement failures are part of a 200 response; only a
// failure to list candidates is an error.
// POST /api/admin/maturity-sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Maturity sweeper not configured", nil)
		return
	}
	sum, err := h.Sweeper.RunNow(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepSummaryDTO(sum))
}

// ListSweeps returns recent sweep runs, newest first.
// GET /api/admin/sweeps?limit=
func (h *Handler) ListSweeps(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	runs, err := h.Store.SweepRuns(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LOG ENDPOINTS
// =============================================================================

// ListLogs returns request log entries, newest first.
// GET /api/logs?user_id=&limit=
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	entries, err := h.Store.Logs(r.Context(), invest.UserID(r.URL.Query().Get("user_id")), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLogEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func userParam(r *http.Request) invest.UserID {
	id := invest.UserID(chi.URLParam(r, "id"))
	setLogUser(r, id)
	return id
}

func limitParam(r *http.Request, def int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

// statusFor maps a domain error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case invest.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, invest.ErrInsufficientFunds):
		return http.StatusConflict, "INSUFFICIENT_FUNDS"
	case errors.Is(err, invest.ErrUserExists):
		return http.StatusConflict, "USER_EXISTS"
	case errors.Is(err, invest.ErrNotMatured), errors.Is(err, invest.ErrNotActive):
		return http.StatusConflict, "NOT_SETTLEABLE"
	case errors.Is(err, invest.ErrInvalidRange):
		return http.StatusBadRequest, "INVALID_RANGE"
	case invest.IsClientError(err):
		return http.StatusBadRequest, "INVALID_INPUT"
	case invest.IsRetryable(err),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeDomainError writes err with the status statusFor picks. Range and
// funds errors carry their numbers in Details.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var rangeErr *invest.RangeError
	var fundsErr *invest.InsufficientFundsError
	switch {
	case errors.As(err, &rangeErr):
		resp.Details = map[string]any{"min": rangeErr.Min, "max": rangeErr.Max, "amount": rangeErr.Amount}
	case errors.As(err, &fundsErr):
		resp.Details = map[string]any{"available": fundsErr.Available, "requested": fundsErr.Requested}
	}
	if status == http.StatusInternalServerError {
		// Internal details stay in the server log.
		resp.Error = "Internal error"
	}

	setLogError(r, err)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		setLogError(r, err)
	} else {
		setLogError(r, errors.New(message))
	}
	writeJSON(w, status, resp)
}
