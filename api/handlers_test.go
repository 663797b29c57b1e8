/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Placing investments and the error -> status mapping
- Account creation and balance reads
- Portfolio queries (list, returns, stats)
- Manual maturity sweep and sweep history
- Request log entries written by the middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invest-engine/invest"
	"github.com/warp/invest-engine/invest/store"
	"github.com/warp/invest-engine/maturity"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t      *testing.T
	router *chi.Mux
	store  *store.Memory

	mu  sync.Mutex
	now time.Time
}

func (s *testServer) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *testServer) advance(d time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = d
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		t:     t,
		store: store.NewMemory(),
		now:   time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, SeedProducts(context.Background(), s.store))

	ledger := invest.NewLedger(s.store, invest.WithClock(s.clock))
	sweeper := maturity.NewSweeper(ledger, s.store,
		maturity.WithClock(s.clock), maturity.WithRunStore(s.store))
	h := NewHandler(ledger, s.store, maturity.NewScheduler(sweeper, "", nil), nil)
	s.router = NewRouter(h, RouterOptions{})
	return s
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) openAccount(id, balance string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/users", map[string]string{"id": id, "opening_balance": balance})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// INVESTMENTS
// =============================================================================

func TestCreateInvestment_Success(t *testing.T) {
	// GIVEN: alice with 10000.00
	// WHEN: She invests 2000 in the 6-month 12% bond
	// THEN: 201 with expected return 240.00 and maturity 2025-07-15,
	//       and her balance drops to 8000.00

	s := newTestServer(t)
	s.openAccount("alice", "10000")

	rec := s.do(http.MethodPost, "/api/investments", map[string]string{
		"user_id": "alice", "product_id": "gov-bond-6m", "amount": "2000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	inv := decode[InvestmentDTO](t, rec)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "active", inv.Status)
	assert.Equal(t, "2000.00", inv.Amount.String())
	assert.Equal(t, "240.00", inv.ExpectedReturn.String())
	assert.Equal(t, "2025-07-15", inv.MaturityDate)

	bal := decode[BalanceDTO](t, s.do(http.MethodGet, "/api/users/alice/balance", nil))
	assert.Equal(t, "8000.00", bal.Balance.String())

	got := s.do(http.MethodGet, "/api/investments/"+inv.ID, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, inv.ID, decode[InvestmentDTO](t, got).ID)
}

func TestCreateInvestment_AcceptsNumericAmount(t *testing.T) {
	s := newTestServer(t)
	s.openAccount("alice", "10000")

	rec := s.do(http.MethodPost, "/api/investments",
		`{"user_id":"alice","product_id":"growth-etf","amount":150.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "150.50", decode[InvestmentDTO](t, rec).Amount.String())
}

func TestCreateInvestment_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name:     "unknown product",
			body:     map[string]string{"user_id": "alice", "product_id": "nope", "amount": "1000"},
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name:     "unknown user",
			body:     map[string]string{"user_id": "zed", "product_id": "gov-bond-6m", "amount": "1000"},
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name:     "below minimum",
			body:     map[string]string{"user_id": "alice", "product_id": "gov-bond-6m", "amount": "999.99"},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_RANGE",
		},
		{
			name:     "above maximum",
			body:     map[string]string{"user_id": "alice", "product_id": "gov-bond-6m", "amount": "50000.01"},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_RANGE",
		},
		{
			name:     "insufficient funds",
			body:     map[string]string{"user_id": "alice", "product_id": "fd-12m", "amount": "5000.01"},
			wantCode: http.StatusConflict,
			wantErr:  "INSUFFICIENT_FUNDS",
		},
		{
			name:     "negative amount",
			body:     map[string]string{"user_id": "alice", "product_id": "growth-etf", "amount": "-5"},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_INPUT",
		},
		{
			name:     "three decimal places",
			body:     `{"user_id":"alice","product_id":"growth-etf","amount":"100.001"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_INPUT",
		},
		{
			name:     "missing amount",
			body:     map[string]string{"user_id": "alice", "product_id": "growth-etf"},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_INPUT",
		},
		{
			name:     "malformed body",
			body:     `{"user_id":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.openAccount("alice", "5000")

			rec := s.do(http.MethodPost, "/api/investments", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
			}

			// Rejected requests never move money.
			bal := decode[BalanceDTO](t, s.do(http.MethodGet, "/api/users/alice/balance", nil))
			assert.Equal(t, "5000.00", bal.Balance.String())
		})
	}
}

func TestCreateInvestment_RangeDetails(t *testing.T) {
	s := newTestServer(t)
	s.openAccount("alice", "5000")

	rec := s.do(http.MethodPost, "/api/investments", map[string]string{
		"user_id": "alice", "product_id": "gov-bond-6m", "amount": "500",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000.00", resp.Details["min"])
	assert.Equal(t, "50000.00", resp.Details["max"])
	assert.Equal(t, "500.00", resp.Details["amount"])
}

func TestGetInvestment_NotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/investments/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// USERS
// =============================================================================

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/users", map[string]string{"id": "dana"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1000.00", decode[BalanceDTO](t, rec).Balance.String())

	rec = s.do(http.MethodPost, "/api/users", map[string]string{"id": "dana"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USER_EXISTS", decode[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/users", map[string]string{"id": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/users/nobody/balance", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PORTFOLIO & SWEEP
// =============================================================================

func TestMaturityFlow(t *testing.T) {
	// GIVEN: alice invested 2000 in the bond and 1000 in the 12-month deposit
	// WHEN: The clock reaches the bond's maturity date and a sweep is triggered
	// THEN: The bond is settled, returns are 240.00, the deposit stays active

	s := newTestServer(t)
	s.openAccount("alice", "10000")
	for _, body := range []map[string]string{
		{"user_id": "alice", "product_id": "gov-bond-6m", "amount": "2000"},
		{"user_id": "alice", "product_id": "fd-12m", "amount": "1000"},
	} {
		rec := s.do(http.MethodPost, "/api/investments", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	returns := decode[ReturnsDTO](t, s.do(http.MethodGet, "/api/users/alice/returns", nil))
	assert.Equal(t, "0.00", returns.TotalReturns.String())

	s.advance(time.Date(2025, time.July, 15, 0, 1, 0, 0, time.UTC))
	rec := s.do(http.MethodPost, "/api/admin/maturity-sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[SweepSummaryDTO](t, rec)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, "manual", sum.Trigger)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 0, sum.Failed)
	assert.Empty(t, sum.Failures)

	bal := decode[BalanceDTO](t, s.do(http.MethodGet, "/api/users/alice/balance", nil))
	assert.Equal(t, "9240.00", bal.Balance.String())

	returns = decode[ReturnsDTO](t, s.do(http.MethodGet, "/api/users/alice/returns", nil))
	assert.Equal(t, "240.00", returns.TotalReturns.String())

	portfolio := decode[[]InvestmentDTO](t, s.do(http.MethodGet, "/api/users/alice/portfolio", nil))
	require.Len(t, portfolio, 2)
	assert.Equal(t, "gov-bond-6m", portfolio[0].ProductID)
	assert.Equal(t, "matured", portfolio[0].Status)
	assert.NotEmpty(t, portfolio[0].MaturedAt)
	assert.Equal(t, "active", portfolio[1].Status)

	// A second sweep finds nothing to do.
	sum = decode[SweepSummaryDTO](t, s.do(http.MethodPost, "/api/admin/maturity-sweep", nil))
	assert.Zero(t, sum.Processed)

	runs := decode[[]SweepRunDTO](t, s.do(http.MethodGet, "/api/admin/sweeps", nil))
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, "completed", run.Status)
		assert.Equal(t, "manual", run.Trigger)
	}
}

func TestPortfolioStats(t *testing.T) {
	s := newTestServer(t)
	s.openAccount("alice", "10000")
	for _, body := range []map[string]string{
		{"user_id": "alice", "product_id": "gov-bond-6m", "amount": "2000"},
		{"user_id": "alice", "product_id": "growth-etf", "amount": "1000"},
	} {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/investments", body).Code)
	}

	stats := decode[PortfolioStatsDTO](t, s.do(http.MethodGet, "/api/users/alice/portfolio/stats", nil))
	assert.Equal(t, "3000.00", stats.TotalInvested.String())
	assert.Equal(t, 2, stats.InvestmentCount)
	assert.Equal(t, 2, stats.ActiveCount)
	assert.Equal(t, map[string]string{"low": "66.67", "high": "33.33"}, stats.RiskDistribution)
}

func TestEmptyPortfolio(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/users/ghost/portfolio", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	returns := decode[ReturnsDTO](t, s.do(http.MethodGet, "/api/users/ghost/returns", nil))
	assert.Equal(t, "0.00", returns.TotalReturns.String())
}

// =============================================================================
// PRODUCTS, LOGS, METRICS
// =============================================================================

func TestProducts(t *testing.T) {
	s := newTestServer(t)

	products := decode[[]ProductDTO](t, s.do(http.MethodGet, "/api/products", nil))
	assert.Len(t, products, len(DemoProducts()))

	p := decode[ProductDTO](t, s.do(http.MethodGet, "/api/products/balanced-mf", nil))
	assert.Equal(t, "9.5", p.AnnualYieldPercent)
	assert.Nil(t, p.MaxInvestment)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/products/nope", nil).Code)
}

func TestRequestLog(t *testing.T) {
	// GIVEN: alice opens an account and then overdraws
	// WHEN: Reading her log entries
	// THEN: Both requests are recorded newest first, with the failure reason

	s := newTestServer(t)
	s.openAccount("alice", "100")
	s.do(http.MethodPost, "/api/investments", map[string]string{
		"user_id": "alice", "product_id": "growth-etf", "amount": "500",
	})

	entries := decode[[]LogEntryDTO](t, s.do(http.MethodGet, "/api/logs?user_id=alice", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, http.StatusConflict, entries[0].StatusCode)
	assert.Equal(t, "/api/investments", entries[0].Endpoint)
	assert.Equal(t, http.MethodPost, entries[0].Method)
	assert.Contains(t, entries[0].Error, "insufficient funds")
	assert.Equal(t, http.StatusCreated, entries[1].StatusCode)
	assert.Empty(t, entries[1].Error)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/logs?limit=x", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/api/products", nil)

	rec := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invest_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{invest.ErrProductNotFound, http.StatusNotFound},
		{invest.ErrInvestmentNotFound, http.StatusNotFound},
		{&invest.RangeError{ProductID: "p"}, http.StatusBadRequest},
		{invest.ErrInvalidAmount, http.StatusBadRequest},
		{&invest.InsufficientFundsError{UserID: "u"}, http.StatusConflict},
		{invest.ErrNotMatured, http.StatusConflict},
		{&invest.TransientError{Op: "commit", Err: errors.New("database is locked")}, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
