package invest_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/invest-engine/invest"
)

// =============================================================================
// MONEY
// =============================================================================

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2000", "2000.00", false},
		{"0.1", "0.10", false},
		{"12.34", "12.34", false},
		{"12.340", "12.34", false},
		{"12.345", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := invest.ParseMoney(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.String())
		})
	}
}

func TestMoney_JSON(t *testing.T) {
	var body struct {
		Amount invest.Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"2000.5"}`), &body))
	assert.Equal(t, "2000.50", body.Amount.String())

	require.NoError(t, json.Unmarshal([]byte(`{"amount":150}`), &body))
	assert.Equal(t, "150.00", body.Amount.String())

	err := json.Unmarshal([]byte(`{"amount":"1.005"}`), &body)
	assert.ErrorIs(t, err, invest.ErrInvalidAmount)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"150.00"}`, string(out))
}

func TestMoney_Percent_RoundsHalfUp(t *testing.T) {
	// 333.33 * 9.5% = 31.66635 -> 31.67
	got := invest.MustMoney("333.33").Percent(decimal.RequireFromString("9.5"))
	assert.Equal(t, "31.67", got.String())

	// 100.10 * 2.5% = 2.5025 -> 2.50
	got = invest.MustMoney("100.10").Percent(decimal.RequireFromString("2.5"))
	assert.Equal(t, "2.50", got.String())
}

// =============================================================================
// PRODUCT
// =============================================================================

func TestProduct_Validate(t *testing.T) {
	good := bond6m()
	require.NoError(t, good.Validate())

	inverted := bond6m()
	low := invest.MustMoney("10")
	inverted.MaxInvestment = &low
	assert.Error(t, inverted.Validate())

	noYield := bond6m()
	noYield.AnnualYieldPercent = decimal.Zero
	assert.Error(t, noYield.Validate())

	noTenure := bond6m()
	noTenure.TenureMonths = 0
	assert.Error(t, noTenure.Validate())
}

func TestProduct_Accepts_InclusiveBounds(t *testing.T) {
	p := bond6m()
	assert.True(t, p.Accepts(invest.MustMoney("1000")))
	assert.True(t, p.Accepts(invest.MustMoney("50000")))
	assert.False(t, p.Accepts(invest.MustMoney("999.99")))
	assert.False(t, p.Accepts(invest.MustMoney("50000.01")))
}

// =============================================================================
// INVESTMENT
// =============================================================================

func TestNewInvestment_FrozenFields(t *testing.T) {
	at := time.Date(2025, time.March, 3, 23, 0, 0, 0, time.UTC)
	inv := invest.NewInvestment("i1", "u1", bond6m(), invest.MustMoney("2000"), at)

	assert.Equal(t, invest.StatusActive, inv.Status)
	assert.Equal(t, "240.00", inv.ExpectedReturn.String())
	assert.Equal(t, "2025-09-03", invest.FormatDate(inv.MaturityDate))
	assert.Equal(t, "2240.00", inv.Payout().String())

	assert.False(t, inv.IsDue(time.Date(2025, time.September, 2, 23, 59, 0, 0, time.UTC)))
	assert.True(t, inv.IsDue(time.Date(2025, time.September, 3, 0, 0, 1, 0, time.UTC)))
	assert.True(t, inv.IsDue(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, invest.StatusActive.IsTerminal())
	assert.True(t, invest.StatusMatured.IsTerminal())
	assert.True(t, invest.StatusCancelled.IsTerminal())
}
