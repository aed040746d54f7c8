package benchmark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

var (
	start = types.Date(2026, 1, 26)
	end   = types.Date(2026, 3, 6)
)

func source() *data.MemorySource {
	src := data.NewMemorySource()
	for i, d := range src.TradingDays(start, end) {
		src.SetClose(types.SymbolSPY, d, 100+float64(i))
		src.SetClose(types.SymbolTLT, d, 50)
		if d.Month() != time.January {
			src.SetClose(types.SymbolGLD, d, 200)
		}
	}
	return src
}

func rebalanceDates(r *types.BacktestResult) []time.Time {
	var out []time.Time
	for _, t := range r.Trades {
		if len(out) == 0 || !out[len(out)-1].Equal(t.Date) {
			out = append(out, t.Date)
		}
	}
	return out
}

func TestBuyAndHold(t *testing.T) {
	e := NewEngine(source(), start, end, 100000, nil)
	res, err := e.RunBuyAndHold(types.SymbolSPY)
	require.NoError(t, err)

	assert.Equal(t, "SPY B&H", res.Name)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, start, res.Trades[0].Date)
	assert.Equal(t, ReasonBuyAndHold, res.Trades[0].Reason)
	assert.Equal(t, 1000.0, res.Trades[0].Shares)

	last := res.DailySnapshots[len(res.DailySnapshots)-1]
	n := float64(len(res.DailySnapshots) - 1)
	assert.InDelta(t, 1000*(100+n), last.TotalValue, 1e-6)
	assert.Equal(t, ReasonBuyAndHold, last.Scenario)
}

func TestBuyAndHoldWaitsForPrice(t *testing.T) {
	e := NewEngine(source(), start, end, 100000, nil)
	res, err := e.RunBuyAndHold(types.SymbolGLD)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, types.Date(2026, 2, 2), res.Trades[0].Date)
	assert.Equal(t, types.Date(2026, 2, 2), res.DailySnapshots[0].Date)
}

func TestFixedMixMonthly(t *testing.T) {
	e := NewEngine(source(), start, end, 100000, cost.NewDefaultCostModel(types.CostConfig{SpreadBps: 2}))
	res, err := e.RunFixedMix(types.SymbolSPY, 60, types.SymbolTLT)
	require.NoError(t, err)

	assert.Equal(t, "60/40 SPY+TLT", res.Name)
	assert.Equal(t, []time.Time{start, types.Date(2026, 2, 2), types.Date(2026, 3, 2)}, rebalanceDates(res))
	for _, tr := range res.Trades {
		assert.Equal(t, ReasonMonthly, tr.Reason)
	}
	assert.Greater(t, res.TotalCost, 0.0)
	assert.Equal(t, "60/40", res.DailySnapshots[0].Scenario)
}

func TestFixedMixSkipsMissingLeg(t *testing.T) {
	e := NewEngine(source(), start, end, 100000, nil)
	res, err := e.RunFixedMix(types.SymbolGLD, 50, types.SymbolTLT)
	require.NoError(t, err)
	assert.Equal(t, types.Date(2026, 2, 2), res.DailySnapshots[0].Date)
}

func TestEqualWeightRedistributes(t *testing.T) {
	e := NewEngine(source(), start, end, 100000, nil)
	res, err := e.RunEqualWeight([]types.Symbol{types.SymbolSPY, types.SymbolGLD})
	require.NoError(t, err)

	first := res.DailySnapshots[0]
	assert.InDelta(t, 100, first.Allocation.Pct(types.SymbolSPY), 0.01)

	for _, s := range res.DailySnapshots {
		if s.Date.Equal(types.Date(2026, 2, 2)) {
			assert.InDelta(t, 50, s.Allocation.Pct(types.SymbolSPY), 0.01)
			assert.InDelta(t, 50, s.Allocation.Pct(types.SymbolGLD), 0.01)
		}
	}

	_, err = e.RunEqualWeight(nil)
	assert.Error(t, err)
}

func TestRunAll(t *testing.T) {
	e := NewEngine(source(), start, end, 100000, nil)
	results, err := e.RunAll([]types.Symbol{types.SymbolSPY, types.SymbolTLT})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "SPY B&H", results[0].Name)
	assert.Equal(t, "60/40 SPY+TLT", results[1].Name)
	assert.Equal(t, "Equal-Weight", results[2].Name)

	results, err = e.RunAll(nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
