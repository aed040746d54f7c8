package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

func snaps(start time.Time, values ...float64) []types.DailySnapshot {
	out := make([]types.DailySnapshot, len(values))
	for i, v := range values {
		out[i] = types.DailySnapshot{Date: start.AddDate(0, 0, i), TotalValue: v}
	}
	return out
}

func TestMaxDrawdown(t *testing.T) {
	dd := MaxDrawdownPct([]float64{100000, 105000, 95000, 98000})
	assert.InDelta(t, (95000.0-105000.0)/105000.0*100, dd, 1e-9)
	assert.InDelta(t, -9.52, dd, 0.01)

	assert.Equal(t, 0.0, MaxDrawdownPct(nil))
	assert.Equal(t, 0.0, MaxDrawdownPct([]float64{100, 101, 102}))
}

func TestNetReturn(t *testing.T) {
	s := snaps(types.Date(2026, 1, 5), 100000, 110000)
	assert.InDelta(t, 10, NetReturnPct(s, 100000), 1e-9)
	assert.Equal(t, 0.0, NetReturnPct(nil, 100000))
	assert.Equal(t, 0.0, NetReturnPct(s, 0))
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio([]float64{100}))
	assert.Equal(t, 0.0, SharpeRatio([]float64{100, 100, 100}))

	values := []float64{100, 101, 100.5, 102}
	rets := DailyReturns(values)
	want := Mean(rets) / PopulationStd(rets) * math.Sqrt(252)
	assert.InDelta(t, want, SharpeRatio(values), 1e-12)
	assert.False(t, math.IsNaN(SharpeRatio([]float64{0, 0})))
}

func TestTurnoverAndCost(t *testing.T) {
	trades := []types.TradeRecord{
		{Side: types.SideBuy, Shares: 40, Price: 500, Notional: 20000, Cost: 4},
		{Side: types.SideSell, Shares: 20, Price: 500, Notional: 10000, Cost: 2.5},
	}
	assert.InDelta(t, 0.3, Turnover(trades, 100000), 1e-12)
	assert.InDelta(t, 6.5, TotalCost(trades), 1e-12)
	assert.Equal(t, 0.0, Turnover(nil, 100000))
}

func TestGrossReturnReplaysWithoutCost(t *testing.T) {
	trades := []types.TradeRecord{
		{Symbol: types.SymbolSPY, Side: types.SideBuy, Shares: 100, Price: 500, Notional: 50000, Cost: 50},
		{Symbol: types.SymbolSPY, Side: types.SideSell, Shares: 50, Price: 520, Notional: 26000, Cost: 26},
	}
	marks := types.PriceMap{types.SymbolSPY: 540}
	// cash = 100000 - 50000 + 26000 = 76000, 50 股 * 540 = 27000
	assert.InDelta(t, 3, GrossReturnPct(trades, 100000, marks), 1e-9)
	assert.Equal(t, 0.0, GrossReturnPct(nil, 100000, nil))
}

func TestWeeklyPerformance(t *testing.T) {
	start := types.Date(2026, 1, 5)
	s := snaps(start, 100, 101, 102, 103, 104, 105, 106)
	s[0].TradesToday = 2
	s[3].TradesToday = 1
	s[3].Scenario = "bear"

	weeks := WeeklyPerformance(s, []time.Time{start, start.AddDate(0, 0, 3), start.AddDate(0, 0, 30)})
	require.Len(t, weeks, 2)

	assert.Equal(t, "2026-01-05", weeks[0].PeriodDate)
	assert.Equal(t, 100.0, weeks[0].StartValue)
	assert.Equal(t, 102.0, weeks[0].EndValue)
	assert.InDelta(t, 2, weeks[0].ReturnPct, 1e-9)
	assert.Equal(t, 2, weeks[0].Trades)
	assert.Equal(t, types.ScenarioBase, weeks[0].Scenario)

	assert.Equal(t, 103.0, weeks[1].StartValue)
	assert.Equal(t, 106.0, weeks[1].EndValue)
	assert.Equal(t, 1, weeks[1].Trades)
	assert.Equal(t, "bear", weeks[1].Scenario)

	assert.Nil(t, WeeklyPerformance(nil, []time.Time{start}))
}

func TestFill(t *testing.T) {
	r := &types.BacktestResult{
		InitialCapital: 100000,
		DailySnapshots: snaps(types.Date(2026, 1, 5), 100000, 105000, 95000, 98000),
		Trades: []types.TradeRecord{
			{Symbol: types.SymbolSPY, Side: types.SideBuy, Shares: 200, Price: 490, Notional: 98000, Cost: 10},
		},
		TransitionDays: []time.Time{types.Date(2026, 1, 5)},
	}
	Fill(r, types.PriceMap{types.SymbolSPY: 490})

	assert.Equal(t, 4, r.TradingDays)
	assert.Equal(t, 98000.0, r.FinalValue)
	assert.InDelta(t, -2, r.NetReturnPct, 1e-9)
	assert.InDelta(t, 0, r.GrossReturnPct, 1e-9)
	assert.InDelta(t, -9.5238, r.MaxDrawdownPct, 1e-4)
	assert.Equal(t, 1, r.TotalTrades)
	assert.InDelta(t, 10, r.TotalCost, 1e-12)
	assert.InDelta(t, 0.98, r.Turnover, 1e-12)
	require.Len(t, r.WeeklyPerformance, 1)
}

func TestStats(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, Mean(xs))
	assert.InDelta(t, math.Sqrt(1.25), PopulationStd(xs), 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), SampleStd(xs), 1e-12)
	assert.Equal(t, 0.0, SampleStd([]float64{1}))
	assert.Equal(t, 0.0, Annualized([]float64{0.01}))
	assert.Equal(t, 1.2346, Round(1.23456, 4))
}
