package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

var day1 = types.Date(2026, 1, 5)
var day2 = types.Date(2026, 1, 6)

func alloc(pairs ...interface{}) types.Allocation {
	var a types.Allocation
	for i := 0; i < len(pairs); i += 2 {
		a.Set(pairs[i].(types.Symbol), pairs[i+1].(float64))
	}
	return a
}

func TestInitialState(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	assert.Equal(t, 100000.0, p.Cash())
	assert.Equal(t, 100000.0, p.TotalValue())
	assert.Empty(t, p.Positions())
	assert.Empty(t, p.Trades())
}

func TestRebalanceFromCash(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	prices := types.PriceMap{types.SymbolSPY: 500, types.SymbolQQQ: 400}

	trades, err := p.RebalanceTo(alloc(types.SymbolSPY, 60.0, types.SymbolQQQ, 40.0), prices, day1, "rebalance")
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	assert.InDelta(t, 100000, p.TotalValue(), 1)

	spy, ok := p.Position(types.SymbolSPY)
	require.True(t, ok)
	assert.InDelta(t, 60000, spy.MarketValue(), 1)
}

func TestRebalanceConservesValue(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	prices := types.PriceMap{types.SymbolSPY: 512.37, types.SymbolTLT: 91.13, types.SymbolGLD: 187.5}
	target := alloc(types.SymbolSPY, 50.0, types.SymbolTLT, 30.0, types.SymbolGLD, 20.0)

	_, err := p.RebalanceTo(target, prices, day1, "rebalance")
	require.NoError(t, err)

	total := p.TotalValue()
	for _, w := range target.Weights() {
		pos, ok := p.Position(w.Symbol)
		require.True(t, ok)
		assert.InDelta(t, total*w.Pct/100, pos.MarketValue(), MinTradeValue)
	}
}

func TestSellsBeforeBuys(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	prices := types.PriceMap{types.SymbolSPY: 500, types.SymbolQQQ: 400}
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 60.0, types.SymbolQQQ, 40.0), prices, day1, "rebalance")
	require.NoError(t, err)

	trades, err := p.RebalanceTo(alloc(types.SymbolQQQ, 70.0, types.SymbolSPY, 30.0), prices, day2, "rebalance")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, types.SideSell, trades[0].Side)
	assert.Equal(t, types.SymbolSPY, trades[0].Symbol)
	assert.Equal(t, types.SideBuy, trades[1].Side)
	assert.InDelta(t, 100000, p.TotalValue(), 1)
}

func TestSellsPositionNotInTarget(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	prices := types.PriceMap{types.SymbolSPY: 500, types.SymbolQQQ: 400, types.SymbolDIA: 300}
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 50.0, types.SymbolQQQ, 30.0, types.SymbolDIA, 20.0), prices, day1, "rebalance")
	require.NoError(t, err)
	_, held := p.Position(types.SymbolDIA)
	require.True(t, held)

	_, err = p.RebalanceTo(alloc(types.SymbolSPY, 60.0, types.SymbolQQQ, 40.0), prices, day2, "rebalance")
	require.NoError(t, err)
	_, held = p.Position(types.SymbolDIA)
	assert.False(t, held)
}

func TestZeroWeightSoldOnce(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	prices := types.PriceMap{types.SymbolSPY: 500}
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 100.0), prices, day1, "rebalance")
	require.NoError(t, err)

	trades, err := p.RebalanceTo(alloc(types.SymbolSPY, 0.0), prices, day2, "rebalance")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, types.SideSell, trades[0].Side)
	assert.InDelta(t, 100000, p.Cash(), 1e-6)
}

func TestZeroCapital(t *testing.T) {
	p := NewSimulatedPortfolio(0, nil)
	trades, err := p.RebalanceTo(alloc(types.SymbolSPY, 100.0), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestMissingPriceSkipsSymbol(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	trades, err := p.RebalanceTo(alloc(types.SymbolSPY, 50.0, types.SymbolGLD, 50.0), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)
	for _, tr := range trades {
		assert.Equal(t, types.SymbolSPY, tr.Symbol)
	}
	assert.InDelta(t, 50000, p.Cash(), 1)
}

func TestSmallDeltaSkipped(t *testing.T) {
	p := NewSimulatedPortfolio(100, nil)
	trades, err := p.RebalanceTo(alloc(types.SymbolSPY, 0.1), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Empty(t, p.Trades())
}

func TestInvalidTargetRejected(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	prices := types.PriceMap{types.SymbolSPY: 500, types.SymbolQQQ: 400}

	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 60.0, types.SymbolQQQ, 41.0), prices, day1, "rebalance")
	require.ErrorIs(t, err, types.ErrAllocationSum)

	_, err = p.RebalanceTo(alloc(types.SymbolSPY, -5.0), prices, day1, "rebalance")
	require.Error(t, err)
	assert.Empty(t, p.Trades())
	assert.Equal(t, 100000.0, p.Cash())
}

func TestUnderAllocatedLeavesCash(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 80.0), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)
	assert.InDelta(t, 20000, p.Cash(), 1)
}

func TestWholeShareRounding(t *testing.T) {
	p := NewSimulatedPortfolio(1000, nil, types.SymbolSPY)
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 100.0), types.PriceMap{types.SymbolSPY: 300}, day1, "rebalance")
	require.NoError(t, err)
	pos, ok := p.Position(types.SymbolSPY)
	require.True(t, ok)
	assert.Equal(t, 3.0, pos.Shares)
	assert.InDelta(t, 100, p.Cash(), 1e-9)
}

func TestFractionalRounding(t *testing.T) {
	p := NewSimulatedPortfolio(1000, nil)
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 100.0), types.PriceMap{types.SymbolSPY: 300}, day1, "rebalance")
	require.NoError(t, err)
	pos, _ := p.Position(types.SymbolSPY)
	assert.Equal(t, 3.333333, pos.Shares)
}

func TestCostsDeducted(t *testing.T) {
	p := NewSimulatedPortfolio(100000, &cost.DefaultCostModel{SpreadBps: 10})
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 50.0), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)

	assert.InDelta(t, 49950, p.Cash(), 1e-6)
	assert.InDelta(t, 50, p.TotalCosts(), 1e-9)
	for _, tr := range p.Trades() {
		assert.Greater(t, tr.Cost, 0.0)
		assert.InDelta(t, tr.Shares*tr.Price, tr.Notional, 1e-9)
	}
}

func TestTotalCostsAccumulate(t *testing.T) {
	p := NewSimulatedPortfolio(100000, &cost.DefaultCostModel{SpreadBps: 5, FeeRate: cost.DefaultSECFeeRate})
	prices := types.PriceMap{types.SymbolSPY: 500, types.SymbolQQQ: 400}
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 50.0, types.SymbolQQQ, 30.0), prices, day1, "rebalance")
	require.NoError(t, err)
	afterBuy := p.TotalCosts()

	_, err = p.RebalanceTo(types.Allocation{}, prices, day2, "rebalance")
	require.NoError(t, err)
	assert.Greater(t, p.TotalCosts(), afterBuy)

	sum := 0.0
	for _, tr := range p.Trades() {
		sum += tr.Cost
	}
	assert.InDelta(t, sum, p.TotalCosts(), 1e-9)
}

func TestBuyReducedToAffordable(t *testing.T) {
	p := NewSimulatedPortfolio(100000, &cost.DefaultCostModel{SpreadBps: 10})
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 100.0), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Cash(), 0.0)
	pos, _ := p.Position(types.SymbolSPY)
	assert.Less(t, pos.Shares, 200.0)
	assert.Greater(t, pos.Shares, 199.0)
}

func TestCostMonotonicity(t *testing.T) {
	prices := types.PriceMap{types.SymbolSPY: 500, types.SymbolTLT: 90}
	final := func(spread float64) float64 {
		p := NewSimulatedPortfolio(100000, &cost.DefaultCostModel{SpreadBps: spread, FeeRate: cost.DefaultSECFeeRate})
		_, err := p.RebalanceTo(alloc(types.SymbolSPY, 60.0, types.SymbolTLT, 40.0), prices, day1, "rebalance")
		require.NoError(t, err)
		_, err = p.RebalanceTo(alloc(types.SymbolSPY, 30.0, types.SymbolTLT, 70.0), prices, day2, "rebalance")
		require.NoError(t, err)
		return p.TotalValue()
	}
	prev := final(0)
	for _, bps := range []float64{2, 5, 10, 20} {
		v := final(bps)
		assert.LessOrEqual(t, v, prev)
		prev = v
	}
}

func TestSlippage(t *testing.T) {
	p := NewSimulatedPortfolio(100000, &cost.DefaultCostModel{SlippageBps: 10})
	trades, err := p.RebalanceTo(alloc(types.SymbolSPY, 100.0), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, 500.5, trades[0].Price, 1e-9)

	trades, err = p.RebalanceTo(types.Allocation{}, types.PriceMap{types.SymbolSPY: 500}, day2, "rebalance")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Less(t, trades[0].Price, 500.0)
}

func TestUpdatePricesAndAllocation(t *testing.T) {
	p := NewSimulatedPortfolio(100000, nil)
	_, err := p.RebalanceTo(alloc(types.SymbolSPY, 100.0), types.PriceMap{types.SymbolSPY: 500}, day1, "rebalance")
	require.NoError(t, err)

	before := p.TotalValue()
	p.UpdatePrices(types.PriceMap{types.SymbolSPY: 510, types.SymbolGLD: 999})
	assert.Greater(t, p.TotalValue(), before)
	assert.InDelta(t, 100, p.AllocationPct().Pct(types.SymbolSPY), 1e-6)
	assert.Equal(t, 510.0, p.Marks()[types.SymbolSPY])
}
