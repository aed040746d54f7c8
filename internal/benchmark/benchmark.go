package benchmark

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/metrics"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/portfolio"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Engine 基准回放引擎，复用模拟组合与成本模型
type Engine struct {
	source         data.Source
	start, end     time.Time
	initialCapital float64
	costModel      cost.CostModel
}

// NewEngine 创建基准引擎；costModel 为 nil 时不计成本
func NewEngine(src data.Source, start, end time.Time, initialCapital float64, costModel cost.CostModel) *Engine {
	if costModel == nil {
		costModel = cost.NewZeroCostModel()
	}
	return &Engine{
		source:         src,
		start:          start,
		end:            end,
		initialCapital: initialCapital,
		costModel:      costModel,
	}
}

// Run 按交易日回放单个基准策略
func (e *Engine) Run(s RebalanceStrategy) (*types.BacktestResult, error) {
	pf := portfolio.NewSimulatedPortfolio(e.initialCapital, e.costModel)
	days := e.source.TradingDays(e.start, e.end)
	snapshots := make([]types.DailySnapshot, 0, len(days))

	for _, day := range days {
		prices := e.source.ClosePrices(day)
		if len(prices) == 0 || !s.Tradable(prices) {
			continue
		}

		tradesToday := 0
		if s.ShouldRebalance(day, prices) {
			trades, err := pf.RebalanceTo(s.TargetWeights(prices), prices, day, s.Reason())
			if err != nil {
				return nil, fmt.Errorf("%s rebalance on %s: %w", s.Name(), day.Format(types.DateLayout), err)
			}
			tradesToday = len(trades)
			s.OnRebalance(day)
		}
		pf.UpdatePrices(prices)

		snapshots = append(snapshots, types.DailySnapshot{
			Date:           day,
			TotalValue:     pf.TotalValue(),
			Cash:           pf.Cash(),
			PositionsValue: pf.PositionsValue(),
			Allocation:     pf.AllocationPct(),
			Scenario:       s.Label(),
			TradesToday:    tradesToday,
		})
	}

	res := &types.BacktestResult{
		Name:           s.Name(),
		StartDate:      e.start,
		EndDate:        e.end,
		InitialCapital: e.initialCapital,
		DailySnapshots: snapshots,
		Trades:         pf.Trades(),
	}
	metrics.Fill(res, pf.Marks())
	log.Debug().Str("benchmark", res.Name).Float64("net_return_pct", res.NetReturnPct).Msg("benchmark finished")
	return res, nil
}

// RunBuyAndHold 单一标的买入持有
func (e *Engine) RunBuyAndHold(symbol types.Symbol) (*types.BacktestResult, error) {
	return e.Run(NewBuyAndHold(symbol))
}

// RunFixedMix 两资产固定比例，按月再平衡
func (e *Engine) RunFixedMix(a types.Symbol, pctA float64, b types.Symbol) (*types.BacktestResult, error) {
	return e.Run(NewFixedMix(a, pctA, b))
}

// RunEqualWeight 等权篮子，按月再平衡
func (e *Engine) RunEqualWeight(symbols []types.Symbol) (*types.BacktestResult, error) {
	s, err := NewEqualWeight(symbols)
	if err != nil {
		return nil, err
	}
	return e.Run(s)
}

// RunAll 运行 SPY 买入持有、60/40 SPY+TLT 与策略标的等权三个基准 (顺序固定)
func (e *Engine) RunAll(strategySymbols []types.Symbol) ([]*types.BacktestResult, error) {
	bh, err := e.RunBuyAndHold(types.SymbolSPY)
	if err != nil {
		return nil, err
	}
	mix, err := e.RunFixedMix(types.SymbolSPY, 60, types.SymbolTLT)
	if err != nil {
		return nil, err
	}
	out := []*types.BacktestResult{bh, mix}
	if len(strategySymbols) == 0 {
		log.Warn().Msg("no strategy symbols, skipping equal-weight benchmark")
		return out, nil
	}
	ew, err := e.RunEqualWeight(strategySymbols)
	if err != nil {
		return nil, err
	}
	return append(out, ew), nil
}
