package metrics

import (
	"math"
	"time"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Values 快照总市值序列
func Values(snapshots []types.DailySnapshot) []float64 {
	out := make([]float64, len(snapshots))
	for i, s := range snapshots {
		out[i] = s.TotalValue
	}
	return out
}

// ReturnPct 区间收益率 (%)，起点非正时为 0
func ReturnPct(start, end float64) float64 {
	if start <= 0 {
		return 0
	}
	return (end/start - 1) * 100
}

// NetReturnPct 净收益率 = (期末/初始 − 1) × 100
func NetReturnPct(snapshots []types.DailySnapshot, initialCapital float64) float64 {
	if len(snapshots) == 0 || initialCapital <= 0 {
		return 0
	}
	return ReturnPct(initialCapital, snapshots[len(snapshots)-1].TotalValue)
}

// GrossReturnPct 以零成本回放交易账本，按期末估值价格计算毛收益率
func GrossReturnPct(trades []types.TradeRecord, initialCapital float64, marks types.PriceMap) float64 {
	if initialCapital <= 0 {
		return 0
	}
	cash := initialCapital
	shares := make(map[types.Symbol]float64)
	for _, t := range trades {
		switch t.Side {
		case types.SideBuy:
			cash -= t.Notional
			shares[t.Symbol] += t.Shares
		case types.SideSell:
			cash += t.Notional
			shares[t.Symbol] -= t.Shares
		}
	}
	value := cash
	for sym, qty := range shares {
		if math.Abs(qty) < 1e-9 {
			continue
		}
		value += qty * marks[sym]
	}
	return ReturnPct(initialCapital, value)
}

// MaxDrawdownPct 基于滚动峰值的最大回撤 (<= 0)
func MaxDrawdownPct(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak * 100; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// DailyReturns 日收益率 (小数)
func DailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			out = append(out, values[i]/values[i-1]-1)
		}
	}
	return out
}

// SharpeRatio 年化夏普 (无风险利率取 0)，不足两天或零方差时为 0
func SharpeRatio(values []float64) float64 {
	return Annualized(DailyReturns(values))
}

// Turnover 换手率 = Σ|成交额| / 初始资金
func Turnover(trades []types.TradeRecord, initialCapital float64) float64 {
	if initialCapital <= 0 {
		return 0
	}
	total := 0.0
	for _, t := range trades {
		total += math.Abs(t.Notional)
	}
	return total / initialCapital
}

// TotalCost 累计交易成本
func TotalCost(trades []types.TradeRecord) float64 {
	total := 0.0
	for _, t := range trades {
		total += t.Cost
	}
	return total
}

// WeeklyPerformance 按切换日划分快照，计算每个周期的表现
func WeeklyPerformance(snapshots []types.DailySnapshot, transitionDays []time.Time) []types.WeeklyPerformance {
	if len(snapshots) == 0 || len(transitionDays) == 0 {
		return nil
	}
	var out []types.WeeklyPerformance
	for i, td := range transitionDays {
		var week []types.DailySnapshot
		for _, s := range snapshots {
			if s.Date.Before(td) {
				continue
			}
			if i+1 < len(transitionDays) && !s.Date.Before(transitionDays[i+1]) {
				break
			}
			week = append(week, s)
		}
		if len(week) == 0 {
			continue
		}

		first, last := week[0], week[len(week)-1]
		trades := 0
		for _, s := range week {
			trades += s.TradesToday
		}
		scenario := first.Scenario
		if scenario == "" {
			scenario = types.ScenarioBase
		}
		out = append(out, types.WeeklyPerformance{
			PeriodDate: td.Format(types.DateLayout),
			StartValue: first.TotalValue,
			EndValue:   last.TotalValue,
			ReturnPct:  ReturnPct(first.TotalValue, last.TotalValue),
			Trades:     trades,
			Scenario:   scenario,
		})
	}
	return out
}

// Fill 根据快照与交易账本计算结果中的全部指标字段
func Fill(result *types.BacktestResult, finalMarks types.PriceMap) {
	values := Values(result.DailySnapshots)
	result.TradingDays = len(result.DailySnapshots)
	result.FinalValue = result.InitialCapital
	if n := len(values); n > 0 {
		result.FinalValue = values[n-1]
	}
	result.NetReturnPct = NetReturnPct(result.DailySnapshots, result.InitialCapital)
	result.GrossReturnPct = GrossReturnPct(result.Trades, result.InitialCapital, finalMarks)
	result.MaxDrawdownPct = MaxDrawdownPct(values)
	result.SharpeRatio = SharpeRatio(values)
	result.Turnover = Turnover(result.Trades, result.InitialCapital)
	result.TotalCost = TotalCost(result.Trades)
	result.TotalTrades = len(result.Trades)
	result.WeeklyPerformance = WeeklyPerformance(result.DailySnapshots, result.TransitionDays)
}
