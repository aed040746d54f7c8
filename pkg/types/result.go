package types

import "time"

// DailySnapshot 每日组合快照 (回放轨迹)
type DailySnapshot struct {
	Date           time.Time  `json:"date"`
	TotalValue     float64    `json:"total_value"`
	Cash           float64    `json:"cash"`
	PositionsValue float64    `json:"positions_value"`
	Allocation     Allocation `json:"allocation"`
	Scenario       string     `json:"scenario"`
	TradesToday    int        `json:"trades_today"`
}

// WeeklyPerformance 单个策略周期的表现
type WeeklyPerformance struct {
	PeriodDate string  `json:"period_date"`
	StartValue float64 `json:"start_value"`
	EndValue   float64 `json:"end_value"`
	ReturnPct  float64 `json:"return_pct"`
	Trades     int     `json:"trades"`
	Scenario   string  `json:"scenario"`
}

// BacktestResult 回测结果 (构建后不再修改)
type BacktestResult struct {
	Name           string     `json:"name"`
	Mode           EngineMode `json:"mode,omitempty"`
	Cadence        Cadence    `json:"cadence,omitempty"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        time.Time  `json:"end_date"`
	TradingDays    int        `json:"trading_days"`
	PeriodsUsed    int        `json:"periods_used"`
	PeriodsSkipped int        `json:"periods_skipped"`
	InitialCapital float64    `json:"initial_capital"`
	FinalValue     float64    `json:"final_value"`

	GrossReturnPct float64 `json:"gross_return_pct"`
	NetReturnPct   float64 `json:"net_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	Turnover       float64 `json:"turnover"`
	TotalCost      float64 `json:"total_cost"`
	TotalTrades    int     `json:"total_trades"`

	DailySnapshots       []DailySnapshot     `json:"daily_snapshots"`
	WeeklyPerformance    []WeeklyPerformance `json:"weekly_performance"`
	Trades               []TradeRecord       `json:"trades"`
	SkippedPeriodReasons []SkippedPeriod     `json:"skipped_period_reasons"`
	TransitionDays       []time.Time         `json:"transition_days"`
}

// ValueSeries 日期 -> 总市值
func (r *BacktestResult) ValueSeries() map[time.Time]float64 {
	out := make(map[time.Time]float64, len(r.DailySnapshots))
	for _, s := range r.DailySnapshots {
		out[s.Date] = s.TotalValue
	}
	return out
}
