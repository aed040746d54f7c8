package types

import "time"

// Verdict 显著性结论
type Verdict string

const (
	VerdictSignificant    Verdict = "SIGNIFICANT"
	VerdictInconclusive   Verdict = "INCONCLUSIVE"
	VerdictNotSignificant Verdict = "NOT_SIGNIFICANT"
)

// WeeklyExcess 单周相对基准的超额收益
type WeeklyExcess struct {
	WeekDate           time.Time `json:"week_date"`
	StrategyReturnPct  float64   `json:"strategy_return_pct"`
	BenchmarkReturnPct float64   `json:"benchmark_return_pct"`
	ExcessPct          float64   `json:"excess_pct"`
}

// WindowResult 滚动/扩展窗口指标
type WindowResult struct {
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	Weeks              int       `json:"weeks"`
	StrategyReturnPct  float64   `json:"strategy_return_pct"`
	BenchmarkReturnPct float64   `json:"benchmark_return_pct"`
	ExcessReturnPct    float64   `json:"excess_return_pct"`
	Sharpe             float64   `json:"sharpe"`
	MaxDrawdownPct     float64   `json:"max_drawdown_pct"`
}

// WalkForwardResult 前向验证结果
type WalkForwardResult struct {
	FullPeriod    *BacktestResult `json:"full_period"`
	FullBenchmark *BacktestResult `json:"full_benchmark"`

	WeeklyExcess     []WeeklyExcess `json:"weekly_excess"`
	WinRate          float64        `json:"win_rate"`
	MeanWeeklyExcess float64        `json:"mean_weekly_excess"`

	RollingWindows   []WindowResult `json:"rolling_windows"`
	ExpandingWindows []WindowResult `json:"expanding_windows"`

	DailyExcessDays  int     `json:"daily_excess_days"`
	MeanDailyExcess  float64 `json:"mean_daily_excess"`
	TStatistic       float64 `json:"t_statistic"`
	PValue           float64 `json:"p_value"`
	InformationRatio float64 `json:"information_ratio"`
	RequiredDays     *int    `json:"required_days,omitempty"` // nil 表示无法估计

	Verdict       Verdict `json:"verdict"`
	VerdictDetail string  `json:"verdict_detail"`
}
