package walkforward

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/benchmark"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/engine"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/metrics"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/strategy"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/telemetry"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Config 窗口参数 (单位: 切换日/周)
type Config struct {
	WindowWeeks     int          `validate:"gt=0"`
	StepWeeks       int          `validate:"gt=0"`
	MinWeeks        int          `validate:"gt=0"`
	BenchmarkSymbol types.Symbol `validate:"required"`
	TargetP         float64      `validate:"gt=0,lt=1"`
}

// DefaultConfig 默认 6 周窗口、2 周步长、最少 4 周，基准为 SPY 买入持有
func DefaultConfig() Config {
	return Config{
		WindowWeeks:     6,
		StepWeeks:       2,
		MinWeeks:        4,
		BenchmarkSymbol: types.SymbolSPY,
		TargetP:         SignificantP,
	}
}

var validate = validator.New()

// Validator 前向验证：一次完整回测 + 一次基准回测，再做子区间与显著性分析
type Validator struct {
	config    types.BacktestConfig
	wf        Config
	timeline  *strategy.Timeline
	source    data.Source
	costModel cost.CostModel
	telemetry *telemetry.Registry
}

// NewValidator 创建前向验证器
func NewValidator(config types.BacktestConfig, wf Config, tl *strategy.Timeline, src data.Source) *Validator {
	return &Validator{config: config, wf: wf, timeline: tl, source: src}
}

// SetCostModel 设置策略回测使用的成本模型 (基准不计成本)
func (v *Validator) SetCostModel(m cost.CostModel) {
	v.costModel = m
}

// SetTelemetry 设置指标注册表
func (v *Validator) SetTelemetry(r *telemetry.Registry) {
	v.telemetry = r
}

// Run 运行全部验证步骤
func (v *Validator) Run() (*types.WalkForwardResult, error) {
	if err := validate.Struct(v.wf); err != nil {
		return nil, fmt.Errorf("invalid walk-forward config: %w", err)
	}

	eng := engine.New(v.config)
	eng.SetDataSource(v.source)
	eng.SetTimeline(v.timeline)
	eng.SetCostModel(v.costModel)
	eng.SetTelemetry(v.telemetry)
	full, err := eng.Run()
	if err != nil {
		return nil, fmt.Errorf("strategy run failed: %w", err)
	}

	bench, err := benchmark.NewEngine(v.source, v.config.StartDate, v.config.EndDate, v.config.InitialCapital, nil).
		RunBuyAndHold(v.wf.BenchmarkSymbol)
	if err != nil {
		return nil, fmt.Errorf("benchmark run failed: %w", err)
	}

	res := Analyze(full, bench, v.timeline.TransitionDaysIn(v.config.StartDate, v.config.EndDate), v.config.EndDate, v.wf)
	log.Info().
		Str("verdict", string(res.Verdict)).
		Float64("p_value", res.PValue).
		Float64("win_rate", res.WinRate).
		Int("weeks", len(res.WeeklyExcess)).
		Msg("walk-forward finished")
	return res, nil
}

// Analyze 基于已有的策略与基准回测结果计算前向验证指标
func Analyze(full, bench *types.BacktestResult, transitionDays []time.Time, end time.Time, wf Config) *types.WalkForwardResult {
	strat := NewSeries(full.DailySnapshots)
	bm := NewSeries(bench.DailySnapshots)

	weekly := WeeklyExcess(strat, bm, transitionDays, end)
	rolling := RollingWindows(strat, bm, transitionDays, wf.WindowWeeks, wf.StepWeeks, end)
	expanding := ExpandingWindows(strat, bm, transitionDays, wf.MinWeeks, wf.StepWeeks, end)

	daily := DailyExcess(strat, bm)
	t, p := PairedTTest(daily)
	winRate := WinRate(weekly)
	verdict, detail := Verdict(p, winRate, rolling, len(daily))

	targetP := wf.TargetP
	if targetP <= 0 {
		targetP = SignificantP
	}
	var required *int
	if n, ok := EstimateRequiredDays(daily, targetP); ok {
		required = &n
	}

	return &types.WalkForwardResult{
		FullPeriod:       full,
		FullBenchmark:    bench,
		WeeklyExcess:     weekly,
		WinRate:          winRate,
		MeanWeeklyExcess: MeanExcess(weekly),
		RollingWindows:   rolling,
		ExpandingWindows: expanding,
		DailyExcessDays:  len(daily),
		MeanDailyExcess:  metrics.Mean(daily),
		TStatistic:       t,
		PValue:           p,
		InformationRatio: InformationRatio(daily),
		RequiredDays:     required,
		Verdict:          verdict,
		VerdictDetail:    detail,
	}
}
