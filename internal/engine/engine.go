package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/metrics"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/portfolio"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/strategy"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/telemetry"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/trigger"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// 交易原因
const (
	ReasonRebalance        = "rebalance"
	ReasonWeekEndRebalance = "weekend_rebalance"
	reasonTriggerPrefix    = "trigger:"
)

// StartBeforeFirstPeriodError 请求的开始日期早于第一个可用周期
type StartBeforeFirstPeriodError struct {
	Requested time.Time
	Earliest  time.Time
}

func (e *StartBeforeFirstPeriodError) Error() string {
	return fmt.Sprintf("start %s is before first valid period (%s), use --start %s or later",
		e.Requested.Format(types.DateLayout), e.Earliest.Format(types.DateLayout), e.Earliest.Format(types.DateLayout))
}

// BacktestEngine 回测引擎
type BacktestEngine struct {
	config    types.BacktestConfig
	source    data.Source
	timeline  *strategy.Timeline
	costModel cost.CostModel
	matcher   *trigger.Matcher
	telemetry *telemetry.Registry
	result    *types.BacktestResult
}

// New 创建回测引擎，未指定的模式与节奏取 schedule / transition
func New(config types.BacktestConfig) *BacktestEngine {
	if config.Mode == "" {
		config.Mode = types.ModeSchedule
	}
	if config.Cadence == "" {
		config.Cadence = types.CadenceTransition
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("%s-%s", config.Mode, config.Cadence)
	}
	return &BacktestEngine{config: config}
}

// SetDataSource 设置行情数据源
func (e *BacktestEngine) SetDataSource(src data.Source) {
	e.source = src
}

// SetTimeline 设置策略周期时间线
func (e *BacktestEngine) SetTimeline(tl *strategy.Timeline) {
	e.timeline = tl
}

// SetCostModel 设置成本模型
func (e *BacktestEngine) SetCostModel(model cost.CostModel) {
	e.costModel = model
}

// SetTriggerMatcher 注入触发器；每次 Run 前会重置其 VIX 基线
func (e *BacktestEngine) SetTriggerMatcher(m *trigger.Matcher) {
	e.matcher = m
}

// SetTelemetry 设置指标注册表 (可为 nil)
func (e *BacktestEngine) SetTelemetry(r *telemetry.Registry) {
	e.telemetry = r
}

// Config 返回引擎配置
func (e *BacktestEngine) Config() types.BacktestConfig {
	return e.config
}

// Run 运行回测
func (e *BacktestEngine) Run() (result *types.BacktestResult, err error) {
	began := time.Now()
	defer func() {
		e.telemetry.ObserveRun(string(e.config.Mode), string(e.config.Cadence), time.Since(began), err)
	}()

	if err := e.validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	start, end := e.config.StartDate, e.config.EndDate
	pf := portfolio.NewSimulatedPortfolio(e.config.InitialCapital, e.costModel, e.config.WholeShareSymbols...)
	matcher := e.matcher
	if matcher == nil {
		matcher = trigger.NewMatcher(e.config.DriftThresholdPct)
	}
	matcher.Reset()

	days := e.source.TradingDays(start, end)
	log.Info().
		Str("name", e.config.Name).
		Str("mode", string(e.config.Mode)).
		Str("cadence", string(e.config.Cadence)).
		Time("start", start).
		Time("end", end).
		Int("trading_days", len(days)).
		Msg("running backtest")

	sim := &dayLoop{
		engine:   e,
		pf:       pf,
		matcher:  matcher,
		scenario: types.ScenarioBase,
	}
	snapshots := make([]types.DailySnapshot, 0, len(days))
	for _, day := range days {
		snap, ok, err := sim.step(day, e.scheduledToday(day))
		if err != nil {
			return nil, err
		}
		if ok {
			snapshots = append(snapshots, snap)
		}
	}

	res := &types.BacktestResult{
		Name:                 e.config.Name,
		Mode:                 e.config.Mode,
		Cadence:              e.config.Cadence,
		StartDate:            start,
		EndDate:              end,
		PeriodsUsed:          e.timeline.Len(),
		PeriodsSkipped:       len(e.timeline.Skipped()),
		InitialCapital:       e.config.InitialCapital,
		DailySnapshots:       snapshots,
		Trades:               pf.Trades(),
		SkippedPeriodReasons: e.timeline.Skipped(),
		TransitionDays:       e.timeline.TransitionDaysIn(start, end),
	}
	metrics.Fill(res, pf.Marks())

	log.Info().
		Str("name", res.Name).
		Float64("net_return_pct", res.NetReturnPct).
		Float64("sharpe", res.SharpeRatio).
		Int("trades", res.TotalTrades).
		Msg("backtest finished")

	e.result = res
	return res, nil
}

// validate 验证配置
func (e *BacktestEngine) validate() error {
	if e.source == nil {
		return fmt.Errorf("data source not set")
	}
	if e.timeline == nil {
		return fmt.Errorf("timeline not set")
	}
	if e.config.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive")
	}
	if e.config.StartDate.IsZero() || e.config.EndDate.IsZero() {
		return fmt.Errorf("start and end dates required")
	}
	if e.config.StartDate.After(e.config.EndDate) {
		return fmt.Errorf("start %s is after end %s",
			e.config.StartDate.Format(types.DateLayout), e.config.EndDate.Format(types.DateLayout))
	}
	earliest, ok := e.timeline.EffectiveStart()
	if !ok {
		return fmt.Errorf("%w (%d rejected)", strategy.ErrNoValidPeriods, len(e.timeline.Skipped()))
	}
	if e.config.StartDate.Before(earliest) {
		return &StartBeforeFirstPeriodError{Requested: e.config.StartDate, Earliest: earliest}
	}
	return nil
}

// scheduledToday 今日是否执行计划再平衡
func (e *BacktestEngine) scheduledToday(day time.Time) bool {
	if e.config.Cadence == types.CadenceWeekEnd {
		return IsWeekEnd(e.source, day)
	}
	return e.timeline.IsTransitionDay(day)
}

// IsWeekEnd d 是否为所在 ISO 周的最后一个交易日，与回测区间的截止日无关
func IsWeekEnd(src data.Source, d time.Time) bool {
	next := src.TradingDays(d.AddDate(0, 0, 1), d.AddDate(0, 0, 7))
	if len(next) == 0 {
		return true
	}
	y1, w1 := d.ISOWeek()
	y2, w2 := next[0].ISOWeek()
	return y1 != y2 || w1 != w2
}

// dayLoop 单次运行的可变状态
type dayLoop struct {
	engine   *BacktestEngine
	pf       *portfolio.SimulatedPortfolio
	matcher  *trigger.Matcher
	pending  trigger.Name
	scenario string
}

// step 处理一个交易日；缺少收盘价时返回 ok=false
func (s *dayLoop) step(day time.Time, scheduled bool) (types.DailySnapshot, bool, error) {
	e := s.engine
	closes := e.source.ClosePrices(day)
	if len(closes) == 0 {
		log.Warn().Time("date", day).Msg("no price data, skipping day")
		e.telemetry.RecordSkippedDay()
		return types.DailySnapshot{}, false, nil
	}

	period, hasPeriod := e.timeline.Active(day)
	tradesToday := 0
	executed := false

	// 1. 计划再平衡 (最高优先级)
	if hasPeriod && scheduled {
		reason := ReasonRebalance
		if e.config.Cadence == types.CadenceWeekEnd {
			reason = ReasonWeekEndRebalance
		}
		trades, err := s.pf.RebalanceTo(period.BaseAllocation, closes, day, reason)
		if err != nil {
			return types.DailySnapshot{}, false, fmt.Errorf("scheduled rebalance on %s: %w", day.Format(types.DateLayout), err)
		}
		tradesToday += len(trades)
		e.telemetry.RecordTrades(reason, len(trades))
		executed = true
		if s.pending != trigger.None {
			log.Debug().Time("date", day).Str("trigger", string(s.pending)).Msg("pending trigger overridden by scheduled rebalance")
		}
		s.pending = trigger.None
		s.scenario = types.ScenarioBase
	}

	if e.config.Mode == types.ModeTrigger && hasPeriod && s.pending != trigger.None && !executed {
		// 2. 以今日开盘价执行昨日检测到的触发器
		n, err := s.executePending(day, period, closes)
		if err != nil {
			return types.DailySnapshot{}, false, err
		}
		tradesToday += n
		executed = true
	}

	// 收盘估值；漂移检测基于今日收盘
	s.pf.UpdatePrices(closes)

	if e.config.Mode == types.ModeTrigger && hasPeriod {
		// 3. 检测新触发器；状态总是更新，只有今日未执行时才保留
		detected := s.matcher.Check(e.source.MarketLevel(day), s.pf, period, s.scenario)
		if detected != trigger.None {
			e.telemetry.RecordTrigger(string(detected))
			if !executed && shouldReplace(s.pending, detected) {
				log.Debug().Time("date", day).Str("trigger", string(detected)).Msg("trigger detected")
				s.pending = detected
			}
		}
	}

	// 4. 记录快照
	return types.DailySnapshot{
		Date:           day,
		TotalValue:     s.pf.TotalValue(),
		Cash:           s.pf.Cash(),
		PositionsValue: s.pf.PositionsValue(),
		Allocation:     s.pf.AllocationPct(),
		Scenario:       s.scenario,
		TradesToday:    tradesToday,
	}, true, nil
}

// executePending 解析挂起的触发器并按开盘价调仓；无开盘价的标的使用收盘价
func (s *dayLoop) executePending(day time.Time, period *types.StrategyPeriod, closes types.PriceMap) (int, error) {
	name := s.pending
	s.pending = trigger.None

	scenario := s.scenario
	if !name.IsDrift() {
		resolved, err := trigger.ResolveScenario(name, period)
		if err != nil {
			return 0, fmt.Errorf("resolve trigger on %s: %w", day.Format(types.DateLayout), err)
		}
		scenario = resolved
	}
	target, ok := period.AllocationFor(scenario)
	if !ok {
		target = period.BaseAllocation
	}

	prices := make(types.PriceMap, len(closes))
	for sym, px := range closes {
		prices[sym] = px
	}
	for sym, px := range s.engine.source.OpenPrices(day) {
		prices[sym] = px
	}

	reason := reasonTriggerPrefix + string(name)
	trades, err := s.pf.RebalanceTo(target, prices, day, reason)
	if err != nil {
		return 0, fmt.Errorf("trigger rebalance on %s: %w", day.Format(types.DateLayout), err)
	}
	s.engine.telemetry.RecordTrades(reason, len(trades))
	log.Debug().Time("date", day).Str("trigger", string(name)).Str("scenario", scenario).Int("trades", len(trades)).Msg("trigger executed")
	s.scenario = scenario
	return len(trades), nil
}

// shouldReplace 挂起规则: 漂移不覆盖已挂起的非漂移触发器
func shouldReplace(pending, detected trigger.Name) bool {
	if pending == trigger.None {
		return true
	}
	return !(detected.IsDrift() && !pending.IsDrift())
}

// GetResult 获取回测结果
func (e *BacktestEngine) GetResult() *types.BacktestResult {
	return e.result
}
