package robustness

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/benchmark"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/engine"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/strategy"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/telemetry"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Mode 引擎模式 × 再平衡节奏
type Mode struct {
	Name    string
	Engine  types.EngineMode
	Cadence types.Cadence
}

// 四种组合
var (
	ScheduleTransition = Mode{"schedule-transition", types.ModeSchedule, types.CadenceTransition}
	ScheduleWeekEnd    = Mode{"schedule-weekend", types.ModeSchedule, types.CadenceWeekEnd}
	TriggerTransition  = Mode{"trigger-transition", types.ModeTrigger, types.CadenceTransition}
	TriggerWeekEnd     = Mode{"trigger-weekend", types.ModeTrigger, types.CadenceWeekEnd}
)

// Modes 全部模式 (矩阵行顺序)
func Modes() []Mode {
	return []Mode{ScheduleTransition, ScheduleWeekEnd, TriggerTransition, TriggerWeekEnd}
}

// DefaultCostLadderBps 默认价差阶梯 (基点)
var DefaultCostLadderBps = []float64{0, 2, 5, 10, 20}

// Config 成本敏感性分析参数
type Config struct {
	CostLadderBps []float64 `validate:"required,min=2,dive,gte=0"`
	ReactiveMode  string    `validate:"required"`
	BaselineMode  string    `validate:"required,nefield=ReactiveMode"`
	RealisticBps  float64   `validate:"gte=0"` // 盈亏平衡点至少达到该价差才算成本稳健
	ReferenceBps  float64   `validate:"gte=0"` // 评估结论时使用的价差档位
}

// DefaultConfig 触发模式对比纯计划模式，5bps 为现实价差
func DefaultConfig() Config {
	return Config{
		CostLadderBps: append([]float64(nil), DefaultCostLadderBps...),
		ReactiveMode:  TriggerTransition.Name,
		BaselineMode:  ScheduleTransition.Name,
		RealisticBps:  5,
		ReferenceBps:  5,
	}
}

var validate = validator.New()

// Cell 矩阵中的一格
type Cell struct {
	Mode    string                `json:"mode"`
	CostBps float64               `json:"cost_bps"`
	Result  *types.BacktestResult `json:"result"`
}

// Report 成本敏感性分析结果
type Report struct {
	Cells        []Cell                  `json:"cells"`
	Benchmarks   []*types.BacktestResult `json:"benchmarks"`
	Breakeven    Breakeven               `json:"breakeven"`
	Judgment     Judgment                `json:"judgment"`
	ReferenceBps float64                 `json:"reference_bps"`
	Reactive     *types.BacktestResult   `json:"-"` // ReferenceBps 档位上的反应模式结果
}

// Analyzer 在 模式 × 价差 矩阵上运行回测
type Analyzer struct {
	config    types.BacktestConfig
	rc        Config
	timeline  *strategy.Timeline
	source    data.Source
	baseCost  *cost.DefaultCostModel
	telemetry *telemetry.Registry
}

// NewAnalyzer 创建分析器
func NewAnalyzer(config types.BacktestConfig, rc Config, tl *strategy.Timeline, src data.Source) *Analyzer {
	return &Analyzer{
		config:   config,
		rc:       rc,
		timeline: tl,
		source:   src,
		baseCost: cost.NewZeroCostModel(),
	}
}

// SetCostModel 设置基础成本模型；每格仅替换其价差
func (a *Analyzer) SetCostModel(m *cost.DefaultCostModel) {
	if m != nil {
		a.baseCost = m
	}
}

// SetTelemetry 设置指标注册表
func (a *Analyzer) SetTelemetry(r *telemetry.Registry) {
	a.telemetry = r
}

// Run 运行矩阵、基准，并给出盈亏平衡点与结论
func (a *Analyzer) Run(ctx context.Context) (*Report, error) {
	if err := validate.Struct(a.rc); err != nil {
		return nil, fmt.Errorf("invalid robustness config: %w", err)
	}
	if !knownMode(a.rc.ReactiveMode) || !knownMode(a.rc.BaselineMode) {
		return nil, fmt.Errorf("unknown mode in %q / %q", a.rc.ReactiveMode, a.rc.BaselineMode)
	}

	cells, err := a.RunMatrix(ctx)
	if err != nil {
		return nil, err
	}

	benchmarks, err := benchmark.NewEngine(a.source, a.config.StartDate, a.config.EndDate, a.config.InitialCapital, nil).
		RunAll(a.timeline.Symbols())
	if err != nil {
		return nil, fmt.Errorf("benchmark run failed: %w", err)
	}

	be := FindBreakeven(cells, a.rc.ReactiveMode, a.rc.BaselineMode)
	reactive := ReferenceResult(cells, a.rc.ReactiveMode, a.rc.ReferenceBps)
	judgment := Judge(reactive, a.rc.ReactiveMode, benchmarks, be, a.rc.RealisticBps)

	log.Info().
		Str("verdict", string(judgment.Verdict)).
		Str("breakeven", be.Details).
		Int("cells", len(cells)).
		Msg("robustness analysis finished")

	return &Report{
		Cells:        cells,
		Benchmarks:   benchmarks,
		Breakeven:    be,
		Judgment:     judgment,
		ReferenceBps: a.rc.ReferenceBps,
		Reactive:     reactive,
	}, nil
}

// RunMatrix 并发运行全部 模式 × 价差 组合；每个 goroutine 只写自己的槽位
func (a *Analyzer) RunMatrix(ctx context.Context) ([]Cell, error) {
	ladder := sortedLadder(a.rc.CostLadderBps)
	modes := Modes()
	cells := make([]Cell, len(modes)*len(ladder))

	g, ctx := errgroup.WithContext(ctx)
	for mi, mode := range modes {
		mode := mode
		for ci, bps := range ladder {
			bps := bps
			slot := mi*len(ladder) + ci
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := a.runCell(mode, bps)
				if err != nil {
					return fmt.Errorf("%s @ %.0f bps: %w", mode.Name, bps, err)
				}
				cells[slot] = Cell{Mode: mode.Name, CostBps: bps, Result: res}
				log.Debug().
					Str("mode", mode.Name).
					Float64("cost_bps", bps).
					Float64("net_return_pct", res.NetReturnPct).
					Float64("gross_return_pct", res.GrossReturnPct).
					Msg("cost matrix cell finished")
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cells, nil
}

func (a *Analyzer) runCell(mode Mode, bps float64) (*types.BacktestResult, error) {
	cfg := a.config
	cfg.Mode = mode.Engine
	cfg.Cadence = mode.Cadence
	cfg.Name = mode.Name

	eng := engine.New(cfg)
	eng.SetDataSource(a.source)
	eng.SetTimeline(a.timeline)
	eng.SetCostModel(a.baseCost.WithSpread(bps))
	eng.SetTelemetry(a.telemetry)
	return eng.Run()
}

// ReferenceResult 某模式在指定价差上的结果；该档位不存在时取最低价差
func ReferenceResult(cells []Cell, mode string, bps float64) *types.BacktestResult {
	var fallback *Cell
	for i := range cells {
		c := &cells[i]
		if c.Mode != mode {
			continue
		}
		if c.CostBps == bps {
			return c.Result
		}
		if fallback == nil || c.CostBps < fallback.CostBps {
			fallback = c
		}
	}
	if fallback == nil {
		return nil
	}
	return fallback.Result
}

func knownMode(name string) bool {
	for _, m := range Modes() {
		if m.Name == name {
			return true
		}
	}
	return false
}

func sortedLadder(ladder []float64) []float64 {
	out := append([]float64(nil), ladder...)
	sort.Float64s(out)
	return out
}
