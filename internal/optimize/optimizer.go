package optimize

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/benchmark"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/engine"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/strategy"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/telemetry"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/walkforward"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// 评估状态
const (
	StatusOK       = "ok"
	StatusInvalid  = "invalid"   // 没有可用周期
	StatusTooShort = "too_short" // 生效开始日不早于区间结束
	StatusError    = "error"
)

// invalidScore 非 ok 候选的目标函数值
const invalidScore = -999.0

// Config 扫描参数
type Config struct {
	TrainStart     time.Time `validate:"required"`
	TrainEnd       time.Time `validate:"required,gtfield=TrainStart"`
	HoldoutStart   time.Time `validate:"required,gtfield=TrainEnd"`
	HoldoutEnd     time.Time `validate:"required,gtfield=HoldoutStart"`
	TopK           int       `validate:"gt=0"`
	InitialCapital float64   `validate:"gt=0"`
	Cadence        types.Cadence
	WalkForward    walkforward.Config
	Parallelism    int // <= 0 时取 GOMAXPROCS
}

var validate = validator.New()

// Metrics 单个区间的评估指标
type Metrics struct {
	Status             string  `json:"status"`
	PValue             float64 `json:"p_value"`
	WinRate            float64 `json:"win_rate"`
	MeanWeeklyExcess   float64 `json:"mean_weekly_excess"`
	InformationRatio   float64 `json:"information_ratio"`
	StrategyReturnPct  float64 `json:"strategy_return"`
	BenchmarkReturnPct float64 `json:"benchmark_return"`
	TradingDays        int     `json:"trading_days"`
}

func failed(status string) Metrics {
	return Metrics{Status: status, PValue: 1}
}

// Objective 训练期目标：超额越高、胜率越高、p 值越低越好
func Objective(m Metrics) float64 {
	if m.Status != StatusOK {
		return invalidScore
	}
	return m.MeanWeeklyExcess*100 + (m.WinRate-0.5)*20 - m.PValue*5
}

// Row 一个候选的训练与留出结果
type Row struct {
	Candidate  Candidate `json:"candidate"`
	TrainScore float64   `json:"train_score"`
	Train      Metrics   `json:"train"`
	Holdout    *Metrics  `json:"holdout,omitempty"` // 仅前 k 名
}

// Result 扫描结果
type Result struct {
	Rows []Row `json:"rows"` // 按训练得分降序
	Top  []Row `json:"top"`
	Best Row   `json:"best"`
}

// Optimizer 参数扫描：训练期选出前 k 名，再在留出期择优
type Optimizer struct {
	config    Config
	grid      Grid
	timeline  *strategy.Timeline
	source    data.Source
	costModel cost.CostModel
	telemetry *telemetry.Registry
}

// New 创建扫描器
func New(config Config, grid Grid, tl *strategy.Timeline, src data.Source) *Optimizer {
	return &Optimizer{config: config, grid: grid, timeline: tl, source: src}
}

// SetCostModel 设置成本模型
func (o *Optimizer) SetCostModel(m cost.CostModel) {
	o.costModel = m
}

// SetTelemetry 设置指标注册表
func (o *Optimizer) SetTelemetry(r *telemetry.Registry) {
	o.telemetry = r
}

// Run 运行训练与留出两个阶段
func (o *Optimizer) Run(ctx context.Context) (*Result, error) {
	if err := validate.Struct(o.config); err != nil {
		return nil, fmt.Errorf("invalid optimize config: %w", err)
	}
	if err := validate.Struct(o.grid); err != nil {
		return nil, fmt.Errorf("invalid parameter grid: %w", err)
	}

	candidates := o.grid.Candidates()
	log.Info().Int("candidates", len(candidates)).Msg("train phase")
	train, err := o.Evaluate(ctx, candidates, o.config.TrainStart, o.config.TrainEnd)
	if err != nil {
		return nil, fmt.Errorf("train phase: %w", err)
	}

	rows := make([]Row, len(candidates))
	for i, c := range candidates {
		rows[i] = Row{Candidate: c, TrainScore: Objective(train[i]), Train: train[i]}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TrainScore > rows[j].TrainScore })

	k := min(o.config.TopK, len(rows))
	top := append([]Row(nil), rows[:k]...)
	topCandidates := make([]Candidate, k)
	for i, r := range top {
		topCandidates[i] = r.Candidate
	}

	log.Info().Int("top_k", k).Msg("holdout phase")
	holdout, err := o.Evaluate(ctx, topCandidates, o.config.HoldoutStart, o.config.HoldoutEnd)
	if err != nil {
		return nil, fmt.Errorf("holdout phase: %w", err)
	}
	for i := range top {
		m := holdout[i]
		top[i].Holdout = &m
	}

	best, ok := SelectBest(top)
	if !ok {
		return nil, fmt.Errorf("no valid holdout candidates")
	}
	log.Info().
		Str("candidate", best.Candidate.ID).
		Float64("holdout_mean_excess", best.Holdout.MeanWeeklyExcess).
		Float64("holdout_p_value", best.Holdout.PValue).
		Msg("best candidate selected")

	return &Result{Rows: rows, Top: top, Best: best}, nil
}

// SelectBest 在留出期状态为 ok 的候选中按 (平均周超额, -p, 胜率) 取最大
func SelectBest(top []Row) (Row, bool) {
	var best *Row
	for i := range top {
		r := &top[i]
		if r.Holdout == nil || r.Holdout.Status != StatusOK {
			continue
		}
		if best == nil || holdoutBetter(*r.Holdout, *best.Holdout) {
			best = r
		}
	}
	if best == nil {
		return Row{}, false
	}
	return *best, true
}

func holdoutBetter(a, b Metrics) bool {
	if a.MeanWeeklyExcess != b.MeanWeeklyExcess {
		return a.MeanWeeklyExcess > b.MeanWeeklyExcess
	}
	if a.PValue != b.PValue {
		return a.PValue < b.PValue
	}
	return a.WinRate > b.WinRate
}

// Evaluate 在 [start, end] 上并发评估候选，结果与 candidates 一一对应。
// ctx 取消后不再派发新候选，已开始的评估会跑完，随后返回 ctx 的错误。
func (o *Optimizer) Evaluate(ctx context.Context, candidates []Candidate, start, end time.Time) ([]Metrics, error) {
	out := make([]Metrics, len(candidates))

	effStart, ok := o.timeline.EffectiveStart()
	if !ok {
		for i := range out {
			out[i] = failed(StatusInvalid)
		}
		return out, nil
	}
	runStart := start
	if effStart.After(runStart) {
		runStart = effStart
	}
	if !runStart.Before(end) {
		for i := range out {
			out[i] = failed(StatusTooShort)
		}
		return out, nil
	}

	// 切换日不随候选变化，基准对所有候选只跑一次
	bench, err := benchmark.NewEngine(o.source, runStart, end, o.config.InitialCapital, nil).
		RunBuyAndHold(o.config.WalkForward.BenchmarkSymbol)
	if err != nil {
		return nil, fmt.Errorf("benchmark run failed: %w", err)
	}
	transitionDays := o.timeline.TransitionDaysIn(runStart, end)

	limit := o.config.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, c := range candidates {
		i, c := i, c
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.telemetry.SweepStarted()
			defer o.telemetry.SweepFinished()
			out[i] = o.evaluate(c, runStart, end, bench, transitionDays)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Optimizer) evaluate(c Candidate, start, end time.Time, bench *types.BacktestResult, transitionDays []time.Time) Metrics {
	eng := engine.New(types.BacktestConfig{
		Name:              c.ID,
		StartDate:         start,
		EndDate:           end,
		InitialCapital:    o.config.InitialCapital,
		Mode:              types.ModeTrigger,
		Cadence:           o.config.Cadence,
		DriftThresholdPct: c.Params.DriftThresholdPct,
	})
	eng.SetDataSource(o.source)
	eng.SetTimeline(o.timeline.Map(c.Params.Apply))
	eng.SetCostModel(o.costModel)
	eng.SetTelemetry(o.telemetry)

	full, err := eng.Run()
	if err != nil {
		log.Warn().Err(err).Str("candidate", c.ID).Msg("candidate run failed")
		return failed(StatusError)
	}

	wf := walkforward.Analyze(full, bench, transitionDays, end, o.config.WalkForward)
	m := Metrics{
		Status:             StatusOK,
		PValue:             wf.PValue,
		WinRate:            wf.WinRate,
		MeanWeeklyExcess:   wf.MeanWeeklyExcess,
		InformationRatio:   wf.InformationRatio,
		StrategyReturnPct:  full.NetReturnPct,
		BenchmarkReturnPct: bench.NetReturnPct,
		TradingDays:        full.TradingDays,
	}
	log.Debug().
		Str("candidate", c.ID).
		Float64("score", Objective(m)).
		Float64("p_value", m.PValue).
		Float64("mean_weekly_excess", m.MeanWeeklyExcess).
		Msg("candidate evaluated")
	return m
}
