package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Registry 回测运行指标；nil 接收者上的方法均为空操作
type Registry struct {
	reg *prometheus.Registry

	Runs         *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	Trades       *prometheus.CounterVec
	SkippedDays  prometheus.Counter
	Triggers     *prometheus.CounterVec
	SweepRuns    prometheus.Counter
	ActiveSweeps prometheus.Gauge
}

// NewRegistry 创建独立的指标注册表
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Total number of engine runs by mode, cadence and status",
			},
			[]string{"mode", "cadence", "status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Wall time of a single engine run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"mode"},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_trades_total",
				Help: "Total number of simulated trade legs by reason",
			},
			[]string{"reason"},
		),

		SkippedDays: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtest_skipped_days_total",
				Help: "Trading days skipped because no close prices were available",
			},
		),

		Triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_triggers_total",
				Help: "Triggers detected on close data by trigger name",
			},
			[]string{"trigger"},
		),

		SweepRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtest_sweep_candidates_total",
				Help: "Parameter sweep candidates evaluated",
			},
		),

		ActiveSweeps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_sweep_workers_active",
				Help: "Number of sweep workers currently evaluating a candidate",
			},
		),
	}

	r.reg.MustRegister(r.Runs, r.RunDuration, r.Trades, r.SkippedDays, r.Triggers, r.SweepRuns, r.ActiveSweeps)
	return r
}

// Gatherer 返回底层注册表
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// ObserveRun 记录一次运行
func (r *Registry) ObserveRun(mode, cadence string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.Runs.WithLabelValues(mode, cadence, status).Inc()
	r.RunDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// RecordTrades 按原因累计成交笔数
func (r *Registry) RecordTrades(reason string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.Trades.WithLabelValues(reason).Add(float64(n))
}

// RecordSkippedDay 记录缺少行情而跳过的交易日
func (r *Registry) RecordSkippedDay() {
	if r == nil {
		return
	}
	r.SkippedDays.Inc()
}

// RecordTrigger 记录检测到的触发器
func (r *Registry) RecordTrigger(name string) {
	if r == nil || name == "" {
		return
	}
	r.Triggers.WithLabelValues(name).Inc()
}

// SweepStarted 参数扫描候选开始评估
func (r *Registry) SweepStarted() {
	if r == nil {
		return
	}
	r.ActiveSweeps.Inc()
}

// SweepFinished 参数扫描候选评估完成
func (r *Registry) SweepFinished() {
	if r == nil {
		return
	}
	r.ActiveSweeps.Dec()
	r.SweepRuns.Inc()
}

// WriteTextfile 以 node_exporter textfile 格式写出全部指标
func (r *Registry) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	log.Info().Str("path", path).Msg("metrics written")
	return nil
}
