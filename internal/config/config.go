package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/optimize"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/robustness"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/trigger"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/walkforward"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Config 配置文件结构
type Config struct {
	Backtest    BacktestSection    `yaml:"backtest"`
	Costs       CostsSection       `yaml:"costs"`
	Trigger     TriggerSection     `yaml:"trigger"`
	WalkForward WalkForwardSection `yaml:"walkforward"`
	Robustness  RobustnessSection  `yaml:"robustness"`
	Optimize    OptimizeSection    `yaml:"optimize"`
	Output      OutputSection      `yaml:"output"`
	Logging     LoggingSection     `yaml:"logging"`
}

// BacktestSection 回测配置
type BacktestSection struct {
	StartDate         string   `yaml:"start_date" validate:"required"`
	EndDate           string   `yaml:"end_date" validate:"required"`
	InitialCapital    float64  `yaml:"initial_capital" validate:"gt=0"`
	Mode              string   `yaml:"mode" validate:"oneof=schedule trigger"`
	Cadence           string   `yaml:"cadence" validate:"oneof=transition weekend"`
	FeedPath          string   `yaml:"feed" validate:"required"`
	DataDir           string   `yaml:"data_dir"`
	WholeShareSymbols []string `yaml:"whole_share_symbols"`
}

// CostsSection 成本配置
type CostsSection struct {
	SpreadBps   float64  `yaml:"spread_bps" validate:"gte=0"`
	FeeRate     *float64 `yaml:"fee_rate" validate:"omitempty,gte=0"` // 未设置时取 SEC 费率
	SlippageBps float64  `yaml:"slippage_bps" validate:"gte=0"`
}

// TriggerSection 触发器配置
type TriggerSection struct {
	DriftThresholdPct float64 `yaml:"drift_threshold_pct" validate:"gte=0"`
}

// WalkForwardSection 前向验证配置
type WalkForwardSection struct {
	WindowWeeks int     `yaml:"window_weeks" validate:"gt=0"`
	StepWeeks   int     `yaml:"step_weeks" validate:"gt=0"`
	MinWeeks    int     `yaml:"min_weeks" validate:"gt=0"`
	Benchmark   string  `yaml:"benchmark" validate:"required"`
	TargetP     float64 `yaml:"target_p" validate:"gt=0,lt=1"`
}

// RobustnessSection 成本敏感性配置
type RobustnessSection struct {
	CostLadderBps []float64 `yaml:"cost_ladder_bps" validate:"min=2,dive,gte=0"`
	ReactiveMode  string    `yaml:"reactive_mode" validate:"required"`
	BaselineMode  string    `yaml:"baseline_mode" validate:"required"`
	RealisticBps  float64   `yaml:"realistic_bps" validate:"gte=0"`
	ReferenceBps  float64   `yaml:"reference_bps" validate:"gte=0"`
}

// OptimizeSection 参数扫描配置
type OptimizeSection struct {
	TrainStart      string    `yaml:"train_start"`
	TrainEnd        string    `yaml:"train_end"`
	HoldoutStart    string    `yaml:"holdout_start"`
	HoldoutEnd      string    `yaml:"holdout_end"`
	TopK            int       `yaml:"top_k" validate:"gt=0"`
	Parallelism     int       `yaml:"parallelism" validate:"gte=0"`
	TiltScales      []float64 `yaml:"tilt_scales"`
	VIXShifts       []float64 `yaml:"vix_shifts"`
	DriftThresholds []float64 `yaml:"drift_thresholds"`
}

// OutputSection 输出配置
type OutputSection struct {
	Format         string `yaml:"format" validate:"oneof=json csv both"`
	Path           string `yaml:"path"`
	GenerateReport bool   `yaml:"generate_report"`
	MetricsFile    string `yaml:"metrics_file"` // prometheus textfile，空表示不写
}

// LoggingSection 日志配置
type LoggingSection struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto console json"`
}

var validate = validator.New()

// Default 返回全部默认值 (无配置文件时使用)
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 并补齐默认值
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	b := &c.Backtest
	if b.InitialCapital == 0 {
		b.InitialCapital = 100000
	}
	if b.Mode == "" {
		b.Mode = string(types.ModeTrigger)
	}
	if b.Cadence == "" {
		b.Cadence = string(types.CadenceTransition)
	}
	if b.FeedPath == "" {
		b.FeedPath = "data/periods.yaml"
	}

	if c.Costs.FeeRate == nil {
		c.Costs.FeeRate = types.Float(cost.DefaultSECFeeRate)
	}
	if c.Trigger.DriftThresholdPct == 0 {
		c.Trigger.DriftThresholdPct = trigger.DefaultDriftThresholdPct
	}

	wf, def := &c.WalkForward, walkforward.DefaultConfig()
	if wf.WindowWeeks == 0 {
		wf.WindowWeeks = def.WindowWeeks
	}
	if wf.StepWeeks == 0 {
		wf.StepWeeks = def.StepWeeks
	}
	if wf.MinWeeks == 0 {
		wf.MinWeeks = def.MinWeeks
	}
	if wf.Benchmark == "" {
		wf.Benchmark = string(def.BenchmarkSymbol)
	}
	if wf.TargetP == 0 {
		wf.TargetP = def.TargetP
	}

	rb, rdef := &c.Robustness, robustness.DefaultConfig()
	if len(rb.CostLadderBps) == 0 {
		rb.CostLadderBps = rdef.CostLadderBps
	}
	if rb.ReactiveMode == "" {
		rb.ReactiveMode = rdef.ReactiveMode
	}
	if rb.BaselineMode == "" {
		rb.BaselineMode = rdef.BaselineMode
	}
	if rb.RealisticBps == 0 {
		rb.RealisticBps = rdef.RealisticBps
	}
	if rb.ReferenceBps == 0 {
		rb.ReferenceBps = rdef.ReferenceBps
	}

	op, grid := &c.Optimize, optimize.DefaultGrid()
	if op.TopK == 0 {
		op.TopK = 5
	}
	if len(op.TiltScales) == 0 {
		op.TiltScales = grid.TiltScales
	}
	if len(op.VIXShifts) == 0 {
		op.VIXShifts = grid.VIXShifts
	}
	if len(op.DriftThresholds) == 0 {
		op.DriftThresholds = grid.DriftThresholds
	}

	if c.Output.Format == "" {
		c.Output.Format = "json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
}

// Validate 校验字段取值
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ToBacktestConfig 转换为回测配置
func (c *Config) ToBacktestConfig() (types.BacktestConfig, error) {
	startDate, err := types.ParseDate(c.Backtest.StartDate)
	if err != nil {
		return types.BacktestConfig{}, fmt.Errorf("invalid start_date: %w", err)
	}
	endDate, err := types.ParseDate(c.Backtest.EndDate)
	if err != nil {
		return types.BacktestConfig{}, fmt.Errorf("invalid end_date: %w", err)
	}
	mode, err := types.ParseMode(c.Backtest.Mode)
	if err != nil {
		return types.BacktestConfig{}, err
	}
	cadence, err := types.ParseCadence(c.Backtest.Cadence)
	if err != nil {
		return types.BacktestConfig{}, err
	}

	whole := make([]types.Symbol, 0, len(c.Backtest.WholeShareSymbols))
	for _, s := range c.Backtest.WholeShareSymbols {
		sym, err := types.ParseSymbol(s)
		if err != nil {
			return types.BacktestConfig{}, fmt.Errorf("whole_share_symbols: %w", err)
		}
		whole = append(whole, sym)
	}

	return types.BacktestConfig{
		StartDate:         startDate,
		EndDate:           endDate,
		InitialCapital:    c.Backtest.InitialCapital,
		Mode:              mode,
		Cadence:           cadence,
		DriftThresholdPct: c.Trigger.DriftThresholdPct,
		WholeShareSymbols: whole,
	}, nil
}

// ToCostConfig 转换为成本配置
func (c *Config) ToCostConfig() types.CostConfig {
	fee := cost.DefaultSECFeeRate
	if c.Costs.FeeRate != nil {
		fee = *c.Costs.FeeRate
	}
	return types.CostConfig{
		SpreadBps:   c.Costs.SpreadBps,
		FeeRate:     fee,
		SlippageBps: c.Costs.SlippageBps,
	}
}

// ToWalkForwardConfig 转换为前向验证配置
func (c *Config) ToWalkForwardConfig() (walkforward.Config, error) {
	sym, err := types.ParseSymbol(c.WalkForward.Benchmark)
	if err != nil {
		return walkforward.Config{}, fmt.Errorf("walkforward.benchmark: %w", err)
	}
	return walkforward.Config{
		WindowWeeks:     c.WalkForward.WindowWeeks,
		StepWeeks:       c.WalkForward.StepWeeks,
		MinWeeks:        c.WalkForward.MinWeeks,
		BenchmarkSymbol: sym,
		TargetP:         c.WalkForward.TargetP,
	}, nil
}

// ToRobustnessConfig 转换为成本敏感性配置
func (c *Config) ToRobustnessConfig() robustness.Config {
	return robustness.Config{
		CostLadderBps: append([]float64(nil), c.Robustness.CostLadderBps...),
		ReactiveMode:  c.Robustness.ReactiveMode,
		BaselineMode:  c.Robustness.BaselineMode,
		RealisticBps:  c.Robustness.RealisticBps,
		ReferenceBps:  c.Robustness.ReferenceBps,
	}
}

// ToOptimizeConfig 转换为参数扫描配置；未设置的区间按回测区间前 70% 训练、其余留出
func (c *Config) ToOptimizeConfig() (optimize.Config, optimize.Grid, error) {
	bt, err := c.ToBacktestConfig()
	if err != nil {
		return optimize.Config{}, optimize.Grid{}, err
	}
	wf, err := c.ToWalkForwardConfig()
	if err != nil {
		return optimize.Config{}, optimize.Grid{}, err
	}

	days := int(bt.EndDate.Sub(bt.StartDate).Hours() / 24)
	split := bt.StartDate.AddDate(0, 0, days*7/10)
	oc := optimize.Config{
		TopK:           c.Optimize.TopK,
		InitialCapital: bt.InitialCapital,
		Cadence:        bt.Cadence,
		WalkForward:    wf,
		Parallelism:    c.Optimize.Parallelism,
	}
	if oc.TrainStart, err = dateOr("train_start", c.Optimize.TrainStart, bt.StartDate); err != nil {
		return optimize.Config{}, optimize.Grid{}, err
	}
	if oc.TrainEnd, err = dateOr("train_end", c.Optimize.TrainEnd, split); err != nil {
		return optimize.Config{}, optimize.Grid{}, err
	}
	if oc.HoldoutStart, err = dateOr("holdout_start", c.Optimize.HoldoutStart, split.AddDate(0, 0, 1)); err != nil {
		return optimize.Config{}, optimize.Grid{}, err
	}
	if oc.HoldoutEnd, err = dateOr("holdout_end", c.Optimize.HoldoutEnd, bt.EndDate); err != nil {
		return optimize.Config{}, optimize.Grid{}, err
	}

	grid := optimize.Grid{
		TiltScales:      append([]float64(nil), c.Optimize.TiltScales...),
		VIXShifts:       append([]float64(nil), c.Optimize.VIXShifts...),
		DriftThresholds: append([]float64(nil), c.Optimize.DriftThresholds...),
	}
	return oc, grid, nil
}

func dateOr(name, value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	t, err := types.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("optimize.%s: %w", name, err)
	}
	return t, nil
}

// GetDataDir 获取数据目录
func (c *Config) GetDataDir() string {
	if c.Backtest.DataDir != "" {
		return c.Backtest.DataDir
	}
	return "data/market"
}

// GetOutputPath 获取输出路径
func (c *Config) GetOutputPath() string {
	if c.Output.Path != "" {
		return c.Output.Path
	}
	return "output"
}
