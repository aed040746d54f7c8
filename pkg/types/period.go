package types

import (
	"sort"
	"time"
)

// ScenarioBase 基准情景名称
const ScenarioBase = "base"

// 默认 VIX 阈值
const (
	DefaultVIXRiskOn  = 17.0
	DefaultVIXCaution = 20.0
	DefaultVIXStress  = 23.0
)

// VIXThresholds VIX 触发阈值
type VIXThresholds struct {
	RiskOn  float64
	Caution float64
	Stress  float64
}

// WithDefaults 未设置的阈值使用默认值
func (v VIXThresholds) WithDefaults() VIXThresholds {
	if v.RiskOn <= 0 {
		v.RiskOn = DefaultVIXRiskOn
	}
	if v.Caution <= 0 {
		v.Caution = DefaultVIXCaution
	}
	if v.Stress <= 0 {
		v.Stress = DefaultVIXStress
	}
	return v
}

// IndexLevels 指数关键点位 (nil 表示未设置)
type IndexLevels struct {
	Buy  *float64
	Sell *float64
	Stop *float64
}

// Scenario 命名情景及其目标配置
type Scenario struct {
	Name       string
	Allocation Allocation
}

// StrategyPeriod 一个策略周期 (加载后只读)
type StrategyPeriod struct {
	EffectiveDate  time.Time
	BaseAllocation Allocation
	Scenarios      []Scenario // 保持输入顺序
	VIX            VIXThresholds
	IndexLevels    map[string]IndexLevels
}

// Scenario 按名称查找情景
func (p *StrategyPeriod) Scenario(name string) (Allocation, bool) {
	for _, s := range p.Scenarios {
		if s.Name == name {
			return s.Allocation, true
		}
	}
	return Allocation{}, false
}

// HasScenario 是否定义了情景
func (p *StrategyPeriod) HasScenario(name string) bool {
	_, ok := p.Scenario(name)
	return ok
}

// AllocationFor 返回情景配置；未显式定义 base 情景时 base 取基准配置
func (p *StrategyPeriod) AllocationFor(name string) (Allocation, bool) {
	if alloc, ok := p.Scenario(name); ok {
		return alloc, true
	}
	if name == ScenarioBase {
		return p.BaseAllocation, true
	}
	return Allocation{}, false
}

// IndexNames 按名称排序返回跟踪的指数
func (p *StrategyPeriod) IndexNames() []string {
	names := make([]string, 0, len(p.IndexLevels))
	for name := range p.IndexLevels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Symbols 该周期涉及的全部标的 (排序去重)
func (p *StrategyPeriod) Symbols() []Symbol {
	seen := make(map[Symbol]struct{})
	for _, s := range p.BaseAllocation.Symbols() {
		seen[s] = struct{}{}
	}
	for _, sc := range p.Scenarios {
		for _, s := range sc.Allocation.Symbols() {
			seen[s] = struct{}{}
		}
	}
	out := make([]Symbol, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	SortSymbols(out)
	return out
}

// SkippedPeriod 校验失败被跳过的周期
type SkippedPeriod struct {
	EffectiveDate string `json:"effective_date"`
	Reason        string `json:"reason"`
}
