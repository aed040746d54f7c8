package trigger

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/portfolio"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Name 触发器类型
type Name string

const (
	None              Name = ""
	VIXStress         Name = "vix_stress"
	VIXCaution        Name = "vix_caution"
	VIXRiskOn         Name = "vix_risk_on"
	VIXCautionRecover Name = "vix_caution_recover"
	IndexStopLoss     Name = "index_stop_loss"
	IndexBuyLevel     Name = "index_buy_level"
	IndexSellLevel    Name = "index_sell_level"
	Drift             Name = "drift"
)

// DefaultDriftThresholdPct 默认漂移阈值 (百分点)
const DefaultDriftThresholdPct = 3.0

// ErrUnresolvable 触发器无法映射到任何情景 (配置错误)
var ErrUnresolvable = errors.New("no usable scenario for trigger")

// scenarioCandidates 触发器 -> 候选情景 (按优先级)
var scenarioCandidates = map[Name][]string{
	VIXStress:         {"tail_risk", "bear"},
	VIXCaution:        {"bear", types.ScenarioBase},
	VIXRiskOn:         {"bull", types.ScenarioBase},
	VIXCautionRecover: {types.ScenarioBase},
	IndexStopLoss:     {"bear", "tail_risk"},
	IndexBuyLevel:     {"bull", types.ScenarioBase},
	IndexSellLevel:    {types.ScenarioBase},
	Drift:             nil,
}

// Candidates 返回触发器的候选情景
func Candidates(name Name) []string {
	return append([]string(nil), scenarioCandidates[name]...)
}

// Matcher 触发器检测与情景解析；每次独立回测需新建
type Matcher struct {
	driftThreshold float64
	prevVIX        *float64
}

// NewMatcher 创建触发器，阈值 <= 0 时使用默认值
func NewMatcher(driftThresholdPct float64) *Matcher {
	if driftThresholdPct <= 0 {
		driftThresholdPct = DefaultDriftThresholdPct
	}
	return &Matcher{driftThreshold: driftThresholdPct}
}

// DriftThreshold 漂移阈值
func (m *Matcher) DriftThreshold() float64 { return m.driftThreshold }

// Reset 清除 VIX 基线
func (m *Matcher) Reset() { m.prevVIX = nil }

// Check 基于收盘数据检测触发器，按固定优先级只返回第一个；VIX 基线总是更新
func (m *Matcher) Check(level types.MarketLevel, pf portfolio.AllocationReader, period *types.StrategyPeriod, activeScenario string) Name {
	if period == nil {
		return None
	}
	if name := m.checkVIX(level.VIX, period.VIX.WithDefaults()); name != None {
		return name
	}
	if name := checkIndices(level, period); name != None {
		return name
	}
	if pf != nil && m.drifted(pf.AllocationPct(), period, activeScenario) {
		return Drift
	}
	return None
}

func (m *Matcher) checkVIX(vix *float64, th types.VIXThresholds) Name {
	if vix == nil {
		return None
	}
	prev := m.prevVIX
	cur := *vix
	m.prevVIX = types.Float(cur)
	if prev == nil {
		return None
	}

	p := *prev
	switch {
	case p < th.Stress && th.Stress <= cur:
		return VIXStress
	case p < th.Caution && th.Caution <= cur:
		return VIXCaution
	case p > th.RiskOn && th.RiskOn >= cur:
		return VIXRiskOn
	case p > th.Caution && th.Caution >= cur:
		return VIXCautionRecover
	}
	return None
}

func checkIndices(level types.MarketLevel, period *types.StrategyPeriod) Name {
	for _, name := range period.IndexNames() {
		value, ok := level.Index(name)
		if !ok {
			continue
		}
		lv := period.IndexLevels[name]
		if lv.Stop != nil && value <= *lv.Stop {
			return IndexStopLoss
		}
		if lv.Buy != nil && value <= *lv.Buy {
			return IndexBuyLevel
		}
		if lv.Sell != nil && value >= *lv.Sell {
			return IndexSellLevel
		}
	}
	return None
}

// drifted 当前持仓与生效情景目标的最大偏离是否超过阈值
func (m *Matcher) drifted(current types.Allocation, period *types.StrategyPeriod, activeScenario string) bool {
	if current.Len() == 0 {
		return false
	}
	target, ok := period.AllocationFor(activeScenario)
	if !ok {
		target = period.BaseAllocation
	}
	if target.Len() == 0 {
		return false
	}

	maxDrift := 0.0
	for _, s := range target.Symbols() {
		maxDrift = math.Max(maxDrift, math.Abs(current.Pct(s)-target.Pct(s)))
	}
	for _, s := range current.Symbols() {
		if !target.Has(s) {
			maxDrift = math.Max(maxDrift, current.Pct(s))
		}
	}
	return maxDrift > m.driftThreshold
}

// ResolveScenario 触发器 -> 情景名称；drift 返回空字符串 (保持当前情景)
func ResolveScenario(name Name, period *types.StrategyPeriod) (string, error) {
	if name == Drift || name == None {
		return "", nil
	}
	candidates := scenarioCandidates[name]
	for _, c := range candidates {
		if period.HasScenario(c) {
			return c, nil
		}
	}

	log.Warn().Str("trigger", string(name)).Strs("candidates", candidates).Msg("no matching scenario, falling back to base")
	if period.HasScenario(types.ScenarioBase) {
		return types.ScenarioBase, nil
	}
	return "", fmt.Errorf("%w: trigger=%s period=%s", ErrUnresolvable, name, period.EffectiveDate.Format(types.DateLayout))
}

// IsDrift 是否为漂移触发
func (n Name) IsDrift() bool { return n == Drift }
