package optimize

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// candidateNamespace 候选 ID 的 UUIDv5 命名空间
var candidateNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("weekly-strategy-backtest/optimize"))

// Params 一组候选参数
type Params struct {
	TiltScale         float64 `json:"tilt_scale"`          // 情景相对基准配置的偏离倍数，1 为原样
	VIXShift          float64 `json:"vix_shift"`           // 三档 VIX 阈值的统一平移
	DriftThresholdPct float64 `json:"drift_threshold_pct"` // 漂移触发阈值
}

func (p Params) key() string {
	return fmt.Sprintf("tilt=%g;vix=%g;drift=%g", p.TiltScale, p.VIXShift, p.DriftThresholdPct)
}

// Candidate 带确定性 ID 的候选
type Candidate struct {
	ID     string `json:"candidate_id"`
	Params Params `json:"params"`
}

// NewCandidate 相同参数总是得到相同 ID
func NewCandidate(p Params) Candidate {
	return Candidate{
		ID:     uuid.NewSHA1(candidateNamespace, []byte(p.key())).String(),
		Params: p,
	}
}

// Grid 参数网格
type Grid struct {
	TiltScales      []float64 `validate:"required,min=1,dive,gte=0"`
	VIXShifts       []float64 `validate:"required,min=1"`
	DriftThresholds []float64 `validate:"required,min=1,dive,gt=0"`
}

// DefaultGrid 3 × 3 × 3
func DefaultGrid() Grid {
	return Grid{
		TiltScales:      []float64{0.5, 1.0, 1.5},
		VIXShifts:       []float64{-2, 0, 2},
		DriftThresholds: []float64{2, 3, 5},
	}
}

// Candidates 网格的笛卡尔积，顺序为 tilt → vix → drift
func (g Grid) Candidates() []Candidate {
	out := make([]Candidate, 0, len(g.TiltScales)*len(g.VIXShifts)*len(g.DriftThresholds))
	for _, tilt := range g.TiltScales {
		for _, shift := range g.VIXShifts {
			for _, drift := range g.DriftThresholds {
				out = append(out, NewCandidate(Params{TiltScale: tilt, VIXShift: shift, DriftThresholdPct: drift}))
			}
		}
	}
	return out
}

// Apply 返回按候选参数调整后的周期：情景配置 base + scale·(scenario − base)，
// 负值截为 0 后归一化到 100；VIX 阈值整体平移
func (p Params) Apply(period types.StrategyPeriod) types.StrategyPeriod {
	out := period
	out.Scenarios = make([]types.Scenario, len(period.Scenarios))
	for i, sc := range period.Scenarios {
		out.Scenarios[i] = types.Scenario{Name: sc.Name, Allocation: tilt(period.BaseAllocation, sc.Allocation, p.TiltScale)}
	}

	th := period.VIX.WithDefaults()
	out.VIX = types.VIXThresholds{
		RiskOn:  math.Max(th.RiskOn+p.VIXShift, 1),
		Caution: math.Max(th.Caution+p.VIXShift, 2),
		Stress:  math.Max(th.Stress+p.VIXShift, 3),
	}
	return out
}

func tilt(base, scenario types.Allocation, scale float64) types.Allocation {
	symbols := scenario.Symbols()
	for _, s := range base.Symbols() {
		if !scenario.Has(s) {
			symbols = append(symbols, s)
		}
	}

	var out types.Allocation
	for _, s := range symbols {
		b := base.Pct(s)
		v := b + scale*(scenario.Pct(s)-b)
		if v > 0 {
			out.Set(s, v)
		}
	}
	if out.Sum() <= 0 {
		return base.Clone()
	}
	return out.Normalized()
}
