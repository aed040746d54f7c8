package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

type fixedAllocation types.Allocation

func (f fixedAllocation) AllocationPct() types.Allocation { return types.Allocation(f) }

func period(scenarios ...string) *types.StrategyPeriod {
	p := &types.StrategyPeriod{
		EffectiveDate:  types.Date(2026, 1, 5),
		BaseAllocation: types.NewAllocation(types.Weight{Symbol: types.SymbolSPY, Pct: 60}, types.Weight{Symbol: types.SymbolTLT, Pct: 40}),
		VIX:            types.VIXThresholds{RiskOn: 17, Caution: 20, Stress: 23},
	}
	for _, name := range scenarios {
		p.Scenarios = append(p.Scenarios, types.Scenario{
			Name:       name,
			Allocation: types.NewAllocation(types.Weight{Symbol: types.SymbolBIL, Pct: 100}),
		})
	}
	return p
}

func vix(v float64) types.MarketLevel {
	return types.MarketLevel{VIX: types.Float(v)}
}

func TestVIXCrossing(t *testing.T) {
	p := period("bear")
	m := NewMatcher(0)

	assert.Equal(t, None, m.Check(vix(18), nil, p, types.ScenarioBase))
	assert.Equal(t, VIXCaution, m.Check(vix(22), nil, p, types.ScenarioBase))
}

func TestVIXSequence(t *testing.T) {
	tests := []struct {
		name string
		seq  []float64
		want Name
	}{
		{"stress beats caution", []float64{19, 24}, VIXStress},
		{"stress on equality", []float64{22, 23}, VIXStress},
		{"risk on", []float64{18, 16.5}, VIXRiskOn},
		{"caution recover", []float64{21, 19}, VIXCautionRecover},
		{"no cross", []float64{18, 19.5}, None},
		{"staying above", []float64{25, 26}, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(0)
			var got Name
			for _, v := range tt.seq {
				got = m.Check(vix(v), nil, period(), types.ScenarioBase)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVIXBaselineUpdatedWhenIndexFires(t *testing.T) {
	p := period()
	p.IndexLevels = map[string]types.IndexLevels{"sp500": {Stop: types.Float(5000)}}
	m := NewMatcher(0)

	lvl := types.MarketLevel{VIX: types.Float(18), Indices: map[string]float64{"sp500": 4900}}
	assert.Equal(t, IndexStopLoss, m.Check(lvl, nil, p, types.ScenarioBase))

	// 基线已更新为 18，19 不构成穿越
	assert.Equal(t, None, m.Check(vix(19), nil, p, types.ScenarioBase))
	assert.Equal(t, VIXCaution, m.Check(vix(20), nil, p, types.ScenarioBase))
}

func TestMissingVIXKeepsBaseline(t *testing.T) {
	m := NewMatcher(0)
	p := period()
	m.Check(vix(18), nil, p, types.ScenarioBase)
	assert.Equal(t, None, m.Check(types.MarketLevel{}, nil, p, types.ScenarioBase))
	assert.Equal(t, VIXCaution, m.Check(vix(21), nil, p, types.ScenarioBase))

	m.Reset()
	assert.Equal(t, None, m.Check(vix(25), nil, p, types.ScenarioBase))
}

func TestIndexLevels(t *testing.T) {
	p := period()
	p.IndexLevels = map[string]types.IndexLevels{
		"sp500":  {Buy: types.Float(5500), Stop: types.Float(5000)},
		"nasdaq": {Sell: types.Float(21000)},
	}
	tests := []struct {
		name    string
		indices map[string]float64
		want    Name
	}{
		{"stop before buy", map[string]float64{"sp500": 4999}, IndexStopLoss},
		{"buy level", map[string]float64{"sp500": 5400}, IndexBuyLevel},
		{"sell level", map[string]float64{"nasdaq": 21000}, IndexSellLevel},
		{"sorted index order", map[string]float64{"nasdaq": 22000, "sp500": 4000}, IndexSellLevel},
		{"inside band", map[string]float64{"sp500": 5800, "nasdaq": 20000}, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(0)
			assert.Equal(t, tt.want, m.Check(types.MarketLevel{Indices: tt.indices}, nil, p, types.ScenarioBase))
		})
	}
}

func TestDrift(t *testing.T) {
	p := period("bear")
	m := NewMatcher(3)

	inBand := types.NewAllocation(types.Weight{Symbol: types.SymbolSPY, Pct: 62}, types.Weight{Symbol: types.SymbolTLT, Pct: 38})
	assert.Equal(t, None, m.Check(types.MarketLevel{}, fixedAllocation(inBand), p, types.ScenarioBase))

	drifted := types.NewAllocation(types.Weight{Symbol: types.SymbolSPY, Pct: 64}, types.Weight{Symbol: types.SymbolTLT, Pct: 36})
	assert.Equal(t, Drift, m.Check(types.MarketLevel{}, fixedAllocation(drifted), p, types.ScenarioBase))

	// 生效情景为 bear 时以 bear 配置为目标
	assert.Equal(t, Drift, m.Check(types.MarketLevel{}, fixedAllocation(inBand), p, "bear"))
	allBIL := types.NewAllocation(types.Weight{Symbol: types.SymbolBIL, Pct: 100})
	assert.Equal(t, None, m.Check(types.MarketLevel{}, fixedAllocation(allBIL), p, "bear"))

	assert.Equal(t, None, m.Check(types.MarketLevel{}, fixedAllocation(types.Allocation{}), p, types.ScenarioBase))
}

func TestResolveScenario(t *testing.T) {
	tests := []struct {
		name      string
		trigger   Name
		scenarios []string
		want      string
	}{
		{"first candidate", VIXStress, []string{"bear", "tail_risk"}, "tail_risk"},
		{"second candidate", VIXStress, []string{"bear"}, "bear"},
		{"stop loss prefers bear", IndexStopLoss, []string{"tail_risk", "bear"}, "bear"},
		{"fallback to base", VIXRiskOn, []string{"base", "bear"}, "base"},
		{"sell level base", IndexSellLevel, []string{"base"}, "base"},
		{"stress falls back to base", VIXStress, []string{"base", "bull"}, "base"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveScenario(tt.trigger, period(tt.scenarios...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveScenarioUnresolvable(t *testing.T) {
	_, err := ResolveScenario(VIXStress, period("bull"))
	require.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveDrift(t *testing.T) {
	got, err := ResolveScenario(Drift, period())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, Drift.IsDrift())
	assert.Empty(t, Candidates(Drift))
	assert.Equal(t, []string{"tail_risk", "bear"}, Candidates(VIXStress))
}
