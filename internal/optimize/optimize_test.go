package optimize

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/strategy"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/telemetry"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/walkforward"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

func w(sym types.Symbol, pct float64) types.Weight { return types.Weight{Symbol: sym, Pct: pct} }

func TestCandidateIDsAreDeterministic(t *testing.T) {
	a := NewCandidate(Params{TiltScale: 1, VIXShift: 0, DriftThresholdPct: 3})
	b := NewCandidate(Params{TiltScale: 1, VIXShift: 0, DriftThresholdPct: 3})
	c := NewCandidate(Params{TiltScale: 1.5, VIXShift: 0, DriftThresholdPct: 3})

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, uuid.Version(5), uuid.MustParse(a.ID).Version())
}

func TestGridCandidates(t *testing.T) {
	cands := DefaultGrid().Candidates()
	require.Len(t, cands, 27)
	assert.Equal(t, Params{TiltScale: 0.5, VIXShift: -2, DriftThresholdPct: 2}, cands[0].Params)
	assert.Equal(t, Params{TiltScale: 0.5, VIXShift: -2, DriftThresholdPct: 3}, cands[1].Params)
	assert.Equal(t, Params{TiltScale: 1.5, VIXShift: 2, DriftThresholdPct: 5}, cands[26].Params)

	ids := make(map[string]struct{})
	for _, c := range cands {
		ids[c.ID] = struct{}{}
	}
	assert.Len(t, ids, 27)
}

func TestApplyTiltsScenarios(t *testing.T) {
	period := types.StrategyPeriod{
		EffectiveDate:  types.Date(2026, 1, 5),
		BaseAllocation: types.NewAllocation(w(types.SymbolSPY, 60), w(types.SymbolTLT, 40)),
		Scenarios: []types.Scenario{
			{Name: "bear", Allocation: types.NewAllocation(w(types.SymbolSPY, 20), w(types.SymbolTLT, 80))},
			{Name: "gold", Allocation: types.NewAllocation(w(types.SymbolGLD, 100))},
		},
	}

	tests := []struct {
		scale    float64
		bearSPY  float64
		bearTLT  float64
		bearSyms int
	}{
		{0, 60, 40, 2},
		{0.5, 40, 60, 2},
		{1, 20, 80, 2},
		{1.5, 0, 100, 1},
		{2, 0, 100, 1},
	}
	for _, tt := range tests {
		out := Params{TiltScale: tt.scale}.Apply(period)
		bear, ok := out.Scenario("bear")
		require.True(t, ok)
		assert.InDelta(t, tt.bearSPY, bear.Pct(types.SymbolSPY), 1e-9, "scale %g", tt.scale)
		assert.InDelta(t, tt.bearTLT, bear.Pct(types.SymbolTLT), 1e-9, "scale %g", tt.scale)
		assert.Equal(t, tt.bearSyms, bear.Len(), "scale %g", tt.scale)
		assert.InDelta(t, 100, bear.Sum(), 1e-9)
	}

	tilted := Params{TiltScale: 0.5}.Apply(period)
	gold, ok := tilted.Scenario("gold")
	require.True(t, ok)
	assert.Equal(t, []types.Symbol{types.SymbolGLD, types.SymbolSPY, types.SymbolTLT}, gold.Symbols())
	assert.InDelta(t, 50, gold.Pct(types.SymbolGLD), 1e-9)
	assert.InDelta(t, 30, gold.Pct(types.SymbolSPY), 1e-9)

	// 原周期不受影响
	orig, _ := period.Scenario("bear")
	assert.InDelta(t, 20, orig.Pct(types.SymbolSPY), 1e-9)
}

func TestApplyShiftsVIX(t *testing.T) {
	period := types.StrategyPeriod{BaseAllocation: types.NewAllocation(w(types.SymbolSPY, 100))}

	out := Params{TiltScale: 1, VIXShift: 2}.Apply(period)
	assert.Equal(t, types.VIXThresholds{RiskOn: 19, Caution: 22, Stress: 25}, out.VIX)

	out = Params{TiltScale: 1, VIXShift: -30}.Apply(period)
	assert.Equal(t, types.VIXThresholds{RiskOn: 1, Caution: 2, Stress: 3}, out.VIX)
}

func TestObjective(t *testing.T) {
	m := Metrics{Status: StatusOK, MeanWeeklyExcess: 0.5, WinRate: 0.6, PValue: 0.1}
	assert.InDelta(t, 51.5, Objective(m), 1e-9)
	assert.Equal(t, invalidScore, Objective(failed(StatusTooShort)))
}

func TestSelectBest(t *testing.T) {
	row := func(id string, m *Metrics) Row { return Row{Candidate: Candidate{ID: id}, Holdout: m} }
	top := []Row{
		row("a", &Metrics{Status: StatusOK, MeanWeeklyExcess: 0.2, PValue: 0.3, WinRate: 0.5}),
		row("b", &Metrics{Status: StatusOK, MeanWeeklyExcess: 0.4, PValue: 0.4, WinRate: 0.5}),
		row("c", &Metrics{Status: StatusOK, MeanWeeklyExcess: 0.4, PValue: 0.2, WinRate: 0.4}),
		row("d", &Metrics{Status: StatusOK, MeanWeeklyExcess: 0.4, PValue: 0.2, WinRate: 0.6}),
		row("e", &Metrics{Status: StatusError, MeanWeeklyExcess: 9}),
		row("f", nil),
	}
	best, ok := SelectBest(top)
	require.True(t, ok)
	assert.Equal(t, "d", best.Candidate.ID)

	_, ok = SelectBest(top[4:])
	assert.False(t, ok)
}

var (
	trainStart   = types.Date(2026, 1, 5)
	trainEnd     = types.Date(2026, 2, 13)
	holdoutStart = types.Date(2026, 2, 17)
	holdoutEnd   = types.Date(2026, 3, 27)
)

// fixture 每周一个周期，价格与 VIX 循环波动
func fixture() (*strategy.Timeline, *data.MemorySource) {
	src := data.NewMemorySource()
	vix := []float64{18, 21, 16, 19}
	for i, d := range src.TradingDays(trainStart, holdoutEnd) {
		src.SetClose(types.SymbolSPY, d, 100+float64(i%7)-float64(i%3))
		src.SetClose(types.SymbolTLT, d, 50+float64(i%4))
		src.SetIndex(data.IndexVIX, d, vix[i%len(vix)])
	}

	scenarios := []types.Scenario{
		{Name: "bull", Allocation: types.NewAllocation(w(types.SymbolSPY, 90), w(types.SymbolTLT, 10))},
		{Name: "bear", Allocation: types.NewAllocation(w(types.SymbolSPY, 10), w(types.SymbolTLT, 90))},
	}
	var periods []types.StrategyPeriod
	for d := trainStart; d.Before(holdoutEnd); d = d.AddDate(0, 0, 7) {
		spy := 60.0
		if len(periods)%2 == 1 {
			spy = 40
		}
		periods = append(periods, types.StrategyPeriod{
			EffectiveDate:  d,
			BaseAllocation: types.NewAllocation(w(types.SymbolSPY, spy), w(types.SymbolTLT, 100-spy)),
			Scenarios:      scenarios,
		})
	}
	return strategy.NewTimeline(&strategy.Feed{Periods: periods}, data.NewUSMarketCalendar()), src
}

func testConfig() Config {
	return Config{
		TrainStart:     trainStart,
		TrainEnd:       trainEnd,
		HoldoutStart:   holdoutStart,
		HoldoutEnd:     holdoutEnd,
		TopK:           3,
		InitialCapital: 100000,
		WalkForward:    walkforward.DefaultConfig(),
		Parallelism:    2,
	}
}

func testGrid() Grid {
	return Grid{
		TiltScales:      []float64{0.5, 1.5},
		VIXShifts:       []float64{0},
		DriftThresholds: []float64{2, 5},
	}
}

func TestRunSelectsFromHoldout(t *testing.T) {
	tl, src := fixture()
	reg := telemetry.NewRegistry()
	o := New(testConfig(), testGrid(), tl, src)
	o.SetTelemetry(reg)

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Rows, 4)
	for i := 1; i < len(res.Rows); i++ {
		assert.GreaterOrEqual(t, res.Rows[i-1].TrainScore, res.Rows[i].TrainScore)
	}
	for _, r := range res.Rows {
		assert.Equal(t, StatusOK, r.Train.Status)
		assert.Greater(t, r.Train.TradingDays, 0)
	}

	require.Len(t, res.Top, 3)
	for i, r := range res.Top {
		assert.Equal(t, res.Rows[i].Candidate.ID, r.Candidate.ID)
		require.NotNil(t, r.Holdout)
		assert.Equal(t, StatusOK, r.Holdout.Status)
	}
	expected, ok := SelectBest(res.Top)
	require.True(t, ok)
	assert.Equal(t, expected.Candidate.ID, res.Best.Candidate.ID)

	again, err := New(testConfig(), testGrid(), tl, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Rows, again.Rows)
	assert.Equal(t, res.Best.Candidate.ID, again.Best.Candidate.ID)

	var csvOut bytes.Buffer
	require.NoError(t, WriteCSV(&csvOut, res))
	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "candidate_id,tilt_scale,vix_shift,drift_threshold_pct,train_score"))
	assert.True(t, strings.HasSuffix(lines[4], ",,,,,,"))

	var md bytes.Buffer
	require.NoError(t, WriteSummary(&md, res, testConfig()))
	assert.Contains(t, md.String(), "- ID: "+res.Best.Candidate.ID)
	assert.Contains(t, md.String(), "## Holdout")

	require.NoError(t, Export(t.TempDir(), res, testConfig()))
}

func TestEvaluateShortAndEmpty(t *testing.T) {
	tl, src := fixture()
	cands := testGrid().Candidates()
	o := New(testConfig(), testGrid(), tl, src)

	out, err := o.Evaluate(context.Background(), cands, holdoutEnd, holdoutEnd)
	require.NoError(t, err)
	for _, m := range out {
		assert.Equal(t, StatusTooShort, m.Status)
		assert.Equal(t, 1.0, m.PValue)
	}

	empty := strategy.NewTimeline(nil, data.NewUSMarketCalendar())
	out, err = New(testConfig(), testGrid(), empty, src).Evaluate(context.Background(), cands, trainStart, trainEnd)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, out[0].Status)
}

func TestRunCancelled(t *testing.T) {
	tl, src := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(), testGrid(), tl, src).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsBadConfig(t *testing.T) {
	tl, src := fixture()

	cfg := testConfig()
	cfg.TrainEnd = cfg.TrainStart.Add(-24 * time.Hour)
	_, err := New(cfg, testGrid(), tl, src).Run(context.Background())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.WalkForward.WindowWeeks = 0
	_, err = New(cfg, testGrid(), tl, src).Run(context.Background())
	assert.Error(t, err)

	_, err = New(testConfig(), Grid{}, tl, src).Run(context.Background())
	assert.Error(t, err)
}
