package walkforward

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/metrics"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// 显著性判定阈值
const (
	SignificantP       = 0.05
	SignificantWinRate = 0.60
	InconclusiveP      = 0.10
	InconclusiveWin    = 0.55
)

// Series 日期升序的市值序列
type Series struct {
	dates  []time.Time
	values map[time.Time]float64
}

// NewSeries 由快照构建市值序列
func NewSeries(snapshots []types.DailySnapshot) Series {
	values := make(map[time.Time]float64, len(snapshots))
	for _, s := range snapshots {
		values[s.Date] = s.TotalValue
	}
	return SeriesFromMap(values)
}

// SeriesFromMap 由 日期->市值 构建序列
func SeriesFromMap(values map[time.Time]float64) Series {
	dates := make([]time.Time, 0, len(values))
	for d := range values {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return Series{dates: dates, values: values}
}

// Len 数据点个数
func (s Series) Len() int { return len(s.dates) }

// Get 某日市值
func (s Series) Get(d time.Time) (float64, bool) {
	v, ok := s.values[d]
	return v, ok
}

// between [start, end] 内的日期
func (s Series) between(start, end time.Time) []time.Time {
	var out []time.Time
	for _, d := range s.dates {
		if d.Before(start) {
			continue
		}
		if d.After(end) {
			break
		}
		out = append(out, d)
	}
	return out
}

// lastBefore 严格早于 boundary 的最后一个日期
func (s Series) lastBefore(boundary time.Time) (time.Time, bool) {
	idx := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(boundary) })
	if idx == 0 {
		return time.Time{}, false
	}
	return s.dates[idx-1], true
}

// WeeklyExcess 每个切换日区间的策略与基准收益；不足两天的周跳过
func WeeklyExcess(strat, bench Series, transitionDays []time.Time, end time.Time) []types.WeeklyExcess {
	var out []types.WeeklyExcess
	for i, td := range transitionDays {
		var days []time.Time
		if i+1 < len(transitionDays) {
			days = strat.between(td, transitionDays[i+1].Add(-time.Nanosecond))
		} else {
			days = strat.between(td, end)
		}
		if len(days) < 2 {
			continue
		}
		first, last := days[0], days[len(days)-1]
		sStart, _ := strat.Get(first)
		sEnd, _ := strat.Get(last)
		bStart, ok1 := bench.Get(first)
		bEnd, ok2 := bench.Get(last)
		if !ok1 || !ok2 || sStart <= 0 || sEnd <= 0 || bStart <= 0 || bEnd <= 0 {
			continue
		}
		sRet := metrics.ReturnPct(sStart, sEnd)
		bRet := metrics.ReturnPct(bStart, bEnd)
		out = append(out, types.WeeklyExcess{
			WeekDate:           td,
			StrategyReturnPct:  metrics.Round(sRet, 4),
			BenchmarkReturnPct: metrics.Round(bRet, 4),
			ExcessPct:          metrics.Round(sRet-bRet, 4),
		})
	}
	return out
}

// WinRate 超额收益为正的周占比
func WinRate(weekly []types.WeeklyExcess) float64 {
	if len(weekly) == 0 {
		return 0
	}
	wins := 0
	for _, w := range weekly {
		if w.ExcessPct > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(weekly))
}

// MeanExcess 平均周超额收益
func MeanExcess(weekly []types.WeeklyExcess) float64 {
	xs := make([]float64, len(weekly))
	for i, w := range weekly {
		xs[i] = w.ExcessPct
	}
	return metrics.Mean(xs)
}

// RollingWindows 固定宽度 (切换日个数) 的滚动窗口，按 step 前进
func RollingWindows(strat, bench Series, transitionDays []time.Time, windowWeeks, stepWeeks int, end time.Time) []types.WindowResult {
	if windowWeeks <= 0 {
		return nil
	}
	stepWeeks = max(stepWeeks, 1)
	n := len(transitionDays)
	var out []types.WindowResult
	for i := 0; i <= n-windowWeeks; i += stepWeeks {
		start := transitionDays[i]
		winEnd, ok := windowEnd(strat, transitionDays, i+windowWeeks, end)
		if !ok || !winEnd.After(start) {
			continue
		}
		if wr, ok := windowMetrics(strat, bench, start, winEnd, windowWeeks); ok {
			out = append(out, wr)
		}
	}
	return out
}

// ExpandingWindows 起点固定为第一个切换日，宽度从 minWeeks 按 step 增长
func ExpandingWindows(strat, bench Series, transitionDays []time.Time, minWeeks, stepWeeks int, end time.Time) []types.WindowResult {
	if len(transitionDays) == 0 {
		return nil
	}
	minWeeks = max(minWeeks, 1)
	stepWeeks = max(stepWeeks, 1)
	start := transitionDays[0]
	var out []types.WindowResult
	for weeks := minWeeks; weeks <= len(transitionDays); weeks += stepWeeks {
		winEnd, ok := windowEnd(strat, transitionDays, weeks, end)
		if !ok || !winEnd.After(start) {
			continue
		}
		if wr, ok := windowMetrics(strat, bench, start, winEnd, weeks); ok {
			out = append(out, wr)
		}
	}
	return out
}

// windowEnd 第 next 个切换日之前的最后一个数据日；超出范围时取 end
func windowEnd(strat Series, transitionDays []time.Time, next int, end time.Time) (time.Time, bool) {
	if next < len(transitionDays) {
		return strat.lastBefore(transitionDays[next])
	}
	return end, true
}

func windowMetrics(strat, bench Series, start, end time.Time, weeks int) (types.WindowResult, bool) {
	days := strat.between(start, end)
	if len(days) < 2 {
		return types.WindowResult{}, false
	}
	values := make([]float64, len(days))
	for i, d := range days {
		values[i], _ = strat.Get(d)
	}
	sRet := metrics.ReturnPct(values[0], values[len(values)-1])

	bRet := 0.0
	bStart, ok1 := bench.Get(days[0])
	bEnd, ok2 := bench.Get(days[len(days)-1])
	if ok1 && ok2 && bStart > 0 && bEnd > 0 {
		bRet = metrics.ReturnPct(bStart, bEnd)
	}

	return types.WindowResult{
		StartDate:          days[0],
		EndDate:            days[len(days)-1],
		Weeks:              weeks,
		StrategyReturnPct:  metrics.Round(sRet, 4),
		BenchmarkReturnPct: metrics.Round(bRet, 4),
		ExcessReturnPct:    metrics.Round(sRet-bRet, 4),
		Sharpe:             metrics.Round(metrics.SharpeRatio(values), 4),
		MaxDrawdownPct:     metrics.Round(metrics.MaxDrawdownPct(values), 4),
	}, true
}

// DailyExcess 共同交易日上的日超额收益 (小数)
func DailyExcess(strat, bench Series) []float64 {
	var common []time.Time
	for _, d := range strat.dates {
		if _, ok := bench.Get(d); ok {
			common = append(common, d)
		}
	}
	var out []float64
	for i := 1; i < len(common); i++ {
		sPrev, _ := strat.Get(common[i-1])
		sCur, _ := strat.Get(common[i])
		bPrev, _ := bench.Get(common[i-1])
		bCur, _ := bench.Get(common[i])
		if sPrev > 0 && bPrev > 0 {
			out = append(out, (sCur/sPrev-1)-(bCur/bPrev-1))
		}
	}
	return out
}

// PairedTTest 单样本 t 检验 (H0: 均值为 0)，p 值取正态近似的双尾 erfc
func PairedTTest(excess []float64) (t, p float64) {
	n := len(excess)
	if n < 2 {
		return 0, 1
	}
	se := metrics.SampleStd(excess) / math.Sqrt(float64(n))
	if se == 0 || math.IsNaN(se) {
		return 0, 1
	}
	t = metrics.Mean(excess) / se
	p = math.Erfc(math.Abs(t) / math.Sqrt2)
	return t, math.Min(math.Max(p, 0), 1)
}

// InformationRatio 年化信息比率 (总体标准差)
func InformationRatio(dailyExcess []float64) float64 {
	return metrics.Annualized(dailyExcess)
}

// Verdict 依次判定 SIGNIFICANT / INCONCLUSIVE / NOT_SIGNIFICANT
func Verdict(p, winRate float64, rolling []types.WindowResult, nDays int) (types.Verdict, string) {
	positive := 0
	for _, w := range rolling {
		if w.ExcessReturnPct > 0 {
			positive++
		}
	}
	win := fmt.Sprintf("%.0f%%", winRate*100)

	if p < SignificantP && winRate >= SignificantWinRate {
		return types.VerdictSignificant, fmt.Sprintf(
			"p=%.4f < 0.05, win_rate=%s >= 60%%. Rolling: %d/%d windows positive.",
			p, win, positive, len(rolling))
	}
	if p < InconclusiveP || winRate >= InconclusiveWin {
		return types.VerdictInconclusive, fmt.Sprintf(
			"p=%.4f, win_rate=%s. n=%d days insufficient for definitive conclusion. Rolling: %d/%d windows positive.",
			p, win, nDays, positive, len(rolling))
	}
	return types.VerdictNotSignificant, fmt.Sprintf(
		"p=%.4f >= 0.10, win_rate=%s < 55%%. No evidence of consistent outperformance.", p, win)
}

// EstimateRequiredDays 假设均值与标准差稳定，估计达到 p < targetP 所需的天数；
// 样本不足、均值非正或零方差时返回 false
func EstimateRequiredDays(dailyExcess []float64, targetP float64) (int, bool) {
	n := len(dailyExcess)
	if n < 2 {
		return 0, false
	}
	mean := metrics.Mean(dailyExcess)
	if mean <= 0 {
		return 0, false
	}
	std := metrics.SampleStd(dailyExcess)
	if std == 0 {
		return 0, false
	}
	z := zFromP(targetP)
	required := int(math.Ceil(math.Pow(z*std/mean, 2)))
	return max(required, n+1), true
}

// zFromP 双尾 p 值对应的近似 z 值
func zFromP(p float64) float64 {
	switch {
	case p <= 0.01:
		return 2.576
	case p <= 0.05:
		return 1.960
	case p <= 0.10:
		return 1.645
	}
	return 1.282
}
