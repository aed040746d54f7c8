package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// 周期配置总和的接受区间 (百分比)
const (
	MinAllocationSum = 90.0
	MaxAllocationSum = 110.0
)

// ErrNoValidPeriods 没有可用的策略周期
var ErrNoValidPeriods = errors.New("no valid strategy periods")

// Entry 已验证的周期及其切换日
type Entry struct {
	Period        types.StrategyPeriod
	TransitionDay time.Time // 生效日当天或之后的第一个交易日
}

// Timeline 日期 -> 当前生效周期
type Timeline struct {
	entries []Entry
	skipped []types.SkippedPeriod
}

// NewTimeline 校验周期、计算切换日并按日期排序
func NewTimeline(feed *Feed, cal data.Calendar) *Timeline {
	t := &Timeline{}
	if feed == nil {
		return t
	}
	t.skipped = append(t.skipped, feed.Rejected...)

	for _, p := range feed.Periods {
		if reason := ValidatePeriod(p); reason != "" {
			t.skipped = append(t.skipped, types.SkippedPeriod{
				EffectiveDate: p.EffectiveDate.Format(types.DateLayout),
				Reason:        reason,
			})
			log.Warn().Time("effective_date", p.EffectiveDate).Str("reason", reason).Msg("skipping strategy period")
			continue
		}
		t.entries = append(t.entries, Entry{
			Period:        normalizePeriod(p),
			TransitionDay: data.FirstTradingDayOnOrAfter(cal, p.EffectiveDate),
		})
	}

	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Period.EffectiveDate.Before(t.entries[j].Period.EffectiveDate)
	})
	return t
}

// ValidatePeriod 返回拒绝原因，合法时返回空字符串
func ValidatePeriod(p types.StrategyPeriod) string {
	if p.BaseAllocation.Len() == 0 {
		return "base allocation empty"
	}
	if reason := checkAllocation("base allocation", p.BaseAllocation); reason != "" {
		return reason
	}
	if len(p.Scenarios) == 0 {
		return "scenarios empty"
	}
	for _, sc := range p.Scenarios {
		if reason := checkAllocation(fmt.Sprintf("scenario %s", sc.Name), sc.Allocation); reason != "" {
			return reason
		}
	}
	vix := p.VIX.WithDefaults()
	if !(vix.RiskOn < vix.Caution && vix.Caution < vix.Stress) {
		return fmt.Sprintf("vix thresholds not ordered: risk_on %.1f, caution %.1f, stress %.1f", vix.RiskOn, vix.Caution, vix.Stress)
	}
	return ""
}

func checkAllocation(label string, a types.Allocation) string {
	for _, w := range a.Weights() {
		if w.Pct < 0 {
			return fmt.Sprintf("%s has negative weight for %s", label, w.Symbol)
		}
	}
	sum := a.Sum()
	if sum < MinAllocationSum || sum > MaxAllocationSum {
		return fmt.Sprintf("%s sum %.1f%% outside 90-110%% range", label, sum)
	}
	return ""
}

// normalizePeriod 配置缩放到 100%，VIX 阈值补默认值
func normalizePeriod(p types.StrategyPeriod) types.StrategyPeriod {
	out := p
	out.BaseAllocation = p.BaseAllocation.Normalized()
	out.Scenarios = make([]types.Scenario, len(p.Scenarios))
	for i, sc := range p.Scenarios {
		out.Scenarios[i] = types.Scenario{Name: sc.Name, Allocation: sc.Allocation.Normalized()}
	}
	out.VIX = p.VIX.WithDefaults()
	out.IndexLevels = make(map[string]types.IndexLevels, len(p.IndexLevels))
	for k, v := range p.IndexLevels {
		out.IndexLevels[k] = v
	}
	return out
}

// Entries 已验证的周期
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Skipped 被跳过的周期及原因
func (t *Timeline) Skipped() []types.SkippedPeriod {
	out := make([]types.SkippedPeriod, len(t.skipped))
	copy(out, t.skipped)
	return out
}

// Len 有效周期数
func (t *Timeline) Len() int { return len(t.entries) }

// EffectiveStart 最早可回测日期 (第一个切换日)
func (t *Timeline) EffectiveStart() (time.Time, bool) {
	if len(t.entries) == 0 {
		return time.Time{}, false
	}
	earliest := t.entries[0].TransitionDay
	for _, e := range t.entries[1:] {
		if e.TransitionDay.Before(earliest) {
			earliest = e.TransitionDay
		}
	}
	return earliest, true
}

// Active 返回切换日 <= d 的最近周期
func (t *Timeline) Active(d time.Time) (*types.StrategyPeriod, bool) {
	var active *types.StrategyPeriod
	for i := range t.entries {
		if !t.entries[i].TransitionDay.After(d) {
			active = &t.entries[i].Period
		}
	}
	return active, active != nil
}

// IsTransitionDay 是否为某个周期的切换日
func (t *Timeline) IsTransitionDay(d time.Time) bool {
	for _, e := range t.entries {
		if e.TransitionDay.Equal(d) {
			return true
		}
	}
	return false
}

// TransitionDays 全部切换日 (升序去重)
func (t *Timeline) TransitionDays() []time.Time {
	days := make([]time.Time, 0, len(t.entries))
	for _, e := range t.entries {
		if n := len(days); n > 0 && days[n-1].Equal(e.TransitionDay) {
			continue
		}
		days = append(days, e.TransitionDay)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// TransitionDaysIn [start, end] 内的切换日
func (t *Timeline) TransitionDaysIn(start, end time.Time) []time.Time {
	var out []time.Time
	for _, d := range t.TransitionDays() {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out
}

// Map 返回对每个周期应用 fn 后的新时间线，切换日保持不变
func (t *Timeline) Map(fn func(types.StrategyPeriod) types.StrategyPeriod) *Timeline {
	out := &Timeline{
		entries: make([]Entry, len(t.entries)),
		skipped: t.Skipped(),
	}
	for i, e := range t.entries {
		out.entries[i] = Entry{Period: fn(e.Period), TransitionDay: e.TransitionDay}
	}
	return out
}

// Symbols 所有周期 (基准配置与情景) 引用过的标的，按字母排序
func (t *Timeline) Symbols() []types.Symbol {
	seen := make(map[types.Symbol]struct{})
	var out []types.Symbol
	add := func(a types.Allocation) {
		for _, s := range a.Symbols() {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	for _, e := range t.entries {
		add(e.Period.BaseAllocation)
		for _, sc := range e.Period.Scenarios {
			add(sc.Allocation)
		}
	}
	types.SortSymbols(out)
	return out
}
