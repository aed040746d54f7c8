package walkforward

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/metrics"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// WriteReport 将前向验证结果写成 Markdown 报告
func WriteReport(path string, r *types.WalkForwardResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := RenderReport(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// RenderReport 渲染 Markdown 报告
func RenderReport(w io.Writer, r *types.WalkForwardResult) error {
	fp := r.FullPeriod
	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Walk-Forward Validation Report")
	line("")
	line("Period: %s → %s (%d weeks, %d days)",
		fp.StartDate.Format(types.DateLayout), fp.EndDate.Format(types.DateLayout), len(r.WeeklyExcess), fp.TradingDays)
	line("Strategy: %s @ $%.0f total cost", fp.Name, fp.TotalCost)
	line("")

	meanDaily := r.MeanDailyExcess * 100
	line("## 1. Statistical Significance")
	line("")
	line("- Daily excess return: %+.4f%% (ann. ~%+.1f%%)", meanDaily, meanDaily*metrics.TradingDaysPerYear)
	line("- t-statistic: %.2f, p-value: %.4f", r.TStatistic, r.PValue)
	line("- Information Ratio: %.2f", r.InformationRatio)
	line("- **Verdict: %s**", r.Verdict)
	line("- %s", r.VerdictDetail)
	line("")

	line("## 2. Per-Week Performance")
	line("")
	line("| Week | Strategy | Benchmark | Excess | Win |")
	line("|------|----------|-----------|--------|-----|")
	wins := 0
	for _, wk := range r.WeeklyExcess {
		win := "N"
		if wk.ExcessPct > 0 {
			win = "Y"
			wins++
		}
		line("| %s | %+.2f%% | %+.2f%% | %+.2f%% | %s |",
			wk.WeekDate.Format(types.DateLayout), wk.StrategyReturnPct, wk.BenchmarkReturnPct, wk.ExcessPct, win)
	}
	line("")
	line("Win Rate: %d/%d (%.0f%%)", wins, len(r.WeeklyExcess), r.WinRate*100)
	line("Mean Weekly Excess: %+.2f%%", r.MeanWeeklyExcess)
	line("")

	line("## 3. Rolling Windows")
	line("")
	if len(r.RollingWindows) > 0 {
		line("| # | Period | Return | vs Benchmark | Sharpe | MaxDD |")
		line("|---|--------|--------|--------------|--------|-------|")
		positive := 0
		for i, wr := range r.RollingWindows {
			if wr.ExcessReturnPct > 0 {
				positive++
			}
			line("| %d | %s → %s | %+.2f%% | %+.2f%% | %.2f | %.2f%% |", i+1,
				wr.StartDate.Format(types.DateLayout), wr.EndDate.Format(types.DateLayout),
				wr.StrategyReturnPct, wr.ExcessReturnPct, wr.Sharpe, wr.MaxDrawdownPct)
		}
		line("")
		line("Consistency: %d/%d windows with positive excess", positive, len(r.RollingWindows))
	} else {
		line("Insufficient data for rolling windows.")
	}
	line("")

	line("## 4. Expanding Window Stability")
	line("")
	if len(r.ExpandingWindows) > 0 {
		line("| Weeks | Cum Return | Sharpe | Max DD |")
		line("|-------|-----------|--------|--------|")
		for _, wr := range r.ExpandingWindows {
			line("| %d | %+.2f%% | %.2f | %.2f%% |", wr.Weeks, wr.StrategyReturnPct, wr.Sharpe, wr.MaxDrawdownPct)
		}
	} else {
		line("Insufficient data for expanding windows.")
	}
	line("")

	line("## 5. Required Sample Size")
	line("")
	line("Current: %d days → p=%.4f", fp.TradingDays, r.PValue)
	switch {
	case r.RequiredDays == nil:
		line("Cannot estimate (excess return non-positive or insufficient data).")
	case *r.RequiredDays > fp.TradingDays:
		req := *r.RequiredDays
		extraWeeks := int(math.Ceil(float64(req-fp.TradingDays) / 5))
		line("Estimated days for p<0.05: ~%d days (~%d weeks)", req, req/5)
		line("Target date: ~%s", fp.EndDate.AddDate(0, 0, 7*extraWeeks).Format(types.DateLayout))
	default:
		line("Already at or near significance threshold.")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
