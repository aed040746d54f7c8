package robustness

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/metrics"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

var matrixHeader = []string{
	"mode", "cost_bps", "gross_return", "net_return",
	"max_dd", "sharpe", "trades", "turnover", "total_cost",
}

// WriteMatrixCSV 写出成本矩阵
func WriteMatrixCSV(w io.Writer, cells []Cell) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(matrixHeader); err != nil {
		return err
	}
	for _, c := range cells {
		r := c.Result
		if r == nil {
			continue
		}
		row := []string{
			c.Mode,
			strconv.FormatFloat(c.CostBps, 'f', -1, 64),
			fmtRound(r.GrossReturnPct, 4),
			fmtRound(r.NetReturnPct, 4),
			fmtRound(r.MaxDrawdownPct, 4),
			fmtRound(r.SharpeRatio, 4),
			strconv.Itoa(r.TotalTrades),
			fmtRound(r.Turnover, 4),
			fmtRound(r.TotalCost, 2),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtRound(v float64, places int) string {
	return strconv.FormatFloat(metrics.Round(v, places), 'f', -1, 64)
}

// ExportMatrixCSV 写出成本矩阵到文件
func ExportMatrixCSV(path string, cells []Cell) error {
	return writeFile(path, func(w io.Writer) error { return WriteMatrixCSV(w, cells) })
}

// WriteReport 写出 Markdown 稳健性报告
func WriteReport(path string, rep *Report, ladder []float64) error {
	if err := writeFile(path, func(w io.Writer) error { return RenderReport(w, rep, ladder) }); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("robustness report written")
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// RenderReport 渲染报告；ladder 决定成本矩阵表的列
func RenderReport(w io.Writer, rep *Report, ladder []float64) error {
	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	ladder = sortedLadder(ladder)

	line("# Backtest Robustness Report")
	line("")
	line("## 1. Executive Summary")
	line("")
	line("**Judgment: %s**", rep.Judgment.Verdict)
	line("")
	for _, r := range rep.Judgment.Reasons {
		line("- %s", r)
	}
	line("")

	line("## 2. Strategy Comparison")
	line("")
	if len(ladder) > 0 {
		line("### At %g bps (gross)", ladder[0])
		line("")
		resultTable(line, cellsAt(rep.Cells, ladder[0]))
	}
	if ref := cellsAt(rep.Cells, rep.ReferenceBps); len(ladder) > 0 && rep.ReferenceBps != ladder[0] && len(ref) > 0 {
		line("### At %g bps spread", rep.ReferenceBps)
		line("")
		resultTable(line, ref)
	}

	line("## 3. Cost Sensitivity")
	line("")
	line("- Breakeven: %s", rep.Breakeven.Details)
	if rep.Breakeven.Bps != nil {
		line("- Breakeven spread: %.1f bps", *rep.Breakeven.Bps)
	}
	line("")

	header := "| Mode |"
	sep := "|------|"
	for _, bps := range ladder {
		header += fmt.Sprintf(" %g bps |", bps)
		sep += "-------|"
	}
	line("%s", header)
	line("%s", sep)
	for _, m := range Modes() {
		byCost := netByCost(rep.Cells, m.Name)
		if len(byCost) == 0 {
			continue
		}
		row := fmt.Sprintf("| %s |", m.Name)
		for _, bps := range ladder {
			if v, ok := byCost[bps]; ok {
				row += fmt.Sprintf(" %+.2f%% |", v)
			} else {
				row += " N/A |"
			}
		}
		line("%s", row)
	}
	line("")

	line("## 4. Benchmark Comparison")
	line("")
	resultTable(line, rep.Benchmarks)
	if r := rep.Reactive; r != nil {
		line("**%s**: net %+.2f%%, Sharpe %.2f, MaxDD %.2f%%", r.Name, r.NetReturnPct, r.SharpeRatio, r.MaxDrawdownPct)
		line("")
	}

	line("## 5. Robustness Assessment")
	line("")
	line("### Strengths")
	for _, s := range rep.Judgment.Strengths {
		line("- %s", s)
	}
	line("")
	line("### Weaknesses")
	for _, s := range rep.Judgment.Weaknesses {
		line("- %s", s)
	}
	line("")

	line("## 6. Recommendation")
	line("")
	for _, s := range rep.Judgment.Recommendations {
		line("- %s", s)
	}
	line("")

	line("## 7. Data Limitation")
	line("")
	if r := rep.Reactive; r != nil {
		line("- Backtest period: %s → %s, %d trading days (statistically limited)",
			r.StartDate.Format(types.DateLayout), r.EndDate.Format(types.DateLayout), r.TradingDays)
	}
	line("- No out-of-sample validation in this report (see walk-forward)")
	line("- Results may not generalize to different market regimes")
	line("- Transaction costs are estimated (actual may vary by time of day, liquidity)")

	_, err := io.WriteString(w, b.String())
	return err
}

func cellsAt(cells []Cell, bps float64) []*types.BacktestResult {
	var out []*types.BacktestResult
	for _, c := range cells {
		if c.CostBps == bps && c.Result != nil {
			out = append(out, c.Result)
		}
	}
	return out
}

func resultTable(line func(string, ...interface{}), results []*types.BacktestResult) {
	line("| Name | Net Return | Gross Return | Max DD | Sharpe | Trades | Turnover |")
	line("|------|-----------|-------------|--------|--------|--------|----------|")
	for _, r := range results {
		line("| %s | %+.2f%% | %+.2f%% | %.2f%% | %.2f | %d | %.2f |",
			r.Name, r.NetReturnPct, r.GrossReturnPct, r.MaxDrawdownPct, r.SharpeRatio, r.TotalTrades, r.Turnover)
	}
	line("")
}
