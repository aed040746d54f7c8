package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// ResultSummary 结果摘要
type ResultSummary struct {
	Name           string  `json:"name"`
	Mode           string  `json:"mode"`
	Cadence        string  `json:"cadence"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	TradingDays    int     `json:"trading_days"`
	PeriodsUsed    int     `json:"periods_used"`
	PeriodsSkipped int     `json:"periods_skipped"`
	InitialCapital float64 `json:"initial_capital"`
	FinalValue     float64 `json:"final_value"`
	GrossReturnPct float64 `json:"gross_return_pct"`
	NetReturnPct   float64 `json:"net_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	Turnover       float64 `json:"turnover"`
	TotalCost      float64 `json:"total_cost"`
	TotalTrades    int     `json:"total_trades"`
}

// Summarize 构建结果摘要
func Summarize(r *types.BacktestResult) ResultSummary {
	return ResultSummary{
		Name:           r.Name,
		Mode:           string(r.Mode),
		Cadence:        string(r.Cadence),
		StartDate:      r.StartDate.Format(types.DateLayout),
		EndDate:        r.EndDate.Format(types.DateLayout),
		TradingDays:    r.TradingDays,
		PeriodsUsed:    r.PeriodsUsed,
		PeriodsSkipped: r.PeriodsSkipped,
		InitialCapital: r.InitialCapital,
		FinalValue:     r.FinalValue,
		GrossReturnPct: r.GrossReturnPct,
		NetReturnPct:   r.NetReturnPct,
		MaxDrawdownPct: r.MaxDrawdownPct,
		SharpeRatio:    r.SharpeRatio,
		Turnover:       r.Turnover,
		TotalCost:      r.TotalCost,
		TotalTrades:    r.TotalTrades,
	}
}

// ExportResults 导出结果到JSON文件
func (e *BacktestEngine) ExportResults(path string) error {
	if e.result == nil {
		return fmt.Errorf("no results to export, run backtest first")
	}
	return WriteJSON(path, e.result)
}

// WriteJSON 将结果 (摘要 + 完整轨迹) 写入 JSON 文件
func WriteJSON(path string, r *types.BacktestResult) error {
	output := struct {
		Summary ResultSummary         `json:"summary"`
		Result  *types.BacktestResult `json:"result"`
	}{
		Summary: Summarize(r),
		Result:  r,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	log.Info().Str("path", path).Msg("results exported")
	return nil
}

// ExportCSV 在 dir 下写出 <prefix>_summary/daily/weekly/trades.csv
func ExportCSV(dir, prefix string, r *types.BacktestResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	writers := []struct {
		suffix string
		write  func(io.Writer, *types.BacktestResult) error
	}{
		{"summary", WriteSummaryCSV},
		{"daily", WriteDailyCSV},
		{"weekly", WriteWeeklyCSV},
		{"trades", WriteTradesCSV},
	}
	for _, w := range writers {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", prefix, w.suffix))
		if err := writeFile(path, func(f io.Writer) error { return w.write(f, r) }); err != nil {
			return err
		}
	}
	log.Info().Str("dir", dir).Str("prefix", prefix).Msg("csv exported")
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
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

func writeRows(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func ff(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// WriteSummaryCSV 指标摘要 (metric,value)
func WriteSummaryCSV(w io.Writer, r *types.BacktestResult) error {
	s := Summarize(r)
	rows := [][]string{
		{"name", s.Name},
		{"mode", s.Mode},
		{"cadence", s.Cadence},
		{"start_date", s.StartDate},
		{"end_date", s.EndDate},
		{"trading_days", strconv.Itoa(s.TradingDays)},
		{"periods_used", strconv.Itoa(s.PeriodsUsed)},
		{"periods_skipped", strconv.Itoa(s.PeriodsSkipped)},
		{"initial_capital", ff(s.InitialCapital, 2)},
		{"final_value", ff(s.FinalValue, 2)},
		{"gross_return_pct", ff(s.GrossReturnPct, 4)},
		{"net_return_pct", ff(s.NetReturnPct, 4)},
		{"max_drawdown_pct", ff(s.MaxDrawdownPct, 4)},
		{"sharpe_ratio", ff(s.SharpeRatio, 4)},
		{"turnover", ff(s.Turnover, 4)},
		{"total_cost", ff(s.TotalCost, 2)},
		{"total_trades", strconv.Itoa(s.TotalTrades)},
	}
	return writeRows(w, []string{"metric", "value"}, rows)
}

// WriteDailyCSV 每日快照，配置以 SYM:pct 分号连接
func WriteDailyCSV(w io.Writer, r *types.BacktestResult) error {
	rows := make([][]string, 0, len(r.DailySnapshots))
	for _, s := range r.DailySnapshots {
		parts := make([]string, 0, s.Allocation.Len())
		for _, wt := range s.Allocation.Weights() {
			parts = append(parts, fmt.Sprintf("%s:%.2f", wt.Symbol, wt.Pct))
		}
		rows = append(rows, []string{
			s.Date.Format(types.DateLayout),
			ff(s.TotalValue, 2),
			ff(s.Cash, 2),
			ff(s.PositionsValue, 2),
			s.Scenario,
			strconv.Itoa(s.TradesToday),
			strings.Join(parts, ";"),
		})
	}
	return writeRows(w, []string{"date", "total_value", "cash", "positions_value", "scenario", "trades_today", "allocation"}, rows)
}

// WriteWeeklyCSV 每个策略周期的表现
func WriteWeeklyCSV(w io.Writer, r *types.BacktestResult) error {
	rows := make([][]string, 0, len(r.WeeklyPerformance))
	for _, p := range r.WeeklyPerformance {
		rows = append(rows, []string{
			p.PeriodDate,
			ff(p.StartValue, 2),
			ff(p.EndValue, 2),
			ff(p.ReturnPct, 4),
			strconv.Itoa(p.Trades),
			p.Scenario,
		})
	}
	return writeRows(w, []string{"period_date", "start_value", "end_value", "return_pct", "trades", "scenario"}, rows)
}

// WriteTradesCSV 交易明细
func WriteTradesCSV(w io.Writer, r *types.BacktestResult) error {
	rows := make([][]string, 0, len(r.Trades))
	for _, t := range r.Trades {
		rows = append(rows, []string{
			t.Date.Format(types.DateLayout),
			string(t.Symbol),
			string(t.Side),
			ff(t.Shares, 6),
			ff(t.Price, 4),
			ff(t.Notional, 2),
			ff(t.Cost, 4),
			t.Reason,
		})
	}
	return writeRows(w, []string{"date", "symbol", "side", "shares", "price", "notional", "cost", "reason"}, rows)
}

// PrintSummary 打印回测摘要
func (e *BacktestEngine) PrintSummary() {
	if e.result == nil {
		fmt.Println("No results available")
		return
	}
	PrintSummary(os.Stdout, e.result)
}

// PrintSummary 向 w 打印结果摘要
func PrintSummary(w io.Writer, r *types.BacktestResult) {
	fmt.Fprintln(w, "\n========== Backtest Summary ==========")
	fmt.Fprintf(w, "Name: %s (%s / %s)\n", r.Name, r.Mode, r.Cadence)
	fmt.Fprintf(w, "Period: %s to %s (%d trading days)\n",
		r.StartDate.Format(types.DateLayout), r.EndDate.Format(types.DateLayout), r.TradingDays)
	fmt.Fprintf(w, "Periods: %d used, %d skipped\n", r.PeriodsUsed, r.PeriodsSkipped)
	for _, s := range r.SkippedPeriodReasons {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.EffectiveDate, s.Reason)
	}
	if r.Cadence == types.CadenceWeekEnd && len(r.Trades) > 0 {
		fmt.Fprintf(w, "First Trade: %s (cash until the first week end)\n", r.Trades[0].Date.Format(types.DateLayout))
	}
	fmt.Fprintf(w, "Initial Capital: $%.2f\n", r.InitialCapital)
	fmt.Fprintf(w, "Final Value: $%.2f\n", r.FinalValue)
	fmt.Fprintf(w, "Gross Return: %.2f%%\n", r.GrossReturnPct)
	fmt.Fprintf(w, "Net Return: %.2f%%\n", r.NetReturnPct)
	fmt.Fprintf(w, "Max Drawdown: %.2f%%\n", r.MaxDrawdownPct)
	fmt.Fprintf(w, "Sharpe Ratio: %.2f\n", r.SharpeRatio)
	fmt.Fprintf(w, "Turnover: %.2fx\n", r.Turnover)
	fmt.Fprintf(w, "Total Trades: %d\n", r.TotalTrades)
	fmt.Fprintf(w, "Total Cost: $%.2f\n", r.TotalCost)
	fmt.Fprintln(w, "========================================")
}
