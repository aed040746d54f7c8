package optimize

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

var rowsHeader = []string{
	"candidate_id", "tilt_scale", "vix_shift", "drift_threshold_pct",
	"train_score", "train_status", "train_p_value", "train_win_rate",
	"train_mean_weekly_excess", "train_information_ratio", "train_strategy_return", "train_benchmark_return",
	"holdout_status", "holdout_p_value", "holdout_win_rate",
	"holdout_mean_weekly_excess", "holdout_information_ratio", "holdout_strategy_return", "holdout_benchmark_return",
}

func f4(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func metricCells(m *Metrics) []string {
	if m == nil {
		return make([]string, 7)
	}
	return []string{
		m.Status, f4(m.PValue), f4(m.WinRate), f4(m.MeanWeeklyExcess),
		f4(m.InformationRatio), f4(m.StrategyReturnPct), f4(m.BenchmarkReturnPct),
	}
}

// WriteCSV 每个候选一行；未进入前 k 名的留出列为空
func WriteCSV(w io.Writer, r *Result) error {
	holdout := make(map[string]*Metrics, len(r.Top))
	for i := range r.Top {
		holdout[r.Top[i].Candidate.ID] = r.Top[i].Holdout
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(rowsHeader); err != nil {
		return err
	}
	for _, row := range r.Rows {
		p := row.Candidate.Params
		rec := []string{
			row.Candidate.ID,
			strconv.FormatFloat(p.TiltScale, 'f', -1, 64),
			strconv.FormatFloat(p.VIXShift, 'f', -1, 64),
			strconv.FormatFloat(p.DriftThresholdPct, 'f', -1, 64),
			f4(row.TrainScore),
		}
		train := row.Train
		rec = append(rec, metricCells(&train)...)
		rec = append(rec, metricCells(holdout[row.Candidate.ID])...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary 最优候选的 Markdown 摘要
func WriteSummary(w io.Writer, r *Result, cfg Config) error {
	var b strings.Builder
	best := r.Best
	p := best.Candidate.Params

	fmt.Fprintf(&b, "# Parameter Sweep Summary\n\n")
	fmt.Fprintf(&b, "- Train period: %s -> %s\n", cfg.TrainStart.Format(types.DateLayout), cfg.TrainEnd.Format(types.DateLayout))
	fmt.Fprintf(&b, "- Holdout period: %s -> %s\n", cfg.HoldoutStart.Format(types.DateLayout), cfg.HoldoutEnd.Format(types.DateLayout))
	fmt.Fprintf(&b, "- Candidates: %d, top-k: %d\n\n", len(r.Rows), len(r.Top))

	fmt.Fprintf(&b, "## Best Candidate\n\n")
	fmt.Fprintf(&b, "- ID: %s\n", best.Candidate.ID)
	fmt.Fprintf(&b, "- Tilt scale: %g\n- VIX shift: %+g\n- Drift threshold: %g%%\n\n", p.TiltScale, p.VIXShift, p.DriftThresholdPct)

	phase := func(title string, m Metrics) {
		fmt.Fprintf(&b, "## %s\n\n", title)
		fmt.Fprintf(&b, "- p-value: %.4f\n", m.PValue)
		fmt.Fprintf(&b, "- Win rate: %.2f%%\n", m.WinRate*100)
		fmt.Fprintf(&b, "- Mean weekly excess: %+.4f%%\n", m.MeanWeeklyExcess)
		fmt.Fprintf(&b, "- Strategy return: %+.2f%%\n", m.StrategyReturnPct)
		fmt.Fprintf(&b, "- Benchmark return: %+.2f%%\n\n", m.BenchmarkReturnPct)
	}
	phase("Train", best.Train)
	if best.Holdout != nil {
		phase("Holdout", *best.Holdout)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Export 在 dir 下写出 sweep_results.csv 与 sweep_summary.md
func Export(dir string, r *Result, cfg Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"sweep_results.csv", func(w io.Writer) error { return WriteCSV(w, r) }},
		{"sweep_summary.md", func(w io.Writer) error { return WriteSummary(w, r, cfg) }},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		fh, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := f.write(fh); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := fh.Close(); err != nil {
			return err
		}
	}
	return nil
}
