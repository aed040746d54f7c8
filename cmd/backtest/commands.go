package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/benchmark"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/data"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/engine"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/optimize"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/robustness"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/strategy"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/walkforward"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// inputs 周期时间线与行情数据
type inputs struct {
	config   types.BacktestConfig
	timeline *strategy.Timeline
	source   *data.CSVLoader
	costs    *cost.DefaultCostModel
}

// loadInputs 读取周期文件与所需标的的行情，extra 为基准额外需要的标的
func (a *app) loadInputs(extra ...types.Symbol) (*inputs, error) {
	bt, err := a.cfg.ToBacktestConfig()
	if err != nil {
		return nil, err
	}

	feed, err := strategy.LoadFeed(a.cfg.Backtest.FeedPath)
	if err != nil {
		return nil, err
	}
	for _, rej := range feed.Rejected {
		log.Warn().Str("date", rej.EffectiveDate).Str("reason", rej.Reason).Msg("period rejected")
	}
	tl := strategy.NewTimeline(feed, data.NewUSMarketCalendar())
	if tl.Len() == 0 {
		return nil, strategy.ErrNoValidPeriods
	}
	for _, sk := range tl.Skipped() {
		log.Warn().Str("date", sk.EffectiveDate).Str("reason", sk.Reason).Msg("period skipped")
	}

	symbols := tl.Symbols()
	for _, s := range append([]types.Symbol{types.SymbolSPY, types.SymbolTLT}, extra...) {
		if !slices.Contains(symbols, s) {
			symbols = append(symbols, s)
		}
	}

	src := data.NewCSVLoader(a.cfg.GetDataDir())
	if err := src.LoadSymbols(symbols); err != nil {
		return nil, err
	}
	if err := src.LoadIndices(); err != nil {
		return nil, err
	}
	if missing := src.MissingDays(bt.StartDate, bt.EndDate); len(missing) > 0 {
		log.Warn().Int("days", len(missing)).Msg("trading days without prices will be skipped")
	}

	if err := os.MkdirAll(a.cfg.GetOutputPath(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	log.Info().
		Int("periods", tl.Len()).
		Int("skipped", len(tl.Skipped())).
		Int("symbols", len(symbols)).
		Str("data_dir", a.cfg.GetDataDir()).
		Msg("inputs loaded")

	return &inputs{
		config:   bt,
		timeline: tl,
		source:   src,
		costs:    cost.NewDefaultCostModel(a.cfg.ToCostConfig()),
	}, nil
}

func (a *app) outputPath(name string) string {
	return filepath.Join(a.cfg.GetOutputPath(), name)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.loadInputs()
			if err != nil {
				return err
			}

			eng := engine.New(in.config)
			eng.SetDataSource(in.source)
			eng.SetTimeline(in.timeline)
			eng.SetCostModel(in.costs)
			eng.SetTelemetry(a.telemetry)

			res, err := eng.Run()
			if err != nil {
				var early *engine.StartBeforeFirstPeriodError
				if errors.As(err, &early) {
					log.Error().Time("earliest", early.Earliest).Msg("start date precedes the feed")
				}
				return err
			}
			eng.PrintSummary()

			format := a.cfg.Output.Format
			if format == "json" || format == "both" {
				path := a.outputPath("backtest_result.json")
				if err := eng.ExportResults(path); err != nil {
					return err
				}
				log.Info().Str("path", path).Msg("results written")
			}
			if format == "csv" || format == "both" {
				if err := engine.ExportCSV(a.cfg.GetOutputPath(), "backtest", res); err != nil {
					return err
				}
				log.Info().Str("dir", a.cfg.GetOutputPath()).Msg("csv written")
			}
			return nil
		},
	}
}

func (a *app) newWalkForwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "walkforward",
		Short: "Validate weekly excess returns against a benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := a.cfg.ToWalkForwardConfig()
			if err != nil {
				return err
			}
			in, err := a.loadInputs(wf.BenchmarkSymbol)
			if err != nil {
				return err
			}

			v := walkforward.NewValidator(in.config, wf, in.timeline, in.source)
			v.SetCostModel(in.costs)
			v.SetTelemetry(a.telemetry)
			res, err := v.Run()
			if err != nil {
				return err
			}

			fmt.Printf("Verdict: %s\n%s\n", res.Verdict, res.VerdictDetail)
			fmt.Printf("Weekly win rate: %.1f%%  mean excess: %+.3f%%  p-value: %.4f\n",
				res.WinRate*100, res.MeanWeeklyExcess, res.PValue)

			report := a.outputPath("walkforward_report.md")
			if err := walkforward.WriteReport(report, res); err != nil {
				return err
			}
			if err := engine.WriteJSON(a.outputPath("walkforward_full.json"), res.FullPeriod); err != nil {
				return err
			}
			log.Info().Str("path", report).Msg("walk-forward report written")
			return nil
		},
	}
}

func (a *app) newRobustnessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "robustness",
		Short: "Run the mode x cost matrix and judge the reactive mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			in, err := a.loadInputs()
			if err != nil {
				return err
			}
			rc := a.cfg.ToRobustnessConfig()
			an := robustness.NewAnalyzer(in.config, rc, in.timeline, in.source)
			an.SetCostModel(in.costs)
			an.SetTelemetry(a.telemetry)

			rep, err := an.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Verdict: %s\n", rep.Judgment.Verdict)
			for _, r := range rep.Judgment.Reasons {
				fmt.Printf("  - %s\n", r)
			}

			if err := robustness.ExportMatrixCSV(a.outputPath("robustness_matrix.csv"), rep.Cells); err != nil {
				return err
			}
			report := a.outputPath("robustness_report.md")
			if err := robustness.WriteReport(report, rep, rc.CostLadderBps); err != nil {
				return err
			}
			log.Info().Str("path", report).Msg("robustness report written")
			return nil
		},
	}
}

// benchmarkFiles 与 RunAll 的返回顺序一致
var benchmarkFiles = []string{"spy_buy_and_hold", "spy_tlt_60_40", "equal_weight"}

func (a *app) newBenchmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "benchmark",
		Short: "Run the passive benchmarks over the backtest window",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.loadInputs()
			if err != nil {
				return err
			}
			be := benchmark.NewEngine(in.source, in.config.StartDate, in.config.EndDate, in.config.InitialCapital, in.costs)
			results, err := be.RunAll(in.timeline.Symbols())
			if err != nil {
				return err
			}
			for _, r := range results {
				engine.PrintSummary(os.Stdout, r)
			}
			if a.cfg.Output.Format != "csv" {
				for i, r := range results {
					path := a.outputPath("benchmark_" + benchmarkFiles[i] + ".json")
					if err := engine.WriteJSON(path, r); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func (a *app) newOptimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Sweep strategy parameters on a train window and select on the holdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			oc, grid, err := a.cfg.ToOptimizeConfig()
			if err != nil {
				return err
			}
			in, err := a.loadInputs(oc.WalkForward.BenchmarkSymbol)
			if err != nil {
				return err
			}

			o := optimize.New(oc, grid, in.timeline, in.source)
			o.SetCostModel(in.costs)
			o.SetTelemetry(a.telemetry)
			res, err := o.Run(ctx)
			if err != nil {
				return err
			}

			p := res.Best.Candidate.Params
			fmt.Printf("Best candidate %s: tilt=%g vix_shift=%+g drift=%g%%\n",
				res.Best.Candidate.ID, p.TiltScale, p.VIXShift, p.DriftThresholdPct)
			if err := optimize.Export(a.cfg.GetOutputPath(), res, oc); err != nil {
				return err
			}
			log.Info().Str("dir", a.cfg.GetOutputPath()).Msg("sweep results written")
			return nil
		},
	}
}
