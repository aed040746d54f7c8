package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/config"
	"github.com/opsxjacky/weekly-strategy-backtest/internal/telemetry"
)

const (
	appName   = "backtest"
	version   = "v0.3.0"
	envPrefix = "BACKTEST"
)

// app 命令共享的状态
type app struct {
	v         *viper.Viper
	cfg       *config.Config
	telemetry *telemetry.Registry
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), telemetry: telemetry.NewRegistry()}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Weekly-rebalanced strategy backtester",
		Version: version,
		Long: `Replays a dated series of strategy periods against daily market data.

Rebalances on transition days or week ends, optionally reacts to VIX / index / drift
triggers at the next day's open, and validates the result with walk-forward statistics,
a cost-sensitivity matrix and passive benchmarks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Flags())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if path := a.cfg.Output.MetricsFile; path != "" {
				return a.telemetry.WriteTextfile(path)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to YAML config file")
	pf.String("feed", "", "Strategy period feed (YAML)")
	pf.String("data-dir", "", "Market data directory (<SYMBOL>.csv, vix.csv, ...)")
	pf.String("start", "", "Start date (YYYY-MM-DD)")
	pf.String("end", "", "End date (YYYY-MM-DD)")
	pf.Float64("capital", 0, "Initial capital")
	pf.String("mode", "", "Engine mode (schedule|trigger)")
	pf.String("cadence", "", "Rebalance cadence (transition|weekend)")
	pf.Float64("spread-bps", 0, "Half spread in basis points")
	pf.String("output", "", "Output directory")
	pf.String("format", "", "Result format (json|csv|both)")
	pf.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	pf.String("log-format", "", "Log format (auto|console|json)")
	pf.String("metrics-file", "", "Write prometheus metrics to this textfile")

	rootCmd.AddCommand(
		a.newRunCmd(),
		a.newWalkForwardCmd(),
		a.newRobustnessCmd(),
		a.newBenchmarkCmd(),
		a.newOptimizeCmd(),
	)
	return rootCmd
}

// init 读取配置文件，叠加环境变量与命令行参数，校验并初始化日志
func (a *app) init(flags *pflag.FlagSet) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyOverrides(a.v, cfg)

	if err := setupLogging(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// applyOverrides 显式设置的参数 (命令行或 BACKTEST_* 环境变量) 覆盖配置文件
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *float64) {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}

	str("feed", &cfg.Backtest.FeedPath)
	str("data-dir", &cfg.Backtest.DataDir)
	str("start", &cfg.Backtest.StartDate)
	str("end", &cfg.Backtest.EndDate)
	num("capital", &cfg.Backtest.InitialCapital)
	str("mode", &cfg.Backtest.Mode)
	str("cadence", &cfg.Backtest.Cadence)
	num("spread-bps", &cfg.Costs.SpreadBps)
	str("output", &cfg.Output.Path)
	str("format", &cfg.Output.Format)
	str("log-level", &cfg.Logging.Level)
	str("log-format", &cfg.Logging.Format)
	str("metrics-file", &cfg.Output.MetricsFile)
}

func setupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	console := format == "console" || (format == "auto" && term.IsTerminal(int(os.Stderr.Fd())))
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}
