package robustness

import (
	"fmt"
	"math"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Verdict 采纳结论
type Verdict string

const (
	VerdictAdopt            Verdict = "ADOPT"
	VerdictConditionalAdopt Verdict = "CONDITIONAL ADOPT"
	VerdictReject           Verdict = "REJECT"
)

// Judgment 结论及其依据
type Judgment struct {
	Verdict         Verdict  `json:"verdict"`
	Reasons         []string `json:"reasons"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// Judge 给出 ADOPT / CONDITIONAL ADOPT / REJECT
//
// benchmarks[0] 视为被动基准 (买入持有)。ADOPT 要求夏普高于全部基准，且盈亏平衡价差
// 不低于 realisticBps，或在测试区间内从未落后。CONDITIONAL ADOPT 只要求净收益高于被动基准。
func Judge(reactive *types.BacktestResult, name string, benchmarks []*types.BacktestResult, be Breakeven, realisticBps float64) Judgment {
	j := Judgment{}
	var passive *types.BacktestResult
	if len(benchmarks) > 0 {
		passive = benchmarks[0]
	}

	beatsAllSharpe := false
	beatsPassive := false
	if reactive != nil {
		beatsAllSharpe = len(benchmarks) > 0
		for _, bm := range benchmarks {
			if reactive.SharpeRatio <= bm.SharpeRatio {
				beatsAllSharpe = false
			}
		}
		beatsPassive = passive != nil && reactive.NetReturnPct > passive.NetReturnPct

		if beatsAllSharpe {
			j.Strengths = append(j.Strengths, fmt.Sprintf("%s Sharpe exceeds all benchmarks", name))
		}
		if beatsPassive {
			j.Strengths = append(j.Strengths, fmt.Sprintf("%s net return exceeds %s", name, passive.Name))
		}
		if be.Bps != nil {
			if *be.Bps >= realisticBps {
				j.Strengths = append(j.Strengths, fmt.Sprintf("Cost-robust up to %.0f bps spread", *be.Bps))
			} else {
				j.Weaknesses = append(j.Weaknesses, fmt.Sprintf("Cost-sensitive: breakeven at %.1f bps", *be.Bps))
			}
		}
		if passive != nil {
			if math.Abs(reactive.MaxDrawdownPct) < math.Abs(passive.MaxDrawdownPct) {
				j.Strengths = append(j.Strengths, fmt.Sprintf("Lower max drawdown than %s", passive.Name))
			} else {
				j.Weaknesses = append(j.Weaknesses, fmt.Sprintf("Larger max drawdown than %s", passive.Name))
			}
		}
		j.Weaknesses = append(j.Weaknesses, fmt.Sprintf("Limited backtest period (%d trading days)", reactive.TradingDays))
	}

	costRobust := (be.Bps != nil && *be.Bps >= realisticBps) || (be.Bps == nil && be.AheadAtMax)

	switch {
	case beatsAllSharpe && costRobust:
		j.Verdict = VerdictAdopt
		j.Reasons = append(j.Reasons,
			fmt.Sprintf("%s outperforms all benchmarks on risk-adjusted basis", name),
			fmt.Sprintf("Cost-robust at realistic spread levels (<=%g bps)", realisticBps))
		j.Recommendations = append(j.Recommendations,
			fmt.Sprintf("Deploy %s with spread_bps=1 (SPY/QQQ typical)", name),
			"Monitor turnover and actual costs monthly")
	case beatsPassive:
		j.Verdict = VerdictConditionalAdopt
		j.Reasons = append(j.Reasons, fmt.Sprintf("Strategy outperforms %s but with caveats", passive.Name))
		j.Recommendations = append(j.Recommendations,
			"Use with caution; monitor cost sensitivity",
			"Consider the schedule-only mode if costs exceed breakeven")
	default:
		j.Verdict = VerdictReject
		j.Reasons = append(j.Reasons, "Strategy does not outperform the passive benchmark on risk-adjusted basis")
		j.Recommendations = append(j.Recommendations,
			"Review strategy logic and triggers",
			"Consider simplifying to reduce trading costs")
	}
	return j
}
