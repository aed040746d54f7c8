package benchmark

import (
	"time"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// 交易原因
const (
	ReasonBuyAndHold = "buy_and_hold"
	ReasonMonthly    = "monthly_rebalance"
)

// monthlySchedule 每个自然月第一个参与交易的日子再平衡
type monthlySchedule struct {
	lastMonth int // year*12 + month，0 表示尚未建仓
}

// ShouldRebalance 进入新月份时返回 true
func (m *monthlySchedule) ShouldRebalance(date time.Time, _ types.PriceMap) bool {
	return m.lastMonth == 0 || monthKey(date) != m.lastMonth
}

// OnRebalance 记录再平衡月份
func (m *monthlySchedule) OnRebalance(date time.Time) {
	m.lastMonth = monthKey(date)
}

// Reason 返回交易原因
func (m *monthlySchedule) Reason() string {
	return ReasonMonthly
}

func monthKey(d time.Time) int {
	return d.Year()*12 + int(d.Month())
}

// BuyAndHoldStrategy 首个有价格的交易日全仓买入并持有
type BuyAndHoldStrategy struct {
	symbol types.Symbol
	bought bool
}

// NewBuyAndHold 创建买入持有策略
func NewBuyAndHold(symbol types.Symbol) *BuyAndHoldStrategy {
	return &BuyAndHoldStrategy{symbol: symbol}
}

// Name 返回策略名称
func (s *BuyAndHoldStrategy) Name() string {
	return string(s.symbol) + " B&H"
}

// Label 快照标签
func (s *BuyAndHoldStrategy) Label() string { return ReasonBuyAndHold }

// Tradable 当日有该标的价格
func (s *BuyAndHoldStrategy) Tradable(prices types.PriceMap) bool {
	return prices[s.symbol] > 0
}

// ShouldRebalance 只在第一天建仓
func (s *BuyAndHoldStrategy) ShouldRebalance(time.Time, types.PriceMap) bool {
	return !s.bought
}

// TargetWeights 100% 单一标的
func (s *BuyAndHoldStrategy) TargetWeights(types.PriceMap) types.Allocation {
	return types.NewAllocation(types.Weight{Symbol: s.symbol, Pct: 100})
}

// Reason 返回交易原因
func (s *BuyAndHoldStrategy) Reason() string { return ReasonBuyAndHold }

// OnRebalance 再平衡后回调
func (s *BuyAndHoldStrategy) OnRebalance(time.Time) {
	s.bought = true
}
