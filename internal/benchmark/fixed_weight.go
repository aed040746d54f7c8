package benchmark

import (
	"fmt"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// FixedMixStrategy 两资产固定比例，按月再平衡；任一标的缺价时跳过该日
type FixedMixStrategy struct {
	monthlySchedule
	a, b   types.Symbol
	pctA   float64
	target types.Allocation
}

// NewFixedMix 创建固定比例策略，b 占 100 - pctA
func NewFixedMix(a types.Symbol, pctA float64, b types.Symbol) *FixedMixStrategy {
	return &FixedMixStrategy{
		a:    a,
		b:    b,
		pctA: pctA,
		target: types.NewAllocation(
			types.Weight{Symbol: a, Pct: pctA},
			types.Weight{Symbol: b, Pct: 100 - pctA},
		),
	}
}

// Name 返回策略名称
func (s *FixedMixStrategy) Name() string {
	return fmt.Sprintf("%.0f/%.0f %s+%s", s.pctA, 100-s.pctA, s.a, s.b)
}

// Label 快照标签
func (s *FixedMixStrategy) Label() string {
	return fmt.Sprintf("%.0f/%.0f", s.pctA, 100-s.pctA)
}

// Tradable 两个标的都有价格
func (s *FixedMixStrategy) Tradable(prices types.PriceMap) bool {
	return prices[s.a] > 0 && prices[s.b] > 0
}

// TargetWeights 返回固定目标权重
func (s *FixedMixStrategy) TargetWeights(types.PriceMap) types.Allocation {
	return s.target.Clone()
}

// EqualWeightStrategy 等权篮子，按月再平衡；只在当日有价格的标的之间分配
type EqualWeightStrategy struct {
	monthlySchedule
	symbols []types.Symbol
}

// NewEqualWeight 创建等权策略
func NewEqualWeight(symbols []types.Symbol) (*EqualWeightStrategy, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("equal weight needs at least one symbol")
	}
	return &EqualWeightStrategy{symbols: append([]types.Symbol(nil), symbols...)}, nil
}

// Name 返回策略名称
func (s *EqualWeightStrategy) Name() string { return "Equal-Weight" }

// Label 快照标签
func (s *EqualWeightStrategy) Label() string { return "equal_weight" }

// Tradable 至少一个标的有价格
func (s *EqualWeightStrategy) Tradable(prices types.PriceMap) bool {
	return len(s.available(prices)) > 0
}

// TargetWeights 在可用标的之间等分
func (s *EqualWeightStrategy) TargetWeights(prices types.PriceMap) types.Allocation {
	avail := s.available(prices)
	var alloc types.Allocation
	for _, sym := range avail {
		alloc.Set(sym, 100.0/float64(len(avail)))
	}
	return alloc
}

func (s *EqualWeightStrategy) available(prices types.PriceMap) []types.Symbol {
	out := make([]types.Symbol, 0, len(s.symbols))
	for _, sym := range s.symbols {
		if prices[sym] > 0 {
			out = append(out, sym)
		}
	}
	return out
}
