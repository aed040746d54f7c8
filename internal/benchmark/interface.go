package benchmark

import (
	"time"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// RebalanceStrategy 基准再平衡策略接口
type RebalanceStrategy interface {
	// Name 策略名称
	Name() string

	// Label 快照中记录的情景标签
	Label() string

	// Tradable 当日价格是否足以参与 (否则跳过该日)
	Tradable(prices types.PriceMap) bool

	// ShouldRebalance 判断是否需要再平衡
	ShouldRebalance(date time.Time, prices types.PriceMap) bool

	// TargetWeights 计算目标权重 (百分比)
	TargetWeights(prices types.PriceMap) types.Allocation

	// Reason 交易记录中的原因
	Reason() string

	// OnRebalance 再平衡后回调 (用于更新内部状态)
	OnRebalance(date time.Time)
}
