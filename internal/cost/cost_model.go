package cost

import (
	"math"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// DefaultSECFeeRate 美国 SEC 交易费率 (仅卖出收取)
const DefaultSECFeeRate = 22.90e-6

const bpsDenominator = 10000.0

// CostModel 成本模型接口
type CostModel interface {
	// CalculateCost 计算交易成本 (美元)
	CalculateCost(side types.Side, shares, price float64) float64

	// CalculateSlippage 计算滑点调整后的价格
	CalculateSlippage(price float64, side types.Side) float64

	// Rate 单位名义金额的成本比例
	Rate(side types.Side) float64
}

// DefaultCostModel 默认成本模型: 双边半价差 + 卖出费率 + 滑点
type DefaultCostModel struct {
	SpreadBps   float64 // 半价差 (基点)
	FeeRate     float64 // 卖出金额费率
	SlippageBps float64 // 滑点 (基点)
}

// NewDefaultCostModel 创建默认成本模型
func NewDefaultCostModel(config types.CostConfig) *DefaultCostModel {
	return &DefaultCostModel{
		SpreadBps:   config.SpreadBps,
		FeeRate:     config.FeeRate,
		SlippageBps: config.SlippageBps,
	}
}

// NewZeroCostModel 创建零成本模型 (用于毛收益回放与测试)
func NewZeroCostModel() *DefaultCostModel {
	return &DefaultCostModel{}
}

// WithSpread 返回仅价差不同的副本
func (m *DefaultCostModel) WithSpread(spreadBps float64) *DefaultCostModel {
	out := *m
	out.SpreadBps = spreadBps
	return &out
}

// CalculateCost 计算交易成本
func (m *DefaultCostModel) CalculateCost(side types.Side, shares, price float64) float64 {
	value := math.Abs(shares * price)
	return value * m.Rate(side)
}

// Rate 单位名义金额的成本比例
func (m *DefaultCostModel) Rate(side types.Side) float64 {
	rate := m.SpreadBps / bpsDenominator
	// 监管费仅卖出时收取
	if side == types.SideSell {
		rate += m.FeeRate
	}
	return rate
}

// CalculateSlippage 计算滑点调整后的价格
func (m *DefaultCostModel) CalculateSlippage(price float64, side types.Side) float64 {
	if m.SlippageBps == 0 {
		return price
	}
	slip := m.SlippageBps / bpsDenominator
	if side == types.SideBuy {
		// 买入时价格上浮
		return price * (1 + slip)
	}
	// 卖出时价格下浮
	return price * (1 - slip)
}
