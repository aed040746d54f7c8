package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// AllocationTolerance 目标配置总和允许偏离 100% 的幅度
const AllocationTolerance = 0.5

// ErrAllocationSum 配置总和越界
var ErrAllocationSum = errors.New("allocation sum out of range")

// Weight 单个标的目标百分比
type Weight struct {
	Symbol Symbol
	Pct    float64 // 0-100
}

// Allocation 有序的 标的->百分比 映射，保留插入顺序
type Allocation struct {
	weights []Weight
}

// NewAllocation 按给定顺序创建配置
func NewAllocation(weights ...Weight) Allocation {
	var a Allocation
	for _, w := range weights {
		a.Set(w.Symbol, w.Pct)
	}
	return a
}

// Set 设置标的百分比 (已存在则原位更新)
func (a *Allocation) Set(symbol Symbol, pct float64) {
	for i := range a.weights {
		if a.weights[i].Symbol == symbol {
			a.weights[i].Pct = pct
			return
		}
	}
	a.weights = append(a.weights, Weight{Symbol: symbol, Pct: pct})
}

// Get 获取标的百分比
func (a Allocation) Get(symbol Symbol) (float64, bool) {
	for _, w := range a.weights {
		if w.Symbol == symbol {
			return w.Pct, true
		}
	}
	return 0, false
}

// Pct 获取标的百分比，不存在返回 0
func (a Allocation) Pct(symbol Symbol) float64 {
	v, _ := a.Get(symbol)
	return v
}

// Has 是否包含标的
func (a Allocation) Has(symbol Symbol) bool {
	_, ok := a.Get(symbol)
	return ok
}

// Len 标的数量
func (a Allocation) Len() int {
	return len(a.weights)
}

// Weights 返回权重副本
func (a Allocation) Weights() []Weight {
	out := make([]Weight, len(a.weights))
	copy(out, a.weights)
	return out
}

// Symbols 按顺序返回标的
func (a Allocation) Symbols() []Symbol {
	out := make([]Symbol, len(a.weights))
	for i, w := range a.weights {
		out[i] = w.Symbol
	}
	return out
}

// Sum 百分比总和
func (a Allocation) Sum() float64 {
	total := 0.0
	for _, w := range a.weights {
		total += w.Pct
	}
	return total
}

// Clone 深拷贝
func (a Allocation) Clone() Allocation {
	return Allocation{weights: a.Weights()}
}

// Normalized 等比缩放到总和 100
func (a Allocation) Normalized() Allocation {
	sum := a.Sum()
	if sum <= 0 {
		return a.Clone()
	}
	out := Allocation{weights: make([]Weight, len(a.weights))}
	for i, w := range a.weights {
		out.weights[i] = Weight{Symbol: w.Symbol, Pct: w.Pct * 100.0 / sum}
	}
	return out
}

// Validate 检查权重非负且总和不超过 100 + 容差
func (a Allocation) Validate() error {
	for _, w := range a.weights {
		if w.Pct < 0 || math.IsNaN(w.Pct) {
			return fmt.Errorf("negative weight %.4f for %s", w.Pct, w.Symbol)
		}
		if !w.Symbol.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownSymbol, w.Symbol)
		}
	}
	if sum := a.Sum(); sum > 100+AllocationTolerance {
		return fmt.Errorf("%w: %.2f%%", ErrAllocationSum, sum)
	}
	return nil
}

// MarshalJSON 按顺序输出为 JSON 对象
func (a Allocation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, w := range a.weights {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(w.Symbol))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(w.Pct)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
