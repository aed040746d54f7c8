package robustness

import (
	"fmt"
	"sort"
)

// Breakeven 反应模式净收益跌破基线模式的价差
type Breakeven struct {
	Bps            *float64 `json:"breakeven_bps"` // nil 表示测试区间内没有交叉
	ReactiveAtZero *float64 `json:"reactive_at_zero"`
	BaselineAtZero *float64 `json:"baseline_at_zero"`
	// AheadAtMax 未交叉时，反应模式在最高价差上是否仍不落后
	AheadAtMax bool   `json:"ahead_at_max"`
	Details    string `json:"details"`
}

// FindBreakeven 沿价差阶梯寻找第一对 diff1 >= 0、diff2 < 0 的相邻档位并线性插值
func FindBreakeven(cells []Cell, reactive, baseline string) Breakeven {
	r := netByCost(cells, reactive)
	b := netByCost(cells, baseline)
	if len(r) == 0 || len(b) == 0 {
		return Breakeven{Details: "Missing mode data"}
	}

	var costs []float64
	for c := range r {
		if _, ok := b[c]; ok {
			costs = append(costs, c)
		}
	}
	if len(costs) == 0 {
		return Breakeven{Details: "No common cost levels"}
	}
	sort.Float64s(costs)

	out := Breakeven{}
	if v, ok := r[0]; ok {
		out.ReactiveAtZero = &v
	}
	if v, ok := b[0]; ok {
		out.BaselineAtZero = &v
	}

	for i := 0; i+1 < len(costs); i++ {
		c1, c2 := costs[i], costs[i+1]
		diff1 := r[c1] - b[c1]
		diff2 := r[c2] - b[c2]
		if diff1 >= 0 && diff2 < 0 {
			bps := c1
			if diff1 != diff2 {
				bps = c1 + (c2-c1)*(diff1/(diff1-diff2))
			}
			out.Bps = &bps
			out.Details = fmt.Sprintf("Crossover at ~%.1f bps", bps)
			return out
		}
	}

	last := costs[len(costs)-1]
	lastDiff := r[last] - b[last]
	if lastDiff >= 0 {
		out.AheadAtMax = true
		out.Details = fmt.Sprintf("%s still ahead at %g bps (diff: %.2f%%)", reactive, last, lastDiff)
	} else {
		out.Details = fmt.Sprintf("%s already behind at %g bps", reactive, costs[0])
	}
	return out
}

func netByCost(cells []Cell, mode string) map[float64]float64 {
	out := make(map[float64]float64)
	for _, c := range cells {
		if c.Mode == mode && c.Result != nil {
			out[c.CostBps] = c.Result.NetReturnPct
		}
	}
	return out
}
