package metrics

import "math"

// TradingDaysPerYear 年化交易日数
const TradingDaysPerYear = 252

// Mean 算术平均，空切片返回 0
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PopulationStd 总体标准差 (除以 n)
func PopulationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return math.Sqrt(sumSquares(xs) / float64(len(xs)))
}

// SampleStd 样本标准差 (除以 n-1)
func SampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return math.Sqrt(sumSquares(xs) / float64(len(xs)-1))
}

func sumSquares(xs []float64) float64 {
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return ss
}

// Annualized 均值/标准差 × √252，退化时为 0
func Annualized(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	std := PopulationStd(xs)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return Mean(xs) / std * math.Sqrt(TradingDaysPerYear)
}

// Round 四舍五入到 places 位小数
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
