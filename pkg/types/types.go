package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// Symbol 可交易标的 (固定枚举)
type Symbol string

const (
	SymbolSPY Symbol = "SPY"
	SymbolQQQ Symbol = "QQQ"
	SymbolDIA Symbol = "DIA"
	SymbolXLV Symbol = "XLV"
	SymbolXLP Symbol = "XLP"
	SymbolGLD Symbol = "GLD"
	SymbolXLE Symbol = "XLE"
	SymbolBIL Symbol = "BIL"
	SymbolTLT Symbol = "TLT"
	SymbolURA Symbol = "URA"
	SymbolSH  Symbol = "SH"
	SymbolSDS Symbol = "SDS"
)

var knownSymbols = map[Symbol]struct{}{
	SymbolSPY: {}, SymbolQQQ: {}, SymbolDIA: {},
	SymbolXLV: {}, SymbolXLP: {},
	SymbolGLD: {}, SymbolXLE: {},
	SymbolBIL: {}, SymbolTLT: {},
	SymbolURA: {},
	SymbolSH: {}, SymbolSDS: {},
}

// ErrUnknownSymbol 未知标的
var ErrUnknownSymbol = errors.New("unknown symbol")

// ParseSymbol 解析标的代码，拒绝未知标的
func ParseSymbol(s string) (Symbol, error) {
	sym := Symbol(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownSymbols[sym]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, s)
	}
	return sym, nil
}

// Valid 是否为已知标的
func (s Symbol) Valid() bool {
	_, ok := knownSymbols[s]
	return ok
}

// KnownSymbols 返回全部已知标的 (按字母排序)
func KnownSymbols() []Symbol {
	out := make([]Symbol, 0, len(knownSymbols))
	for s := range knownSymbols {
		out = append(out, s)
	}
	SortSymbols(out)
	return out
}

// SortSymbols 按字母排序
func SortSymbols(symbols []Symbol) {
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
}

// Side 交易方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Date 构造 UTC 零点日期
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DayOf 截断为 UTC 零点
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// PriceMap 某日各标的价格
type PriceMap map[Symbol]float64

// MarketLevel 某日的波动率指数与跟踪指数点位
type MarketLevel struct {
	VIX     *float64           // nil 表示当日无数据
	Indices map[string]float64 // sp500 / nasdaq / dow
}

// Index 获取指数点位
func (m MarketLevel) Index(name string) (float64, bool) {
	v, ok := m.Indices[name]
	return v, ok
}

// Float 返回指向 v 的指针 (用于可选数值)
func Float(v float64) *float64 {
	return &v
}

// Position 持仓
type Position struct {
	Symbol       Symbol  `json:"symbol"`
	Shares       float64 `json:"shares"`
	CurrentPrice float64 `json:"current_price"`
	CostBasis    float64 `json:"cost_basis"` // 总成本
}

// MarketValue 市值
func (p Position) MarketValue() float64 {
	return p.Shares * p.CurrentPrice
}

// TradeRecord 交易记录 (只追加，不修改)
type TradeRecord struct {
	Date     time.Time `json:"date"`
	Symbol   Symbol    `json:"symbol"`
	Side     Side      `json:"side"`
	Shares   float64   `json:"shares"`
	Price    float64   `json:"price"`
	Notional float64   `json:"notional"` // shares * price，不含成本
	Cost     float64   `json:"cost"`
	Reason   string    `json:"reason"` // "rebalance", "trigger:<name>" ...
}

// EngineMode 引擎模式
type EngineMode string

const (
	ModeSchedule EngineMode = "schedule" // 仅按计划再平衡
	ModeTrigger  EngineMode = "trigger"  // 计划再平衡 + 触发器
)

// ParseMode 解析引擎模式
func ParseMode(s string) (EngineMode, error) {
	switch EngineMode(strings.ToLower(s)) {
	case ModeSchedule:
		return ModeSchedule, nil
	case ModeTrigger:
		return ModeTrigger, nil
	}
	return "", fmt.Errorf("invalid engine mode %q (schedule|trigger)", s)
}

// Cadence 计划再平衡节奏
type Cadence string

const (
	CadenceTransition Cadence = "transition" // 策略周期切换日
	CadenceWeekEnd    Cadence = "weekend"    // 每周最后一个交易日
)

// ParseCadence 解析再平衡节奏
func ParseCadence(s string) (Cadence, error) {
	switch Cadence(strings.ToLower(s)) {
	case CadenceTransition:
		return CadenceTransition, nil
	case CadenceWeekEnd:
		return CadenceWeekEnd, nil
	}
	return "", fmt.Errorf("invalid cadence %q (transition|weekend)", s)
}

// BacktestConfig 回测配置
type BacktestConfig struct {
	Name              string
	StartDate         time.Time
	EndDate           time.Time
	InitialCapital    float64
	Mode              EngineMode
	Cadence           Cadence
	DriftThresholdPct float64  // 漂移触发阈值 (百分点)
	WholeShareSymbols []Symbol // 只能整股交易的标的
}

// CostConfig 成本配置
type CostConfig struct {
	SpreadBps   float64 // 半价差 (买卖双边收取)
	FeeRate     float64 // 卖出金额费率 (监管费)
	SlippageBps float64 // 滑点
}
