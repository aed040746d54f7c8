package data

import (
	"sort"
	"time"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// MaxForwardFillDays 缺失数据最多向前填充的自然日数
const MaxForwardFillDays = 3

// 跟踪的指数名称
const (
	IndexVIX    = "vix"
	IndexSP500  = "sp500"
	IndexNasdaq = "nasdaq"
	IndexDow    = "dow"
)

// TrackedIndices 与 VIX 一起加载的指数
var TrackedIndices = []string{IndexSP500, IndexNasdaq, IndexDow}

// Source 行情数据源接口 (加载后只读，可在并行回测间共享)
type Source interface {
	// TradingDays 区间内的交易日 (升序)
	TradingDays(start, end time.Time) []time.Time

	// ClosePrices 某日收盘价
	ClosePrices(date time.Time) types.PriceMap

	// OpenPrices 某日开盘价；仅返回当日实际成交的开盘价，不向前填充
	OpenPrices(date time.Time) types.PriceMap

	// MarketLevel 某日 VIX 与指数点位
	MarketLevel(date time.Time) types.MarketLevel
}

// series 按日期升序的数值序列
type series struct {
	dates  []time.Time
	values []float64
}

// set 插入或覆盖，保持有序
func (s *series) set(date time.Time, v float64) {
	date = types.DayOf(date)
	idx := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(date) })
	if idx < len(s.dates) && s.dates[idx].Equal(date) {
		s.values[idx] = v
		return
	}
	s.dates = append(s.dates, time.Time{})
	s.values = append(s.values, 0)
	copy(s.dates[idx+1:], s.dates[idx:])
	copy(s.values[idx+1:], s.values[idx:])
	s.dates[idx] = date
	s.values[idx] = v
}

// exact 取某日数值，不做填充
func (s *series) exact(date time.Time) (float64, bool) {
	date = types.DayOf(date)
	idx := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(date) })
	if idx < len(s.dates) && s.dates[idx].Equal(date) {
		return s.values[idx], true
	}
	return 0, false
}

// get 取某日数值，缺失时向前填充最多 MaxForwardFillDays 天
func (s *series) get(date time.Time) (float64, bool) {
	date = types.DayOf(date)
	// 二分查找最后一个 <= date 的位置
	idx := sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(date) }) - 1
	if idx < 0 {
		return 0, false
	}
	if date.Sub(s.dates[idx]) > MaxForwardFillDays*24*time.Hour {
		return 0, false
	}
	return s.values[idx], true
}

func (s *series) bounds() (time.Time, time.Time, bool) {
	if len(s.dates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.dates[0], s.dates[len(s.dates)-1], true
}

// MemorySource 内存行情数据源
type MemorySource struct {
	calendar USMarketCalendar
	closes   map[types.Symbol]*series
	opens    map[types.Symbol]*series
	indices  map[string]*series
}

// NewMemorySource 创建空的内存数据源
func NewMemorySource() *MemorySource {
	return &MemorySource{
		calendar: NewUSMarketCalendar(),
		closes:   make(map[types.Symbol]*series),
		opens:    make(map[types.Symbol]*series),
		indices:  make(map[string]*series),
	}
}

// SetClose 注入收盘价
func (m *MemorySource) SetClose(symbol types.Symbol, date time.Time, price float64) {
	seriesFor(m.closes, symbol).set(date, price)
}

// SetOpen 注入开盘价
func (m *MemorySource) SetOpen(symbol types.Symbol, date time.Time, price float64) {
	seriesFor(m.opens, symbol).set(date, price)
}

// SetIndex 注入指数点位 (vix / sp500 / nasdaq / dow)
func (m *MemorySource) SetIndex(name string, date time.Time, value float64) {
	seriesFor(m.indices, name).set(date, value)
}

func seriesFor[K comparable](m map[K]*series, key K) *series {
	s, ok := m[key]
	if !ok {
		s = &series{}
		m[key] = s
	}
	return s
}

// Symbols 已加载收盘价的标的 (排序)
func (m *MemorySource) Symbols() []types.Symbol {
	out := make([]types.Symbol, 0, len(m.closes))
	for s := range m.closes {
		out = append(out, s)
	}
	types.SortSymbols(out)
	return out
}

// GetDataRange 获取标的数据范围
func (m *MemorySource) GetDataRange(symbol types.Symbol) (start, end time.Time, ok bool) {
	s, exists := m.closes[symbol]
	if !exists {
		return time.Time{}, time.Time{}, false
	}
	return s.bounds()
}

// TradingDays 区间内的交易日
func (m *MemorySource) TradingDays(start, end time.Time) []time.Time {
	return m.calendar.TradingDays(start, end)
}

// ClosePrices 某日收盘价 (含向前填充)
func (m *MemorySource) ClosePrices(date time.Time) types.PriceMap {
	return pricesOn(m.closes, date, (*series).get)
}

// OpenPrices 某日开盘价，仅取当日，不向前填充
func (m *MemorySource) OpenPrices(date time.Time) types.PriceMap {
	return pricesOn(m.opens, date, (*series).exact)
}

func pricesOn(all map[types.Symbol]*series, date time.Time, lookup func(*series, time.Time) (float64, bool)) types.PriceMap {
	prices := make(types.PriceMap, len(all))
	for symbol, s := range all {
		if v, ok := lookup(s, date); ok && v > 0 {
			prices[symbol] = v
		}
	}
	return prices
}

// MarketLevel 某日 VIX 与指数点位
func (m *MemorySource) MarketLevel(date time.Time) types.MarketLevel {
	level := types.MarketLevel{Indices: make(map[string]float64)}
	for name, s := range m.indices {
		v, ok := s.get(date)
		if !ok {
			continue
		}
		if name == IndexVIX {
			level.VIX = types.Float(v)
			continue
		}
		level.Indices[name] = v
	}
	return level
}
