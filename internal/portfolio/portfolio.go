package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/opsxjacky/weekly-strategy-backtest/internal/cost"
	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

const (
	// MinTradeValue 小于该金额的调仓差额忽略
	MinTradeValue = 1.0
	// DustShares 低于该股数视为清仓
	DustShares = 1e-9
	// FractionalPlaces 碎股精度
	FractionalPlaces = 6

	cashTolerance = 0.01
)

// AllocationReader 读取当前持仓比例
type AllocationReader interface {
	AllocationPct() types.Allocation
}

// SimulatedPortfolio 模拟投资组合 (现金 + 持仓账本)
type SimulatedPortfolio struct {
	initialCapital float64
	cash           float64
	positions      map[types.Symbol]*types.Position
	trades         []types.TradeRecord
	totalCosts     float64
	costModel      cost.CostModel
	wholeShares    map[types.Symbol]bool
}

// NewSimulatedPortfolio 创建模拟组合，costModel 为 nil 时不计成本
func NewSimulatedPortfolio(initialCapital float64, costModel cost.CostModel, wholeShareSymbols ...types.Symbol) *SimulatedPortfolio {
	if costModel == nil {
		costModel = cost.NewZeroCostModel()
	}
	whole := make(map[types.Symbol]bool, len(wholeShareSymbols))
	for _, s := range wholeShareSymbols {
		whole[s] = true
	}
	return &SimulatedPortfolio{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[types.Symbol]*types.Position),
		trades:         make([]types.TradeRecord, 0),
		costModel:      costModel,
		wholeShares:    whole,
	}
}

// InitialCapital 初始资金
func (p *SimulatedPortfolio) InitialCapital() float64 { return p.initialCapital }

// Cash 当前现金
func (p *SimulatedPortfolio) Cash() float64 { return p.cash }

// TotalCosts 累计交易成本
func (p *SimulatedPortfolio) TotalCosts() float64 { return p.totalCosts }

// Trades 返回全部交易记录副本
func (p *SimulatedPortfolio) Trades() []types.TradeRecord {
	out := make([]types.TradeRecord, len(p.trades))
	copy(out, p.trades)
	return out
}

// Positions 按标的排序返回持仓副本
func (p *SimulatedPortfolio) Positions() []types.Position {
	out := make([]types.Position, 0, len(p.positions))
	for _, s := range p.heldSymbols() {
		out = append(out, *p.positions[s])
	}
	return out
}

// Position 查询单个持仓
func (p *SimulatedPortfolio) Position(symbol types.Symbol) (types.Position, bool) {
	pos, ok := p.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// Marks 当前持仓的最新估值价格
func (p *SimulatedPortfolio) Marks() types.PriceMap {
	out := make(types.PriceMap, len(p.positions))
	for s, pos := range p.positions {
		out[s] = pos.CurrentPrice
	}
	return out
}

// PositionsValue 持仓市值
func (p *SimulatedPortfolio) PositionsValue() float64 {
	total := 0.0
	for _, pos := range p.positions {
		total += pos.MarketValue()
	}
	return total
}

// TotalValue 总市值 (现金 + 持仓)
func (p *SimulatedPortfolio) TotalValue() float64 {
	return p.cash + p.PositionsValue()
}

// UpdatePrices 按最新价格估值，未持有的标的忽略
func (p *SimulatedPortfolio) UpdatePrices(prices types.PriceMap) {
	for symbol, price := range prices {
		if pos, ok := p.positions[symbol]; ok && price > 0 {
			pos.CurrentPrice = price
		}
	}
}

// AllocationPct 当前各持仓占总市值百分比 (按标的排序)
func (p *SimulatedPortfolio) AllocationPct() types.Allocation {
	var alloc types.Allocation
	total := p.TotalValue()
	if total <= 0 {
		return alloc
	}
	for _, s := range p.heldSymbols() {
		pos := p.positions[s]
		if pos.Shares > 0 {
			alloc.Set(s, pos.MarketValue()/total*100.0)
		}
	}
	return alloc
}

type order struct {
	symbol types.Symbol
	delta  float64
}

// RebalanceTo 调仓到目标百分比；先卖后买
func (p *SimulatedPortfolio) RebalanceTo(target types.Allocation, prices types.PriceMap, date time.Time, reason string) ([]types.TradeRecord, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target allocation: %w", err)
	}

	p.UpdatePrices(prices)
	total := p.TotalValue()
	if total <= 0 {
		return nil, nil
	}

	var sells, buys []order
	for _, w := range target.Weights() {
		if w.Pct == 0 {
			continue
		}
		price, ok := prices[w.Symbol]
		if !ok || price <= 0 {
			log.Warn().Str("symbol", string(w.Symbol)).Time("date", date).Msg("no price, skipping")
			continue
		}
		targetValue := total * w.Pct / 100.0
		current := 0.0
		if pos, ok := p.positions[w.Symbol]; ok {
			current = pos.MarketValue()
		}
		delta := targetValue - current
		if math.Abs(delta) < MinTradeValue {
			continue
		}
		if delta < 0 {
			sells = append(sells, order{w.Symbol, delta})
		} else {
			buys = append(buys, order{w.Symbol, delta})
		}
	}

	// 清掉目标中不存在或为 0 的持仓
	for _, s := range p.heldSymbols() {
		if target.Pct(s) == 0 {
			pos := p.positions[s]
			if price, ok := prices[s]; !ok || price <= 0 {
				log.Warn().Str("symbol", string(s)).Time("date", date).Msg("no price for exit, keeping position")
				continue
			}
			if pos.Shares > 0 {
				sells = append(sells, order{s, -pos.MarketValue()})
			}
		}
	}

	trades := make([]types.TradeRecord, 0, len(sells)+len(buys))
	for _, o := range sells {
		if tr, ok := p.sell(o, prices[o.symbol], date, reason); ok {
			trades = append(trades, tr)
		}
	}
	for _, o := range buys {
		if tr, ok := p.buy(o, prices[o.symbol], date, reason); ok {
			trades = append(trades, tr)
		}
	}
	return trades, nil
}

func (p *SimulatedPortfolio) sell(o order, price float64, date time.Time, reason string) (types.TradeRecord, bool) {
	pos, ok := p.positions[o.symbol]
	if !ok || price <= 0 {
		return types.TradeRecord{}, false
	}
	execPrice := p.costModel.CalculateSlippage(price, types.SideSell)
	shares := math.Min(math.Abs(o.delta)/execPrice, pos.Shares)
	// 清仓时卖出全部股数，避免留下碎股
	if o.delta <= -pos.MarketValue() {
		shares = pos.Shares
	} else {
		shares = p.roundShares(o.symbol, shares)
	}
	if shares <= 0 {
		return types.TradeRecord{}, false
	}

	notional := shares * execPrice
	fee := p.costModel.CalculateCost(types.SideSell, shares, execPrice)
	if pos.Shares > 0 {
		pos.CostBasis *= 1 - shares/pos.Shares
	}
	pos.Shares -= shares
	pos.CurrentPrice = price
	p.cash += notional - fee
	p.totalCosts += fee
	if pos.Shares < DustShares {
		delete(p.positions, o.symbol)
	}

	return p.record(date, o.symbol, types.SideSell, shares, execPrice, notional, fee, reason), true
}

func (p *SimulatedPortfolio) buy(o order, price float64, date time.Time, reason string) (types.TradeRecord, bool) {
	if price <= 0 {
		return types.TradeRecord{}, false
	}
	execPrice := p.costModel.CalculateSlippage(price, types.SideBuy)
	shares := p.roundShares(o.symbol, o.delta/execPrice)
	unitCost := execPrice * (1 + p.costModel.Rate(types.SideBuy))
	if shares*unitCost > p.cash || shares <= 0 {
		// 现金不足时买入可负担的最大数量
		shares = p.roundShares(o.symbol, p.cash/unitCost)
	}
	if shares <= 0 {
		return types.TradeRecord{}, false
	}

	notional := shares * execPrice
	fee := p.costModel.CalculateCost(types.SideBuy, shares, execPrice)
	if notional+fee > p.cash+cashTolerance {
		return types.TradeRecord{}, false
	}
	p.cash = math.Max(p.cash-notional-fee, 0)
	p.totalCosts += fee

	pos, ok := p.positions[o.symbol]
	if !ok {
		pos = &types.Position{Symbol: o.symbol}
		p.positions[o.symbol] = pos
	}
	pos.Shares += shares
	pos.CostBasis += notional + fee
	pos.CurrentPrice = price

	return p.record(date, o.symbol, types.SideBuy, shares, execPrice, notional, fee, reason), true
}

func (p *SimulatedPortfolio) record(date time.Time, symbol types.Symbol, side types.Side, shares, price, notional, fee float64, reason string) types.TradeRecord {
	tr := types.TradeRecord{
		Date:     date,
		Symbol:   symbol,
		Side:     side,
		Shares:   shares,
		Price:    price,
		Notional: notional,
		Cost:     fee,
		Reason:   reason,
	}
	p.trades = append(p.trades, tr)
	return tr
}

// roundShares 整股标的向下取整，其余截断到 6 位小数
func (p *SimulatedPortfolio) roundShares(symbol types.Symbol, shares float64) float64 {
	if shares <= 0 || math.IsNaN(shares) || math.IsInf(shares, 0) {
		return 0
	}
	d := decimal.NewFromFloat(shares)
	if p.wholeShares[symbol] {
		d = d.Floor()
	} else {
		d = d.Truncate(FractionalPlaces)
	}
	return d.InexactFloat64()
}

func (p *SimulatedPortfolio) heldSymbols() []types.Symbol {
	out := make([]types.Symbol, 0, len(p.positions))
	for s := range p.positions {
		out = append(out, s)
	}
	types.SortSymbols(out)
	return out
}
