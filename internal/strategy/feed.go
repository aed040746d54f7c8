package strategy

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Feed 已解析的策略周期输入
type Feed struct {
	Periods  []types.StrategyPeriod
	Rejected []types.SkippedPeriod // 解析阶段即被拒绝的周期
}

type feedDoc struct {
	Periods []periodDoc `yaml:"periods" validate:"dive"`
}

type periodDoc struct {
	EffectiveDate  string              `yaml:"effective_date" validate:"required"`
	BaseAllocation allocationDoc       `yaml:"base_allocation"`
	Scenarios      scenariosDoc        `yaml:"scenarios"`
	VIXThresholds  vixDoc              `yaml:"vix_thresholds"`
	IndexLevels    map[string]levelDoc `yaml:"index_levels" validate:"dive,keys,oneof=sp500 nasdaq dow,endkeys"`
}

type vixDoc struct {
	RiskOn  float64 `yaml:"risk_on" validate:"gte=0"`
	Caution float64 `yaml:"caution" validate:"gte=0"`
	Stress  float64 `yaml:"stress" validate:"gte=0"`
}

type levelDoc struct {
	Buy  *float64 `yaml:"buy" validate:"omitempty,gt=0"`
	Sell *float64 `yaml:"sell" validate:"omitempty,gt=0"`
	Stop *float64 `yaml:"stop" validate:"omitempty,gt=0"`
}

type rawWeight struct {
	symbol string
	pct    float64
}

// allocationDoc 保留 YAML 中的键顺序
type allocationDoc []rawWeight

// UnmarshalYAML 按文档顺序读取 symbol: pct
func (a *allocationDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: allocation must be a mapping", node.Line)
	}
	out := make(allocationDoc, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		pct, err := strconv.ParseFloat(val.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid weight %q for %s", val.Line, val.Value, key.Value)
		}
		out = append(out, rawWeight{symbol: key.Value, pct: pct})
	}
	*a = out
	return nil
}

type scenarioDoc struct {
	name       string
	allocation allocationDoc
}

// scenariosDoc 保留情景定义顺序
type scenariosDoc []scenarioDoc

// UnmarshalYAML 按文档顺序读取 name: allocation
func (s *scenariosDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: scenarios must be a mapping", node.Line)
	}
	out := make(scenariosDoc, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var alloc allocationDoc
		if err := node.Content[i+1].Decode(&alloc); err != nil {
			return fmt.Errorf("scenario %s: %w", node.Content[i].Value, err)
		}
		out = append(out, scenarioDoc{name: node.Content[i].Value, allocation: alloc})
	}
	*s = out
	return nil
}

var validate = validator.New()

// LoadFeed 从 YAML 文件加载策略周期
func LoadFeed(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read period feed: %w", err)
	}
	return ParseFeed(data)
}

// ParseFeed 解析策略周期 YAML；单个周期的错误记为跳过原因，不中断整体解析
func ParseFeed(data []byte) (*Feed, error) {
	var doc feedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse period feed: %w", err)
	}

	feed := &Feed{}
	for _, pd := range doc.Periods {
		period, err := pd.toPeriod()
		if err != nil {
			feed.Rejected = append(feed.Rejected, types.SkippedPeriod{
				EffectiveDate: pd.EffectiveDate,
				Reason:        err.Error(),
			})
			continue
		}
		feed.Periods = append(feed.Periods, period)
	}
	return feed, nil
}

func (pd periodDoc) toPeriod() (types.StrategyPeriod, error) {
	if err := validate.Struct(pd); err != nil {
		return types.StrategyPeriod{}, fmt.Errorf("invalid period: %w", err)
	}
	eff, err := types.ParseDate(pd.EffectiveDate)
	if err != nil {
		return types.StrategyPeriod{}, err
	}

	base, err := pd.BaseAllocation.toAllocation()
	if err != nil {
		return types.StrategyPeriod{}, fmt.Errorf("base_allocation: %w", err)
	}

	period := types.StrategyPeriod{
		EffectiveDate:  eff,
		BaseAllocation: base,
		VIX: types.VIXThresholds{
			RiskOn:  pd.VIXThresholds.RiskOn,
			Caution: pd.VIXThresholds.Caution,
			Stress:  pd.VIXThresholds.Stress,
		},
		IndexLevels: make(map[string]types.IndexLevels, len(pd.IndexLevels)),
	}
	for _, sd := range pd.Scenarios {
		alloc, err := sd.allocation.toAllocation()
		if err != nil {
			return types.StrategyPeriod{}, fmt.Errorf("scenario %s: %w", sd.name, err)
		}
		period.Scenarios = append(period.Scenarios, types.Scenario{Name: sd.name, Allocation: alloc})
	}
	for name, lv := range pd.IndexLevels {
		period.IndexLevels[name] = types.IndexLevels{Buy: lv.Buy, Sell: lv.Sell, Stop: lv.Stop}
	}
	return period, nil
}

func (a allocationDoc) toAllocation() (types.Allocation, error) {
	var alloc types.Allocation
	for _, w := range a {
		sym, err := types.ParseSymbol(w.symbol)
		if err != nil {
			return types.Allocation{}, err
		}
		alloc.Set(sym, w.pct)
	}
	return alloc, nil
}
