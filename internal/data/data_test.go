package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

func TestHolidays(t *testing.T) {
	cal := NewUSMarketCalendar()
	holidays := []time.Time{
		types.Date(2024, time.March, 29),    // Good Friday
		types.Date(2025, time.April, 18),    // Good Friday
		types.Date(2025, time.January, 20),  // MLK
		types.Date(2025, time.February, 17), // Presidents
		types.Date(2025, time.May, 26),      // Memorial
		types.Date(2022, time.June, 20),     // Juneteenth observed (Sunday)
		types.Date(2026, time.July, 3),      // Independence observed (Saturday)
		types.Date(2025, time.September, 1), // Labor
		types.Date(2025, time.November, 27), // Thanksgiving
		types.Date(2022, time.December, 26), // Christmas observed
		types.Date(2026, time.January, 1),
	}
	for _, h := range holidays {
		assert.True(t, cal.IsHoliday(h), h.Format(types.DateLayout))
		assert.False(t, cal.IsTradingDay(h), h.Format(types.DateLayout))
	}

	// 元旦逢周六不提前到上一年
	assert.True(t, cal.IsTradingDay(types.Date(2021, time.December, 31)))
	assert.False(t, cal.IsTradingDay(types.Date(2026, time.January, 3)))
	assert.True(t, cal.IsTradingDay(types.Date(2026, time.January, 2)))
}

func TestEarlyClose(t *testing.T) {
	cal := NewUSMarketCalendar()
	assert.True(t, cal.IsEarlyClose(types.Date(2025, time.November, 28)))
	assert.True(t, cal.IsEarlyClose(types.Date(2025, time.December, 24)))
	assert.True(t, cal.IsEarlyClose(types.Date(2025, time.July, 3)))
	assert.False(t, cal.IsEarlyClose(types.Date(2025, time.July, 7)))
}

func TestTradingDaysAndNext(t *testing.T) {
	cal := NewUSMarketCalendar()
	days := cal.TradingDays(types.Date(2025, time.April, 14), types.Date(2025, time.April, 22))
	// 04-18 Good Friday, 04-19/20 weekend
	require.Len(t, days, 6)
	assert.Equal(t, types.Date(2025, time.April, 17), days[3])
	assert.Equal(t, types.Date(2025, time.April, 21), days[4])

	assert.Equal(t, types.Date(2025, time.April, 21), cal.NextTradingDay(types.Date(2025, time.April, 17)))
	assert.Equal(t, types.Date(2025, time.April, 21), FirstTradingDayOnOrAfter(cal, types.Date(2025, time.April, 19)))
	assert.Equal(t, types.Date(2025, time.April, 17), FirstTradingDayOnOrAfter(cal, types.Date(2025, time.April, 17)))
}

func TestForwardFill(t *testing.T) {
	src := NewMemorySource()
	src.SetClose(types.SymbolSPY, types.Date(2026, time.January, 5), 500)
	src.SetClose(types.SymbolSPY, types.Date(2026, time.January, 12), 510)

	assert.Equal(t, 500.0, src.ClosePrices(types.Date(2026, time.January, 5))[types.SymbolSPY])
	assert.Equal(t, 500.0, src.ClosePrices(types.Date(2026, time.January, 8))[types.SymbolSPY])
	_, ok := src.ClosePrices(types.Date(2026, time.January, 9))[types.SymbolSPY]
	assert.False(t, ok)
	_, ok = src.ClosePrices(types.Date(2026, time.January, 2))[types.SymbolSPY]
	assert.False(t, ok)
	assert.Equal(t, 510.0, src.ClosePrices(types.Date(2026, time.January, 12))[types.SymbolSPY])
}

func TestOpenPricesNotForwardFilled(t *testing.T) {
	src := NewMemorySource()
	src.SetOpen(types.SymbolSPY, types.Date(2026, time.January, 6), 90)
	src.SetClose(types.SymbolSPY, types.Date(2026, time.January, 6), 100)

	assert.Equal(t, 90.0, src.OpenPrices(types.Date(2026, time.January, 6))[types.SymbolSPY])
	assert.Empty(t, src.OpenPrices(types.Date(2026, time.January, 7)))
	assert.Equal(t, 100.0, src.ClosePrices(types.Date(2026, time.January, 7))[types.SymbolSPY])
}

func TestSeriesOutOfOrderInsert(t *testing.T) {
	src := NewMemorySource()
	src.SetClose(types.SymbolQQQ, types.Date(2026, time.January, 7), 3)
	src.SetClose(types.SymbolQQQ, types.Date(2026, time.January, 5), 1)
	src.SetClose(types.SymbolQQQ, types.Date(2026, time.January, 6), 2)
	src.SetClose(types.SymbolQQQ, types.Date(2026, time.January, 6), 2.5)

	start, end, ok := src.GetDataRange(types.SymbolQQQ)
	require.True(t, ok)
	assert.Equal(t, types.Date(2026, time.January, 5), start)
	assert.Equal(t, types.Date(2026, time.January, 7), end)
	assert.Equal(t, 2.5, src.ClosePrices(types.Date(2026, time.January, 6))[types.SymbolQQQ])
}

func TestMarketLevel(t *testing.T) {
	src := NewMemorySource()
	d := types.Date(2026, time.January, 5)
	src.SetIndex(IndexVIX, d, 18.5)
	src.SetIndex(IndexSP500, d, 5800)

	level := src.MarketLevel(d)
	require.NotNil(t, level.VIX)
	assert.Equal(t, 18.5, *level.VIX)
	v, ok := level.Index(IndexSP500)
	assert.True(t, ok)
	assert.Equal(t, 5800.0, v)
	_, ok = level.Index(IndexDow)
	assert.False(t, ok)

	assert.Nil(t, src.MarketLevel(types.Date(2026, time.February, 5)).VIX)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCSVLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SPY.csv", strings.Join([]string{
		"Date,Open,High,Low,Close,Adj Close,Volume",
		"2026-01-05,499,505,498,500,498.2,1000",
		"2026-01-06,501,506,500,502,500.1,1000",
		"bad-date,1,1,1,1,1,1",
	}, "\n"))
	writeFile(t, dir, "vix.csv", "date,close\n2026-01-05,17.5\n2026/01/06,21\n")

	loader := NewCSVLoader(dir)
	require.NoError(t, loader.LoadSymbols([]types.Symbol{types.SymbolSPY}))
	require.NoError(t, loader.LoadIndices())
	assert.Equal(t, "csv", loader.SourceType())

	d := types.Date(2026, time.January, 6)
	assert.Equal(t, 502.0, loader.ClosePrices(d)[types.SymbolSPY])
	assert.Equal(t, 501.0, loader.OpenPrices(d)[types.SymbolSPY])
	require.NotNil(t, loader.MarketLevel(d).VIX)
	assert.Equal(t, 21.0, *loader.MarketLevel(d).VIX)

	missing := loader.MissingDays(types.Date(2026, time.January, 5), types.Date(2026, time.January, 12))
	assert.Equal(t, []time.Time{types.Date(2026, time.January, 12)}, missing)
}

func TestCSVLoaderMissingSymbol(t *testing.T) {
	loader := NewCSVLoader(t.TempDir())
	err := loader.LoadSymbols([]types.Symbol{types.SymbolGLD})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCSVLoaderRequiresCloseColumn(t *testing.T) {
	_, err := parseCSV(strings.NewReader("Date,Open\n2026-01-05,1\n"))
	require.Error(t, err)
}
