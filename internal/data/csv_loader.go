package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// CSVLoader CSV数据加载器，读取 <SYMBOL>.csv 与 vix/sp500/nasdaq/dow.csv
type CSVLoader struct {
	*MemorySource
	dataDir string
}

// NewCSVLoader 创建CSV加载器
func NewCSVLoader(dataDir string) *CSVLoader {
	return &CSVLoader{
		MemorySource: NewMemorySource(),
		dataDir:      dataDir,
	}
}

// SourceType 返回数据源类型
func (l *CSVLoader) SourceType() string {
	return "csv"
}

// LoadSymbols 加载标的开盘/收盘价
func (l *CSVLoader) LoadSymbols(symbols []types.Symbol) error {
	for _, symbol := range symbols {
		rows, err := l.readFile(string(symbol) + ".csv")
		if err != nil {
			return fmt.Errorf("failed to load data for %s: %w", symbol, err)
		}
		for _, r := range rows {
			if r.close > 0 {
				l.SetClose(symbol, r.date, r.close)
			}
			if r.open > 0 {
				l.SetOpen(symbol, r.date, r.open)
			}
		}
		log.Debug().Str("symbol", string(symbol)).Int("rows", len(rows)).Msg("loaded prices")
	}
	return nil
}

// LoadIndices 加载 VIX 与跟踪指数；文件缺失时跳过
func (l *CSVLoader) LoadIndices() error {
	names := append([]string{IndexVIX}, TrackedIndices...)
	for _, name := range names {
		rows, err := l.readFile(name + ".csv")
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("index", name).Msg("index data not found, triggers using it are disabled")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load index %s: %w", name, err)
		}
		for _, r := range rows {
			if r.close > 0 {
				l.SetIndex(name, r.date, r.close)
			}
		}
	}
	return nil
}

// MissingDays 区间内前向填充后仍没有任何收盘价的交易日
func (l *CSVLoader) MissingDays(start, end time.Time) []time.Time {
	var missing []time.Time
	for _, d := range l.TradingDays(start, end) {
		if len(l.ClosePrices(d)) == 0 {
			missing = append(missing, d)
		}
	}
	return missing
}

type csvRow struct {
	date  time.Time
	open  float64
	close float64
}

func (l *CSVLoader) readFile(name string) ([]csvRow, error) {
	filePath := filepath.Join(l.dataDir, name)
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()
	return parseCSV(file)
}

func parseCSV(r io.Reader) ([]csvRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file has no data rows")
	}

	colIndex := parseHeader(records[0])
	if _, ok := colIndex["date"]; !ok {
		return nil, fmt.Errorf("CSV header has no date column")
	}
	if _, ok := colIndex["close"]; !ok {
		return nil, fmt.Errorf("CSV header has no close column")
	}

	rows := make([]csvRow, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		row, err := parseRow(records[i], colIndex)
		if err != nil {
			log.Debug().Int("line", i+1).Err(err).Msg("skipping CSV row")
			continue // 跳过解析错误的行
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseHeader 解析CSV表头
func parseHeader(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "date", "timestamp":
			colIndex["date"] = i
		case "open":
			colIndex["open"] = i
		case "close", "value":
			colIndex["close"] = i
		}
	}
	return colIndex
}

// parseRow 解析CSV行
func parseRow(row []string, colIndex map[string]int) (csvRow, error) {
	var out csvRow
	idx := colIndex["date"]
	if idx >= len(row) {
		return out, fmt.Errorf("short row")
	}
	t, err := parseDate(row[idx])
	if err != nil {
		return out, err
	}
	out.date = t

	idx = colIndex["close"]
	if idx >= len(row) {
		return out, fmt.Errorf("short row")
	}
	out.close, err = strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return out, fmt.Errorf("invalid close %q: %w", row[idx], err)
	}
	if idx, ok := colIndex["open"]; ok && idx < len(row) {
		out.open, _ = strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	}
	return out, nil
}

// parseDate 解析日期字符串
func parseDate(dateStr string) (time.Time, error) {
	formats := []string{
		types.DateLayout,
		"2006/01/02",
		"01/02/2006",
		"2006-01-02 15:04:05",
	}

	dateStr = strings.TrimSpace(dateStr)
	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return types.DayOf(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
