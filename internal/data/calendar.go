package data

import (
	"time"

	"github.com/opsxjacky/weekly-strategy-backtest/pkg/types"
)

// Calendar 交易日历
type Calendar interface {
	IsTradingDay(d time.Time) bool
}

// USMarketCalendar 美股交易日历 (周末 + NYSE 休市日)
type USMarketCalendar struct{}

// NewUSMarketCalendar 创建美股交易日历
func NewUSMarketCalendar() USMarketCalendar {
	return USMarketCalendar{}
}

// IsTradingDay 是否为交易日
func (c USMarketCalendar) IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(d)
}

// IsHoliday 是否为休市日
func (c USMarketCalendar) IsHoliday(d time.Time) bool {
	d = types.DayOf(d)
	for _, h := range Holidays(d.Year()) {
		if h.Equal(d) {
			return true
		}
	}
	return false
}

// IsEarlyClose 是否提前收盘 (13:00 ET)
func (c USMarketCalendar) IsEarlyClose(d time.Time) bool {
	d = types.DayOf(d)
	year := d.Year()

	jul3 := types.Date(year, time.July, 3)
	if d.Equal(jul3) && isWeekday(jul3) {
		return true
	}
	if d.Equal(nthWeekday(year, time.November, time.Thursday, 4).AddDate(0, 0, 1)) {
		return true
	}
	dec24 := types.Date(year, time.December, 24)
	return d.Equal(dec24) && isWeekday(dec24)
}

// NextTradingDay 严格晚于 d 的下一个交易日
func (c USMarketCalendar) NextTradingDay(d time.Time) time.Time {
	return FirstTradingDayOnOrAfter(c, types.DayOf(d).AddDate(0, 0, 1))
}

// TradingDays [start, end] 内的交易日 (含两端)
func (c USMarketCalendar) TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := types.DayOf(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// FirstTradingDayOnOrAfter d 本身或之后的第一个交易日
func FirstTradingDayOnOrAfter(c Calendar, d time.Time) time.Time {
	d = types.DayOf(d)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Holidays 计算某年全部休市日
func Holidays(year int) []time.Time {
	return []time.Time{
		observed(types.Date(year, time.January, 1)),
		nthWeekday(year, time.January, time.Monday, 3),  // MLK
		nthWeekday(year, time.February, time.Monday, 3), // Presidents
		goodFriday(year),
		lastWeekday(year, time.May, time.Monday), // Memorial
		observed(types.Date(year, time.June, 19)),
		observed(types.Date(year, time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1),   // Labor
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		observed(types.Date(year, time.December, 25)),
	}
}

// observed 周六提前到周五，周日顺延到周一
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := types.Date(year, month, 1)
	ahead := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, ahead+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	last := types.Date(year, month+1, 1).AddDate(0, 0, -1)
	back := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -back)
}

// goodFriday 复活节前两天 (匿名公历算法)
func goodFriday(year int) time.Time {
	a := year % 19
	b, c := year/100, year%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return types.Date(year, time.Month(month), day).AddDate(0, 0, -2)
}

func isWeekday(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
