package cadence

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidUnit  = errors.New("无效的周期单位")
	ErrInvalidCount = errors.New("周期倍数必须大于 0")
)

// Unit 周期单位
type Unit string

const (
	Day   Unit = "day"
	Week  Unit = "week"
	Month Unit = "month"
)

// Period 由单位和倍数组成的周期，如每 2 周
type Period struct {
	Unit  Unit
	Count int
}

// Monthly 默认周期：每 1 个日历月
func Monthly() Period {
	return Period{Unit: Month, Count: 1}
}

// Parse 解析单位（接受 day/days/daily 等写法）和倍数
func Parse(unit string, count int) (Period, error) {
	if count <= 0 {
		return Period{}, ErrInvalidCount
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "day", "days", "daily":
		return Period{Unit: Day, Count: count}, nil
	case "week", "weeks", "weekly":
		return Period{Unit: Week, Count: count}, nil
	case "", "month", "months", "monthly":
		return Period{Unit: Month, Count: count}, nil
	}
	return Period{}, ErrInvalidUnit
}

// Nth 返回 start 之后第 n 个周期的时间点。
// 月份按 start 的日期计算并截断到目标月最后一天，不会累积漂移（1/31 → 2/28 → 3/31）。
func (p Period) Nth(start time.Time, n int) time.Time {
	steps := n * p.Count
	switch p.Unit {
	case Day:
		return start.AddDate(0, 0, steps)
	case Week:
		return start.AddDate(0, 0, 7*steps)
	default:
		return AddMonths(start, steps)
	}
}

// Next 下一个周期时间点
func (p Period) Next(t time.Time) time.Time {
	return p.Nth(t, 1)
}

// String 如 "2 week"
func (p Period) String() string {
	return strconv.Itoa(p.Count) + " " + string(p.Unit)
}

// AddMonths 增加日历月，日期溢出时截断到目标月的最后一天
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	lastDay := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), t.Location())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
