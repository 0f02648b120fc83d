package core

import (
	"fmt"
	"strings"
	"time"
)

type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
	PeriodCustom  Period = "custom"
)

// MaxCustomRangeDays caps custom report ranges.
const MaxCustomRangeDays = 366

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From Date
	To   Date
}

// ParsePeriod maps a query value to a Period. Empty input selects the month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear, PeriodCustom:
		return p, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// MonthRange returns the calendar month containing t.
func MonthRange(t time.Time) DateRange {
	first := NewDate(t.Year(), int(t.Month()), 1)
	return DateRange{From: first, To: Date{Time: first.AddDate(0, 1, -1)}}
}

// WeekRange returns Monday to Sunday around t.
func WeekRange(t time.Time) DateRange {
	d := DateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	monday := d.AddDays(-offset)
	return DateRange{From: monday, To: monday.AddDays(6)}
}

// QuarterRange returns the calendar quarter containing t.
func QuarterRange(t time.Time) DateRange {
	startMonth := (int(t.Month())-1)/3*3 + 1
	first := NewDate(t.Year(), startMonth, 1)
	return DateRange{From: first, To: Date{Time: first.AddDate(0, 3, -1)}}
}

// YearRange returns January 1st to December 31st of t's year.
func YearRange(t time.Time) DateRange {
	return DateRange{From: NewDate(t.Year(), 1, 1), To: NewDate(t.Year(), 12, 31)}
}

// ResolvePeriod turns a period selection into a concrete range relative to now.
// from and to are only read for PeriodCustom.
func ResolvePeriod(p Period, now time.Time, from, to string) (DateRange, error) {
	switch p {
	case PeriodWeek:
		return WeekRange(now), nil
	case PeriodMonth:
		return MonthRange(now), nil
	case PeriodQuarter:
		return QuarterRange(now), nil
	case PeriodYear:
		return YearRange(now), nil
	case PeriodCustom:
		f, err := ParseDate(from)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: start date", ErrInvalidPeriod)
		}
		t, err := ParseDate(to)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: end date", ErrInvalidPeriod)
		}
		r := DateRange{From: f, To: t}
		if t.Before(f.Time) {
			return DateRange{}, fmt.Errorf("%w: start date is after end date", ErrInvalidPeriod)
		}
		if r.Days() > MaxCustomRangeDays {
			return DateRange{}, fmt.Errorf("%w: range longer than %d days", ErrInvalidPeriod, MaxCustomRangeDays)
		}
		return r, nil
	default:
		return DateRange{}, ErrInvalidPeriod
	}
}

// Days counts the days in the range, both ends included.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From.Time).Hours()/24) + 1
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From.Time) && !d.After(r.To.Time)
}

func (r DateRange) Label() string {
	if r.From.Year() == r.To.Year() && r.From.Month() == r.To.Month() && r.From.Day() == 1 &&
		r.To.AddDays(1).Day() == 1 {
		return r.From.Format("January 2006")
	}
	return r.From.Format("Jan 2, 2006") + " - " + r.To.Format("Jan 2, 2006")
}
