package engine

import (
	"time"
)

// =============================================================================
// DATE - Day-granularity time point (leave is booked in whole days)
// =============================================================================

// Date is a calendar day, normalized to UTC midnight. All comparisons and
// arithmetic operate on whole days.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now().UTC()) }

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DaysBetween returns the whole-day distance from 'from' to 'to'.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// SpanDays returns the inclusive day count of [from, to].
func SpanDays(from, to Date) int { return DaysBetween(from, to) + 1 }

// =============================================================================
// CALENDAR BOUNDARIES - Month, quarter, year
// =============================================================================

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month+1, 1).AddDays(-1)
}

// DaysInMonth returns the number of days in the month containing d.
func DaysInMonth(d Date) int {
	return EndOfMonth(d.Year(), d.Month()).Day()
}

// QuarterEnd returns the last day of the calendar quarter containing d.
// Quarters end on the last day of months 3, 6, 9, and 12.
func QuarterEnd(d Date) Date {
	endMonth := ((int(d.Month())-1)/3)*3 + 3
	return EndOfMonth(d.Year(), time.Month(endMonth))
}

// IsQuarterEnd reports whether d is the final day of a calendar quarter.
func IsQuarterEnd(d Date) bool {
	return d.Equal(QuarterEnd(d))
}
