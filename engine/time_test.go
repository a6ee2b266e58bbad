package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuarterEnd(t *testing.T) {
	cases := []struct {
		in   Date
		want Date
	}{
		{NewDate(2025, time.January, 15), NewDate(2025, time.March, 31)},
		{NewDate(2025, time.March, 31), NewDate(2025, time.March, 31)},
		{NewDate(2025, time.April, 1), NewDate(2025, time.June, 30)},
		{NewDate(2025, time.September, 30), NewDate(2025, time.September, 30)},
		{NewDate(2025, time.December, 25), NewDate(2025, time.December, 31)},
	}
	for _, c := range cases {
		assert.True(t, QuarterEnd(c.in).Equal(c.want), "QuarterEnd(%s) = %s, want %s", c.in, QuarterEnd(c.in), c.want)
	}
}

func TestIsQuarterEnd(t *testing.T) {
	assert.True(t, IsQuarterEnd(NewDate(2025, time.June, 30)))
	assert.False(t, IsQuarterEnd(NewDate(2025, time.June, 29)))
	assert.True(t, IsQuarterEnd(NewDate(2025, time.December, 31)))
}

func TestDaysInMonth_LeapYear(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(NewDate(2024, time.February, 10)))
	assert.Equal(t, 28, DaysInMonth(NewDate(2025, time.February, 10)))
	assert.Equal(t, 31, DaysInMonth(NewDate(2025, time.January, 1)))
	assert.Equal(t, 30, DaysInMonth(NewDate(2025, time.April, 30)))
}

func TestSpanDays(t *testing.T) {
	from := NewDate(2025, time.March, 10)
	assert.Equal(t, 1, SpanDays(from, from))
	assert.Equal(t, 8, SpanDays(from, from.AddDays(7)))
}

func TestParseDate_RoundTrip(t *testing.T) {
	d, err := ParseDate("2025-03-10")
	assert.NoError(t, err)
	assert.Equal(t, "2025-03-10", d.String())

	_, err = ParseDate("10/03/2025")
	assert.Error(t, err)
}
