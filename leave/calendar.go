/*
calendar.go - Non-working date lookup

PURPOSE:
  Supplies the set of non-working dates (weekends + configured holidays)
  for a year. Pure and deterministic for a fixed holiday set, cached per
  year. The holiday source is a supplied collaborator; if it fails, the
  calendar degrades to weekend-only rather than erroring.
*/
package leave

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/engine"
)

// Holiday is a configured non-working date.
type Holiday struct {
	ID   string
	Date engine.Date
	Name string
}

// HolidaySource supplies configured holidays for a year.
type HolidaySource interface {
	Holidays(ctx context.Context, year int) ([]Holiday, error)
}

// EmptyHolidaySource is the no-holiday fallback.
type EmptyHolidaySource struct{}

func (EmptyHolidaySource) Holidays(context.Context, int) ([]Holiday, error) { return nil, nil }

// StoreHolidaySource reads holidays from the domain store.
type StoreHolidaySource struct {
	Store Store
}

func (s StoreHolidaySource) Holidays(ctx context.Context, year int) ([]Holiday, error) {
	return s.Store.ListHolidays(ctx, year)
}

// =============================================================================
// CALENDAR - Weekend + holiday set, cached per year
// =============================================================================

type Calendar struct {
	src    HolidaySource
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[int]map[engine.Date]bool
}

func NewCalendar(src HolidaySource, logger *zap.Logger) *Calendar {
	if src == nil {
		src = EmptyHolidaySource{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calendar{
		src:    src,
		logger: logger.Named("calendar"),
		cache:  make(map[int]map[engine.Date]bool),
	}
}

// NonWorkingDates returns every weekend and holiday date in the year.
// Holiday lookup failure degrades to weekend-only; never a hard error.
func (c *Calendar) NonWorkingDates(ctx context.Context, year int) map[engine.Date]bool {
	c.mu.RLock()
	if cached, ok := c.cache[year]; ok {
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	set := make(map[engine.Date]bool)
	for d := engine.StartOfYear(year); d.Year() == year; d = d.AddDays(1) {
		if d.IsWeekend() {
			set[d] = true
		}
	}

	holidays, err := c.src.Holidays(ctx, year)
	if err != nil {
		c.logger.Warn("holiday lookup failed, using weekend-only calendar",
			zap.Int("year", year), zap.Error(err))
		// Do not cache the degraded set; the source may recover.
		return set
	}
	for _, h := range holidays {
		if h.Date.Year() == year {
			set[h.Date] = true
		}
	}

	c.mu.Lock()
	c.cache[year] = set
	c.mu.Unlock()
	return set
}

// IsNonWorking reports whether d is a weekend or holiday.
func (c *Calendar) IsNonWorking(ctx context.Context, d engine.Date) bool {
	return c.NonWorkingDates(ctx, d.Year())[d]
}

// Invalidate drops the cached set for a year (holiday table changed).
func (c *Calendar) Invalidate(year int) {
	c.mu.Lock()
	delete(c.cache, year)
	c.mu.Unlock()
}
