/*
scheduler.go - Background accrual scheduler

PURPOSE:
  Runs the daily accrual passes (monthly credit, quarter reset, reset
  notices) on a fixed interval. Each tick runs the passes for the current
  UTC date; log gating inside the engine makes overlapping or repeated
  ticks for the same date harmless.

LIFECYCLE:
  Start() launches the loop goroutine and runs one pass immediately.
  Stop() signals the loop and waits for the in-flight run to finish.

SEE ALSO:
  - leave/accrual.go: The passes themselves and their idempotency gates
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
)

// AccrualScheduler runs the daily accrual passes on an interval.
type AccrualScheduler struct {
	accrual  *leave.AccrualEngine
	interval time.Duration
	logger   *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewAccrualScheduler creates a scheduler. Interval <= 0 defaults to 24h.
func NewAccrualScheduler(accrual *leave.AccrualEngine, interval time.Duration, logger *zap.Logger) *AccrualScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccrualScheduler{
		accrual:  accrual,
		interval: interval,
		logger:   logger.Named("scheduler"),
		stop:     make(chan struct{}),
	}
}

// Start launches the background loop. The first run happens immediately.
func (s *AccrualScheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("accrual scheduler started", zap.Duration("interval", s.interval))
}

// Stop signals the loop and blocks until the in-flight run completes.
func (s *AccrualScheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("accrual scheduler stopped")
}

// RunNow runs one pass synchronously, outside the schedule.
func (s *AccrualScheduler) RunNow(ctx context.Context) (*leave.RunSummary, error) {
	return s.accrual.RunDaily(ctx, engine.Today())
}

func (s *AccrualScheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *AccrualScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := s.accrual.RunDaily(ctx, engine.Today())
	if err != nil {
		s.logger.Error("scheduled accrual run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled accrual run completed",
		zap.Int("credited", summary.Credited),
		zap.Int("carried_forward", summary.CarriedForward),
		zap.Int("notices_sent", summary.NoticesSent),
		zap.Int("failures", len(summary.Failures)))
}
