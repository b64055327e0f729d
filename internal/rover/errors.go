package rover

import (
	"sync"
	"time"

	"rover/internal/logging"
)

// errorLimiter logs hardware errors from task bodies at most once per
// interval, reporting how many were suppressed in between.
type errorLimiter struct {
	logger   *logging.Logger
	interval time.Duration

	mu         sync.Mutex
	last       time.Time
	suppressed int
	total      uint64
}

func newErrorLimiter(logger *logging.Logger, interval time.Duration) *errorLimiter {
	return &errorLimiter{logger: logger, interval: interval}
}

// Report logs err under msg if the interval has passed. A nil err is ignored.
func (l *errorLimiter) Report(msg string, err error) {
	if err == nil {
		return
	}

	l.mu.Lock()
	l.total++
	now := time.Now()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		l.suppressed++
		l.mu.Unlock()
		return
	}
	suppressed := l.suppressed
	l.suppressed = 0
	l.last = now
	l.mu.Unlock()

	l.logger.Warn(msg, "error", err, "suppressed", suppressed)
}

// Total counts every error reported, logged or not.
func (l *errorLimiter) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
