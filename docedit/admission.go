package docedit

import (
	"context"
	"log/slog"
	"time"
)

// Admission is a counting semaphore bounding concurrent editing sessions.
// It is the only state shared across requests; everything downstream of it
// is request-local.
//
// Slots are a buffered channel: the runtime wakes goroutines blocked on a
// full channel in arrival order, which gives waiting requests FIFO fairness
// without extra bookkeeping.
type Admission struct {
	slots   chan struct{}
	maxWait time.Duration
	logger  *slog.Logger
}

// NewAdmission creates a controller with the given capacity. Acquire fails
// with ErrOverloaded after maxWait so an overloaded service degrades with a
// distinct error instead of queueing unboundedly.
func NewAdmission(capacity int, maxWait time.Duration, logger *slog.Logger) *Admission {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admission{
		slots:   make(chan struct{}, capacity),
		maxWait: maxWait,
		logger:  logger,
	}
}

// Acquire blocks until a slot is free, the wait budget is exhausted
// (ErrOverloaded), or ctx is cancelled.
func (a *Admission) Acquire(ctx context.Context) error {
	select {
	case a.slots <- struct{}{}:
		return nil
	default:
	}

	a.logger.Debug("admission: waiting for slot", "in_flight", len(a.slots))
	timer := time.NewTimer(a.maxWait)
	defer timer.Stop()

	select {
	case a.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrOverloaded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. A release without a matching acquire is a bug in
// the caller; it is logged and ignored rather than allowed to corrupt the
// count.
func (a *Admission) Release() {
	select {
	case <-a.slots:
	default:
		a.logger.Error("admission: release without matching acquire")
	}
}

// InFlight reports the number of outstanding permits.
func (a *Admission) InFlight() int {
	return len(a.slots)
}

// Capacity reports the configured maximum.
func (a *Admission) Capacity() int {
	return cap(a.slots)
}
