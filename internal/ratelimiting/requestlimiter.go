package ratelimiting

import (
	"context"
	"slices"
	"sync"
	"time"
)

// RequestLimiter allows at most limit operations to start within any window.
type RequestLimiter interface {
	// Limit waits for capacity and runs operation.
	//
	// Returns false without running operation if ctx is done first, or if ctx
	// has a deadline that cannot fit the wait plus maxOperationTime.
	Limit(ctx context.Context, maxOperationTime time.Duration, operation func()) bool
}

type windowLimitRequestLimiter struct {
	window    time.Duration
	nowFunc   func() time.Time
	afterFunc func(time.Duration) <-chan time.Time

	availableSlots chan struct{}
	// Sorted ascending. Holds one timestamp per slot not currently in use.
	finishedRequests []time.Time
	mutex            sync.Mutex
}

func NewWindowLimitRequestLimiter(
	limit int,
	window time.Duration,
	nowFunc func() time.Time,
	afterFunc func(time.Duration) <-chan time.Time,
) *windowLimitRequestLimiter {
	availableSlots := make(chan struct{}, limit)
	finishedRequests := make([]time.Time, limit)

	// Pretend every slot was last used a full window ago so the first requests run immediately
	longAgo := nowFunc().Add(-window)
	for i := range limit {
		availableSlots <- struct{}{}
		finishedRequests[i] = longAgo
	}

	return &windowLimitRequestLimiter{
		window:    window,
		nowFunc:   nowFunc,
		afterFunc: afterFunc,

		availableSlots:   availableSlots,
		finishedRequests: finishedRequests,
	}
}

func (l *windowLimitRequestLimiter) Limit(ctx context.Context, maxOperationTime time.Duration, operation func()) bool {
	select {
	case <-l.availableSlots:
		defer func() {
			l.availableSlots <- struct{}{}
		}()
	case <-ctx.Done():
		return false
	}

	oldestRequest, ok := l.takeOldestRequest(ctx, maxOperationTime)
	if !ok {
		return false
	}
	// Give back what we took unless we get to run the operation
	finishedAt := oldestRequest
	defer func() {
		l.putRequest(finishedAt)
	}()

	if wait := l.waitFor(oldestRequest); wait > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-l.afterFunc(wait):
		}
	}

	operation()

	finishedAt = l.nowFunc()
	return true
}

func (l *windowLimitRequestLimiter) waitFor(request time.Time) time.Duration {
	return l.window - l.nowFunc().Sub(request)
}

func (l *windowLimitRequestLimiter) takeOldestRequest(ctx context.Context, maxOperationTime time.Duration) (time.Time, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	oldestRequest := l.finishedRequests[0]

	if deadline, ok := ctx.Deadline(); ok {
		untilDeadline := deadline.Sub(l.nowFunc())
		if l.waitFor(oldestRequest)+maxOperationTime > untilDeadline {
			return time.Time{}, false
		}
	}

	l.finishedRequests = l.finishedRequests[1:]
	return oldestRequest, true
}

func (l *windowLimitRequestLimiter) putRequest(finishedAt time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	i, _ := slices.BinarySearchFunc(l.finishedRequests, finishedAt, func(a, b time.Time) int {
		return a.Compare(b)
	})
	l.finishedRequests = slices.Insert(l.finishedRequests, i, finishedAt)
}

// Type assertion
var _ RequestLimiter = (*windowLimitRequestLimiter)(nil)
