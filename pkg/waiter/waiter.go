// Package waiter polls a remote resource at a fixed interval until it
// reaches a terminal state or a time budget runs out.
package waiter

import (
	"context"
	"fmt"
	"time"
)

// Default budgets.
const (
	DefaultInterval       = 10 * time.Second
	DefaultDeleteInterval = 5 * time.Second
	DefaultTimeout        = 300 * time.Second
)

// Clock abstracts time so tests can run the loop without sleeping.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Condition describes what to poll and how to classify each observation.
type Condition[T any] struct {
	// Fetch reads the current state.
	Fetch func(ctx context.Context) (T, error)
	// Done reports terminal success.
	Done func(T) bool
	// Failed reports terminal failure and its reason.
	Failed func(T) (bool, string)
	// Describe renders the state for progress output and errors.
	Describe func(T) string
	// Tolerate optionally maps a fetch error to a state. Deletion waits use
	// it to turn not-found into a DELETED observation.
	Tolerate func(error) (T, bool)
}

// Options bounds a wait.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    Clock
	// OnPoll is called after every observation.
	OnPoll func(attempt int, state string, elapsed time.Duration)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	return o
}

// FailureError is returned when the resource reaches a failure state.
type FailureError struct {
	State  string
	Reason string
}

func (e *FailureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("resource entered %s", e.State)
	}
	return fmt.Sprintf("resource entered %s: %s", e.State, e.Reason)
}

// TimeoutError is returned when the budget elapses without a terminal
// state.
type TimeoutError struct {
	LastState string
	Elapsed   time.Duration
	Attempts  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s (%d polls), last state %s",
		e.Elapsed.Round(time.Second), e.Attempts, e.LastState)
}

// Poll observes cond until Done or Failed holds, or opts.Timeout elapses.
// The first observation happens immediately. Fetch errors abort the wait
// unless cond.Tolerate accepts them.
func Poll[T any](ctx context.Context, cond Condition[T], opts Options) (T, error) {
	opts = opts.withDefaults()
	clock := opts.Clock
	start := clock.Now()

	var zero, last T
	lastDesc := "unknown"
	for attempt := 1; ; attempt++ {
		state, err := cond.Fetch(ctx)
		if err != nil {
			tolerated := false
			if cond.Tolerate != nil {
				state, tolerated = cond.Tolerate(err)
			}
			if !tolerated {
				return zero, err
			}
		}
		last = state

		desc := lastDesc
		if cond.Describe != nil {
			desc = cond.Describe(state)
		}
		lastDesc = desc
		elapsed := clock.Now().Sub(start)
		if opts.OnPoll != nil {
			opts.OnPoll(attempt, desc, elapsed)
		}

		if cond.Done(state) {
			return state, nil
		}
		if cond.Failed != nil {
			if failed, reason := cond.Failed(state); failed {
				return last, &FailureError{State: desc, Reason: reason}
			}
		}

		if elapsed >= opts.Timeout {
			return last, &TimeoutError{LastState: desc, Elapsed: elapsed, Attempts: attempt}
		}
		// The last sleep is cut short so the final poll lands on the deadline.
		if err := clock.Sleep(ctx, min(opts.Interval, opts.Timeout-elapsed)); err != nil {
			return last, err
		}
	}
}
