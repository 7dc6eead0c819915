package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInvalidSweep is returned for a sweep with a non-positive step or a
// negative duration.
var ErrInvalidSweep = errors.New("invalid sweep")

// SimClock is an interface for accessing the current sample time, so that
// observation generators can depend on a clock abstraction rather than on
// wall-clock time.
type SimClock interface {
	// Now returns the current sample time.
	Now() time.Time
}

// Sweep steps through [Start, Start+Duration] at a fixed Step. Sampling is
// deterministic and runs as fast as the callback allows.
type Sweep struct {
	Start    time.Time
	Step     time.Duration
	Duration time.Duration

	mu      sync.RWMutex
	current time.Time
}

// NewSweep constructs a sweep.
func NewSweep(start time.Time, step, duration time.Duration) *Sweep {
	return &Sweep{
		Start:    start,
		Step:     step,
		Duration: duration,
		current:  start,
	}
}

// Validate checks the sweep parameters.
func (s *Sweep) Validate() error {
	if s.Step <= 0 {
		return errors.Join(ErrInvalidSweep, errors.New("step must be positive"))
	}
	if s.Duration < 0 {
		return errors.Join(ErrInvalidSweep, errors.New("duration must not be negative"))
	}
	return nil
}

// Now returns the sample currently being processed. Implements SimClock.
func (s *Sweep) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.IsZero() {
		return s.Start
	}
	return s.current
}

// Times returns every sample time of the sweep, both ends included.
func (s *Sweep) Times() []time.Time {
	if s.Validate() != nil {
		return nil
	}
	n := int(s.Duration/s.Step) + 1
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.Start.Add(time.Duration(i)*s.Step))
	}
	return out
}

// Run invokes fn for each sample in order. It stops at the first error
// returned by fn or when ctx is cancelled.
func (s *Sweep) Run(ctx context.Context, fn func(time.Time) error) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, at := range s.Times() {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		s.current = at
		s.mu.Unlock()

		if err := fn(at); err != nil {
			return err
		}
	}
	return nil
}
