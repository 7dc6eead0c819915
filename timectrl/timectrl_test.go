package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

var start = time.Date(1999, time.February, 16, 17, 40, 45, 0, time.UTC)

func TestSweepTimesInclusive(t *testing.T) {
	s := NewSweep(start, 10*time.Second, 30*time.Second)

	got := s.Times()
	if len(got) != 4 {
		t.Fatalf("len(Times()) = %d, want 4", len(got))
	}
	if !got[0].Equal(start) || !got[3].Equal(start.Add(30*time.Second)) {
		t.Fatalf("Times() = %v, want start..start+30s", got)
	}
}

func TestSweepZeroDurationSingleSample(t *testing.T) {
	s := NewSweep(start, time.Second, 0)
	if got := s.Times(); len(got) != 1 || !got[0].Equal(start) {
		t.Fatalf("Times() = %v, want [start]", got)
	}
}

func TestSweepRunUpdatesNow(t *testing.T) {
	s := NewSweep(start, 5*time.Millisecond, 15*time.Millisecond)

	var clock SimClock = s
	calls := 0
	err := s.Run(context.Background(), func(at time.Time) error {
		calls++
		if got := clock.Now(); !got.Equal(at) {
			t.Fatalf("Now() = %v during callback for %v", got, at)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 4 {
		t.Fatalf("callback ran %d times, want 4", calls)
	}
	if want := start.Add(15 * time.Millisecond); !clock.Now().Equal(want) {
		t.Fatalf("Now() = %v after run, want %v", clock.Now(), want)
	}
}

func TestSweepRunStopsOnError(t *testing.T) {
	s := NewSweep(start, time.Second, time.Minute)
	boom := errors.New("boom")

	calls := 0
	err := s.Run(context.Background(), func(time.Time) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("Run err=%v calls=%d, want boom after 3 calls", err, calls)
	}
}

func TestSweepRunHonoursCancellation(t *testing.T) {
	s := NewSweep(start, time.Second, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := s.Run(ctx, func(time.Time) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("Run err=%v calls=%d, want context.Canceled after 1 call", err, calls)
	}
}

func TestSweepValidate(t *testing.T) {
	for _, s := range []*Sweep{
		NewSweep(start, 0, time.Minute),
		NewSweep(start, -time.Second, time.Minute),
		NewSweep(start, time.Second, -time.Minute),
	} {
		if err := s.Validate(); !errors.Is(err, ErrInvalidSweep) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidSweep", s, err)
		}
		if got := s.Times(); got != nil {
			t.Errorf("Times() = %v for invalid sweep, want nil", got)
		}
	}
}
