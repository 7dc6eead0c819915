package locate

import (
	"context"
	"math"

	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/model"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Result is the outcome of locating one event in a batch.
type Result struct {
	Event model.Event
	Fix   Fix
	Err   error
}

// LocateAll resolves events concurrently with at most workers in flight
// (Options.Workers when workers < 1). Results keep the input order and carry
// per-event errors; the returned error is non-nil only when ctx ends before
// the batch completes.
func (l *Locator) LocateAll(ctx context.Context, events []model.Event, workers int) ([]Result, error) {
	if workers < 1 {
		workers = l.opts.Workers
	}
	results := make([]Result, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, ev := range events {
		g.Go(func() error {
			results[i].Event = ev
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Fix, results[i].Err = l.Locate(gctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	l.log.Info(ctx, "batch located",
		logging.Int("events", len(events)),
		logging.Int("workers", workers),
	)
	return results, ctx.Err()
}

// Summary aggregates a batch.
type Summary struct {
	Total    int
	Accepted int
	Failed   int
	Outcomes map[string]int

	// Miss-distance statistics over results that produced a solution.
	MeanMissM   float64
	StdDevMissM float64
	MaxMissM    float64
}

// Summarize computes batch statistics.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Outcomes: make(map[string]int)}

	var miss []float64
	for _, r := range results {
		s.Outcomes[Outcome(r.Err)]++
		if r.Err == nil && r.Fix.Accepted {
			s.Accepted++
		} else {
			s.Failed++
		}
		if r.Fix.Solved {
			miss = append(miss, r.Fix.Solution.MissDistance)
			s.MaxMissM = math.Max(s.MaxMissM, r.Fix.Solution.MissDistance)
		}
	}

	switch len(miss) {
	case 0:
	case 1:
		s.MeanMissM = miss[0]
	default:
		s.MeanMissM, s.StdDevMissM = stat.MeanStdDev(miss, nil)
	}
	return s
}
