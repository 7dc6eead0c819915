package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidInput is returned when a coordinate, angle or direction is
	// non-finite or otherwise unusable.
	ErrInvalidInput = errors.New("invalid input")
	// ErrParallelSightLines is returned when the two look directions are
	// numerically parallel and no unique intersection exists.
	ErrParallelSightLines = errors.New("no unique intersection: lines of sight parallel")
	// ErrTargetBehindObserver is returned when a solved range is negative.
	ErrTargetBehindObserver = errors.New("target behind observer")
)

const (
	// DefaultParallelTolerance bounds |d1 × d2| below which the sight lines
	// are treated as parallel.
	DefaultParallelTolerance = 1e-9
	// DefaultBehindTolerance is how far below zero (metres) a range may fall
	// before it is reported as behind the observer.
	DefaultBehindTolerance = 1e-6

	unitTolerance = 1e-6
)

// BehindObserverError reports which station saw the solved target behind
// itself. It matches ErrTargetBehindObserver with errors.Is.
type BehindObserverError struct {
	Station int     // 1 or 2
	RangeM  float64 // signed distance along the line of sight
}

func (e *BehindObserverError) Error() string {
	return fmt.Sprintf("%s: station %d range %.3f m", ErrTargetBehindObserver, e.Station, e.RangeM)
}

// Is makes errors.Is(err, ErrTargetBehindObserver) succeed.
func (e *BehindObserverError) Is(target error) bool {
	return target == ErrTargetBehindObserver
}

// Options tunes the numeric tolerances of Triangulate. Zero fields take
// their defaults.
type Options struct {
	ParallelTolerance float64
	BehindTolerance   float64
}

// DefaultOptions returns the default solver tolerances.
func DefaultOptions() Options {
	return Options{
		ParallelTolerance: DefaultParallelTolerance,
		BehindTolerance:   DefaultBehindTolerance,
	}
}

func (o Options) withDefaults() Options {
	if o.ParallelTolerance <= 0 {
		o.ParallelTolerance = DefaultParallelTolerance
	}
	if o.BehindTolerance <= 0 {
		o.BehindTolerance = DefaultBehindTolerance
	}
	return o
}

// Solution is the least-squares estimate of where two sight lines meet.
type Solution struct {
	// Range1 and Range2 are the distances (metres) from each observer to its
	// estimate along its line of sight.
	Range1, Range2 float64

	// Point1 = O1 + Range1·d1 and Point2 = O2 + Range2·d2.
	Point1, Point2 Vec3

	// Midpoint is halfway between Point1 and Point2.
	Midpoint Vec3

	// MissDistance is |Point1 - Point2|, the closest approach of the lines.
	MissDistance float64

	// Collinear is set when the lines lie on one another and face each
	// other; the ranges are then the minimum-norm solution.
	Collinear bool
}

// Triangulate finds the ranges (t1, t2) minimising
// |(o1 + t1·d1) - (o2 + t2·d2)|² for unit directions d1 and d2.
//
// If a range is negative beyond the behind tolerance the full Solution is
// returned together with a *BehindObserverError so the caller can decide
// whether to keep it.
func Triangulate(o1, d1, o2, d2 Vec3, opts Options) (Solution, error) {
	opts = opts.withDefaults()

	if err := validateInputs(o1, d1, o2, d2); err != nil {
		return Solution{}, err
	}

	b := o2.Sub(o1)

	var (
		sol Solution
		err error
	)
	if d1.Cross(d2).Norm() < opts.ParallelTolerance {
		sol, err = solveParallel(o1, d1, o2, d2, b, opts)
	} else {
		sol, err = solveLeastSquares(o1, d1, o2, d2, b)
	}
	if err != nil {
		return Solution{}, err
	}

	switch {
	case sol.Range1 < -opts.BehindTolerance:
		return sol, &BehindObserverError{Station: 1, RangeM: sol.Range1}
	case sol.Range2 < -opts.BehindTolerance:
		return sol, &BehindObserverError{Station: 2, RangeM: sol.Range2}
	}
	return sol, nil
}

func validateInputs(o1, d1, o2, d2 Vec3) error {
	for i, v := range []Vec3{o1, d1, o2, d2} {
		if !v.IsFinite() {
			return fmt.Errorf("%w: %s has non-finite component %+v", ErrInvalidInput, inputName(i), v)
		}
	}
	for i, d := range []Vec3{d1, d2} {
		if n := d.Norm(); math.Abs(n-1) > unitTolerance {
			return fmt.Errorf("%w: direction %d is not a unit vector (|d|=%g)", ErrInvalidInput, i+1, n)
		}
	}
	return nil
}

func inputName(i int) string {
	return [...]string{"observer 1", "direction 1", "observer 2", "direction 2"}[i]
}

// solveLeastSquares solves [d1 | -d2]·[t1 t2]ᵀ ≈ o2 - o1 by QR.
func solveLeastSquares(o1, d1, o2, d2, b Vec3) (Solution, error) {
	m := mat.NewDense(3, 2, []float64{
		d1.X, -d2.X,
		d1.Y, -d2.Y,
		d1.Z, -d2.Z,
	})
	rhs := mat.NewVecDense(3, []float64{b.X, b.Y, b.Z})

	var qr mat.QR
	qr.Factorize(m)

	var t mat.VecDense
	if err := qr.SolveVecTo(&t, false, rhs); err != nil {
		// Only reachable when the directions are nearly parallel.
		return Solution{}, fmt.Errorf("%w: %v", ErrParallelSightLines, err)
	}

	return newSolution(o1, d1, o2, d2, t.AtVec(0), t.AtVec(1), false), nil
}

// solveParallel handles rank-deficient geometry. Lines that are
// anti-parallel, collinear and facing each other have a family of
// minimisers t1 + t2 = d1·b; the minimum-norm member is returned. Any other
// parallel configuration has no unique intersection.
func solveParallel(o1, d1, o2, d2, b Vec3, opts Options) (Solution, error) {
	along := d1.Dot(b)
	facing := d1.Dot(d2) < 0 && along > 0
	collinear := b.Cross(d1).Norm() <= opts.ParallelTolerance*b.Norm()
	if !facing || !collinear {
		return Solution{}, ErrParallelSightLines
	}
	return newSolution(o1, d1, o2, d2, along/2, along/2, true), nil
}

func newSolution(o1, d1, o2, d2 Vec3, t1, t2 float64, collinear bool) Solution {
	p1 := o1.Add(d1.Scale(t1))
	p2 := o2.Add(d2.Scale(t2))
	return Solution{
		Range1:       t1,
		Range2:       t2,
		Point1:       p1,
		Point2:       p2,
		Midpoint:     p1.Add(p2).Scale(0.5),
		MissDistance: p1.DistanceTo(p2),
		Collinear:    collinear,
	}
}
