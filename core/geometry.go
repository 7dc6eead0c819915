package core

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is an ECEF vector in metres. Arithmetic is delegated to gonum's r3.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) r3() r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

func vec(v r3.Vec) Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

func (v Vec3) Add(w Vec3) Vec3           { return vec(r3.Add(v.r3(), w.r3())) }
func (v Vec3) Sub(w Vec3) Vec3           { return vec(r3.Sub(v.r3(), w.r3())) }
func (v Vec3) Scale(f float64) Vec3      { return vec(r3.Scale(f, v.r3())) }
func (v Vec3) Dot(w Vec3) float64        { return r3.Dot(v.r3(), w.r3()) }
func (v Vec3) Cross(w Vec3) Vec3         { return vec(r3.Cross(v.r3(), w.r3())) }
func (v Vec3) Norm() float64             { return r3.Norm(v.r3()) }
func (v Vec3) DistanceTo(w Vec3) float64 { return v.Sub(w).Norm() }

// Unit returns v scaled to unit length; the zero vector stays zero.
func (v Vec3) Unit() Vec3 {
	if v.Norm() == 0 {
		return v
	}
	return vec(r3.Unit(v.r3()))
}

// IsFinite reports whether no component is NaN or ±Inf.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
