package docksmaker

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// Vector is a Cartesian 3-vector. Being an array, it is copied on assignment.
type Vector [3]float64

// Add returns v+w.
func (v Vector) Add(w Vector) Vector {
	return Vector{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Sub returns v-w.
func (v Vector) Sub(w Vector) Vector {
	return Vector{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Scale returns s*v.
func (v Vector) Scale(s float64) Vector {
	return Vector{s * v[0], s * v[1], s * v[2]}
}

// Dot performs the inner product.
func (v Vector) Dot(w Vector) float64 {
	return floats.Dot(v[:], w[:])
}

// Cross performs the cross product.
func (v Vector) Cross(w Vector) Vector {
	return Vector{v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0]}
}

// Norm returns the Euclidean norm.
func (v Vector) Norm() float64 {
	return floats.Norm(v[:], 2)
}

// Unit returns the unit vector, or the null vector if v is null.
func (v Vector) Unit() Vector {
	n := v.Norm()
	if scalar.EqualWithinAbs(n, 0, 1e-12) {
		return Vector{}
	}
	return v.Scale(1 / n)
}

// IsFinite returns false if any component is NaN or infinite.
func (v Vector) IsFinite() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// EqualWithinAbs returns whether each component of v is within tol of w.
func (v Vector) EqualWithinAbs(w Vector, tol float64) bool {
	return floats.EqualApprox(v[:], w[:], tol)
}

func (v Vector) String() string {
	return fmt.Sprintf("[%g %g %g]", v[0], v[1], v[2])
}

// State is the Cartesian state of a spacecraft relative to the central attractor (m and m/s).
type State struct {
	R, V Vector
}

// NewState returns a state from slices, which must be of length three.
func NewState(r, v []float64) State {
	if len(r) != 3 || len(v) != 3 {
		panic("state vectors must be of length 3")
	}
	return State{Vector{r[0], r[1], r[2]}, Vector{v[0], v[1], v[2]}}
}

// IsFinite returns whether both the position and the velocity are finite.
func (s State) IsFinite() bool {
	return s.R.IsFinite() && s.V.IsFinite()
}

// Slice returns the state as a six element slice [r, v].
func (s State) Slice() []float64 {
	return []float64{s.R[0], s.R[1], s.R[2], s.V[0], s.V[1], s.V[2]}
}

// StateFromSlice is the inverse of Slice.
func StateFromSlice(x []float64) State {
	return State{Vector{x[0], x[1], x[2]}, Vector{x[3], x[4], x[5]}}
}

func (s State) String() string {
	return fmt.Sprintf("R=%s V=%s", s.R, s.V)
}
