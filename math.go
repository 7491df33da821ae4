package docksmaker

import (
	"math"
	"time"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/floats/scalar"
)

// sign returns the sign of a given number.
func sign(v float64) float64 {
	if scalar.EqualWithinAbs(v, 0, 1e-12) {
		return 1
	}
	return v / math.Abs(v)
}

// Deg2rad converts degrees to radians, and enforced only positive numbers.
func Deg2rad(a float64) float64 {
	return unit.AngleFromDeg(a).Mod1().Rad()
}

// Rad2deg converts radians to degrees, and enforced only positive numbers.
func Rad2deg(a float64) float64 {
	return unit.Angle(a).Mod1().Deg()
}

// Spherical2Cartesian returns the provided spherical coordinates (r, θ, φ) in Cartesian.
func Spherical2Cartesian(a Vector) (b Vector) {
	sθ, cθ := math.Sincos(a[1])
	sφ, cφ := math.Sincos(a[2])
	b[0] = a[0] * sθ * cφ
	b[1] = a[0] * sθ * sφ
	b[2] = a[0] * cθ
	return
}

// Cartesian2Spherical returns the provided Cartesian coordinates vector in spherical.
func Cartesian2Spherical(a Vector) (b Vector) {
	if a.Norm() == 0 {
		return Vector{}
	}
	b[0] = a.Norm()
	b[1] = math.Acos(a[2] / b[0])
	b[2] = math.Atan2(a[1], a[0])
	return
}

// stumpff returns the c2 and c3 Stumpff functions of ψ (Vallado algorithm 1).
func stumpff(ψ float64) (c2, c3 float64) {
	switch {
	case ψ > 1e-6:
		sψ := math.Sqrt(ψ)
		c2 = (1 - math.Cos(sψ)) / ψ
		c3 = (sψ - math.Sin(sψ)) / math.Sqrt(ψ*ψ*ψ)
	case ψ < -1e-6:
		sψ := math.Sqrt(-ψ)
		c2 = (1 - math.Cosh(sψ)) / ψ
		c3 = (math.Sinh(sψ) - sψ) / math.Sqrt(-ψ*ψ*ψ)
	default:
		c2 = 1 / 2.
		c3 = 1 / 6.
	}
	return
}

func isFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Seconds converts a floating point duration in seconds.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
