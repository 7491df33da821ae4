package docksmaker

import (
	"fmt"
	"math"
)

// Branch selects the direction of motion of a zero revolution Lambert transfer.
type Branch uint8

const (
	// Auto picks the short way if the transfer is prograde about +Z, the long way otherwise.
	Auto Branch = iota
	// ShortWay is the transfer with a change in true anomaly under 180 degrees.
	ShortWay
	// LongWay is the transfer with a change in true anomaly over 180 degrees.
	LongWay
)

func (b Branch) String() string {
	switch b {
	case Auto:
		return "auto"
	case ShortWay:
		return "short"
	case LongWay:
		return "long"
	default:
		return fmt.Sprintf("branch(%d)", uint8(b))
	}
}

// ParseBranch returns the branch from its name.
func ParseBranch(s string) (Branch, error) {
	switch s {
	case "", "auto":
		return Auto, nil
	case "short", "prograde":
		return ShortWay, nil
	case "long", "retrograde":
		return LongWay, nil
	default:
		return Auto, fmt.Errorf("unknown Lambert branch '%s'", s)
	}
}

const lambertMaxIter = 10000

// TransferSpec is a two-point boundary value problem.
type TransferSpec struct {
	R0, R1     Vector
	TOF        float64 // Seconds
	Central    CelestialObject
	Perturbers []Attractor
}

// Validate checks the finite-ness of the radii, the time of flight and the gravitational parameters.
func (s TransferSpec) Validate() error {
	if !s.R0.IsFinite() || !s.R1.IsFinite() {
		return newError("transfer", InvalidInput, fmt.Errorf("non finite radius"), "r0", s.R0, "r1", s.R1)
	}
	if !(s.TOF > 0) || math.IsInf(s.TOF, 0) {
		return newError("transfer", InvalidInput, fmt.Errorf("time of flight must be strictly positive"), "tof", s.TOF)
	}
	return GravityField{Central: s.Central, Perturbers: s.Perturbers}.Validate()
}

// Solve solves the two-body Lambert problem of the transfer about its central body.
func (s TransferSpec) Solve(branch Branch) (v0, v1 Vector, err error) {
	if err = s.Validate(); err != nil {
		return
	}
	return SolveLambert(s.R0, s.R1, s.TOF, s.Central.μ, branch)
}

// SolveLambert solves the zero revolution Lambert boundary problem with the universal variable
// bisection method (Vallado algorithm 58). Given the initial and final radii, it returns the
// initial and final velocities of the conic joining them in tof seconds.
// Collinear radii are rejected with DegenerateGeometry since the transfer plane is undefined.
func SolveLambert(r0, r1 Vector, tof, μ float64, branch Branch) (v0, v1 Vector, err error) {
	if !r0.IsFinite() || !r1.IsFinite() || !isFinite(tof, μ) {
		err = newError("lambert", InvalidInput, fmt.Errorf("non finite input"))
		return
	}
	if !(tof > 0) {
		err = newError("lambert", InvalidInput, fmt.Errorf("time of flight must be strictly positive"), "tof", tof)
		return
	}
	if !(μ > 0) {
		err = newError("lambert", InvalidInput, fmt.Errorf("gravitational parameter must be strictly positive"), "mu", μ)
		return
	}
	rI := r0.Norm()
	rF := r1.Norm()
	if rI == 0 || rF == 0 || Collinear(r0, r1) {
		err = newError("lambert", DegenerateGeometry, fmt.Errorf("radii are collinear"), "r0", r0, "r1", r1)
		return
	}
	cosΔν := r0.Dot(r1) / (rI * rF)
	// Compute the direction of motion
	dm := 1.0
	switch branch {
	case LongWay:
		dm = -1
	case Auto:
		if r0.Cross(r1)[2] < 0 {
			dm = -1
		}
	}
	A := dm * math.Sqrt(rI*rF*(1+cosΔν))

	ψup := 4 * math.Pi * math.Pi
	ψlow := -4 * math.Pi
	ψ := 0.0
	c2, c3 := stumpff(ψ)
	sqμ := math.Sqrt(μ)
	Δtε := math.Max(1e-6, 1e-12*tof)
	var Δt, y float64
	for iter := 0; ; iter++ {
		if iter >= lambertMaxIter {
			err = newError("lambert", MaxIterationsReached, nil, "iterations", lambertMaxIter, "dt", Δt, "tof", tof)
			return
		}
		y = rI + rF + A*(ψ*c3-1)/math.Sqrt(c2)
		if A > 0 && y < 0 {
			// ψ is too small for a physical transfer.
			ψlow = ψ
		} else {
			χ := math.Sqrt(y / c2)
			Δt = (χ*χ*χ*c3 + A*math.Sqrt(y)) / sqμ
			if math.Abs(Δt-tof) <= Δtε {
				break
			}
			if Δt <= tof {
				ψlow = ψ
			} else {
				ψup = ψ
			}
		}
		ψNext := (ψup + ψlow) / 2
		if ψNext == ψ {
			// The interval collapsed: this is as close as it gets in floating point.
			if y < 0 || math.Abs(Δt-tof) > 1e-9*tof {
				err = newError("lambert", MaxIterationsReached, fmt.Errorf("bisection interval collapsed"), "dt", Δt, "tof", tof)
				return
			}
			break
		}
		ψ = ψNext
		c2, c3 = stumpff(ψ)
	}
	f := 1 - y/rI
	gDot := 1 - y/rF
	g := A * math.Sqrt(y/μ)
	// Compute velocities
	v0 = r1.Sub(r0.Scale(f)).Scale(1 / g)
	v1 = r1.Scale(gDot).Sub(r0).Scale(1 / g)
	if !v0.IsFinite() || !v1.IsFinite() {
		err = newError("lambert", DegenerateGeometry, fmt.Errorf("non finite velocity"), "r0", r0, "r1", r1)
	}
	return
}
