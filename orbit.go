package docksmaker

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

const (
	eccentricityε = 5e-5                         // 0.00005
	angleε        = (5e-3 / 360) * (2 * math.Pi) // 0.005 degrees
	// collinearε is the relative cross product magnitude under which two radii are considered collinear.
	collinearε = 1e-12
	// ladderSinε is the sine of the smallest angle between r0 and a point accepted by the true anomaly ladder.
	ladderSinε = 1e-6
)

// anomalyLadder lists the fallback true anomalies (degrees) tried when a target point is collinear with the origin point.
var anomalyLadder = []float64{0, 10, 30, 45, 90, 135, 180}

// axisLadder lists the true anomalies (degrees) tried when an element set maps onto the x axis.
var axisLadder = []float64{10, 30, 45, 60, 90}

// Elements defines an orbit via its classical orbital elements.
// The semi-major axis is in meters and all angles in radians.
type Elements struct {
	A    float64 // Semi-major axis
	E    float64 // Eccentricity
	I    float64 // Inclination
	RAAN float64 // Right ascension of the ascending node
	AoP  float64 // Argument of periapsis
	Nu   float64 // True anomaly
}

// NewElements returns the elements from angles in degrees.
func NewElements(a, e, i, Ω, ω, ν float64) Elements {
	return Elements{A: a, E: e, I: Deg2rad(i), RAAN: Deg2rad(Ω), AoP: Deg2rad(ω), Nu: Deg2rad(ν)}
}

// WithTrueAnomaly returns a copy of the elements at another true anomaly (radians).
func (el Elements) WithTrueAnomaly(ν float64) Elements {
	el.Nu = ν
	return el
}

// SemiParameter returns the semi parameter.
func (el Elements) SemiParameter() float64 {
	return el.A * (1 - el.E*el.E)
}

// Period returns the period of this orbit in seconds, or +Inf for open orbits.
func (el Elements) Period(μ float64) float64 {
	if el.E >= 1 || el.A <= 0 {
		return math.Inf(1)
	}
	return 2 * math.Pi * math.Sqrt(math.Pow(el.A, 3)/μ)
}

// Validate checks that the elements describe a physical conic.
func (el Elements) Validate() error {
	if !isFinite(el.A, el.E, el.I, el.RAAN, el.AoP, el.Nu) {
		return newError("elements", InvalidInput, nil, "elements", el)
	}
	if el.E < 0 || scalar.EqualWithinAbs(el.E, 1, eccentricityε) {
		return newError("elements", InvalidInput, fmt.Errorf("unsupported eccentricity %f", el.E))
	}
	if el.SemiParameter() <= 0 {
		return newError("elements", InvalidInput, fmt.Errorf("semi-major axis %f incompatible with eccentricity %f", el.A, el.E))
	}
	return nil
}

// Position returns the radius vector only.
func (el Elements) Position(μ float64) (Vector, error) {
	s, err := el.State(μ)
	return s.R, err
}

// State converts the elements to a Cartesian state (COE2RV, Vallado page 118).
func (el Elements) State(μ float64) (State, error) {
	if !(μ > 0) || math.IsInf(μ, 0) {
		return State{}, newError("coe2rv", InvalidInput, nil, "mu", μ)
	}
	if err := el.Validate(); err != nil {
		return State{}, err
	}
	p := el.SemiParameter()
	sinν, cosν := math.Sincos(el.Nu)
	denom := 1 + el.E*cosν
	if denom <= 0 {
		return State{}, newError("coe2rv", InvalidInput, fmt.Errorf("true anomaly %f beyond the asymptote", Rad2deg(el.Nu)))
	}
	R := Vector{p * cosν / denom, p * sinν / denom, 0}
	sqμp := math.Sqrt(μ / p)
	V := Vector{-sqμp * sinν, sqμp * (el.E + cosν), 0}
	return State{PQW2ECI(el.I, el.AoP, el.RAAN, R), PQW2ECI(el.I, el.AoP, el.RAAN, V)}, nil
}

// ProperPosition returns the radius vector of the elements, moving the true anomaly along a
// fixed ladder if the position falls onto the x axis. The true anomaly used is returned.
func (el Elements) ProperPosition(μ float64) (Vector, float64, error) {
	r, err := el.Position(μ)
	if err != nil {
		return Vector{}, el.Nu, err
	}
	if !onXAxis(r) {
		return r, el.Nu, nil
	}
	for _, νDeg := range axisLadder {
		ν := Deg2rad(νDeg)
		r, err = el.WithTrueAnomaly(ν).Position(μ)
		if err != nil {
			continue
		}
		if !onXAxis(r) {
			return r, ν, nil
		}
	}
	return r, el.Nu, newError("coe2rv", DegenerateGeometry, fmt.Errorf("position remains on the x axis"))
}

func onXAxis(r Vector) bool {
	n := r.Norm()
	return math.Abs(r[1]) <= collinearε*n && math.Abs(r[2]) <= collinearε*n
}

// Collinear returns whether both radii are collinear with the origin.
func Collinear(r0, r1 Vector) bool {
	return r0.Cross(r1).Norm() <= collinearε*r0.Norm()*r1.Norm()
}

// NonCollinearPoint returns a point on the orbit defined by the elements which is not collinear with r0.
// The elements' own true anomaly is tried first, followed by a fixed ladder of anomalies. The true anomaly
// (radians) which was accepted is also returned.
func NonCollinearPoint(μ float64, r0 Vector, el Elements) (r1 Vector, ν float64, err error) {
	if err = el.Validate(); err != nil {
		return Vector{}, el.Nu, err
	}
	for _, ν = range ladderCandidates(el.Nu) {
		r1, err = el.WithTrueAnomaly(ν).Position(μ)
		if err != nil {
			// Beyond the asymptote of an open orbit.
			continue
		}
		if r0.Cross(r1).Norm() > ladderSinε*r0.Norm()*r1.Norm() {
			return r1, ν, nil
		}
	}
	return Vector{}, ν, newError("ladder", DegenerateGeometry, fmt.Errorf("all true anomaly candidates are collinear with r0"), "r0", r0)
}

// ladderCandidates returns ν0 followed by the anomaly ladder (radians), without the rungs equal to ν0.
func ladderCandidates(ν0 float64) []float64 {
	candidates := make([]float64, 0, len(anomalyLadder)+1)
	candidates = append(candidates, ν0)
	for _, νDeg := range anomalyLadder {
		ν := Deg2rad(νDeg)
		if math.Abs(math.Remainder(ν-ν0, 2*math.Pi)) < angleε {
			continue
		}
		candidates = append(candidates, ν)
	}
	return candidates
}

// ElementsFromState returns orbital elements from the R and V vectors (RV2COE, Vallado page 113).
// Circular orbits have ω = 0 and ν is the argument of latitude (or the true longitude if equatorial).
// Equatorial orbits have Ω = 0 and ω is the longitude of periapsis.
func ElementsFromState(s State, μ float64) (Elements, error) {
	if !(μ > 0) || !s.IsFinite() {
		return Elements{}, newError("rv2coe", InvalidInput, nil, "mu", μ)
	}
	R, V := s.R, s.V
	r := R.Norm()
	v := V.Norm()
	if r == 0 {
		return Elements{}, newError("rv2coe", DegenerateGeometry, fmt.Errorf("null radius"))
	}
	hVec := R.Cross(V)
	h := hVec.Norm()
	if scalar.EqualWithinAbs(h, 0, 1e-12) {
		return Elements{}, newError("rv2coe", DegenerateGeometry, fmt.Errorf("rectilinear motion"))
	}
	n := Vector{0, 0, 1}.Cross(hVec)
	ξ := (v*v)/2 - μ/r
	a := math.Inf(1)
	if !scalar.EqualWithinAbs(ξ, 0, 1e-12) {
		a = -μ / (2 * ξ)
	}
	eVec := R.Scale(v*v - μ/r).Sub(V.Scale(R.Dot(V))).Scale(1 / μ)
	e := eVec.Norm()
	i := math.Acos(clamp(hVec[2] / h))

	var Ω, ω, ν float64
	equatorial := n.Norm() < 1e-12*h || i < angleε || math.Pi-i < angleε
	circular := e < eccentricityε
	switch {
	case equatorial && circular:
		// True longitude.
		ν = math.Atan2(R[1], R[0])
		if hVec[2] < 0 {
			ν = -ν
		}
	case equatorial:
		// Longitude of periapsis.
		ω = math.Atan2(eVec[1], eVec[0])
		if hVec[2] < 0 {
			ω = -ω
		}
		ν = trueAnomaly(eVec, R, V, e, r)
	case circular:
		Ω = raan(n)
		// Argument of latitude.
		ν = math.Acos(clamp(n.Dot(R) / (n.Norm() * r)))
		if R[2] < 0 {
			ν = 2*math.Pi - ν
		}
	default:
		Ω = raan(n)
		ω = math.Acos(clamp(n.Dot(eVec) / (n.Norm() * e)))
		if eVec[2] < 0 {
			ω = 2*math.Pi - ω
		}
		ν = trueAnomaly(eVec, R, V, e, r)
	}
	// Fix rounding errors.
	wrap := func(x float64) float64 {
		x = math.Mod(x, 2*math.Pi)
		if x < 0 {
			x += 2 * math.Pi
		}
		return x
	}
	return Elements{A: a, E: e, I: i, RAAN: wrap(Ω), AoP: wrap(ω), Nu: wrap(ν)}, nil
}

func raan(n Vector) float64 {
	Ω := math.Acos(clamp(n[0] / n.Norm()))
	if n[1] < 0 {
		Ω = 2*math.Pi - Ω
	}
	return Ω
}

func trueAnomaly(eVec, R, V Vector, e, r float64) float64 {
	ν := math.Acos(clamp(eVec.Dot(R) / (e * r)))
	if R.Dot(V) < 0 {
		ν = 2*math.Pi - ν
	}
	return ν
}

// clamp avoids NaNs from acos due to rounding.
func clamp(cos float64) float64 {
	if abscos := math.Abs(cos); abscos > 1 {
		return sign(cos)
	}
	return cos
}

// String implements the stringer interface.
func (el Elements) String() string {
	return fmt.Sprintf("a=%.1f e=%.4f i=%.3f Ω=%.3f ω=%.3f ν=%.3f", el.A, el.E, Rad2deg(el.I), Rad2deg(el.RAAN), Rad2deg(el.AoP), Rad2deg(el.Nu))
}
