package docksmaker

import (
	"fmt"
	"math"
	"sort"
)

// Attractor is a perturbing body with its position source.
type Attractor struct {
	CelestialObject
	Ephemeris Ephemeris
}

// NewAttractor returns a perturbing attractor. A nil ephemeris places it at the origin.
func NewAttractor(c CelestialObject, e Ephemeris) (Attractor, error) {
	if !(c.μ > 0) || math.IsInf(c.μ, 0) {
		return Attractor{}, newError("attractor", InvalidInput, nil, "body", c.Name, "mu", c.μ)
	}
	if e == nil {
		e = StaticPosition{}
	}
	return Attractor{c, e}, nil
}

// GravityField is the point-mass field of the central attractor (at the origin) and the perturbers.
type GravityField struct {
	Central    CelestialObject
	Perturbers []Attractor
	// IndirectTerm adds the acceleration of the central body due to each perturber,
	// required when the central body frame is not inertial.
	IndirectTerm bool
	// StrictEphemeris fails the evaluation instead of excluding a perturber whose position is unavailable.
	StrictEphemeris bool
}

// Validate checks the gravitational parameters.
func (g GravityField) Validate() error {
	if !(g.Central.μ > 0) || math.IsInf(g.Central.μ, 0) {
		return newError("gravity", InvalidInput, nil, "body", g.Central.Name, "mu", g.Central.μ)
	}
	for _, p := range g.Perturbers {
		if !(p.μ > 0) || math.IsInf(p.μ, 0) {
			return newError("gravity", InvalidInput, nil, "body", p.Name, "mu", p.μ)
		}
	}
	return nil
}

// Acceleration returns the gravitational acceleration at r, t seconds after the epoch.
// Perturbers whose position could not be resolved are excluded from the sum and named in
// the returned slice, unless StrictEphemeris is set.
func (g GravityField) Acceleration(t float64, r Vector) (acc Vector, excluded []string, err error) {
	rNorm := r.Norm()
	if rNorm == 0 {
		return acc, nil, newError("gravity", DegenerateGeometry, fmt.Errorf("position coincides with %s", g.Central.Name))
	}
	acc = r.Scale(-g.Central.μ / (rNorm * rNorm * rNorm))
	for _, p := range g.Perturbers {
		pa, perr := p.acceleration(t, r, g.IndirectTerm)
		if perr != nil {
			if KindOf(perr) == PartialPerturberData && !g.StrictEphemeris {
				excluded = append(excluded, p.Name)
				continue
			}
			return acc, excluded, perr
		}
		acc = acc.Add(pa)
	}
	return acc, excluded, nil
}

func (p Attractor) acceleration(t float64, r Vector, indirect bool) (Vector, error) {
	rp, err := p.Ephemeris.PositionAt(t)
	if err != nil {
		return Vector{}, newError("gravity", PartialPerturberData, err, "body", p.Name, "t", t)
	}
	if !rp.IsFinite() {
		return Vector{}, newError("gravity", PartialPerturberData, fmt.Errorf("non finite position"), "body", p.Name, "t", t)
	}
	d := r.Sub(rp)
	dNorm := d.Norm()
	if dNorm == 0 {
		return Vector{}, newError("gravity", DegenerateGeometry, fmt.Errorf("position coincides with %s", p.Name), "t", t)
	}
	a := d.Scale(-p.μ / (dNorm * dNorm * dNorm))
	if indirect {
		if rpNorm := rp.Norm(); rpNorm > 0 {
			a = a.Sub(rp.Scale(p.μ / (rpNorm * rpNorm * rpNorm)))
		}
	}
	return a, nil
}

// Contribution is the acceleration due to a single body.
type Contribution struct {
	Name         string
	Acceleration Vector
	Magnitude    float64
}

// Contributions returns the acceleration contribution of each body at r, sorted by decreasing magnitude.
// Perturbers whose position is unavailable are omitted.
func (g GravityField) Contributions(t float64, r Vector) ([]Contribution, error) {
	rNorm := r.Norm()
	if rNorm == 0 {
		return nil, newError("gravity", DegenerateGeometry, fmt.Errorf("position coincides with %s", g.Central.Name))
	}
	central := r.Scale(-g.Central.μ / (rNorm * rNorm * rNorm))
	contribs := []Contribution{{g.Central.Name, central, central.Norm()}}
	for _, p := range g.Perturbers {
		a, err := p.acceleration(t, r, g.IndirectTerm)
		if err != nil {
			if KindOf(err) == PartialPerturberData {
				continue
			}
			return nil, err
		}
		contribs = append(contribs, Contribution{p.Name, a, a.Norm()})
	}
	sort.SliceStable(contribs, func(i, j int) bool {
		return contribs[i].Magnitude > contribs[j].Magnitude
	})
	return contribs, nil
}
