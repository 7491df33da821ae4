package docksmaker

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/planetposition"
)

// Ephemeris returns the position of a body relative to the central attractor,
// t seconds after the propagation epoch.
type Ephemeris interface {
	PositionAt(t float64) (Vector, error)
}

// StaticPosition is a body which does not move during the propagation.
type StaticPosition Vector

// PositionAt implements the Ephemeris interface.
func (p StaticPosition) PositionAt(float64) (Vector, error) {
	return Vector(p), nil
}

// EphemerisFunc adapts a function to the Ephemeris interface.
type EphemerisFunc func(t float64) (Vector, error)

// PositionAt implements the Ephemeris interface.
func (f EphemerisFunc) PositionAt(t float64) (Vector, error) {
	return f(t)
}

// VSOP87 returns positions from the VSOP87B series (heliocentric, ecliptic J2000).
// Positions are expressed relative to Center, or to the Sun if Center is nil.
// A nil Body denotes the Sun itself.
type VSOP87 struct {
	Body, Center *planetposition.V87Planet
	Epoch        time.Time
}

// PositionAt implements the Ephemeris interface.
func (e VSOP87) PositionAt(t float64) (Vector, error) {
	jd := julian.TimeToJD(e.Epoch.Add(time.Duration(t * float64(time.Second))))
	var body, center Vector
	if e.Body != nil {
		body = heliocentric(e.Body, jd)
	}
	if e.Center != nil {
		center = heliocentric(e.Center, jd)
	}
	r := body.Sub(center)
	if !r.IsFinite() {
		return Vector{}, fmt.Errorf("non finite VSOP87 position at JD %f", jd)
	}
	return r, nil
}

func heliocentric(p *planetposition.V87Planet, jd float64) Vector {
	l, b, r := p.Position2000(jd)
	r *= AU
	// Get the Cartesian coordinates from L,B,R.
	sB, cB := math.Sincos(b.Rad())
	sL, cL := math.Sincos(l.Rad())
	return Vector{r * cB * cL, r * cB * sL, r * sB}
}

// vsop87Index maps body names to the VSOP87 series index.
var vsop87Index = map[string]int{
	"mercury": planetposition.Mercury,
	"venus":   planetposition.Venus,
	"earth":   planetposition.Earth,
	"mars":    planetposition.Mars,
	"jupiter": planetposition.Jupiter,
	"saturn":  planetposition.Saturn,
	"uranus":  planetposition.Uranus,
	"neptune": planetposition.Neptune,
}

// LoadVSOP87 loads the VSOP87B series of the named planet from dir.
// The Sun returns a nil planet and no error.
func LoadVSOP87(name, dir string) (*planetposition.V87Planet, error) {
	name = strings.ToLower(name)
	if name == "sun" {
		return nil, nil
	}
	idx, ok := vsop87Index[name]
	if !ok {
		return nil, fmt.Errorf("no VSOP87 series for '%s'", name)
	}
	planet, err := planetposition.LoadPlanetPath(idx, dir)
	if err != nil {
		return nil, fmt.Errorf("could not load planet %s: %w", name, err)
	}
	return planet, nil
}
