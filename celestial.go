package docksmaker

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// AU is one astronomical unit in meters.
	AU = 1.49597870700e11
)

// CelestialObject defines a celestial object by its gravitational parameter (m^3/s^2) and radius (m).
type CelestialObject struct {
	Name   string
	μ      float64
	Radius float64
}

// NewCelestialObject returns a new celestial object. μ must be strictly positive and finite.
func NewCelestialObject(name string, μ, radius float64) (CelestialObject, error) {
	if !(μ > 0) || !isFinite(μ, radius) {
		return CelestialObject{}, newError("celestial", InvalidInput, nil, "body", name, "mu", μ)
	}
	return CelestialObject{Name: name, μ: μ, Radius: radius}, nil
}

// GM returns μ (which is unexported because it's a lowercase letter)
func (c CelestialObject) GM() float64 {
	return c.μ
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.μ == b.μ
}

// BodyTable maps lower case body names to their definitions.
// The engine never looks up bodies itself: a table is built by the caller and injected.
type BodyTable map[string]CelestialObject

// DefaultBodies returns the predefined solar system bodies.
func DefaultBodies() BodyTable {
	return BodyTable{
		"sun":     Sun,
		"mercury": Mercury,
		"venus":   Venus,
		"earth":   Earth,
		"moon":    Moon,
		"mars":    Mars,
		"jupiter": Jupiter,
		"saturn":  Saturn,
		"uranus":  Uranus,
		"neptune": Neptune,
	}
}

// Get returns the object from its name, case insensitive.
func (t BodyTable) Get(name string) (CelestialObject, error) {
	if c, ok := t[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return CelestialObject{}, fmt.Errorf("undefined body '%s'", name)
}

// Set adds or overrides a body.
func (t BodyTable) Set(c CelestialObject) {
	t[strings.ToLower(c.Name)] = c
}

// Names returns the sorted names of the table.
func (t BodyTable) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

/* Definitions */

// Sun is our closest star.
var Sun = CelestialObject{"Sun", 1.3271244004194e20, 696000000}

// Mercury is the closest to the Sun.
var Mercury = CelestialObject{"Mercury", 2.2032080493345e13, 2440530}

// Venus is poisonous.
var Venus = CelestialObject{"Venus", 3.248586068371049e14, 6051800}

// Earth is home.
var Earth = CelestialObject{"Earth", 3.98659293629478e14, 6378136.3}

// Moon is Earth's.
var Moon = CelestialObject{"Moon", 4.843941639988467e12, 1738000}

// Mars is the vacation place.
var Mars = CelestialObject{"Mars", 4.28283132893115e13, 3396190}

// Jupiter is big.
var Jupiter = CelestialObject{"Jupiter", 1.26686536751784e17, 71492000}

// Saturn floats and that's really cool.
var Saturn = CelestialObject{"Saturn", 3.79312396775046e16, 60268000}

// Uranus is no joke.
var Uranus = CelestialObject{"Uranus", 5.79393921281797e15, 25559000}

// Neptune is far.
var Neptune = CelestialObject{"Neptune", 6.83509920358736e15, 24764000}
