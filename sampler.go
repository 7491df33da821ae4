package docksmaker

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Candidate is a sampled initial state with what it was drawn from.
type Candidate struct {
	Initial  State
	Elements *Elements // Set by element samplers.
	DeltaV   *Vector   // Set by velocity delta samplers.
}

// Sampler draws candidate initial states. Samplers are called sequentially from a single generator.
type Sampler interface {
	Sample(rng *rand.Rand) (Candidate, error)
}

// Distribution is the law of each sampled component.
type Distribution uint8

const (
	// Uniform draws within the bounds.
	Uniform Distribution = iota
	// Normal draws around the mean with the spread as the standard deviation.
	Normal
)

func (d Distribution) String() string {
	if d == Normal {
		return "normal"
	}
	return "uniform"
}

// ParseDistribution returns the distribution from its name.
func ParseDistribution(s string) (Distribution, error) {
	switch s {
	case "", "uniform":
		return Uniform, nil
	case "normal", "gaussian":
		return Normal, nil
	default:
		return Uniform, fmt.Errorf("unknown distribution '%s'", s)
	}
}

// Range bounds a sampled value. Log draws uniformly in the logarithm, requiring 0 < Min.
type Range struct {
	Min, Max float64
	Log      bool
}

// Fixed returns a range which always draws v.
func Fixed(v float64) Range {
	return Range{Min: v, Max: v}
}

func (r Range) validate(name string) error {
	if !isFinite(r.Min, r.Max) || r.Max < r.Min {
		return fmt.Errorf("invalid %s range [%g, %g]", name, r.Min, r.Max)
	}
	if r.Log && !(r.Min > 0) {
		return fmt.Errorf("log-uniform %s range must be strictly positive", name)
	}
	return nil
}

func (r Range) draw(rng *rand.Rand) float64 {
	if r.Log {
		u := distuv.Uniform{Min: math.Log(r.Min), Max: math.Log(r.Max), Src: rng}
		return math.Exp(u.Rand())
	}
	return distuv.Uniform{Min: r.Min, Max: r.Max, Src: rng}.Rand()
}

// ElementSampler draws classical orbital elements, angles in degrees, and converts them with Mu.
type ElementSampler struct {
	Mu                     float64
	A, E, I, RAAN, AoP, Nu Range
}

// Validate checks the ranges.
func (s ElementSampler) Validate() error {
	if !(s.Mu > 0) {
		return newError("sampler", InvalidInput, fmt.Errorf("gravitational parameter must be strictly positive"))
	}
	names := []string{"a", "e", "i", "raan", "aop", "nu"}
	for i, r := range []Range{s.A, s.E, s.I, s.RAAN, s.AoP, s.Nu} {
		if err := r.validate(names[i]); err != nil {
			return newError("sampler", InvalidInput, err)
		}
	}
	return nil
}

// Sample implements the Sampler interface.
func (s ElementSampler) Sample(rng *rand.Rand) (Candidate, error) {
	el := NewElements(s.A.draw(rng), s.E.draw(rng), s.I.draw(rng), s.RAAN.draw(rng), s.AoP.draw(rng), s.Nu.draw(rng))
	st, err := el.State(s.Mu)
	return Candidate{Initial: st, Elements: &el}, err
}

// spread draws each component of mean, spread by the matching component of width.
func spread(rng *rand.Rand, dist Distribution, mean, width Vector) (v Vector) {
	for i := range v {
		if dist == Normal {
			v[i] = distuv.Normal{Mu: mean[i], Sigma: math.Max(width[i], math.SmallestNonzeroFloat64), Src: rng}.Rand()
		} else {
			v[i] = distuv.Uniform{Min: mean[i] - width[i], Max: mean[i] + width[i], Src: rng}.Rand()
		}
	}
	return
}

func validateSpread(w Vector) error {
	for _, c := range w {
		if !isFinite(c) || c < 0 {
			return newError("sampler", InvalidInput, fmt.Errorf("invalid spread %s", w))
		}
	}
	return nil
}

// PerturbationSampler draws states around a mean state.
type PerturbationSampler struct {
	Mean                           State
	PositionSpread, VelocitySpread Vector
	Distribution                   Distribution
}

// Validate checks the spreads.
func (s PerturbationSampler) Validate() error {
	if !s.Mean.IsFinite() {
		return newError("sampler", InvalidInput, fmt.Errorf("non finite mean state"))
	}
	if err := validateSpread(s.PositionSpread); err != nil {
		return err
	}
	return validateSpread(s.VelocitySpread)
}

// Sample implements the Sampler interface.
func (s PerturbationSampler) Sample(rng *rand.Rand) (Candidate, error) {
	r := spread(rng, s.Distribution, s.Mean.R, s.PositionSpread)
	v := spread(rng, s.Distribution, s.Mean.V, s.VelocitySpread)
	return Candidate{Initial: State{r, v}}, nil
}

// VelocityDeltaSampler keeps the initial position and perturbs the initial velocity only.
type VelocityDeltaSampler struct {
	Base   State
	Spread Vector // Per component, zero leaves a component untouched.
	// Distribution of each delta.
	Distribution Distribution
}

// Validate checks the spread.
func (s VelocityDeltaSampler) Validate() error {
	if !s.Base.IsFinite() {
		return newError("sampler", InvalidInput, fmt.Errorf("non finite base state"))
	}
	return validateSpread(s.Spread)
}

// Sample implements the Sampler interface.
func (s VelocityDeltaSampler) Sample(rng *rand.Rand) (Candidate, error) {
	Δv := spread(rng, s.Distribution, Vector{}, s.Spread)
	return Candidate{Initial: State{s.Base.R, s.Base.V.Add(Δv)}, DeltaV: &Δv}, nil
}
