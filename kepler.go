package docksmaker

import (
	"fmt"
	"math"
)

const (
	keplerMaxIter = 100
	keplerε       = 1e-10
)

// KeplerPropagate propagates a state on a pure two-body conic by dt seconds using the
// universal variable formulation (Vallado algorithm 8).
func KeplerPropagate(μ float64, s0 State, dt float64) (State, error) {
	if !(μ > 0) || !s0.IsFinite() || !isFinite(dt) {
		return State{}, newError("kepler", InvalidInput, nil, "mu", μ, "dt", dt)
	}
	if dt == 0 {
		return s0, nil
	}
	R0, V0 := s0.R, s0.V
	r0 := R0.Norm()
	if r0 == 0 {
		return State{}, newError("kepler", DegenerateGeometry, fmt.Errorf("null radius"))
	}
	v0 := V0.Norm()
	sqμ := math.Sqrt(μ)
	rv := R0.Dot(V0)
	α := -v0*v0/μ + 2/r0

	var χ float64
	switch {
	case α > 1e-6:
		// Ellipse
		χ = sqμ * dt * α
	case α < -1e-6:
		// Hyperbola
		a := 1 / α
		χ = sign(dt) * math.Sqrt(-a) * math.Log((-2*μ*α*dt)/(rv+sign(dt)*math.Sqrt(-μ*a)*(1-r0*α)))
	default:
		// Parabola
		h := R0.Cross(V0).Norm()
		p := h * h / μ
		s := 0.5 * math.Atan(1/(3*math.Sqrt(μ/(p*p*p))*dt))
		w := math.Atan(math.Cbrt(math.Tan(s)))
		χ = math.Sqrt(p) * 2 / math.Tan(2*w)
	}
	if !isFinite(χ) {
		χ = sqμ * dt / r0
	}

	var ψ, c2, c3, r float64
	converged := false
	for iter := 0; iter < keplerMaxIter; iter++ {
		ψ = χ * χ * α
		c2, c3 = stumpff(ψ)
		r = χ*χ*c2 + rv/sqμ*χ*(1-ψ*c3) + r0*(1-ψ*c2)
		Δχ := (sqμ*dt - χ*χ*χ*c3 - rv/sqμ*χ*χ*c2 - r0*χ*(1-ψ*c3)) / r
		χ += Δχ
		if math.Abs(Δχ) <= keplerε*math.Max(1, math.Abs(χ)) {
			converged = true
			break
		}
	}
	if !converged || !isFinite(χ, r) {
		return State{}, newError("kepler", MaxIterationsReached, nil, "dt", dt, "chi", χ)
	}
	ψ = χ * χ * α
	c2, c3 = stumpff(ψ)
	r = χ*χ*c2 + rv/sqμ*χ*(1-ψ*c3) + r0*(1-ψ*c2)
	f := 1 - χ*χ/r0*c2
	g := dt - χ*χ*χ/sqμ*c3
	gDot := 1 - χ*χ/r*c2
	fDot := sqμ / (r * r0) * χ * (ψ*c3 - 1)
	return State{
		R: R0.Scale(f).Add(V0.Scale(g)),
		V: R0.Scale(fDot).Add(V0.Scale(gDot)),
	}, nil
}
