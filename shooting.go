package docksmaker

import (
	"context"
	"fmt"
	"math"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gonum.org/v1/gonum/mat"
)

// ShootingMethod is the velocity update rule of the corrector.
type ShootingMethod uint8

const (
	// Proportional adds gain*(target-achieved)/tof to the velocity.
	Proportional ShootingMethod = iota + 1
	// Newton solves the finite difference sensitivity of the final position to the initial velocity.
	Newton
)

func (m ShootingMethod) String() string {
	switch m {
	case Proportional:
		return "proportional"
	case Newton:
		return "newton"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// ParseShootingMethod returns the method from its name.
func ParseShootingMethod(s string) (ShootingMethod, error) {
	switch s {
	case "", "proportional":
		return Proportional, nil
	case "newton":
		return Newton, nil
	default:
		return 0, fmt.Errorf("unknown shooting method '%s'", s)
	}
}

// ShootStatus is the outcome of a shooting run.
type ShootStatus uint8

const (
	// Converged means the residual fell under the tolerance.
	Converged ShootStatus = iota + 1
	// NotConverged means the iteration budget was exhausted.
	NotConverged
	// Failed means a propagation failed.
	Failed
	// Cancelled means the context was done before convergence.
	Cancelled
)

func (s ShootStatus) String() string {
	switch s {
	case Converged:
		return "converged"
	case NotConverged:
		return "not converged"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ShootingResult is the corrected initial state.
// When not converged, V0 and Residual are those of the best iterate.
type ShootingResult struct {
	R0, V0     Vector
	Final      State // Propagated state of the returned V0.
	Converged  bool
	Iterations int // Number of nominal propagations.
	Residual   float64
	Status     ShootStatus
}

// Shooter corrects an initial velocity so that the propagated position reaches a target.
type Shooter struct {
	Propagator    *Propagator
	Tolerance     float64 // Meters
	MaxIterations int
	Gain          float64
	Method        ShootingMethod
	Perturbation  float64 // Finite difference step in m/s, Newton only.
	Logger        log.Logger
}

// NewShooter returns a proportional shooter with a tolerance of 1 mm, 50 iterations and a unit gain.
func NewShooter(p *Propagator, logger log.Logger) *Shooter {
	return &Shooter{Propagator: p, Tolerance: 1e-3, MaxIterations: 50, Gain: 1, Method: Proportional, Perturbation: 1e-3, Logger: logger}
}

func (s *Shooter) validate(r0, v0, target Vector, tof float64) error {
	if !r0.IsFinite() || !v0.IsFinite() || !target.IsFinite() {
		return newError("shoot", InvalidInput, fmt.Errorf("non finite vector"))
	}
	if !(tof > 0) || math.IsInf(tof, 0) {
		return newError("shoot", InvalidInput, fmt.Errorf("time of flight must be strictly positive"), "tof", tof)
	}
	if !(s.Tolerance > 0) || s.MaxIterations <= 0 || !(s.Gain > 0) {
		return newError("shoot", InvalidInput, fmt.Errorf("tolerance, gain and max iterations must be strictly positive"))
	}
	if s.Method == Newton && !(s.Perturbation > 0) {
		return newError("shoot", InvalidInput, fmt.Errorf("finite difference step must be strictly positive"))
	}
	if s.Propagator == nil {
		return newError("shoot", InvalidInput, fmt.Errorf("no propagator"))
	}
	return nil
}

// Shoot iterates Propagate, Compare and Adjust on the initial velocity until the final position is
// within the tolerance of the target. Propagation failures are not retried.
func (s *Shooter) Shoot(ctx context.Context, r0, v0, target Vector, tof float64) (ShootingResult, error) {
	rslt := ShootingResult{R0: r0, V0: v0, Residual: math.Inf(1)}
	if err := s.validate(r0, v0, target, tof); err != nil {
		rslt.Status = Failed
		return rslt, err
	}
	logger := log.With(orNop(s.Logger), "subsys", "shoot")
	v := v0
	for iter := 1; iter <= s.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			rslt.Status = Cancelled
			return rslt, err
		}
		tr, err := s.Propagator.Propagate(State{r0, v}, tof, Terminal)
		rslt.Iterations = iter
		if err != nil {
			level.Error(logger).Log("iter", iter, "err", err)
			rslt.Status = Failed
			return rslt, newError("shoot", PropagationFailed, err, "iteration", iter)
		}
		Δr := target.Sub(tr.Final.R)
		residual := Δr.Norm()
		level.Debug(logger).Log("iter", iter, "residual", residual)
		if residual < rslt.Residual {
			rslt.V0 = v
			rslt.Residual = residual
			rslt.Final = tr.Final
		}
		if residual < s.Tolerance {
			rslt.Converged = true
			rslt.Status = Converged
			level.Info(logger).Log("status", "converged", "iterations", iter, "residual", residual)
			return rslt, nil
		}
		if iter == s.MaxIterations {
			break
		}
		var Δv Vector
		switch s.Method {
		case Newton:
			if Δv, err = s.newtonStep(r0, v, tr.Final.R, Δr, tof); err != nil {
				level.Warn(logger).Log("iter", iter, "msg", "falling back to proportional update", "err", err)
				Δv = Δr.Scale(1 / tof)
			}
		default:
			Δv = Δr.Scale(1 / tof)
		}
		v = v.Add(Δv.Scale(s.Gain))
	}
	rslt.Status = NotConverged
	level.Warn(logger).Log("status", "not converged", "iterations", rslt.Iterations, "residual", rslt.Residual)
	return rslt, newError("shoot", MaxIterationsReached, nil, "iterations", rslt.Iterations, "residual", rslt.Residual)
}

// newtonStep returns the velocity correction from the inverse of the finite difference Jacobian ∂r_f/∂v_0.
func (s *Shooter) newtonStep(r0, v, rf, Δr Vector, tof float64) (Vector, error) {
	jacob := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ { // Vx, Vy, Vz
		vTmp := v
		vTmp[j] += s.Perturbation
		tr, err := s.Propagator.Propagate(State{r0, vTmp}, tof, Terminal)
		if err != nil {
			return Vector{}, err
		}
		for i := 0; i < 3; i++ {
			jacob.Set(i, j, (tr.Final.R[i]-rf[i])/s.Perturbation)
		}
	}
	// Invert Jacobian
	var invJacob mat.Dense
	if err := invJacob.Inverse(jacob); err != nil {
		return Vector{}, fmt.Errorf("could not invert jacobian: %w", err)
	}
	Δv := MxV33(&invJacob, Δr)
	if !Δv.IsFinite() {
		return Vector{}, fmt.Errorf("non finite correction")
	}
	return Δv, nil
}
