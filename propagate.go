package docksmaker

import (
	"fmt"
	"math"
	"sort"

	"github.com/Moni003/docksmaker/integrator"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Mode selects what a propagation retains.
type Mode uint8

const (
	// Terminal only retains the final state.
	Terminal Mode = iota + 1
	// Dense retains every accepted integration step.
	Dense
)

func (m Mode) String() string {
	switch m {
	case Terminal:
		return "terminal"
	case Dense:
		return "dense"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// twoBodySamples is the number of evenly spaced points of a dense two-body trajectory.
const twoBodySamples = 256

// Tolerances configures the adaptive integrator.
type Tolerances struct {
	RelTol, AbsTol   float64
	MinStep, MaxStep float64 // Seconds, zero for automatic.
	MaxSteps         int
}

// DefaultTolerances returns rtol = atol = 1e-9 with automatic step bounds.
func DefaultTolerances() Tolerances {
	return Tolerances{RelTol: 1e-9, AbsTol: 1e-9, MaxSteps: 1000000}
}

// Trajectory is the result of a propagation.
type Trajectory struct {
	Times    []float64 // Seconds since the epoch, only in Dense mode.
	States   []State   // Only in Dense mode.
	Final    State
	TOF      float64 // Time of Final, seconds since the epoch.
	Excluded []string // Perturbers dropped for lack of ephemeris.
	Steps    int
}

// Propagator integrates the equations of motion in a gravity field.
// It holds no mutable state and may be shared between goroutines.
type Propagator struct {
	Field      GravityField
	Tolerances Tolerances
	Logger     log.Logger
}

// NewPropagator returns a propagator with the default tolerances.
func NewPropagator(field GravityField, logger log.Logger) *Propagator {
	return &Propagator{Field: field, Tolerances: DefaultTolerances(), Logger: logger}
}

func (p *Propagator) integrator() integrator.DormandPrince {
	tol := p.Tolerances
	return integrator.DormandPrince{RelTol: tol.RelTol, AbsTol: tol.AbsTol, MinStep: tol.MinStep, MaxStep: tol.MaxStep, MaxSteps: tol.MaxSteps}
}

func checkPropagationInput(s0 State, tof float64) error {
	if !s0.IsFinite() {
		return newError("propagate", InvalidInput, fmt.Errorf("non finite initial state"), "state", s0)
	}
	if !(tof > 0) || math.IsInf(tof, 0) {
		return newError("propagate", InvalidInput, fmt.Errorf("time of flight must be strictly positive"), "tof", tof)
	}
	return nil
}

// Propagate integrates the initial state for tof seconds in the full gravity field.
func (p *Propagator) Propagate(s0 State, tof float64, mode Mode) (*Trajectory, error) {
	if err := checkPropagationInput(s0, tof); err != nil {
		return nil, err
	}
	if err := p.Field.Validate(); err != nil {
		return nil, err
	}
	logger := orNop(p.Logger)
	excluded := map[string]struct{}{}
	dynamics := func(t float64, y, dy []float64) error {
		r := Vector{y[0], y[1], y[2]}
		a, excl, err := p.Field.Acceleration(t, r)
		if err != nil {
			return err
		}
		for _, name := range excl {
			excluded[name] = struct{}{}
		}
		dy[0], dy[1], dy[2] = y[3], y[4], y[5]
		dy[3], dy[4], dy[5] = a[0], a[1], a[2]
		return nil
	}
	tr := &Trajectory{}
	var obs integrator.Observer
	if mode == Dense {
		obs = func(t float64, y []float64) {
			tr.Times = append(tr.Times, t)
			tr.States = append(tr.States, StateFromSlice(y))
		}
	}
	yf, stats, err := p.integrator().Integrate(dynamics, 0, s0.Slice(), tof, obs)
	tr.Steps = stats.Accepted
	tr.Excluded = sortedKeys(excluded)
	if err != nil {
		level.Debug(logger).Log("subsys", "prop", "status", "failed", "steps", stats.Accepted, "err", err)
		return tr, newError("propagate", PropagationFailed, err, "tof", tof)
	}
	tr.Final = StateFromSlice(yf)
	tr.TOF = tof
	if !tr.Final.IsFinite() {
		return tr, newError("propagate", PropagationFailed, fmt.Errorf("non finite final state"), "tof", tof)
	}
	if len(tr.Excluded) > 0 {
		level.Warn(logger).Log("subsys", "prop", "excluded", fmt.Sprintf("%v", tr.Excluded))
	}
	return tr, nil
}

// PropagateTwoBody propagates the initial state on the conic of the central attractor only.
// Dense trajectories are evenly sampled.
func (p *Propagator) PropagateTwoBody(s0 State, tof float64, mode Mode) (*Trajectory, error) {
	if err := checkPropagationInput(s0, tof); err != nil {
		return nil, err
	}
	μ := p.Field.Central.μ
	tr := &Trajectory{}
	if mode == Dense {
		tr.Times = make([]float64, 0, twoBodySamples+1)
		tr.States = make([]State, 0, twoBodySamples+1)
		for i := 0; i <= twoBodySamples; i++ {
			t := tof * float64(i) / twoBodySamples
			s, err := KeplerPropagate(μ, s0, t)
			if err != nil {
				return tr, newError("propagate", PropagationFailed, err, "tof", tof)
			}
			tr.Times = append(tr.Times, t)
			tr.States = append(tr.States, s)
		}
		tr.Final = tr.States[len(tr.States)-1]
		tr.TOF = tof
		tr.Steps = twoBodySamples
		return tr, nil
	}
	s, err := KeplerPropagate(μ, s0, tof)
	if err != nil {
		return tr, newError("propagate", PropagationFailed, err, "tof", tof)
	}
	tr.Final = s
	tr.TOF = tof
	tr.Steps = 1
	return tr, nil
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
