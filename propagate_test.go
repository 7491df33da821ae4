package docksmaker

import (
	"errors"
	"math"
	"testing"

	"github.com/Moni003/docksmaker/integrator"
	"gonum.org/v1/gonum/floats/scalar"
)

func circularLEO() (State, float64) {
	a := 7e6
	s := State{Vector{a, 0, 0}, Vector{0, math.Sqrt(Earth.GM() / a), 0}}
	return s, 2 * math.Pi * math.Sqrt(a*a*a/Earth.GM())
}

func TestPropagateClosedOrbit(t *testing.T) {
	s0, period := circularLEO()
	prop := NewPropagator(GravityField{Central: Earth}, nil)
	prop.Tolerances.RelTol = 1e-12
	prop.Tolerances.AbsTol = 1e-9
	tr, err := prop.Propagate(s0, period, Terminal)
	if err != nil {
		t.Fatal(err)
	}
	if d := tr.Final.R.Sub(s0.R).Norm(); d > 1 {
		t.Fatalf("orbit not closed after one period: %f m", d)
	}
	if d := tr.Final.V.Sub(s0.V).Norm(); d > 1e-3 {
		t.Fatalf("velocity differs after one period: %f m/s", d)
	}
	if tr.Steps == 0 || len(tr.Times) != 0 || len(tr.States) != 0 {
		t.Fatalf("terminal mode retained %d states over %d steps", len(tr.States), tr.Steps)
	}
	if tr.TOF != period {
		t.Fatalf("final time %f != %f", tr.TOF, period)
	}
	score, err := ScoreTerminal.Score(s0.R, tr)
	if err != nil || score.Time != period || score.Value > 1 {
		t.Fatalf("unexpected terminal score %+v (%v)", score, err)
	}
}

func TestPropagateDense(t *testing.T) {
	s0, period := circularLEO()
	prop := NewPropagator(GravityField{Central: Earth}, nil)
	tr, err := prop.Propagate(s0, period/2, Dense)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Times) != len(tr.States) || len(tr.Times) != tr.Steps+1 {
		t.Fatalf("%d times, %d states for %d steps", len(tr.Times), len(tr.States), tr.Steps)
	}
	if tr.Times[0] != 0 || tr.States[0] != s0 {
		t.Fatal("dense trajectory does not start at the initial state")
	}
	if tr.Times[len(tr.Times)-1] != period/2 || tr.States[len(tr.States)-1] != tr.Final {
		t.Fatal("dense trajectory does not end at the final state")
	}
	for i := 1; i < len(tr.Times); i++ {
		if tr.Times[i] <= tr.Times[i-1] {
			t.Fatalf("times not increasing at %d", i)
		}
	}
	// Half a period later the spacecraft is on the other side.
	if !tr.Final.R.EqualWithinAbs(s0.R.Scale(-1), 10) {
		t.Fatalf("final position %s", tr.Final.R)
	}
}

func TestPropagateTwoBody(t *testing.T) {
	s0, err := NewElements(2.4e7, 0.7, 28.5, 10, 20, 30).State(Earth.GM())
	if err != nil {
		t.Fatal(err)
	}
	tof := 6 * 3600.0
	prop := NewPropagator(GravityField{Central: Earth}, nil)
	prop.Tolerances.RelTol = 1e-12
	prop.Tolerances.AbsTol = 1e-9
	numerical, err := prop.Propagate(s0, tof, Terminal)
	if err != nil {
		t.Fatal(err)
	}
	analytical, err := prop.PropagateTwoBody(s0, tof, Terminal)
	if err != nil {
		t.Fatal(err)
	}
	if d := numerical.Final.R.Sub(analytical.Final.R).Norm(); d > 10 {
		t.Fatalf("two-body and numerical propagations differ by %f m", d)
	}
	dense, err := prop.PropagateTwoBody(s0, tof, Dense)
	if err != nil {
		t.Fatal(err)
	}
	if len(dense.States) != twoBodySamples+1 || dense.Times[twoBodySamples] != tof {
		t.Fatalf("%d dense two-body samples", len(dense.States))
	}
	if dense.Final != analytical.Final {
		t.Fatalf("dense final %s differs from terminal %s", dense.Final, analytical.Final)
	}
}

func TestPropagateExcludedPerturbers(t *testing.T) {
	s0, period := circularLEO()
	broken, _ := NewAttractor(Mars, EphemerisFunc(func(float64) (Vector, error) {
		return Vector{}, errors.New("no ephemeris")
	}))
	prop := NewPropagator(GravityField{Central: Earth, Perturbers: []Attractor{broken}}, nil)
	tr, err := prop.Propagate(s0, period/4, Terminal)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Excluded) != 1 || tr.Excluded[0] != "Mars" {
		t.Fatalf("excluded %v", tr.Excluded)
	}

	prop.Field.StrictEphemeris = true
	_, err = prop.Propagate(s0, period/4, Terminal)
	if KindOf(err) != PropagationFailed {
		t.Fatalf("expected PropagationFailed, got %v", err)
	}
	if !errors.Is(err, PartialPerturberData) {
		t.Fatalf("the perturber failure should be in the chain: %v", err)
	}
}

func TestPropagateFailures(t *testing.T) {
	s0, period := circularLEO()
	prop := NewPropagator(GravityField{Central: Earth}, nil)
	for _, tof := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := prop.Propagate(s0, tof, Terminal); KindOf(err) != InvalidInput {
			t.Fatalf("tof=%f: expected InvalidInput, got %v", tof, err)
		}
		if _, err := prop.PropagateTwoBody(s0, tof, Terminal); KindOf(err) != InvalidInput {
			t.Fatalf("two-body tof=%f: expected InvalidInput, got %v", tof, err)
		}
	}
	if _, err := prop.Propagate(State{R: Vector{math.NaN(), 0, 0}}, period, Terminal); KindOf(err) != InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
	prop.Tolerances.MaxSteps = 3
	_, err := prop.Propagate(s0, period, Terminal)
	if KindOf(err) != PropagationFailed || !errors.Is(err, integrator.ErrMaxSteps) {
		t.Fatalf("expected PropagationFailed on the step budget, got %v", err)
	}
	// Straight through the center.
	prop.Tolerances = DefaultTolerances()
	_, err = prop.Propagate(State{R: Vector{7e6, 0, 0}, V: Vector{-1e3, 0, 0}}, 86400, Terminal)
	if KindOf(err) != PropagationFailed {
		t.Fatalf("expected PropagationFailed through the center, got %v", err)
	}
}

func TestKeplerPropagate(t *testing.T) {
	μ := Earth.GM()
	for _, el := range []Elements{
		NewElements(7e6, 0, 0, 0, 0, 0),
		NewElements(2.4e7, 0.7, 28.5, 10, 20, 30),
		NewElements(-2e7, 1.5, 45, 10, 20, 30),
	} {
		s0, err := el.State(μ)
		if err != nil {
			t.Fatal(err)
		}
		energy := func(s State) float64 {
			return s.V.Dot(s.V)/2 - μ/s.R.Norm()
		}
		s1, err := KeplerPropagate(μ, s0, 3600)
		if err != nil {
			t.Fatalf("%s: %s", el, err)
		}
		if !scalar.EqualWithinRel(energy(s1), energy(s0), 1e-9) {
			t.Fatalf("%s: energy not conserved %f != %f", el, energy(s1), energy(s0))
		}
		back, err := KeplerPropagate(μ, s1, -3600)
		if err != nil {
			t.Fatalf("%s: backward %s", el, err)
		}
		if d := back.R.Sub(s0.R).Norm(); d > 1e-3 {
			t.Fatalf("%s: backward propagation misses by %f m", el, d)
		}
	}
	s0, period := circularLEO()
	s1, err := KeplerPropagate(μ, s0, period)
	if err != nil {
		t.Fatal(err)
	}
	if d := s1.R.Sub(s0.R).Norm(); d > 1e-3 {
		t.Fatalf("conic not closed after a period: %f m", d)
	}
	if s, _ := KeplerPropagate(μ, s0, 0); s != s0 {
		t.Fatal("null propagation changed the state")
	}
	if _, err := KeplerPropagate(-μ, s0, 10); KindOf(err) != InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
	if _, err := KeplerPropagate(μ, State{V: s0.V}, 10); KindOf(err) != DegenerateGeometry {
		t.Fatalf("expected DegenerateGeometry, got %v", err)
	}
}

func TestModeString(t *testing.T) {
	if Terminal.String() != "terminal" || Dense.String() != "dense" || Mode(9).String() != "mode(9)" {
		t.Fatal("mode strings")
	}
}
