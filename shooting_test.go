package docksmaker

import (
	"context"
	"errors"
	"math"
	"testing"
)

func leoShootingSetup(t *testing.T) (*Propagator, Vector, Vector, Vector, float64) {
	prop := NewPropagator(GravityField{Central: Earth}, nil)
	prop.Tolerances.RelTol = 1e-12
	prop.Tolerances.AbsTol = 1e-9
	r0 := Vector{7.0e6, 0, 0}
	vTrue := Vector{0, math.Sqrt(Earth.GM() / 7.0e6), 100}
	tof := 300.0
	tr, err := prop.Propagate(State{r0, vTrue}, tof, Terminal)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	return prop, r0, vTrue, tr.Final.R, tof
}

func TestShootProportional(t *testing.T) {
	prop, r0, vTrue, target, tof := leoShootingSetup(t)
	shooter := NewShooter(prop, nil)
	guess := vTrue.Add(Vector{0.5, -1, 0.3})
	rslt, err := shooter.Shoot(context.Background(), r0, guess, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !rslt.Converged || rslt.Status != Converged {
		t.Fatalf("not converged: %+v", rslt)
	}
	if rslt.Residual >= shooter.Tolerance {
		t.Fatalf("residual %f above tolerance", rslt.Residual)
	}
	if rslt.Iterations < 2 {
		t.Fatalf("a perturbed guess cannot converge in %d iteration", rslt.Iterations)
	}
	if d := rslt.V0.Sub(vTrue).Norm(); d > 1e-3 {
		t.Fatalf("corrected velocity is %f m/s from the truth", d)
	}
	if rslt.R0 != r0 {
		t.Fatal("initial position was modified")
	}

	// Shooting again from the solution is idempotent.
	again, err := shooter.Shoot(context.Background(), r0, rslt.V0, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !again.Converged || again.Iterations != 1 {
		t.Fatalf("expected convergence in one iteration, got %+v", again)
	}
	if again.V0 != rslt.V0 {
		t.Fatalf("velocity changed: %s != %s", again.V0, rslt.V0)
	}
}

func TestShootNewton(t *testing.T) {
	prop, r0, vTrue, target, tof := leoShootingSetup(t)
	shooter := NewShooter(prop, nil)
	shooter.Method = Newton
	guess := vTrue.Add(Vector{5, -10, 3})
	rslt, err := shooter.Shoot(context.Background(), r0, guess, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !rslt.Converged || rslt.Iterations > 5 {
		t.Fatalf("Newton should converge quickly: %+v", rslt)
	}
}

func TestShootMaxIterations(t *testing.T) {
	prop, r0, vTrue, target, tof := leoShootingSetup(t)
	shooter := NewShooter(prop, nil)
	shooter.MaxIterations = 2
	shooter.Gain = 0.1
	guess := vTrue.Add(Vector{0, 50, 0})
	rslt, err := shooter.Shoot(context.Background(), r0, guess, target, tof)
	if !errors.Is(err, MaxIterationsReached) {
		t.Fatalf("expected max iterations, got %v", err)
	}
	if rslt.Converged || rslt.Status != NotConverged || rslt.Iterations != 2 {
		t.Fatalf("unexpected result %+v", rslt)
	}
	if math.IsInf(rslt.Residual, 0) || rslt.Residual <= shooter.Tolerance {
		t.Fatalf("best residual should be finite and above tolerance: %f", rslt.Residual)
	}
	if rslt.V0 == guess {
		t.Fatal("best iterate should be the corrected velocity")
	}
}

func TestShootPropagationFailure(t *testing.T) {
	prop, r0, vTrue, target, tof := leoShootingSetup(t)
	prop.Tolerances.MaxSteps = 1
	prop.Tolerances.MaxStep = 1
	rslt, err := NewShooter(prop, nil).Shoot(context.Background(), r0, vTrue, target, tof)
	if !errors.Is(err, PropagationFailed) {
		t.Fatalf("expected propagation failure, got %v", err)
	}
	if rslt.Converged || rslt.Status != Failed || rslt.Iterations != 1 {
		t.Fatalf("unexpected result %+v", rslt)
	}
}

func TestShootInvalid(t *testing.T) {
	prop, r0, vTrue, target, _ := leoShootingSetup(t)
	if _, err := NewShooter(prop, nil).Shoot(context.Background(), r0, vTrue, target, 0); !errors.Is(err, InvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rslt, err := NewShooter(prop, nil).Shoot(ctx, r0, vTrue, target, 300)
	if !errors.Is(err, context.Canceled) || rslt.Status != Cancelled {
		t.Fatalf("expected cancellation, got %v (%s)", err, rslt.Status)
	}
}
