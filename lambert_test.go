package docksmaker

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestLambertVallado(t *testing.T) {
	// From Vallado 4th edition, page 497 (km and km/s).
	μ := 3.98600433e5
	Ri := Vector{15945.34, 0, 0}
	Rf := Vector{12214.83899, 10249.46731, 0}
	ViExp := Vector{2.058913, 2.915965, 0}
	VfExp := Vector{-3.451565, 0.910315, 0}
	for _, branch := range []Branch{Auto, ShortWay} {
		Vi, Vf, err := SolveLambert(Ri, Rf, 76*60, μ, branch)
		if err != nil {
			t.Fatalf("[%s] err %s", branch, err)
		}
		if !Vi.EqualWithinAbs(ViExp, 1e-5) {
			t.Fatalf("[%s] incorrect Vi computed\nGot %s\nExp %s", branch, Vi, ViExp)
		}
		if !Vf.EqualWithinAbs(VfExp, 1e-5) {
			t.Fatalf("[%s] incorrect Vf computed\nGot %s\nExp %s", branch, Vf, VfExp)
		}
	}
	// Test with dm=-1
	ViExp = Vector{-3.811158, -2.003854, 0}
	VfExp = Vector{4.207569, 0.914724, 0}
	Vi, Vf, err := SolveLambert(Ri, Rf, 76*60, μ, LongWay)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !Vi.EqualWithinAbs(ViExp, 1e-5) {
		t.Fatalf("[%s] incorrect Vi computed\nGot %s\nExp %s", LongWay, Vi, ViExp)
	}
	if !Vf.EqualWithinAbs(VfExp, 1e-5) {
		t.Fatalf("[%s] incorrect Vf computed\nGot %s\nExp %s", LongWay, Vf, VfExp)
	}
}

func TestLambertRoundTrip(t *testing.T) {
	r0 := Vector{7.0e6, 0, 0}
	r1 := Vector{0, 8.0e6, 1.0e6}
	μ := Earth.GM()
	for branch, tof := range map[Branch]float64{ShortWay: 3000, LongWay: 6000} {
		v0, v1, err := SolveLambert(r0, r1, tof, μ, branch)
		if err != nil {
			t.Fatalf("[%s] err %s", branch, err)
		}
		// Analytical check.
		sf, err := KeplerPropagate(μ, State{r0, v0}, tof)
		if err != nil {
			t.Fatalf("[%s] kepler err %s", branch, err)
		}
		if d := sf.R.Sub(r1).Norm(); d > 1e-6*r1.Norm() {
			t.Fatalf("[%s] conic misses r1 by %f m", branch, d)
		}
		if d := sf.V.Sub(v1).Norm(); d > 1e-6*v1.Norm() {
			t.Fatalf("[%s] final velocity off by %f m/s", branch, d)
		}
		// Numerical check.
		prop := NewPropagator(GravityField{Central: Earth}, nil)
		prop.Tolerances.RelTol = 1e-12
		prop.Tolerances.AbsTol = 1e-9
		tr, err := prop.Propagate(State{r0, v0}, tof, Terminal)
		if err != nil {
			t.Fatalf("[%s] propagation err %s", branch, err)
		}
		if d := tr.Final.R.Sub(r1).Norm(); d > 1e-6*r1.Norm() {
			t.Fatalf("[%s] propagation misses r1 by %f m", branch, d)
		}
	}
}

func TestLambertCollinearScenario(t *testing.T) {
	r0 := Vector{7.0e6, 0, 0}
	r1 := Vector{4.2e7, 0, 0}
	μ := Earth.GM()
	if _, _, err := SolveLambert(r0, r1, 86400, μ, ShortWay); !errors.Is(err, DegenerateGeometry) {
		t.Fatalf("expected degenerate geometry for collinear radii, got %v", err)
	}
	// Move the target along its circular orbit until the geometry is usable.
	target := NewElements(4.2e7, 0, 0, 0, 0, 0)
	r1, ν, err := NonCollinearPoint(μ, r0, target)
	if err != nil {
		t.Fatalf("ladder err %s", err)
	}
	if !scalar.EqualWithinAbs(Rad2deg(ν), 10, 1e-9) {
		t.Fatalf("expected the ladder to stop at 10 degrees, got %f", Rad2deg(ν))
	}
	if !scalar.EqualWithinRel(r1.Norm(), 4.2e7, 1e-12) {
		t.Fatalf("ladder point left the orbit: %s", r1)
	}
	v0, v1, err := SolveLambert(r0, r1, 86400, μ, ShortWay)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !v0.IsFinite() || !v1.IsFinite() {
		t.Fatalf("non finite velocities %s %s", v0, v1)
	}
	if v0.Norm() >= 20000 {
		t.Fatalf("|v0|=%f m/s is not sane", v0.Norm())
	}
}

func TestLambertErrors(t *testing.T) {
	r0 := Vector{7.0e6, 0, 0}
	r1 := Vector{0, 8.0e6, 0}
	μ := Earth.GM()
	for _, tc := range []struct {
		name   string
		r0, r1 Vector
		tof, μ float64
		kind   Kind
	}{
		{"zero tof", r0, r1, 0, μ, InvalidInput},
		{"negative tof", r0, r1, -10, μ, InvalidInput},
		{"nan mu", r0, r1, 1000, math.NaN(), InvalidInput},
		{"zero mu", r0, r1, 1000, 0, InvalidInput},
		{"inf radius", Vector{math.Inf(1), 0, 0}, r1, 1000, μ, InvalidInput},
		{"opposite radii", r0, Vector{-8.0e6, 0, 0}, 1000, μ, DegenerateGeometry},
		{"null radius", Vector{}, r1, 1000, μ, DegenerateGeometry},
	} {
		_, _, err := SolveLambert(tc.r0, tc.r1, tc.tof, tc.μ, ShortWay)
		if !errors.Is(err, tc.kind) {
			t.Fatalf("[%s] expected %s, got %v", tc.name, tc.kind, err)
		}
	}
}

func TestTransferSpec(t *testing.T) {
	spec := TransferSpec{R0: Vector{7.0e6, 0, 0}, R1: Vector{0, 8.0e6, 0}, TOF: 3000, Central: Earth}
	if _, _, err := spec.Solve(Auto); err != nil {
		t.Fatalf("err %s", err)
	}
	spec.Central = CelestialObject{Name: "Void"}
	if _, _, err := spec.Solve(Auto); !errors.Is(err, InvalidInput) {
		t.Fatalf("expected invalid input for zero mu, got %v", err)
	}
}

func TestParseBranch(t *testing.T) {
	for in, exp := range map[string]Branch{"": Auto, "auto": Auto, "short": ShortWay, "long": LongWay} {
		if b, err := ParseBranch(in); err != nil || b != exp {
			t.Fatalf("ParseBranch(%q)=%s, %v", in, b, err)
		}
	}
	if _, err := ParseBranch("sideways"); err == nil {
		t.Fatal("expected an error")
	}
}
