package docksmaker

import (
	"fmt"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

// anglesEqual returns whether two angles in radians are equal.
func anglesEqual(a, b float64) (bool, error) {
	diff := math.Mod(math.Abs(a-b), 2*math.Pi)
	if diff > math.Pi {
		diff = 2*math.Pi - diff
	}
	if diff < angleε {
		return true, nil
	}
	return false, fmt.Errorf("difference of %3.10f degrees", Rad2deg(diff))
}

func TestCross(t *testing.T) {
	i := Vector{1, 0, 0}
	j := Vector{0, 1, 0}
	k := Vector{0, 0, 1}
	if i.Cross(j) != k {
		t.Fatal("i x j != k")
	}
	if j.Cross(k) != i {
		t.Fatal("j x k != i")
	}
	if (Vector{2, 3, 4}).Cross(Vector{5, 6, 7}) != (Vector{-3, 6, -3}) {
		t.Fatal("cross fail")
	}
	// From Vallado
	got := Vector{6524.834, 6862.875, 6448.296}.Cross(Vector{4.901327, 5.533756, -1.976341})
	if !got.EqualWithinAbs(Vector{-4.924667792015100e4, 4.450050424118601e4, 0.246964476137900e4}, 1e-6) {
		t.Fatalf("cross fail: %s", got)
	}
}

func TestAngles(t *testing.T) {
	for i := 0.0; i <= 360; i += 0.5 {
		mi := math.Mod(i, 180)
		var expPi float64
		specificCase := true
		switch mi {
		case 0:
			expPi = 0
		case 30:
			expPi = 1 / 6.
		case 60:
			expPi = 1 / 3.
		case 90:
			expPi = 1 / 2.
		case 120:
			expPi = 2 / 3.
		case 150:
			expPi = 5 / 6.
		default:
			specificCase = false
		}
		if specificCase && i < 360 {
			if i >= 180 {
				expPi++
			}
			if !scalar.EqualWithinAbs(Deg2rad(i)/math.Pi, expPi, 1e-10) {
				t.Fatalf("%f deg %f rad %f exp=%f", mi, Deg2rad(i)/math.Pi, Rad2deg(Deg2rad(i)), expPi)
			}
		}
		if ok, _ := anglesEqual(Deg2rad(i), Deg2rad(Rad2deg(Deg2rad(i)))); !ok {
			t.Fatalf("incorrect conversion for %3.2f", i)
		}
	}
	if !scalar.EqualWithinAbs(Rad2deg(Deg2rad(-359.)), 1, 1e-9) {
		t.Fatal("incorrect conversion for -359")
	}
	if !scalar.EqualWithinAbs(Rad2deg(Deg2rad(-180.)), 180, 1e-9) {
		t.Fatal("incorrect conversion for -180")
	}
	if ok, _ := anglesEqual(math.Pi/3, Deg2rad(Rad2deg(-5*math.Pi/3))); !ok {
		t.Fatal("incorrect conversion for -5pi/3")
	}
}

func TestSpherical2Cartesian(t *testing.T) {
	incr := math.Pi / 10
	for r := 0.0; r < 1000; r += 100 {
		for θ := incr; θ < math.Pi; θ += incr {
			for φ := incr; φ < math.Pi; φ += incr {
				a := Vector{r, θ, φ}
				b := Cartesian2Spherical(Spherical2Cartesian(a))
				if r == 0.0 {
					if b != (Vector{}) {
						t.Fatal("zero norm should return zero vector")
					}
					continue
				}
				if !scalar.EqualWithinAbs(a[0], b[0], 1e-12) {
					t.Fatalf("r incorrect (%f != %f) for r=%f", a[0], b[0], r)
				}
				if ok, err := anglesEqual(a[1], b[1]); !ok {
					t.Fatalf("θ incorrect (%f != %f) %s", a[1], b[1], err)
				}
				if ok, err := anglesEqual(a[2], b[2]); !ok {
					t.Fatalf("φ incorrect (%f != %f) %s", a[2], b[2], err)
				}
			}
		}
	}
}

func TestStumpff(t *testing.T) {
	// Both branches must join the series at the origin.
	for _, ψ := range []float64{-2e-6, 2e-6} {
		c2, c3 := stumpff(ψ)
		if !scalar.EqualWithinAbs(c2, 0.5, 1e-6) || !scalar.EqualWithinAbs(c3, 1/6., 1e-6) {
			t.Fatalf("ψ=%g: c2=%f c3=%f", ψ, c2, c3)
		}
	}
	c2, c3 := stumpff(math.Pi * math.Pi)
	if !scalar.EqualWithinAbs(c2, 2/(math.Pi*math.Pi), 1e-12) || !scalar.EqualWithinAbs(c3, 1/(math.Pi*math.Pi), 1e-12) {
		t.Fatalf("ψ=π²: c2=%f c3=%f", c2, c3)
	}
}

func TestMisc(t *testing.T) {
	if sign(10) != 1 {
		t.Fatal("sign of 10 != 1")
	}
	if sign(-10) != -1 {
		t.Fatal("sign of -10 != -1")
	}
	if sign(0) != 1 {
		t.Fatal("sign of 0 != 1")
	}
	if (Vector{}).Norm() != 0 {
		t.Fatal("norm of a nil vector was not nil")
	}
	five0 := Vector{5, 6, 7}
	five1 := Vector{7, 6, 5}
	if !scalar.EqualWithinRel(five0.Norm(), math.Sqrt(110), 1e-15) || !scalar.EqualWithinRel(five0.Norm(), five1.Norm(), 1e-15) {
		t.Fatal("norm of the [5, 6, 7] and permutations is invalid")
	}
	if (Vector{}).Unit() != (Vector{}) {
		t.Fatal("unit of a nil vector was not nil")
	}
	if (Vector{math.NaN(), 0, 0}).IsFinite() || !five0.IsFinite() {
		t.Fatal("IsFinite fail")
	}
	if isFinite(1, math.Inf(-1)) || !isFinite(1, 2) {
		t.Fatal("isFinite fail")
	}
	if Seconds(1.5) != 1500*time.Millisecond {
		t.Fatalf("Seconds(1.5)=%s", Seconds(1.5))
	}
}
