// Package integrator provides an adaptive Dormand-Prince 5(4) integrator for first order systems.
package integrator

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrStepSize is returned when the step size falls under the minimum step.
	ErrStepSize = errors.New("step size underflow")
	// ErrMaxSteps is returned when the step budget is exhausted before the final time.
	ErrMaxSteps = errors.New("maximum number of steps reached")
	// ErrInterval is returned for an empty or reversed integration interval.
	ErrInterval = errors.New("final time must be after initial time")
)

// Func computes the derivative of y at t into dy.
type Func func(t float64, y, dy []float64) error

// Observer is called with the initial state and after each accepted step.
// The y slice is reused by the integrator and must be copied if retained.
type Observer func(t float64, y []float64)

// Stats summarizes an integration.
type Stats struct {
	Accepted, Rejected, Evaluations int
}

// DormandPrince is the embedded Runge-Kutta 5(4) pair with FSAL and the usual step controller.
// A zero value is usable and takes the defaults listed below.
type DormandPrince struct {
	RelTol   float64 // Relative tolerance, defaults to 1e-9.
	AbsTol   float64 // Absolute tolerance, defaults to 1e-9.
	MinStep  float64 // Defaults to 1e-12 of the interval.
	MaxStep  float64 // Zero means unbounded.
	MaxSteps int     // Defaults to 1e6.
	Initial  float64 // Initial step, zero for automatic selection.
}

const (
	safety = 0.9
	minFac = 0.2
	maxFac = 10.0
)

// Dormand-Prince coefficients.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// 5th order minus 4th order weights.
	dpE = [7]float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	}
)

func (dp DormandPrince) withDefaults(span float64) DormandPrince {
	if dp.RelTol <= 0 {
		dp.RelTol = 1e-9
	}
	if dp.AbsTol <= 0 {
		dp.AbsTol = 1e-9
	}
	if dp.MinStep <= 0 {
		dp.MinStep = 1e-12 * span
	}
	if dp.MaxStep <= 0 || dp.MaxStep > span {
		dp.MaxStep = span
	}
	if dp.MaxSteps <= 0 {
		dp.MaxSteps = 1000000
	}
	return dp
}

// Integrate integrates y' = f(t, y) from (t0, y0) to tf and returns the state at tf.
// y0 is not modified.
func (dp DormandPrince) Integrate(f Func, t0 float64, y0 []float64, tf float64, obs Observer) ([]float64, Stats, error) {
	var stats Stats
	span := tf - t0
	if !(span > 0) || math.IsInf(span, 0) {
		return nil, stats, ErrInterval
	}
	dp = dp.withDefaults(span)
	n := len(y0)
	y := make([]float64, n)
	copy(y, y0)
	var k [7][]float64
	for i := range k {
		k[i] = make([]float64, n)
	}
	ytmp := make([]float64, n)

	eval := func(t float64, y, dy []float64) error {
		stats.Evaluations++
		if err := f(t, y, dy); err != nil {
			return fmt.Errorf("derivative at t=%g: %w", t, err)
		}
		return nil
	}

	t := t0
	if err := eval(t, y, k[0]); err != nil {
		return nil, stats, err
	}
	if obs != nil {
		obs(t, y)
	}
	h := dp.Initial
	if h <= 0 {
		var err error
		if h, err = dp.initialStep(eval, t, y, k[0], ytmp); err != nil {
			return nil, stats, err
		}
	}
	h = math.Min(math.Max(h, dp.MinStep), dp.MaxStep)

	for t < tf {
		if stats.Accepted >= dp.MaxSteps {
			return y, stats, fmt.Errorf("%w (%d) at t=%g", ErrMaxSteps, dp.MaxSteps, t)
		}
		last := false
		if t+h >= tf || tf-(t+h) < dp.MinStep {
			h = tf - t
			last = true
		}
		for s := 1; s < 7; s++ {
			copy(ytmp, y)
			for j := 0; j < s; j++ {
				if dpA[s][j] != 0 {
					floats.AddScaled(ytmp, h*dpA[s][j], k[j])
				}
			}
			if err := eval(t+dpC[s]*h, ytmp, k[s]); err != nil {
				return y, stats, err
			}
		}
		// ytmp now holds the 5th order solution and k[6] its derivative.
		errNorm := 0.0
		for i := 0; i < n; i++ {
			var e float64
			for j := 0; j < 7; j++ {
				e += dpE[j] * k[j][i]
			}
			e *= h
			sc := dp.AbsTol + dp.RelTol*math.Max(math.Abs(y[i]), math.Abs(ytmp[i]))
			errNorm += (e / sc) * (e / sc)
		}
		errNorm = math.Sqrt(errNorm / float64(n))
		if math.IsNaN(errNorm) {
			errNorm = math.Inf(1)
		}

		if errNorm <= 1 {
			stats.Accepted++
			if last {
				t = tf
			} else {
				t += h
			}
			copy(y, ytmp)
			k[0], k[6] = k[6], k[0]
			if obs != nil {
				obs(t, y)
			}
			factor := maxFac
			if errNorm > 0 {
				factor = math.Max(minFac, math.Min(maxFac, safety*math.Pow(errNorm, -0.2)))
			}
			h = math.Min(dp.MaxStep, math.Max(dp.MinStep, h*factor))
			continue
		}
		stats.Rejected++
		factor := minFac
		if !math.IsInf(errNorm, 1) {
			factor = math.Max(minFac, safety*math.Pow(errNorm, -0.2))
		}
		if h <= dp.MinStep {
			return y, stats, fmt.Errorf("%w: h=%g at t=%g (error norm %g)", ErrStepSize, h, t, errNorm)
		}
		h = math.Max(dp.MinStep, h*factor)
	}
	return y, stats, nil
}

// initialStep is the starting step heuristic of Hairer, Nørsett and Wanner (II.4).
func (dp DormandPrince) initialStep(eval Func, t float64, y, f0, ytmp []float64) (float64, error) {
	n := float64(len(y))
	var d0, d1 float64
	for i := range y {
		sc := dp.AbsTol + dp.RelTol*math.Abs(y[i])
		d0 += (y[i] / sc) * (y[i] / sc)
		d1 += (f0[i] / sc) * (f0[i] / sc)
	}
	d0 = math.Sqrt(d0 / n)
	d1 = math.Sqrt(d1 / n)
	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, dp.MaxStep)
	copy(ytmp, y)
	floats.AddScaled(ytmp, h0, f0)
	f1 := make([]float64, len(y))
	if err := eval(t+h0, ytmp, f1); err != nil {
		return 0, err
	}
	var d2 float64
	for i := range y {
		sc := dp.AbsTol + dp.RelTol*math.Abs(y[i])
		d := (f1[i] - f0[i]) / sc
		d2 += d * d
	}
	d2 = math.Sqrt(d2/n) / h0
	var h1 float64
	if m := math.Max(d1, d2); m <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/m, 0.2)
	}
	return math.Min(100*h0, h1), nil
}
