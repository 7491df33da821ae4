package docksmaker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingSink struct {
	indices []int
}

func (r *recordingSink) Record(s Sample) error {
	r.indices = append(r.indices, s.Index)
	return nil
}

func mcSetup(t *testing.T) (*Propagator, VelocityDeltaSampler, Vector, float64) {
	prop := NewPropagator(GravityField{Central: Earth}, nil)
	base := State{Vector{7.0e6, 0, 0}, Vector{0, math.Sqrt(Earth.GM() / 7.0e6), 0}}
	tof := 600.0
	tr, err := prop.Propagate(base, tof, Terminal)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	sampler := VelocityDeltaSampler{Base: base, Spread: Vector{0, 5, 0}}
	return prop, sampler, tr.Final.R, tof
}

func TestSearchEmpty(t *testing.T) {
	prop, sampler, target, tof := mcSetup(t)
	cfg := DefaultSearchConfig()
	cfg.Samples = 0
	rslt, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if rslt.Best != nil || rslt.Evaluated != 0 {
		t.Fatalf("expected no best sample, got %+v", rslt)
	}
}

func TestSearchSingleDeterministic(t *testing.T) {
	prop, sampler, target, tof := mcSetup(t)
	cfg := DefaultSearchConfig()
	cfg.Samples = 1
	var prev *Sample
	for i := 0; i < 3; i++ {
		rslt, err := Search(context.Background(), cfg, sampler, prop, target, tof)
		if err != nil {
			t.Fatalf("err %s", err)
		}
		if rslt.Best == nil {
			t.Fatal("expected a best sample")
		}
		if rslt.Best.Score != TerminalDistance(target, rslt.Best.Final) {
			t.Fatalf("score %f does not match the terminal distance", rslt.Best.Score)
		}
		if prev != nil && (prev.Initial != rslt.Best.Initial || prev.Score != rslt.Best.Score) {
			t.Fatalf("search is not deterministic:\n%+v\n%+v", prev, rslt.Best)
		}
		prev = rslt.Best
	}
	cfg.Seed = 43
	rslt, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if rslt.Best.Initial == prev.Initial {
		t.Fatal("another seed drew the same candidate")
	}
}

func TestSearchWorkersIndependent(t *testing.T) {
	prop, sampler, target, tof := mcSetup(t)
	cfg := DefaultSearchConfig()
	cfg.Samples = 24
	cfg.LogAll = true
	cfg.Workers = 1
	serial, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	cfg.Workers = 8
	sink := &recordingSink{}
	cfg.Sink = sink
	parallel, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if serial.Best.Index != parallel.Best.Index || serial.Best.Score != parallel.Best.Score {
		t.Fatalf("best differs: #%d (%f) vs #%d (%f)", serial.Best.Index, serial.Best.Score, parallel.Best.Index, parallel.Best.Score)
	}
	if len(parallel.Samples) != cfg.Samples || len(sink.indices) != cfg.Samples {
		t.Fatalf("expected %d logged samples, got %d and %d", cfg.Samples, len(parallel.Samples), len(sink.indices))
	}
	for i, s := range parallel.Samples {
		if s.Index != i || sink.indices[i] != i {
			t.Fatalf("samples not logged in index order at %d", i)
		}
		if s.Score < parallel.Best.Score {
			t.Fatalf("sample %d beats the best", i)
		}
		if s.Score != serial.Samples[i].Score {
			t.Fatalf("sample %d scored differently", i)
		}
		if s.DeltaV == nil || s.DeltaV[0] != 0 || s.DeltaV[2] != 0 || math.Abs(s.DeltaV[1]) > 5 {
			t.Fatalf("unexpected velocity delta %v", s.DeltaV)
		}
	}
}

func TestSearchImprovementThreshold(t *testing.T) {
	prop, sampler, target, tof := mcSetup(t)
	cfg := DefaultSearchConfig()
	cfg.Samples = 10
	cfg.Improvement = 1e12
	rslt, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if rslt.Best.Index != 0 {
		t.Fatalf("no sample can improve by a billion km, yet best is #%d", rslt.Best.Index)
	}
}

func TestSearchDiscards(t *testing.T) {
	prop, _, target, tof := mcSetup(t)
	sampler := ElementSampler{Mu: Earth.GM(), A: Fixed(7.0e6), E: Range{Min: 1.5, Max: 2}}
	cfg := DefaultSearchConfig()
	cfg.Samples = 5
	rslt, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if rslt.Best != nil || rslt.Discarded != 5 || rslt.Evaluated != 5 {
		t.Fatalf("expected every sample to be discarded: %+v", rslt)
	}
}

func TestSearchMultiFidelity(t *testing.T) {
	prop, sampler, target, tof := mcSetup(t)
	prop.Field.Perturbers = []Attractor{{Moon, StaticPosition{3.844e8, 0, 0}}}
	cfg := DefaultSearchConfig()
	cfg.Samples = 20
	cfg.MultiFidelity = true
	cfg.RefineFraction = 0.1
	cfg.Scoring = ScoreClosestApproach
	reg := prometheus.NewRegistry()
	cfg.Metrics = NewMetrics(reg)
	rslt, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if rslt.Refined != 2 {
		t.Fatalf("expected 2 refined samples, got %d", rslt.Refined)
	}
	if rslt.Best == nil || rslt.Best.Fidelity != FullField {
		t.Fatalf("best must be a refined sample: %+v", rslt.Best)
	}
	if rslt.Best.ClosestIndex < 0 {
		t.Fatal("closest approach index not set")
	}
	if n := testutil.ToFloat64(cfg.Metrics.samplesTotal.WithLabelValues("full", "scored")); n != 2 {
		t.Fatalf("expected 2 full field samples in the metrics, got %f", n)
	}
}

func TestSearchTruncated(t *testing.T) {
	prop, sampler, target, tof := mcSetup(t)
	cfg := DefaultSearchConfig()
	cfg.Samples = 20
	cfg.MaxDuration = time.Nanosecond
	rslt, err := Search(context.Background(), cfg, sampler, prop, target, tof)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !rslt.Truncated || rslt.Skipped == 0 || rslt.Skipped+rslt.Evaluated != cfg.Samples {
		t.Fatalf("expected a truncated search: %+v", rslt)
	}
}

func TestSearchInvalid(t *testing.T) {
	prop, sampler, target, tof := mcSetup(t)
	cfg := DefaultSearchConfig()
	cfg.MultiFidelity = true
	cfg.RefineFraction = 0
	if _, err := Search(context.Background(), cfg, sampler, prop, target, tof); KindOf(err) != InvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	cfg = DefaultSearchConfig()
	if _, err := Search(context.Background(), cfg, sampler, prop, target, -1); KindOf(err) != InvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
