package docksmaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// Fidelity is the dynamical model a sample was scored with.
type Fidelity uint8

const (
	// FullField propagates numerically in the full gravity field.
	FullField Fidelity = iota + 1
	// TwoBody propagates analytically about the central body only.
	TwoBody
)

func (f Fidelity) String() string {
	switch f {
	case FullField:
		return "full"
	case TwoBody:
		return "two-body"
	default:
		return fmt.Sprintf("fidelity(%d)", uint8(f))
	}
}

// Sample is an evaluated candidate.
type Sample struct {
	Index int
	Candidate
	Final        State
	Score        float64 // +Inf if the evaluation failed.
	ClosestIndex int     // -1 unless scored by closest approach.
	ClosestTime  float64
	Fidelity     Fidelity
	Err          error
}

// SampleSink records every evaluated sample, in index order, from a single goroutine.
type SampleSink interface {
	Record(Sample) error
}

// SearchConfig parameterizes a Monte-Carlo search.
type SearchConfig struct {
	Samples int
	Seed    uint64
	Workers int // Zero uses GOMAXPROCS.
	Scoring Scoring
	// MultiFidelity scores every sample with two-body propagation first and only re-propagates
	// the best RefineFraction of them in the full field. Only refined samples may be retained.
	MultiFidelity  bool
	RefineFraction float64
	// Improvement is the minimum score decrease for a sample to replace the best one.
	// Zero requires a strict improvement.
	Improvement float64
	// LogAll retains every sample in the result.
	LogAll bool
	// MaxDuration is an optional wall clock cutoff; samples not evaluated by then are skipped.
	MaxDuration time.Duration
	Sink        SampleSink
	Metrics     *Metrics
	Logger      log.Logger
}

// DefaultSearchConfig returns 1000 samples seeded with 42, terminal scoring and a refine fraction of 5%.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{Samples: 1000, Seed: 42, Scoring: ScoreTerminal, RefineFraction: 0.05}
}

// SearchResult is the outcome of a Monte-Carlo search.
type SearchResult struct {
	Best      *Sample // Nil if no sample could be scored.
	Samples   []Sample
	Evaluated int
	Discarded int
	Skipped   int
	Refined   int
	Truncated bool
}

func (cfg SearchConfig) validate(target Vector, tof float64) error {
	if cfg.Samples < 0 {
		return newError("search", InvalidInput, fmt.Errorf("negative sample count %d", cfg.Samples))
	}
	if !target.IsFinite() {
		return newError("search", InvalidInput, fmt.Errorf("non finite target"))
	}
	if !(tof > 0) || math.IsInf(tof, 0) {
		return newError("search", InvalidInput, fmt.Errorf("time of flight must be strictly positive"), "tof", tof)
	}
	if cfg.MultiFidelity && !(cfg.RefineFraction > 0 && cfg.RefineFraction <= 1) {
		return newError("search", InvalidInput, fmt.Errorf("refine fraction %g not in (0, 1]", cfg.RefineFraction))
	}
	if cfg.Improvement < 0 || !isFinite(cfg.Improvement) {
		return newError("search", InvalidInput, fmt.Errorf("invalid improvement threshold %g", cfg.Improvement))
	}
	return nil
}

// Search draws cfg.Samples candidates sequentially from a generator seeded with cfg.Seed, scores them
// against the target in parallel and keeps the best one. Candidates are folded in index order so the
// result does not depend on the number of workers; ties keep the first sample. Failed samples score +Inf
// and are discarded without aborting the search.
func Search(ctx context.Context, cfg SearchConfig, sampler Sampler, prop *Propagator, target Vector, tof float64) (*SearchResult, error) {
	if err := cfg.validate(target, tof); err != nil {
		return nil, err
	}
	if sampler == nil || prop == nil {
		return nil, newError("search", InvalidInput, fmt.Errorf("sampler and propagator are required"))
	}
	if v, ok := sampler.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Scoring == 0 {
		cfg.Scoring = ScoreTerminal
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	logger := log.With(orNop(cfg.Logger), "subsys", "mc")
	rslt := &SearchResult{}
	if cfg.Samples == 0 {
		return rslt, nil
	}
	if cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxDuration)
		defer cancel()
	}

	// Draw everything first from the single generator.
	rng := rand.New(rand.NewSource(cfg.Seed))
	cands := make([]Candidate, cfg.Samples)
	candErrs := make([]error, cfg.Samples)
	for i := range cands {
		cands[i], candErrs[i] = sampler.Sample(rng)
	}
	level.Info(logger).Log("status", "sampled", "samples", cfg.Samples, "seed", cfg.Seed, "workers", cfg.Workers, "scoring", cfg.Scoring)

	samples := make([]Sample, cfg.Samples)
	done := make([]bool, cfg.Samples)
	eligible := make([]bool, cfg.Samples)
	all := make([]int, cfg.Samples)
	for i := range all {
		all[i] = i
	}

	if cfg.MultiFidelity {
		evaluateAll(ctx, cfg, prop, target, tof, TwoBody, all, cands, candErrs, samples, done)
		refine := refineSet(samples, done, cfg.RefineFraction)
		level.Debug(logger).Log("status", "screened", "refine", len(refine))
		evaluateAll(ctx, cfg, prop, target, tof, FullField, refine, cands, candErrs, samples, nil)
		for _, i := range refine {
			if samples[i].Fidelity == FullField {
				eligible[i] = true
				rslt.Refined++
			}
		}
	} else {
		evaluateAll(ctx, cfg, prop, target, tof, FullField, all, cands, candErrs, samples, done)
		copy(eligible, done)
	}

	// Fold in index order.
	var sinkErr error
	for i := range samples {
		if !done[i] {
			rslt.Skipped++
			continue
		}
		s := samples[i]
		rslt.Evaluated++
		if s.Err != nil {
			rslt.Discarded++
			level.Debug(logger).Log("sample", i, "status", "discarded", "err", s.Err)
		} else if eligible[i] && accept(s.Score, rslt.Best, cfg.Improvement) {
			best := s
			rslt.Best = &best
			level.Debug(logger).Log("sample", i, "status", "best", "score", s.Score)
		}
		cfg.Metrics.observeSample(s)
		if cfg.LogAll {
			rslt.Samples = append(rslt.Samples, s)
		}
		if cfg.Sink != nil && sinkErr == nil {
			if err := cfg.Sink.Record(s); err != nil {
				sinkErr = fmt.Errorf("recording sample %d: %w", i, err)
			}
		}
	}
	if rslt.Best != nil {
		cfg.Metrics.observeBest(rslt.Best.Score)
	}
	rslt.Truncated = rslt.Skipped > 0
	if rslt.Truncated {
		level.Warn(logger).Log("status", "truncated", "evaluated", rslt.Evaluated, "skipped", rslt.Skipped, "err", ctx.Err())
	}
	kv := []interface{}{"status", "finished", "evaluated", rslt.Evaluated, "discarded", rslt.Discarded}
	if rslt.Best != nil {
		kv = append(kv, "best", rslt.Best.Index, "score", rslt.Best.Score)
	}
	level.Info(logger).Log(kv...)
	if sinkErr != nil {
		return rslt, sinkErr
	}
	if err := ctx.Err(); err != nil && errors.Is(err, context.Canceled) {
		return rslt, err
	}
	return rslt, nil
}

// accept returns whether score replaces the current best.
func accept(score float64, best *Sample, improvement float64) bool {
	if math.IsNaN(score) || math.IsInf(score, 1) {
		return false
	}
	if best == nil {
		return true
	}
	return score < best.Score-improvement
}

// refineSet returns the indices of the best fraction of the screened samples, in index order.
func refineSet(samples []Sample, done []bool, fraction float64) []int {
	var ranked []int
	for i, s := range samples {
		if done[i] && s.Err == nil {
			ranked = append(ranked, i)
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return samples[ranked[a]].Score < samples[ranked[b]].Score
	})
	n := int(math.Ceil(fraction * float64(len(samples))))
	if n > len(ranked) {
		n = len(ranked)
	}
	ranked = ranked[:n]
	sort.Ints(ranked)
	return ranked
}

// evaluateAll scores the listed candidates on a bounded pool of goroutines. Each goroutine only writes
// its own index. Candidates not started before the context is done are left unmarked.
func evaluateAll(ctx context.Context, cfg SearchConfig, prop *Propagator, target Vector, tof float64, fid Fidelity,
	indices []int, cands []Candidate, candErrs []error, samples []Sample, done []bool) {
	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for _, i := range indices {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			start := time.Now()
			samples[i] = evaluate(prop, target, tof, cfg.Scoring, fid, i, cands[i], candErrs[i])
			cfg.Metrics.observeDuration(fid, time.Since(start))
			if done != nil {
				done[i] = true
			}
			return nil
		})
	}
	g.Wait()
}

func evaluate(prop *Propagator, target Vector, tof float64, scoring Scoring, fid Fidelity, idx int, cand Candidate, candErr error) Sample {
	s := Sample{Index: idx, Candidate: cand, Score: math.Inf(1), ClosestIndex: -1, Fidelity: fid}
	if candErr != nil {
		s.Err = candErr
		return s
	}
	var tr *Trajectory
	var err error
	if fid == TwoBody {
		tr, err = prop.PropagateTwoBody(cand.Initial, tof, scoring.Mode())
	} else {
		tr, err = prop.Propagate(cand.Initial, tof, scoring.Mode())
	}
	if err != nil {
		s.Err = err
		return s
	}
	s.Final = tr.Final
	score, err := scoring.Score(target, tr)
	if err != nil {
		s.Err = err
		return s
	}
	s.Score = score.Value
	s.ClosestIndex = score.Index
	s.ClosestTime = score.Time
	if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
		s.Score = math.Inf(1)
		s.Err = newError("search", PropagationFailed, fmt.Errorf("non finite score"), "sample", idx)
	}
	return s
}
