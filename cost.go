package docksmaker

import (
	"fmt"
	"math"
)

// Scoring selects how a trajectory is scored against a target position.
type Scoring uint8

const (
	// ScoreTerminal is the distance between the final position and the target.
	ScoreTerminal Scoring = iota + 1
	// ScoreClosestApproach is the minimum distance to the target along the trajectory.
	ScoreClosestApproach
)

func (s Scoring) String() string {
	switch s {
	case ScoreTerminal:
		return "terminal"
	case ScoreClosestApproach:
		return "closest"
	default:
		return fmt.Sprintf("scoring(%d)", uint8(s))
	}
}

// ParseScoring returns the scoring mode from its name.
func ParseScoring(s string) (Scoring, error) {
	switch s {
	case "", "terminal", "final":
		return ScoreTerminal, nil
	case "closest", "closest-approach":
		return ScoreClosestApproach, nil
	default:
		return 0, fmt.Errorf("unknown scoring '%s'", s)
	}
}

// Mode returns the propagation mode required by the scoring.
func (s Scoring) Mode() Mode {
	if s == ScoreClosestApproach {
		return Dense
	}
	return Terminal
}

// Score is the result of scoring a trajectory.
type Score struct {
	Value float64
	Index int     // Index of the closest sample, or -1 for terminal scoring.
	Time  float64 // Time of the closest sample, or the time of flight.
}

// Score scores the trajectory. Closest approach scoring requires a dense trajectory.
func (s Scoring) Score(target Vector, tr *Trajectory) (Score, error) {
	if tr == nil {
		return Score{Value: math.Inf(1), Index: -1}, newError("score", InvalidInput, fmt.Errorf("nil trajectory"))
	}
	switch s {
	case ScoreClosestApproach:
		if len(tr.States) == 0 {
			return Score{Value: math.Inf(1), Index: -1}, newError("score", InvalidInput, fmt.Errorf("closest approach requires a dense trajectory"))
		}
		d, idx, t := ClosestApproach(target, tr)
		return Score{d, idx, t}, nil
	default:
		return Score{TerminalDistance(target, tr.Final), -1, tr.TOF}, nil
	}
}

// TerminalDistance returns the distance between the final position and the target.
func TerminalDistance(target Vector, final State) float64 {
	return final.R.Sub(target).Norm()
}

// ClosestApproach returns the minimum distance between the trajectory and the target, with the
// index and time of the closest sample. The first sample wins ties. An empty trajectory returns +Inf.
func ClosestApproach(target Vector, tr *Trajectory) (dist float64, idx int, t float64) {
	positions := make([]Vector, len(tr.States))
	for i, s := range tr.States {
		positions[i] = s.R
	}
	return ClosestApproachPositions(target, positions, tr.Times)
}

// ClosestApproachPositions is ClosestApproach on bare positions. times may be nil.
func ClosestApproachPositions(target Vector, positions []Vector, times []float64) (dist float64, idx int, t float64) {
	dist, idx = math.Inf(1), -1
	for i, r := range positions {
		if d := r.Sub(target).Norm(); d < dist {
			dist, idx = d, i
		}
	}
	if idx >= 0 && idx < len(times) {
		t = times[idx]
	}
	return
}
