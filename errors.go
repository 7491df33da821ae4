package docksmaker

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies the failures of the targeting engine.
// A Kind is itself an error so that callers may use errors.Is(err, docksmaker.DegenerateGeometry).
type Kind uint8

const (
	// InvalidInput is returned for non-finite vectors, non-positive time of flight or gravitational parameter.
	InvalidInput Kind = iota + 1
	// DegenerateGeometry is returned for collinear Lambert radii or coincident bodies.
	DegenerateGeometry
	// PropagationFailed is returned when the integrator cannot reach the requested final time.
	PropagationFailed
	// MaxIterationsReached is returned by iterative solvers which ran out of iterations.
	MaxIterationsReached
	// PartialPerturberData is returned when a perturber position could not be resolved.
	PartialPerturberData
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case DegenerateGeometry:
		return "degenerate geometry"
	case PropagationFailed:
		return "propagation failed"
	case MaxIterationsReached:
		return "max iterations reached"
	case PartialPerturberData:
		return "partial perturber data"
	default:
		return fmt.Sprintf("unknown kind %d", uint8(k))
	}
}

func (k Kind) Error() string {
	return k.String()
}

// Error is the structured error returned by the engine.
type Error struct {
	Kind    Kind
	Op      string        // Operation which failed, e.g. "lambert".
	Err     error         // Underlying cause, may be nil.
	Context []interface{} // Alternating keys and values, logged as is.
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	for i := 0; i+1 < len(e.Context); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.Context[i], e.Context[i+1])
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, k Kind, cause error, keyvals ...interface{}) *Error {
	return &Error{Kind: k, Op: op, Err: cause, Context: keyvals}
}

// KindOf returns the kind of the outermost engine error in the chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}
