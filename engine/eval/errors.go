package eval

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies evaluation failures.
type ErrorKind string

const (
	KindUnknownAtom      ErrorKind = "unknown_atom"
	KindUnknownComposite ErrorKind = "unknown_composite"
	KindCycleDetected    ErrorKind = "cycle_detected"
	KindMaxDepthExceeded ErrorKind = "max_depth_exceeded"
	KindPredicateSource  ErrorKind = "predicate_source"
	KindInvalidCondition ErrorKind = "invalid_condition"
)

// Sentinels for errors.Is against an *Error.
var (
	ErrUnknownAtom      = errors.New("unknown atom")
	ErrUnknownComposite = errors.New("unknown composite")
	ErrCycleDetected    = errors.New("cycle detected")
	ErrMaxDepthExceeded = errors.New("max depth exceeded")
	ErrPredicateSource  = errors.New("predicate source error")
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrUnknownFact is returned by predicate sources that cannot answer
	// for a fact.
	ErrUnknownFact = errors.New("unknown fact")
)

var kindSentinels = map[ErrorKind]error{
	KindUnknownAtom:      ErrUnknownAtom,
	KindUnknownComposite: ErrUnknownComposite,
	KindCycleDetected:    ErrCycleDetected,
	KindMaxDepthExceeded: ErrMaxDepthExceeded,
	KindPredicateSource:  ErrPredicateSource,
	KindInvalidCondition: ErrInvalidCondition,
}

// Error is the typed failure of a single evaluation. Chain lists the
// entities being visited when the failure happened, outermost first.
type Error struct {
	Kind  ErrorKind
	Key   string
	Chain []string
	Err   error // underlying cause, if any
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(kindSentinels[e.Kind].Error())
	if e.Key != "" {
		fmt.Fprintf(&sb, " %q", e.Key)
	}
	if len(e.Chain) > 0 {
		fmt.Fprintf(&sb, " (at %s)", e.ChainString())
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// ChainString renders the visiting chain as "composite:A > atom:B".
func (e *Error) ChainString() string {
	return strings.Join(e.Chain, " > ")
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of an evaluation error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
