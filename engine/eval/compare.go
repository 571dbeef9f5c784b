package eval

import (
	"math"

	"github.com/nathoo/condcore/types"
)

// Tolerance controls approximate float equality. Two finite values are
// equal when |a-b| <= max(Relative*max(|a|,|b|), Absolute). The zero
// Tolerance compares exactly.
type Tolerance struct {
	Relative float64
	Absolute float64
}

// DefaultTolerance is used when Options.Tolerance is nil.
var DefaultTolerance = Tolerance{Relative: 1e-5, Absolute: 1e-5}

// ApproxEqual reports whether a and b are equal within tol.
func ApproxEqual(a, b float64, tol Tolerance) bool {
	if a == b {
		return true
	}
	// An infinite operand makes the relative bound infinite too.
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	bound := tol.Relative * math.Max(math.Abs(a), math.Abs(b))
	if bound < tol.Absolute {
		bound = tol.Absolute
	}
	return math.Abs(a-b) <= bound
}

// Compare applies op to left and right. The bool result is false and ok is
// false for an unknown operator.
func Compare(left float64, op types.ValueOperator, right float64, tol Tolerance) (result, ok bool) {
	switch op {
	case types.Equal:
		return ApproxEqual(left, right, tol), true
	case types.NotEqual:
		return !ApproxEqual(left, right, tol), true
	case types.GreaterThan:
		return left > right, true
	case types.GreaterOrEqual:
		return left > right || ApproxEqual(left, right, tol), true
	case types.LessThan:
		return left < right, true
	case types.LessOrEqual:
		return left < right || ApproxEqual(left, right, tol), true
	}
	return false, false
}

// CheckBoolean applies a boolean operator to a fact value.
func CheckBoolean(v bool, op types.BooleanOperator) (result, ok bool) {
	switch op {
	case types.Is:
		return v, true
	case types.IsNot:
		return !v, true
	}
	return false, false
}
