package transform

import (
	"errors"
	"fmt"
)

// ErrNotBound is returned when rows are processed before Bind.
var ErrNotBound = errors.New("transformation is not bound to a header")

// TypeError reports a raw cell its column's type coercion rejected.
type TypeError struct {
	Column string
	Raw    string
	Err    error
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("column %q: cannot type %q: %v", e.Column, e.Raw, e.Err)
}

func (e *TypeError) Unwrap() error { return e.Err }

// TypeErrorPolicy selects what happens to a row with a TypeError.
type TypeErrorPolicy int

const (
	// FailOnTypeError aborts the run.
	FailOnTypeError TypeErrorPolicy = iota
	// SkipOnTypeError drops the row like a filter rejection.
	SkipOnTypeError
)

// ParseTypeErrorPolicy accepts "fail", "skip" and "" (fail).
func ParseTypeErrorPolicy(s string) (TypeErrorPolicy, error) {
	switch s {
	case "", "fail":
		return FailOnTypeError, nil
	case "skip":
		return SkipOnTypeError, nil
	}
	return FailOnTypeError, fmt.Errorf("unknown type error policy %q (want fail or skip)", s)
}

func (p TypeErrorPolicy) String() string {
	if p == SkipOnTypeError {
		return "skip"
	}
	return "fail"
}
