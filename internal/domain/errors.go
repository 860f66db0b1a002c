// Package domain – error kinds.
//
// This file holds the closed set of errors the core can raise. They carry no
// transport semantics; the HTTP layer maps them to status codes in exactly
// one place (handlers.Translate).
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParameters is returned when a paginated listing lacks the
	// "start" or "end" query parameter. The missing name is wrapped in.
	ErrMissingParameters = errors.New("missing parameter")

	// ErrInvalidRange is reserved for a start/end pair that cannot describe a
	// range. No code path raises it today: an empty window is a valid result.
	ErrInvalidRange = errors.New("'start' must be less than 'end'")

	// ErrQuestionNotFound is returned by replace/delete when no question is
	// stored under the requested id.
	ErrQuestionNotFound = errors.New("question not found")
)

// ParseError reports a query parameter that is not a base-10 non-negative
// integer. Err is the underlying *strconv.NumError.
type ParseError struct {
	Param string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse parameter %q: %v", e.Param, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingParameter returns an error matching ErrMissingParameters that names
// the absent parameter.
func MissingParameter(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingParameters, name)
}
