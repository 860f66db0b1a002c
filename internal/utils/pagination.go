// Package utils provides small helpers shared across layers. This file turns
// untyped query input into a start/end window and bounds that window against
// a collection length. Parsing and range semantics are kept apart: parsing
// fails loudly, while an out-of-range or inverted window is simply empty.
package utils

import (
	"math"
	"strconv"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

// Query parameter names understood by ExtractPagination.
const (
	ParamStart = "start"
	ParamEnd   = "end"
)

// Pagination is a half-open index window [Start, End) requested by a caller.
// It is produced per request and never stored.
type Pagination struct {
	Start int
	End   int
}

// ExtractPagination reads "start" and "end" from params.
//
// Both keys are required. They are checked in that order and the first
// missing one is reported as domain.ErrMissingParameters. Each value must be
// a base-10 non-negative integer; otherwise a *domain.ParseError carrying the
// strconv failure is returned.
//
// No ordering or bounds checks happen here: start may exceed end and both may
// exceed the collection length. See Clamp.
//
// Example:
//
//	p, err := utils.ExtractPagination(map[string]string{"start": "1", "end": "2"})
//	// p == Pagination{Start: 1, End: 2}, err == nil
func ExtractPagination(params map[string]string) (Pagination, error) {
	rawStart, ok := params[ParamStart]
	if !ok {
		return Pagination{}, domain.MissingParameter(ParamStart)
	}
	rawEnd, ok := params[ParamEnd]
	if !ok {
		return Pagination{}, domain.MissingParameter(ParamEnd)
	}

	start, err := parseIndex(ParamStart, rawStart)
	if err != nil {
		return Pagination{}, err
	}
	end, err := parseIndex(ParamEnd, rawEnd)
	if err != nil {
		return Pagination{}, err
	}
	return Pagination{Start: start, End: end}, nil
}

// parseIndex parses s as a non-negative int. Signs are rejected by ParseUint.
func parseIndex(name, s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, &domain.ParseError{Param: name, Err: err}
	}
	if n > math.MaxInt {
		return 0, &domain.ParseError{Param: name, Err: &strconv.NumError{
			Func: "ParseUint",
			Num:  s,
			Err:  strconv.ErrRange,
		}}
	}
	return int(n), nil
}

// Clamp bounds p against a collection of length n. Start and End are clamped
// independently to [0, n]. ok is false when the resulting window is empty
// (lo >= hi), which callers treat as an empty result rather than an error.
func Clamp(p Pagination, n int) (lo, hi int, ok bool) {
	lo = min(max(p.Start, 0), n)
	hi = min(max(p.End, 0), n)
	return lo, hi, lo < hi
}
