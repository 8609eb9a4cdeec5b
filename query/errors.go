// Package query builds iterator trees over an index directory and a write
// buffer and evaluates intersect/generalized_intersect/union/count/
// fetch_many. It is the only layer that materializes rows — trees are
// built lazily and fetch_many is the sole materialization point.
package query

import "errors"

// Error kinds, classified so callers can tell them apart with errors.Is,
// following a flat sentinel + %w-wrap idiom.
var (
	// ErrPrecondition is a precondition violation: wrong row type, empty
	// token list, or an all-negated generalized intersection.
	ErrPrecondition = errors.New("query: precondition violation")
	// ErrIO marks an underlying file open/read/write/rename failure.
	ErrIO = errors.New("query: i/o failure")
	// ErrCorrupt marks a posting file whose size or ordering invariant is
	// violated; the failing query's token is unusable, others are not.
	ErrCorrupt = errors.New("query: corrupt posting data")
)
