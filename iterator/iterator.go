// Package iterator implements the uniform sorted-cursor contract and the
// concrete iterators composed over it: token iterators that merge the
// write buffer with a posting file, a leapfrog intersection over N children
// (with optional negation), a heap-merged union, and the negation wrapper
// meaningful only inside a generalized intersection.
package iterator

import "github.com/arvindrs/invidx/row"

// Iterator is the uniform cursor every concrete iterator implements:
// Current/Advance/Seek/Exhausted. All iterators yield strictly ascending
// rows and never revisit a row once emitted.
type Iterator interface {
	// Current returns the row at the cursor, or ok == false once exhausted.
	Current() (r row.Row, ok bool)
	// Advance moves to the next row strictly greater than Current.
	Advance() error
	// Seek advances to the smallest row >= r; a no-op if Current() >= r.
	Seek(r row.Row) error
	// Exhausted reports whether the iterator has no more rows. Once true
	// it stays true.
	Exhausted() bool
	// Close releases any resources (file descriptors) held by the
	// iterator and its children.
	Close() error
}

// Negator is implemented by iterators that wrap another iterator to mark it
// as negated for GeneralizedIntersection.
type Negator interface {
	Negated() bool
	Unwrap() Iterator
}

type empty struct{}

// Empty returns an iterator that is immediately exhausted.
func Empty() Iterator { return empty{} }

func (empty) Current() (row.Row, bool) { return nil, false }
func (empty) Advance() error           { return nil }
func (empty) Seek(row.Row) error       { return nil }
func (empty) Exhausted() bool          { return true }
func (empty) Close() error             { return nil }

// BloomProbe is implemented by a token's Bloom sidecar filter. A negated
// child carrying one lets GeneralizedIntersection skip a Seek entirely when
// the filter proves a candidate row cannot be present on that child.
type BloomProbe interface {
	MightContain(r row.Row) bool
}

// negated wraps a single child iterator, meaningful only when passed to
// GeneralizedIntersection: the child's rows are excluded rather than
// required. Driving a *negated iterator directly (Advance/outside a
// generalized intersection) is not a supported usage — a standalone
// negation over an infinite domain has no meaning on its own.
type negated struct {
	Iterator
	probe BloomProbe
}

// Negate wraps it so GeneralizedIntersection treats it as an excluded
// (negated) child.
func Negate(it Iterator) Iterator {
	return &negated{Iterator: it}
}

// NegateWithBloom is Negate plus a Bloom sidecar probe for the child's
// token, letting GeneralizedIntersection skip a Seek when probe proves a
// candidate absent.
func NegateWithBloom(it Iterator, probe BloomProbe) Iterator {
	return &negated{Iterator: it, probe: probe}
}

func (n *negated) Negated() bool     { return true }
func (n *negated) Unwrap() Iterator  { return n.Iterator }
func (n *negated) Probe() BloomProbe { return n.probe }
