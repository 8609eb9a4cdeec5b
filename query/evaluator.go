package query

import (
	"errors"
	"fmt"
	"slices"

	"github.com/arvindrs/invidx/iterator"
	"github.com/arvindrs/invidx/memtable"
	"github.com/arvindrs/invidx/posting"
	"github.com/arvindrs/invidx/row"
)

// TokenNeg pairs a token with whether it is a negated member of a
// generalized intersection.
type TokenNeg struct {
	Token   uint64
	Negated bool
}

// Evaluator builds iterator trees over the posting files under dir (for
// schema) and the live write buffer buf.
type Evaluator struct {
	dir    string
	schema row.Schema
	buf    *memtable.Buffer
}

// New returns an evaluator for dir/schema/buf. buf may be mutated
// concurrently with query construction only under the caller's own
// serialization.
func New(dir string, schema row.Schema, buf *memtable.Buffer) *Evaluator {
	return &Evaluator{dir: dir, schema: schema, buf: buf}
}

func (e *Evaluator) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, posting.ErrCorrupt) {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if errors.Is(err, iterator.ErrNoChildren) {
		return fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

// TokenIterator returns a direct iterator over token's rows starting at the
// first row >= lb.
func (e *Evaluator) TokenIterator(token uint64, lb row.Row) (iterator.Iterator, error) {
	it, err := iterator.NewToken(e.dir, e.schema, e.buf, token, lb)
	if err != nil {
		return nil, e.classify(err)
	}
	return it, nil
}

// EmptyIterator returns an iterator that is immediately exhausted.
func (e *Evaluator) EmptyIterator() iterator.Iterator { return iterator.Empty() }

// buildTokenIterators opens a token iterator for every token, closing all
// of them if any fails partway through.
func (e *Evaluator) buildTokenIterators(tokens []uint64, lb row.Row) ([]iterator.Iterator, error) {
	its := make([]iterator.Iterator, 0, len(tokens))
	for _, t := range tokens {
		it, err := e.TokenIterator(t, lb)
		if err != nil {
			for _, opened := range its {
				opened.Close()
			}
			return nil, err
		}
		its = append(its, it)
	}
	return its, nil
}

// Intersect builds token iterators for each token positioned at lb, wraps
// them in a leapfrog intersection, and returns the first n rows. Empty
// tokens is a precondition violation.
func (e *Evaluator) Intersect(tokens []uint64, lb row.Row, n int) ([]row.Row, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: intersect requires at least one token", ErrPrecondition)
	}

	children, err := e.buildTokenIterators(tokens, lb)
	if err != nil {
		return nil, err
	}

	it, err := iterator.NewIntersection(children)
	if err != nil {
		for _, c := range children {
			c.Close()
		}
		return nil, e.classify(err)
	}
	defer it.Close()

	return FetchMany(it, n)
}

// GeneralizedIntersect is Intersect with a negation flag per token. At
// least one non-negated token is required; violating that is a
// precondition error.
func (e *Evaluator) GeneralizedIntersect(tokens []TokenNeg, lb row.Row, n int) ([]row.Row, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: generalized_intersect requires at least one token", ErrPrecondition)
	}

	hasPositive := false
	for _, t := range tokens {
		if !t.Negated {
			hasPositive = true
			break
		}
	}
	if !hasPositive {
		return nil, fmt.Errorf("%w: generalized_intersect requires at least one non-negated token", ErrPrecondition)
	}

	children := make([]iterator.Iterator, 0, len(tokens))
	for _, t := range tokens {
		it, err := e.TokenIterator(t.Token, lb)
		if err != nil {
			for _, opened := range children {
				opened.Close()
			}
			return nil, err
		}
		if t.Negated {
			// The sidecar covers only the posting file, so a token with
			// buffered live rows gets an always-maybe probe instead.
			probe := posting.NewProbe(nil, e.schema)
			if e.buf.Count(t.Token) == 0 {
				filter, ferr := posting.ReadBloom(e.dir, t.Token)
				if ferr != nil {
					it.Close()
					for _, opened := range children {
						opened.Close()
					}
					return nil, e.classify(ferr)
				}
				probe = posting.NewProbe(filter, e.schema)
			}
			it = iterator.NegateWithBloom(it, probe)
		}
		children = append(children, it)
	}

	it, err := iterator.NewGeneralizedIntersection(children)
	if err != nil {
		for _, c := range children {
			c.Close()
		}
		return nil, e.classify(err)
	}
	defer it.Close()

	return FetchMany(it, n)
}

// UnionIteratorForTokens builds a union iterator directly over a set of
// tokens positioned at lb.
func (e *Evaluator) UnionIteratorForTokens(tokens []uint64, lb row.Row) (iterator.Iterator, error) {
	children, err := e.buildTokenIterators(tokens, lb)
	if err != nil {
		return nil, err
	}
	it, err := iterator.NewUnion(children)
	if err != nil {
		for _, c := range children {
			c.Close()
		}
		return nil, e.classify(err)
	}
	return it, nil
}

// UnionIterator wraps already-built child iterators in a union.
func (e *Evaluator) UnionIterator(children []iterator.Iterator) (iterator.Iterator, error) {
	it, err := iterator.NewUnion(children)
	if err != nil {
		return nil, e.classify(err)
	}
	return it, nil
}

// GeneralizedIntersectionIterator wraps already-built child iterators
// (some possibly iterator.Negate-wrapped) in a generalized intersection.
func (e *Evaluator) GeneralizedIntersectionIterator(children []iterator.Iterator) (iterator.Iterator, error) {
	it, err := iterator.NewGeneralizedIntersection(children)
	if err != nil {
		return nil, e.classify(err)
	}
	return it, nil
}

// Count returns the live posting cardinality for token: buffered live rows
// plus on-disk records, minus any on-disk rows tombstoned in the buffer,
// with a row that is both on disk and buffered live counted once.
func (e *Evaluator) Count(token uint64) (int, error) {
	f, err := posting.Open(e.dir, token, e.schema)
	if err != nil {
		return 0, e.classify(err)
	}
	defer f.Close()

	diskCount := f.Count()
	if diskCount > 0 && slices.Contains(e.buf.Tokens(), token) {
		// Disk-resident rows that are tombstoned, or also buffered live,
		// must not be counted from disk; walk the file to exclude them.
		// This keeps Count() O(1) in the file size when the buffer holds
		// nothing for this token, and O(disk size) only when it does.
		cursor := f.NewCursor()
		excluded := 0
		for {
			r, ok, err := cursor.Next()
			if err != nil {
				return 0, e.classify(err)
			}
			if !ok {
				break
			}
			if e.buf.IsTombstoned(token, r) {
				excluded++
				continue
			}
			for live := range e.buf.LiveIterator(token, r) {
				if live.Compare(r) == 0 {
					excluded++
				}
				break
			}
		}
		diskCount -= excluded
	}

	return diskCount + e.buf.Count(token), nil
}

// FetchMany pulls up to n rows from it in order. Callers may re-enter the
// query with lower_bound = successor(last_row) to resume a paginated scan.
func FetchMany(it iterator.Iterator, n int) ([]row.Row, error) {
	if n < 0 {
		n = 0
	}
	rows := make([]row.Row, 0, n)
	for len(rows) < n {
		r, ok := it.Current()
		if !ok {
			break
		}
		rows = append(rows, r)
		if err := it.Advance(); err != nil {
			return rows, err
		}
	}
	return rows, nil
}

// KVUnion merges posting lists across tokens for the U64KV schema,
// returning distinct (key,value) rows — useful when the caller wants the
// value side aggregated externally.
func (e *Evaluator) KVUnion(tokens []uint64, lb row.Row, n int) ([]row.Row, error) {
	if e.schema.Name() != "u64kv" {
		return nil, fmt.Errorf("%w: kv_union requires the u64kv schema", ErrPrecondition)
	}
	it, err := e.UnionIteratorForTokens(tokens, lb)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	return FetchMany(it, n)
}
