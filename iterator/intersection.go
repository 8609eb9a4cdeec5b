package iterator

import (
	"errors"

	"github.com/arvindrs/invidx/row"
)

// ErrNoChildren is a precondition violation: Intersection and
// GeneralizedIntersection both require at least one (non-negated) child.
var ErrNoChildren = errors.New("iterator: intersection requires at least one child")

// intersection is the leapfrog join over N child iterators: it repeatedly
// seeks every child to the maximum of their current rows until all agree,
// emitting that row and advancing one child a single step. Complexity on a
// selective query is proportional to the sparsest child.
type intersection struct {
	children  []Iterator
	current   row.Row
	exhausted bool
}

// NewIntersection builds a leapfrog intersection over children, already
// positioned at the query's lower_bound. Returns ErrNoChildren if children
// is empty.
func NewIntersection(children []Iterator) (Iterator, error) {
	if len(children) == 0 {
		return nil, ErrNoChildren
	}
	it := &intersection{children: children}
	if err := it.converge(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *intersection) Current() (row.Row, bool) {
	if it.exhausted {
		return nil, false
	}
	return it.current, true
}

func (it *intersection) Exhausted() bool { return it.exhausted }

func (it *intersection) Close() error {
	var firstErr error
	for _, c := range it.children {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (it *intersection) Seek(r row.Row) error {
	if !it.exhausted && it.current != nil && it.current.Compare(r) >= 0 {
		return nil
	}
	for _, c := range it.children {
		if err := c.Seek(r); err != nil {
			return err
		}
	}
	return it.converge()
}

func (it *intersection) Advance() error {
	if it.exhausted {
		return nil
	}
	if err := it.children[0].Advance(); err != nil {
		return err
	}
	return it.converge()
}

// converge repeatedly seeks every child to the maximum current row across
// all children until they all agree, or until one is exhausted.
func (it *intersection) converge() error {
	for _, c := range it.children {
		if c.Exhausted() {
			it.exhausted = true
			it.current = nil
			return nil
		}
	}

	for {
		var max row.Row
		for _, c := range it.children {
			cur, _ := c.Current()
			if max == nil || cur.Compare(max) > 0 {
				max = cur
			}
		}

		allMatch := true
		for _, c := range it.children {
			cur, _ := c.Current()
			if cur.Compare(max) == 0 {
				continue
			}
			allMatch = false
			if err := c.Seek(max); err != nil {
				return err
			}
			if c.Exhausted() {
				it.exhausted = true
				it.current = nil
				return nil
			}
		}

		if allMatch {
			it.current = max
			return nil
		}
	}
}
