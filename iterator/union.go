package iterator

import (
	"container/heap"

	"github.com/arvindrs/invidx/row"
)

// childHeap orders a set of positioned, non-exhausted iterators by their
// current row, smallest first — container/heap is the idiomatic standard
// library tool for a k-way merge over a custom ordering; no third-party
// library in the pack targets exactly this (see DESIGN.md).
type childHeap []Iterator

func (h childHeap) Len() int { return len(h) }
func (h childHeap) Less(i, j int) bool {
	a, _ := h[i].Current()
	b, _ := h[j].Current()
	return a.Compare(b) < 0
}
func (h childHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *childHeap) Push(x any)   { *h = append(*h, x.(Iterator)) }
func (h *childHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// union heap-merges N child iterators, emitting each distinct row once.
type union struct {
	children  []Iterator
	h         childHeap
	current   row.Row
	exhausted bool
}

// NewUnion builds a union iterator over children, already positioned at the
// query's lower_bound.
func NewUnion(children []Iterator) (Iterator, error) {
	it := &union{children: children}
	it.rebuildHeap()
	if err := it.advanceInternal(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *union) rebuildHeap() {
	it.h = it.h[:0]
	for _, c := range it.children {
		if !c.Exhausted() {
			it.h = append(it.h, c)
		}
	}
	heap.Init(&it.h)
}

func (it *union) Current() (row.Row, bool) {
	if it.exhausted {
		return nil, false
	}
	return it.current, true
}

func (it *union) Exhausted() bool { return it.exhausted }

func (it *union) Close() error {
	var firstErr error
	for _, c := range it.children {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (it *union) Seek(r row.Row) error {
	if !it.exhausted && it.current != nil && it.current.Compare(r) >= 0 {
		return nil
	}
	for _, c := range it.children {
		if err := c.Seek(r); err != nil {
			return err
		}
	}
	it.rebuildHeap()
	return it.advanceInternal()
}

func (it *union) Advance() error {
	if it.exhausted {
		return nil
	}
	return it.advanceInternal()
}

// advanceInternal pops the smallest current row, advances every child that
// shares it (collapsing duplicates), and leaves the heap positioned at the
// next distinct candidate.
func (it *union) advanceInternal() error {
	if it.h.Len() == 0 {
		it.current = nil
		it.exhausted = true
		return nil
	}

	top := heap.Pop(&it.h).(Iterator)
	v, _ := top.Current()

	if err := top.Advance(); err != nil {
		return err
	}
	if !top.Exhausted() {
		heap.Push(&it.h, top)
	}

	for it.h.Len() > 0 {
		next := it.h[0]
		cur, _ := next.Current()
		if cur.Compare(v) != 0 {
			break
		}
		heap.Pop(&it.h)
		if err := next.Advance(); err != nil {
			return err
		}
		if !next.Exhausted() {
			heap.Push(&it.h, next)
		}
	}

	it.current = v
	return nil
}
