package iterator_test

import (
	"github.com/arvindrs/invidx/row"
)

// sliceIterator is a minimal Iterator backed by an in-memory ascending slice,
// used to exercise intersection/union/negation composition without needing a
// posting file or buffer for every test.
type sliceIterator struct {
	rows     []row.Row
	idx      int
	closed   bool
	closeErr error
}

func newSliceIterator(rows ...row.Row) *sliceIterator {
	return &sliceIterator{rows: rows}
}

func (s *sliceIterator) Current() (row.Row, bool) {
	if s.idx >= len(s.rows) {
		return nil, false
	}
	return s.rows[s.idx], true
}

func (s *sliceIterator) Advance() error {
	if s.idx < len(s.rows) {
		s.idx++
	}
	return nil
}

func (s *sliceIterator) Seek(r row.Row) error {
	for s.idx < len(s.rows) && s.rows[s.idx].Compare(r) < 0 {
		s.idx++
	}
	return nil
}

func (s *sliceIterator) Exhausted() bool { return s.idx >= len(s.rows) }

func (s *sliceIterator) Close() error {
	s.closed = true
	return s.closeErr
}

func u64s(keys ...uint64) []row.Row {
	rows := make([]row.Row, len(keys))
	for i, k := range keys {
		rows[i] = row.U64{Key: k}
	}
	return rows
}

func drain(it interface {
	Current() (row.Row, bool)
	Advance() error
}) ([]uint64, error) {
	var got []uint64
	for {
		r, ok := it.Current()
		if !ok {
			return got, nil
		}
		got = append(got, r.(row.U64).Key)
		if err := it.Advance(); err != nil {
			return got, err
		}
	}
}
