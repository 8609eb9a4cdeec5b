package iterator

import (
	"fmt"
	"iter"

	"github.com/arvindrs/invidx/memtable"
	"github.com/arvindrs/invidx/posting"
	"github.com/arvindrs/invidx/row"
)

// tokenIterator merges the buffered rows for a token with its posting file
// (k-way, k=2) under deduplication, honoring lower_bound by seeking both
// sources. Rows tombstoned in the buffer — whether still disk-resident or
// not — are suppressed.
type tokenIterator struct {
	diskFile *posting.File
	disk     *posting.Cursor
	buf      *memtable.Buffer
	token    uint64

	bufNext func() (row.Row, bool)
	bufStop func()

	diskPeek   row.Row
	diskPeekOk bool
	bufPeek    row.Row
	bufPeekOk  bool

	current   row.Row
	exhausted bool
}

// NewToken opens a token iterator positioned at the first row >= lb.
func NewToken(dir string, schema row.Schema, buf *memtable.Buffer, token uint64, lb row.Row) (Iterator, error) {
	f, err := posting.Open(dir, token, schema)
	if err != nil {
		return nil, fmt.Errorf("iterator: open token %d: %w", token, err)
	}

	it := &tokenIterator{diskFile: f, disk: f.NewCursor(), buf: buf, token: token}
	if err := it.Seek(lb); err != nil {
		f.Close()
		return nil, err
	}
	return it, nil
}

func (it *tokenIterator) Current() (row.Row, bool) {
	if it.exhausted {
		return nil, false
	}
	return it.current, true
}

func (it *tokenIterator) Exhausted() bool { return it.exhausted }

func (it *tokenIterator) Close() error {
	if it.bufStop != nil {
		it.bufStop()
	}
	return it.diskFile.Close()
}

// Seek repositions both sources at r (binary search on disk, skip-list
// probe on the buffer) and reprimes Current. No-op if already >= r or
// exhausted.
func (it *tokenIterator) Seek(r row.Row) error {
	if it.exhausted || (it.current != nil && it.current.Compare(r) >= 0) {
		return nil
	}

	if err := it.disk.Seek(r); err != nil {
		return fmt.Errorf("iterator: seek token %d: %w", it.token, err)
	}
	if it.bufStop != nil {
		it.bufStop()
	}
	next, stop := iter.Pull(it.buf.LiveIterator(it.token, r))
	it.bufNext, it.bufStop = next, stop

	var err error
	it.diskPeek, it.diskPeekOk, err = it.disk.Next()
	if err != nil {
		return fmt.Errorf("iterator: read token %d: %w", it.token, err)
	}
	it.bufPeek, it.bufPeekOk = it.bufNext()

	return it.fill()
}

// Advance moves past the current row to the next distinct, live row.
func (it *tokenIterator) Advance() error {
	if it.exhausted {
		return nil
	}
	return it.fill()
}

// fill advances the peek cursors past the current candidate (first call)
// and any tombstoned or duplicate rows, landing Current on the next live
// row or setting Exhausted.
func (it *tokenIterator) fill() error {
	for {
		if !it.diskPeekOk && !it.bufPeekOk {
			it.current = nil
			it.exhausted = true
			return nil
		}

		var candidate row.Row
		takeDisk, takeBuf := false, false
		switch {
		case !it.bufPeekOk || (it.diskPeekOk && it.diskPeek.Compare(it.bufPeek) <= 0):
			candidate = it.diskPeek
			takeDisk = true
			if it.bufPeekOk && it.bufPeek.Compare(candidate) == 0 {
				takeBuf = true
			}
		default:
			candidate = it.bufPeek
			takeBuf = true
		}

		if takeDisk {
			var err error
			it.diskPeek, it.diskPeekOk, err = it.disk.Next()
			if err != nil {
				return fmt.Errorf("iterator: read token %d: %w", it.token, err)
			}
		}
		if takeBuf {
			it.bufPeek, it.bufPeekOk = it.bufNext()
		}

		if it.buf.IsTombstoned(it.token, candidate) {
			continue
		}

		it.current = candidate
		return nil
	}
}
