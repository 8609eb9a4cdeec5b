package memtable

import (
	"iter"
	"sort"

	"github.com/arvindrs/invidx/row"
)

// Conservative per-entry overheads used by CurrentMemory. These approximate
// the resident cost of a skip list node and a map bucket; the meter only
// needs to be within a constant factor of the true resident cost, not a
// bit-for-bit accounting.
const (
	perRowOverhead   = 48
	perTokenOverhead = 96
)

type tokenEntry struct {
	live       *rowSet
	tombstones *rowSet
}

// Buffer is the in-memory write buffer: a mapping from token to an ordered,
// duplicate-free set of not-yet-flushed rows, plus a parallel tombstone set
// per token recording removes that must be honored against the on-disk
// posting file at the next flush.
type Buffer struct {
	schema   row.Schema
	tokens   map[uint64]*tokenEntry
	memBytes int
}

// New returns an empty write buffer for the given row schema.
func New(schema row.Schema) *Buffer {
	return &Buffer{schema: schema, tokens: make(map[uint64]*tokenEntry)}
}

func (b *Buffer) entry(token uint64) *tokenEntry {
	e, ok := b.tokens[token]
	if !ok {
		e = &tokenEntry{live: newRowSet(), tombstones: newRowSet()}
		b.tokens[token] = e
		b.memBytes += perTokenOverhead
	}
	return e
}

// rowCost is the accounted memory cost of one row: its serialized width
// plus per-node overhead.
func (b *Buffer) rowCost() int {
	return b.schema.Size() + perRowOverhead
}

// Insert adds (token, r) to the buffer if not already present. Idempotent:
// inserting the same pair twice leaves the buffer unchanged the second
// time. A row previously tombstoned by Remove is un-tombstoned by a fresh
// Insert, since a later insert supersedes an earlier remove.
func (b *Buffer) Insert(token uint64, r row.Row) {
	e := b.entry(token)
	if e.tombstones.Delete(r) {
		b.memBytes -= b.rowCost()
	}
	if e.live.Insert(r) {
		b.memBytes += b.rowCost()
	}
}

// Remove removes (token, r) from the buffer's live set if present, and
// records a tombstone for r under token so that a subsequent flush also
// suppresses r if it is resident only on disk. Returns whether r was
// present in the buffer's live set at the time of the call.
func (b *Buffer) Remove(token uint64, r row.Row) bool {
	e := b.entry(token)
	wasLive := e.live.Delete(r)
	if wasLive {
		b.memBytes -= b.rowCost()
	}
	if e.tombstones.Insert(r) {
		b.memBytes += b.rowCost()
	}
	return wasLive
}

// CurrentMemory returns the conservative byte count of everything buffered:
// live rows, tombstones, and per-token bookkeeping.
func (b *Buffer) CurrentMemory() int {
	return b.memBytes
}

// Count returns the number of live rows buffered for token (the in-memory
// component of the index's Count; the on-disk component is added by the
// caller).
func (b *Buffer) Count(token uint64) int {
	e, ok := b.tokens[token]
	if !ok {
		return 0
	}
	return e.live.Size()
}

// IsTombstoned reports whether r has been removed for token and is pending
// suppression at the next flush.
func (b *Buffer) IsTombstoned(token uint64, r row.Row) bool {
	e, ok := b.tokens[token]
	if !ok {
		return false
	}
	return e.tombstones.Contains(r)
}

// LiveIterator yields the buffered live rows for token in ascending order
// starting from the first row >= lb.
func (b *Buffer) LiveIterator(token uint64, lb row.Row) iter.Seq[row.Row] {
	e, ok := b.tokens[token]
	if !ok {
		return func(func(row.Row) bool) {}
	}
	return e.live.Iterator(lb)
}

// Tokens returns every token with pending live rows or tombstones, i.e.
// every token a flush must visit, in ascending order for determinism.
func (b *Buffer) Tokens() []uint64 {
	tokens := make([]uint64, 0, len(b.tokens))
	for t, e := range b.tokens {
		if e.live.Size() > 0 || e.tombstones.Size() > 0 {
			tokens = append(tokens, t)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

// Clear discards the buffered state for token after its rows have been
// durably flushed to disk.
func (b *Buffer) Clear(token uint64) {
	e, ok := b.tokens[token]
	if !ok {
		return
	}
	b.memBytes -= perTokenOverhead
	b.memBytes -= e.live.Size() * b.rowCost()
	b.memBytes -= e.tombstones.Size() * b.rowCost()
	delete(b.tokens, token)
}
