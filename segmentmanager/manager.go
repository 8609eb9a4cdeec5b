// Package segmentmanager orchestrates flushes: it merges the write buffer
// with any existing on-disk posting files, producing new posting files
// named deterministically by token id, and maintaining each file's Bloom
// sidecar. The user of this package only sees Flush; posting file naming
// and the merge algorithm are handled internally.
package segmentmanager

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/arvindrs/invidx/memtable"
	"github.com/arvindrs/invidx/posting"
	"github.com/arvindrs/invidx/row"
)

const schemaMarkerFile = "schema"

// Option configures a Manager at construction, following a
// functional-options pattern.
type Option func(*Manager)

// WithLogger injects a structured logger. The default is a no-op logger; a
// nil l keeps the default.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager merges a memtable.Buffer into the posting files under dir.
type Manager struct {
	dir    string
	schema row.Schema
	log    *zap.SugaredLogger
}

func isDirectoryValid(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("segmentmanager: path exists but is not a directory: %s", path)
	}
	return err
}

// New opens or creates the posting-file directory dir for schema. If the
// directory already carries a schema marker file, it must agree with
// schema; otherwise the marker is written so later opens can infer it.
func New(dir string, schema row.Schema, opts ...Option) (*Manager, error) {
	m := &Manager{dir: dir, schema: schema, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(m)
	}

	if err := isDirectoryValid(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("segmentmanager: create directory: %w", err)
			}
		} else {
			return nil, err
		}
	}

	markerPath := filepath.Join(dir, schemaMarkerFile)
	existing, err := os.ReadFile(markerPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := atomic.WriteFile(markerPath, bytes.NewReader([]byte(schema.Name()))); err != nil {
			return nil, fmt.Errorf("segmentmanager: write schema marker: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("segmentmanager: read schema marker: %w", err)
	case string(existing) != schema.Name():
		return nil, fmt.Errorf("segmentmanager: directory schema %q does not match opened schema %q", existing, schema.Name())
	}

	return m, nil
}

// Flush merges every token pending in buf with its existing posting file,
// writes the merged result atomically, rebuilds the token's Bloom sidecar,
// and clears the token from buf. Flush is linear in total input size per
// token and is the only point at which disk state changes.
//
// On a per-token failure the already-flushed tokens remain valid and the
// failing token (and everything after it, in Tokens() order) stays
// buffered for an idempotent, at-least-once retry.
func (m *Manager) Flush(buf *memtable.Buffer) error {
	for _, token := range buf.Tokens() {
		if err := m.flushToken(buf, token); err != nil {
			return fmt.Errorf("segmentmanager: flush token %d: %w", token, err)
		}
		buf.Clear(token)
	}
	return nil
}

func (m *Manager) flushToken(buf *memtable.Buffer, token uint64) error {
	existingFile, err := posting.Open(m.dir, token, m.schema)
	if err != nil {
		return err
	}
	defer existingFile.Close()

	existingRows, err := readAll(existingFile)
	if err != nil {
		return err
	}

	tomb := func(r row.Row) bool { return buf.IsTombstoned(token, r) }
	merged := func() iter.Seq[row.Row] {
		return mergeAscending(sliceIter(existingRows), buf.LiveIterator(token, m.schema.Smallest()), tomb)
	}

	count := 0
	filter := (*bloom.BloomFilter)(nil)
	for r := range merged() {
		if filter == nil {
			// estimateCount sums existing+live without subtracting rows that
			// appear on both sides (merged dedups them); the filter ends up
			// sized for more entries than it actually gets, so the persisted
			// false-positive rate is better than requested rather than worse.
			filter = posting.BuildBloom(estimateCount(len(existingRows), buf.Count(token)))
		}
		buf2 := make([]byte, m.schema.Size())
		r.Encode(buf2)
		filter.Add(buf2)
		count++
	}

	if err := posting.MergeWrite(m.dir, token, m.schema, merged()); err != nil {
		return err
	}

	if filter == nil {
		filter = posting.BuildBloom(1)
	}
	if err := posting.WriteBloom(m.dir, token, filter); err != nil {
		return err
	}

	m.log.Debugw("flushed token", "token", token, "rows", count)
	return nil
}

func estimateCount(existing, live int) int {
	if existing+live == 0 {
		return 1
	}
	return existing + live
}

func readAll(f *posting.File) ([]row.Row, error) {
	rows := make([]row.Row, 0, f.Count())
	for r, err := range f.ReadFrom(0) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func sliceIter(rows []row.Row) iter.Seq[row.Row] {
	return func(yield func(row.Row) bool) {
		for _, r := range rows {
			if !yield(r) {
				return
			}
		}
	}
}

// mergeAscending performs a 2-way merge of already-ascending sequences a and
// b, deduplicating equal rows and dropping any row for which tomb returns
// true — the core of the flush-merge algorithm.
func mergeAscending(a, b iter.Seq[row.Row], tomb func(row.Row) bool) iter.Seq[row.Row] {
	return func(yield func(row.Row) bool) {
		nextA, stopA := iter.Pull(a)
		nextB, stopB := iter.Pull(b)
		defer stopA()
		defer stopB()

		ra, oka := nextA()
		rb, okb := nextB()
		var last row.Row

		emit := func(r row.Row) bool {
			if tomb(r) {
				return true
			}
			if last != nil && r.Compare(last) == 0 {
				return true
			}
			last = r
			return yield(r)
		}

		for oka && okb {
			switch c := ra.Compare(rb); {
			case c < 0:
				if !emit(ra) {
					return
				}
				ra, oka = nextA()
			case c > 0:
				if !emit(rb) {
					return
				}
				rb, okb = nextB()
			default:
				if !emit(ra) {
					return
				}
				ra, oka = nextA()
				rb, okb = nextB()
			}
		}
		for oka {
			if !emit(ra) {
				return
			}
			ra, oka = nextA()
		}
		for okb {
			if !emit(rb) {
				return
			}
			rb, okb = nextB()
		}
	}
}

