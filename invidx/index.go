// Package invidx is the index façade: it holds the directory path, the
// chosen row schema, and the write buffer, and presents
// insert/remove/flush/count/current_memory/intersect/generalized_intersect/
// token_iterator/union_iterator/fetch_many over it. All operations are
// serialized by the caller — the façade itself does no internal locking and
// assumes a single writer per instance.
package invidx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/arvindrs/invidx/iterator"
	"github.com/arvindrs/invidx/memtable"
	"github.com/arvindrs/invidx/query"
	"github.com/arvindrs/invidx/row"
	"github.com/arvindrs/invidx/segmentmanager"
)

// ErrPrecondition is re-exported from query for callers that only import
// invidx.
var ErrPrecondition = query.ErrPrecondition

// Option configures Index at Open, following a functional-options pattern.
type Option func(*config)

type config struct {
	schema row.Schema
	log    *zap.SugaredLogger
}

// WithSchema selects the row schema explicitly. Required unless the
// directory already carries a schema marker file from a previous Open.
func WithSchema(schema row.Schema) Option {
	return func(c *config) { c.schema = schema }
}

// WithLogger injects a structured logger. Default is a no-op logger; a nil
// l keeps the default.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// Index is the single-writer, single-schema handle onto one index
// directory.
type Index struct {
	dir    string
	schema row.Schema
	buf    *memtable.Buffer
	sm     *segmentmanager.Manager
	eval   *query.Evaluator
	log    *zap.SugaredLogger
}

const schemaMarkerFile = "schema"

// Open opens or creates the index directory at dir. If the directory
// already has a schema marker and WithSchema was not given, the marker's
// schema is used; if neither is available, opening fails with
// ErrPrecondition.
func Open(dir string, opts ...Option) (*Index, error) {
	cfg := &config{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(cfg)
	}

	schema := cfg.schema
	if schema == nil {
		data, err := os.ReadFile(filepath.Join(dir, schemaMarkerFile))
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w: schema must be supplied via WithSchema for a new index directory", ErrPrecondition)
		case err != nil:
			return nil, fmt.Errorf("invidx: read schema marker: %w", err)
		default:
			var ok bool
			schema, ok = row.ByName(string(data))
			if !ok {
				return nil, fmt.Errorf("%w: unrecognized schema marker %q", ErrPrecondition, data)
			}
		}
	}

	sm, err := segmentmanager.New(dir, schema, segmentmanager.WithLogger(cfg.log))
	if err != nil {
		return nil, err
	}

	buf := memtable.New(schema)
	return &Index{
		dir:    dir,
		schema: schema,
		buf:    buf,
		sm:     sm,
		eval:   query.New(dir, schema, buf),
		log:    cfg.log,
	}, nil
}

// Schema returns the row schema this index was opened with.
func (idx *Index) Schema() row.Schema { return idx.schema }

// Insert adds (token, r) to the write buffer. r must match the index's row
// schema.
func (idx *Index) Insert(token uint64, r row.Row) error {
	if !idx.schema.Match(r) {
		return fmt.Errorf("%w: row type does not match schema %q", ErrPrecondition, idx.schema.Name())
	}
	idx.buf.Insert(token, r)
	return nil
}

// Remove removes (token, r) from the write buffer, and tombstones it so a
// later flush also suppresses it if it is disk-resident. Returns whether r
// was present in the buffer's live set.
func (idx *Index) Remove(token uint64, r row.Row) (bool, error) {
	if !idx.schema.Match(r) {
		return false, fmt.Errorf("%w: row type does not match schema %q", ErrPrecondition, idx.schema.Name())
	}
	return idx.buf.Remove(token, r), nil
}

// Count returns the live posting cardinality for token.
func (idx *Index) Count(token uint64) (int, error) {
	return idx.eval.Count(token)
}

// Flush merges the write buffer into the posting files; the buffer is
// empty once Flush returns successfully.
func (idx *Index) Flush() error {
	idx.log.Debugw("flush starting", "dir", idx.dir)
	err := idx.sm.Flush(idx.buf)
	idx.log.Debugw("flush complete", "dir", idx.dir, "err", err)
	return err
}

// CurrentMemory returns the conservative byte count of the write buffer.
func (idx *Index) CurrentMemory() int {
	return idx.buf.CurrentMemory()
}

// Intersect returns the first n rows, in ascending order, present under
// every token in tokens, starting at lb.
func (idx *Index) Intersect(tokens []uint64, lb row.Row, n int) ([]row.Row, error) {
	return idx.eval.Intersect(tokens, lb, n)
}

// GeneralizedIntersect is Intersect with a per-token negation flag; at
// least one non-negated token is required.
func (idx *Index) GeneralizedIntersect(tokens []query.TokenNeg, lb row.Row, n int) ([]row.Row, error) {
	return idx.eval.GeneralizedIntersect(tokens, lb, n)
}

// TokenIterator returns a direct iterator over token's rows starting at lb.
func (idx *Index) TokenIterator(token uint64, lb row.Row) (iterator.Iterator, error) {
	return idx.eval.TokenIterator(token, lb)
}

// UnionIterator heap-merges token iterators for tokens, starting at lb.
func (idx *Index) UnionIterator(tokens []uint64, lb row.Row) (iterator.Iterator, error) {
	return idx.eval.UnionIteratorForTokens(tokens, lb)
}

// GeneralizedIntersectionIterator builds a standalone generalized
// intersection iterator from already-built children (some possibly
// iterator.Negate-wrapped), for callers composing their own trees.
func (idx *Index) GeneralizedIntersectionIterator(children []iterator.Iterator) (iterator.Iterator, error) {
	return idx.eval.GeneralizedIntersectionIterator(children)
}

// EmptyIterator returns an iterator that is immediately exhausted.
func (idx *Index) EmptyIterator() iterator.Iterator {
	return idx.eval.EmptyIterator()
}

// FetchMany pulls up to n rows from it, in order.
func (idx *Index) FetchMany(it iterator.Iterator, n int) ([]row.Row, error) {
	return query.FetchMany(it, n)
}

// KVUnion merges posting lists across tokens for the U64KV schema.
func (idx *Index) KVUnion(tokens []uint64, lb row.Row, n int) ([]row.Row, error) {
	return idx.eval.KVUnion(tokens, lb, n)
}
