// Package posting implements the on-disk posting file: an append-immutable,
// sorted, fixed-width record file for a single token. It supports a
// binary-searched seek(row >= R) and sequential read, and is replaced
// wholesale by the segment manager on flush via temp+rename.
package posting

import (
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/arvindrs/invidx/row"
)

// ErrCorrupt classifies a posting file whose size is not a multiple of the
// schema's row width, or whose records are not strictly ascending on read.
var ErrCorrupt = fmt.Errorf("posting: corrupt file")

// Path returns the deterministic on-disk path for a token's posting file
// under dir.
func Path(dir string, token uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.postings", token))
}

// BloomPath returns the sidecar Bloom filter path for a token's posting
// file, used by negated children of generalized_intersect to skip seeks
// that are provably misses.
func BloomPath(dir string, token uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.bloom", token))
}

// File is a stable, read-only view over one token's posting file, obtained
// by opening the file descriptor once. An absent file is legal and behaves
// as an empty posting list.
type File struct {
	schema row.Schema
	f      *os.File
	count  int
}

// Open locates a token's posting file under dir. A missing file is not an
// error: it yields a File with Count() == 0.
func Open(dir string, token uint64, schema row.Schema) (*File, error) {
	f, err := os.Open(Path(dir, token))
	if os.IsNotExist(err) {
		return &File{schema: schema}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("posting: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("posting: stat: %w", err)
	}

	size := info.Size()
	width := int64(schema.Size())
	if size%width != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: size %d not a multiple of row width %d", ErrCorrupt, size, width)
	}

	return &File{schema: schema, f: f, count: int(size / width)}, nil
}

// Count returns the number of records in the file.
func (p *File) Count() int { return p.count }

// Close releases the file descriptor, if one was opened. Safe to call on an
// absent-file handle.
func (p *File) Close() error {
	if p.f == nil {
		return nil
	}
	return p.f.Close()
}

func (p *File) readAt(idx int) (row.Row, error) {
	width := p.schema.Size()
	buf := make([]byte, width)
	if _, err := p.f.ReadAt(buf, int64(idx)*int64(width)); err != nil {
		return nil, fmt.Errorf("posting: read record %d: %w", idx, err)
	}
	return p.schema.Decode(buf), nil
}

// Seek performs a binary search over the record index for the first record
// >= r, touching O(log n) records. idx == Count() means no record matches
// (EOF).
func (p *File) Seek(r row.Row) (idx int, err error) {
	lo, hi := 0, p.count
	for lo < hi {
		mid := lo + (hi-lo)/2
		rec, err := p.readAt(mid)
		if err != nil {
			return 0, err
		}
		if rec.Compare(r) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// ReadFrom returns an iterator over records starting at record index idx,
// validating that the stream is strictly ascending as it reads.
func (p *File) ReadFrom(idx int) iter.Seq2[row.Row, error] {
	return func(yield func(row.Row, error) bool) {
		c := p.NewCursor()
		c.idx = idx
		for {
			rec, ok, err := c.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(rec, nil) {
				return
			}
		}
	}
}

// Cursor is a positioned, sequential reader over a File's records: Seek
// binary-searches to a position, Next walks forward from there one record
// at a time, checking that the stream stays strictly ascending.
type Cursor struct {
	f    *File
	idx  int
	prev row.Row
}

// NewCursor returns a cursor positioned at the start of the file.
func (p *File) NewCursor() *Cursor { return &Cursor{f: p} }

// Seek repositions the cursor at the first record >= r via binary search.
func (c *Cursor) Seek(r row.Row) error {
	idx, err := c.f.Seek(r)
	if err != nil {
		return err
	}
	c.idx = idx
	c.prev = nil
	return nil
}

// Next reads the record at the cursor and advances it. ok is false once the
// file is exhausted.
func (c *Cursor) Next() (row.Row, bool, error) {
	if c.f.f == nil || c.idx >= c.f.count {
		return nil, false, nil
	}
	rec, err := c.f.readAt(c.idx)
	if err != nil {
		return nil, false, err
	}
	if c.prev != nil && rec.Compare(c.prev) <= 0 {
		return nil, false, fmt.Errorf("%w: record %d not strictly ascending", ErrCorrupt, c.idx)
	}
	c.prev = rec
	c.idx++
	return rec, true, nil
}

// WriteRecords encodes rows sequentially into w. The posting-file format is
// a bare concatenation of fixed-width records: no framing, no header, no
// checksum — corruption is instead detected on read, from the file size not
// being a multiple of the row width and from a non-ascending record
// stream.
func WriteRecords(w io.Writer, schema row.Schema, rows iter.Seq[row.Row]) error {
	width := schema.Size()
	buf := make([]byte, width)

	for r := range rows {
		r.Encode(buf)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("posting: write record: %w", err)
		}
	}
	return nil
}
