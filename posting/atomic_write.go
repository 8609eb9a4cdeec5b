package posting

import (
	"fmt"
	"io"
	"iter"

	"github.com/natefinch/atomic"

	"github.com/arvindrs/invidx/row"
)

// rowReader streams a sorted row sequence as an io.Reader of fixed-width
// records without materializing the whole posting file in memory, so
// MergeWrite scales to large flushes without an intermediate allocation
// proportional to the merged row count.
type rowReader struct {
	schema   row.Schema
	next     func() (row.Row, bool)
	stop     func()
	leftover []byte
}

func newRowReader(schema row.Schema, rows iter.Seq[row.Row]) *rowReader {
	next, stop := iter.Pull(rows)
	return &rowReader{schema: schema, next: next, stop: stop}
}

func (r *rowReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.leftover) == 0 {
			next, ok := r.next()
			if !ok {
				r.stop()
				if n == 0 {
					return 0, io.EOF
				}
				return n, nil
			}
			buf := make([]byte, r.schema.Size())
			next.Encode(buf)
			r.leftover = buf
		}
		c := copy(p[n:], r.leftover)
		n += c
		r.leftover = r.leftover[c:]
	}
	return n, nil
}

// MergeWrite atomically replaces the posting file for token under dir with
// the rows sequence (temp file + rename). Readers that opened the previous
// file before the rename keep a stable view of it.
func MergeWrite(dir string, token uint64, schema row.Schema, rows iter.Seq[row.Row]) error {
	if err := atomic.WriteFile(Path(dir, token), newRowReader(schema, rows)); err != nil {
		return fmt.Errorf("posting: atomic rewrite: %w", err)
	}
	return nil
}
