package posting

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/natefinch/atomic"

	"github.com/arvindrs/invidx/row"
)

// defaultFalsePositiveRate controls the size of the Bloom sidecar built for
// each posting file; negated children of generalized_intersect use it to
// skip a seek() when the filter proves a row cannot be present.
const defaultFalsePositiveRate = 0.01

// BuildBloom constructs a Bloom filter over count rows with the package
// default false-positive rate, sized from an estimated entry count.
func BuildBloom(count int) *bloom.BloomFilter {
	if count < 1 {
		count = 1
	}
	return bloom.NewWithEstimates(uint(count), defaultFalsePositiveRate)
}

// WriteBloom persists filter to dir's sidecar path for token, atomically
// (temp file + rename), trailed by a CRC32 over its serialized bytes.
func WriteBloom(dir string, token uint64, filter *bloom.BloomFilter) error {
	var buf bytes.Buffer
	if _, err := filter.WriteTo(&buf); err != nil {
		return fmt.Errorf("posting: serialize bloom filter: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, crc); err != nil {
		return fmt.Errorf("posting: write bloom checksum: %w", err)
	}

	if err := atomic.WriteFile(BloomPath(dir, token), &buf); err != nil {
		return fmt.Errorf("posting: persist bloom filter: %w", err)
	}
	return nil
}

// ReadBloom loads the Bloom sidecar for token under dir. A missing sidecar
// is legal and yields (nil, nil): callers fall back to an always-maybe
// filter, i.e. they must seek the posting file directly.
func ReadBloom(dir string, token uint64) (*bloom.BloomFilter, error) {
	f, err := os.Open(BloomPath(dir, token))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("posting: open bloom filter: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("posting: read bloom filter: %w", err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: bloom sidecar truncated", ErrCorrupt)
	}

	payload, wantCRC := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return nil, fmt.Errorf("%w: bloom sidecar checksum mismatch", ErrCorrupt)
	}

	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("posting: decode bloom filter: %w", err)
	}
	return filter, nil
}

// MightContain reports whether filter may contain r's encoded bytes. A nil
// filter (no sidecar present) conservatively answers true.
func MightContain(filter *bloom.BloomFilter, schema row.Schema, r row.Row) bool {
	if filter == nil {
		return true
	}
	buf := make([]byte, schema.Size())
	r.Encode(buf)
	return filter.Test(buf)
}

// Probe adapts a loaded Bloom filter to the iterator package's BloomProbe
// interface, so a negated token_iterator can be wrapped with its sidecar
// filter without the iterator package importing bloom/v3 directly.
type Probe struct {
	filter *bloom.BloomFilter
	schema row.Schema
}

// NewProbe wraps filter (which may be nil, meaning no sidecar was found) for
// schema.
func NewProbe(filter *bloom.BloomFilter, schema row.Schema) *Probe {
	return &Probe{filter: filter, schema: schema}
}

// MightContain reports whether r might be present per the wrapped filter.
func (p *Probe) MightContain(r row.Row) bool {
	return MightContain(p.filter, p.schema, r)
}
