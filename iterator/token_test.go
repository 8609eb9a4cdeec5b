package iterator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvindrs/invidx/iterator"
	"github.com/arvindrs/invidx/memtable"
	"github.com/arvindrs/invidx/posting"
	"github.com/arvindrs/invidx/row"
)

func Test_TokenIterator_Merges_Disk_And_Buffer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, posting.MergeWrite(dir, 1, row.U64Schema, u64Seq(10, 20, 30)))

	buf := memtable.New(row.U64Schema)
	buf.Insert(1, row.U64{Key: 15})
	buf.Insert(1, row.U64{Key: 30})

	it, err := iterator.NewToken(dir, row.U64Schema, buf, 1, row.U64Schema.Smallest())
	require.NoError(t, err)
	defer it.Close()

	got, err := drain(it)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 15, 20, 30}, got)
}

func Test_TokenIterator_Suppresses_Tombstoned_Disk_Rows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, posting.MergeWrite(dir, 1, row.U64Schema, u64Seq(10, 20, 30)))

	buf := memtable.New(row.U64Schema)
	buf.Remove(1, row.U64{Key: 20})

	it, err := iterator.NewToken(dir, row.U64Schema, buf, 1, row.U64Schema.Smallest())
	require.NoError(t, err)
	defer it.Close()

	got, err := drain(it)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 30}, got)
}

func Test_TokenIterator_Honors_Lower_Bound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, posting.MergeWrite(dir, 1, row.U64Schema, u64Seq(10, 20, 30, 40)))

	buf := memtable.New(row.U64Schema)
	buf.Insert(1, row.U64{Key: 25})

	it, err := iterator.NewToken(dir, row.U64Schema, buf, 1, row.U64{Key: 25})
	require.NoError(t, err)
	defer it.Close()

	got, err := drain(it)
	require.NoError(t, err)
	assert.Equal(t, []uint64{25, 30, 40}, got)
}

func Test_TokenIterator_Absent_Posting_File_Uses_Buffer_Only(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	buf := memtable.New(row.U64Schema)
	buf.Insert(1, row.U64{Key: 1})
	buf.Insert(1, row.U64{Key: 2})

	it, err := iterator.NewToken(dir, row.U64Schema, buf, 1, row.U64Schema.Smallest())
	require.NoError(t, err)
	defer it.Close()

	got, err := drain(it)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got)
}

func u64Seq(keys ...uint64) func(func(row.Row) bool) {
	return func(yield func(row.Row) bool) {
		for _, k := range keys {
			if !yield(row.U64{Key: k}) {
				return
			}
		}
	}
}
