package invidx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvindrs/invidx"
	"github.com/arvindrs/invidx/query"
	"github.com/arvindrs/invidx/row"
)

func keys(rows []row.Row) []uint64 {
	out := make([]uint64, len(rows))
	for i, r := range rows {
		out[i] = r.(row.U64).Key
	}
	return out
}

func Test_Open_Requires_Schema_For_Fresh_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := invidx.Open(dir)
	assert.ErrorIs(t, err, invidx.ErrPrecondition)
}

func Test_Open_Infers_Schema_From_Marker_On_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := invidx.Open(dir, invidx.WithSchema(row.U64Schema))
	require.NoError(t, err)
	require.NoError(t, idx.Insert(1, row.U64{Key: 1}))
	require.NoError(t, idx.Flush())

	reopened, err := invidx.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, row.U64Schema, reopened.Schema())
}

func Test_Insert_Query_Flush_Round_Trip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := invidx.Open(dir, invidx.WithSchema(row.U64Schema))
	require.NoError(t, err)

	for _, k := range []uint64{10, 5, 20, 15} {
		require.NoError(t, idx.Insert(1, row.U64{Key: k}))
	}

	got, err := idx.Intersect([]uint64{1}, row.U64Schema.Smallest(), 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 10, 15, 20}, keys(got))

	require.NoError(t, idx.Flush())
	assert.Equal(t, 0, idx.CurrentMemory())

	gotAfterFlush, err := idx.Intersect([]uint64{1}, row.U64Schema.Smallest(), 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 10, 15, 20}, keys(gotAfterFlush))
}

func Test_Remove_Is_Visible_Before_Flush(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := invidx.Open(dir, invidx.WithSchema(row.U64Schema))
	require.NoError(t, err)

	require.NoError(t, idx.Insert(1, row.U64{Key: 1}))
	require.NoError(t, idx.Insert(1, row.U64{Key: 2}))
	require.NoError(t, idx.Flush())

	wasLive, err := idx.Remove(1, row.U64{Key: 1})
	require.NoError(t, err)
	assert.False(t, wasLive)

	got, err := idx.Intersect([]uint64{1}, row.U64Schema.Smallest(), 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, keys(got))

	require.NoError(t, idx.Flush())
	gotAfterFlush, err := idx.Intersect([]uint64{1}, row.U64Schema.Smallest(), 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, keys(gotAfterFlush))
}

func Test_Insert_Rejects_Wrong_Row_Type(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := invidx.Open(dir, invidx.WithSchema(row.U64Schema))
	require.NoError(t, err)

	err = idx.Insert(1, row.U32Pair{A: 1, B: 2})
	assert.ErrorIs(t, err, invidx.ErrPrecondition)
}

func Test_GeneralizedIntersect_Via_Facade(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := invidx.Open(dir, invidx.WithSchema(row.U64Schema))
	require.NoError(t, err)

	for _, k := range []uint64{1, 2, 3, 4, 5, 6} {
		require.NoError(t, idx.Insert(1, row.U64{Key: k}))
	}
	for _, k := range []uint64{2, 4, 6} {
		require.NoError(t, idx.Insert(2, row.U64{Key: k}))
	}
	require.NoError(t, idx.Flush())

	got, err := idx.GeneralizedIntersect([]query.TokenNeg{
		{Token: 1},
		{Token: 2, Negated: true},
	}, row.U64Schema.Smallest(), 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 5}, keys(got))
}

func Test_Count_Reflects_Mixed_Disk_And_Buffer_State(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := invidx.Open(dir, invidx.WithSchema(row.U64Schema))
	require.NoError(t, err)

	require.NoError(t, idx.Insert(1, row.U64{Key: 1}))
	require.NoError(t, idx.Insert(1, row.U64{Key: 2}))
	require.NoError(t, idx.Flush())

	require.NoError(t, idx.Insert(1, row.U64{Key: 3}))
	count, err := idx.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
