package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvindrs/invidx/memtable"
	"github.com/arvindrs/invidx/posting"
	"github.com/arvindrs/invidx/query"
	"github.com/arvindrs/invidx/row"
)

func writeToken(t *testing.T, dir string, token uint64, keys ...uint64) {
	t.Helper()
	rows := make([]row.Row, len(keys))
	for i, k := range keys {
		rows[i] = row.U64{Key: k}
	}
	require.NoError(t, posting.MergeWrite(dir, token, row.U64Schema, func(yield func(row.Row) bool) {
		for _, r := range rows {
			if !yield(r) {
				return
			}
		}
	}))
}

func keys(rows []row.Row) []uint64 {
	out := make([]uint64, len(rows))
	for i, r := range rows {
		out[i] = r.(row.U64).Key
	}
	return out
}

func Test_Intersect_Evens_And_Multiples_Of_Three(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var evens, threes []uint64
	for i := uint64(1); i <= 30; i++ {
		if i%2 == 0 {
			evens = append(evens, i)
		}
		if i%3 == 0 {
			threes = append(threes, i)
		}
	}
	writeToken(t, dir, 2, evens...)
	writeToken(t, dir, 3, threes...)

	buf := memtable.New(row.U64Schema)
	ev := query.New(dir, row.U64Schema, buf)

	got, err := ev.Intersect([]uint64{2, 3}, row.U64Schema.Smallest(), 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{6, 12, 18, 24, 30}, keys(got))
}

func Test_Intersect_Rejects_Empty_Token_List(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	buf := memtable.New(row.U64Schema)
	ev := query.New(dir, row.U64Schema, buf)

	_, err := ev.Intersect(nil, row.U64Schema.Smallest(), 10)
	assert.ErrorIs(t, err, query.ErrPrecondition)
}

func Test_GeneralizedIntersect_Excludes_Negated_Token(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeToken(t, dir, 1, 1, 2, 3, 4, 5, 6)
	writeToken(t, dir, 2, 2, 4, 6)

	buf := memtable.New(row.U64Schema)
	ev := query.New(dir, row.U64Schema, buf)

	got, err := ev.GeneralizedIntersect([]query.TokenNeg{
		{Token: 1},
		{Token: 2, Negated: true},
	}, row.U64Schema.Smallest(), 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 5}, keys(got))
}

func Test_GeneralizedIntersect_Rejects_All_Negated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	buf := memtable.New(row.U64Schema)
	ev := query.New(dir, row.U64Schema, buf)

	_, err := ev.GeneralizedIntersect([]query.TokenNeg{{Token: 1, Negated: true}}, row.U64Schema.Smallest(), 10)
	assert.ErrorIs(t, err, query.ErrPrecondition)
}

func Test_Pagination_Resumes_With_Successor_Of_Last_Row(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeToken(t, dir, 1, 1, 2, 3, 4, 5, 6, 7, 8)

	buf := memtable.New(row.U64Schema)
	ev := query.New(dir, row.U64Schema, buf)

	page1, err := ev.Intersect([]uint64{1}, row.U64Schema.Smallest(), 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, keys(page1))

	last := page1[len(page1)-1]
	page2, err := ev.Intersect([]uint64{1}, row.U64Schema.Successor(last), 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5, 6}, keys(page2))
}

func Test_Count_Accounts_For_Buffer_And_Tombstones(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeToken(t, dir, 1, 1, 2, 3)

	buf := memtable.New(row.U64Schema)
	buf.Insert(1, row.U64{Key: 4})
	buf.Remove(1, row.U64{Key: 2})

	ev := query.New(dir, row.U64Schema, buf)
	count, err := ev.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func Test_TokenIterator_Lower_Bound_Resume_On_KV_Schema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rows := []row.Row{
		row.U64KV{Key: 1, Value: 10},
		row.U64KV{Key: 1, Value: 20},
		row.U64KV{Key: 2, Value: 5},
	}
	require.NoError(t, posting.MergeWrite(dir, 9, row.U64KVSchema, func(yield func(row.Row) bool) {
		for _, r := range rows {
			if !yield(r) {
				return
			}
		}
	}))

	buf := memtable.New(row.U64KVSchema)
	ev := query.New(dir, row.U64KVSchema, buf)

	it, err := ev.TokenIterator(9, row.U64KV{Key: 1, Value: 15})
	require.NoError(t, err)
	defer it.Close()

	got, err := query.FetchMany(it, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, row.U64KV{Key: 1, Value: 20}, got[0])
	assert.Equal(t, row.U64KV{Key: 2, Value: 5}, got[1])
}

func Test_KVUnion_Requires_U64KV_Schema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	buf := memtable.New(row.U64Schema)
	ev := query.New(dir, row.U64Schema, buf)

	_, err := ev.KVUnion([]uint64{1}, row.U64Schema.Smallest(), 10)
	assert.ErrorIs(t, err, query.ErrPrecondition)
}
