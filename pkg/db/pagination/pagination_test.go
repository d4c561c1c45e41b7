package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func rows(ids ...string) []*row {
	out := make([]*row, len(ids))
	for i, id := range ids {
		out[i] = &row{id: id}
	}
	return out
}

func TestPage(t *testing.T) {
	extract := func(r *row) Cursor { return Cursor{ID: r.id} }

	data, info, err := Page(rows("a", "b", "c"), 2, extract)
	require.NoError(t, err)
	require.Len(t, data, 2)
	require.True(t, info.HasMore)

	c, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "b", c.ID)

	data, info, err = Page(rows("a", "b"), 2, extract)
	require.NoError(t, err)
	require.Len(t, data, 2)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.Normalize().Limit)
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.Normalize().Limit)
	require.Equal(t, 7, Pagination{Limit: 7}.Normalize().Limit)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	require.Error(t, err)
}
