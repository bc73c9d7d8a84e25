package vector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	idx, err := Open(filepath.Join(t.TempDir(), "vectors.db"), testDim, logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIDs(t *testing.T) {
	idx := newTestIndex(t)

	ids, err := idx.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0, 0}, "note", "A"))
	require.NoError(t, idx.Upsert("b", []float32{0, 1, 0, 0}, "note", "B"))

	ids, err = idx.IDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestOpen_InvalidConfig(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	_, err := Open("", testDim, logger)
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "v.db"), 0, logger)
	assert.Error(t, err)
}

func TestUpsertQuery(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0, 0}, "note", "A"))
	require.NoError(t, idx.Upsert("b", []float32{0, 1, 0, 0}, "note", "B"))
	require.NoError(t, idx.Upsert("c", []float32{0.9, 0.1, 0, 0}, "note", "C"))

	hits, err := idx.Query([]float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Exact match first, near match second, orthogonal last.
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.Equal(t, "b", hits[2].ID)

	// Scores are monotonic with closeness.
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Greater(t, hits[1].Score, hits[2].Score)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestUpsert_Replace(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0, 0}, "note", "A"))
	require.NoError(t, idx.Upsert("a", []float32{0, 1, 0, 0}, "note", "A v2"))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := idx.Query([]float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)

	err := idx.Upsert("a", []float32{1, 0}, "note", "A")
	require.Error(t, err)

	_, err = idx.Query([]float32{1, 0}, 1)
	require.Error(t, err)
}

func TestRemove(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0, 0}, "note", "A"))
	require.NoError(t, idx.Remove("a"))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	hits, err := idx.Query([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Removing an absent id is a no-op.
	assert.NoError(t, idx.Remove("a"))
}

func TestQuery_Limit(t *testing.T) {
	idx := newTestIndex(t)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		vec := []float32{float32(i), 1, 0, 0}
		require.NoError(t, idx.Upsert(id, vec, "note", id))
	}

	hits, err := idx.Query([]float32{1, 1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
