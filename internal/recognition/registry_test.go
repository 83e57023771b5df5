package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry(0)
	require.NoError(t, reg.Add("B_BOB", []float32{0, 1}))
	require.NoError(t, reg.Add("A_ALICE", []float32{1, 0}))
	require.NoError(t, reg.Add("A_ALICE", []float32{0.9, 0.1}))
	reg.Ensure("C_CAROL")
	reg.Ensure("A_ALICE")

	assert.Equal(t, []string{"A_ALICE", "B_BOB", "C_CAROL"}, reg.Students())
	assert.Equal(t, 2, reg.Dim())
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, 3, reg.EmbeddingCount())
	assert.Len(t, reg.Embeddings("A_ALICE"), 2, "Ensure keeps existing embeddings")
	assert.Empty(t, reg.Embeddings("C_CAROL"))
	assert.True(t, reg.Has("C_CAROL"))
	assert.False(t, reg.Has("D_DAN"))
}

func TestRegistry_AddErrors(t *testing.T) {
	reg := NewRegistry(3)

	assert.Error(t, reg.Add("A", []float32{1, 2}), "dimension mismatch")
	assert.Error(t, reg.Add("A", nil), "empty embedding")
	assert.Error(t, reg.Add("", []float32{1, 2, 3}), "empty id")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_AddCopies(t *testing.T) {
	reg := NewRegistry(0)
	emb := []float32{1, 2}
	require.NoError(t, reg.Add("A", emb))
	emb[0] = 99

	assert.Equal(t, float32(1), reg.Embeddings("A")[0][0])
}

func TestRegistry_Retain(t *testing.T) {
	reg := NewRegistry(0)
	require.NoError(t, reg.Add("A_ALICE", []float32{1, 0}))
	require.NoError(t, reg.Add("X_LEFT", []float32{0, 1}))
	reg.Ensure("Z_GONE")

	dropped := reg.Retain([]string{"A_ALICE", "B_BOB"})

	assert.Equal(t, []string{"X_LEFT", "Z_GONE"}, dropped)
	assert.Equal(t, []string{"A_ALICE"}, reg.Students())
	assert.Equal(t, 1, reg.EmbeddingCount())
}
