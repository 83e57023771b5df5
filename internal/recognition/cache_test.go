package recognition

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_RoundTripKeepsEmptyStudents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "embeddings.gob")
	reg := testRegistry(t)

	meta, err := SaveCache(path, reg, "Facenet", "fp1")
	require.NoError(t, err)
	assert.Equal(t, 4, meta.StudentCount)
	assert.Equal(t, 4, meta.Embeddings)

	loaded, loadedMeta, err := LoadCache(path, "Facenet", "fp1")
	require.NoError(t, err)
	assert.Equal(t, reg.Students(), loaded.Students())
	assert.Equal(t, reg.Embeddings("A_ALICE"), loaded.Embeddings("A_ALICE"))
	assert.True(t, loaded.Has("D_DAN"))
	assert.Equal(t, 3, loaded.Dim())
	assert.Equal(t, "Facenet", loadedMeta.Model)
	assert.Equal(t, "fp1", loadedMeta.Fingerprint)
}

func TestLoadCache_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.gob")
	_, err := SaveCache(path, testRegistry(t), "Facenet", "fp1")
	require.NoError(t, err)

	_, _, err = LoadCache(path, "ArcFace", "fp1")
	assert.True(t, errors.Is(err, ErrStaleCache))

	_, _, err = LoadCache(path, "Facenet", "fp2")
	assert.True(t, errors.Is(err, ErrStaleCache), "registered faces changed")

	_, _, err = LoadCache(path, "", "")
	assert.NoError(t, err, "empty values skip the checks")
}

func TestLoadCache_Missing(t *testing.T) {
	_, _, err := LoadCache(filepath.Join(t.TempDir(), "nope.gob"), "", "")
	assert.Error(t, err)
}
