package recognition

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
)

// ErrStaleCache is returned when a cache was built for another model or from
// other reference images.
var ErrStaleCache = errors.New("embeddings cache is stale")

// CacheMetadata is stored next to the cache in a .meta file.
type CacheMetadata struct {
	Model        string    `json:"model"`
	Dim          int       `json:"dim"`
	StudentCount int       `json:"student_count"`
	Embeddings   int       `json:"embeddings"`
	BuildTime    time.Time `json:"build_time"`
	Fingerprint  string    `json:"fingerprint,omitempty"` // roster the cache was built from
}

type cachePayload struct {
	Dim        int
	Embeddings map[string][][]float32
}

// SaveCache writes the registry as gob plus a JSON metadata sidecar. Both files
// are replaced atomically. fingerprint identifies the reference images the
// registry was computed from.
func SaveCache(path string, reg *Registry, model, fingerprint string) (CacheMetadata, error) {
	reg.mu.RLock()
	payload := cachePayload{Dim: reg.dim, Embeddings: reg.embeddings}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(payload)
	reg.mu.RUnlock()
	if err != nil {
		return CacheMetadata{}, fmt.Errorf("failed to encode embeddings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return CacheMetadata{}, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return CacheMetadata{}, fmt.Errorf("failed to write embeddings cache: %w", err)
	}

	meta := CacheMetadata{
		Model:        model,
		Dim:          reg.Dim(),
		StudentCount: reg.Len(),
		Embeddings:   reg.EmbeddingCount(),
		BuildTime:    time.Now(),
		Fingerprint:  fingerprint,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return CacheMetadata{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := renameio.WriteFile(path+".meta", data, 0o600); err != nil {
		return CacheMetadata{}, fmt.Errorf("failed to write metadata file: %w", err)
	}
	return meta, nil
}

// LoadCacheMetadata reads the .meta sidecar of a cache.
func LoadCacheMetadata(path string) (CacheMetadata, error) {
	var meta CacheMetadata
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return meta, nil
}

// LoadCache reads a registry saved with SaveCache. ErrStaleCache is returned when
// model or fingerprint differ from the values the cache was saved with. Empty
// values skip the check.
func LoadCache(path, model, fingerprint string) (*Registry, CacheMetadata, error) {
	meta, err := LoadCacheMetadata(path)
	if err != nil {
		return nil, meta, err
	}
	if model != "" && meta.Model != model {
		return nil, meta, fmt.Errorf("%w: built with %s, configured %s", ErrStaleCache, meta.Model, model)
	}
	if fingerprint != "" && meta.Fingerprint != fingerprint {
		return nil, meta, fmt.Errorf("%w: registered faces changed since %s", ErrStaleCache,
			meta.BuildTime.Format(time.DateTime))
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, meta, fmt.Errorf("failed to read embeddings cache: %w", err)
	}

	var payload cachePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, meta, fmt.Errorf("failed to decode embeddings: %w", err)
	}

	reg := NewRegistry(payload.Dim)
	for id, embs := range payload.Embeddings {
		reg.embeddings[id] = embs
	}
	return reg, meta, nil
}
