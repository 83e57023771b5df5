package recognition

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/renameio"
)

const (
	// HNSWMaxNeighbors is the M parameter of the graph.
	HNSWMaxNeighbors = 16
	// HNSWEfSearch is the candidate list size used while searching.
	HNSWEfSearch = 64
	// hnswCandidates is how many graph neighbours are re-ranked with the exact metric.
	hnswCandidates = 8
)

// HNSWIndexMetadata stores metadata for validating a persisted graph.
type HNSWIndexMetadata struct {
	Metric    Metric    `json:"metric"`
	NodeCount int       `json:"node_count"`
	Dim       int       `json:"dim"`
	BuildTime time.Time `json:"build_time"`
	Digest    string    `json:"digest,omitempty"` // of the references behind the node keys
}

// HNSWIndex is an approximate nearest-neighbour index over the registry using
// coder/hnsw. The graph only proposes candidates; the final distance always comes
// from the exact metric so thresholds keep their meaning.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[int64]
	refs   []reference // node key is the position in refs
	metric Metric
	dim    int
}

func newGraph(metric Metric) *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / math.Log(float64(HNSWMaxNeighbors))
	g.EfSearch = HNSWEfSearch
	if metric == Cosine {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}
	return g
}

// graphVector is the vector stored in the graph. euclidean_l2 compares unit
// vectors, so they are normalised before insertion.
func graphVector(metric Metric, emb []float32) []float32 {
	if metric == EuclideanL2 {
		return Normalize(emb)
	}
	return emb
}

// NewHNSWIndex builds the graph from the registry.
func NewHNSWIndex(reg *Registry, metric Metric) *HNSWIndex {
	h := &HNSWIndex{
		graph:  newGraph(metric),
		refs:   reg.references(),
		metric: metric,
		dim:    reg.Dim(),
	}
	for i, ref := range h.refs {
		h.graph.Add(hnsw.MakeNode(int64(i), graphVector(metric, ref.embedding)))
	}
	return h
}

// LoadHNSWIndex restores a graph saved with Save. The registry must be the one the
// graph was built from; node keys are positions in its stable reference order.
func LoadHNSWIndex(path string, reg *Registry, metric Metric) (*HNSWIndex, error) {
	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return nil, err
	}

	refs := reg.references()
	if meta.Metric != metric || meta.NodeCount != len(refs) || meta.Dim != reg.Dim() {
		return nil, fmt.Errorf("%w: graph has %d nodes (%s), registry has %d embeddings (%s)",
			ErrStaleCache, meta.NodeCount, meta.Metric, len(refs), metric)
	}
	if meta.Digest != referencesDigest(refs) {
		return nil, fmt.Errorf("%w: graph was built from other embeddings", ErrStaleCache)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read HNSW index: %w", err)
	}

	g := newGraph(metric)
	if err := g.Import(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to import HNSW graph: %w", err)
	}

	return &HNSWIndex{graph: g, refs: refs, metric: metric, dim: reg.Dim()}, nil
}

// Nearest returns the closest of the graph candidates by exact distance.
func (h *HNSWIndex) Nearest(_ context.Context, query []float32) (Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 {
		return Neighbor{}, ErrEmptyIndex
	}
	if err := checkDim(query, h.dim); err != nil {
		return Neighbor{}, err
	}

	k := min(hnswCandidates, h.graph.Len())
	nodes := h.graph.Search(graphVector(h.metric, query), k)

	best := Neighbor{Distance: math.Inf(1)}
	for _, n := range nodes {
		if n.Key < 0 || int(n.Key) >= len(h.refs) {
			continue
		}
		ref := h.refs[n.Key]
		if d := h.metric.Distance(query, ref.embedding); d < best.Distance {
			best = Neighbor{StudentID: ref.studentID, Distance: d}
		}
	}
	if best.StudentID == "" {
		return Neighbor{}, ErrEmptyIndex
	}
	return best, nil
}

// Len returns the number of graph nodes.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph.Len()
}

// Save persists the graph and a .meta sidecar used to detect a stale graph.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var buf bytes.Buffer
	if err := h.graph.Export(&buf); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write HNSW index file: %w", err)
	}

	meta, err := json.Marshal(HNSWIndexMetadata{
		Metric:    h.metric,
		NodeCount: h.graph.Len(),
		Dim:       h.dim,
		BuildTime: time.Now(),
		Digest:    referencesDigest(h.refs),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := renameio.WriteFile(path+".meta", meta, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// referencesDigest hashes student IDs and embeddings in node key order.
func referencesDigest(refs []reference) string {
	h := sha256.New()
	var buf [4]byte
	for _, ref := range refs {
		h.Write([]byte(ref.studentID))
		h.Write([]byte{0})
		for _, v := range ref.embedding {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}
