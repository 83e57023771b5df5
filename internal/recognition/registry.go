package recognition

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps student IDs to their reference embeddings. Students may be
// registered without embeddings; they can never be matched but still appear in
// reports.
type Registry struct {
	mu         sync.RWMutex
	dim        int
	embeddings map[string][][]float32
}

// NewRegistry creates an empty registry. A dim of 0 means the dimension is fixed
// by the first embedding added.
func NewRegistry(dim int) *Registry {
	return &Registry{
		dim:        dim,
		embeddings: make(map[string][][]float32),
	}
}

// Ensure registers a student without adding an embedding.
func (r *Registry) Ensure(studentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.embeddings[studentID]; !ok {
		r.embeddings[studentID] = nil
	}
}

// Add appends a reference embedding for a student.
func (r *Registry) Add(studentID string, emb []float32) error {
	if studentID == "" {
		return fmt.Errorf("empty student id")
	}
	if len(emb) == 0 {
		return fmt.Errorf("empty embedding for %s", studentID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dim == 0 {
		r.dim = len(emb)
	}
	if len(emb) != r.dim {
		return fmt.Errorf("embedding for %s has dimension %d, registry expects %d", studentID, len(emb), r.dim)
	}

	r.embeddings[studentID] = append(r.embeddings[studentID], slices.Clone(emb))
	return nil
}

// Retain drops every student not in ids and returns the dropped IDs, sorted.
func (r *Registry) Retain(ids []string) []string {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []string
	for id := range r.embeddings {
		if !keep[id] {
			dropped = append(dropped, id)
			delete(r.embeddings, id)
		}
	}
	slices.Sort(dropped)
	return dropped
}

// Students returns all registered student IDs, sorted.
func (r *Registry) Students() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.embeddings))
	for id := range r.embeddings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Embeddings returns the reference embeddings of a student.
func (r *Registry) Embeddings(studentID string) [][]float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embeddings[studentID]
}

// Has reports whether the student is registered.
func (r *Registry) Has(studentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.embeddings[studentID]
	return ok
}

// Len returns the number of registered students.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.embeddings)
}

// EmbeddingCount returns the total number of reference embeddings.
func (r *Registry) EmbeddingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, embs := range r.embeddings {
		n += len(embs)
	}
	return n
}

// Dim returns the embedding dimension, 0 when nothing has been added yet.
func (r *Registry) Dim() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dim
}

// reference is one embedding together with its owner.
type reference struct {
	studentID string
	embedding []float32
}

// references flattens the registry in a stable order (student ID, then insertion).
func (r *Registry) references() []reference {
	ids := r.Students()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var refs []reference
	for _, id := range ids {
		for _, emb := range r.embeddings[id] {
			refs = append(refs, reference{studentID: id, embedding: emb})
		}
	}
	return refs
}
