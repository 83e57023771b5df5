// Package registration turns the registered faces directory into a registry of
// reference embeddings.
package registration

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/kozaktomas/attendance/internal/roster"
)

// Embedder turns a face image into an embedding.
type Embedder interface {
	EmbedFace(ctx context.Context, image []byte) ([]float32, error)
}

// Skipped is a reference image that produced no embedding.
type Skipped struct {
	StudentID string
	Path      string
	Err       error
}

// Result summarises a registration pass.
type Result struct {
	Students   int
	Images     int
	Embeddings int
	Skipped    []Skipped
}

// Builder embeds every reference image of every student.
type Builder struct {
	embedder     Embedder
	maxImageSize int
	concurrency  int
	log          *logrus.Logger

	// OnImage is called after each image, successful or not.
	OnImage func()
}

// NewBuilder creates a builder. concurrency below 1 is treated as 1.
func NewBuilder(embedder Embedder, maxImageSize, concurrency int, log *logrus.Logger) *Builder {
	return &Builder{
		embedder:     embedder,
		maxImageSize: maxImageSize,
		concurrency:  max(1, concurrency),
		log:          log,
	}
}

type job struct {
	studentID string
	path      string
}

type outcome struct {
	emb []float32
	err error
}

// Build returns a registry containing every student, including students whose
// images all failed. Failed images are logged and skipped. dim 0 lets the first
// embedding fix the dimension.
func (b *Builder) Build(ctx context.Context, students []roster.Student, dim int) (*recognition.Registry, Result, error) {
	reg := recognition.NewRegistry(dim)
	result := Result{Students: len(students)}

	var jobs []job
	for _, s := range students {
		reg.Ensure(s.ID)
		for _, path := range s.Images {
			jobs = append(jobs, job{studentID: s.ID, path: path})
		}
	}
	result.Images = len(jobs)

	outcomes := make([]outcome, len(jobs))
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			emb, err := b.embed(ctx, j.path)
			outcomes[i] = outcome{emb: emb, err: err}
			if b.OnImage != nil {
				b.OnImage()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, result, err
	}

	// Outcomes are applied in job order so a student's embeddings keep the image order.
	for i, j := range jobs {
		o := outcomes[i]
		if o.err == nil {
			o.err = reg.Add(j.studentID, o.emb)
		}
		if o.err != nil {
			b.log.WithFields(logrus.Fields{"student": j.studentID, "image": j.path}).
				WithError(o.err).Warn("skipping reference image")
			result.Skipped = append(result.Skipped, Skipped{StudentID: j.studentID, Path: j.path, Err: o.err})
			continue
		}
		result.Embeddings++
	}

	return reg, result, nil
}

func (b *Builder) embed(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the registered faces directory
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	prepared, err := embedding.PrepareImage(data, b.maxImageSize)
	if err != nil {
		return nil, err
	}
	emb, err := b.embedder.EmbedFace(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}
	return emb, nil
}
