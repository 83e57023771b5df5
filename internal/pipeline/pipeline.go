package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/kozaktomas/attendance/internal/roster"
)

// Face is one detected face, cropped and encoded for the embedding service.
type Face struct {
	Box   image.Rectangle
	Image []byte
}

// Frame is one processed camera frame.
type Frame struct {
	Index     int
	Timestamp time.Time
	Faces     []Face
}

// Recognition is what the pipeline concluded about one face.
type Recognition struct {
	Face        Face
	Match       recognition.Match
	Observation attendance.Observation
	Err         error
}

// FrameSource produces frames with detected faces. Next returns io.EOF when the
// source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (*Frame, error)
}

// Previewer shows recognitions to the operator. Show returns false when the
// operator asked to stop.
type Previewer interface {
	Show(frame *Frame, recs []Recognition) bool
}

// Embedder turns a face image into an embedding.
type Embedder interface {
	EmbedFace(ctx context.Context, image []byte) ([]float32, error)
}

// Matcher finds the registered student for an embedding.
type Matcher interface {
	Match(ctx context.Context, emb []float32) (recognition.Match, error)
}

// StopReason says why a run ended.
type StopReason string

const (
	StopEndOfStream StopReason = "end of stream"
	StopCancelled   StopReason = "cancelled"
	StopDuration    StopReason = "duration elapsed"
	StopQuit        StopReason = "quit"
	StopComplete    StopReason = "all students present"
)

// Summary describes a finished run.
type Summary struct {
	SessionID    string
	Started      time.Time
	Finished     time.Time
	Frames       int
	Faces        int
	Recognized   int
	Unknown      int
	EmbedErrors  int
	Present      []string
	Students     int
	StopReason   StopReason
	ReportPath   string
	ReportFormat string
}

// Options configures a Runner.
type Options struct {
	SessionID        string
	ClassName        string
	Students         []roster.Student
	ReportPath       string
	ReportFormat     string
	MaxDuration      time.Duration // 0 runs until the source ends or the run is cancelled
	StopWhenComplete bool
}

// Runner sequences capture, embedding, matching, debounce and reporting.
type Runner struct {
	source   FrameSource
	embedder Embedder
	matcher  Matcher
	tracker  *attendance.Tracker
	marks    attendance.MarkStore
	preview  Previewer
	log      *logrus.Logger
	opts     Options
	now      func() time.Time
}

// NewRunner creates a runner. marks and preview may be nil.
func NewRunner(source FrameSource, embedder Embedder, matcher Matcher, tracker *attendance.Tracker,
	marks attendance.MarkStore, preview Previewer, log *logrus.Logger, opts Options) *Runner {
	return &Runner{
		source:   source,
		embedder: embedder,
		matcher:  matcher,
		tracker:  tracker,
		marks:    marks,
		preview:  preview,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// Run processes frames until the source ends, the context is cancelled, the
// maximum duration elapses, the operator quits or, with StopWhenComplete, every
// student is present. The report is rewritten on each new confirmation and once
// more at the end.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{
		SessionID:    r.opts.SessionID,
		Started:      r.now(),
		Students:     len(r.opts.Students),
		ReportPath:   r.opts.ReportPath,
		ReportFormat: r.opts.ReportFormat,
	}

	if r.opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.MaxDuration)
		defer cancel()
	}

	if err := r.StartSession(ctx); err != nil {
		return summary, err
	}

	runErr := r.loop(ctx, &summary)

	summary.Finished = r.now()
	summary.Present = r.tracker.Snapshot().PresentIDs()
	if err := r.writeReport(); err != nil {
		return summary, errors.Join(runErr, err)
	}

	r.log.WithFields(logrus.Fields{
		"session":  summary.SessionID,
		"frames":   summary.Frames,
		"faces":    summary.Faces,
		"present":  len(summary.Present),
		"students": summary.Students,
		"reason":   summary.StopReason,
	}).Info("attendance run finished")

	return summary, runErr
}

func (r *Runner) loop(ctx context.Context, summary *Summary) error {
	for {
		if err := ctx.Err(); err != nil {
			summary.StopReason = stopReason(err)
			return nil
		}

		frame, err := r.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				summary.StopReason = StopEndOfStream
				return nil
			case ctx.Err() != nil:
				summary.StopReason = stopReason(ctx.Err())
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		summary.Frames++

		recs, err := r.processFrame(ctx, frame, summary)
		if err != nil {
			return err
		}

		if r.preview != nil && !r.preview.Show(frame, recs) {
			summary.StopReason = StopQuit
			return nil
		}

		if r.opts.StopWhenComplete && r.rosterComplete() {
			summary.StopReason = StopComplete
			return nil
		}
	}
}

// StartSession records the session and its class name when the mark store keeps
// sessions. The CSV ledger has no session metadata.
func (r *Runner) StartSession(ctx context.Context) error {
	store, ok := r.marks.(database.SessionStore)
	if !ok || r.opts.SessionID == "" {
		return nil
	}
	err := store.StartSession(ctx, database.Session{
		ID:        r.opts.SessionID,
		ClassName: r.opts.ClassName,
		StartedAt: r.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", r.opts.SessionID, err)
	}
	return nil
}

// rosterComplete reports whether every roster student is present. Confirmed IDs
// outside the roster do not count.
func (r *Runner) rosterComplete() bool {
	if len(r.opts.Students) == 0 {
		return false
	}
	present := make(map[string]bool)
	for _, id := range r.tracker.Snapshot().PresentIDs() {
		present[id] = true
	}
	for _, s := range r.opts.Students {
		if !present[s.ID] {
			return false
		}
	}
	return true
}

func stopReason(err error) StopReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return StopDuration
	}
	return StopCancelled
}

// ProcessFrame recognises every face of a frame without the surrounding loop.
// The web kiosk uses it for uploaded snapshots.
func (r *Runner) ProcessFrame(ctx context.Context, frame *Frame) ([]Recognition, error) {
	var summary Summary
	return r.processFrame(ctx, frame, &summary)
}

func (r *Runner) processFrame(ctx context.Context, frame *Frame, summary *Summary) ([]Recognition, error) {
	recs := make([]Recognition, 0, len(frame.Faces))

	for _, face := range frame.Faces {
		summary.Faces++
		rec := Recognition{Face: face}

		emb, err := r.embedder.EmbedFace(ctx, face.Image)
		if err != nil {
			if ctx.Err() != nil {
				return recs, nil
			}
			summary.EmbedErrors++
			r.log.WithFields(logrus.Fields{"frame": frame.Index, "box": face.Box.String()}).
				WithError(err).Warn("skipping face")
			rec.Err = err
			recs = append(recs, rec)
			continue
		}

		match, err := r.matcher.Match(ctx, emb)
		if err != nil {
			return recs, fmt.Errorf("failed to match face: %w", err)
		}
		rec.Match = match

		if !match.Known {
			summary.Unknown++
			recs = append(recs, rec)
			continue
		}
		summary.Recognized++

		rec.Observation = r.tracker.Observe(match, frame.Timestamp)
		r.log.WithFields(logrus.Fields{
			"student":    match.StudentID,
			"distance":   fmt.Sprintf("%.4f", match.Distance),
			"confidence": fmt.Sprintf("%.1f", match.Confidence),
			"count":      rec.Observation.Count,
		}).Debug("face recognised")

		if rec.Observation.NewlyConfirmed {
			if err := r.confirm(ctx, match.StudentID, frame.Timestamp); err != nil {
				return recs, err
			}
		}
		recs = append(recs, rec)
	}

	return recs, nil
}

func (r *Runner) confirm(ctx context.Context, studentID string, at time.Time) error {
	fields := logrus.Fields{"student": studentID, "session": r.opts.SessionID}

	if r.marks != nil {
		recorded, err := r.marks.RecordMark(ctx, attendance.Mark{StudentID: studentID, SessionID: r.opts.SessionID, At: at})
		if err != nil {
			return fmt.Errorf("failed to record attendance for %s: %w", studentID, err)
		}
		if !recorded {
			r.log.WithFields(fields).Info("attendance already marked")
		}
	}
	r.log.WithFields(fields).Info("student present")

	return r.writeReport()
}

func (r *Runner) writeReport() error {
	if r.opts.ReportPath == "" {
		return nil
	}
	rows := attendance.BuildRows(r.opts.Students, r.tracker.Snapshot(), r.now())
	if err := attendance.WriteReport(r.opts.ReportPath, r.opts.ReportFormat, rows, r.opts.SessionID); err != nil {
		return err
	}
	return nil
}

// WriteReport rewrites the report with the current tracker state.
func (r *Runner) WriteReport() error {
	return r.writeReport()
}
