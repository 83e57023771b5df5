package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/pipeline"
)

// maxReadFailures is how many consecutive empty reads end the stream. Video
// files end this way; a webcam that stops delivering frames is treated the same.
const maxReadFailures = 30

// Source reads frames from a webcam, a video file or a stream URL and detects
// faces on every FrameStride-th frame.
type Source struct {
	capture  *gocv.VideoCapture
	detector *Detector
	stride   int

	mu      sync.Mutex
	current gocv.Mat
	frames  int
}

// parseDevice turns "0" into a device index and leaves anything else as a
// file name or URL.
func parseDevice(device string) any {
	if id, err := strconv.Atoi(device); err == nil {
		return id
	}
	return device
}

// Open opens the capture device.
func Open(cfg config.CameraConfig, detector *Detector) (*Source, error) {
	capture, err := gocv.OpenVideoCapture(parseDevice(cfg.Device))
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %s is not available", cfg.Device)
	}

	return &Source{
		capture:  capture,
		detector: detector,
		stride:   max(1, cfg.FrameStride),
		current:  gocv.NewMat(),
	}, nil
}

// Next reads until it has a frame to process.
func (s *Source) Next(ctx context.Context) (*pipeline.Frame, error) {
	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if ok := s.capture.Read(&img); !ok || img.Empty() {
			failures++
			if failures >= maxReadFailures {
				return nil, io.EOF
			}
			continue
		}
		failures = 0

		s.mu.Lock()
		s.frames++
		index := s.frames
		s.mu.Unlock()

		if index%s.stride != 0 {
			continue
		}

		faces, err := s.detector.Faces(img)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		img.CopyTo(&s.current)
		s.mu.Unlock()

		return &pipeline.Frame{Index: index, Timestamp: time.Now(), Faces: faces}, nil
	}
}

// Current returns a copy of the last processed frame. The caller closes it.
func (s *Source) Current() gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Close releases the capture device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.current.Close(), s.capture.Close())
}
