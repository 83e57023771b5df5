package pipeline

import (
	"context"
	"io"
)

// SliceSource replays a fixed list of frames, used for still images.
type SliceSource struct {
	frames []*Frame
	pos    int
}

// NewSliceSource creates a source that yields frames in order and then io.EOF.
func NewSliceSource(frames ...*Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}
