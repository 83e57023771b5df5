package camera

import (
	"errors"
	"testing"

	"github.com/kozaktomas/attendance/internal/pipeline"
	"github.com/kozaktomas/attendance/internal/recognition"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"0", 0},
		{"2", 2},
		{"rtsp://10.0.0.5/stream", "rtsp://10.0.0.5/stream"},
		{"lecture.mp4", "lecture.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDevice(tt.input); got != tt.expected {
				t.Errorf("parseDevice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		name  string
		rec   pipeline.Recognition
		label string
	}{
		{"known", pipeline.Recognition{Match: recognition.Match{StudentID: "21CS001_RAHUL", Confidence: 72.4, Known: true}}, "21CS001_RAHUL (72%)"},
		{"unknown", pipeline.Recognition{Match: recognition.Match{StudentID: "21CS001_RAHUL", Distance: 0.9}}, "Unknown"},
		{"error", pipeline.Recognition{Err: errors.New("timeout")}, "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, _ := labelFor(tt.rec)
			if label != tt.label {
				t.Errorf("labelFor() = %q, want %q", label, tt.label)
			}
		})
	}
}
