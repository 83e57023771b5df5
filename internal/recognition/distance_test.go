package recognition

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 2},
		{"empty", nil, nil, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	if got := EuclideanDistance([]float32{0, 0}, []float32{3, 4}); got != 5 {
		t.Errorf("EuclideanDistance() = %v, want 5", got)
	}
	if got := EuclideanDistance([]float32{1}, []float32{1, 2}); !math.IsInf(got, 1) {
		t.Errorf("expected +Inf for mismatched input, got %v", got)
	}
}

func TestMetricDistance(t *testing.T) {
	a := []float32{2, 0}
	b := []float32{0, 5}

	tests := []struct {
		metric   Metric
		expected float64
	}{
		{Cosine, 1},
		{Euclidean, math.Sqrt(29)},
		{EuclideanL2, math.Sqrt2},
	}

	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			if got := tt.metric.Distance(a, b); math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("Distance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input   string
		want    Metric
		wantErr bool
	}{
		{"cosine", Cosine, false},
		{" Euclidean ", Euclidean, false},
		{"EUCLIDEAN_L2", EuclideanL2, false},
		{"manhattan", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMetric(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMetric(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMetric(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
