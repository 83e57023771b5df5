package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"EMBEDDING_MODEL", "EMBEDDING_DIM", "RECOGNITION_METRIC", "RECOGNITION_INDEX",
		"ATTENDANCE_CONFIRMATIONS", "REPORT_FORMAT", "CAMERA_SCALE_FACTOR",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Embedding.Model != "Facenet" {
		t.Errorf("expected default model Facenet, got %s", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected default embedding dim 128, got %d", cfg.Embedding.Dim)
	}
	if cfg.Recognition.Metric != MetricCosine {
		t.Errorf("expected default metric cosine, got %s", cfg.Recognition.Metric)
	}
	if cfg.Recognition.Index != IndexLinear {
		t.Errorf("expected default index linear, got %s", cfg.Recognition.Index)
	}
	if cfg.Attendance.Confirmations != 3 {
		t.Errorf("expected default confirmations 3, got %d", cfg.Attendance.Confirmations)
	}
	if cfg.Camera.ScaleFactor != 1.3 {
		t.Errorf("expected default scale factor 1.3, got %f", cfg.Camera.ScaleFactor)
	}
	if cfg.Camera.MinNeighbors != 5 || cfg.Camera.MinFaceSize != 60 {
		t.Errorf("unexpected cascade defaults: neighbors=%d size=%d", cfg.Camera.MinNeighbors, cfg.Camera.MinFaceSize)
	}
	if cfg.Paths.ReportFormat != ReportText {
		t.Errorf("expected default report format text, got %s", cfg.Paths.ReportFormat)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "512")
	t.Setenv("RECOGNITION_METRIC", "EUCLIDEAN_L2")
	t.Setenv("ATTENDANCE_CONFIRMATIONS", "5")
	t.Setenv("ATTENDANCE_MIN_CONFIDENCE", "25.5")
	t.Setenv("CAMERA_PREVIEW", "true")

	cfg := Load()

	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected embedding dim 512, got %d", cfg.Embedding.Dim)
	}
	if cfg.Recognition.Metric != MetricEuclideanL2 {
		t.Errorf("expected metric to be lower-cased, got %s", cfg.Recognition.Metric)
	}
	if cfg.Attendance.Confirmations != 5 {
		t.Errorf("expected confirmations 5, got %d", cfg.Attendance.Confirmations)
	}
	if cfg.Attendance.MinConfidence != 25.5 {
		t.Errorf("expected min confidence 25.5, got %f", cfg.Attendance.MinConfidence)
	}
	if !cfg.Camera.Preview {
		t.Error("expected preview to be enabled")
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "invalid")
	t.Setenv("ATTENDANCE_CONFIRMATIONS", "-2")
	t.Setenv("RECOGNITION_THRESHOLD", "abc")

	cfg := Load()

	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected default embedding dim for invalid input, got %d", cfg.Embedding.Dim)
	}
	if cfg.Attendance.Confirmations != 3 {
		t.Errorf("expected default confirmations for negative input, got %d", cfg.Attendance.Confirmations)
	}
	if cfg.Recognition.Threshold != 0 {
		t.Errorf("expected zero threshold for invalid input, got %f", cfg.Recognition.Threshold)
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		metric   string
		explicit float64
		expected float64
	}{
		{"facenet cosine from table", "Facenet", MetricCosine, 0, 0.40},
		{"facenet euclidean from table", "Facenet", MetricEuclidean, 0, 10.0},
		{"arcface l2 from table", "ArcFace", MetricEuclideanL2, 0, 1.13},
		{"explicit wins", "Facenet", MetricCosine, 0.25, 0.25},
		{"unknown model", "mystery", MetricCosine, 0, DefaultThreshold},
	}

	base := Load()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			cfg.Embedding.Model = tt.model
			cfg.Recognition.Metric = tt.metric
			cfg.Recognition.Threshold = tt.explicit

			if got := cfg.Threshold(); got != tt.expected {
				t.Errorf("Threshold() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"unknown metric", func(c *Config) { c.Recognition.Metric = "manhattan" }, "unknown recognition metric"},
		{"unknown index", func(c *Config) { c.Recognition.Index = "faiss" }, "unknown recognition index"},
		{"pgvector without database", func(c *Config) {
			c.Recognition.Index = IndexPGVector
			c.Database.URL = ""
		}, "requires DATABASE_URL"},
		{"unknown format", func(c *Config) { c.Paths.ReportFormat = "xlsx" }, "unknown report format"},
		{"zero confirmations", func(c *Config) { c.Attendance.Confirmations = 0 }, "at least 1"},
		{"confidence too high", func(c *Config) { c.Attendance.MinConfidence = 101 }, "outside 0-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Recognition: RecognitionConfig{Metric: MetricCosine, Index: IndexLinear},
				Attendance:  AttendanceConfig{Confirmations: 3},
				Paths:       PathsConfig{ReportFormat: ReportText},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		Recognition: RecognitionConfig{Metric: "Euclidean_L2", Index: "HNSW"},
		Attendance:  AttendanceConfig{Confirmations: 3},
		Paths:       PathsConfig{ReportFormat: "CSV"},
	}

	cfg.Normalize()

	if cfg.Recognition.Metric != MetricEuclideanL2 || cfg.Recognition.Index != IndexHNSW {
		t.Errorf("expected lower-case metric and index, got %s/%s", cfg.Recognition.Metric, cfg.Recognition.Index)
	}
	if cfg.Paths.ReportFormat != ReportCSV {
		t.Errorf("expected report format csv, got %s", cfg.Paths.ReportFormat)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected normalized config to validate, got %v", err)
	}
}
