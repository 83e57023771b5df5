package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

// Distance metrics understood by the recognition package.
const (
	MetricCosine      = "cosine"
	MetricEuclidean   = "euclidean"
	MetricEuclideanL2 = "euclidean_l2"
)

// Index strategies for nearest-neighbour lookups.
const (
	IndexLinear   = "linear"
	IndexHNSW     = "hnsw"
	IndexPGVector = "pgvector"
)

// Report formats.
const (
	ReportText = "text"
	ReportCSV  = "csv"
)

// DefaultThreshold is used when neither RECOGNITION_THRESHOLD nor the embedded table
// has a value for the configured model and metric.
const DefaultThreshold = 0.40

type Config struct {
	Embedding   EmbeddingConfig
	Recognition RecognitionConfig
	Attendance  AttendanceConfig
	Camera      CameraConfig
	Paths       PathsConfig
	Database    DatabaseConfig
	Roster      RosterConfig
	Log         LogConfig
	Web         WebConfig
	Thresholds  ThresholdsConfig
}

type EmbeddingConfig struct {
	URL          string // defaults to http://localhost:8000
	Model        string // defaults to Facenet
	Dim          int    // defaults to 128
	MaxImageSize int    // registration images are downscaled to this size before upload
}

type RecognitionConfig struct {
	Metric    string  // cosine, euclidean or euclidean_l2
	Threshold float64 // 0 means "use the model table"
	Index     string  // linear, hnsw or pgvector
}

type AttendanceConfig struct {
	Confirmations int     // detections needed before a student counts as present
	MinConfidence float64 // matches below this confidence (percent) do not count
	SessionID     string
	ClassName     string
}

type CameraConfig struct {
	Device       string // device index ("0") or a stream URL
	FrameStride  int    // process every n-th frame
	CascadePath  string
	ScaleFactor  float64
	MinNeighbors int
	MinFaceSize  int
	Preview      bool
}

type PathsConfig struct {
	RegisteredFacesDir string
	RosterFile         string // optional YAML with display names
	EmbeddingsCache    string
	ReportPath         string
	ReportFormat       string
	LedgerPath         string
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 10)
	MaxIdleConns  int    // Maximum idle connections (default 2)
	HNSWIndexPath string // Path to persist the HNSW index (optional)
}

type RosterConfig struct {
	DatabaseURL string // MariaDB DSN of the school information system (optional)
	Query       string // must return (id, name) rows
}

type LogConfig struct {
	Level string
	File  string // rotating recognition log, empty disables it
}

type WebConfig struct {
	Host string
	Port int
}

type ThresholdsConfig struct {
	Models map[string]map[string]float64 `yaml:"models"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", "http://localhost:8000"),
			Model:        envString("EMBEDDING_MODEL", "Facenet"),
			Dim:          envInt("EMBEDDING_DIM", 128),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", 1024),
		},
		Recognition: RecognitionConfig{
			Metric:    strings.ToLower(envString("RECOGNITION_METRIC", MetricCosine)),
			Threshold: envFloat("RECOGNITION_THRESHOLD", 0),
			Index:     strings.ToLower(envString("RECOGNITION_INDEX", IndexLinear)),
		},
		Attendance: AttendanceConfig{
			Confirmations: envInt("ATTENDANCE_CONFIRMATIONS", 3),
			MinConfidence: envFloat("ATTENDANCE_MIN_CONFIDENCE", 0),
			SessionID:     os.Getenv("ATTENDANCE_SESSION_ID"),
			ClassName:     os.Getenv("ATTENDANCE_CLASS"),
		},
		Camera: CameraConfig{
			Device:       envString("CAMERA_DEVICE", "0"),
			FrameStride:  envInt("CAMERA_FRAME_STRIDE", 1),
			CascadePath:  envString("CAMERA_CASCADE_PATH", "haarcascade_frontalface_default.xml"),
			ScaleFactor:  envFloat("CAMERA_SCALE_FACTOR", 1.3),
			MinNeighbors: envInt("CAMERA_MIN_NEIGHBORS", 5),
			MinFaceSize:  envInt("CAMERA_MIN_FACE_SIZE", 60),
			Preview:      envBool("CAMERA_PREVIEW", false),
		},
		Paths: PathsConfig{
			RegisteredFacesDir: envString("REGISTERED_FACES_DIR", "data/registered_faces"),
			RosterFile:         os.Getenv("ROSTER_FILE"),
			EmbeddingsCache:    envString("EMBEDDINGS_CACHE", "data/embeddings.gob"),
			ReportPath:         envString("REPORT_PATH", "attendance.txt"),
			ReportFormat:       strings.ToLower(envString("REPORT_FORMAT", ReportText)),
			LedgerPath:         envString("LEDGER_PATH", "attendance.csv"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 2),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Roster: RosterConfig{
			DatabaseURL: os.Getenv("ROSTER_DATABASE_URL"),
			Query:       envString("ROSTER_QUERY", "SELECT student_id, full_name FROM students WHERE active = 1"),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
		Thresholds: thresholds,
	}
}

// Threshold returns the distance threshold for the configured model and metric.
// An explicit RECOGNITION_THRESHOLD wins over the embedded table.
func (c *Config) Threshold() float64 {
	if c.Recognition.Threshold > 0 {
		return c.Recognition.Threshold
	}
	if byMetric, ok := c.Thresholds.Models[c.Embedding.Model]; ok {
		if t, ok := byMetric[c.Recognition.Metric]; ok && t > 0 {
			return t
		}
	}
	return DefaultThreshold
}

// Normalize lower-cases the enumerated values so flags accept any case, like the
// environment variables.
func (c *Config) Normalize() {
	c.Recognition.Metric = strings.ToLower(c.Recognition.Metric)
	c.Recognition.Index = strings.ToLower(c.Recognition.Index)
	c.Paths.ReportFormat = strings.ToLower(c.Paths.ReportFormat)
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error

	switch c.Recognition.Metric {
	case MetricCosine, MetricEuclidean, MetricEuclideanL2:
	default:
		errs = append(errs, fmt.Errorf("unknown recognition metric %q", c.Recognition.Metric))
	}

	switch c.Recognition.Index {
	case IndexLinear, IndexHNSW:
	case IndexPGVector:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("pgvector index requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown recognition index %q", c.Recognition.Index))
	}

	switch c.Paths.ReportFormat {
	case ReportText, ReportCSV:
	default:
		errs = append(errs, fmt.Errorf("unknown report format %q", c.Paths.ReportFormat))
	}

	if c.Attendance.Confirmations < 1 {
		errs = append(errs, errors.New("confirmations must be at least 1"))
	}
	if c.Attendance.MinConfidence < 0 || c.Attendance.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("min confidence %.1f outside 0-100", c.Attendance.MinConfidence))
	}

	return errors.Join(errs...)
}
