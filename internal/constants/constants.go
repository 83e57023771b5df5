// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Registration constants
const (
	// DefaultConcurrency is the default number of parallel embedding requests
	// while registering reference photos
	DefaultConcurrency = 4
)

// Kiosk API constants
const (
	// MaxUploadSize is the largest snapshot accepted by the recognize endpoint
	MaxUploadSize = 20 << 20

	// ShutdownTimeout bounds the graceful shutdown of the web server
	ShutdownTimeout = 30 * time.Second
)
