// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Enrollment constants
const (
	// DefaultEnrollSamples is the number of face samples captured per enrollment
	DefaultEnrollSamples = 5

	// MaxEnrollImages is the maximum number of images accepted by one enroll request
	MaxEnrollImages = 50
)

// Handler constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// MaxUploadSize is the maximum request body size for image uploads (32 MB)
	MaxUploadSize = 32 << 20

	// MaxFrameSize is the maximum size of a single frame upload (8 MB)
	MaxFrameSize = 8 << 20
)

// Attendance delivery constants
const (
	// SinkAttempts is how many times a failed attendance write is tried
	SinkAttempts = 3

	// SinkRetryDelay is the backoff step between attempts
	SinkRetryDelay = 50 * time.Millisecond
)

// Attendance CSV constants
const (
	// CSVTimestampLayout is the timestamp format of the attendance log (ISO 8601, seconds)
	CSVTimestampLayout = "2006-01-02T15:04:05"
)
