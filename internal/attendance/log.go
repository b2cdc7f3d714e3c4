package attendance

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// LogSink prints events, for running without persistence.
type LogSink struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLogSink creates a sink printing to w.
func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{w: w}
}

// Record prints one line per event.
func (s *LogSink) Record(ctx context.Context, ev recognition.AttendanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[Attendance] %s (%s) %s at %s (similarity %.3f)\n",
		ev.IdentityLabel, ev.IdentityID, ev.Mode, ev.Timestamp.Format(time.RFC3339), ev.Similarity)
	return err
}

// Close is a no-op.
func (s *LogSink) Close() error {
	return nil
}
