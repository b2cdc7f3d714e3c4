package attendance

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var csvHeader = []string{"timestamp", "employee_id", "employee_name", "mode"}

// CSVSink appends events to a CSV attendance log.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

// NewCSVSink creates a sink writing to path. The file and its header are
// created on first use.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Record appends one row and syncs the file.
func (s *CSVSink) Record(ctx context.Context, ev recognition.AttendanceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open attendance log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat attendance log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	row := []string{
		ev.Timestamp.Format(constants.CSVTimestampLayout),
		ev.IdentityID,
		ev.IdentityLabel,
		string(ev.Mode),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush attendance log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync attendance log: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per write.
func (s *CSVSink) Close() error {
	return nil
}
