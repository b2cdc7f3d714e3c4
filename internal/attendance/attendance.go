// Package attendance persists and publishes attendance events.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Sink is an attendance sink that holds resources.
type Sink interface {
	recognition.AttendanceSink
	io.Closer
}

// MultiSink records every event to all sinks in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record writes the event to every sink and returns the first error.
// A failing sink does not stop the others.
func (m *MultiSink) Record(ctx context.Context, ev recognition.AttendanceEvent) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes all sinks.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the sinks named in cfg.Sink.
func Open(ctx context.Context, cfg *config.AttendanceConfig) (Sink, error) {
	names := cfg.AttendanceSinks()
	if len(names) == 0 {
		return nil, errors.New("no attendance sink configured")
	}

	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	for _, name := range names {
		var s Sink
		var err error
		switch name {
		case "csv":
			s = NewCSVSink(cfg.CSVPath)
		case "sql":
			s, err = OpenSQLSink(ctx, cfg.SQLDriver, cfg.SQLDSN)
		case "mqtt":
			s, err = ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		case "log":
			s = NewLogSink(os.Stdout)
		default:
			err = fmt.Errorf("unknown attendance sink %q", name)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("attendance sink %s: %w", name, err)
		}
		sinks = append(sinks, s)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}

// Verify interface compliance.
var (
	_ Sink = (*MultiSink)(nil)
	_ Sink = (*CSVSink)(nil)
	_ Sink = (*SQLSink)(nil)
	_ Sink = (*MQTTSink)(nil)
	_ Sink = (*LogSink)(nil)
)
