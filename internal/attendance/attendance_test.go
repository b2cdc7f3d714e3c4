package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

func testEvent(id, label string, mode recognition.Mode) recognition.AttendanceEvent {
	return recognition.AttendanceEvent{
		SessionID:     "s1",
		IdentityID:    id,
		IdentityLabel: label,
		Mode:          mode,
		Similarity:    0.87,
		Timestamp:     time.Date(2026, 3, 2, 8, 30, 15, 0, time.UTC),
	}
}

func TestCSVSink_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance_log.csv")
	ctx := context.Background()

	sink := NewCSVSink(path)
	if err := sink.Record(ctx, testEvent("E7", "Bob", recognition.ModeCheckIn)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// A new sink on the same file must not repeat the header.
	sink = NewCSVSink(path)
	if err := sink.Record(ctx, testEvent("E1", "Smith, Alice", recognition.ModeCheckOut)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv failed: %v", err)
	}

	want := [][]string{
		{"timestamp", "employee_id", "employee_name", "mode"},
		{"2026-03-02T08:30:15", "E7", "Bob", "checkin"},
		{"2026-03-02T08:30:15", "E1", "Smith, Alice", "checkout"},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d: %v", len(want), len(rows), rows)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d: got %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestCSVSink_CanceledContext(t *testing.T) {
	sink := NewCSVSink(filepath.Join(t.TempDir(), "log.csv"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sink.Record(ctx, testEvent("E1", "Alice", recognition.ModeCheckIn)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSQLSink_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "attendance.sqlite")

	sink, err := OpenSQLSink(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("OpenSQLSink failed: %v", err)
	}
	defer sink.Close()

	for _, ev := range []recognition.AttendanceEvent{
		testEvent("E7", "Bob", recognition.ModeCheckIn),
		testEvent("E7", "Bob", recognition.ModeCheckOut),
	} {
		if err := sink.Record(ctx, ev); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	rows, err := sink.db.QueryContext(ctx, "SELECT identity_id, mode FROM attendance_events ORDER BY id")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var id, mode string
		if err := rows.Scan(&id, &mode); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		got = append(got, id+":"+mode)
	}
	if strings.Join(got, ",") != "E7:checkin,E7:checkout" {
		t.Errorf("unexpected rows %v", got)
	}
}

func TestOpenSQLSink_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenSQLSink(ctx, "oracle", "dsn"); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := OpenSQLSink(ctx, "sqlite", ""); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := OpenSQLSink(ctx, "mysql", "not a dsn"); err == nil {
		t.Error("expected error for malformed MariaDB DSN")
	}
}

// fakeToken is a completed mqtt.Token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return true }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	qos      []byte
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	p.qos = append(p.qos, qos)
	return newFakeToken(p.err)
}

func TestMQTTSink_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, "attendance/events")

	if err := sink.Record(context.Background(), testEvent("E7", "Bob", recognition.ModeCheckIn)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if len(pub.topics) != 1 || pub.topics[0] != "attendance/events" {
		t.Fatalf("unexpected topics %v", pub.topics)
	}
	if pub.qos[0] != 1 {
		t.Errorf("expected QoS 1, got %d", pub.qos[0])
	}
	var ev recognition.AttendanceEvent
	if err := json.Unmarshal(pub.payloads[0], &ev); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if ev.IdentityID != "E7" || ev.Mode != recognition.ModeCheckIn {
		t.Errorf("unexpected payload %+v", ev)
	}
}

func TestMQTTSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := NewMQTTSink(pub, "attendance/events")

	if err := sink.Record(context.Background(), testEvent("E7", "Bob", recognition.ModeCheckIn)); err == nil {
		t.Error("expected publish error")
	}
}

func TestConnectMQTT_RequiresBroker(t *testing.T) {
	if _, err := ConnectMQTT("", "", "topic"); err == nil {
		t.Error("expected error for empty broker")
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf)

	if err := sink.Record(context.Background(), testEvent("E7", "Bob", recognition.ModeCheckOut)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	want := "[Attendance] Bob (E7) checkout at 2026-03-02T08:30:15Z (similarity 0.870)\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

type failingSink struct {
	err    error
	calls  int
	closed bool
}

func (f *failingSink) Record(ctx context.Context, ev recognition.AttendanceEvent) error {
	f.calls++
	return f.err
}

func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestMultiSink(t *testing.T) {
	first := &failingSink{err: errors.New("first down")}
	second := &failingSink{}
	multi := NewMultiSink(first, second)

	err := multi.Record(context.Background(), testEvent("E1", "Alice", recognition.ModeCheckIn))
	if err == nil || err.Error() != "first down" {
		t.Errorf("expected first error, got %v", err)
	}
	if second.calls != 1 {
		t.Errorf("expected second sink to still receive the event, got %d calls", second.calls)
	}

	if err := multi.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !first.closed || !second.closed {
		t.Error("expected all sinks closed")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.AttendanceConfig
		want    string
		wantErr bool
	}{
		{"csv", config.AttendanceConfig{Sink: "csv", CSVPath: filepath.Join(dir, "a.csv")}, "*attendance.CSVSink", false},
		{"log", config.AttendanceConfig{Sink: "log"}, "*attendance.LogSink", false},
		{"fan-out", config.AttendanceConfig{Sink: "csv,log", CSVPath: filepath.Join(dir, "b.csv")}, "*attendance.MultiSink", false},
		{"unknown", config.AttendanceConfig{Sink: "fax"}, "", true},
		{"empty", config.AttendanceConfig{Sink: ""}, "", true},
		{"mqtt without broker", config.AttendanceConfig{Sink: "mqtt"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := Open(ctx, &tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer sink.Close()
			if got := typeName(sink); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(s Sink) string {
	switch s.(type) {
	case *CSVSink:
		return "*attendance.CSVSink"
	case *LogSink:
		return "*attendance.LogSink"
	case *MultiSink:
		return "*attendance.MultiSink"
	}
	return "unknown"
}
