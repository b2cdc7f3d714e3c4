package speech

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
)

func TestLogAnnouncer(t *testing.T) {
	var buf bytes.Buffer
	a := NewLogAnnouncer(&buf)

	if err := a.Announce(context.Background(), "Welcome, Bob"); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	if buf.String() != "[Speech] Welcome, Bob\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestNewCommandAnnouncer_Errors(t *testing.T) {
	if _, err := NewCommandAnnouncer("   "); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := NewCommandAnnouncer("definitely-not-a-tts-binary-42"); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestCommandAnnouncer_Runs(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	a, err := NewCommandAnnouncer("true --ignored")
	if err != nil {
		t.Fatalf("NewCommandAnnouncer failed: %v", err)
	}
	if err := a.Announce(context.Background(), "Goodbye, Bob"); err != nil {
		t.Errorf("Announce failed: %v", err)
	}
}

func TestCommandAnnouncer_Failure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	a, err := NewCommandAnnouncer("false")
	if err != nil {
		t.Fatalf("NewCommandAnnouncer failed: %v", err)
	}
	if err := a.Announce(context.Background(), "Welcome"); err == nil {
		t.Error("expected error from failing command")
	}
}
