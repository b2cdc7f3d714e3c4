// Package speech announces attendance events.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// CommandAnnouncer speaks text by running a TTS command with the text as
// its last argument, e.g. "espeak -s 150".
type CommandAnnouncer struct {
	name string
	args []string
}

// NewCommandAnnouncer parses command into a program and its arguments.
func NewCommandAnnouncer(command string) (*CommandAnnouncer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("speech command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("speech command %q not found: %w", fields[0], err)
	}
	return &CommandAnnouncer{name: fields[0], args: fields[1:]}, nil
}

// Announce runs the command and waits for it to finish.
func (a *CommandAnnouncer) Announce(ctx context.Context, text string) error {
	args := append(append([]string(nil), a.args...), text)
	out, err := exec.CommandContext(ctx, a.name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", a.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// LogAnnouncer prints the text instead of speaking it.
type LogAnnouncer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLogAnnouncer creates an announcer printing to w.
func NewLogAnnouncer(w io.Writer) *LogAnnouncer {
	return &LogAnnouncer{w: w}
}

// Announce prints one line.
func (a *LogAnnouncer) Announce(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.w, "[Speech] %s\n", text)
	return err
}
