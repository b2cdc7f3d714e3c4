package recognition

import (
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// SessionEvent is pushed to session listeners (the SSE stream).
type SessionEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Session event types
const (
	EventAttendance = "attendance"
	EventMode       = "mode"
	EventStopped    = "stopped"
)

// Broadcaster provides listener management and non-blocking event fan-out.
type Broadcaster struct {
	listeners []chan SessionEvent
	closed    bool
	mu        sync.RWMutex
}

// AddListener adds an event listener. On a closed broadcaster the returned
// channel is already closed.
func (b *Broadcaster) AddListener() chan SessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan SessionEvent, constants.EventChannelBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *Broadcaster) RemoveListener(ch chan SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *Broadcaster) SendEvent(event SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// closeWith sends a final event and closes all listeners.
func (b *Broadcaster) closeWith(final SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, listener := range b.listeners {
		select {
		case listener <- final:
		default:
		}
		close(listener)
	}
	b.listeners = nil
}

// Listeners returns the number of attached listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
