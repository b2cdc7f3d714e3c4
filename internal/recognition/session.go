package recognition

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// ErrSessionStopped is returned when using a session after Stop.
var ErrSessionStopped = errors.New("recognition session stopped")

// SessionOptions configures a session's collaborators.
type SessionOptions struct {
	Sink      AttendanceSink
	Announcer Announcer
	Phrases   Phrases
	Metrics   *metrics.Metrics
	Now       func() time.Time

	// UnknownPhrase is announced once per run of unmatched faces. Empty disables it.
	UnknownPhrase string
}

// SessionStatus is a point-in-time view of a session.
type SessionStatus struct {
	ID          string    `json:"id"`
	Mode        Mode      `json:"mode"`
	LastID      string    `json:"last_identity_id,omitempty"`
	LastMode    Mode      `json:"last_mode,omitempty"`
	EventsCount int       `json:"events_count"`
	Pending     int       `json:"pending"`
	Stopped     bool      `json:"stopped"`
	StartedAt   time.Time `json:"started_at"`
}

// Session turns per-frame match results of one live feed into discrete
// attendance events. An identity is announced once and stays suppressed
// until a different identity is emitted or the mode changes.
type Session struct {
	Broadcaster

	id        string
	phrases   Phrases
	unknown   string
	metrics   *metrics.Metrics
	now       func() time.Time
	startedAt time.Time

	mu       sync.Mutex
	mode     Mode
	lastID   string
	lastMode Mode
	events   int
	stopped  bool

	unknownAnnounced bool

	dispatcher *dispatcher
}

// NewSession starts a session in the given mode with its own dispatcher.
func NewSession(id string, mode Mode, opts SessionOptions) *Session {
	if !mode.Valid() {
		mode = ModeCheckIn
	}
	s := &Session{
		id:      id,
		phrases: opts.Phrases,
		unknown: opts.UnknownPhrase,
		metrics: opts.Metrics,
		now:     opts.Now,
		mode:    mode,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.startedAt = s.now()
	s.dispatcher = newDispatcher(opts.Sink, opts.Announcer, s.onDelivered, s.onFailed, opts.Metrics)
	s.metrics.AddActiveSessions(1)
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the current mode. It never emits an event by itself.
func (s *Session) SetMode(mode Mode) error {
	if !mode.Valid() {
		return errors.New("invalid mode " + string(mode))
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	changed := s.mode != mode
	s.mode = mode
	s.mu.Unlock()

	if changed {
		s.SendEvent(SessionEvent{Type: EventMode, Data: mode})
	}
	return nil
}

// ToggleMode switches between check-in and check-out and returns the new mode.
func (s *Session) ToggleMode() (Mode, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", ErrSessionStopped
	}
	s.mode = s.mode.Toggle()
	mode := s.mode
	s.mu.Unlock()

	s.SendEvent(SessionEvent{Type: EventMode, Data: mode})
	return mode, nil
}

// OnCandidate handles the match result of one frame. A nil match means no
// face or no match; it leaves suppression state unchanged. It returns the
// emitted event, or nil when the candidate was suppressed.
func (s *Session) OnCandidate(match *matcher.MatchResult) (*AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrSessionStopped
	}
	if match == nil {
		return nil, nil
	}
	s.unknownAnnounced = false
	if match.IdentityID == s.lastID && s.mode == s.lastMode {
		return nil, nil
	}

	ev := AttendanceEvent{
		SessionID:     s.id,
		IdentityID:    match.IdentityID,
		IdentityLabel: match.IdentityLabel,
		Mode:          s.mode,
		Similarity:    match.Similarity,
		Timestamp:     s.now(),
	}
	var announcement string
	if s.phrases != nil {
		announcement = s.phrases.Format(string(s.mode), match.IdentityLabel)
	}

	if !s.dispatcher.enqueue(dispatchItem{event: ev, announcement: announcement}) {
		return nil, ErrSessionStopped
	}
	s.lastID = match.IdentityID
	s.lastMode = s.mode
	s.events++
	s.metrics.IncrementEvents(string(ev.Mode))
	return &ev, nil
}

// OnUnknown handles a frame whose face matched nobody. The unknown phrase is
// announced once and again only after some identity was matched in between.
// It never touches the suppression of the last identity. It reports whether
// an announcement was queued.
func (s *Session) OnUnknown() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false, ErrSessionStopped
	}
	if s.unknown == "" || s.unknownAnnounced {
		return false, nil
	}
	if !s.dispatcher.enqueue(dispatchItem{announcement: s.unknown, announceOnly: true}) {
		return false, ErrSessionStopped
	}
	s.unknownAnnounced = true
	return true, nil
}

// Status returns the session state.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatus{
		ID:          s.id,
		Mode:        s.mode,
		LastID:      s.lastID,
		LastMode:    s.lastMode,
		EventsCount: s.events,
		Pending:     s.dispatcher.pending(),
		Stopped:     s.stopped,
		StartedAt:   s.startedAt,
	}
}

// Stopped reports whether Stop was called.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop resets the session, flushes or discards queued events according to
// policy and waits for delivery to finish, bounded by ctx. Stopping a stopped
// session is a no-op.
func (s *Session) Stop(ctx context.Context, policy FlushPolicy) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.lastID = ""
	s.lastMode = ""
	s.mu.Unlock()

	err := s.dispatcher.close(ctx, policy)
	s.metrics.AddActiveSessions(-1)
	s.closeWith(SessionEvent{Type: EventStopped, Data: s.id})
	return err
}

func (s *Session) onDelivered(ev AttendanceEvent) {
	s.SendEvent(SessionEvent{Type: EventAttendance, Data: ev})
}

// onFailed lifts the suppression of an event that could not be recorded, so
// the next frame of the same person emits it again.
func (s *Session) onFailed(ev AttendanceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastID == ev.IdentityID && s.lastMode == ev.Mode {
		s.lastID = ""
		s.lastMode = ""
	}
}
