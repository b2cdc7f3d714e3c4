package recognition

import (
	"context"
	"time"
)

// AttendanceEvent is emitted once per state change of a session.
type AttendanceEvent struct {
	SessionID     string    `json:"session_id,omitempty"`
	IdentityID    string    `json:"identity_id"`
	IdentityLabel string    `json:"identity_label"`
	Mode          Mode      `json:"mode"`
	Similarity    float64   `json:"similarity"`
	Timestamp     time.Time `json:"timestamp"`
}

// AttendanceSink records attendance events.
type AttendanceSink interface {
	Record(ctx context.Context, ev AttendanceEvent) error
}

// Announcer speaks or displays a phrase. Delivery is best effort.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// Phrases formats announcements.
type Phrases interface {
	Format(mode, name string) string
}

// dispatchItem is the unit of delivery: the event and its announcement travel
// together. An announceOnly item carries no event and skips the sink.
type dispatchItem struct {
	event        AttendanceEvent
	announcement string
	announceOnly bool
}
