package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// FrameOutcome tags what happened to a frame. It is not an error.
type FrameOutcome int

// Frame outcomes
const (
	OutcomeNoFace FrameOutcome = iota
	OutcomeNoMatch
	OutcomeMatched
)

func (o FrameOutcome) String() string {
	switch o {
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeMatched:
		return "matched"
	default:
		return "no_face"
	}
}

// MarshalText encodes the outcome as its name.
func (o FrameOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *FrameOutcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "no_face":
		*o = OutcomeNoFace
	case "no_match":
		*o = OutcomeNoMatch
	case "matched":
		*o = OutcomeMatched
	default:
		return fmt.Errorf("unknown frame outcome %q", text)
	}
	return nil
}

// SnapshotSource provides the current store snapshot.
type SnapshotSource interface {
	Snapshot() *database.Snapshot
}

// FaceEmbedder turns an image into the embedding of its main face.
type FaceEmbedder interface {
	FaceEmbedding(ctx context.Context, image []byte) ([]float32, error)
}

// FrameResult is the result of one processed frame.
type FrameResult struct {
	Outcome          FrameOutcome         `json:"outcome"`
	Match            *matcher.MatchResult `json:"match,omitempty"`
	Event            *AttendanceEvent     `json:"event,omitempty"`
	UnknownAnnounced bool                 `json:"unknown_announced,omitempty"`
}

// Pipeline wires embedding, matching and the session state machine.
type Pipeline struct {
	store    SnapshotSource
	matcher  *matcher.Matcher
	embedder FaceEmbedder
	metrics  *metrics.Metrics
}

// NewPipeline creates a pipeline. emb may be nil when only embeddings are processed.
func NewPipeline(store SnapshotSource, m *matcher.Matcher, emb FaceEmbedder, met *metrics.Metrics) *Pipeline {
	return &Pipeline{store: store, matcher: m, embedder: emb, metrics: met}
}

// Resolve matches an embedding against the current snapshot.
// A nil embedding is treated as a frame without a face.
func (p *Pipeline) Resolve(embedding []float32) (*matcher.MatchResult, FrameOutcome, error) {
	if embedding == nil {
		p.metrics.ObserveFrame(OutcomeNoFace.String())
		return nil, OutcomeNoFace, nil
	}

	match, err := p.matcher.Match(p.store.Snapshot(), embedding)
	if err != nil {
		return nil, OutcomeNoMatch, err
	}
	if match == nil {
		p.metrics.ObserveFrame(OutcomeNoMatch.String())
		return nil, OutcomeNoMatch, nil
	}
	p.metrics.ObserveFrame(OutcomeMatched.String())
	p.metrics.ObserveMatch(match.Similarity)
	return match, OutcomeMatched, nil
}

// ResolveImage embeds an image and matches it. Images without a face give
// OutcomeNoFace, not an error.
func (p *Pipeline) ResolveImage(ctx context.Context, image []byte) (*matcher.MatchResult, FrameOutcome, error) {
	if p.embedder == nil {
		return nil, OutcomeNoFace, errors.New("no embedder configured")
	}
	embedding, err := p.embedder.FaceEmbedding(ctx, image)
	if errors.Is(err, embedder.ErrNoFace) {
		embedding, err = nil, nil
	}
	if err != nil {
		return nil, OutcomeNoFace, err
	}
	return p.Resolve(embedding)
}

// ProcessEmbedding resolves an embedding and feeds the result to the session.
func (p *Pipeline) ProcessEmbedding(s *Session, embedding []float32) (*FrameResult, error) {
	if s.Stopped() {
		return nil, ErrSessionStopped
	}
	match, outcome, err := p.Resolve(embedding)
	if err != nil {
		return nil, err
	}
	return p.feed(s, match, outcome)
}

// ProcessFrame embeds an image, resolves it and feeds the result to the session.
func (p *Pipeline) ProcessFrame(ctx context.Context, s *Session, image []byte) (*FrameResult, error) {
	if s.Stopped() {
		return nil, ErrSessionStopped
	}
	match, outcome, err := p.ResolveImage(ctx, image)
	if err != nil {
		return nil, err
	}
	return p.feed(s, match, outcome)
}

func (p *Pipeline) feed(s *Session, match *matcher.MatchResult, outcome FrameOutcome) (*FrameResult, error) {
	if outcome == OutcomeNoMatch {
		announced, err := s.OnUnknown()
		if err != nil {
			return nil, err
		}
		return &FrameResult{Outcome: outcome, UnknownAnnounced: announced}, nil
	}

	ev, err := s.OnCandidate(match)
	if err != nil {
		return nil, err
	}
	return &FrameResult{Outcome: outcome, Match: match, Event: ev}, nil
}
