package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// RecognizeHandler identifies a single frame outside of any session. Every
// match is recorded and announced; there is no debounce.
type RecognizeHandler struct {
	pipeline  *recognition.Pipeline
	sink      recognition.AttendanceSink
	announcer recognition.Announcer
	phrases   config.PhrasesConfig
	now       func() time.Time
}

// NewRecognizeHandler creates a new recognize handler. sink and announcer may be nil.
func NewRecognizeHandler(p *recognition.Pipeline, sink recognition.AttendanceSink, announcer recognition.Announcer, phrases config.PhrasesConfig) *RecognizeHandler {
	return &RecognizeHandler{
		pipeline:  p,
		sink:      sink,
		announcer: announcer,
		phrases:   phrases,
		now:       time.Now,
	}
}

type recognizeResponse struct {
	Outcome      recognition.FrameOutcome     `json:"outcome"`
	Match        *matcher.MatchResult         `json:"match,omitempty"`
	Event        *recognition.AttendanceEvent `json:"event,omitempty"`
	Announcement string                       `json:"announcement,omitempty"`
}

// Recognize matches one frame and records an attendance event on a match.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	in, err := readFrame(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode := recognition.ModeCheckIn
	if in.Mode != "" {
		if mode, err = recognition.ParseMode(in.Mode); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var match *matcher.MatchResult
	var outcome recognition.FrameOutcome
	if in.image != nil {
		match, outcome, err = h.pipeline.ResolveImage(r.Context(), in.image)
	} else {
		match, outcome, err = h.pipeline.Resolve(in.Embedding)
	}
	if err != nil {
		respondFrameError(w, err)
		return
	}

	resp := recognizeResponse{Outcome: outcome, Match: match}
	switch outcome {
	case recognition.OutcomeMatched:
		ev := recognition.AttendanceEvent{
			IdentityID:    match.IdentityID,
			IdentityLabel: match.IdentityLabel,
			Mode:          mode,
			Similarity:    match.Similarity,
			Timestamp:     h.now(),
		}
		if h.sink != nil {
			if err := h.sink.Record(r.Context(), ev); err != nil {
				log.Printf("ERROR: recording attendance for %s: %v", sanitizeForLog(ev.IdentityID), err)
				respondError(w, http.StatusBadGateway, "failed to record attendance")
				return
			}
		}
		resp.Event = &ev
		resp.Announcement = h.phrases.Format(string(mode), match.IdentityLabel)
	case recognition.OutcomeNoMatch:
		resp.Announcement = h.phrases.Unknown
	}

	if resp.Announcement != "" && h.announcer != nil {
		if err := h.announcer.Announce(r.Context(), resp.Announcement); err != nil {
			log.Printf("WARNING: announcement failed: %v", err)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// respondFrameError maps frame processing errors to HTTP statuses.
func respondFrameError(w http.ResponseWriter, err error) {
	var dimErr *matcher.DimensionMismatchError
	switch {
	case errors.Is(err, recognition.ErrSessionStopped):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &dimErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, matcher.ErrMetadataMismatch):
		log.Printf("ERROR: %v", err)
		respondError(w, http.StatusInternalServerError, "store snapshot is inconsistent")
	default:
		log.Printf("ERROR: processing frame: %v", err)
		respondError(w, http.StatusBadGateway, "embedding service failed")
	}
}
