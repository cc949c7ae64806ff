package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/goodtune/ontime/internal/report"
	"github.com/goodtune/ontime/internal/storage"
)

// PresenceRequest is the body of a presence state change.
type PresenceRequest struct {
	UserID string `json:"user_id"`
	State  string `json:"state"`
	At     string `json:"at,omitempty"`
}

// PresenceResponse reports whether the event changed tracked state.
type PresenceResponse struct {
	UserID  string `json:"user_id"`
	State   string `json:"state"`
	Changed bool   `json:"changed"`
}

// FlushResponse summarizes a completed flush run.
type FlushResponse struct {
	ID         string `json:"id"`
	At         string `json:"at"`
	Entries    int    `json:"entries"`
	DurationMS int64  `json:"duration_ms"`
}

// RangeResponse reports the first and last recorded days.
type RangeResponse struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"open_sessions": s.engine.OpenSessions(),
	})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	at := time.Now().UTC()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at timestamp, expected RFC 3339")
			return
		}
		at = parsed.UTC()
	}

	var changed bool
	switch req.State {
	case "online":
		changed = s.engine.Online(req.UserID, at)
	case "offline":
		var err error
		changed, err = s.engine.Offline(r.Context(), req.UserID, at)
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to record offline event")
			writeError(w, http.StatusInternalServerError, "failed to persist session")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "state must be online or offline")
		return
	}

	writeJSON(w, http.StatusOK, PresenceResponse{
		UserID:  req.UserID,
		State:   req.State,
		Changed: changed,
	})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.Flush(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Manual flush failed")
		writeError(w, http.StatusInternalServerError, "flush failed")
		return
	}

	writeJSON(w, http.StatusOK, FlushResponse{
		ID:         run.ID,
		At:         run.At.UTC().Format(time.RFC3339),
		Entries:    run.Entries,
		DurationMS: run.DurationMS,
	})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.engine.Totals(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query totals")
		writeError(w, http.StatusInternalServerError, "failed to query totals")
		return
	}
	names, err := s.engine.Names(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query names")
		writeError(w, http.StatusInternalServerError, "failed to query names")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totals": report.Totals(totals, names),
	})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	daily, err := s.engine.DailyTotals(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query daily totals")
		writeError(w, http.StatusInternalServerError, "failed to query daily totals")
		return
	}
	names, err := s.engine.Names(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query names")
		writeError(w, http.StatusInternalServerError, "failed to query names")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"series": report.Series(daily, names),
	})
}

func (s *Server) handleCumulative(w http.ResponseWriter, r *http.Request) {
	cumulative, err := s.engine.CumulativeTotals(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query cumulative totals")
		writeError(w, http.StatusInternalServerError, "failed to query cumulative totals")
		return
	}
	names, err := s.engine.Names(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query names")
		writeError(w, http.StatusInternalServerError, "failed to query names")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"series": report.Series(cumulative, names),
	})
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	dr, err := s.engine.DateRange(r.Context())
	if errors.Is(err, storage.ErrNoData) {
		writeError(w, http.StatusNotFound, "no data recorded yet")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query date range")
		writeError(w, http.StatusInternalServerError, "failed to query date range")
		return
	}

	writeJSON(w, http.StatusOK, RangeResponse{
		First: dr.First.Format(storage.DayFormat),
		Last:  dr.Last.Format(storage.DayFormat),
	})
}
