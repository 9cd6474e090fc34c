package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"focuscycle/internal/core"

	"github.com/go-chi/chi/v5"
)

type createCycleRequest struct {
	Task          string `json:"task"`
	MinutesAmount int    `json:"minutes_amount"`
}

type cycleResponse struct {
	ID              string  `json:"id"`
	Task            string  `json:"task"`
	MinutesAmount   int     `json:"minutes_amount"`
	Status          string  `json:"status"`
	StartDate       string  `json:"start_date"`
	FinishedDate    *string `json:"finished_date,omitempty"`
	InterruptedDate *string `json:"interrupted_date,omitempty"`
}

type countdownResponse struct {
	Active           bool   `json:"active"`
	ActiveCycleID    string `json:"active_cycle_id,omitempty"`
	ElapsedSeconds   int    `json:"elapsed_seconds"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Minutes          string `json:"minutes"`
	Seconds          string `json:"seconds"`
	Title            string `json:"title"`
}

type activeCycleResponse struct {
	Cycle     cycleResponse     `json:"cycle"`
	Countdown countdownResponse `json:"countdown"`
}

func (s *Server) handleCreateCycle(w http.ResponseWriter, r *http.Request) {
	var req createCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	cycle, err := s.cycles.CreateCycle(core.CreateCycleInput{Task: req.Task, MinutesAmount: req.MinutesAmount})
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "invalid_input", ve.Error())
			return
		}
		s.logger.Error("create cycle", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create cycle")
		return
	}
	s.logger.Info("cycle started", "cycle_id", cycle.ID, "minutes", cycle.MinutesAmount)
	writeJSON(w, http.StatusCreated, cycleToResponse(cycle))
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	cycles := s.cycles.Cycles()
	res := make([]cycleResponse, 0, len(cycles))
	for _, c := range cycles {
		res = append(res, cycleToResponse(c))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	cycleID := chi.URLParam(r, "cycleID")
	cycle, ok := s.cycles.Cycle(cycleID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "cycle not found")
		return
	}
	writeJSON(w, http.StatusOK, cycleToResponse(cycle))
}

func (s *Server) handleGetActiveCycle(w http.ResponseWriter, r *http.Request) {
	snap := s.cycles.Snapshot()
	if snap.ActiveCycle == nil {
		writeError(w, http.StatusNotFound, "not_found", "no active cycle")
		return
	}
	writeJSON(w, http.StatusOK, activeCycleResponse{
		Cycle:     cycleToResponse(*snap.ActiveCycle),
		Countdown: snapshotToCountdown(snap),
	})
}

func (s *Server) handleInterruptCycle(w http.ResponseWriter, r *http.Request) {
	if cycle, ok := s.cycles.InterruptActiveCycle(); ok {
		s.logger.Info("cycle interrupted", "cycle_id", cycle.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotToCountdown(s.cycles.Snapshot()))
}

func cycleToResponse(c core.Cycle) cycleResponse {
	res := cycleResponse{
		ID:            c.ID,
		Task:          c.Task,
		MinutesAmount: c.MinutesAmount,
		Status:        string(c.Status),
		StartDate:     c.StartDate.UTC().Format(time.RFC3339),
	}
	if at, ok := c.FinishedDate(); ok {
		formatted := at.UTC().Format(time.RFC3339)
		res.FinishedDate = &formatted
	}
	if at, ok := c.InterruptedDate(); ok {
		formatted := at.UTC().Format(time.RFC3339)
		res.InterruptedDate = &formatted
	}
	return res
}

func snapshotToCountdown(snap core.State) countdownResponse {
	return countdownResponse{
		Active:           snap.ActiveCycle != nil,
		ActiveCycleID:    snap.ActiveCycleID,
		ElapsedSeconds:   snap.ElapsedSeconds,
		RemainingSeconds: snap.Countdown.RemainingSeconds,
		Minutes:          snap.Countdown.Minutes,
		Seconds:          snap.Countdown.Seconds,
		Title:            snap.Countdown.Title(),
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
