package api

import (
	"net/http"

	"focuscycle/internal/store"
)

type journalRecordResponse struct {
	cycleResponse
	ElapsedSeconds int `json:"elapsed_seconds"`
}

func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "journal is disabled")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	if limit > 200 {
		limit = 200
	}
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	records, err := s.journal.ListCycles(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list journal", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list journal")
		return
	}
	res := make([]journalRecordResponse, 0, len(records))
	for _, rec := range records {
		res = append(res, journalToResponse(rec))
	}
	writeJSON(w, http.StatusOK, res)
}

func journalToResponse(rec *store.CycleRecord) journalRecordResponse {
	return journalRecordResponse{
		cycleResponse:  cycleToResponse(rec.Cycle),
		ElapsedSeconds: rec.ElapsedSeconds,
	}
}
