package handlers

import (
	"log/slog"
	"net/http"

	"dicomlabeler/pkg/session"
)

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, s.Snapshot())
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, s.Snapshot())
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	found, err := h.sessions.Delete(r.PathValue("id"))
	if !found {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Warn("Unable to remove session scratch data", "session_id", r.PathValue("id"), "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if err := s.Apply(r.Context(), session.Reset{}); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, s.Snapshot())
}

func (h *Handler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, s.Series())
}

func (h *Handler) HandleSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	var request struct {
		Series    *string  `json:"series"`
		Index     *int     `json:"index"`
		Threshold *float64 `json:"threshold"`
	}
	if err := decodeJSON(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var events []session.Event
	if request.Series != nil {
		events = append(events, session.SelectSeries{Name: *request.Series})
	}
	if request.Index != nil {
		events = append(events, session.SetSliceIndex{Index: *request.Index})
	}
	if request.Threshold != nil {
		events = append(events, session.SetThreshold{Percent: *request.Threshold})
	}

	for _, ev := range events {
		if err := s.Apply(r.Context(), ev); err != nil {
			h.writeFailure(w, err)
			return
		}
	}
	h.writeJSON(w, s.Snapshot())
}

func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	info, err := s.Info()
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, info)
}
