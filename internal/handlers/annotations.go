package handlers

import (
	"log/slog"
	"net/http"

	"dicomlabeler/pkg/annotation"
	"dicomlabeler/pkg/session"
)

func (h *Handler) HandleGetAnnotation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	rec, err := s.Annotation(r.PathValue("series"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, rec)
}

func (h *Handler) HandlePutAnnotation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	name := r.PathValue("series")

	var request struct {
		Anomaly *string `json:"Anomaly"`
		Slices  *string `json:"Slices"`
	}
	if err := decodeJSON(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var events []session.Event
	if request.Anomaly != nil {
		events = append(events, session.SetAnnotation{Series: name, Field: annotation.FieldAnomaly, Value: *request.Anomaly})
	}
	if request.Slices != nil {
		events = append(events, session.SetAnnotation{Series: name, Field: annotation.FieldSlices, Value: *request.Slices})
	}

	for _, ev := range events {
		if err := s.Apply(r.Context(), ev); err != nil {
			h.writeFailure(w, err)
			return
		}
	}

	rec, err := s.Annotation(name)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, rec)
}

// HandleExport serves Annotation.json for the series named by the series
// query parameters, or for every series when none is given
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	doc, err := s.Export(r.URL.Query()["series"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+annotation.ExportFileName+`"`)
	if err := annotation.WriteDocument(w, doc); err != nil {
		slog.Error("Unable to write export", "session_id", s.ID, "err", err)
	}
}
