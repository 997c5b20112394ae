package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"dicomlabeler/pkg/annotation"
	"dicomlabeler/pkg/config"
	"dicomlabeler/pkg/ingest"
	"dicomlabeler/pkg/reconstruction"
	"dicomlabeler/pkg/session"
	"dicomlabeler/pkg/visualization"
)

type Handler struct {
	cfg      *config.Config
	sessions *session.Manager
}

func New(cfg *config.Config, sessions *session.Manager) *Handler {
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
	}
}

// Register adds the API routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/upload", h.HandleUpload)
	mux.HandleFunc("POST /api/sessions/{id}/fetch", h.HandleFetch)
	mux.HandleFunc("POST /api/sessions/{id}/reset", h.HandleReset)
	mux.HandleFunc("GET /api/sessions/{id}/series", h.HandleSeries)
	mux.HandleFunc("PUT /api/sessions/{id}/selection", h.HandleSelection)
	mux.HandleFunc("GET /api/sessions/{id}/info", h.HandleInfo)
	mux.HandleFunc("GET /api/sessions/{id}/views/{axis}", h.HandleView)
	mux.HandleFunc("GET /api/sessions/{id}/annotations/{series}", h.HandleGetAnnotation)
	mux.HandleFunc("PUT /api/sessions/{id}/annotations/{series}", h.HandlePutAnnotation)
	mux.HandleFunc("GET /api/sessions/{id}/export", h.HandleExport)
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}

// writeFailure reports err with the status matching its kind
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	h.writeError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, ingest.ErrArchiveTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrDownloadFailure):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrUnknownSeries), errors.Is(err, annotation.ErrUnknownSeries):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyLoaded), errors.Is(err, session.ErrNoData):
		return http.StatusConflict
	case errors.Is(err, reconstruction.ErrUnreadableSlice),
		errors.Is(err, reconstruction.ErrInconsistentGeometry),
		errors.Is(err, reconstruction.ErrTooFewSlices):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrInvalidArchive),
		errors.Is(err, session.ErrNoDemo),
		errors.Is(err, annotation.ErrUnknownField),
		errors.Is(err, visualization.ErrIndexOutOfRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, exists := h.sessions.Get(r.PathValue("id"))
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

// decodeJSON reads a JSON body, rejecting unknown fields
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
