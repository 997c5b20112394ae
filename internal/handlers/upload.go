package handlers

import (
	"errors"
	"net/http"

	"dicomlabeler/pkg/ingest"
	"dicomlabeler/pkg/session"
)

// multipart overhead allowed on top of the archive size limit
const formOverhead = 1 << 20

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	limit := h.cfg.Ingest.MaxArchiveBytes
	if limit <= 0 {
		limit = ingest.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeError(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := s.Apply(r.Context(), session.LoadArchive{Reader: file, Size: header.Size}); err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, s.Snapshot())
}

func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	var request struct {
		URL  string `json:"url"`
		Demo bool   `json:"demo"`
	}
	if err := decodeJSON(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var ev session.Event
	switch {
	case request.Demo:
		ev = session.LoadDemo{}
	case request.URL != "":
		ev = session.LoadURL{URL: request.URL}
	default:
		h.writeError(w, "url or demo is required", http.StatusBadRequest)
		return
	}

	if err := s.Apply(r.Context(), ev); err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, s.Snapshot())
}
