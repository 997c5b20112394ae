package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"dicomlabeler/internal/models"
	"dicomlabeler/pkg/visualization"
)

// HandleView renders one plane of the selected volume as PNG. The index
// and threshold query parameters override the session sliders for this
// request only. The image is scaled to the width query parameter, or to
// viewer.displayWidth; a width of 0 keeps the native size.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	axis, err := models.ParseAxis(r.PathValue("axis"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap := s.Snapshot()
	index, threshold := snap.Index, snap.Threshold

	query := r.URL.Query()
	if v := query.Get("index"); v != "" {
		if index, err = strconv.Atoi(v); err != nil {
			h.writeError(w, "Invalid index: "+v, http.StatusBadRequest)
			return
		}
	}
	if v := query.Get("threshold"); v != "" {
		if threshold, err = strconv.ParseFloat(v, 64); err != nil {
			h.writeError(w, "Invalid threshold: "+v, http.StatusBadRequest)
			return
		}
	}

	width := h.cfg.Viewer.DisplayWidth
	if v := query.Get("width"); v != "" {
		if width, err = strconv.Atoi(v); err != nil || width < 0 {
			h.writeError(w, "Invalid width: "+v, http.StatusBadRequest)
			return
		}
	}

	view, err := s.ViewAt(axis, index, threshold)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	view = visualization.Scale(view, width)

	var buf bytes.Buffer
	if err := visualization.EncodePNG(&buf, view); err != nil {
		h.writeError(w, "Failed to encode image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Slice-Index", strconv.Itoa(view.Index))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Unable to write image", "err", err)
	}
}
