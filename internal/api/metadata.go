package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Lllllllleong/photoop/internal/models"
	"github.com/Lllllllleong/photoop/internal/services"
)

const maxJSONBody = 1 << 20

type metadataHandler struct {
	fn  *services.MetadataFunction
	now func() time.Time
}

// NewMetadataRouter returns the HTTP handler of the metadata service.
func NewMetadataRouter(fn *services.MetadataFunction, origins []string) http.Handler {
	h := &metadataHandler{fn: fn, now: time.Now}
	mux := http.NewServeMux()
	handle(mux, http.MethodGet, "/health", h.health)
	handle(mux, http.MethodPost, "/event-config", h.createEventConfig)
	handle(mux, http.MethodGet, "/event-config/{event_id}", h.getEventConfig)
	handle(mux, http.MethodPost, "/user-lead", h.createUserLead)
	handle(mux, http.MethodGet, "/user-leads", h.listUserLeads)
	handle(mux, http.MethodPost, "/upload-image", h.uploadImage)
	return withCORS(mux, origins)
}

func (h *metadataHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
	})
}

func (h *metadataHandler) createEventConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.EventConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := h.fn.CreateEventConfig(r.Context(), &cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *metadataHandler) getEventConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.fn.GetEventConfig(r.Context(), r.PathValue("event_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *metadataHandler) createUserLead(w http.ResponseWriter, r *http.Request) {
	var lead models.UserLead
	if err := decodeJSON(r, &lead); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := h.fn.CreateUserLead(r.Context(), &lead)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *metadataHandler) listUserLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.fn.ListUserLeads(r.Context(), r.URL.Query().Get("event_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (h *metadataHandler) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxImageBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "No file provided"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "No file provided"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxImageBytes+1))
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	resp, err := h.fn.UploadImage(r.Context(), header.Filename, contentType, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("could not parse JSON: %w", err)
	}
	return nil
}
