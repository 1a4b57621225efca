package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Lllllllleong/photoop/internal/artifacts"
	"github.com/Lllllllleong/photoop/internal/models"
	"github.com/Lllllllleong/photoop/internal/services"
)

const multipartMemory = 32 << 20

type imageHandler struct {
	svc *services.ImageService
}

// NewImageRouter returns the HTTP handler of the image service.
func NewImageRouter(svc *services.ImageService, origins []string) http.Handler {
	h := &imageHandler{svc: svc}
	mux := http.NewServeMux()
	handle(mux, http.MethodGet, "/health", h.health)
	handle(mux, http.MethodPost, "/generate", h.generate)
	handle(mux, http.MethodGet, "/status/{request_id}", h.status)
	handle(mux, http.MethodGet, "/history/{request_id}", h.history)
	handle(mux, http.MethodGet, "/stats", h.stats)
	handle(mux, http.MethodPost, "/sendEmail", h.sendEmail)
	handle(mux, http.MethodPost, "/updateStatus", h.updateStatus)
	handle(mux, http.MethodGet, "/generated_images/{filename}", h.serveImage)
	return withCORS(mux, origins)
}

func (h *imageHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		ModelInfo: h.svc.Model.Info(),
		Ledger:    h.svc.Ledger.Health(),
	})
}

func (h *imageHandler) generate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxImageBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "No image file in request"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "No image file in request"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, services.MaxImageBytes+1))
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to read image: %w", err))
		return
	}

	req := &models.GenerateRequest{
		Image:     data,
		ImageName: header.Filename,
		Prompt:    r.FormValue("prompt"),
		Theme:     r.FormValue("theme"),
	}
	if req.Strength, err = formFloat(r, "strength", services.DefaultStrength); err != nil {
		writeError(w, r, err)
		return
	}
	if req.GuidanceScale, err = formFloat(r, "guidance_scale", services.DefaultGuidanceScale); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Steps, err = formInt(r, "num_inference_steps", services.DefaultSteps); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.svc.Generator.Process(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *imageHandler) status(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Status.Lookup(r.Context(), r.PathValue("request_id"))
	if errors.Is(err, services.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.StatusResponse{Status: "not_found"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *imageHandler) history(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Status.History(r.Context(), r.PathValue("request_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *imageHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Status.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *imageHandler) sendEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Could not parse form"})
		return
	}
	resp, err := h.svc.Delivery.Process(r.Context(), &models.SendEmailRequest{
		Email:     r.FormValue("email"),
		Name:      r.FormValue("name"),
		RequestID: r.FormValue("request_id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *imageHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Bad Request: could not parse JSON"})
		return
	}
	resp, err := h.svc.Status.Process(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *imageHandler) serveImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	rc, err := h.svc.Artifacts.Open(r.Context(), name)
	switch {
	case errors.Is(err, artifacts.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid filename"})
		return
	case errors.Is(err, artifacts.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Image not found"})
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", artifacts.ContentType(name))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Failed to stream image.", "filename", name, "error", err)
	}
}

func formFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &services.InputError{Field: key, Message: fmt.Sprintf("must be a number, got %q", raw)}
	}
	return v, nil
}

func formInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &services.InputError{Field: key, Message: fmt.Sprintf("must be an integer, got %q", raw)}
	}
	return v, nil
}
