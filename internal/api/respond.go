// Package api exposes the image and metadata services over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/photoop/internal/mail"
	"github.com/Lllllllleong/photoop/internal/models"
	"github.com/Lllllllleong/photoop/internal/services"
	"github.com/rs/cors"
)

// DefaultAllowedOrigins is used when no CORS origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		inErr    *services.InputError
		nfErr    *services.NotFoundError
		maxBytes *http.MaxBytesError
	)
	switch {
	case errors.As(err, &inErr):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: inErr.Error()})
	case errors.As(err, &nfErr):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: nfErr.Error()})
	case errors.As(err, &maxBytes):
		writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Request body too large"})
	case errors.Is(err, mail.ErrNotConfigured):
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Email service not configured"})
	case errors.Is(err, services.ErrSendFailed):
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to send email", Details: err.Error()})
	default:
		slog.Error("Request failed.", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
	}
}

// handle registers h under path and under the /api prefix.
func handle(mux *http.ServeMux, method, path string, h http.HandlerFunc) {
	mux.HandleFunc(method+" "+path, h)
	mux.HandleFunc(method+" /api"+path, h)
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("Handler panicked.", "method", r.Method, "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
	})
	return c.Handler(recoverer(h))
}
