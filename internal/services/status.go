package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/photoop/internal/ledger"
	"github.com/Lllllllleong/photoop/internal/models"
)

// StatusFunction answers status queries and applies administrative status
// changes against the ledger.
type StatusFunction struct {
	ledger *ledger.Ledger
}

func NewStatus(l *ledger.Ledger) *StatusFunction {
	return &StatusFunction{ledger: l}
}

// Lookup reports whether requestID has a ready artifact.
func (f *StatusFunction) Lookup(ctx context.Context, requestID string) (*models.StatusResponse, error) {
	entry, err := f.ledger.LatestReady(ctx, requestID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, &NotFoundError{Resource: "Request", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return &models.StatusResponse{Status: string(ledger.StatusReady), Filename: entry.Filename}, nil
}

// History returns every ledger row of requestID.
func (f *StatusFunction) History(ctx context.Context, requestID string) (*models.HistoryResponse, error) {
	entries, err := f.ledger.History(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{Resource: "Request"}
	}
	return &models.HistoryResponse{RequestID: requestID, Entries: entries}, nil
}

func (f *StatusFunction) Stats(ctx context.Context) (ledger.Stats, error) {
	stats, err := f.ledger.Stats(ctx)
	if err != nil {
		return ledger.Stats{}, fmt.Errorf("failed to read ledger: %w", err)
	}
	return stats, nil
}

// Process records a status transition for an existing request.
func (f *StatusFunction) Process(ctx context.Context, req *models.UpdateStatusRequest) (*models.MessageResponse, error) {
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" || strings.TrimSpace(req.Status) == "" {
		return nil, inputError("", "Missing request_id or status")
	}
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		return nil, inputError("status", "%v", err)
	}

	logCtx := slog.With("requestId", requestID)
	entry, err := f.ledger.UpdateStatus(ctx, requestID, status)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, &NotFoundError{Resource: "Request", Err: err}
	}
	if err != nil {
		logCtx.Error("Failed to update status.", "status", status, "error", err)
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	logCtx.Info("Status updated.", "status", entry.Status, "filename", entry.Filename)
	return &models.MessageResponse{Success: true, Message: "Status updated successfully"}, nil
}
