package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	netmail "net/mail"
	"strings"

	"github.com/Lllllllleong/photoop/internal/artifacts"
	"github.com/Lllllllleong/photoop/internal/ledger"
	"github.com/Lllllllleong/photoop/internal/mail"
	"github.com/Lllllllleong/photoop/internal/models"
)

// DeliveryFunction emails the latest ready artifact of a request.
type DeliveryFunction struct {
	ledger *ledger.Ledger
	store  artifacts.Store
	sender mail.Sender
}

func NewDelivery(l *ledger.Ledger, store artifacts.Store, sender mail.Sender) *DeliveryFunction {
	if sender == nil {
		sender = mail.Unconfigured{}
	}
	return &DeliveryFunction{ledger: l, store: store, sender: sender}
}

func (f *DeliveryFunction) Process(ctx context.Context, req *models.SendEmailRequest) (*models.MessageResponse, error) {
	email := strings.TrimSpace(req.Email)
	requestID := strings.TrimSpace(req.RequestID)
	if email == "" || requestID == "" {
		return nil, inputError("", "Missing required fields")
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil {
		return nil, inputError("email", "Invalid email address")
	}

	logCtx := slog.With("requestId", requestID)
	entry, err := f.ledger.LatestReady(ctx, requestID)
	if errors.Is(err, ledger.ErrNotFound) {
		logCtx.Warn("No image found for request.")
		return nil, &NotFoundError{Resource: "Image", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	data, err := f.readArtifact(ctx, entry.Filename)
	if errors.Is(err, artifacts.ErrNotFound) {
		logCtx.Error("Image file missing from artifact store.", "filename", entry.Filename)
		return nil, &NotFoundError{Resource: "Image file", Err: err}
	}
	if err != nil {
		return nil, err
	}

	msg := mail.TransformedImageMessage(addr.Address, strings.TrimSpace(req.Name), data)
	id, err := f.sender.Send(ctx, msg)
	if errors.Is(err, mail.ErrNotConfigured) {
		logCtx.Error("Mail transport configuration missing.")
		return nil, err
	}
	if err != nil {
		logCtx.Error("Mail transport rejected message.", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	logCtx.Info("Email sent successfully.", "filename", entry.Filename, "messageId", id)

	// The message is already sent; record it even if the caller went away.
	if _, err := f.ledger.UpdateStatus(context.WithoutCancel(ctx), requestID, ledger.StatusEmailed); err != nil {
		logCtx.Warn("Failed to record emailed status.", "error", err)
	}
	return &models.MessageResponse{Success: true, Message: "Email sent successfully"}, nil
}

func (f *DeliveryFunction) readArtifact(ctx context.Context, name string) ([]byte, error) {
	r, err := f.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return data, nil
}
