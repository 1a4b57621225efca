package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/photoop/internal/gcp"
	"github.com/Lllllllleong/photoop/internal/models"
)

const userLeadListLimit = 100

// MetadataStore persists event and lead records.
type MetadataStore interface {
	AddEventConfig(ctx context.Context, cfg *models.EventConfig) (string, error)
	GetEventConfig(ctx context.Context, id string) (*models.EventConfig, error)
	AddUserLead(ctx context.Context, lead *models.UserLead) (string, error)
	ListUserLeads(ctx context.Context, eventID string, limit int) ([]models.UserLead, error)
	AddUploadedImage(ctx context.Context, img *models.UploadedImage) (string, error)
}

// Uploader stores uploaded files and knows their public address.
type Uploader interface {
	Save(ctx context.Context, name string, data []byte, contentType string) error
	URL(name string) string
}

// MetadataFunction implements the event configuration, lead and upload operations.
type MetadataFunction struct {
	store    MetadataStore
	uploader Uploader
	now      func() time.Time
}

func NewMetadata(store MetadataStore, uploader Uploader) *MetadataFunction {
	return &MetadataFunction{store: store, uploader: uploader, now: time.Now}
}

func (f *MetadataFunction) CreateEventConfig(ctx context.Context, cfg *models.EventConfig) (*models.CreatedResponse, error) {
	cfg.EventName = strings.TrimSpace(cfg.EventName)
	if cfg.EventName == "" {
		return nil, inputError("event_name", "is required")
	}
	if !cfg.StartDate.IsZero() && !cfg.EndDate.IsZero() && cfg.EndDate.Before(cfg.StartDate) {
		return nil, inputError("end_date", "must not be before start_date")
	}
	for i, style := range cfg.TransformationStyles {
		if strings.TrimSpace(style.Name) == "" || strings.TrimSpace(style.Prompt) == "" {
			return nil, inputError("transformation_styles", "style %d needs a name and a prompt", i)
		}
	}
	now := f.now().UTC()
	cfg.ID = ""
	cfg.CreatedAt, cfg.UpdatedAt = now, now

	id, err := f.store.AddEventConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Event config created.", "eventId", id, "eventName", cfg.EventName)
	return &models.CreatedResponse{Message: "Event config created", ID: id}, nil
}

func (f *MetadataFunction) GetEventConfig(ctx context.Context, id string) (*models.EventConfig, error) {
	cfg, err := f.store.GetEventConfig(ctx, id)
	if errors.Is(err, gcp.ErrDocumentNotFound) {
		return nil, &NotFoundError{Resource: "Event", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *MetadataFunction) CreateUserLead(ctx context.Context, lead *models.UserLead) (*models.CreatedResponse, error) {
	lead.Name = strings.TrimSpace(lead.Name)
	lead.EventID = strings.TrimSpace(lead.EventID)
	addr, err := netmail.ParseAddress(strings.TrimSpace(lead.Email))
	if err != nil {
		return nil, inputError("email", "Invalid email address")
	}
	lead.Email = addr.Address
	if lead.Name == "" {
		return nil, inputError("name", "is required")
	}
	if lead.EventID == "" {
		return nil, inputError("event_id", "is required")
	}
	now := f.now().UTC()
	for i := range lead.Images {
		if lead.Images[i].CreatedAt.IsZero() {
			lead.Images[i].CreatedAt = now
		}
	}
	lead.ID = ""
	lead.CreatedAt, lead.UpdatedAt = now, now

	id, err := f.store.AddUserLead(ctx, lead)
	if err != nil {
		return nil, err
	}
	slog.Info("User lead created.", "leadId", id, "eventId", lead.EventID)
	return &models.CreatedResponse{Message: "User lead created", ID: id}, nil
}

func (f *MetadataFunction) ListUserLeads(ctx context.Context, eventID string) ([]models.UserLead, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, inputError("event_id", "is required")
	}
	leads, err := f.store.ListUserLeads(ctx, eventID, userLeadListLimit)
	if err != nil {
		return nil, err
	}
	if leads == nil {
		leads = []models.UserLead{}
	}
	return leads, nil
}

// UploadImage stores an uploaded file under a timestamped key and returns its URL.
func (f *MetadataFunction) UploadImage(ctx context.Context, filename, contentType string, data []byte) (*models.UploadResponse, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		return nil, inputError("file", "No file selected")
	}
	if len(data) == 0 {
		return nil, inputError("file", "No file provided")
	}
	if len(data) > MaxImageBytes {
		return nil, inputError("file", "File exceeds maximum size of %d bytes", MaxImageBytes)
	}

	key := fmt.Sprintf("%s_%s", f.now().UTC().Format("20060102_150405"), name)
	if err := f.uploader.Save(ctx, key, data, contentType); err != nil {
		slog.Error("Upload failed.", "object", key, "error", err)
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	url := f.uploader.URL(key)
	slog.Info("Image uploaded.", "object", key, "bytes", len(data))
	return &models.UploadResponse{Message: "Image uploaded successfully", URL: url}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	return strings.TrimLeft(name, ".")
}
