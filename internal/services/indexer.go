package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/photoop/internal/gcp"
	"github.com/Lllllllleong/photoop/internal/models"
)

// GCSEvent is the payload of a Cloud Storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

// IndexerFunction records finished uploads in the metadata store.
type IndexerFunction struct {
	store MetadataStore
	now   func() time.Time
}

func NewIndexer(store MetadataStore) *IndexerFunction {
	return &IndexerFunction{store: store, now: time.Now}
}

// Process records the object described by e. Non-image objects are skipped.
func (f *IndexerFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("bucket", e.Bucket, "object", e.Name)
	if e.Bucket == "" || e.Name == "" {
		return fmt.Errorf("storage event is missing bucket or object name")
	}
	if !strings.HasPrefix(e.ContentType, "image/") {
		logCtx.Info("Skipping non-image object.", "contentType", e.ContentType)
		return nil
	}

	var size int64
	if e.Size != "" {
		n, err := strconv.ParseInt(e.Size, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid object size %q: %w", e.Size, err)
		}
		size = n
	}

	id, err := f.store.AddUploadedImage(ctx, &models.UploadedImage{
		Bucket:      e.Bucket,
		Name:        e.Name,
		URL:         gcp.PublicURL(e.Bucket, e.Name),
		ContentType: e.ContentType,
		Size:        size,
		CreatedAt:   f.now().UTC(),
	})
	if err != nil {
		logCtx.Error("Failed to index upload.", "error", err)
		return err
	}
	logCtx.Info("Upload indexed.", "documentId", id, "size", size)
	return nil
}
