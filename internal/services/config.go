package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/photoop/internal/artifacts"
	"github.com/Lllllllleong/photoop/internal/gcp"
	"github.com/Lllllllleong/photoop/internal/ledger"
	"github.com/Lllllllleong/photoop/internal/mail"
)

// ImageServiceConfig holds all configuration for the image service.
type ImageServiceConfig struct {
	ProjectID          string
	VertexAIRegion     string
	ImageModel         string
	GeneratedImagesDir string
	LedgerPath         string
	ArtifactBucket     string
	Mail               mail.Config
}

// MetadataServiceConfig holds all configuration for the metadata service.
type MetadataServiceConfig struct {
	ProjectID     string
	UploadsBucket string
}

func loadImageServiceConfig() (*ImageServiceConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	return &ImageServiceConfig{
		ProjectID:          projectID,
		VertexAIRegion:     gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		ImageModel:         gcp.GetEnv("VERTEX_IMAGE_MODEL", "imagen-3.0-capability-001"),
		GeneratedImagesDir: gcp.GetEnv("GENERATED_IMAGES_DIR", "generated_images"),
		LedgerPath:         gcp.GetEnv("LEDGER_PATH", "image_tracking.csv"),
		ArtifactBucket:     gcp.GetEnv("ARTIFACT_BUCKET", ""),
		Mail: mail.Config{
			APIKey:    gcp.GetEnv("MAILGUN_API_KEY", ""),
			Domain:    gcp.GetEnv("MAILGUN_DOMAIN", ""),
			FromEmail: gcp.GetEnv("MAILGUN_FROM_EMAIL", "noreply@yourdomain.com"),
		},
	}, nil
}

func loadMetadataServiceConfig() (*MetadataServiceConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	uploadsBucket := gcp.GetEnv("UPLOADS_BUCKET", "")
	if uploadsBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET environment variable must be set")
	}
	return &MetadataServiceConfig{ProjectID: projectID, UploadsBucket: uploadsBucket}, nil
}

// closers releases clients in reverse order of creation.
type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ImageService bundles the functions served by the image service.
type ImageService struct {
	Generator *GeneratorFunction
	Status    *StatusFunction
	Delivery  *DeliveryFunction
	Ledger    *ledger.Ledger
	Model     ImageModel
	Artifacts artifacts.Store

	closers closers
}

// NewImageService builds the image service from the environment. Local
// storage is prepared before any cloud client is created; the model client
// is created once and shared by every request.
func NewImageService(ctx context.Context) (svc *ImageService, err error) {
	config, err := loadImageServiceConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dir, err := artifacts.NewDirStore(config.GeneratedImagesDir)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(config.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	var opened closers
	defer func() {
		if err != nil {
			if cerr := opened.Close(); cerr != nil {
				slog.Warn("Failed to release clients after setup error.", "error", cerr)
			}
		}
	}()

	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.ImageModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	opened = append(opened, vertexClient.Close)

	var store artifacts.Store = dir
	if config.ArtifactBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		opened = append(opened, storageClient.Close)
		bucket, err := artifacts.NewBucketStore(storageClient, config.ArtifactBucket, "generated_images/")
		if err != nil {
			return nil, err
		}
		store = &artifacts.Mirror{Primary: dir, Secondary: bucket}
		slog.Info("Mirroring generated images to Cloud Storage.", "bucket", config.ArtifactBucket)
	}

	var sender mail.Sender
	mailgunSender, err := mail.NewMailgunSender(config.Mail)
	switch {
	case errors.Is(err, mail.ErrNotConfigured):
		slog.Warn("Mailgun configuration missing; /sendEmail will fail.")
		sender = mail.Unconfigured{}
	case err != nil:
		return nil, fmt.Errorf("failed to create mail sender: %w", err)
	default:
		sender = mailgunSender
	}

	return &ImageService{
		Generator: NewGenerator(vertexClient, store, l),
		Status:    NewStatus(l),
		Delivery:  NewDelivery(l, store, sender),
		Ledger:    l,
		Model:     vertexClient,
		Artifacts: store,
		closers:   opened,
	}, nil
}

// Close releases the cloud clients.
func (s *ImageService) Close() error {
	return s.closers.Close()
}

// MetadataService bundles the metadata function with its clients.
type MetadataService struct {
	Metadata *MetadataFunction
	Indexer  *IndexerFunction

	closers closers
}

// NewMetadataService builds the metadata service and upload indexer from the environment.
func NewMetadataService(ctx context.Context) (svc *MetadataService, err error) {
	config, err := loadMetadataServiceConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var opened closers
	defer func() {
		if err != nil {
			if cerr := opened.Close(); cerr != nil {
				slog.Warn("Failed to release clients after setup error.", "error", cerr)
			}
		}
	}()

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	opened = append(opened, firestoreClient.Close)
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	opened = append(opened, storageClient.Close)
	uploads, err := artifacts.NewBucketStore(storageClient, config.UploadsBucket, "")
	if err != nil {
		return nil, err
	}

	store := gcp.NewFirestoreMetadata(firestoreClient)
	return &MetadataService{
		Metadata: NewMetadata(store, uploads),
		Indexer:  NewIndexer(store),
		closers:  opened,
	}, nil
}

func (s *MetadataService) Close() error {
	return s.closers.Close()
}
