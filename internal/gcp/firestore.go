package gcp

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/photoop/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection names used by the metadata service.
const (
	EventConfigsCollection   = "event_configs"
	UserLeadsCollection      = "user_leads"
	UploadedImagesCollection = "uploaded_images"
)

// ErrDocumentNotFound is returned when a requested document does not exist.
var ErrDocumentNotFound = errors.New("firestore: document not found")

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreMetadata stores event and lead records in Firestore.
type FirestoreMetadata struct {
	client *firestore.Client
}

// NewFirestoreMetadata wraps an existing client.
func NewFirestoreMetadata(client *firestore.Client) *FirestoreMetadata {
	return &FirestoreMetadata{client: client}
}

func (m *FirestoreMetadata) AddEventConfig(ctx context.Context, cfg *models.EventConfig) (string, error) {
	ref, _, err := m.client.Collection(EventConfigsCollection).Add(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create event config: %w", err)
	}
	return ref.ID, nil
}

func (m *FirestoreMetadata) GetEventConfig(ctx context.Context, id string) (*models.EventConfig, error) {
	snap, err := m.client.Collection(EventConfigsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: event config %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event config %s: %w", id, err)
	}
	var cfg models.EventConfig
	if err := snap.DataTo(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode event config %s: %w", id, err)
	}
	cfg.ID = snap.Ref.ID
	return &cfg, nil
}

func (m *FirestoreMetadata) AddUserLead(ctx context.Context, lead *models.UserLead) (string, error) {
	ref, _, err := m.client.Collection(UserLeadsCollection).Add(ctx, lead)
	if err != nil {
		return "", fmt.Errorf("failed to create user lead: %w", err)
	}
	return ref.ID, nil
}

// ListUserLeads returns up to limit leads registered for eventID.
func (m *FirestoreMetadata) ListUserLeads(ctx context.Context, eventID string, limit int) ([]models.UserLead, error) {
	it := m.client.Collection(UserLeadsCollection).Where("eventId", "==", eventID).Limit(limit).Documents(ctx)
	defer it.Stop()

	var leads []models.UserLead
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list user leads: %w", err)
		}
		var lead models.UserLead
		if err := snap.DataTo(&lead); err != nil {
			return nil, fmt.Errorf("failed to decode user lead %s: %w", snap.Ref.ID, err)
		}
		lead.ID = snap.Ref.ID
		leads = append(leads, lead)
	}
	return leads, nil
}

func (m *FirestoreMetadata) AddUploadedImage(ctx context.Context, img *models.UploadedImage) (string, error) {
	ref, _, err := m.client.Collection(UploadedImagesCollection).Add(ctx, img)
	if err != nil {
		return "", fmt.Errorf("failed to record uploaded image: %w", err)
	}
	return ref.ID, nil
}
