package models

import "time"

// TransformationStyle is a themed prompt offered at an event.
type TransformationStyle struct {
	ID       string `firestore:"id" json:"id"`
	Name     string `firestore:"name" json:"name"`
	Prompt   string `firestore:"prompt" json:"prompt"`
	IsActive bool   `firestore:"isActive" json:"is_active"`
}

// EventConfig is the Firestore record describing one photo event.
type EventConfig struct {
	ID                   string                `firestore:"-" json:"id,omitempty"`
	EventName            string                `firestore:"eventName" json:"event_name"`
	StartDate            time.Time             `firestore:"startDate" json:"start_date"`
	EndDate              time.Time             `firestore:"endDate" json:"end_date"`
	TransformationStyles []TransformationStyle `firestore:"transformationStyles" json:"transformation_styles"`
	EmailTemplate        string                `firestore:"emailTemplate" json:"email_template"`
	CreatedAt            time.Time             `firestore:"createdAt" json:"created_at"`
	UpdatedAt            time.Time             `firestore:"updatedAt" json:"updated_at"`
}

// ImageMetadata links an uploaded original to its transformed result.
type ImageMetadata struct {
	OriginalImagePath    string    `firestore:"originalImagePath" json:"original_image_path"`
	TransformedImagePath string    `firestore:"transformedImagePath" json:"transformed_image_path"`
	TransformationStyle  string    `firestore:"transformationStyle" json:"transformation_style"`
	CreatedAt            time.Time `firestore:"createdAt" json:"created_at"`
}

// UserLead is a visitor who asked for their images at an event.
type UserLead struct {
	ID        string          `firestore:"-" json:"id,omitempty"`
	Email     string          `firestore:"email" json:"email"`
	Name      string          `firestore:"name" json:"name"`
	EventID   string          `firestore:"eventId" json:"event_id"`
	Images    []ImageMetadata `firestore:"images" json:"images"`
	CreatedAt time.Time       `firestore:"createdAt" json:"created_at"`
	UpdatedAt time.Time       `firestore:"updatedAt" json:"updated_at"`
}

// UploadedImage records an object that landed in the uploads bucket.
type UploadedImage struct {
	Bucket      string    `firestore:"bucket" json:"bucket"`
	Name        string    `firestore:"name" json:"name"`
	URL         string    `firestore:"url" json:"url"`
	ContentType string    `firestore:"contentType" json:"content_type"`
	Size        int64     `firestore:"size" json:"size"`
	CreatedAt   time.Time `firestore:"createdAt" json:"created_at"`
}
