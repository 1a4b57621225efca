package models

import "github.com/Lllllllleong/photoop/internal/ledger"

// These structs define the payloads exchanged between the HTTP layer, the
// services and the image model.

// GenerateRequest is the decoded multipart input of /generate.
type GenerateRequest struct {
	Image         []byte
	ImageName     string
	Prompt        string
	Theme         string
	Strength      float64
	GuidanceScale float64
	Steps         int
}

// GenerateResponse is returned by /generate.
type GenerateResponse struct {
	Success   bool   `json:"success"`
	Image     string `json:"image"`
	Filename  string `json:"filename"`
	RequestID string `json:"request_id"`
}

// TransformRequest is what the image model receives.
type TransformRequest struct {
	Image         []byte
	ImageFormat   string
	Prompt        string
	Strength      float64
	GuidanceScale float64
	Steps         int
}

// TransformResult is the raw image produced by the model.
type TransformResult struct {
	Data     []byte
	MIMEType string
}

// ModelInfo describes the loaded model for health reporting.
type ModelInfo struct {
	Name   string `json:"model"`
	Device string `json:"device"`
	DType  string `json:"dtype"`
}

// StatusResponse is returned by /status.
type StatusResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
}

// HistoryResponse is returned by /history.
type HistoryResponse struct {
	RequestID string         `json:"request_id"`
	Entries   []ledger.Entry `json:"entries"`
}

// SendEmailRequest is the form input of /sendEmail.
type SendEmailRequest struct {
	Email     string
	Name      string
	RequestID string
}

// UpdateStatusRequest is the JSON input of /updateStatus.
type UpdateStatusRequest struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// MessageResponse is a generic success body.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by the image service /health.
type HealthResponse struct {
	Status string        `json:"status"`
	ModelInfo
	Ledger ledger.Health `json:"ledger"`
}

// CreatedResponse is returned when a metadata record is stored.
type CreatedResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// UploadResponse is returned by /upload-image.
type UploadResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}
