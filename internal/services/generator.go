package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/photoop/internal/artifacts"
	"github.com/Lllllllleong/photoop/internal/ledger"
	"github.com/Lllllllleong/photoop/internal/models"
	_ "golang.org/x/image/webp"
)

// Generation parameter defaults.
const (
	DefaultStrength      = 0.75
	DefaultGuidanceScale = 7.5
	DefaultSteps         = 50

	// MaxImageBytes caps the size of an uploaded photo.
	MaxImageBytes = 10 << 20
)

// ImageModel transforms a photo according to a prompt.
type ImageModel interface {
	Transform(ctx context.Context, req models.TransformRequest) (*models.TransformResult, error)
	Info() models.ModelInfo
}

// GeneratorFunction runs one generation: model call, artifact save and ledger append.
type GeneratorFunction struct {
	model  ImageModel
	store  artifacts.Store
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewGenerator wires a generator from already constructed dependencies.
func NewGenerator(model ImageModel, store artifacts.Store, l *ledger.Ledger) *GeneratorFunction {
	return &GeneratorFunction{
		model:  model,
		store:  store,
		ledger: l,
		now:    time.Now,
	}
}

// Process validates the request, transforms the photo and records the artifact.
// A failure to record the artifact in the ledger is logged but does not fail
// the request.
func (f *GeneratorFunction) Process(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	format, err := checkImage(req.Image)
	if err != nil {
		return nil, err
	}
	if err := checkParams(req); err != nil {
		return nil, err
	}
	if _, known := Themes[strings.ToLower(strings.TrimSpace(req.Theme))]; req.Theme != "" && !known {
		slog.Warn("Ignoring unknown theme.", "theme", req.Theme, "known", ThemeNames())
	}
	prompt, err := ResolvePrompt(req.Prompt, req.Theme)
	if err != nil {
		return nil, err
	}

	requestID := ledger.NewRequestID()
	logCtx := slog.With("requestId", requestID)
	logCtx.Info("Starting image generation.", "imageName", req.ImageName, "format", format, "prompt", prompt,
		"strength", req.Strength, "guidanceScale", req.GuidanceScale, "steps", req.Steps)

	result, err := f.model.Transform(ctx, models.TransformRequest{
		Image:         req.Image,
		ImageFormat:   format,
		Prompt:        prompt,
		Strength:      req.Strength,
		GuidanceScale: req.GuidanceScale,
		Steps:         req.Steps,
	})
	if err != nil {
		logCtx.Error("Image model failed.", "error", err)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	output, err := toPNG(result)
	if err != nil {
		logCtx.Error("Model output could not be converted to PNG.", "mimeType", result.MIMEType, "error", err)
		return nil, err
	}

	filename := fmt.Sprintf("generated_%s_%s.png", requestID, f.now().Format("20060102_150405"))
	if err := f.store.Save(ctx, filename, output, "image/png"); err != nil {
		logCtx.Error("Failed to save generated image.", "filename", filename, "error", err)
		return nil, fmt.Errorf("failed to save generated image: %w", err)
	}
	logCtx.Info("Saved generated image.", "filename", filename, "bytes", len(output))

	// The image is already published; record it even if the caller went away.
	if _, err := f.ledger.Append(context.WithoutCancel(ctx), filename, requestID, ledger.StatusReady); err != nil {
		logCtx.Warn("Failed to track image in ledger, but continuing with response.", "filename", filename, "error", err)
	}

	return &models.GenerateResponse{
		Success:   true,
		Image:     base64.StdEncoding.EncodeToString(output),
		Filename:  filename,
		RequestID: requestID,
	}, nil
}

// checkImage returns the decoder name of a supported photo.
func checkImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", inputError("image", "No image file in request")
	}
	if len(data) > MaxImageBytes {
		return "", inputError("image", "Image exceeds maximum size of %d bytes", MaxImageBytes)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", inputError("image", "Unsupported or corrupt image: %v", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return "", inputError("image", "Image has no pixels")
	}
	return format, nil
}

func checkParams(req *models.GenerateRequest) error {
	if !(req.Strength > 0 && req.Strength <= 1) {
		return inputError("strength", "must be greater than 0 and at most 1, got %v", req.Strength)
	}
	if !(req.GuidanceScale > 0) {
		return inputError("guidance_scale", "must be greater than 0, got %v", req.GuidanceScale)
	}
	if req.Steps <= 0 {
		return inputError("num_inference_steps", "must be a positive integer, got %d", req.Steps)
	}
	return nil
}

// toPNG re-encodes non-PNG model output.
func toPNG(result *models.TransformResult) ([]byte, error) {
	if result == nil || len(result.Data) == 0 {
		return nil, fmt.Errorf("image model returned no data")
	}
	if result.MIMEType == "image/png" {
		return result.Data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode model output: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
