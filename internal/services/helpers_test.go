package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Lllllllleong/photoop/internal/artifacts"
	"github.com/Lllllllleong/photoop/internal/ledger"
	"github.com/Lllllllleong/photoop/internal/mail"
	"github.com/Lllllllleong/photoop/internal/models"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}
	return buf.Bytes()
}

type fakeModel struct {
	mu       sync.Mutex
	requests []models.TransformRequest
	result   *models.TransformResult
	err      error
}

func (m *fakeModel) Transform(_ context.Context, req models.TransformRequest) (*models.TransformResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *fakeModel) Info() models.ModelInfo {
	return models.ModelInfo{Name: "fake", Device: "cpu", DType: "float32"}
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []mail.Message
	err    error
	onSend func()
}

func (s *fakeSender) Send(_ context.Context, msg mail.Message) (string, error) {
	if s.onSend != nil {
		s.onSend()
	}
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return "<id@example.com>", nil
}

// cancelAfterSave cancels the request context once an artifact is stored.
type cancelAfterSave struct {
	artifacts.Store
	cancel context.CancelFunc
}

func (s *cancelAfterSave) Save(ctx context.Context, name string, data []byte, contentType string) error {
	err := s.Store.Save(ctx, name, data, contentType)
	s.cancel()
	return err
}

type fixture struct {
	dir    string
	ledger *ledger.Ledger
	store  *artifacts.DirStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "image_tracking.csv"))
	if err != nil {
		t.Fatalf("ledger.Open failed: %v", err)
	}
	store, err := artifacts.NewDirStore(filepath.Join(dir, "generated_images"))
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	return &fixture{dir: dir, ledger: l, store: store}
}

func validGenerateRequest(t *testing.T) *models.GenerateRequest {
	return &models.GenerateRequest{
		Image:         pngBytes(t),
		ImageName:     "photo.png",
		Strength:      DefaultStrength,
		GuidanceScale: DefaultGuidanceScale,
		Steps:         DefaultSteps,
	}
}
