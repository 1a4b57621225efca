package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Mirror writes every artifact to a primary and a secondary store in
// parallel and reads from the primary, falling back to the secondary.
type Mirror struct {
	Primary   Store
	Secondary Store
}

// Save succeeds only when both stores accepted the artifact.
func (m *Mirror) Save(ctx context.Context, name string, data []byte, contentType string) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := m.Primary.Save(gctx, name, data, contentType); err != nil {
			return fmt.Errorf("primary: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := m.Secondary.Save(gctx, name, data, contentType); err != nil {
			return fmt.Errorf("secondary: %w", err)
		}
		return nil
	})
	return eg.Wait()
}

func (m *Mirror) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := m.Primary.Open(ctx, name)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Warn("Primary artifact store failed; trying secondary.", "artifact", name, "error", err)
	}
	return m.Secondary.Open(ctx, name)
}
