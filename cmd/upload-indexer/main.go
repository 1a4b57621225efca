package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/photoop/internal/gcp"
	"github.com/Lllllllleong/photoop/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
)

const functionTarget = "IndexUpload"

var (
	indexerInstance *services.IndexerFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Fired by the uploads bucket on object finalize.
	functions.CloudEvent(functionTarget, indexUpload)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}
	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", functionTarget)
	}
	port := gcp.GetEnv("PORT", "8080")
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

func indexUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var svc *services.MetadataService
		svc, initErr = services.NewMetadataService(context.Background())
		if initErr == nil {
			indexerInstance = svc.Indexer
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return indexerInstance.Process(ctx, gcsEvent)
}
