package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/photoop/internal/api"
	"github.com/Lllllllleong/photoop/internal/gcp"
	"github.com/Lllllllleong/photoop/internal/services"
	"github.com/joho/godotenv"
)

const functionTarget = "MetadataService"

var (
	router  http.Handler
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP(functionTarget, handleMetadataService)
}

func setup() {
	once.Do(func() {
		var svc *services.MetadataService
		svc, initErr = services.NewMetadataService(context.Background())
		if initErr != nil {
			return
		}
		router = api.NewMetadataRouter(svc.Metadata, gcp.GetEnvList("CORS_ALLOWED_ORIGINS", api.DefaultAllowedOrigins))
	})
}

func handleMetadataService(w http.ResponseWriter, r *http.Request) {
	setup()
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	router.ServeHTTP(w, r)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	setup()
	if initErr != nil {
		slog.Error("Failed to initialize metadata service", "error", initErr)
		os.Exit(1)
	}

	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", functionTarget)
	}
	port := gcp.GetEnv("PORT", "5003")
	slog.Info("Metadata service listening", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}
