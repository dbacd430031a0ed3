// Command fileserver runs the remote-mode artifact endpoint:
// GET /files/<path>, POST /upload/<kind>/<meetingId>, GET /health.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cityhall/meetingpipe/internal/config"
	"github.com/cityhall/meetingpipe/internal/fileserver"
	"github.com/cityhall/meetingpipe/internal/logging"
)

func main() {
	logger := logging.New("fileserver")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	blob, err := buildBlob(cfg)
	if err != nil {
		log.Fatalf("initialize storage backend: %v", err)
	}

	srv := fileserver.New(blob, cfg.StorageRoot, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.FileServerHost, cfg.FileServerPort),
		Handler: srv.Router(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("file server starting", "addr", httpServer.Addr, "storage_root", cfg.StorageRoot)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("file server error: %v", err)
		}
	}()

	<-stop
	logger.Info("shutting down file server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("file server shutdown: %v", err)
	}
	logger.Info("file server stopped")
}

// buildBlob picks the persistence backend: local disk by default, an
// S3-compatible bucket through minio-go when MINIO_ENDPOINT is configured.
func buildBlob(cfg config.Config) (fileserver.Blob, error) {
	if cfg.MinioEndpoint == "" {
		if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
		return fileserver.NewLocalBlob(cfg.StorageRoot), nil
	}
	return fileserver.NewMinioBlob(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, "", cfg.MinioBucket)
}
