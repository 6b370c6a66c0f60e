package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/roamer/internal/blob"
	"github.com/dukerupert/roamer/internal/cache"
	"github.com/dukerupert/roamer/internal/config"
	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/server"
)

const cleanupInterval = time.Hour

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, logger, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, closeDeps, err := buildServer(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := srv.Cleanup(gctx); err != nil {
					logger.Error("cleanup failed", "error", err)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// buildServer opens the blob store and cache named by cfg and wires the
// server around them. The returned func releases the cache connection.
func buildServer(ctx context.Context, cfg config.Config, db *database.DB, logger *slog.Logger) (*server.Server, func(), error) {
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var (
		c       cache.Cache = cache.NewMemory()
		closeFn             = func() {}
	)
	if cfg.Redis.Addr != "" {
		r, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		c = r
		closeFn = func() { r.Close() }
		logger.Info("using redis cache", "addr", cfg.Redis.Addr)
	}

	srv, err := server.New(db, blobs, c, cfg, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return srv, closeFn, nil
}

func openBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "s3":
		return blob.NewS3Store(blob.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}), nil
	case "minio":
		s, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			Bucket:    cfg.Minio.Bucket,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := blob.NewFSStore(cfg.Blob.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
