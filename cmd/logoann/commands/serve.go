package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/logoann"
	"github.com/hupe1980/logoann/blobstore"
	minioblob "github.com/hupe1980/logoann/blobstore/minio"
	s3blob "github.com/hupe1980/logoann/blobstore/s3"
	"github.com/hupe1980/logoann/config"
	"github.com/hupe1980/logoann/distance"
	"github.com/hupe1980/logoann/httpapi"
	"github.com/hupe1980/logoann/pipeline"
	"github.com/hupe1980/logoann/store"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the nearest-neighbor HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		return serve(cmd.Context(), cfg, newLogger())
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *logoann.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	bs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StoreFile())
	if err != nil {
		return fmt.Errorf("open embedding store: %w", err)
	}

	var pipe *pipeline.Pipeline
	if cfg.Embedder.BaseURL != "" {
		embedder := pipeline.NewRemoteEmbedder(cfg.Embedder.BaseURL,
			pipeline.WithDimension(cfg.Embedder.Dimension),
			pipeline.WithInputSize(cfg.Embedder.InputSize),
		)
		pipe = pipeline.New(st, embedder)
	} else {
		logger.Warn("no embedder configured, running read-only")
	}

	svc := logoann.New(st, pipe, func(o *logoann.Options) {
		o.Logger = logger
		o.DefaultIndex = cfg.DefaultIndex
	})
	defer svc.Close()

	specs := make([]logoann.IndexSpec, len(cfg.Indexes))
	for i, idx := range cfg.Indexes {
		metric, err := distance.ParseMetric(idx.Metric)
		if err != nil {
			return err
		}

		specs[i] = logoann.IndexSpec{
			Name:      idx.Name,
			Dimension: idx.Dimension,
			Metric:    metric,
		}
	}

	if err := svc.LoadIndexes(ctx, bs, specs); err != nil {
		if len(svc.IndexNames()) == 0 {
			return fmt.Errorf("no index could be loaded: %w", err)
		}
		logger.Warn("continuing with partially loaded indexes", "loaded", svc.IndexNames())
	}

	api := httpapi.New(svc, func(o *httpapi.Options) {
		o.DefaultCount = cfg.Neighbors.DefaultCount
		o.MaxCount = cfg.Neighbors.MaxCount
		o.Logger = logger
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: api,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen, "indexes", svc.IndexNames())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	var (
		bs  blobstore.BlobStore
		err error
	)

	switch cfg.Source.Kind {
	case "local":
		bs = blobstore.NewLocalStore(cfg.Source.Dir)
	case "s3":
		bs, err = s3blob.NewStoreFromDefaultConfig(ctx, cfg.Source.Bucket, cfg.Source.Prefix)
		if err != nil {
			return nil, fmt.Errorf("s3 artifact source: %w", err)
		}
	case "minio":
		bs, err = minioblob.NewStoreFromCredentials(
			cfg.Source.Endpoint,
			cfg.Source.AccessKey,
			cfg.Source.SecretKey,
			cfg.Source.Bucket,
			cfg.Source.Prefix,
			cfg.Source.UseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("minio artifact source: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	if cfg.Source.Cache && cfg.Source.Kind != "local" {
		bs = blobstore.NewCachingStore(bs, cfg.CacheDir())
	}

	return bs, nil
}
