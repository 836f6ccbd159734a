package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"go-skintone-inspector/internal/config"
	"go-skintone-inspector/internal/logger"
	"go-skintone-inspector/internal/observer"
	"go-skintone-inspector/internal/palette"
	"go-skintone-inspector/internal/repository"
	"go-skintone-inspector/internal/service"
	"go-skintone-inspector/internal/skintone"
	"go-skintone-inspector/internal/storage"
	"go-skintone-inspector/internal/transport"
	"go-skintone-inspector/pkg/validation"
)

// Version is reported by the health endpoint
var Version = "dev"

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	pool      *service.WorkerPool
	publisher *observer.EventPublisher
	service   service.SkinToneService
	handler   http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var blobStorage storage.BlobStorage
	if cfg.AzureEnabled() {
		bs, err := storage.NewAzureStorage(cfg.AzureStorageAccount, cfg.AzureStorageKey, cfg.MaxImageBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob storage: %w", err)
		}
		blobStorage = bs
	}

	pal, err := loadPalette(cfg, blobStorage)
	if err != nil {
		return nil, err
	}

	opts, err := skintone.LoadOptions(cfg.PipelineConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	pipeline, err := skintone.NewPipeline(pal, opts.WithMaxImageBytes(cfg.MaxImageBytes), logger.Component("pipeline"))
	if err != nil {
		return nil, err
	}

	validator := validation.NewURLValidator()
	if !cfg.AllowPrivateHosts {
		validator = validator.BlockPrivateHosts()
	}

	fetchOpts := storage.DefaultFetcherOptions()
	fetchOpts.Timeout = cfg.ImageFetchTimeout
	fetchOpts.MaxBytes = cfg.MaxImageBytes
	fetchOpts.ValidateRedirect = validator.ValidateImageURL
	imageRepository := repository.NewImageRepository(storage.NewHTTPImageFetcher(fetchOpts), blobStorage, validator)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(observer.NewMetricsObserver(registry))

	pool := service.NewWorkerPool(cfg.AnalysisWorkers)
	pool.Start()

	svc := service.NewSkinToneService(imageRepository, pipeline, pool, publisher, cfg.AnalysisTimeout)
	handler := transport.NewHandler(svc, transport.Options{
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		Version:            Version,
		Gatherer:           registry,
	})

	logger.WithFields(logrus.Fields{
		"palette":      pal.Name(),
		"tones":        pal.Len(),
		"workers":      pool.GetStats().Workers,
		"blob_storage": blobStorage != nil,
	}).Info("Container initialized")

	return &Container{
		config:    cfg,
		pool:      pool,
		publisher: publisher,
		service:   svc,
		handler:   handler,
	}, nil
}

// loadPalette applies overrides in order: embedded default, file, blob
func loadPalette(cfg *config.Config, blobs storage.BlobStorage) (*palette.Palette, error) {
	switch {
	case cfg.PaletteBlobURL != "":
		if blobs == nil {
			return nil, fmt.Errorf("palette blob %s requires blob storage", cfg.PaletteBlobURL)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		blob, err := blobs.Download(ctx, cfg.PaletteBlobURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download palette: %w", err)
		}
		return palette.Parse(blob.Data)
	case cfg.PaletteFile != "":
		return palette.Load(cfg.PaletteFile)
	default:
		return palette.Default(), nil
	}
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the skin tone service
func (c *Container) Service() service.SkinToneService {
	return c.service
}

// Close stops the worker pool and waits for pending observer callbacks
func (c *Container) Close() {
	c.pool.Close()
	c.publisher.Flush()
}
