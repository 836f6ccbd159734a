package transport

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	apperrors "go-skintone-inspector/internal/errors"
	"go-skintone-inspector/internal/logger"
	"go-skintone-inspector/internal/service"
	"go-skintone-inspector/internal/storage"
	"go-skintone-inspector/pkg/models"
)

const imageFormField = "image"

// Options configure the HTTP surface
type Options struct {
	MaxRequestBodySize int64
	RequestTimeout     time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	Version            string
	// Metrics are served from Gatherer when set
	Gatherer prometheus.Gatherer
}

func NewHandler(svc service.SkinToneService, opts Options) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		rateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		requestSizeLimiter(opts.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck(svc, opts.Version))
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.GET("/palette", getPalette(svc))
	v1.POST("/skin-tone", analyzeUpload(svc, opts.RequestTimeout))
	v1.POST("/skin-tone/url", analyzeURL(svc, opts.RequestTimeout))

	return r
}

func analyzeUpload(svc service.SkinToneService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c.Request.Context(), timeout)
		defer cancel()

		data, contentType, source, err := readImage(c)
		if err != nil {
			respondError(c, determineStatusCode(err), "invalid image upload", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"bytes":        len(data),
			"content_type": contentType,
			"request_id":   c.GetString(requestIDKey),
		}).Debug("Analyzing uploaded image")

		resp, err := svc.AnalyzeUpload(ctx, data, contentType, source)
		if err != nil {
			respondError(c, determineStatusCode(err), "analysis failed", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func analyzeURL(svc service.SkinToneService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c.Request.Context(), timeout)
		defer cancel()

		var req models.URLAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		if err := svc.ValidateImageURL(req.URL); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid image URL", err)
			return
		}

		resp, err := svc.AnalyzeURL(ctx, req.URL)
		if err != nil {
			respondError(c, determineStatusCode(err), "failed to analyze image", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func getPalette(svc service.SkinToneService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Palette())
	}
}

func healthCheck(svc service.SkinToneService, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:      "available",
			Version:     version,
			Time:        time.Now().UTC().Format(time.RFC3339),
			PaletteSize: len(svc.Palette().Tones),
		})
	}
}

// readImage accepts a multipart "image" field or a raw image body
func readImage(c *gin.Context) ([]byte, string, string, error) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))

	if mediaType == "multipart/form-data" {
		fh, err := c.FormFile(imageFormField)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, "", "", err
			}
			return nil, "", "", apperrors.NewValidationError("multipart field \"image\" is required", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", "", apperrors.NewValidationError("unreadable upload", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", "", apperrors.NewValidationError("unreadable upload", err)
		}
		return nonEmpty(data, fh.Header.Get("Content-Type"), "upload:"+fh.Filename)
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, "", "", err
		}
		return nil, "", "", apperrors.NewValidationError("unreadable request body", err)
	}
	return nonEmpty(data, c.GetHeader("Content-Type"), "upload")
}

func nonEmpty(data []byte, contentType, source string) ([]byte, string, string, error) {
	if len(data) == 0 {
		return nil, "", "", apperrors.NewValidationError("image body is empty", nil)
	}
	return data, storage.ContentTypeOf(strings.TrimSpace(contentType), data), source, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
