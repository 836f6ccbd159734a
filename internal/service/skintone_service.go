package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "go-skintone-inspector/internal/errors"
	"go-skintone-inspector/internal/observer"
	"go-skintone-inspector/internal/palette"
	"go-skintone-inspector/internal/repository"
	"go-skintone-inspector/pkg/models"
)

// SkinToneService classifies uploaded or remote images
type SkinToneService interface {
	AnalyzeUpload(ctx context.Context, data []byte, contentType, source string) (*models.SkinToneResponse, error)
	AnalyzeURL(ctx context.Context, imageURL string) (*models.SkinToneResponse, error)
	Palette() models.PaletteResponse
	ValidateImageURL(imageURL string) error
}

// Analyzer is satisfied by *skintone.Pipeline
type Analyzer interface {
	Analyze(data []byte, contentType string) models.AnalysisResult
	Palette() *palette.Palette
}

type requestIDKey struct{}

// WithRequestID stores a request ID in the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the context's request ID or a fresh one
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

type skinToneService struct {
	imageRepo repository.ImageRepository
	analyzer  Analyzer
	pool      *WorkerPool
	events    observer.Subject
	timeout   time.Duration
}

// NewSkinToneService creates a new skin tone service. Analyses run on pool
// and are abandoned by the caller after timeout.
func NewSkinToneService(
	imageRepository repository.ImageRepository,
	analyzer Analyzer,
	pool *WorkerPool,
	events observer.Subject,
	timeout time.Duration,
) SkinToneService {
	return &skinToneService{
		imageRepo: imageRepository,
		analyzer:  analyzer,
		pool:      pool,
		events:    events,
		timeout:   timeout,
	}
}

// AnalyzeUpload classifies image bytes supplied by the caller
func (s *skinToneService) AnalyzeUpload(ctx context.Context, data []byte, contentType, source string) (*models.SkinToneResponse, error) {
	return s.analyze(ctx, RequestIDFrom(ctx), &models.ImageBlob{Data: data, ContentType: contentType, Source: source})
}

// AnalyzeURL fetches a remote image and classifies it
func (s *skinToneService) AnalyzeURL(ctx context.Context, imageURL string) (*models.SkinToneResponse, error) {
	requestID := RequestIDFrom(ctx)
	start := time.Now()

	blob, err := s.imageRepo.FetchImage(ctx, imageURL)
	if err != nil {
		s.notify(ctx, observer.AnalysisEvent{
			EventType:      observer.ImageFetchFailed,
			RequestID:      requestID,
			Source:         imageURL,
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.NewNetworkError("failed to fetch image", err)
	}

	s.notify(ctx, observer.AnalysisEvent{
		EventType:      observer.ImageFetched,
		RequestID:      requestID,
		Source:         imageURL,
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"bytes": len(blob.Data), "content_type": blob.ContentType},
	})

	return s.analyze(ctx, requestID, blob)
}

// Palette describes the loaded reference palette
func (s *skinToneService) Palette() models.PaletteResponse {
	p := s.analyzer.Palette()
	return models.PaletteResponse{
		Name:       p.Name(),
		FallbackID: p.Fallback().ID,
		Tones:      p.Tones(),
	}
}

// ValidateImageURL validates the image URL
func (s *skinToneService) ValidateImageURL(imageURL string) error {
	return s.imageRepo.ValidateImageURL(imageURL)
}

func (s *skinToneService) analyze(ctx context.Context, requestID string, blob *models.ImageBlob) (*models.SkinToneResponse, error) {
	start := time.Now()
	s.notify(ctx, observer.AnalysisEvent{
		EventType: observer.AnalysisStarted,
		RequestID: requestID,
		Source:    blob.Source,
	})

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// Buffered so an abandoned job can still deliver and exit
	done := make(chan models.AnalysisResult, 1)
	err := s.pool.Submit(ctx, func() {
		done <- s.analyzer.Analyze(blob.Data, blob.ContentType)
	})
	if err != nil {
		return nil, s.fail(ctx, requestID, blob.Source, start, err)
	}

	var result models.AnalysisResult
	select {
	case result = <-done:
	case <-ctx.Done():
		return nil, s.fail(ctx, requestID, blob.Source, start, ctx.Err())
	}

	elapsed := time.Since(start)
	s.notify(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisCompleted,
		RequestID:      requestID,
		Source:         blob.Source,
		ProcessingTime: elapsed,
		Success:        result.Succeeded,
		ToneID:         result.MatchedToneID,
		Confidence:     result.Confidence,
		FailureReason:  string(result.FailureReason),
	})

	return &models.SkinToneResponse{
		AnalysisResult:    result,
		RequestID:         requestID,
		Source:            blob.Source,
		Timestamp:         start.UTC().Format(time.RFC3339),
		ProcessingTimeSec: elapsed.Seconds(),
	}, nil
}

func (s *skinToneService) fail(ctx context.Context, requestID, source string, start time.Time, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		appErr = apperrors.NewTimeoutError("analysis timed out", err)
	case errors.Is(err, context.Canceled):
		appErr = apperrors.NewTimeoutError("analysis cancelled", err)
	case errors.Is(err, ErrPoolClosed):
		appErr = apperrors.NewInternalError("service is shutting down", err)
	default:
		appErr = apperrors.NewInternalError("analysis failed", err)
	}

	s.notify(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisFailed,
		RequestID:      requestID,
		Source:         source,
		ProcessingTime: time.Since(start),
		FailureReason:  string(appErr.Type),
		ErrorMessage:   err.Error(),
	})
	return appErr
}

func (s *skinToneService) notify(ctx context.Context, event observer.AnalysisEvent) {
	if s.events == nil {
		return
	}
	// Observers may outlive the request
	s.events.NotifyObservers(context.WithoutCancel(ctx), event)
}
