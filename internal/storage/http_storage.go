package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	apperrors "go-skintone-inspector/internal/errors"
	"go-skintone-inspector/internal/logger"
	"go-skintone-inspector/pkg/models"
)

type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error)
}

// FetcherOptions tune retries, size limits and the circuit breaker
type FetcherOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	// Backoff grows linearly: attempt n waits n*Backoff
	Backoff  time.Duration
	MaxBytes int64

	// Consecutive failed fetches that open the breaker
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// ValidateRedirect is consulted for every redirect target when set
	ValidateRedirect func(target string) error
}

// DefaultFetcherOptions mirrors the production settings
func DefaultFetcherOptions() FetcherOptions {
	return FetcherOptions{
		Timeout:         30 * time.Second,
		MaxAttempts:     3,
		Backoff:         time.Second,
		MaxBytes:        8 * 1024 * 1024,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// HTTPImageFetcher downloads images with retries behind a circuit breaker
type HTTPImageFetcher struct {
	client  *http.Client
	opts    FetcherOptions
	breaker *gobreaker.CircuitBreaker[*models.ImageBlob]
	log     *logrus.Entry
}

// statusError carries the HTTP status of a failed attempt
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	if e.code >= 500 {
		return fmt.Sprintf("server error: status code %d", e.code)
	}
	return fmt.Sprintf("client error: status code %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code >= 500
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts FetcherOptions) *HTTPImageFetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	log := logger.Component("http_fetcher")

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	f := &HTTPImageFetcher{
		opts: opts,
		log:  log,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				if opts.ValidateRedirect != nil {
					return opts.ValidateRedirect(req.URL.String())
				}
				return nil
			},
		},
	}

	f.breaker = gobreaker.NewCircuitBreaker[*models.ImageBlob](gobreaker.Settings{
		Name:        "image-fetch",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return opts.BreakerFailures > 0 && counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		// Client errors and cancellations say nothing about the remote's health
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return true
			}
			return err == nil || errors.Is(err, context.Canceled) || apperrors.IsType(err, apperrors.ErrorTypeValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return f
}

// BreakerState exposes the current breaker state
func (h *HTTPImageFetcher) BreakerState() gobreaker.State {
	return h.breaker.State()
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	blob, err := h.breaker.Execute(func() (*models.ImageBlob, error) {
		return h.fetchWithRetry(ctx, imageURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.NewNetworkError("remote image source temporarily unavailable", err)
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, apperrors.NewNotFoundError("image not found", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("image fetch timed out", err)
		}
		return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to fetch image after %d attempts", h.opts.MaxAttempts), err)
	}
	return blob, nil
}

func (h *HTTPImageFetcher) fetchWithRetry(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid URL", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Skintone-Inspector/1.0")

	var lastErr error
	for attempt := 0; attempt < h.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * h.opts.Backoff):
			}
		}

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			h.log.WithError(err).WithField("attempt", attempt+1).Debug("Image fetch attempt failed")
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return h.readBody(resp, imageURL)
		}

		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		se := &statusError{code: resp.StatusCode}
		lastErr = se
		// 4xx client errors are non-retryable
		if !se.retryable() {
			return nil, se
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func (h *HTTPImageFetcher) readBody(resp *http.Response, source string) (*models.ImageBlob, error) {
	defer resp.Body.Close()

	if h.opts.MaxBytes > 0 && resp.ContentLength > h.opts.MaxBytes {
		return nil, apperrors.NewValidationError("image too large", nil).
			WithDetails("content length %d exceeds %d bytes", resp.ContentLength, h.opts.MaxBytes)
	}

	data, err := readCapped(resp.Body, h.opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	return &models.ImageBlob{
		Data:        data,
		ContentType: ContentTypeOf(resp.Header.Get("Content-Type"), data),
		Source:      source,
	}, nil
}

// readCapped reads at most max bytes and fails if the stream holds more
func readCapped(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > max {
		return nil, apperrors.NewValidationError("image too large", nil).
			WithDetails("body exceeds %d bytes", max)
	}
	return data, nil
}

// ContentTypeOf trusts a specific declared type and sniffs otherwise
func ContentTypeOf(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return declared
		}
	}
	return http.DetectContentType(data)
}
