package repository

import (
	"context"
	"testing"

	apperrors "go-skintone-inspector/internal/errors"
	"go-skintone-inspector/pkg/models"
	"go-skintone-inspector/pkg/validation"
)

type recordingSource struct {
	calls []string
}

func (s *recordingSource) FetchImage(_ context.Context, u string) (*models.ImageBlob, error) {
	s.calls = append(s.calls, u)
	return &models.ImageBlob{Source: "http"}, nil
}

func (s *recordingSource) Download(_ context.Context, u string) (*models.ImageBlob, error) {
	s.calls = append(s.calls, u)
	return &models.ImageBlob{Source: "blob"}, nil
}

func TestRoutedImageRepository_Routing(t *testing.T) {
	fetcher := &recordingSource{}
	blob := &recordingSource{}
	repo := NewImageRepository(fetcher, blob, validation.NewURLValidator())

	got, err := repo.FetchImage(context.Background(), "https://acct.blob.core.windows.net/images/a.jpg")
	if err != nil || got.Source != "blob" {
		t.Errorf("Expected blob source, got %+v (%v)", got, err)
	}

	got, err = repo.FetchImage(context.Background(), "https://example.com/a.jpg")
	if err != nil || got.Source != "http" {
		t.Errorf("Expected http source, got %+v (%v)", got, err)
	}

	if len(fetcher.calls) != 1 || len(blob.calls) != 1 {
		t.Errorf("Expected one call per source, got http=%d blob=%d", len(fetcher.calls), len(blob.calls))
	}
}

func TestRoutedImageRepository_NoBlobStorage(t *testing.T) {
	fetcher := &recordingSource{}
	repo := NewImageRepository(fetcher, nil, validation.NewURLValidator())

	got, err := repo.FetchImage(context.Background(), "https://acct.blob.core.windows.net/images/a.jpg")
	if err != nil || got.Source != "http" {
		t.Errorf("Expected blob URL fetched over http, got %+v (%v)", got, err)
	}
}

func TestRoutedImageRepository_RejectsInvalidURL(t *testing.T) {
	fetcher := &recordingSource{}
	repo := NewImageRepository(fetcher, nil, validation.NewURLValidator().BlockPrivateHosts())

	for _, u := range []string{"", "ftp://example.com/a.jpg", "http://127.0.0.1/a.jpg"} {
		_, err := repo.FetchImage(context.Background(), u)
		if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			t.Errorf("Expected validation error for %q, got %v", u, err)
		}
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("Expected no fetches for invalid URLs, got %v", fetcher.calls)
	}
}
