package repository

import (
	"context"

	"go-skintone-inspector/internal/logger"
	"go-skintone-inspector/internal/storage"
	"go-skintone-inspector/pkg/models"
)

// RoutedImageRepository sends blob-storage URLs to the blob client and
// everything else to the HTTP fetcher
type RoutedImageRepository struct {
	fetcher   storage.ImageFetcher
	blob      storage.BlobStorage
	validator URLValidator
}

// NewImageRepository creates an image repository. blob may be nil, in which
// case blob URLs are fetched over plain HTTP.
func NewImageRepository(fetcher storage.ImageFetcher, blob storage.BlobStorage, validator URLValidator) *RoutedImageRepository {
	return &RoutedImageRepository{
		fetcher:   fetcher,
		blob:      blob,
		validator: validator,
	}
}

// FetchImage validates the URL and retrieves the image from its source
func (r *RoutedImageRepository) FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	if err := r.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}

	if r.blob != nil && storage.IsBlobURL(imageURL) {
		logger.WithField("source", "blob").Debug("Fetching image from blob storage")
		return r.blob.Download(ctx, imageURL)
	}
	return r.fetcher.FetchImage(ctx, imageURL)
}

// ValidateImageURL validates if the provided URL is acceptable
func (r *RoutedImageRepository) ValidateImageURL(imageURL string) error {
	return r.validator.ValidateImageURL(imageURL)
}
