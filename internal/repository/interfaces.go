package repository

import (
	"context"

	"go-skintone-inspector/pkg/models"
)

// ImageRepository defines the interface for image data access operations
type ImageRepository interface {
	// FetchImage retrieves the encoded bytes of a remote image
	FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error)

	// ValidateImageURL validates if the provided URL is acceptable
	ValidateImageURL(imageURL string) error
}

// URLValidator is satisfied by pkg/validation.URLValidator
type URLValidator interface {
	ValidateImageURL(imageURL string) error
}
