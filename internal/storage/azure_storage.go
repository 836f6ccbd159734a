package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-skintone-inspector/internal/errors"
	"go-skintone-inspector/pkg/models"
)

type BlobStorage interface {
	Download(ctx context.Context, blobURL string) (*models.ImageBlob, error)
}

type azureStorage struct {
	client   *azblob.Client
	account  string
	maxBytes int64
}

// BlobLocation addresses a single blob inside the configured account
type BlobLocation struct {
	Container string
	Blob      string
}

func NewAzureStorage(accountName string, accountKey string, maxBytes int64) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	options := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    30 * time.Second,
				RetryDelay:    500 * time.Millisecond,
				MaxRetryDelay: 5 * time.Second,
			},
		},
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &azureStorage{client: client, account: accountName, maxBytes: maxBytes}, nil
}

func (s *azureStorage) Download(ctx context.Context, blobURL string) (*models.ImageBlob, error) {
	loc, err := ParseBlobURL(s.account, blobURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, loc.Container, loc.Blob, nil)
	if err != nil {
		if isBlobNotFound(err) {
			return nil, apperrors.NewNotFoundError("blob not found", err).
				WithDetails("%s/%s", loc.Container, loc.Blob)
		}
		return nil, apperrors.NewNetworkError("blob download failed", err)
	}
	defer resp.Body.Close()

	data, err := readCapped(resp.Body, s.maxBytes)
	if err != nil {
		return nil, err
	}

	declared := ""
	if resp.ContentType != nil {
		declared = *resp.ContentType
	}

	return &models.ImageBlob{
		Data:        data,
		ContentType: ContentTypeOf(declared, data),
		Source:      blobURL,
	}, nil
}

// ParseBlobURL splits a blob URL of the given account into container and
// blob name. The legacy "?blob=" form is accepted for the blob name.
func ParseBlobURL(account, blobURL string) (BlobLocation, error) {
	parts, err := azblob.ParseURL(blobURL)
	if err != nil {
		return BlobLocation{}, apperrors.NewValidationError("invalid blob URL", err)
	}

	if account != "" && !strings.EqualFold(parts.Host, account+".blob.core.windows.net") {
		return BlobLocation{}, apperrors.NewValidationError("blob URL does not belong to the configured account", nil).
			WithDetails("host %s", parts.Host)
	}

	loc := BlobLocation{Container: parts.ContainerName, Blob: parts.BlobName}
	if loc.Blob == "" {
		if u, err := url.Parse(blobURL); err == nil {
			loc.Blob = u.Query().Get("blob")
		}
	}
	if loc.Container == "" || loc.Blob == "" {
		return BlobLocation{}, apperrors.NewValidationError("blob URL must name a container and a blob", nil)
	}
	return loc, nil
}

// IsBlobURL reports whether a URL points at Azure blob storage
func IsBlobURL(raw string) bool {
	parts, err := azblob.ParseURL(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(parts.Host), ".blob.core.windows.net")
}

func isBlobNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
