package storage

import (
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	apperrors "go-skintone-inspector/internal/errors"
)

func TestParseBlobURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		container string
		blob      string
		wantErr   bool
	}{
		{"path form", "https://acct.blob.core.windows.net/images/selfies/a.jpg", "images", "selfies/a.jpg", false},
		{"legacy query form", "https://acct.blob.core.windows.net/images?blob=a.png", "images", "a.png", false},
		{"other account", "https://other.blob.core.windows.net/images/a.jpg", "", "", true},
		{"container only", "https://acct.blob.core.windows.net/images", "", "", true},
		{"garbage", "://bad", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseBlobURL("acct", tt.url)
			if tt.wantErr {
				if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
					t.Errorf("Expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if loc.Container != tt.container || loc.Blob != tt.blob {
				t.Errorf("Expected %s/%s, got %s/%s", tt.container, tt.blob, loc.Container, loc.Blob)
			}
		})
	}
}

func TestIsBlobURL(t *testing.T) {
	if !IsBlobURL("https://acct.blob.core.windows.net/images/a.jpg") {
		t.Error("Expected blob URL to be recognised")
	}
	if IsBlobURL("https://example.com/a.jpg") {
		t.Error("Expected plain URL to be rejected")
	}
}

func TestIsBlobNotFound(t *testing.T) {
	notFound := apperrors.NewNetworkError("download", &azcore.ResponseError{StatusCode: http.StatusNotFound})
	if !isBlobNotFound(notFound) {
		t.Error("Expected wrapped 404 to be recognised")
	}
	if isBlobNotFound(&azcore.ResponseError{StatusCode: http.StatusForbidden}) {
		t.Error("Expected 403 not to be treated as missing")
	}
}

func TestNewAzureStorage_RejectsBadKey(t *testing.T) {
	if _, err := NewAzureStorage("acct", "not base64!", 1024); err == nil {
		t.Error("Expected invalid shared key to be rejected")
	}
}
