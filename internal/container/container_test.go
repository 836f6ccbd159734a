package container

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-skintone-inspector/internal/config"
	"go-skintone-inspector/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		RequestTimeout:     5 * time.Second,
		ImageFetchTimeout:  time.Second,
		AnalysisTimeout:    5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		MaxImageBytes:      1 << 20,
		AnalysisWorkers:    2,
		LogLevel:           "error",
	}
}

func facePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.SetRGBA(x, y, color.RGBA{0xc6, 0x8c, 0x6e, 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNewContainer_ServesRequests(t *testing.T) {
	c, err := NewContainer(testConfig())
	if err != nil {
		t.Fatalf("Expected container, got error: %v", err)
	}
	defer c.Close()

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/skin-tone", bytes.NewReader(facePNG(t))))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.SkinToneResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.MatchedToneID == "" || resp.RequestID == "" {
		t.Errorf("Expected classified response, got %+v", resp)
	}

	c.publisher.Flush()

	w = httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "skintone_analyses_started_total 1") {
		t.Errorf("Expected analysis metrics to be exported, got:\n%s", w.Body.String())
	}
}

func TestNewContainer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing palette file", func(c *config.Config) {
			c.PaletteFile = filepath.Join(t.TempDir(), "missing.yaml")
		}},
		{"missing pipeline config", func(c *config.Config) {
			c.PipelineConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
		}},
		{"bad azure key", func(c *config.Config) {
			c.AzureStorageAccount = "acct"
			c.AzureStorageKey = "not base64!"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if c, err := NewContainer(cfg); err == nil {
				c.Close()
				t.Error("Expected error, got nil")
			}
		})
	}

	if _, err := NewContainer(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}
