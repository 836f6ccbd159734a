package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go-skintone-inspector/pkg/models"
)

func writeImage(t *testing.T, dir string, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "face.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.Bytes(), err
}

func TestPaletteCommand(t *testing.T) {
	out, err := run(t, "palette")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var resp models.PaletteResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Name != "monk" || len(resp.Tones) != 10 || resp.FallbackID != "T05" {
		t.Errorf("Unexpected palette %+v", resp)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	path := writeImage(t, t.TempDir(), color.RGBA{0xc6, 0x8c, 0x6e, 0xff})

	out, err := run(t, "analyze", path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var res fileResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("Expected JSON output, got %s", out)
	}
	if res.File != path || res.MatchedToneID == "" {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestAnalyzeCommand_Undecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "analyze", path)
	if err != nil {
		t.Fatalf("Expected fallback result rather than error, got %v", err)
	}

	var res fileResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatal(err)
	}
	if res.Succeeded || res.FailureReason != models.FailureDecodeError || res.MatchedToneID != "T05" {
		t.Errorf("Expected decode failure with fallback tone, got %+v", res)
	}
}

func TestAnalyzeCommand_FallbackTone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "analyze", "--fallback-tone", "T06", path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var res fileResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatal(err)
	}
	if res.MatchedToneID != "T06" {
		t.Errorf("Expected configured fallback T06, got %s", res.MatchedToneID)
	}
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no files", []string{"analyze"}},
		{"missing file", []string{"analyze", filepath.Join(t.TempDir(), "nope.png")}},
		{"missing palette", []string{"palette", "--palette", filepath.Join(t.TempDir(), "nope.yaml")}},
		{"unknown fallback tone", []string{"analyze", "--fallback-tone", "T99", writeImage(t, t.TempDir(), color.RGBA{0xc6, 0x8c, 0x6e, 0xff})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
