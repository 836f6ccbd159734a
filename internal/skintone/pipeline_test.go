package skintone

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"go-skintone-inspector/internal/palette"
	"go-skintone-inspector/pkg/models"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func uniformPNG(t *testing.T, w, h int, c [3]int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2]), A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	return encodePNG(t, img)
}

func noisyPNG(t *testing.T, w, h int, c [3]int, sigma float64, seed int64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var px [3]uint8
			for k := range px {
				v := float64(c[k]) + sigma*rng.NormFloat64()
				px[k] = uint8(clampInt(int(math.Round(v)), 0, 255))
			}
			img.SetRGBA(x, y, color.RGBA{R: px[0], G: px[1], B: px[2], A: 0xff})
		}
	}
	return encodePNG(t, img)
}

func exposed(c [3]int, ev float64) [3]int {
	f := math.Pow(2, ev)
	var out [3]int
	for k := range c {
		out[k] = clampInt(int(float64(c[k])*f+0.5), 0, 255)
	}
	return out
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(palette.Default(), DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	return p
}

func TestNewPipeline_Validation(t *testing.T) {
	if _, err := NewPipeline(nil, DefaultOptions(), nil); err == nil {
		t.Error("Expected error for missing palette")
	}

	bad := DefaultOptions()
	bad.Classifier.ExtremeK = 0
	if _, err := NewPipeline(palette.Default(), bad, nil); err == nil {
		t.Error("Expected error for invalid options")
	}

	if _, err := NewPipeline(palette.Default(), DefaultOptions().WithFallbackTone("T99"), nil); err == nil {
		t.Error("Expected error for unknown fallback tone")
	}
}

func TestAnalyze_UniformToneClassifiesToItself(t *testing.T) {
	p := newTestPipeline(t)

	for _, tone := range palette.Default().Tones() {
		t.Run(tone.ID, func(t *testing.T) {
			result := p.Analyze(uniformPNG(t, 96, 96, tone.RGB), "image/png")

			if !result.Succeeded {
				t.Fatalf("Expected success, got failure %q", result.FailureReason)
			}
			if result.MatchedToneID != tone.ID {
				t.Errorf("Expected %s, got %s (derived %s)", tone.ID, result.MatchedToneID, result.DerivedHex)
			}
			if result.Confidence < 0.8 {
				t.Errorf("Expected confidence >= 0.8, got %.4f", result.Confidence)
			}
			if result.MatchedHex != tone.Hex {
				t.Errorf("Expected matched hex %s, got %s", tone.Hex, result.MatchedHex)
			}
		})
	}
}

func TestAnalyze_ExtremeScenarios(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name string
		rgb  [3]int
		want string
	}{
		{"darkest", [3]int{41, 36, 32}, "T10"},
		{"lightest", [3]int{246, 237, 228}, "T01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := p.Analyze(uniformPNG(t, 96, 96, tt.rgb), "image/png")
			if result.MatchedToneID != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, result.MatchedToneID)
			}
			if result.Confidence < 0.8 {
				t.Errorf("Expected confidence >= 0.8, got %.4f", result.Confidence)
			}
			if result.DominantRGB != tt.rgb {
				t.Errorf("Expected dominant RGB %v, got %v", tt.rgb, result.DominantRGB)
			}
		})
	}
}

func TestAnalyze_MidGrayIsValidButLessConfident(t *testing.T) {
	p := newTestPipeline(t)

	result := p.Analyze(uniformPNG(t, 96, 96, [3]int{128, 128, 128}), "image/png")

	if !result.Succeeded {
		t.Fatalf("Expected success for grey, got %q", result.FailureReason)
	}
	if _, ok := palette.Default().ByID(result.MatchedToneID); !ok {
		t.Errorf("Expected a palette tone, got %s", result.MatchedToneID)
	}
	if result.Confidence > 0.6 {
		t.Errorf("Expected confidence <= 0.6 for grey, got %.4f", result.Confidence)
	}
	if result.Diagnostics["envelope_bonus"] != 0.0 {
		t.Errorf("Expected no envelope bonus, got %v", result.Diagnostics["envelope_bonus"])
	}
}

func TestAnalyze_MidpointIsDeterministic(t *testing.T) {
	p := newTestPipeline(t)
	tones := palette.Default().Tones()

	for i := 0; i+1 < len(tones); i++ {
		a, b := tones[i], tones[i+1]
		mid := [3]int{(a.RGB[0] + b.RGB[0]) / 2, (a.RGB[1] + b.RGB[1]) / 2, (a.RGB[2] + b.RGB[2]) / 2}
		data := uniformPNG(t, 64, 64, mid)

		first := p.Analyze(data, "image/png")
		if first.MatchedToneID != a.ID && first.MatchedToneID != b.ID {
			t.Errorf("Midpoint of %s/%s classified as %s", a.ID, b.ID, first.MatchedToneID)
		}
		for run := 0; run < 3; run++ {
			if again := p.Analyze(data, "image/png"); again.MatchedToneID != first.MatchedToneID {
				t.Errorf("Midpoint of %s/%s alternated between %s and %s", a.ID, b.ID, first.MatchedToneID, again.MatchedToneID)
			}
		}
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	p := newTestPipeline(t)
	data := noisyPNG(t, 64, 64, [3]int{160, 126, 86}, 16, 7)

	first := p.Analyze(data, "image/png")
	second := p.Analyze(data, "image/png")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("Expected byte-identical JSON:\n%s\n%s", a, b)
	}
}

func TestAnalyze_ConfidenceFallsWithNoise(t *testing.T) {
	p := newTestPipeline(t)
	sigmas := []float64{0, 2, 4, 6, 8, 12, 16, 24, 32, 48, 64}

	for _, tone := range palette.Default().Tones() {
		t.Run(tone.ID, func(t *testing.T) {
			prev := math.Inf(1)
			prevNoise := math.Inf(1)
			for _, sigma := range sigmas {
				result := p.Analyze(noisyPNG(t, 64, 64, tone.RGB, sigma, 7), "image/png")
				if result.Confidence > prev {
					t.Errorf("Expected non-increasing confidence, sigma %.0f gave %.4f after %.4f", sigma, result.Confidence, prev)
				}
				prev = result.Confidence

				if noise, ok := result.Diagnostics["noise_factor"].(float64); ok {
					if noise > prevNoise {
						t.Errorf("Expected non-increasing noise factor, sigma %.0f gave %.4f after %.4f", sigma, noise, prevNoise)
					}
					prevNoise = noise
				}
			}
			if prev >= 0.5 {
				t.Errorf("Expected heavy noise to cost confidence, sigma 64 gave %.4f", prev)
			}
		})
	}
}

func TestAnalyze_ConfidenceFallsWithOverexposure(t *testing.T) {
	p := newTestPipeline(t)

	for _, id := range []string{"T04", "T05"} {
		tone, _ := palette.Default().ByID(id)
		t.Run(id, func(t *testing.T) {
			prev := math.Inf(1)
			for _, ev := range []float64{0, 0.25, 0.5, 1.0} {
				result := p.Analyze(uniformPNG(t, 64, 64, exposed(tone.RGB, ev)), "image/png")
				if result.Confidence > prev {
					t.Errorf("Expected non-increasing confidence, EV %.2f gave %.4f after %.4f", ev, result.Confidence, prev)
				}
				prev = result.Confidence
			}
		})
	}
}

// A uniformly darkened patch is colour-identical to a darker tone, so the
// match itself may improve; the lighting score must still fall.
func TestAnalyze_LightingScoreFallsWithUnderexposure(t *testing.T) {
	p := newTestPipeline(t)

	for _, id := range []string{"T05", "T06", "T07", "T08", "T09", "T10"} {
		tone, _ := palette.Default().ByID(id)
		t.Run(id, func(t *testing.T) {
			first := math.Inf(1)
			prev := math.Inf(1)
			for _, ev := range []float64{0, -0.25, -0.5, -1, -1.5, -2, -3} {
				result := p.Analyze(uniformPNG(t, 64, 64, exposed(tone.RGB, ev)), "image/png")
				score, ok := result.Diagnostics["lighting_score"].(float64)
				if !ok {
					t.Fatalf("Expected lighting_score diagnostic at EV %.2f, got %v", ev, result.Diagnostics)
				}
				if score > prev {
					t.Errorf("Expected non-increasing lighting score, EV %.2f gave %.4f after %.4f", ev, score, prev)
				}
				if math.IsInf(first, 1) {
					first = score
				}
				prev = score
			}
			if prev >= first {
				t.Errorf("Expected EV -3 to score below EV 0, got %.4f vs %.4f", prev, first)
			}
		})
	}
}

func TestAnalyze_DegenerateInputs(t *testing.T) {
	p := newTestPipeline(t)

	transparent := image.NewNRGBA(image.Rect(0, 0, 32, 32))

	tests := []struct {
		name        string
		data        []byte
		contentType string
		reason      models.FailureReason
	}{
		{"one pixel", uniformPNG(t, 1, 1, [3]int{215, 189, 150}), "image/png", models.FailureDecodeError},
		{"fully transparent", encodePNG(t, transparent), "image/png", models.FailureDecodeError},
		{"not an image", []byte("hello"), "text/plain", models.FailureDecodeError},
		{"garbage bytes", []byte("definitely not a png"), "image/png", models.FailureDecodeError},
		{"empty", nil, "image/png", models.FailureDecodeError},
		{"black frame", uniformPNG(t, 64, 64, [3]int{0, 0, 0}), "image/png", models.FailureNoUsableRegion},
		{"saturated green", uniformPNG(t, 64, 64, [3]int{0, 255, 0}), "image/png", models.FailureDegenerateColor},
		{"saturated blue", uniformPNG(t, 64, 64, [3]int{20, 20, 200}), "image/png", models.FailureDegenerateColor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := p.Analyze(tt.data, tt.contentType)

			if result.Succeeded {
				t.Fatal("Expected failure result")
			}
			if result.FailureReason != tt.reason {
				t.Errorf("Expected reason %s, got %s", tt.reason, result.FailureReason)
			}
			if result.MatchedToneID != "T05" {
				t.Errorf("Expected fallback tone T05, got %s", result.MatchedToneID)
			}
			if result.Confidence > 0.3 {
				t.Errorf("Expected confidence <= 0.3, got %.4f", result.Confidence)
			}
		})
	}
}

func TestAnalyze_ConfiguredFallbackTone(t *testing.T) {
	p, err := NewPipeline(palette.Default(), DefaultOptions().WithFallbackTone("T06"), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result := p.Analyze([]byte("nope"), "image/png")
	if result.MatchedToneID != "T06" || result.DominantRGB != [3]int{160, 126, 86} {
		t.Errorf("Expected configured fallback T06, got %+v", result)
	}
	if result.Confidence != 0.1 {
		t.Errorf("Expected decode failure confidence 0.1, got %.4f", result.Confidence)
	}
}

func TestAnalyze_Diagnostics(t *testing.T) {
	p := newTestPipeline(t)

	result := p.Analyze(uniformPNG(t, 96, 96, [3]int{215, 189, 150}), "image/png")

	for _, key := range []string{"region_count", "region_strategy", "lighting_class", "coherence_score", "extraction_score", "lighting_score", "delta_e"} {
		if _, ok := result.Diagnostics[key]; !ok {
			t.Errorf("Expected diagnostics key %s", key)
		}
	}
	if result.Diagnostics["region_strategy"] != StrategyChromaMask {
		t.Errorf("Expected chroma mask strategy, got %v", result.Diagnostics["region_strategy"])
	}
	if result.Diagnostics["region_count"] != 5 {
		t.Errorf("Expected 5 regions, got %v", result.Diagnostics["region_count"])
	}
	if len(result.Warnings) == 0 {
		t.Error("Expected a low resolution warning for a 96px image")
	}
}

func TestAnalyzeRaster_SkipsDecoding(t *testing.T) {
	p := newTestPipeline(t)

	result := p.analyzeRaster(NewUniformRaster(96, 96, 130, 92, 67))
	if !result.Succeeded || result.MatchedToneID != "T07" {
		t.Errorf("Expected T07, got %+v", result)
	}
	if result.Diagnostics["noise_factor"] != 1.0 {
		t.Errorf("Expected noise factor 1 for a flat frame, got %v", result.Diagnostics["noise_factor"])
	}
}
