package skintone

import (
	"math"
	"testing"
)

func gradientRaster(w, h int, from, to uint8) *Raster {
	r := NewRaster(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(int(from) + (int(to)-int(from))*x/(w-1))
			r.Set(x, y, v, uint8(float64(v)*0.8), uint8(float64(v)*0.6))
		}
	}
	return r
}

func TestLightingCorrector_Classify(t *testing.T) {
	lc := NewLightingCorrector(DefaultOptions().Lighting)

	tests := []struct {
		meanL float64
		want  BrightnessClass
	}{
		{10, BrightnessDark},
		{34.9, BrightnessDark},
		{35, BrightnessNormal},
		{64.9, BrightnessNormal},
		{65, BrightnessBright},
		{80, BrightnessVeryBright},
		{99, BrightnessVeryBright},
	}

	for _, tt := range tests {
		if got := lc.Classify(tt.meanL); got != tt.want {
			t.Errorf("Classify(%.1f): expected %s, got %s", tt.meanL, tt.want, got)
		}
	}
}

func TestLightingCorrector_FlatFrameUnchanged(t *testing.T) {
	lc := NewLightingCorrector(DefaultOptions().Lighting)
	src := NewUniformRaster(32, 32, 215, 189, 150)

	out, report := lc.Correct(src)

	if report.Strength != 0 {
		t.Errorf("Expected zero strength on a flat frame, got %f", report.Strength)
	}
	if len(report.Applied) != 0 {
		t.Errorf("Expected no steps applied, got %v", report.Applied)
	}
	if cr, cg, cb := out.At(5, 5); cr != 215 || cg != 189 || cb != 150 {
		t.Errorf("Expected unchanged pixel, got (%d,%d,%d)", cr, cg, cb)
	}
}

func TestLightingCorrector_DarkGradient(t *testing.T) {
	lc := NewLightingCorrector(DefaultOptions().Lighting)
	src := gradientRaster(64, 64, 5, 120)
	before := src.Clone()

	out, report := lc.Correct(src)

	if report.Class != BrightnessDark {
		t.Errorf("Expected dark class, got %s (mean L* %.1f)", report.Class, report.MeanL)
	}
	if report.Strength != 1 {
		t.Errorf("Expected full strength on a wide gradient, got %f", report.Strength)
	}
	if len(report.Applied) != 4 || len(report.Skipped) != 0 {
		t.Errorf("Expected all four steps applied, got applied=%v skipped=%v", report.Applied, report.Skipped)
	}
	if out == src || out.Width != 64 || out.Height != 64 {
		t.Error("Expected a new raster of the same size")
	}
	for i := range before.Pix {
		if before.Pix[i] != src.Pix[i] {
			t.Fatal("Expected the input raster to be left untouched")
		}
	}
}

func TestRunStep_IsolatesFailures(t *testing.T) {
	in := []float64{10, 20, 30}

	if _, err := runStep(func([]float64) []float64 { panic("boom") }, in); err == nil {
		t.Error("Expected error from panicking step")
	}
	if _, err := runStep(func(l []float64) []float64 { l[0] = math.NaN(); return l }, in); err == nil {
		t.Error("Expected error from non-finite output")
	}
	if _, err := runStep(func(l []float64) []float64 { return l[:1] }, in); err == nil {
		t.Error("Expected error from truncated output")
	}
	if in[0] != 10 {
		t.Error("Expected input plane to be untouched")
	}

	out, err := runStep(func(l []float64) []float64 { return applyGamma(l, 1) }, in)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	for i := range in {
		if math.Abs(out[i]-in[i]) > 1e-9 {
			t.Errorf("Expected identity gamma, got %v", out)
		}
	}
}

func TestRemapShadowsHighlights(t *testing.T) {
	l := []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 55}
	out := remapShadowsHighlights(append([]float64(nil), l...), 0.5, 0.5)

	if out[0] <= l[0] {
		t.Errorf("Expected shadows lifted, got %f", out[0])
	}
	if out[10] >= l[10] {
		t.Errorf("Expected highlights compressed, got %f", out[10])
	}
	if out[11] != l[11] {
		t.Errorf("Expected midtones untouched, got %f", out[11])
	}
}

func TestTrimContrast(t *testing.T) {
	out := trimContrast([]float64{0, 50, 100}, 1.2)
	if out[0] != 0 || out[1] != 50 || out[2] != 100 {
		t.Errorf("Expected clamped contrast around mid grey, got %v", out)
	}

	out = trimContrast([]float64{30, 70}, 0.5)
	if out[0] != 40 || out[1] != 60 {
		t.Errorf("Expected values pulled toward 50, got %v", out)
	}
}

func TestEqualizeLightness(t *testing.T) {
	flat := make([]float64, 16*16)
	for i := range flat {
		flat[i] = 42
	}
	out := equalizeLightness(flat, 16, 16, 2.0, 4)
	for _, v := range out {
		if v != out[0] {
			t.Fatal("Expected a flat plane to stay flat")
		}
	}

	ramp := make([]float64, 32*32)
	for i := range ramp {
		ramp[i] = float64(i%32) * 100 / 31
	}
	out = equalizeLightness(ramp, 32, 32, 2.0, 8)
	for _, v := range out {
		if v < 0 || v > 100 || math.IsNaN(v) {
			t.Fatalf("Expected equalised L* in [0,100], got %f", v)
		}
	}
}

func TestGridNeighbours(t *testing.T) {
	i0, i1, w := gridNeighbours(0, 64, 8)
	if i0 != 0 || i1 != 0 || w != 0 {
		t.Errorf("Expected left edge clamped to first tile, got %d %d %f", i0, i1, w)
	}
	i0, i1, _ = gridNeighbours(63, 64, 8)
	if i0 != 7 || i1 != 7 {
		t.Errorf("Expected right edge clamped to last tile, got %d %d", i0, i1)
	}
	i0, i1, w = gridNeighbours(8, 64, 8)
	if i0 != 0 || i1 != 1 || w <= 0 || w >= 1 {
		t.Errorf("Expected interior pixel between tiles 0 and 1, got %d %d %f", i0, i1, w)
	}
}
