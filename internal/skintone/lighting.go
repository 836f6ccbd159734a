package skintone

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BrightnessClass buckets a frame by its mean L*
type BrightnessClass string

const (
	BrightnessDark       BrightnessClass = "dark"
	BrightnessNormal     BrightnessClass = "normal"
	BrightnessBright     BrightnessClass = "bright"
	BrightnessVeryBright BrightnessClass = "very_bright"
)

// Correction step names reported in LightingReport
const (
	stepEqualize = "clahe"
	stepShadows  = "shadow_highlight"
	stepGamma    = "gamma"
	stepContrast = "contrast"
)

// LightingReport describes what the corrector decided and did
type LightingReport struct {
	Class    BrightnessClass
	MeanL    float64
	StdL     float64
	Strength float64
	Applied  []string
	Skipped  []string
}

// LightingCorrector normalises exposure and contrast on the L* channel so
// colour comparison is stable across capture conditions
type LightingCorrector struct {
	opts LightingOptions
}

// NewLightingCorrector creates a corrector with the given tuning
func NewLightingCorrector(opts LightingOptions) *LightingCorrector {
	return &LightingCorrector{opts: opts}
}

// Classify maps a mean L* onto a brightness class
func (lc *LightingCorrector) Classify(meanL float64) BrightnessClass {
	switch {
	case meanL < lc.opts.DarkBelow:
		return BrightnessDark
	case meanL >= lc.opts.VeryBrightFrom:
		return BrightnessVeryBright
	case meanL >= lc.opts.BrightFrom:
		return BrightnessBright
	default:
		return BrightnessNormal
	}
}

// strength scales every step by the tonal spread of the frame
func (lc *LightingCorrector) strength(stdL float64) float64 {
	return clamp((stdL-lc.opts.FlatStd)/(lc.opts.FullStd-lc.opts.FlatStd), 0, 1)
}

// Correct returns a corrected copy of src. It never fails: a step that
// panics is skipped and reported, and a flat frame is returned unchanged.
func (lc *LightingCorrector) Correct(src *Raster) (*Raster, LightingReport) {
	n := src.PixelCount()
	l := make([]float64, n)
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		p := src.Pix[i*3 : i*3+3]
		l[i], a[i], b[i] = RGB{float64(p[0]), float64(p[1]), float64(p[2])}.Lab()
	}

	report := LightingReport{}
	report.MeanL, report.StdL = stat.MeanStdDev(l, nil)
	if n < 2 {
		report.StdL = 0
	}
	report.Class = lc.Classify(report.MeanL)
	report.Strength = lc.strength(report.StdL)
	if report.Strength == 0 {
		return src, report
	}

	tuning := lc.opts.Tuning(report.Class)
	st := report.Strength
	steps := []struct {
		name string
		fn   func([]float64) []float64
	}{
		{stepEqualize, func(in []float64) []float64 {
			eq := equalizeLightness(in, src.Width, src.Height, tuning.ClipLimit, tuning.Tiles)
			for i := range eq {
				eq[i] = in[i] + st*(eq[i]-in[i])
			}
			return eq
		}},
		{stepShadows, func(in []float64) []float64 {
			return remapShadowsHighlights(in, st*tuning.ShadowLift, st*tuning.HighlightCompress)
		}},
		{stepGamma, func(in []float64) []float64 {
			return applyGamma(in, 1+st*(tuning.Gamma-1))
		}},
		{stepContrast, func(in []float64) []float64 {
			return trimContrast(in, 1+st*(tuning.Contrast-1))
		}},
	}

	for _, step := range steps {
		out, err := runStep(step.fn, l)
		if err != nil {
			report.Skipped = append(report.Skipped, step.name)
			continue
		}
		l = out
		report.Applied = append(report.Applied, step.name)
	}

	dst := src.Clone()
	for i := 0; i < n; i++ {
		dst.Pix[i*3], dst.Pix[i*3+1], dst.Pix[i*3+2] = labToRGB(l[i], a[i], b[i])
	}
	return dst, report
}

// runStep isolates a correction step; a panic or a malformed output leaves
// the plane untouched
func runStep(fn func([]float64) []float64, in []float64) (out []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("lighting step panicked: %v", r)
		}
	}()
	out = fn(append([]float64(nil), in...))
	if len(out) != len(in) {
		return nil, fmt.Errorf("lighting step returned %d values, want %d", len(out), len(in))
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("lighting step produced non-finite lightness")
		}
	}
	return out, nil
}

// remapShadowsHighlights pulls values below the first quartile up toward it
// and values above the third quartile down toward it
func remapShadowsHighlights(l []float64, lift, compress float64) []float64 {
	sorted := append([]float64(nil), l...)
	sort.Float64s(sorted)
	p25 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	p75 := stat.Quantile(0.75, stat.Empirical, sorted, nil)

	for i, v := range l {
		switch {
		case v < p25:
			l[i] = v + lift*(p25-v)
		case v > p75:
			l[i] = v - compress*(v-p75)
		}
	}
	return l
}

// applyGamma maps L* through a power curve; exponents below 1 brighten
func applyGamma(l []float64, gamma float64) []float64 {
	for i, v := range l {
		l[i] = 100 * math.Pow(math.Max(0, v)/100, gamma)
	}
	return l
}

// trimContrast scales L* around mid-grey
func trimContrast(l []float64, factor float64) []float64 {
	for i, v := range l {
		l[i] = clamp(50+factor*(v-50), 0, 100)
	}
	return l
}
