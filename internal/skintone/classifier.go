package skintone

import (
	"go-skintone-inspector/internal/palette"
	"go-skintone-inspector/pkg/models"
)

// Match is the classifier's decision for one colour
type Match struct {
	Tone  models.ReferenceTone
	Index int
	// Score is the blended metric distance (0..1) to Tone
	Score float64
	// DeltaE is the CIEDE2000 difference between the colour and Tone
	DeltaE  float64
	Policy  string
	Guarded bool
}

// ToneClassifier snaps a colour onto the reference palette
type ToneClassifier struct {
	palette *palette.Palette
	points  []ColorPoint
	policy  BlendPolicy
	k       int
}

// NewToneClassifier precomputes the palette's colour representations
func NewToneClassifier(p *palette.Palette, opts ClassifierOptions) *ToneClassifier {
	points := make([]ColorPoint, p.Len())
	for i := range points {
		points[i] = NewColorPoint(RGBFromInts(p.At(i).RGB))
	}
	return &ToneClassifier{
		palette: p,
		points:  points,
		policy: BlendPolicy{
			VeryLightLuma: opts.VeryLightLuma,
			VeryDarkLuma:  opts.VeryDarkLuma,
			Normal:        opts.Normal,
			Extreme:       opts.Extreme,
		},
		k: min(max(opts.ExtremeK, 1), p.Len()),
	}
}

// Classify returns the nearest tone under the brightness-selected blend.
// A very light colour that lands outside the lightest k tones, or a very
// dark one outside the darkest k, is re-searched within that range only.
// Exact ties resolve to the lower ordinal.
func (tc *ToneClassifier) Classify(c RGB) Match {
	point := NewColorPoint(c)
	policy, weights := tc.policy.Select(point)
	metrics := weights.metrics()
	n := len(tc.points)

	idx, score := tc.search(point, metrics, 0, n)
	guarded := false
	switch {
	case point.Luma >= tc.policy.VeryLightLuma && idx >= tc.k:
		idx, score = tc.search(point, metrics, 0, tc.k)
		guarded = true
	case point.Luma <= tc.policy.VeryDarkLuma && idx < n-tc.k:
		idx, score = tc.search(point, metrics, n-tc.k, n)
		guarded = true
	}

	tone := tc.palette.At(idx)
	return Match{
		Tone:    tone,
		Index:   idx,
		Score:   score,
		DeltaE:  DeltaE2000(c, tc.points[idx].RGB),
		Policy:  policy,
		Guarded: guarded,
	}
}

func (tc *ToneClassifier) search(c ColorPoint, metrics []weightedMetric, from, to int) (int, float64) {
	best, bestScore := -1, 0.0
	for i := from; i < to; i++ {
		score := blendedDistance(c, tc.points[i], metrics)
		if best < 0 || score < bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

func blendedDistance(a, b ColorPoint, metrics []weightedMetric) float64 {
	total, weight := 0.0, 0.0
	for _, m := range metrics {
		if m.weight == 0 {
			continue
		}
		total += m.weight * m.metric.Distance(a, b)
		weight += m.weight
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}
