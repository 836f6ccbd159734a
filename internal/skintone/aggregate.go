package skintone

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ToneClass is the brightness bucket of a sample population
type ToneClass string

const (
	ToneVeryLight ToneClass = "very_light"
	ToneNormal    ToneClass = "normal"
	ToneVeryDark  ToneClass = "very_dark"
)

// Aggregation methods reported in diagnostics
const (
	MethodWeighted   = "weighted"
	MethodReaveraged = "reaveraged"
	MethodCenterMean = "center_mean"
)

// Aggregate is the representative colour of a frame
type Aggregate struct {
	RGB    RGB
	Class  ToneClass
	Method string
	// Brightness is the weighted sample-population luma on 0..1
	Brightness float64
}

// ColorAggregator reduces region samples to one colour while resisting the
// pull of extreme tones toward the middle of the palette
type ColorAggregator struct {
	opts AggregationOptions
}

// NewColorAggregator creates an aggregator
func NewColorAggregator(opts AggregationOptions) *ColorAggregator {
	return &ColorAggregator{opts: opts}
}

// ClassOf buckets a luma value (0..255)
func (ca *ColorAggregator) ClassOf(luma float64) ToneClass {
	switch {
	case luma >= ca.opts.VeryLightLuma:
		return ToneVeryLight
	case luma <= ca.opts.VeryDarkLuma:
		return ToneVeryDark
	default:
		return ToneNormal
	}
}

func (ca *ColorAggregator) power(class ToneClass) float64 {
	switch class {
	case ToneVeryLight:
		return ca.opts.VeryLightPower
	case ToneVeryDark:
		return ca.opts.VeryDarkPower
	default:
		return ca.opts.NormalPower
	}
}

// Aggregate combines samples. Each sample's weight is raised by its
// normalised brightness to a class-dependent power. When the weighted result
// falls on the wrong side of the population brightness by more than
// MaxDeviation, only samples consistent with the class are re-averaged.
// Without samples the unweighted mean of the centre third of r is used.
func (ca *ColorAggregator) Aggregate(r *Raster, samples []RegionSample) Aggregate {
	if len(samples) == 0 {
		c := meanRGB(r.Pixels(centerRect(r)))
		return Aggregate{RGB: c, Class: ca.ClassOf(c.Luma()), Method: MethodCenterMean, Brightness: c.Luma() / 255}
	}

	population := 0.0
	total := 0.0
	for _, s := range samples {
		population += s.Weight * s.RGB.Luma()
		total += s.Weight
	}
	if total <= 0 {
		return Aggregate{RGB: meanRGB(sampleColors(samples)), Class: ToneNormal, Method: MethodWeighted}
	}
	population /= total * 255

	class := ca.ClassOf(population * 255)
	power := ca.power(class)
	weights := make([]float64, len(samples))
	for i, s := range samples {
		weights[i] = s.Weight * math.Pow(math.Max(s.RGB.Luma()/255, 1e-6), power)
	}
	agg := Aggregate{RGB: weightedMean(samples, weights), Class: class, Method: MethodWeighted, Brightness: population}

	brightness := agg.RGB.Luma() / 255
	var consistent func(b float64) bool
	switch {
	case class == ToneVeryLight && brightness < population-ca.opts.MaxDeviation:
		consistent = func(b float64) bool { return b >= population-ca.opts.MaxDeviation }
	case class == ToneVeryDark && brightness > population+ca.opts.MaxDeviation:
		consistent = func(b float64) bool { return b <= population+ca.opts.MaxDeviation }
	default:
		return agg
	}

	var subset []RegionSample
	var subWeights []float64
	for _, s := range samples {
		if consistent(s.RGB.Luma() / 255) {
			subset = append(subset, s)
			subWeights = append(subWeights, s.Weight)
		}
	}
	if len(subset) > 0 {
		agg.RGB = weightedMean(subset, subWeights)
		agg.Method = MethodReaveraged
	}
	return agg
}

// weightedMean falls back to the plain mean when every weight is zero
func weightedMean(samples []RegionSample, weights []float64) RGB {
	if floats.Sum(weights) <= 0 {
		weights = nil
	}
	return weightedRGB(sampleColors(samples), weights)
}

func sampleColors(samples []RegionSample) []RGB {
	px := make([]RGB, len(samples))
	for i, s := range samples {
		px[i] = s.RGB
	}
	return px
}
