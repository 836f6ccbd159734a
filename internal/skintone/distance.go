package skintone

import "math"

// ColorPoint caches the representations the distance metrics need
type ColorPoint struct {
	RGB  RGB
	L    float64
	Hue  float64
	Sat  float64
	Luma float64
}

// NewColorPoint derives all representations of c once
func NewColorPoint(c RGB) ColorPoint {
	l, _, _ := c.Lab()
	h, s, _ := c.HSV()
	return ColorPoint{RGB: c, L: l, Hue: h, Sat: s, Luma: c.Luma()}
}

// DistanceMetric compares two colours on a 0..1 scale
type DistanceMetric interface {
	Name() string
	Distance(a, b ColorPoint) float64
}

// EuclideanRGB is the straight-line RGB distance normalised by the cube diagonal
type EuclideanRGB struct{}

func (EuclideanRGB) Name() string { return "euclidean" }

func (EuclideanRGB) Distance(a, b ColorPoint) float64 {
	dr, dg, db := a.RGB[0]-b.RGB[0], a.RGB[1]-b.RGB[1], a.RGB[2]-b.RGB[2]
	return math.Sqrt(dr*dr+dg*dg+db*db) / (255 * math.Sqrt(3))
}

// PerceptualRGB weights channels by their contribution to perceived luminance
type PerceptualRGB struct{}

func (PerceptualRGB) Name() string { return "perceptual" }

func (PerceptualRGB) Distance(a, b ColorPoint) float64 {
	dr, dg, db := a.RGB[0]-b.RGB[0], a.RGB[1]-b.RGB[1], a.RGB[2]-b.RGB[2]
	return math.Sqrt(0.30*dr*dr+0.59*dg*dg+0.11*db*db) / 255
}

// HueAware blends circular HSV hue distance with saturation difference
type HueAware struct{}

func (HueAware) Name() string { return "hue" }

func (HueAware) Distance(a, b ColorPoint) float64 {
	dh := math.Abs(a.Hue - b.Hue)
	dh = math.Min(dh, 360-dh) / 180
	return 0.7*dh + 0.3*math.Abs(a.Sat-b.Sat)
}

// BrightnessDistance is the L* difference
type BrightnessDistance struct{}

func (BrightnessDistance) Name() string { return "brightness" }

func (BrightnessDistance) Distance(a, b ColorPoint) float64 {
	return math.Abs(a.L-b.L) / 100
}

// Blend policy names
const (
	PolicyNormal  = "normal"
	PolicyExtreme = "extreme"
)

// BlendPolicy chooses metric weights from the brightness of the colour
// being classified
type BlendPolicy struct {
	VeryLightLuma float64
	VeryDarkLuma  float64
	Normal        BlendWeights
	Extreme       BlendWeights
}

// Select returns the policy name and weights for c
func (p BlendPolicy) Select(c ColorPoint) (string, BlendWeights) {
	if c.Luma >= p.VeryLightLuma || c.Luma <= p.VeryDarkLuma {
		return PolicyExtreme, p.Extreme
	}
	return PolicyNormal, p.Normal
}

// weightedMetric pairs a metric with its blend weight
type weightedMetric struct {
	metric DistanceMetric
	weight float64
}

func (w BlendWeights) metrics() []weightedMetric {
	return []weightedMetric{
		{EuclideanRGB{}, w.Euclidean},
		{PerceptualRGB{}, w.Perceptual},
		{HueAware{}, w.Hue},
		{BrightnessDistance{}, w.Brightness},
	}
}
