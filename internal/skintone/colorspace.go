package skintone

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"
)

// RGB is a colour with channels on the 0..255 scale
type RGB [3]float64

// RGBFromInts converts an integer triple
func RGBFromInts(c [3]int) RGB {
	return RGB{float64(c[0]), float64(c[1]), float64(c[2])}
}

func (c RGB) color() colorful.Color {
	return colorful.Color{R: c[0] / 255, G: c[1] / 255, B: c[2] / 255}
}

// Lab returns CIE L*a*b* (D65) with L* on 0..100
func (c RGB) Lab() (l, a, b float64) {
	l, a, b = c.color().Lab()
	return l * 100, a * 100, b * 100
}

// HSV returns hue in degrees and saturation/value on 0..1
func (c RGB) HSV() (h, s, v float64) {
	return c.color().Hsv()
}

// Luma is the Rec. 601 weighted brightness on 0..255
func (c RGB) Luma() float64 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

// Rounded returns the nearest integer triple, clamped to 0..255
func (c RGB) Rounded() [3]int {
	var out [3]int
	for i, v := range c {
		out[i] = clampInt(int(math.Floor(v+0.5)), 0, 255)
	}
	return out
}

// Hex formats the rounded colour as #rrggbb
func (c RGB) Hex() string {
	return RGBFromInts(c.Rounded()).color().Hex()
}

// LCh returns chroma and hue angle (degrees, 0..360) of the Lab colour
func (c RGB) LCh() (l, chroma, hue float64) {
	l, a, b := c.Lab()
	chroma = math.Hypot(a, b)
	hue = math.Mod(math.Atan2(b, a)*180/math.Pi+360, 360)
	return l, chroma, hue
}

// DeltaE2000 returns the CIEDE2000 difference in standard units (0..~100)
func DeltaE2000(a, b RGB) float64 {
	return a.color().DistanceCIEDE2000(b.color()) * 100
}

// labToRGB converts L* (0..100), a*, b* back to clamped 8-bit RGB
func labToRGB(l, a, b float64) (uint8, uint8, uint8) {
	return colorful.Lab(l/100, a/100, b/100).Clamped().RGB255()
}

// ycbcr uses the full-range BT.601 transform in floating point
func ycbcr(c RGB) (y, cb, cr float64) {
	y = 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
	cb = 128 - 0.168736*c[0] - 0.331264*c[1] + 0.5*c[2]
	cr = 128 + 0.5*c[0] - 0.418688*c[1] - 0.081312*c[2]
	return y, cb, cr
}

func meanRGB(px []RGB) RGB {
	return weightedRGB(px, nil)
}

// weightedRGB is the per-channel weighted mean of px; nil weights weigh
// every pixel equally
func weightedRGB(px []RGB, weights []float64) RGB {
	var out RGB
	if len(px) == 0 {
		return out
	}
	channel := make([]float64, len(px))
	for k := range out {
		for i, p := range px {
			channel[i] = p[k]
		}
		out[k] = stat.Mean(channel, weights)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp100(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, 0, 100)
}
