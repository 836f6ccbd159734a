package skintone

import (
	"image"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// CaptureMetrics describe the capture quality of a decoded frame
type CaptureMetrics struct {
	Width  int
	Height int
	// Brightness and Contrast are the mean and std of 8-bit luma
	Brightness   float64
	Contrast     float64
	LaplacianVar float64
	GrayVariance float64
	// Fractions of pixels at or beyond the exposure limits
	Overexposed  float64
	Underexposed float64
	// L*a*b* of the mean frame colour
	MeanL float64
	MeanA float64
	MeanB float64
}

// MetricsCalculator measures capture quality. Accumulation is sequential so
// repeated runs over the same frame produce identical values.
type MetricsCalculator struct {
	slicePool       sync.Pool
	overexposedLum  float64
	underexposedLum float64
}

// NewMetricsCalculator creates a calculator using the exposure limits of opts
func NewMetricsCalculator(opts ConfidenceOptions) *MetricsCalculator {
	return &MetricsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 4096)
			},
		},
		overexposedLum:  opts.OverexposedLuma,
		underexposedLum: opts.UnderexposedLuma,
	}
}

func (mc *MetricsCalculator) buffer(n int) []float64 {
	data := mc.slicePool.Get().([]float64)
	if cap(data) < n {
		data = make([]float64, 0, n)
	}
	return data[:0]
}

// Capture computes every metric of r
func (mc *MetricsCalculator) Capture(r *Raster) CaptureMetrics {
	m := CaptureMetrics{Width: r.Width, Height: r.Height}
	if r.PixelCount() == 0 {
		return m
	}

	gray := r.Gray()
	values := mc.buffer(len(gray.Pix))
	defer func() { mc.slicePool.Put(values[:0]) }()

	over, under := 0, 0
	for _, v := range gray.Pix {
		f := float64(v)
		values = append(values, f)
		if f >= mc.overexposedLum {
			over++
		}
		if f <= mc.underexposedLum {
			under++
		}
	}
	m.Brightness, m.Contrast = stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		m.Contrast = 0
	}
	m.GrayVariance = m.Contrast * m.Contrast
	m.Overexposed = float64(over) / float64(len(values))
	m.Underexposed = float64(under) / float64(len(values))
	m.LaplacianVar = mc.LaplacianVariance(gray)

	m.MeanL, m.MeanA, m.MeanB = meanRGB(r.Pixels(image.Rect(0, 0, r.Width, r.Height))).Lab()
	return m
}

// LaplacianVariance is the variance of the 4-neighbour Laplacian response
func (mc *MetricsCalculator) LaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := mc.buffer((width - 2) * (height - 2))
	defer func() { mc.slicePool.Put(data[:0]) }()

	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}

	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}
