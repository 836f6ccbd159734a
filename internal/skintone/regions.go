package skintone

import (
	"image"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Strategy names, in the order the extractor tries them
const (
	StrategyChromaMask     = "chroma_mask"
	StrategyFaceRectangles = "face_rectangles"
	StrategyCenterFallback = "center_fallback"
	StrategyNone           = "none"
)

// RegionSample is the mean colour of the qualifying pixels in one region
type RegionSample struct {
	Name string
	RGB  RGB
	// Weight is the share of the region's pixels that qualified
	Weight float64
	Pixels int

	kept []RGB
}

// RegionStrategy isolates skin-bearing regions of a frame. An empty result
// means the strategy could not find enough skin and the next one is tried.
type RegionStrategy interface {
	Name() string
	Extract(r *Raster) []RegionSample
	// Coverage is the fraction of the expected skin area the samples represent
	Coverage(samples []RegionSample) float64
}

// Extraction is the outcome of the extractor for one frame
type Extraction struct {
	Strategy string
	Samples  []RegionSample
	// Subsample holds a bounded, evenly strided selection of the surviving
	// pixels of every region
	Subsample []RGB
	Coverage  float64
}

type faceRect struct {
	name           string
	x0, y0, x1, y1 float64
}

// Relative rectangles of a head-and-shoulders frame
var faceRects = []faceRect{
	{"forehead", 0.35, 0.15, 0.65, 0.28},
	{"left_cheek", 0.22, 0.42, 0.40, 0.58},
	{"right_cheek", 0.60, 0.42, 0.78, 0.58},
	{"nose_bridge", 0.45, 0.35, 0.55, 0.50},
	{"chin", 0.40, 0.72, 0.60, 0.85},
}

func centerRect(r *Raster) image.Rectangle {
	return r.RelativeRect(1.0/3, 1.0/3, 2.0/3, 2.0/3)
}

// SkinRegionExtractor tries a ranked list of strategies and keeps the first
// non-empty result
type SkinRegionExtractor struct {
	strategies []RegionStrategy
	subsample  int
	log        *logrus.Entry
}

// NewSkinRegionExtractor builds the default ranking: chroma mask, fixed
// facial rectangles, then the relaxed centre third
func NewSkinRegionExtractor(opts RegionOptions, log *logrus.Entry) *SkinRegionExtractor {
	return NewSkinRegionExtractorWith(opts.SubsamplePerRegion, log,
		&rectangleStrategy{opts: opts, mask: true},
		&rectangleStrategy{opts: opts},
		&centerStrategy{opts: opts},
	)
}

// NewSkinRegionExtractorWith uses a caller-supplied ranking
func NewSkinRegionExtractorWith(subsample int, log *logrus.Entry, strategies ...RegionStrategy) *SkinRegionExtractor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SkinRegionExtractor{strategies: strategies, subsample: max(1, subsample), log: log}
}

// Extract returns the first non-empty strategy result. A strategy that
// panics counts as empty. When every strategy comes back empty the
// extraction has no samples and StrategyNone.
func (e *SkinRegionExtractor) Extract(r *Raster) Extraction {
	for _, s := range e.strategies {
		samples := e.safeExtract(s, r)
		if len(samples) == 0 {
			continue
		}
		return Extraction{
			Strategy:  s.Name(),
			Samples:   samples,
			Subsample: e.collectSubsample(samples),
			Coverage:  clamp(s.Coverage(samples), 0, 1),
		}
	}
	return Extraction{Strategy: StrategyNone}
}

func (e *SkinRegionExtractor) safeExtract(s RegionStrategy, r *Raster) (samples []RegionSample) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.WithFields(logrus.Fields{"strategy": s.Name(), "panic": rec}).Warn("Region strategy failed")
			samples = nil
		}
	}()
	return s.Extract(r)
}

func (e *SkinRegionExtractor) collectSubsample(samples []RegionSample) []RGB {
	var out []RGB
	for _, s := range samples {
		stride := max(1, len(s.kept)/e.subsample)
		for i := 0; i < len(s.kept); i += stride {
			out = append(out, s.kept[i])
		}
	}
	return out
}

// rectangleStrategy samples the fixed facial rectangles. With mask set, only
// pixels inside the YCbCr skin range are considered and the strategy fails
// when the mask keeps too little of the rectangles overall.
type rectangleStrategy struct {
	opts RegionOptions
	mask bool
}

func (s *rectangleStrategy) Name() string {
	if s.mask {
		return StrategyChromaMask
	}
	return StrategyFaceRectangles
}

func (s *rectangleStrategy) Extract(r *Raster) []RegionSample {
	var out []RegionSample
	total, masked := 0, 0
	for _, fr := range faceRects {
		px := r.Pixels(r.RelativeRect(fr.x0, fr.y0, fr.x1, fr.y1))
		area := len(px)
		total += area
		if s.mask {
			px = s.skinMask(px)
			masked += len(px)
		}

		keep := bandFilter(px, s.opts, s.opts.NearBlack, s.opts.NearWhite, true)
		need := max(float64(s.opts.MinRegionPixel), s.opts.MinRegionShare*float64(area))
		if area == 0 || float64(len(keep)) < need {
			continue
		}
		out = append(out, RegionSample{
			Name:   fr.name,
			RGB:    meanRGB(keep),
			Weight: float64(len(keep)) / float64(area),
			Pixels: len(keep),
			kept:   keep,
		})
	}
	if s.mask && float64(masked) < s.opts.MaskMinShare*float64(total) {
		return nil
	}
	return out
}

func (s *rectangleStrategy) Coverage(samples []RegionSample) float64 {
	return float64(len(samples)) / float64(len(faceRects))
}

func (s *rectangleStrategy) skinMask(px []RGB) []RGB {
	out := px[:0:0]
	for _, p := range px {
		_, cb, cr := ycbcr(p)
		if cb >= s.opts.MaskCbMin && cb <= s.opts.MaskCbMax && cr >= s.opts.MaskCrMin && cr <= s.opts.MaskCrMax {
			out = append(out, p)
		}
	}
	return out
}

// centerStrategy averages the centre third with a fixed, relaxed band
type centerStrategy struct {
	opts RegionOptions
}

func (s *centerStrategy) Name() string { return StrategyCenterFallback }

func (s *centerStrategy) Extract(r *Raster) []RegionSample {
	px := r.Pixels(centerRect(r))
	keep := bandFilter(px, s.opts, s.opts.RelaxedBlack, s.opts.RelaxedWhite, false)
	if len(keep) == 0 {
		return nil
	}
	return []RegionSample{{
		Name:   "center",
		RGB:    meanRGB(keep),
		Weight: float64(len(keep)) / float64(len(px)),
		Pixels: len(keep),
		kept:   keep,
	}}
}

func (s *centerStrategy) Coverage([]RegionSample) float64 {
	return s.opts.CenterCoverage
}

// bandFilter drops pixels outside [black, white] (luma/255). The adaptive
// variant also narrows the band around the median brightness and drops
// oversaturated pixels.
func bandFilter(px []RGB, opts RegionOptions, black, white float64, adaptive bool) []RGB {
	if len(px) == 0 {
		return nil
	}
	lo, hi := black, white
	if adaptive {
		br := make([]float64, len(px))
		for i, p := range px {
			br[i] = p.Luma() / 255
		}
		sort.Float64s(br)
		median := stat.Quantile(0.5, stat.Empirical, br, nil)
		lo = max(black, median*opts.BandLow)
		hi = min(white, median*opts.BandHigh)
	}

	var out []RGB
	for _, p := range px {
		b := p.Luma() / 255
		if b < lo || b > hi {
			continue
		}
		if adaptive {
			if _, sat, _ := p.HSV(); sat > opts.MaxSaturation {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
