package skintone

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ScoreInput gathers the artefacts of the earlier stages
type ScoreInput struct {
	Extraction Extraction
	Capture    CaptureMetrics
	Derived    RGB
	Match      Match
}

// ConfidenceBreakdown holds the sub-scores (0..100) and the final value (0..1)
type ConfidenceBreakdown struct {
	Coherence   float64
	Extraction  float64
	Lighting    float64
	Sharpness   float64
	Bonus       float64
	MatchFactor float64
	NoiseFactor float64
	Raw         float64
	Confidence  float64
	// Degraded lists sub-scores replaced by the neutral value
	Degraded []string
}

// ConfidenceScorer turns signal quality into a bounded confidence
type ConfidenceScorer struct {
	opts ConfidenceOptions
	log  *logrus.Entry
}

// NewConfidenceScorer creates a scorer
func NewConfidenceScorer(opts ConfidenceOptions, log *logrus.Entry) *ConfidenceScorer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ConfidenceScorer{opts: opts, log: log}
}

// Score blends coherence, extraction quality and lighting quality, scales the
// blend by how close the derived colour sits to the matched tone and adds
// the skin-envelope bonus. The sum is then scaled by the noise factor, so a
// noisier frame never scores above a cleaner one that matches as well. A
// sub-score that panics or is not finite is replaced by NeutralScore.
func (cs *ConfidenceScorer) Score(in ScoreInput) ConfidenceBreakdown {
	var out ConfidenceBreakdown
	sub := func(name string, fn func() float64) float64 {
		v, err := cs.safe(fn)
		if err != nil {
			cs.log.WithFields(logrus.Fields{"score": name, "error": err.Error()}).Debug("Sub-score degraded to neutral")
			out.Degraded = append(out.Degraded, name)
			return cs.opts.NeutralScore
		}
		return clamp100(v)
	}

	out.Coherence = sub("coherence", func() float64 { return cs.Coherence(in.Extraction) })
	out.Sharpness = sub("sharpness", func() float64 { return cs.Sharpness(in.Capture) })
	out.Extraction = sub("extraction", func() float64 {
		return 0.5*100*in.Extraction.Coverage + 0.3*out.Sharpness + 0.2*cs.Resolution(in.Capture)
	})
	out.Lighting = sub("lighting", func() float64 { return cs.Lighting(in.Capture) })

	o := cs.opts
	weights := o.CoherenceWeight + o.ExtractionWeight + o.LightingWeight
	out.Raw = (o.CoherenceWeight*out.Coherence + o.ExtractionWeight*out.Extraction + o.LightingWeight*out.Lighting) / weights

	d := in.Match.DeltaE / o.MatchHalfDistance
	out.MatchFactor = 1 / (1 + d*d)
	if o.Envelope.Contains(in.Derived) {
		out.Bonus = o.EnvelopeBonus
	}

	out.NoiseFactor = cs.NoiseFactor(in.Capture)

	out.Confidence = clamp100((out.Raw*out.MatchFactor*o.BlendScale+out.Bonus)*out.NoiseFactor) / 100
	out.Confidence = math.Round(out.Confidence*10000) / 10000
	return out
}

func (cs *ConfidenceScorer) safe(fn func() float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	v = fn()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite score %v", v)
	}
	return v, nil
}

// Coherence combines inter-region agreement with a dominant-cluster check
// over the subsampled pixels
func (cs *ConfidenceScorer) Coherence(ex Extraction) float64 {
	if len(ex.Samples) == 0 {
		return 0
	}
	o := cs.opts

	agreement := o.SingleRegionAgreement
	if len(ex.Samples) > 1 {
		sum, pairs := 0.0, 0
		for i := 0; i < len(ex.Samples); i++ {
			for j := i + 1; j < len(ex.Samples); j++ {
				sum += DeltaE2000(ex.Samples[i].RGB, ex.Samples[j].RGB)
				pairs++
			}
		}
		agreement = clamp100(100 * (1 - (sum/float64(pairs))/o.AgreementSpan))
	}

	cluster := o.NeutralScore
	if len(ex.Subsample) > 0 {
		separation, dominant := twoMeans(ex.Subsample, o.ClusterIterations)
		effective := dominant
		switch {
		case separation <= o.ClusterMergeDistance:
			effective = 1
		case separation < o.ClusterSplitDistance:
			t := (separation - o.ClusterMergeDistance) / (o.ClusterSplitDistance - o.ClusterMergeDistance)
			effective = (1 - t) + t*dominant
		}
		cluster = clamp100(100 * (effective - 0.5) / 0.5)
	}

	return 0.6*agreement + 0.4*cluster
}

// twoMeans splits pixels into two clusters in L*a*b*, seeded with the darkest
// and lightest points, and returns the centroid separation and the share of
// the larger cluster
func twoMeans(px []RGB, iterations int) (separation, dominant float64) {
	pts := make([][3]float64, len(px))
	lo, hi := 0, 0
	for i, p := range px {
		l, a, b := p.Lab()
		pts[i] = [3]float64{l, a, b}
		if l < pts[lo][0] {
			lo = i
		}
		if l > pts[hi][0] {
			hi = i
		}
	}

	c0, c1 := pts[lo], pts[hi]
	n0, n1 := 0, 0
	for it := 0; it < max(1, iterations); it++ {
		var s0, s1 [3]float64
		n0, n1 = 0, 0
		for _, q := range pts {
			if sqDist(q, c0) <= sqDist(q, c1) {
				s0 = addVec(s0, q)
				n0++
			} else {
				s1 = addVec(s1, q)
				n1++
			}
		}
		if n0 > 0 {
			c0 = scaleVec(s0, 1/float64(n0))
		}
		if n1 > 0 {
			c1 = scaleVec(s1, 1/float64(n1))
		}
	}
	return math.Sqrt(sqDist(c0, c1)), float64(max(n0, n1)) / float64(len(pts))
}

func sqDist(a, b [3]float64) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}

func addVec(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func scaleVec(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

// Sharpness is high for crisp frames and drops for blur or heavy noise.
// Blur is the Laplacian variance normalised by the grey-level variance, so
// a flat frame is not penalised; noise caps the raw Laplacian variance.
func (cs *ConfidenceScorer) Sharpness(m CaptureMetrics) float64 {
	blur := 100.0
	if m.GrayVariance >= cs.opts.FlatGrayVariance {
		blur = clamp100(100 * (m.LaplacianVar / m.GrayVariance) / 2)
	}
	noise := 100.0
	if m.LaplacianVar > cs.opts.NoiseCeiling {
		noise = clamp100(100 * cs.opts.NoiseCeiling / m.LaplacianVar)
	}
	return math.Min(blur, noise)
}

// NoiseFactor is 1 for a frame without high-frequency energy and falls
// strictly as the Laplacian variance grows, halving at NoiseHalfVariance
func (cs *ConfidenceScorer) NoiseFactor(m CaptureMetrics) float64 {
	v := m.LaplacianVar
	if math.IsNaN(v) || v <= 0 {
		return 1
	}
	return 1 / (1 + v/cs.opts.NoiseHalfVariance)
}

// Resolution is 100 once the short side reaches MinGoodResolution
func (cs *ConfidenceScorer) Resolution(m CaptureMetrics) float64 {
	side := min(m.Width, m.Height)
	if side >= cs.opts.MinGoodResolution {
		return 100
	}
	return 100 * float64(side) / float64(cs.opts.MinGoodResolution)
}

// Lighting scores brightness, contrast, exposure and colour cast of the frame
func (cs *ConfidenceScorer) Lighting(m CaptureMetrics) float64 {
	o := cs.opts

	brightness := 100.0
	switch {
	case m.Brightness < o.IdealBrightnessMin:
		brightness = clamp100(100 * (1 - (o.IdealBrightnessMin-m.Brightness)/o.BrightnessFalloff))
	case m.Brightness > o.IdealBrightnessMax:
		brightness = clamp100(100 * (1 - (m.Brightness-o.IdealBrightnessMax)/o.BrightnessFalloff))
	}

	contrast := 100.0
	if m.Contrast > o.HarshContrast {
		contrast = clamp100(100 * (1 - (m.Contrast-o.HarshContrast)/o.HarshContrast))
	}

	exposure := clamp100(100 * (1 - 2*(m.Overexposed+m.Underexposed)))

	cast := 100.0
	if m.MeanA < -4 {
		cast -= 5 * (-4 - m.MeanA)
	}
	if m.MeanB < -6 {
		cast -= 5 * (-6 - m.MeanB)
	}
	if chroma := math.Hypot(m.MeanA, m.MeanB); chroma > 45 {
		cast -= 3 * (chroma - 45)
	}
	cast = clamp100(cast)

	return 0.4*brightness + 0.2*contrast + 0.25*exposure + 0.15*cast
}

// IsDegenerate reports colours no real skin sample can produce
func (cs *ConfidenceScorer) IsDegenerate(c RGB) bool {
	o := cs.opts
	l, chroma, hue := c.LCh()
	if l < o.DegenerateMinL || l > o.DegenerateMaxL || chroma > o.DegenerateMaxChroma {
		return true
	}
	return chroma > o.DegenerateHueChroma && hue > o.DegenerateMaxHue
}
