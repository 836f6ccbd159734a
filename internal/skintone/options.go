package skintone

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options holds every tunable of the pipeline. DefaultOptions returns the
// calibrated values; a YAML file may overlay any subset of them.
type Options struct {
	Decoder     DecoderOptions     `yaml:"decoder"`
	Lighting    LightingOptions    `yaml:"lighting"`
	Regions     RegionOptions      `yaml:"regions"`
	Aggregation AggregationOptions `yaml:"aggregation"`
	Classifier  ClassifierOptions  `yaml:"classifier"`
	Confidence  ConfidenceOptions  `yaml:"confidence"`

	// FallbackToneID overrides the palette's own fallback when set
	FallbackToneID string `yaml:"fallback_tone_id"`
}

// DecoderOptions bound the work a single call may do
type DecoderOptions struct {
	MaxImageBytes        int64 `yaml:"max_image_bytes"`
	MaxImagePixels       int   `yaml:"max_image_pixels"`
	MinImageDimension    int   `yaml:"min_image_dimension"`
	MaxAnalysisDimension int   `yaml:"max_analysis_dimension"`
}

// LightingTuning is the per-class parameter set of the lighting corrector
type LightingTuning struct {
	ClipLimit         float64 `yaml:"clip_limit"`
	Tiles             int     `yaml:"tiles"`
	ShadowLift        float64 `yaml:"shadow_lift"`
	HighlightCompress float64 `yaml:"highlight_compress"`
	Gamma             float64 `yaml:"gamma"`
	Contrast          float64 `yaml:"contrast"`
}

// LightingOptions classify a frame by L* and pick a tuning per class
type LightingOptions struct {
	DarkBelow      float64 `yaml:"dark_below"`
	BrightFrom     float64 `yaml:"bright_from"`
	VeryBrightFrom float64 `yaml:"very_bright_from"`
	// Corrections scale from 0 at FlatStd to full strength at FullStd (std of L*)
	FlatStd float64 `yaml:"flat_std"`
	FullStd float64 `yaml:"full_std"`

	Dark       LightingTuning `yaml:"dark"`
	Normal     LightingTuning `yaml:"normal"`
	Bright     LightingTuning `yaml:"bright"`
	VeryBright LightingTuning `yaml:"very_bright"`
}

// Tuning returns the parameter set for a brightness class
func (o LightingOptions) Tuning(class BrightnessClass) LightingTuning {
	switch class {
	case BrightnessDark:
		return o.Dark
	case BrightnessBright:
		return o.Bright
	case BrightnessVeryBright:
		return o.VeryBright
	default:
		return o.Normal
	}
}

// RegionOptions drive skin sampling
type RegionOptions struct {
	// Adaptive band around the region's median brightness (luma/255)
	NearBlack      float64 `yaml:"near_black"`
	NearWhite      float64 `yaml:"near_white"`
	BandLow        float64 `yaml:"band_low"`
	BandHigh       float64 `yaml:"band_high"`
	MaxSaturation  float64 `yaml:"max_saturation"`
	MinRegionShare float64 `yaml:"min_region_share"`
	MinRegionPixel int     `yaml:"min_region_pixels"`

	// Chroma mask bounds in full-range YCbCr
	MaskCbMin      float64 `yaml:"mask_cb_min"`
	MaskCbMax      float64 `yaml:"mask_cb_max"`
	MaskCrMin      float64 `yaml:"mask_cr_min"`
	MaskCrMax      float64 `yaml:"mask_cr_max"`
	MaskMinShare   float64 `yaml:"mask_min_share"`
	RelaxedBlack   float64 `yaml:"relaxed_black"`
	RelaxedWhite   float64 `yaml:"relaxed_white"`
	CenterCoverage float64 `yaml:"center_coverage"`

	// Pixels kept per region for the coherence cluster check
	SubsamplePerRegion int `yaml:"subsample_per_region"`
}

// AggregationOptions weight region samples by brightness
type AggregationOptions struct {
	VeryLightLuma  float64 `yaml:"very_light_luma"`
	VeryDarkLuma   float64 `yaml:"very_dark_luma"`
	VeryLightPower float64 `yaml:"very_light_power"`
	NormalPower    float64 `yaml:"normal_power"`
	VeryDarkPower  float64 `yaml:"very_dark_power"`
	MaxDeviation   float64 `yaml:"max_deviation"`
}

// BlendWeights combine the distance metrics into one score
type BlendWeights struct {
	Euclidean  float64 `yaml:"euclidean"`
	Perceptual float64 `yaml:"perceptual"`
	Hue        float64 `yaml:"hue"`
	Brightness float64 `yaml:"brightness"`
}

func (w BlendWeights) sum() float64 {
	return w.Euclidean + w.Perceptual + w.Hue + w.Brightness
}

// ClassifierOptions select blend weights and the extreme-tone guard
type ClassifierOptions struct {
	VeryLightLuma float64      `yaml:"very_light_luma"`
	VeryDarkLuma  float64      `yaml:"very_dark_luma"`
	ExtremeK      int          `yaml:"extreme_k"`
	Normal        BlendWeights `yaml:"normal"`
	Extreme       BlendWeights `yaml:"extreme"`
}

// SkinEnvelope bounds plausible skin in L*C*h
type SkinEnvelope struct {
	MinL      float64 `yaml:"min_l"`
	MaxL      float64 `yaml:"max_l"`
	MinChroma float64 `yaml:"min_chroma"`
	MaxChroma float64 `yaml:"max_chroma"`
	MinHue    float64 `yaml:"min_hue"`
	MaxHue    float64 `yaml:"max_hue"`
}

// Contains reports whether the colour lies inside the envelope
func (e SkinEnvelope) Contains(c RGB) bool {
	l, chroma, hue := c.LCh()
	return l >= e.MinL && l <= e.MaxL &&
		chroma >= e.MinChroma && chroma <= e.MaxChroma &&
		hue >= e.MinHue && hue <= e.MaxHue
}

// ConfidenceOptions weight and shape the sub-scores
type ConfidenceOptions struct {
	CoherenceWeight  float64 `yaml:"coherence_weight"`
	ExtractionWeight float64 `yaml:"extraction_weight"`
	LightingWeight   float64 `yaml:"lighting_weight"`
	EnvelopeBonus    float64 `yaml:"envelope_bonus"`
	BlendScale       float64 `yaml:"blend_scale"`
	NeutralScore     float64 `yaml:"neutral_score"`

	// ΔE2000 at which the match factor halves the score
	MatchHalfDistance float64 `yaml:"match_half_distance"`
	// Mean pairwise ΔE2000 between regions that zeroes agreement
	AgreementSpan         float64 `yaml:"agreement_span"`
	SingleRegionAgreement float64 `yaml:"single_region_agreement"`
	ClusterMergeDistance  float64 `yaml:"cluster_merge_distance"`
	ClusterSplitDistance  float64 `yaml:"cluster_split_distance"`
	ClusterIterations     int     `yaml:"cluster_iterations"`

	MinGoodResolution int     `yaml:"min_good_resolution"`
	FlatGrayVariance  float64 `yaml:"flat_gray_variance"`
	NoiseCeiling      float64 `yaml:"noise_ceiling"`
	// Laplacian variance at which the noise factor halves the confidence
	NoiseHalfVariance float64 `yaml:"noise_half_variance"`

	IdealBrightnessMin float64 `yaml:"ideal_brightness_min"`
	IdealBrightnessMax float64 `yaml:"ideal_brightness_max"`
	BrightnessFalloff  float64 `yaml:"brightness_falloff"`
	HarshContrast      float64 `yaml:"harsh_contrast"`
	OverexposedLuma    float64 `yaml:"overexposed_luma"`
	UnderexposedLuma   float64 `yaml:"underexposed_luma"`

	Envelope SkinEnvelope `yaml:"envelope"`

	// Results outside this envelope are flagged degenerate
	DegenerateMinL      float64 `yaml:"degenerate_min_l"`
	DegenerateMaxL      float64 `yaml:"degenerate_max_l"`
	DegenerateMaxChroma float64 `yaml:"degenerate_max_chroma"`
	DegenerateHueChroma float64 `yaml:"degenerate_hue_chroma"`
	DegenerateMaxHue    float64 `yaml:"degenerate_max_hue"`

	FailureConfidence float64 `yaml:"failure_confidence"`
	DecodeConfidence  float64 `yaml:"decode_confidence"`
}

// DefaultOptions returns the calibrated pipeline configuration
func DefaultOptions() Options {
	return Options{
		Decoder: DecoderOptions{
			MaxImageBytes:        8 * 1024 * 1024,
			MaxImagePixels:       40_000_000,
			MinImageDimension:    8,
			MaxAnalysisDimension: 512,
		},
		Lighting: LightingOptions{
			DarkBelow:      35,
			BrightFrom:     65,
			VeryBrightFrom: 80,
			FlatStd:        2,
			FullStd:        10,
			Dark:           LightingTuning{ClipLimit: 2.0, Tiles: 8, ShadowLift: 0.30, HighlightCompress: 0.10, Gamma: 0.95, Contrast: 1.03},
			Normal:         LightingTuning{ClipLimit: 2.0, Tiles: 8, ShadowLift: 0.20, HighlightCompress: 0.20, Gamma: 1.0, Contrast: 1.0},
			Bright:         LightingTuning{ClipLimit: 1.5, Tiles: 6, ShadowLift: 0.10, HighlightCompress: 0.30, Gamma: 1.0, Contrast: 1.0},
			VeryBright:     LightingTuning{ClipLimit: 1.2, Tiles: 4, ShadowLift: 0.05, HighlightCompress: 0.35, Gamma: 1.04, Contrast: 0.98},
		},
		Regions: RegionOptions{
			NearBlack:          0.06,
			NearWhite:          0.98,
			BandLow:            0.55,
			BandHigh:           1.45,
			MaxSaturation:      0.75,
			MinRegionShare:     0.10,
			MinRegionPixel:     8,
			MaskCbMin:          77,
			MaskCbMax:          127,
			MaskCrMin:          133,
			MaskCrMax:          173,
			MaskMinShare:       0.25,
			RelaxedBlack:       0.02,
			RelaxedWhite:       0.995,
			CenterCoverage:     0.4,
			SubsamplePerRegion: 200,
		},
		Aggregation: AggregationOptions{
			VeryLightLuma:  226,
			VeryDarkLuma:   56,
			VeryLightPower: 2.0,
			NormalPower:    1.0,
			VeryDarkPower:  0.5,
			MaxDeviation:   0.06,
		},
		Classifier: ClassifierOptions{
			VeryLightLuma: 226,
			VeryDarkLuma:  56,
			ExtremeK:      3,
			Normal:        BlendWeights{Euclidean: 0.35, Perceptual: 0.35, Hue: 0.20, Brightness: 0.10},
			Extreme:       BlendWeights{Euclidean: 0.15, Perceptual: 0.20, Hue: 0.05, Brightness: 0.60},
		},
		Confidence: ConfidenceOptions{
			CoherenceWeight:       0.40,
			ExtractionWeight:      0.35,
			LightingWeight:        0.25,
			EnvelopeBonus:         10,
			BlendScale:            0.9,
			NeutralScore:          50,
			MatchHalfDistance:     20,
			AgreementSpan:         25,
			SingleRegionAgreement: 60,
			ClusterMergeDistance:  8,
			ClusterSplitDistance:  16,
			ClusterIterations:     8,
			MinGoodResolution:     128,
			FlatGrayVariance:      4,
			NoiseCeiling:          2000,
			NoiseHalfVariance:     2000,
			IdealBrightnessMin:    70,
			IdealBrightnessMax:    200,
			BrightnessFalloff:     60,
			HarshContrast:         60,
			OverexposedLuma:       250,
			UnderexposedLuma:      10,
			Envelope: SkinEnvelope{
				MinL: 10, MaxL: 97,
				MinChroma: 2.5, MaxChroma: 45,
				MinHue: 35, MaxHue: 100,
			},
			DegenerateMinL:      4,
			DegenerateMaxL:      99,
			DegenerateMaxChroma: 70,
			DegenerateHueChroma: 20,
			DegenerateMaxHue:    110,
			FailureConfidence:   0.3,
			DecodeConfidence:    0.1,
		},
		FallbackToneID: "",
	}
}

// LoadOptions overlays a YAML file onto DefaultOptions and validates the result
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read pipeline options %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("decode pipeline options %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("pipeline options %s: %w", path, err)
	}
	return opts, nil
}

// Validate rejects configurations the pipeline cannot run with
func (o Options) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	d := o.Decoder
	check(d.MaxImageBytes > 0, "decoder.max_image_bytes must be > 0")
	check(d.MaxImagePixels > 0, "decoder.max_image_pixels must be > 0")
	check(d.MinImageDimension >= 2, "decoder.min_image_dimension must be >= 2")
	check(d.MaxAnalysisDimension >= d.MinImageDimension, "decoder.max_analysis_dimension must be >= min_image_dimension")

	l := o.Lighting
	check(l.DarkBelow < l.BrightFrom && l.BrightFrom <= l.VeryBrightFrom,
		"lighting thresholds must satisfy dark_below < bright_from <= very_bright_from")
	check(l.FlatStd >= 0 && l.FullStd > l.FlatStd, "lighting.full_std must exceed flat_std")
	for name, t := range map[string]LightingTuning{"dark": l.Dark, "normal": l.Normal, "bright": l.Bright, "very_bright": l.VeryBright} {
		check(t.ClipLimit >= 1, "lighting.%s.clip_limit must be >= 1", name)
		check(t.Tiles >= 1, "lighting.%s.tiles must be >= 1", name)
		check(t.ShadowLift >= 0 && t.ShadowLift <= 1, "lighting.%s.shadow_lift must be in [0,1]", name)
		check(t.HighlightCompress >= 0 && t.HighlightCompress <= 1, "lighting.%s.highlight_compress must be in [0,1]", name)
		check(t.Gamma > 0, "lighting.%s.gamma must be > 0", name)
		check(t.Contrast > 0, "lighting.%s.contrast must be > 0", name)
	}

	r := o.Regions
	check(r.NearBlack >= 0 && r.NearBlack < r.NearWhite && r.NearWhite <= 1, "regions near_black/near_white must satisfy 0 <= black < white <= 1")
	check(r.RelaxedBlack >= 0 && r.RelaxedBlack < r.RelaxedWhite && r.RelaxedWhite <= 1, "regions relaxed band must satisfy 0 <= black < white <= 1")
	check(r.BandLow > 0 && r.BandLow < 1 && r.BandHigh > 1, "regions band_low must be in (0,1) and band_high > 1")
	check(r.MaskCbMin < r.MaskCbMax && r.MaskCrMin < r.MaskCrMax, "regions chroma mask bounds are inverted")
	check(r.SubsamplePerRegion > 0, "regions.subsample_per_region must be > 0")

	a := o.Aggregation
	check(a.VeryDarkLuma < a.VeryLightLuma, "aggregation.very_dark_luma must be < very_light_luma")
	check(a.VeryLightPower > 0 && a.NormalPower > 0 && a.VeryDarkPower > 0, "aggregation powers must be > 0")

	c := o.Classifier
	check(c.VeryDarkLuma < c.VeryLightLuma, "classifier.very_dark_luma must be < very_light_luma")
	check(c.ExtremeK >= 1, "classifier.extreme_k must be >= 1")
	check(c.Normal.sum() > 0 && c.Extreme.sum() > 0, "classifier blend weights must not all be zero")

	s := o.Confidence
	check(s.CoherenceWeight >= 0 && s.ExtractionWeight >= 0 && s.LightingWeight >= 0 &&
		s.CoherenceWeight+s.ExtractionWeight+s.LightingWeight > 0, "confidence weights must be non-negative and not all zero")
	check(s.MatchHalfDistance > 0, "confidence.match_half_distance must be > 0")
	check(s.AgreementSpan > 0, "confidence.agreement_span must be > 0")
	check(s.NoiseHalfVariance > 0, "confidence.noise_half_variance must be > 0")
	check(s.ClusterSplitDistance > s.ClusterMergeDistance, "confidence cluster split distance must exceed merge distance")
	check(s.FailureConfidence >= 0 && s.FailureConfidence <= 0.5, "confidence.failure_confidence must be in [0,0.5]")
	check(s.DecodeConfidence >= 0 && s.DecodeConfidence <= s.FailureConfidence, "confidence.decode_confidence must be in [0,failure_confidence]")

	return errors.Join(errs...)
}

// WithFallbackTone returns options that force a specific fallback tone
func (o Options) WithFallbackTone(id string) Options {
	o.FallbackToneID = id
	return o
}

// WithMaxImageBytes returns options with a different input size cap
func (o Options) WithMaxImageBytes(n int64) Options {
	o.Decoder.MaxImageBytes = n
	return o
}
