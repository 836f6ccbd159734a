package skintone

import (
	"fmt"
	"math"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	apperrors "go-skintone-inspector/internal/errors"
	"go-skintone-inspector/internal/palette"
	"go-skintone-inspector/pkg/models"
	"go-skintone-inspector/pkg/validation"
)

// Pipeline classifies the skin tone of a photograph. It holds no per-call
// state and is safe for concurrent use.
type Pipeline struct {
	palette    *palette.Palette
	opts       Options
	decoder    *Decoder
	lighting   *LightingCorrector
	extractor  *SkinRegionExtractor
	aggregator *ColorAggregator
	classifier *ToneClassifier
	scorer     *ConfidenceScorer
	metrics    *MetricsCalculator
	quality    *validation.QualityValidator
	log        *logrus.Entry
}

// NewPipeline validates opts and wires the stages. FallbackToneID, when set,
// must name a tone of p.
func NewPipeline(p *palette.Palette, opts Options, log *logrus.Entry) (*Pipeline, error) {
	if p == nil {
		return nil, fmt.Errorf("palette is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline options: %w", err)
	}
	if opts.FallbackToneID != "" {
		withFallback, err := p.WithFallback(opts.FallbackToneID)
		if err != nil {
			return nil, err
		}
		p = withFallback
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Pipeline{
		palette:    p,
		opts:       opts,
		decoder:    NewDecoder(opts.Decoder),
		lighting:   NewLightingCorrector(opts.Lighting),
		extractor:  NewSkinRegionExtractor(opts.Regions, log),
		aggregator: NewColorAggregator(opts.Aggregation),
		classifier: NewToneClassifier(p, opts.Classifier),
		scorer:     NewConfidenceScorer(opts.Confidence, log),
		metrics:    NewMetricsCalculator(opts.Confidence),
		quality:    validation.NewQualityValidator(),
		log:        log,
	}, nil
}

// Palette returns the palette the pipeline classifies against
func (p *Pipeline) Palette() *palette.Palette {
	return p.palette
}

// Analyze runs every stage on one encoded image. It never panics and always
// returns a tone of the palette; failures are reported through Succeeded,
// FailureReason and a capped confidence.
func (p *Pipeline) Analyze(data []byte, contentType string) (result models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.NewInternalStageError("pipeline", fmt.Errorf("%v", r))
			p.log.WithFields(logrus.Fields{
				"error": err.Error(),
				"stack": string(debug.Stack()),
			}).Error("Skin tone pipeline panicked")
			result = p.failure(models.FailureInternalStageFailure, p.opts.Confidence.FailureConfidence, nil)
		}
	}()

	raster, err := p.decoder.Decode(data, contentType)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"error":        err.Error(),
			"content_type": contentType,
			"bytes":        len(data),
		}).Debug("Image decode failed")
		return p.failure(models.FailureDecodeError, p.opts.Confidence.DecodeConfidence, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return p.analyzeRaster(raster)
}

// analyzeRaster runs every stage after decoding. Panics are recovered by
// Analyze.
func (p *Pipeline) analyzeRaster(raster *Raster) models.AnalysisResult {
	var stageFailures []string

	capture := p.metrics.Capture(raster)

	corrected, lighting := p.correct(raster)
	if len(lighting.Skipped) > 0 {
		stageFailures = append(stageFailures, "lighting")
	}

	extraction := p.extractor.Extract(corrected)
	agg := p.aggregator.Aggregate(corrected, extraction.Samples)
	derived := RGBFromInts(agg.RGB.Rounded())
	match := p.classifier.Classify(derived)

	breakdown := p.scorer.Score(ScoreInput{
		Extraction: extraction,
		Capture:    capture,
		Derived:    derived,
		Match:      match,
	})

	diagnostics := map[string]interface{}{
		"region_count":      len(extraction.Samples),
		"region_strategy":   extraction.Strategy,
		"region_coverage":   round4(extraction.Coverage),
		"lighting_class":    string(lighting.Class),
		"lighting_strength": round4(lighting.Strength),
		"lighting_applied":  nonNil(lighting.Applied),
		"aggregate_class":   string(agg.Class),
		"aggregate_method":  agg.Method,
		"blend_policy":      match.Policy,
		"extreme_guard":     match.Guarded,
		"delta_e":           round4(match.DeltaE),
		"coherence_score":   round4(breakdown.Coherence),
		"extraction_score":  round4(breakdown.Extraction),
		"lighting_score":    round4(breakdown.Lighting),
		"sharpness_score":   round4(breakdown.Sharpness),
		"envelope_bonus":    round4(breakdown.Bonus),
		"match_factor":      round4(breakdown.MatchFactor),
		"noise_factor":      round4(breakdown.NoiseFactor),
	}
	if len(lighting.Skipped) > 0 {
		diagnostics["lighting_skipped"] = lighting.Skipped
	}
	if len(breakdown.Degraded) > 0 {
		diagnostics["degraded_scores"] = breakdown.Degraded
	}
	if len(stageFailures) > 0 {
		diagnostics["stage_failures"] = stageFailures
	}

	result := models.AnalysisResult{
		MatchedToneID: match.Tone.ID,
		MatchedHex:    match.Tone.Hex,
		DerivedHex:    derived.Hex(),
		DominantRGB:   derived.Rounded(),
		Confidence:    breakdown.Confidence,
		Succeeded:     true,
		Diagnostics:   diagnostics,
		Warnings:      p.warnings(capture, extraction),
	}

	var reason models.FailureReason
	switch {
	case len(extraction.Samples) == 0:
		reason = models.FailureNoUsableRegion
	case p.scorer.IsDegenerate(derived):
		reason = models.FailureDegenerateColor
	}
	if reason != models.FailureNone {
		fallback := p.palette.Fallback()
		p.log.WithFields(logrus.Fields{
			"reason":      reason,
			"derived_hex": result.DerivedHex,
			"fallback":    fallback.ID,
		}).Debug("Analysis degraded to fallback tone")
		diagnostics["classified_tone_id"] = match.Tone.ID
		result.MatchedToneID = fallback.ID
		result.MatchedHex = fallback.Hex
		result.Succeeded = false
		result.FailureReason = reason
		result.Confidence = math.Min(result.Confidence, p.opts.Confidence.FailureConfidence)
	}
	return result
}

// correct runs the lighting corrector, passing the raster through
// uncorrected if the corrector itself panics
func (p *Pipeline) correct(raster *Raster) (out *Raster, report LightingReport) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Warn("Lighting correction failed, using uncorrected image")
			out = raster
			report = LightingReport{Class: BrightnessNormal, Skipped: []string{stepEqualize, stepShadows, stepGamma, stepContrast}}
		}
	}()
	return p.lighting.Correct(raster)
}

func (p *Pipeline) warnings(capture CaptureMetrics, extraction Extraction) []string {
	issues := p.quality.ValidateCapture(validation.CaptureQuality{
		Width:        capture.Width,
		Height:       capture.Height,
		Brightness:   capture.Brightness,
		Contrast:     capture.Contrast,
		LaplacianVar: capture.LaplacianVar,
		GrayVariance: capture.GrayVariance,
		Overexposed:  capture.Overexposed,
		Underexposed: capture.Underexposed,
		MeanA:        capture.MeanA,
		MeanB:        capture.MeanB,
		Coverage:     extraction.Coverage,
	})
	return p.quality.ConvertIssuesToMessages(issues)
}

// failure builds the fallback result for a call that could not classify
func (p *Pipeline) failure(reason models.FailureReason, confidence float64, diagnostics map[string]interface{}) models.AnalysisResult {
	fallback := p.palette.Fallback()
	return models.AnalysisResult{
		MatchedToneID: fallback.ID,
		MatchedHex:    fallback.Hex,
		DerivedHex:    fallback.Hex,
		DominantRGB:   fallback.RGB,
		Confidence:    confidence,
		Succeeded:     false,
		FailureReason: reason,
		Diagnostics:   diagnostics,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
