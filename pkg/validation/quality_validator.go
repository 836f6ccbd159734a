package validation

import (
	"math"
)

// QualityThresholds defines configurable thresholds for capture-quality hints
type QualityThresholds struct {
	// Brightness thresholds (mean 8-bit luma)
	MinBrightness float64
	MaxBrightness float64

	// Sharpness thresholds. Blur uses the Laplacian variance normalised by
	// the grey-level variance; frames flatter than FlatGrayVariance are
	// never reported blurry.
	MinNormalizedSharpness float64
	FlatGrayVariance       float64
	MaxLaplacianVariance   float64

	// Exposure thresholds (fraction of clipped pixels)
	MaxOverexposed  float64
	MaxUnderexposed float64

	// Colour cast thresholds on the mean L*a*b*
	MinA      float64
	MinB      float64
	MaxChroma float64

	// Resolution and skin coverage
	MinSide     int
	MinCoverage float64
}

// DefaultQualityThresholds returns the default quality thresholds
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinBrightness:          60.0,
		MaxBrightness:          215.0,
		MinNormalizedSharpness: 0.3,
		FlatGrayVariance:       4.0,
		MaxLaplacianVariance:   2000.0, // Above this the frame is mostly sensor noise
		MaxOverexposed:         0.05,
		MaxUnderexposed:        0.05,
		MinA:                   -4.0,
		MinB:                   -6.0,
		MaxChroma:              45.0,
		MinSide:                128,
		MinCoverage:            0.4,
	}
}

// QualityValidator turns capture metrics into user-facing hints
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// QualityIssue represents a quality validation issue
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "error", "warning", "info"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// CaptureQuality represents the metrics needed for quality validation
type CaptureQuality struct {
	Width        int
	Height       int
	Brightness   float64
	Contrast     float64
	LaplacianVar float64
	GrayVariance float64
	Overexposed  float64
	Underexposed float64
	MeanA        float64
	MeanB        float64
	// Coverage is the share of the expected skin area that produced samples
	Coverage float64
}

// ValidateCapture reports every threshold the capture misses, in a fixed order
func (qv *QualityValidator) ValidateCapture(m CaptureQuality) []QualityIssue {
	var issues []QualityIssue
	t := qv.thresholds

	// 1. Brightness
	if m.Brightness < t.MinBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_dark",
			Message:     "Photo is too dark. Face a window or add soft light.",
			Severity:    "warning",
			ActualValue: m.Brightness,
			Threshold:   t.MinBrightness,
		})
	} else if m.Brightness > t.MaxBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_bright",
			Message:     "Photo is too bright. Avoid direct sunlight or flash.",
			Severity:    "warning",
			ActualValue: m.Brightness,
			Threshold:   t.MaxBrightness,
		})
	}

	// 2. Sharpness and noise
	if m.GrayVariance >= t.FlatGrayVariance {
		if sharpness := m.LaplacianVar / m.GrayVariance; sharpness < t.MinNormalizedSharpness {
			issues = append(issues, QualityIssue{
				Type:        "blurriness",
				Message:     "Photo is blurry. Hold the camera steady and try again.",
				Severity:    "warning",
				ActualValue: sharpness,
				Threshold:   t.MinNormalizedSharpness,
			})
		}
	}
	if m.LaplacianVar > t.MaxLaplacianVariance {
		issues = append(issues, QualityIssue{
			Type:        "noise",
			Message:     "Photo is grainy. Use more light instead of digital zoom or night mode.",
			Severity:    "warning",
			ActualValue: m.LaplacianVar,
			Threshold:   t.MaxLaplacianVariance,
		})
	}

	// 3. Exposure
	if m.Overexposed > t.MaxOverexposed {
		issues = append(issues, QualityIssue{
			Type:        "overexposure",
			Message:     "Parts of the photo are washed out. Move away from strong light.",
			Severity:    "warning",
			ActualValue: m.Overexposed,
			Threshold:   t.MaxOverexposed,
		})
	}
	if m.Underexposed > t.MaxUnderexposed {
		issues = append(issues, QualityIssue{
			Type:        "underexposure",
			Message:     "Parts of the photo are in deep shadow. Light your face evenly.",
			Severity:    "warning",
			ActualValue: m.Underexposed,
			Threshold:   t.MaxUnderexposed,
		})
	}

	// 4. Colour cast
	if m.MeanA < t.MinA || m.MeanB < t.MinB || math.Hypot(m.MeanA, m.MeanB) > t.MaxChroma {
		issues = append(issues, QualityIssue{
			Type:        "color_cast",
			Message:     "Colors look tinted. Don't use filters or colored lights.",
			Severity:    "warning",
			ActualValue: math.Hypot(m.MeanA, m.MeanB),
			Threshold:   t.MaxChroma,
		})
	}

	// 5. Resolution
	if side := min(m.Width, m.Height); side < t.MinSide {
		issues = append(issues, QualityIssue{
			Type:        "low_resolution",
			Message:     "Photo is too small. Use a larger, closer photo of your face.",
			Severity:    "info",
			ActualValue: float64(side),
			Threshold:   float64(t.MinSide),
		})
	}

	// 6. Skin coverage
	if m.Coverage < t.MinCoverage {
		issues = append(issues, QualityIssue{
			Type:        "low_coverage",
			Message:     "Not enough skin is visible. Center your face and fill the frame.",
			Severity:    "error",
			ActualValue: m.Coverage,
			Threshold:   t.MinCoverage,
		})
	}

	return issues
}

// ConvertIssuesToMessages converts quality issues to simple messages
func (qv *QualityValidator) ConvertIssuesToMessages(issues []QualityIssue) []string {
	var messages []string
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

// HasCriticalIssues checks if there are any critical (error severity) issues
func (qv *QualityValidator) HasCriticalIssues(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}
