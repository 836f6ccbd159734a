package models

// ReferenceTone is one swatch of the reference palette.
// Tones are loaded once per process and never mutated.
type ReferenceTone struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Hex         string `json:"hex"`
	RGB         [3]int `json:"rgb"`
	Ordinal     int    `json:"ordinal"`
}

// FailureReason names why an analysis degraded to the fallback tone
type FailureReason string

const (
	FailureNone                 FailureReason = ""
	FailureDecodeError          FailureReason = "decode_error"
	FailureNoUsableRegion       FailureReason = "no_usable_region"
	FailureDegenerateColor      FailureReason = "degenerate_color"
	FailureInternalStageFailure FailureReason = "internal_stage_failure"
)

// AnalysisResult is the output of the skin-tone pipeline.
// MatchedToneID always names a loaded ReferenceTone; failures are reported
// through Succeeded and FailureReason with the palette's fallback tone.
// It carries no timestamps so identical input yields an identical result.
type AnalysisResult struct {
	MatchedToneID string                 `json:"matched_tone_id"`
	MatchedHex    string                 `json:"matched_hex"`
	DerivedHex    string                 `json:"derived_hex"`
	DominantRGB   [3]int                 `json:"dominant_rgb"`
	Confidence    float64                `json:"confidence"`
	Succeeded     bool                   `json:"succeeded"`
	FailureReason FailureReason          `json:"failure_reason,omitempty"`
	Diagnostics   map[string]interface{} `json:"diagnostics,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
}

// ImageBlob is an encoded image plus the content type it was delivered with
type ImageBlob struct {
	Data        []byte
	ContentType string
	Source      string
}
