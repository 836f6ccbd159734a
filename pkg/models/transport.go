package models

// URLAnalysisRequest asks the service to fetch and classify a remote image
type URLAnalysisRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SkinToneResponse wraps a pipeline result with request bookkeeping.
// The embedded result fields are flattened into the JSON object.
type SkinToneResponse struct {
	AnalysisResult
	RequestID         string  `json:"request_id"`
	Source            string  `json:"source,omitempty"`
	Timestamp         string  `json:"timestamp"`
	ProcessingTimeSec float64 `json:"processing_time_sec"`
}

// PaletteResponse lists the loaded reference palette
type PaletteResponse struct {
	Name       string          `json:"name"`
	FallbackID string          `json:"fallback_tone_id"`
	Tones      []ReferenceTone `json:"tones"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Time        string `json:"time"`
	PaletteSize int    `json:"palette_size"`
}
