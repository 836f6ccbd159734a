package observer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skintone"

// MetricsObserver exports analysis events as Prometheus metrics
type MetricsObserver struct {
	started       prometheus.Counter
	analyses      *prometheus.CounterVec
	duration      prometheus.Histogram
	confidence    prometheus.Histogram
	tones         *prometheus.CounterVec
	fetchFailures prometheus.Counter
	fetchedBytes  prometheus.Histogram
}

// NewMetricsObserver registers the analysis metrics on reg
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	factory := promauto.With(reg)

	return &MetricsObserver{
		started: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_started_total",
			Help:      "Total number of analyses started",
		}),
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of finished analyses by outcome and failure reason",
		}, []string{"outcome", "reason"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a single analysis",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_confidence",
			Help:      "Confidence of returned classifications",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		tones: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matched_tones_total",
			Help:      "Classifications per matched reference tone",
		}, []string{"tone_id"}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_fetch_failures_total",
			Help:      "Remote image fetches that failed",
		}),
		fetchedBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_fetch_bytes",
			Help:      "Size of fetched remote images",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 6),
		}),
	}
}

// OnEvent handles analysis events by updating metrics
func (o *MetricsObserver) OnEvent(_ context.Context, event AnalysisEvent) {
	switch event.EventType {
	case AnalysisStarted:
		o.started.Inc()
	case AnalysisCompleted:
		outcome := "succeeded"
		if !event.Success {
			outcome = "fallback"
		}
		o.analyses.WithLabelValues(outcome, event.FailureReason).Inc()
		o.duration.Observe(event.ProcessingTime.Seconds())
		o.confidence.Observe(event.Confidence)
		if event.ToneID != "" {
			o.tones.WithLabelValues(event.ToneID).Inc()
		}
	case AnalysisFailed:
		o.analyses.WithLabelValues("error", event.FailureReason).Inc()
	case ImageFetched:
		if n, ok := event.Metadata["bytes"].(int); ok {
			o.fetchedBytes.Observe(float64(n))
		}
	case ImageFetchFailed:
		o.fetchFailures.Inc()
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}
