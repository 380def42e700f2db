package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 分割与掩码存储指标，nil 时所有方法为空操作
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
	confidence prometheus.Histogram
	coverage   prometheus.Histogram
	evictions  prometheus.Counter
	fetches    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "segmentation_requests_total",
			Help: "Segmentation requests by result.",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmentation_duration_seconds",
			Help:    "Time spent segmenting one image.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmentation_confidence",
			Help:    "Confidence of produced masks.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		coverage: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmentation_coverage",
			Help:    "Foreground coverage of produced masks.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "mask_store_evictions_total",
			Help: "Expired masks removed from the store.",
		}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mask_fetch_total",
			Help: "Mask fetches by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

func (m *Metrics) observeSegment(err error, elapsed time.Duration, coverage, confidence float64) {
	if m == nil {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	if err != nil {
		m.requests.WithLabelValues(KindOf(err).Code()).Inc()
		return
	}
	m.requests.WithLabelValues("ok").Inc()
	m.coverage.Observe(coverage)
	m.confidence.Observe(confidence)
}

func (m *Metrics) observeFetch(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).Code()
	}
	m.fetches.WithLabelValues(result).Inc()
}
