// Package metrics is the process-wide MetricsEvent sink (spec §5: "Metrics
// events are pushed to an unbounded MPSC and sampled by a dedicated shipper
// task"). Shipping itself is out of scope; this package only exposes the
// narrow Sink contract and a Prometheus-backed default, grounded on
// hubenschmidt-asr-llm-tts's internal/metrics package.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
)

// Sink receives MetricsEvent payloads emitted by stages. Implementations
// must be concurrency-safe: the Orchestrator, ASR/LLM/TTS backends, and the
// tool registry are process-wide and shared across sessions.
type Sink interface {
	Observe(bus.MetricsPayload)
}

// NoOp discards every sample.
type NoOp struct{}

func (NoOp) Observe(bus.MetricsPayload) {}

// Prom is a Prometheus-backed Sink. Named metrics are created lazily on
// first observation so a single generic Observe(name, tags, value) surface
// can back arbitrarily many time series without predeclaring every stage's
// instrumentation.
type Prom struct {
	mu         sync.Mutex
	reg        prometheus.Registerer
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
}

// NewProm builds a Prom sink registered against reg (pass
// prometheus.DefaultRegisterer for the global registry).
func NewProm(reg prometheus.Registerer) *Prom {
	return &Prom{
		reg:        reg,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
	}
}

// latencyMetric names that are recorded as histograms; everything else is
// a monotonic counter that accumulates the observed values.
var latencyMetrics = map[string]bool{
	"stt_latency_ms":  true,
	"llm_latency_ms":  true,
	"tts_latency_ms":  true,
	"turn_latency_ms": true,
}

func (p *Prom) Observe(m bus.MetricsPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	labelNames := make([]string, 0, len(m.Tags))
	labelValues := make([]string, 0, len(m.Tags))
	for k, v := range m.Tags {
		labelNames = append(labelNames, k)
		labelValues = append(labelValues, v)
	}

	if latencyMetrics[m.Name] {
		hv, ok := p.histograms[m.Name]
		if !ok {
			hv = promauto.With(p.reg).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lokutor_" + m.Name,
				Help:    "pipeline latency metric " + m.Name,
				Buckets: prometheus.ExponentialBuckets(10, 2, 12),
			}, labelNames)
			p.histograms[m.Name] = hv
		}
		hv.WithLabelValues(labelValues...).Observe(m.Value)
		return
	}

	cv, ok := p.counters[m.Name]
	if !ok {
		cv = promauto.With(p.reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lokutor_" + m.Name + "_total",
			Help: "pipeline counter metric " + m.Name,
		}, labelNames)
		p.counters[m.Name] = cv
	}
	cv.WithLabelValues(labelValues...).Add(m.Value)
}
