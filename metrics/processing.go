package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fxsml/goaggregate/pipe/middleware"
)

// ExemplarKey is the metadata key whose value is attached to latency
// observations as an exemplar. See middleware.MetadataProvider.
const ExemplarKey = "exchange_id"

// Processing records pipe stage latency and outcomes.
type Processing struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	stage    string
}

// NewProcessing creates processing metrics for the named stage.
// The returned value is registered with reg.
func NewProcessing(reg prometheus.Registerer, stage string) (*Processing, error) {
	p := &Processing{
		stage: stage,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing one exchange.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stage"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "processed_total",
			Help:      "Total number of processed exchanges by status.",
		}, []string{"stage", "status"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "in_flight",
			Help:      "Number of exchanges currently being processed.",
		}, []string{"stage"}),
	}
	for _, c := range []prometheus.Collector{p.duration, p.total, p.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Collect is a middleware.MetricsCollector.
func (p *Processing) Collect(m *middleware.Metrics) {
	obs := p.duration.WithLabelValues(p.stage)
	if id, ok := m.Metadata[ExemplarKey].(string); ok && id != "" {
		obs.(prometheus.ExemplarObserver).ObserveWithExemplar(m.Duration.Seconds(), prometheus.Labels{ExemplarKey: id})
	} else {
		obs.Observe(m.Duration.Seconds())
	}
	p.inFlight.WithLabelValues(p.stage).Set(float64(m.InFlight - 1))

	status := "success"
	switch {
	case m.Canceled() == 1:
		status = "canceled"
	case m.Success() == 0:
		status = "error"
	}
	p.total.WithLabelValues(p.stage, status).Inc()
}
