package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fxsml/goaggregate/aggregate"
)

const namespace = "goaggregate"

// Source is an aggregator whose counters can be scraped.
type Source interface {
	Statistics() aggregate.Statistics
	InFlight() int
}

// Collector is a prometheus.Collector over named aggregators.
// Values are read on every scrape; nothing is cached.
type Collector struct {
	mu      sync.RWMutex
	sources map[string]Source

	in        *prometheus.Desc
	completed *prometheus.Desc
	discarded *prometheus.Desc
	inFlight  *prometheus.Desc
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	labels := []string{"aggregator"}
	return &Collector{
		sources: make(map[string]Source),
		in: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "exchanges", "in_total"),
			"Total number of exchanges accepted by the aggregator.",
			labels, nil),
		completed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "groups", "completed_total"),
			"Total number of completed groups by completion cause.",
			append(labels, "completed_by"), nil),
		discarded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "groups", "discarded_total"),
			"Total number of groups dropped without output.",
			labels, nil),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "groups", "in_flight"),
			"Number of open groups.",
			labels, nil),
	}
}

// Add registers src under name, replacing any previous source with that name.
func (c *Collector) Add(name string, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = src
}

// Remove unregisters the source with the given name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.in
	ch <- c.completed
	ch <- c.discarded
	ch <- c.inFlight
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, src := range c.sources {
		s := src.Statistics()
		ch <- prometheus.MustNewConstMetric(c.in, prometheus.CounterValue, float64(s.TotalIn), name)
		for cause, n := range map[aggregate.CompletedBy]int64{
			aggregate.CompletedBySize:      s.CompletedBySize,
			aggregate.CompletedByPredicate: s.CompletedByPredicate,
			aggregate.CompletedByStrategy:  s.CompletedByStrategy,
			aggregate.CompletedByTimeout:   s.CompletedByTimeout,
			aggregate.CompletedByInterval:  s.CompletedByInterval,
			aggregate.CompletedByForce:     s.CompletedByForce,
		} {
			ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(n), name, cause.String())
		}
		ch <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(s.Discarded), name)
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(src.InFlight()), name)
	}
}
