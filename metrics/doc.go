// Package metrics exposes aggregator statistics and pipe processing metrics
// to Prometheus.
//
// [Collector] reads the counters of one or more aggregators at scrape time.
// [Processing] is fed by [middleware.MetricsMiddleware] and records
// per-exchange latency and outcome.
//
// [middleware.MetricsMiddleware]: https://pkg.go.dev/github.com/fxsml/goaggregate/pipe/middleware#MetricsMiddleware
package metrics
