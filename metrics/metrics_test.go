package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxsml/goaggregate/aggregate"
	"github.com/fxsml/goaggregate/pipe/middleware"
)

type fakeSource struct {
	stats    aggregate.Statistics
	inFlight int
}

func (f fakeSource) Statistics() aggregate.Statistics { return f.stats }
func (f fakeSource) InFlight() int                    { return f.inFlight }

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.Add("orders", fakeSource{
		stats: aggregate.Statistics{
			TotalIn:            10,
			TotalCompleted:     3,
			CompletedBySize:    2,
			CompletedByTimeout: 1,
			Discarded:          1,
		},
		inFlight: 4,
	})

	expected := `
# HELP goaggregate_groups_in_flight Number of open groups.
# TYPE goaggregate_groups_in_flight gauge
goaggregate_groups_in_flight{aggregator="orders"} 4
# HELP goaggregate_exchanges_in_total Total number of exchanges accepted by the aggregator.
# TYPE goaggregate_exchanges_in_total counter
goaggregate_exchanges_in_total{aggregator="orders"} 10
# HELP goaggregate_groups_discarded_total Total number of groups dropped without output.
# TYPE goaggregate_groups_discarded_total counter
goaggregate_groups_discarded_total{aggregator="orders"} 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"goaggregate_groups_in_flight", "goaggregate_exchanges_in_total", "goaggregate_groups_discarded_total")
	require.NoError(t, err)

	// 1 in, 6 completed causes, 1 discarded, 1 in flight
	assert.Equal(t, 9, testutil.CollectAndCount(c))

	c.Remove("orders")
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestCollector_Aggregator(t *testing.T) {
	a, err := aggregate.New(aggregate.Config{
		Strategy:       aggregate.Flexible(),
		CompletionSize: 2,
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	c := NewCollector()
	c.Add("default", a)
	reg, err := NewRegistry(c)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "goaggregate_groups_in_flight")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProcessing(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProcessing(reg, "aggregate")
	require.NoError(t, err)

	p.Collect(&middleware.Metrics{Duration: time.Millisecond, InFlight: 1})
	p.Collect(&middleware.Metrics{Duration: time.Millisecond, InFlight: 2, Error: errors.New("boom")})
	p.Collect(&middleware.Metrics{Duration: time.Millisecond, InFlight: 1, Error: context.Canceled})

	assert.Equal(t, 1.0, testutil.ToFloat64(p.total.WithLabelValues("aggregate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.total.WithLabelValues("aggregate", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.total.WithLabelValues("aggregate", "canceled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.inFlight.WithLabelValues("aggregate")))

	_, err = NewProcessing(reg, "aggregate")
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}

func TestProcessing_Exemplar(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProcessing(reg, "aggregate")
	require.NoError(t, err)

	p.Collect(&middleware.Metrics{
		Duration: time.Millisecond,
		InFlight: 1,
		Metadata: middleware.Metadata{ExemplarKey: "ex-1"},
	})

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "goaggregate_pipe_processing_duration_seconds" {
			continue
		}
		for _, b := range mf.GetMetric()[0].GetHistogram().GetBucket() {
			for _, l := range b.GetExemplar().GetLabel() {
				if l.GetName() == ExemplarKey && l.GetValue() == "ex-1" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "exemplar not recorded")
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.Add("orders", fakeSource{stats: aggregate.Statistics{TotalIn: 7}})
	reg, err := NewRegistry(c)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `goaggregate_exchanges_in_total{aggregator="orders"} 7`)
}
