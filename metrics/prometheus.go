package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vecserve"

// PrometheusObserver exports service events as Prometheus metrics.
type PrometheusObserver struct {
	queryLatency *prometheus.HistogramVec
	queryResults prometheus.Histogram
	loadLatency  *prometheus.HistogramVec
	swaps        prometheus.Counter
	count        prometheus.Gauge
	dim          prometheus.Gauge
}

// NewPrometheusObserver creates the collectors and registers them with reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of kNN queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"status"}),
		queryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_neighbors",
			Help:      "Number of neighbors returned per successful query.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}),
		loadLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of snapshot loads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Number of generations published.",
		}),
		count: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_vectors",
			Help:      "Number of vectors in the active generation.",
		}),
		dim: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_dimension",
			Help:      "Dimension of the active generation.",
		}),
	}

	for _, c := range []prometheus.Collector{o.queryLatency, o.queryResults, o.loadLatency, o.swaps, o.count, o.dim} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// OnQuery implements Observer.
func (o *PrometheusObserver) OnQuery(d time.Duration, _, n int, err error) {
	o.queryLatency.WithLabelValues(status(err)).Observe(d.Seconds())
	if err == nil {
		o.queryResults.Observe(float64(n))
	}
}

// OnLoad implements Observer.
func (o *PrometheusObserver) OnLoad(d time.Duration, _, _ int, err error) {
	o.loadLatency.WithLabelValues(status(err)).Observe(d.Seconds())
}

// OnSwap implements Observer.
func (o *PrometheusObserver) OnSwap(_ string, count, dim int) {
	o.swaps.Inc()
	o.count.Set(float64(count))
	o.dim.Set(float64(dim))
}
