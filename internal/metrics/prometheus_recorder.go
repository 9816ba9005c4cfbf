package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "taxosync"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	syncDuration *prom.HistogramVec
	syncResults  *prom.CounterVec
	itemsLoaded  *prom.CounterVec
	coalesced    *prom.CounterVec
	retries      *prom.CounterVec
	inFlight     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
// A nil registry gets a private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		syncDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of a single taxonomy refresh (load + persist)",
			Buckets:   prom.DefBuckets,
		}, []string{"taxonomy"}),
		syncResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sync_results_total",
			Help:      "Taxonomy refresh outcomes",
		}, []string{"taxonomy", "result"}),
		itemsLoaded: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "items_loaded_total",
			Help:      "Items fetched and stored per taxonomy",
		}, []string{"taxonomy"}),
		coalesced: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sync_coalesced_total",
			Help:      "Refresh requests that joined an in-flight refresh of the same taxonomy",
		}, []string{"taxonomy"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "loader_retries_total",
			Help:      "Loader retries after transient failures",
		}, []string{"taxonomy"}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_in_flight",
			Help:      "Taxonomy refreshes currently loading",
		}),
	}
	reg.MustRegister(pr.syncDuration, pr.syncResults, pr.itemsLoaded, pr.coalesced, pr.retries, pr.inFlight)
	return pr
}

func (p *PrometheusRecorder) ObserveSyncDuration(taxonomy string, d time.Duration) {
	if p == nil {
		return
	}
	p.syncDuration.WithLabelValues(taxonomy).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSyncResult(taxonomy string, result ResultLabel) {
	if p == nil {
		return
	}
	p.syncResults.WithLabelValues(taxonomy, string(result)).Inc()
}

func (p *PrometheusRecorder) AddItemsLoaded(taxonomy string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.itemsLoaded.WithLabelValues(taxonomy).Add(float64(n))
}

func (p *PrometheusRecorder) IncCoalesced(taxonomy string) {
	if p == nil {
		return
	}
	p.coalesced.WithLabelValues(taxonomy).Inc()
}

func (p *PrometheusRecorder) IncLoaderRetry(taxonomy string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(taxonomy).Inc()
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil {
		return
	}
	p.inFlight.Set(float64(n))
}
