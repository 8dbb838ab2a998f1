// Package metrics exposes Prometheus collectors for the HTTP surface and
// the storage engine, grounded on the original implementation's request
// counter/histogram label set (method, route, status, instance, index,
// organization). The original also scrapes its RocksDB engine's text stats
// with a regex and republishes them as gauges; BadgerDB exposes structured
// size accessors instead; see Registry.CollectStorage.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Labels are attached to every HTTP metric, mirroring the original's
// process-wide instance/index/organization identity triple.
type Labels struct {
	InstanceID     string
	IndexID        string
	OrganizationID string
}

// StorageSizer reports the durable store's on-disk footprint. Implemented
// by internal/store.Store.
type StorageSizer interface {
	Size() (lsm, vlog int64)
}

// Registry holds every collector this process publishes.
type Registry struct {
	labels Labels
	reg    *prometheus.Registry

	requests     *prometheus.CounterVec
	requestTime  *prometheus.HistogramVec
	storageBytes *prometheus.GaugeVec
}

// New builds a registry with labels bound to every request/storage metric.
func New(labels Labels) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		labels: labels,
		reg:    reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hiddb_n_requests_total",
			Help: "Total HTTP requests served.",
		}, []string{"method", "route", "status", "instance_id", "index_id", "organization_id"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "hiddb_request_duration_seconds",
			Help: "HTTP request latency in seconds.",
		}, []string{"method", "route", "status", "instance_id", "index_id", "organization_id"}),
		storageBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hiddb_storage_bytes",
			Help: "Durable store on-disk size by component (lsm, vlog).",
		}, []string{"component", "instance_id", "index_id", "organization_id"}),
	}
	reg.MustRegister(r.requests, r.requestTime, r.storageBytes, prometheus.NewGoCollector())
	return r
}

// Handler serves the registry in the Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	labels := []string{method, route, strconv.Itoa(status), r.labels.InstanceID, r.labels.IndexID, r.labels.OrganizationID}
	r.requests.WithLabelValues(labels...).Inc()
	r.requestTime.WithLabelValues(labels...).Observe(elapsed.Seconds())
}

// CollectStorage republishes the durable store's size accessors as gauges.
// Call periodically (e.g. from a ticker in cmd/hiddb) rather than per
// request — BadgerDB's Size() walks the LSM tree manifest.
func (r *Registry) CollectStorage(s StorageSizer) {
	lsm, vlog := s.Size()
	base := []string{"", r.labels.InstanceID, r.labels.IndexID, r.labels.OrganizationID}
	base[0] = "lsm"
	r.storageBytes.WithLabelValues(base...).Set(float64(lsm))
	base[0] = "vlog"
	r.storageBytes.WithLabelValues(base...).Set(float64(vlog))
}
