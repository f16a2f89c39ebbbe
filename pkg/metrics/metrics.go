package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of one process. Every method is
// safe on a nil receiver so components can be built without metrics in
// tests.
type Collector struct {
	registry *prometheus.Registry

	articles        *prometheus.CounterVec
	oracleDuration  prometheus.Histogram
	recordsResolved *prometheus.CounterVec
	conceptEdges    prometheus.Counter
	articleEdges    *prometheus.CounterVec
	pairFailures    *prometheus.CounterVec
	mirrorWrites    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewCollector creates a collector on its own registry with Go runtime and
// process metrics included.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_processed_total",
			Help:      "Articles that finished processing, by final status",
		}, []string{"status"}),
		oracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_duration_seconds",
			Help:      "Duration of extraction oracle calls",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80, 160},
		}),
		recordsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_resolved_total",
			Help:      "Canonical records resolved, by kind and whether they were created",
		}, []string{"kind", "created"}),
		conceptEdges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concept_connections_created_total",
			Help:      "Similarity connections persisted between concepts",
		}),
		articleEdges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "article_relationships_created_total",
			Help:      "Article relationships created, by type",
		}, []string{"type"}),
		pairFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pair_failures_total",
			Help:      "Pairs that failed to link, by component",
		}, []string{"component"}),
		mirrorWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_writes_total",
			Help:      "Graph mirror batches, by outcome",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		c.articles,
		c.oracleDuration,
		c.recordsResolved,
		c.conceptEdges,
		c.articleEdges,
		c.pairFailures,
		c.mirrorWrites,
		c.httpRequests,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ArticleProcessed(status string) {
	if c == nil {
		return
	}
	c.articles.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveOracle(d time.Duration) {
	if c == nil {
		return
	}
	c.oracleDuration.Observe(d.Seconds())
}

func (c *Collector) RecordResolved(kind string, created bool) {
	if c == nil {
		return
	}
	label := "false"
	if created {
		label = "true"
	}
	c.recordsResolved.WithLabelValues(kind, label).Inc()
}

func (c *Collector) ConceptConnections(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.conceptEdges.Add(float64(n))
}

func (c *Collector) ArticleRelationship(relType string) {
	if c == nil {
		return
	}
	c.articleEdges.WithLabelValues(relType).Inc()
}

func (c *Collector) PairFailures(component string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.pairFailures.WithLabelValues(component).Add(float64(n))
}

func (c *Collector) MirrorWrite(outcome string) {
	if c == nil {
		return
	}
	c.mirrorWrites.WithLabelValues(outcome).Inc()
}

func (c *Collector) HTTPRequest(method, route, status string) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, status).Inc()
}
