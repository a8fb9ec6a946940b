// Package metrics exposes the engine's operational gauges on a private
// Prometheus registry, one per engine instance so tests can run isolated
// engines without global collector collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds one engine's gauges.
type Set struct {
	registry *prometheus.Registry

	RSSBytes         prometheus.Gauge
	BudgetBytes      prometheus.Gauge
	ThresholdState   prometheus.Gauge
	CacheEntries     prometheus.Gauge
	OpenTransactions prometheus.Gauge
	PDGNodes         prometheus.Gauge
	PDGEdges         prometheus.Gauge
	IndexedFiles     prometheus.Gauge
}

// New builds and registers the gauge set.
func New() *Set {
	s := &Set{registry: prometheus.NewRegistry()}
	mk := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leindex",
			Name:      name,
			Help:      help,
		})
		s.registry.MustRegister(g)
		return g
	}
	s.RSSBytes = mk("rss_bytes", "Resident set size at the last sample.")
	s.BudgetBytes = mk("memory_budget_bytes", "Configured total memory budget.")
	s.ThresholdState = mk("memory_threshold_state", "0 normal, 1 soft, 2 hard, 3 emergency.")
	s.CacheEntries = mk("cache_entries", "Entries resident in the incremental cache.")
	s.OpenTransactions = mk("open_transactions", "Write transactions currently in flight.")
	s.PDGNodes = mk("pdg_nodes", "Live nodes in the dependence graph.")
	s.PDGEdges = mk("pdg_edges", "Live edges in the dependence graph.")
	s.IndexedFiles = mk("indexed_files", "Files covered by the last pipeline run.")
	return s
}

// Handler serves the registry in Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
