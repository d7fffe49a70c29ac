// Package observability holds the Prometheus metrics of the engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EncodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curricula_encode_total",
			Help: "Total number of encoder calls by model and result",
		},
		[]string{"model", "result"},
	)
	EncodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curricula_encode_duration_seconds",
			Help:    "Encoder call duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"model"},
	)
	IndexCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curricula_index_cache_total",
			Help: "Embedding cache lookups by catalog and result (hit, rebuild, invalid)",
		},
		[]string{"catalog", "result"},
	)
	SkillClusters = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "curricula_skill_clusters",
			Help:    "Distribution of skill cluster counts per profession query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
	ModelSwitchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curricula_model_switch_total",
			Help: "Total number of completed model switches",
		},
		[]string{"model"},
	)
)

// Registry holds every metric of the engine. It is separate from the
// default registry so tests and the textfile writer see only our series.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(EncodeTotal)
	Registry.MustRegister(EncodeDuration)
	Registry.MustRegister(IndexCacheTotal)
	Registry.MustRegister(SkillClusters)
	Registry.MustRegister(ModelSwitchTotal)
}

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheRebuild = "rebuild"
	CacheInvalid = "invalid"
)

// ObserveCache counts one embedding cache lookup.
func ObserveCache(catalog, result string) {
	if catalog == "" {
		catalog = "unknown"
	}
	IndexCacheTotal.WithLabelValues(catalog, result).Inc()
}

// ObserveEncode records one encoder call.
func ObserveEncode(model string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EncodeTotal.WithLabelValues(model, result).Inc()
	EncodeDuration.WithLabelValues(model).Observe(seconds)
}

// ObserveSkillClusters records the number of clusters built for one query.
func ObserveSkillClusters(n int) {
	if n >= 0 {
		SkillClusters.Observe(float64(n))
	}
}

// WriteTextfile writes every registered series to path in the node-exporter
// textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
