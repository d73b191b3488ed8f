package mesher

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics метрики построения мешей
type Metrics struct {
	chunks      *prometheus.CounterVec
	faces       prometheus.Counter
	duration    prometheus.Histogram
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil: без регистрации).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesher_chunks_rendered_total",
			Help: "Количество построенных мешей чанков.",
		}, []string{"result"}),
		faces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesher_faces_emitted_total",
			Help: "Количество выданных граней.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mesher_render_duration_seconds",
			Help:    "Длительность построения меша чанка.",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesher_cache_hits_total",
			Help: "Попадания в кеш мешей.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesher_cache_misses_total",
			Help: "Промахи кеша мешей.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.chunks, m.faces, m.duration, m.cacheHits, m.cacheMisses)
	}
	return m
}
