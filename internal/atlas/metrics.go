package atlas

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics метрики сборки атласа.
//
// * atlas_builds_total{result} - counter
// * atlas_build_duration_seconds - histogram
// * atlas_textures - gauge (количество текстур в текущем атласе)
type Metrics struct {
	builds   *prometheus.CounterVec
	duration prometheus.Histogram
	textures prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil: без регистрации).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_builds_total",
			Help: "Количество сборок атласа текстур.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "atlas_build_duration_seconds",
			Help:    "Длительность сборки атласа текстур.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		textures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atlas_textures",
			Help: "Количество текстур в текущем атласе.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.builds, m.duration, m.textures)
	}
	return m
}
