package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds file access metrics for direct instrumentation in the
// serving layers.
type Metrics struct {
	Lookups    prometheus.Counter
	Opens      prometheus.Counter
	OpenErrors prometheus.Counter
	ReadBytes  prometheus.Counter
}

// New creates and registers file access metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "srcfs",
			Subsystem: "files",
			Name:      "lookups_total",
			Help:      "Total path lookups against the mount chain.",
		}),
		Opens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "srcfs",
			Subsystem: "files",
			Name:      "opens_total",
			Help:      "Total files opened for reading.",
		}),
		OpenErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "srcfs",
			Subsystem: "files",
			Name:      "open_errors_total",
			Help:      "File opens that failed.",
		}),
		ReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "srcfs",
			Subsystem: "files",
			Name:      "read_bytes_total",
			Help:      "Total bytes served from mounted filesystems.",
		}),
	}

	reg.MustRegister(
		m.Lookups,
		m.Opens,
		m.OpenErrors,
		m.ReadBytes,
	)

	return m
}
