package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ozxybox/srctools/filesys"
)

// ChainCollector implements prometheus.Collector for the mount chain.
// It inspects the chain lazily on each Prometheus scrape rather than
// maintaining duplicate state.
type ChainCollector struct {
	chain *filesys.Chain

	// Per-mount descriptors (labels: root, kind)
	mountFiles *prometheus.Desc

	// Aggregate descriptors (no per-mount labels)
	mountsLoaded *prometheus.Desc
}

var mountLabels = []string{"root", "kind"}

// NewChainCollector creates a collector that scrapes mount stats on demand.
func NewChainCollector(chain *filesys.Chain) *ChainCollector {
	return &ChainCollector{
		chain: chain,

		mountFiles: prometheus.NewDesc(
			"srcfs_mount_files",
			"Number of files indexed in the mount.",
			mountLabels, nil,
		),
		mountsLoaded: prometheus.NewDesc(
			"srcfs_mounts_loaded",
			"Total number of mounted filesystems.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *ChainCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.mountFiles
	ch <- c.mountsLoaded
}

// Collect implements prometheus.Collector.
func (c *ChainCollector) Collect(ch chan<- prometheus.Metric) {
	entries := c.chain.Entries()

	for _, e := range entries {
		// Directory mounts have no index, so no file count to report.
		counter, ok := e.System.(interface{ Count() int })
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.mountFiles, prometheus.GaugeValue,
			float64(counter.Count()),
			e.System.Root(), filesys.Kind(e.System),
		)
	}

	ch <- prometheus.MustNewConstMetric(c.mountsLoaded, prometheus.GaugeValue, float64(len(entries)))
}
