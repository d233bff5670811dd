package metrics

import (
	"net/netip"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type info struct {
	description *prometheus.Desc
	supplier    func(m ConnectionMetrics, labelValues []string) prometheus.Metric
}

// Collector exposes a socket's per-connection counters as Prometheus
// metrics, one series per peer address.
//
// The transport engine is single-threaded, so the collector never touches
// it from the scrape goroutine. Instead the owner calls Observe between
// updates to refresh a snapshot, and Collect serves that snapshot.
type Collector struct {
	mu       sync.Mutex
	snapshot map[netip.AddrPort]ConnectionMetrics
	infos    []info
}

// NewCollector creates a collector for one metrics source. prefix is
// prepended to every metric name; constLabels is meant for labels whose
// values are constant for the whole process. The source's socket id is
// added as a const label automatically.
func NewCollector(prefix string, constLabels prometheus.Labels, source Source) *Collector {
	c := &Collector{
		snapshot: make(map[netip.AddrPort]ConnectionMetrics),
	}

	labels := prometheus.Labels{"socket_id": source.ID()}
	for name, value := range constLabels {
		labels[name] = value
	}

	c.addMetrics(prefix, labels)
	return c
}

func (c *Collector) addMetrics(prefix string, constLabels prometheus.Labels) {
	variableLabels := []string{"remote_addr"}

	counter := func(name, help string, value func(m ConnectionMetrics) float64) info {
		desc := prometheus.NewDesc(prefix+name, help, variableLabels, constLabels)
		return info{
			description: desc,
			supplier: func(m ConnectionMetrics, labelValues []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, value(m), labelValues...)
			},
		}
	}

	rttDesc := prometheus.NewDesc(prefix+"rtt_seconds", "Averaged round trip time to the peer.", variableLabels, constLabels)

	c.infos = []info{
		counter("sent_packets_total", "Datagrams flushed to the wire for this connection.", func(m ConnectionMetrics) float64 {
			return float64(m.SentPackets)
		}),
		counter("sent_bytes_total", "Bytes flushed to the wire for this connection.", func(m ConnectionMetrics) float64 {
			return float64(m.SentBytes)
		}),
		counter("reliable_messages_total", "Reliable messages queued for sending.", func(m ConnectionMetrics) float64 {
			return float64(m.ReliableMessages)
		}),
		counter("unreliable_messages_total", "Unreliable messages queued for sending.", func(m ConnectionMetrics) float64 {
			return float64(m.UnreliableMessages)
		}),
		{
			description: rttDesc,
			supplier: func(m ConnectionMetrics, labelValues []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(rttDesc, prometheus.GaugeValue, m.RTT.Seconds(), labelValues...)
			},
		},
	}
}

// Observe refreshes the collector's snapshot from the source. Call it from
// the goroutine that drives the socket, between updates.
func (c *Collector) Observe(source Source) {
	snapshot := make(map[netip.AddrPort]ConnectionMetrics)
	for _, addr := range source.Addresses() {
		if m, ok := source.ConnectionMetrics(addr); ok {
			snapshot[addr] = m
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range c.infos {
		descs <- info.description
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for addr, m := range c.snapshot {
		labelValues := []string{addr.String()}
		for _, info := range c.infos {
			ch <- info.supplier(m, labelValues)
		}
	}
}

var _ prometheus.Collector = (*Collector)(nil)
