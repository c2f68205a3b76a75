// Package metrics provides the Prometheus-backed implementation of
// gse.Recorder. Methods handle a nil receiver gracefully so a nil
// *Metrics acts as a no-op when metrics collection is disabled in
// configuration (zero overhead).
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/gse/pkg/gse"
)

// Metrics tracks Prometheus counters/gauges for encapsulation,
// refragmentation, and de-encapsulation activity. All metrics use the
// "gse_" prefix.
type Metrics struct {
	PDUsReceived     *prometheus.CounterVec
	PacketsEmitted   *prometheus.CounterVec
	Refragmentations *prometheus.CounterVec
	CRCFailures      *prometheus.CounterVec
	DataOverwritten  *prometheus.CounterVec
	ContextTimeouts  *prometheus.CounterVec
	FIFODepthGauge   *prometheus.GaugeVec
}

var (
	once     sync.Once
	instance *Metrics
)

// New creates and registers the GSE Prometheus metrics. If registerer
// is nil, prometheus.DefaultRegisterer is used. Idempotent via
// sync.Once: repeated calls (e.g. a command invoked more than once in a
// test process) return the same registered instance instead of
// panicking on duplicate registration.
func New(registerer prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m := &Metrics{
			PDUsReceived: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "gse_pdus_received_total", Help: "Total PDUs queued for encapsulation by QoS."},
				[]string{"qos"},
			),
			PacketsEmitted: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "gse_packets_emitted_total", Help: "Total GSE packets emitted by QoS and payload type."},
				[]string{"qos", "payload_type"},
			),
			Refragmentations: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "gse_refragmentations_total", Help: "Total packets split by the refragmenter."},
				[]string{"qos"},
			),
			CRCFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "gse_crc_failures_total", Help: "Total reassembled PDUs rejected for a CRC32 mismatch."},
				[]string{"frag_id"},
			),
			DataOverwritten: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "gse_data_overwritten_total", Help: "Total partial reassemblies discarded by a pre-empting First fragment."},
				[]string{"frag_id"},
			),
			ContextTimeouts: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "gse_context_timeouts_total", Help: "Total reassembly contexts dropped after the BBFrame timeout."},
				[]string{"frag_id"},
			),
			FIFODepthGauge: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{Name: "gse_fifo_depth", Help: "Current number of PDUs queued per QoS FIFO."},
				[]string{"qos"},
			),
		}
		registerer.MustRegister(
			m.PDUsReceived, m.PacketsEmitted, m.Refragmentations,
			m.CRCFailures, m.DataOverwritten, m.ContextTimeouts, m.FIFODepthGauge,
		)
		instance = m
	})
	return instance
}

func (m *Metrics) PDUReceived(qos int) {
	if m == nil {
		return
	}
	m.PDUsReceived.WithLabelValues(strconv.Itoa(qos)).Inc()
}

func (m *Metrics) PacketEmitted(qos int, pt gse.PayloadType) {
	if m == nil {
		return
	}
	m.PacketsEmitted.WithLabelValues(strconv.Itoa(qos), payloadTypeName(pt)).Inc()
}

func (m *Metrics) Refragmented(qos int) {
	if m == nil {
		return
	}
	m.Refragmentations.WithLabelValues(strconv.Itoa(qos)).Inc()
}

func (m *Metrics) CRCFailure(fragID int) {
	if m == nil {
		return
	}
	m.CRCFailures.WithLabelValues(strconv.Itoa(fragID)).Inc()
}

func (m *Metrics) DataOverwritten(fragID int) {
	if m == nil {
		return
	}
	m.DataOverwritten.WithLabelValues(strconv.Itoa(fragID)).Inc()
}

func (m *Metrics) ContextTimeout(fragID int) {
	if m == nil {
		return
	}
	m.ContextTimeouts.WithLabelValues(strconv.Itoa(fragID)).Inc()
}

// FIFODepth implements gse.Recorder.
func (m *Metrics) FIFODepth(qos, depth int) {
	if m == nil {
		return
	}
	m.FIFODepthGauge.WithLabelValues(strconv.Itoa(qos)).Set(float64(depth))
}

func payloadTypeName(pt gse.PayloadType) string {
	switch pt {
	case gse.Complete:
		return "complete"
	case gse.First:
		return "first"
	case gse.Subsequent:
		return "subsequent"
	case gse.Last:
		return "last"
	default:
		return "unknown"
	}
}
