package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dbehnke/reflector-nexus/pkg/network"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// Collector collects reflector metrics, labelled by protocol mode
type Collector struct {
	registry *prometheus.Registry

	// Traffic metrics
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	bytesReceived  *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	framesHandled  *prometheus.CounterVec

	// Peer metrics
	peersConnected *prometheus.GaugeVec
	rejections     *prometheus.CounterVec

	// Call metrics
	callsTotal   *prometheus.CounterVec
	callsActive  *prometheus.GaugeVec
	callDuration *prometheus.HistogramVec

	reports *prometheus.CounterVec
}

var (
	_ reflector.Metrics = (*Collector)(nil)
	_ report.Sink       = (*Collector)(nil)
)

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		framesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_frames_received_total",
			Help: "Total datagrams received",
		}, []string{"mode"}),
		framesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_frames_sent_total",
			Help: "Total datagrams sent",
		}, []string{"mode"}),
		bytesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_bytes_received_total",
			Help: "Total bytes received",
		}, []string{"mode"}),
		bytesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_bytes_sent_total",
			Help: "Total bytes sent",
		}, []string{"mode"}),
		framesHandled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_frames_handled_total",
			Help: "Inbound frames by classification",
		}, []string{"mode", "kind"}),
		peersConnected: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reflector_peers_connected",
			Help: "Number of currently linked peers",
		}, []string{"mode"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_registrations_rejected_total",
			Help: "Link requests refused by admission control",
		}, []string{"mode"}),
		callsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_calls_total",
			Help: "Total calls started",
		}, []string{"mode"}),
		callsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reflector_calls_active",
			Help: "Calls currently in progress",
		}, []string{"mode"}),
		callDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reflector_call_duration_seconds",
			Help:    "Duration of finished calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_reports_total",
			Help: "Reports emitted, by type",
		}, []string{"type"}),
	}
}

// Registry returns the registry the collector's metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// FrameHandled records the classification of an inbound frame
func (c *Collector) FrameHandled(mode, kind string) {
	c.framesHandled.WithLabelValues(mode, kind).Inc()
}

// PeersConnected records the current peer count of a mode
func (c *Collector) PeersConnected(mode string, n int) {
	c.peersConnected.WithLabelValues(mode).Set(float64(n))
}

// CallStarted records a call start
func (c *Collector) CallStarted(mode string) {
	c.callsTotal.WithLabelValues(mode).Inc()
	c.callsActive.WithLabelValues(mode).Inc()
}

// CallEnded records a call end and its duration
func (c *Collector) CallEnded(mode string, d time.Duration) {
	c.callsActive.WithLabelValues(mode).Dec()
	c.callDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RegistrationRejected records a refused link request
func (c *Collector) RegistrationRejected(mode string) {
	c.rejections.WithLabelValues(mode).Inc()
}

// Send counts a report by type
func (c *Collector) Send(r report.Report) {
	c.reports.WithLabelValues(r.Type.String()).Inc()
}

// Observer returns a transport observer counting traffic for mode
func (c *Collector) Observer(mode string) network.Observer {
	return &trafficObserver{
		framesIn:  c.framesReceived.WithLabelValues(mode),
		framesOut: c.framesSent.WithLabelValues(mode),
		bytesIn:   c.bytesReceived.WithLabelValues(mode),
		bytesOut:  c.bytesSent.WithLabelValues(mode),
	}
}

type trafficObserver struct {
	framesIn, framesOut prometheus.Counter
	bytesIn, bytesOut   prometheus.Counter
}

func (o *trafficObserver) FrameReceived(bytes int) {
	o.framesIn.Inc()
	o.bytesIn.Add(float64(bytes))
}

func (o *trafficObserver) FrameSent(bytes int) {
	o.framesOut.Inc()
	o.bytesOut.Add(float64(bytes))
}
