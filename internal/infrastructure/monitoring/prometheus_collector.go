package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	roomsActive      prometheus.Gauge
	clientsConnected prometheus.Gauge

	// Counters
	messagesRelayed       *prometheus.CounterVec
	segmentsUploaded      prometheus.Counter
	segmentUploadFailures prometheus.Counter
	segmentBytesUploaded  prometheus.Counter
	artifactBytes         prometheus.Counter

	// Histograms
	reassemblyDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paircall_rooms_active",
			Help: "Number of live call rooms",
		}),

		clientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paircall_clients_connected",
			Help: "Number of open signaling connections",
		}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paircall_messages_relayed_total",
			Help: "Negotiation messages relayed between peers",
		}, []string{"kind"}),

		segmentsUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paircall_segments_uploaded_total",
			Help: "Capture segments uploaded to object storage",
		}),

		segmentUploadFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paircall_segment_upload_failures_total",
			Help: "Capture segment uploads that failed and were skipped",
		}),

		segmentBytesUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paircall_segment_bytes_uploaded_total",
			Help: "Total bytes of uploaded capture segments",
		}),

		artifactBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paircall_artifact_bytes_total",
			Help: "Total bytes of combined recording artifacts",
		}),

		reassemblyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paircall_reassembly_duration_seconds",
			Help:    "Duration of recording reassembly runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (p *PrometheusCollector) RoomCreated() {
	p.roomsActive.Inc()
}

func (p *PrometheusCollector) RoomDeleted() {
	p.roomsActive.Dec()
}

func (p *PrometheusCollector) ClientConnected() {
	p.clientsConnected.Inc()
}

func (p *PrometheusCollector) ClientDisconnected() {
	p.clientsConnected.Dec()
}

func (p *PrometheusCollector) MessageRelayed(kind string) {
	p.messagesRelayed.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) SegmentUploaded(bytes int) {
	p.segmentsUploaded.Inc()
	p.segmentBytesUploaded.Add(float64(bytes))
}

func (p *PrometheusCollector) SegmentUploadFailed() {
	p.segmentUploadFailures.Inc()
}

func (p *PrometheusCollector) ReassemblyCompleted(duration time.Duration, artifactBytes int) {
	p.reassemblyDuration.Observe(duration.Seconds())
	p.artifactBytes.Add(float64(artifactBytes))
}
