package playback

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of one engine. All methods are
// safe on a nil receiver.
type Metrics struct {
	reg prometheus.Registerer

	framesDecoded  prometheus.Counter
	framesReleased prometheus.Counter
	audioSpans     prometheus.Counter
	audioSeconds   prometheus.Counter
	decodeErrors   *prometheus.CounterVec
	refills        *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	pacerLateness  prometheus.Histogram
}

// NewMetrics creates the engine collectors and registers them on reg. A nil
// reg leaves them unregistered. engineID is attached as a constant label so
// several engines can share one registry.
func NewMetrics(reg prometheus.Registerer, namespace, engineID string) *Metrics {
	if namespace == "" {
		namespace = "playback"
	}
	f := promauto.With(reg)
	labels := prometheus.Labels{"engine": engineID}
	return &Metrics{
		reg: reg,

		framesDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "video_frames_decoded_total",
			Help: "Video frames decoded and converted", ConstLabels: labels,
		}),
		framesReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "video_frames_released_total",
			Help: "Frames the caller marked as released", ConstLabels: labels,
		}),
		audioSpans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audio_spans_total",
			Help: "Audio spans delivered", ConstLabels: labels,
		}),
		audioSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audio_seconds_total",
			Help: "Seconds of audio delivered", ConstLabels: labels,
		}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decode_errors_total",
			Help: "Fatal decode errors by stream", ConstLabels: labels,
		}, []string{"stream"}),
		refills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_refills_total",
			Help: "Queue refills by the stream that triggered them", ConstLabels: labels,
		}, []string{"stream"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth_packets",
			Help: "Packets buffered per stream queue", ConstLabels: labels,
		}, []string{"stream"}),
		pacerLateness: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pacer_lateness_seconds",
			Help:        "How far past its due time each frame was released",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 1},
		}),
	}
}

func (m *Metrics) frameDecoded() {
	if m != nil {
		m.framesDecoded.Inc()
	}
}

func (m *Metrics) frameReleased(late time.Duration) {
	if m != nil {
		m.framesReleased.Inc()
		m.pacerLateness.Observe(late.Seconds())
	}
}

func (m *Metrics) audioSpan(d time.Duration) {
	if m != nil {
		m.audioSpans.Inc()
		m.audioSeconds.Add(d.Seconds())
	}
}

func (m *Metrics) decodeError(s StreamID) {
	if m != nil {
		m.decodeErrors.WithLabelValues(s.String()).Inc()
	}
}

func (m *Metrics) refilled(trigger StreamID) {
	if m != nil {
		m.refills.WithLabelValues(trigger.String()).Inc()
	}
}

func (m *Metrics) setQueueDepth(s StreamID, n int) {
	if m != nil {
		m.queueDepth.WithLabelValues(s.String()).Set(float64(n))
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesDecoded, m.framesReleased, m.audioSpans, m.audioSeconds,
		m.decodeErrors, m.refills, m.queueDepth, m.pacerLateness,
	}
}

// Unregister removes the collectors from the registry they were created
// on, so a closed engine stops being exported.
func (m *Metrics) Unregister() {
	if m == nil || m.reg == nil {
		return
	}
	for _, c := range m.collectors() {
		m.reg.Unregister(c)
	}
}
