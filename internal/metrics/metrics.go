// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hotword"

// Metrics owns a private registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	frames         prometheus.Counter
	discarded      prometheus.Counter
	detections     *prometheus.CounterVec
	utterances     *prometheus.CounterVec
	dispatchTime   prometheus.Histogram
	utteranceAudio prometheus.Histogram
	state          *prometheus.GaugeVec
	level          prometheus.Gauge
	sourceOpens    *prometheus.CounterVec
	fallback       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Audio frames read from the capture source",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_discarded_total",
			Help:      "Frames dropped during cooldown or while finalizing",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_detections_total",
			Help:      "Wake detections that armed a capture",
		}, []string{"keyword"}),
		utterances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		dispatchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Transcription plus assistant round trip",
			Buckets:   []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60},
		}),
		utteranceAudio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_audio_seconds",
			Help:      "Captured audio length per utterance",
			Buckets:   []float64{.5, 1, 1.5, 2, 3, 4, 6, 8, 12},
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current endpointer state",
		}, []string{"state"}),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_rms",
			Help:      "Input RMS over the last VU interval",
		}),
		sourceOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_opens_total",
			Help:      "Capture source open attempts",
		}, []string{"result"}),
		fallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fallback_mode",
			Help:      "1 when running without a wake scorer",
		}),
	}
	m.registry.MustRegister(
		m.frames, m.discarded, m.detections, m.utterances, m.dispatchTime,
		m.utteranceAudio, m.state, m.level, m.sourceOpens, m.fallback,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Frame(discarded bool) {
	if m == nil {
		return
	}
	m.frames.Inc()
	if discarded {
		m.discarded.Inc()
	}
}

func (m *Metrics) Detection(keyword string) {
	if m != nil {
		m.detections.WithLabelValues(keyword).Inc()
	}
}

func (m *Metrics) Utterance(trigger, outcome string, audio, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.utterances.WithLabelValues(trigger, outcome).Inc()
	if audio > 0 {
		m.utteranceAudio.Observe(audio.Seconds())
	}
	if elapsed > 0 {
		m.dispatchTime.Observe(elapsed.Seconds())
	}
}

// State marks to as the only active state.
func (m *Metrics) State(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.state.WithLabelValues(from).Set(0)
	}
	m.state.WithLabelValues(to).Set(1)
}

func (m *Metrics) Level(rms float64) {
	if m != nil {
		m.level.Set(rms)
	}
}

func (m *Metrics) SourceOpen(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.sourceOpens.WithLabelValues(result).Inc()
}

func (m *Metrics) Fallback(on bool) {
	if m == nil {
		return
	}
	if on {
		m.fallback.Set(1)
	} else {
		m.fallback.Set(0)
	}
}
