// Package vumeter reports the raw input level at a fixed interval so an
// operator can tell a dead microphone from a quiet room.
package vumeter

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/events"
	"github.com/neboloop/hotword/internal/metrics"
)

// Meter accumulates frames and reports once per interval. It is driven by
// the capture loop and never blocks it.
type Meter struct {
	interval time.Duration
	out      io.Writer
	bus      *events.Bus
	metrics  *metrics.Metrics

	start   time.Time
	sumSq   float64
	samples int
	frames  int
	peak    int
}

// New returns a meter. A zero interval disables it. out receives one
// "[VU] rms=... peak=..." line per report; nil skips the line.
func New(interval time.Duration, out io.Writer, bus *events.Bus, m *metrics.Metrics) *Meter {
	return &Meter{interval: interval, out: out, bus: bus, metrics: m}
}

// Observe adds f, measured before gain. It reports when the interval since
// the first observed frame has elapsed and returns the report.
func (m *Meter) Observe(f audio.Frame, now time.Time) (events.VU, bool) {
	if m == nil || m.interval <= 0 {
		return events.VU{}, false
	}
	if m.start.IsZero() {
		m.start = now
	}
	for _, s := range f.Samples {
		v := float64(s)
		m.sumSq += v * v
	}
	m.samples += len(f.Samples)
	m.frames++
	if p := audio.Peak(f.Samples); p > m.peak {
		m.peak = p
	}
	if now.Sub(m.start) < m.interval {
		return events.VU{}, false
	}

	vu := events.VU{Peak: m.peak, Frames: m.frames, At: now}
	if m.samples > 0 {
		vu.RMS = math.Sqrt(m.sumSq / float64(m.samples))
	}
	m.report(vu)
	m.start, m.sumSq, m.samples, m.frames, m.peak = now, 0, 0, 0, 0
	return vu, true
}

func (m *Meter) report(vu events.VU) {
	if m.out != nil {
		fmt.Fprintf(m.out, "[VU] rms=%.0f peak=%d\n", vu.RMS, vu.Peak)
	}
	m.metrics.Level(vu.RMS)
	_ = events.Emit(m.bus, events.TopicVU, vu)
}
