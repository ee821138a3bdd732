// Package vad decides whether a frame carries speech. The pipeline uses it
// to start captures and to detect the end of speech when no wake-word
// scorer is active.
package vad

import (
	"log/slog"
	"sync"

	"github.com/neboloop/hotword/internal/audio"
)

// Gate detects whether a frame contains speech.
type Gate interface {
	// IsSpeech returns true if the frame contains speech.
	IsSpeech(f audio.Frame) bool
	// Reset clears internal state (call between utterances).
	Reset()
}

// Classifier is a frame-level speech model returning a probability.
type Classifier interface {
	Probability(samples []int16) (float64, error)
	Reset()
	Close() error
}

// EnergyGate reports speech when the frame RMS reaches Threshold, in raw
// int16 units.
type EnergyGate struct {
	Threshold float64
}

func (g *EnergyGate) IsSpeech(f audio.Frame) bool {
	return audio.RMS(f.Samples) >= g.Threshold
}

func (g *EnergyGate) Reset() {}

// ClassifierGate asks a Classifier and degrades permanently to a fallback
// gate after the first classifier error.
type ClassifierGate struct {
	c         Classifier
	threshold float64
	fallback  Gate
	log       *slog.Logger
	onDegrade func(error)

	mu       sync.Mutex
	degraded bool
}

// NewClassifierGate wraps c. Speech is reported when the probability is at
// least threshold.
func NewClassifierGate(c Classifier, threshold float64, fallback Gate, log *slog.Logger) *ClassifierGate {
	return &ClassifierGate{c: c, threshold: threshold, fallback: fallback, log: log}
}

// OnDegrade registers a callback run once when the classifier is dropped.
func (g *ClassifierGate) OnDegrade(fn func(error)) {
	g.onDegrade = fn
}

func (g *ClassifierGate) IsSpeech(f audio.Frame) bool {
	if g.Degraded() {
		return g.fallback.IsSpeech(f)
	}
	p, err := g.c.Probability(f.Samples)
	if err != nil {
		g.degrade(err)
		return g.fallback.IsSpeech(f)
	}
	return p >= g.threshold
}

func (g *ClassifierGate) Reset() {
	if !g.Degraded() {
		g.c.Reset()
	}
	g.fallback.Reset()
}

// Degraded reports whether the gate has fallen back to energy detection.
func (g *ClassifierGate) Degraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}

func (g *ClassifierGate) degrade(err error) {
	g.mu.Lock()
	if g.degraded {
		g.mu.Unlock()
		return
	}
	g.degraded = true
	g.mu.Unlock()

	if g.log != nil {
		g.log.Warn("speech classifier failed, using energy gate", "error", err)
	}
	if g.onDegrade != nil {
		g.onDegrade(err)
	}
}

// Close releases the classifier.
func (g *ClassifierGate) Close() error {
	return g.c.Close()
}
