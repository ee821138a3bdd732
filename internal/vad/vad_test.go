package vad

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/config"
)

type fakeClassifier struct {
	probs  []float64
	errAt  int
	calls  int
	resets int
}

func (f *fakeClassifier) Probability([]int16) (float64, error) {
	f.calls++
	if f.errAt > 0 && f.calls >= f.errAt {
		return 0, errors.New("inference failed")
	}
	return f.probs[(f.calls-1)%len(f.probs)], nil
}

func (f *fakeClassifier) Reset()       { f.resets++ }
func (f *fakeClassifier) Close() error { return nil }

func frame(level int16) audio.Frame {
	s := make([]int16, 512)
	for i := range s {
		if i%2 == 0 {
			s[i] = level
		} else {
			s[i] = -level
		}
	}
	return audio.Frame{Samples: s}
}

func TestEnergyGate(t *testing.T) {
	g := &EnergyGate{Threshold: 700}
	assert.False(t, g.IsSpeech(frame(699)))
	assert.True(t, g.IsSpeech(frame(700)))
}

func TestClassifierGateUsesProbability(t *testing.T) {
	c := &fakeClassifier{probs: []float64{0.9, 0.1}}
	g := NewClassifierGate(c, 0.5, &EnergyGate{Threshold: 700}, slog.New(slog.DiscardHandler))

	assert.True(t, g.IsSpeech(frame(0)))
	assert.False(t, g.IsSpeech(frame(30000)))
	g.Reset()
	assert.Equal(t, 1, c.resets)
	assert.False(t, g.Degraded())
}

func TestClassifierGateDegradesOnce(t *testing.T) {
	c := &fakeClassifier{probs: []float64{0.9}, errAt: 2}
	g := NewClassifierGate(c, 0.5, &EnergyGate{Threshold: 700}, slog.New(slog.DiscardHandler))
	var degraded int
	g.OnDegrade(func(error) { degraded++ })

	assert.True(t, g.IsSpeech(frame(0)))
	// classifier fails: energy decides from now on
	assert.False(t, g.IsSpeech(frame(10)))
	assert.True(t, g.IsSpeech(frame(5000)))
	assert.False(t, g.IsSpeech(frame(10)))

	assert.True(t, g.Degraded())
	assert.Equal(t, 1, degraded)
	assert.Equal(t, 2, c.calls, "classifier is not consulted after degrading")
}

func TestNewFallsBackToEnergy(t *testing.T) {
	g := New(config.VAD{Backend: "silero", Model: "/nonexistent/silero.onnx", Threshold: 0.5}, 700, "", 16000, slog.New(slog.DiscardHandler))
	eg, ok := g.(*EnergyGate)
	require.True(t, ok)
	assert.Equal(t, 700.0, eg.Threshold)

	g = New(config.VAD{Backend: "energy"}, 900, "", 16000, slog.New(slog.DiscardHandler))
	assert.IsType(t, &EnergyGate{}, g)
}
