package vad

import (
	"log/slog"

	"github.com/neboloop/hotword/internal/config"
)

// New builds the configured gate. When the classifier cannot be loaded the
// energy gate is returned and the failure is logged.
func New(c config.VAD, silenceRMS float64, runtimeLib string, sampleRate int, log *slog.Logger) Gate {
	energy := &EnergyGate{Threshold: silenceRMS}
	if c.Backend != "silero" {
		return energy
	}
	s, err := NewSilero(c.Model, runtimeLib, sampleRate)
	if err != nil {
		log.Warn("speech classifier unavailable, using energy gate", "model", c.Model, "error", err)
		return energy
	}
	log.Info("speech classifier loaded", "model", c.Model)
	return NewClassifierGate(s, c.Threshold, energy, log)
}
