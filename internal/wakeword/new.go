package wakeword

import (
	"log/slog"

	"github.com/neboloop/hotword/internal/config"
	"github.com/neboloop/hotword/internal/transcribe"
)

// New builds the configured scorer. It returns nil and no error for the
// "none" backend.
func New(c *config.Config, t transcribe.Transcriber, log *slog.Logger) (Scorer, error) {
	switch c.Wake.Backend {
	case "none":
		return nil, nil
	case "phrase":
		if t == nil {
			return nil, ErrUnavailable
		}
		return NewPhrase(t, c.Wake.Keywords, c.Wake.Sensitivity, PhraseOptions{
			SampleRate:    c.Audio.SampleRate,
			FrameLength:   c.Audio.FrameLength,
			Threshold:     c.Endpoint.SilenceRMS,
			MinPhrase:     c.Wake.MinPhrase,
			MaxPhrase:     c.Wake.MaxPhrase,
			PhraseSilence: c.Wake.PhraseSilence,
			Language:      c.Transcribe.Language,
		}), nil
	default:
		loader := ONNXLoader(c.Models.RuntimeLib, c.Wake.InputName, c.Wake.OutputName)
		w, err := LoadWindowed(c.Wake.ModelDir, c.Wake.Keywords, c.Wake.Window, c.Wake.Sensitivity, loader, log)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}
