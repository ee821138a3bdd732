package cli

import (
	"fmt"
	"log/slog"

	"github.com/neboloop/hotword/internal/assistant"
	"github.com/neboloop/hotword/internal/config"
	"github.com/neboloop/hotword/internal/dispatch"
	"github.com/neboloop/hotword/internal/playback"
	"github.com/neboloop/hotword/internal/transcribe"
)

func newTranscriber(c *config.Config) (transcribe.Transcriber, error) {
	t, err := transcribe.New(c.Transcribe)
	if err != nil {
		return nil, fmt.Errorf("transcriber %s: %w", c.Transcribe.Backend, err)
	}
	return transcribe.WithTimeout(t, c.Transcribe.Timeout), nil
}

func newAcker(c *config.Config, log *slog.Logger) *playback.Acker {
	player := playback.NewCommandPlayer(c.Playback.Command, c.Audio.SampleRate, c.Capture.PulseServer)
	return playback.NewAcker(player, c.Playback, log)
}

func newSpeaker(c *config.Config) dispatch.Speaker {
	if len(c.Speak.Command) == 0 {
		return nil
	}
	return playback.NewCommandSpeaker(c.Speak.Command, c.Capture.PulseServer)
}

func newAssistant(c *config.Config) *assistant.Client {
	return assistant.NewClient(c.Assistant.URL, c.Assistant.Timeout)
}
