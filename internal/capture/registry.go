package capture

import (
	"fmt"
	"os"

	"github.com/neboloop/hotword/internal/config"
)

// New builds the configured source.
func New(c config.Capture, a config.Audio) (Source, error) {
	switch c.Source {
	case "command":
		return NewPulseSource(c.Command, a.SampleRate, c.Device, c.PulseServer), nil
	case "file":
		return &FileSource{Path: c.Path}, nil
	case "wav":
		return &WAVSource{Path: c.Path, SampleRate: a.SampleRate}, nil
	case "stdin":
		return &ReaderSource{Label: "stdin", R: os.Stdin}, nil
	case "portaudio":
		return newPortAudioSource(a.SampleRate, a.FrameLength)
	}
	return nil, fmt.Errorf("capture: unknown source %q", c.Source)
}
