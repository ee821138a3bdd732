// Package transcribe converts a finished utterance to text through an
// external speech-to-text backend.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neboloop/hotword/internal/config"
)

// ErrNoBackend is returned when no configured backend can run.
var ErrNoBackend = errors.New("no transcription backend available: install whisper-cli or set OPENAI_API_KEY")

// Request is one utterance to transcribe.
type Request struct {
	Samples    []int16
	SampleRate int
	// Language is a hint such as "es"; empty lets the backend detect it.
	Language string
}

// Transcriber turns PCM into text. An empty string with a nil error means
// nothing intelligible was said.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (string, error)
	Name() string
}

// New builds the configured backend, bounded by the configured timeout.
func New(c config.Transcribe) (Transcriber, error) {
	var t Transcriber
	switch c.Backend {
	case "whisper":
		w, err := NewWhisper(c.WhisperBinary, c.WhisperModel, c.Threads)
		if err != nil {
			return nil, err
		}
		t = w
	case "openai":
		if c.APIKey == "" {
			return nil, ErrNoBackend
		}
		t = NewOpenAI(c.APIKey, c.OpenAIModel)
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q", c.Backend)
	}
	if c.Timeout > 0 {
		t = WithTimeout(t, c.Timeout)
	}
	return t, nil
}

type timeoutTranscriber struct {
	Transcriber
	d time.Duration
}

// WithTimeout bounds every call to t.
func WithTimeout(t Transcriber, d time.Duration) Transcriber {
	return &timeoutTranscriber{Transcriber: t, d: d}
}

func (t *timeoutTranscriber) Transcribe(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Transcriber.Transcribe(ctx, req)
}
