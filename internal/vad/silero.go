//go:build cgo

package vad

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/onnxrt"
)

// Silero runs the Silero VAD ONNX model. At 16 kHz it expects 512-sample
// chunks.
type Silero struct {
	session    *ort.DynamicAdvancedSession
	state      *ort.Tensor[float32] // hidden state [2, 1, 64]
	sampleRate int64
}

// NewSilero loads the model at path.
func NewSilero(path, runtimeLib string, sampleRate int) (*Silero, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("silero model: %w", err)
	}
	if err := onnxrt.Init(runtimeLib); err != nil {
		return nil, err
	}

	state, err := ort.NewTensor(ort.NewShape(2, 1, 64), make([]float32, 2*1*64))
	if err != nil {
		return nil, fmt.Errorf("failed to create state tensor: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		nil)
	if err != nil {
		state.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &Silero{session: session, state: state, sampleRate: int64(sampleRate)}, nil
}

func (s *Silero) Probability(samples []int16) (float64, error) {
	input, err := ort.NewTensor(ort.NewShape(1, int64(len(samples))), audio.Float32(samples))
	if err != nil {
		return 0, err
	}
	defer input.Destroy()

	sr, err := ort.NewTensor(ort.NewShape(1), []int64{s.sampleRate})
	if err != nil {
		return 0, err
	}
	defer sr.Destroy()

	output, err := ort.NewTensor(ort.NewShape(1, 1), make([]float32, 1))
	if err != nil {
		return 0, err
	}
	defer output.Destroy()

	next, err := ort.NewTensor(ort.NewShape(2, 1, 64), make([]float32, 2*1*64))
	if err != nil {
		return 0, err
	}
	defer next.Destroy()

	if err := s.session.Run([]ort.Value{input, s.state, sr}, []ort.Value{output, next}); err != nil {
		return 0, fmt.Errorf("silero inference: %w", err)
	}
	copy(s.state.GetData(), next.GetData())
	return float64(output.GetData()[0]), nil
}

// Reset clears the hidden state.
func (s *Silero) Reset() {
	clear(s.state.GetData())
}

func (s *Silero) Close() error {
	s.state.Destroy()
	return s.session.Destroy()
}
