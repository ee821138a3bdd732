//go:build !cgo

package vad

import (
	"github.com/neboloop/hotword/internal/onnxrt"
)

// Silero is unavailable without cgo.
type Silero struct{}

func NewSilero(path, runtimeLib string, sampleRate int) (*Silero, error) {
	return nil, onnxrt.ErrUnsupported
}

func (s *Silero) Probability([]int16) (float64, error) { return 0, onnxrt.ErrUnsupported }
func (s *Silero) Reset()                               {}
func (s *Silero) Close() error                         { return nil }
