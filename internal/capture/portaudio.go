//go:build portaudio

package capture

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/neboloop/hotword/internal/audio"
)

// PortAudioSource reads the default input device.
type PortAudioSource struct {
	SampleRate  int
	FrameLength int
}

func newPortAudioSource(rate, frameLen int) (Source, error) {
	return &PortAudioSource{SampleRate: rate, FrameLength: frameLen}, nil
}

func (s *PortAudioSource) Name() string { return "portaudio" }

func (s *PortAudioSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	in := make([]int16, s.FrameLength)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.SampleRate), len(in), in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	return withCancel(ctx, &portAudioStream{stream: stream, in: in}), nil
}

type portAudioStream struct {
	stream  *portaudio.Stream
	in      []int16
	pending []byte

	mu     sync.Mutex
	closed bool
}

func (p *portAudioStream) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return 0, io.EOF
		}
		// An overflow only means samples were dropped upstream.
		if err := p.stream.Read(); err != nil && err != portaudio.InputOverflowed {
			return 0, err
		}
		p.pending = audio.EncodePCM(p.in)
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *portAudioStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.stream.Stop()
	err := p.stream.Close()
	portaudio.Terminate()
	return err
}
