// Package capture turns a raw s16le byte stream into fixed-size frames and
// provides the byte stream sources the pipeline can open.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/neboloop/hotword/internal/audio"
)

// ErrEndOfStream is returned once the underlying stream closes. The caller
// ends the session and reopens the source.
var ErrEndOfStream = errors.New("capture: end of stream")

// Source opens a fresh byte stream of mono s16le PCM for each session.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// OneShot is implemented by sources that cannot be reopened, such as a
// recorded file or standard input. The pipeline stops after their stream
// ends instead of retrying.
type OneShot interface {
	OneShot() bool
}

// IsOneShot reports whether src ends the process when its stream ends.
func IsOneShot(src Source) bool {
	o, ok := src.(OneShot)
	return ok && o.OneShot()
}

// FrameReader cuts a byte stream into frames of a fixed sample count.
type FrameReader struct {
	r        io.Reader
	frameLen int
	buf      []byte
	next     uint64
	done     bool
}

// NewFrameReader reads frames of frameLen samples. start is the index given
// to the first frame, so indexes stay monotonic across reopened sessions.
func NewFrameReader(r io.Reader, frameLen int, start uint64) *FrameReader {
	return &FrameReader{
		r:        r,
		frameLen: frameLen,
		buf:      make([]byte, frameLen*audio.BytesPerSample),
		next:     start,
	}
}

// Next blocks until a whole frame is available. A trailing partial frame is
// discarded and reported as ErrEndOfStream; every later call returns
// ErrEndOfStream as well.
func (fr *FrameReader) Next() (audio.Frame, error) {
	if fr.done {
		return audio.Frame{}, ErrEndOfStream
	}
	_, err := io.ReadFull(fr.r, fr.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		fr.done = true
		return audio.Frame{}, ErrEndOfStream
	default:
		fr.done = true
		return audio.Frame{}, fmt.Errorf("%w: %w", ErrEndOfStream, err)
	}
	f := audio.Frame{Samples: audio.DecodePCM(fr.buf), Index: fr.next}
	fr.next++
	return f, nil
}

// NextIndex is the index the next frame will carry.
func (fr *FrameReader) NextIndex() uint64 {
	return fr.next
}

// closeOnCancel closes rc when ctx is cancelled so a blocked Read returns.
type closeOnCancel struct {
	io.ReadCloser
	stop func() bool
}

func withCancel(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	return &closeOnCancel{
		ReadCloser: rc,
		stop:       context.AfterFunc(ctx, func() { rc.Close() }),
	}
}

func (c *closeOnCancel) Close() error {
	c.stop()
	return c.ReadCloser.Close()
}

type readResult struct {
	n   int
	err error
}

// ctxReader makes Read on a stream that cannot be interrupted (a terminal
// stdin, a plain io.Reader) return ctx.Err() once ctx is done. The blocked
// read is left behind with its own buffer and finishes on its own.
type ctxReader struct {
	ctx      context.Context
	r        io.Reader
	buf      []byte
	pending  chan readResult
	inflight bool
}

func newCtxReader(ctx context.Context, r io.Reader) *ctxReader {
	return &ctxReader{ctx: ctx, r: r, pending: make(chan readResult, 1)}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if !c.inflight {
		buf := make([]byte, len(p))
		c.buf = buf
		c.inflight = true
		go func() {
			n, err := c.r.Read(buf)
			c.pending <- readResult{n, err}
		}()
	}
	select {
	case res := <-c.pending:
		c.inflight = false
		n := copy(p, c.buf[:res.n])
		return n, res.err
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	}
}
