package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/hotword/internal/audio"
)

func TestFrameReaderDiscardsPartialFrame(t *testing.T) {
	samples := make([]int16, 4*2+3)
	for i := range samples {
		samples[i] = int16(i)
	}
	fr := NewFrameReader(bytes.NewReader(audio.EncodePCM(samples)), 4, 10)

	f, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f.Index)
	assert.Equal(t, []int16{0, 1, 2, 3}, f.Samples)

	f, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(11), f.Index)

	_, err = fr.Next()
	assert.ErrorIs(t, err, ErrEndOfStream)
	_, err = fr.Next()
	assert.ErrorIs(t, err, ErrEndOfStream)
	assert.Equal(t, uint64(12), fr.NextIndex())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestFrameReaderWrapsReadErrors(t *testing.T) {
	fr := NewFrameReader(failingReader{}, 512, 0)
	_, err := fr.Next()
	assert.ErrorIs(t, err, ErrEndOfStream)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestCommandSourceReadsStdout(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell")
	}
	src := NewCommandSource([]string{"sh", "-c", "head -c 2048 /dev/zero"})
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	fr := NewFrameReader(rc, 512, 0)
	for i := 0; i < 2; i++ {
		f, err := fr.Next()
		require.NoError(t, err)
		assert.Len(t, f.Samples, 512)
	}
	_, err = fr.Next()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestPulseSourceArgs(t *testing.T) {
	src := NewPulseSource(nil, 16000, "alsa_input.usb", "tcp:10.0.0.1:4713")
	assert.Equal(t, []string{"parec", "--rate", "16000", "--format", "s16le", "--channels", "1", "-d", "alsa_input.usb"}, src.Args)
	assert.Equal(t, []string{"PULSE_SERVER=tcp:10.0.0.1:4713"}, src.Env)
	assert.Equal(t, "parec", src.Name())
}

func TestFileSourceWaitsForPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mic.raw")
	payload := audio.EncodePCM(make([]int16, 512))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, payload, 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := (&FileSource{Path: path}).Open(ctx)
	require.NoError(t, err)
	defer rc.Close()

	// the writer may still be filling the file; read until a full frame
	require.Eventually(t, func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() == int64(len(payload))
	}, time.Second, 10*time.Millisecond)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Len(t, got, len(payload))
}

func TestFileSourceHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := (&FileSource{Path: filepath.Join(t.TempDir(), "never")}).Open(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWAVSourceIsOneShot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, audio.WriteWAVFile(path, make([]int16, 1024), 16000))

	src := &WAVSource{Path: path, SampleRate: 16000}
	assert.True(t, IsOneShot(src))

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	fr := NewFrameReader(rc, 512, 0)
	for i := 0; i < 2; i++ {
		_, err := fr.Next()
		require.NoError(t, err)
	}
	_, err = fr.Next()
	assert.ErrorIs(t, err, ErrEndOfStream)

	_, err = (&WAVSource{Path: path, SampleRate: 8000}).Open(context.Background())
	assert.ErrorContains(t, err, "sample rate")
}

func TestReaderSourceOpensOnce(t *testing.T) {
	src := &ReaderSource{Label: "stdin", R: bytes.NewReader(nil)}
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	rc.Close()

	_, err = src.Open(context.Background())
	assert.ErrorIs(t, err, ErrEndOfStream)
	assert.False(t, IsOneShot(NewCommandSource([]string{"parec"})))
}

// stalledReader never returns from Read and cannot be closed.
type stalledReader struct{ block chan struct{} }

func (s stalledReader) Read([]byte) (int, error) {
	<-s.block
	return 0, io.EOF
}

func TestReaderSourceCancelInterruptsBlockedRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	for name, r := range map[string]io.Reader{
		"closer": pr,
		"plain":  stalledReader{block: make(chan struct{})},
	} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			rc, err := (&ReaderSource{Label: name, R: r}).Open(ctx)
			require.NoError(t, err)
			defer rc.Close()

			errc := make(chan error, 1)
			go func() {
				_, err := NewFrameReader(rc, 512, 0).Next()
				errc <- err
			}()
			time.Sleep(10 * time.Millisecond)
			cancel()

			select {
			case err := <-errc:
				assert.ErrorIs(t, err, ErrEndOfStream)
			case <-time.After(time.Second):
				t.Fatal("read still blocked after cancel")
			}
		})
	}
}

func TestReaderSourceReadsThroughContext(t *testing.T) {
	samples := []int16{1, -2, 3, -4}
	rc, err := (&ReaderSource{Label: "mem", R: bytes.NewReader(audio.EncodePCM(samples))}).Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	f, err := NewFrameReader(rc, 4, 0).Next()
	require.NoError(t, err)
	assert.Equal(t, samples, f.Samples)
}

func TestCommandSourceKeepsTrailingStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell")
	}
	var logs bytes.Buffer
	src := NewCommandSource([]string{"sh", "-c", "head -c 1024 /dev/zero; echo 'stream suspended' >&2; echo 'device gone' >&2"})
	src.log = slog.New(slog.NewTextHandler(&logs, nil))

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	fr := NewFrameReader(rc, 512, 0)
	_, err = fr.Next()
	require.NoError(t, err)
	_, err = fr.Next()
	require.ErrorIs(t, err, ErrEndOfStream)
	require.NoError(t, rc.Close())

	assert.Contains(t, logs.String(), "stream suspended")
	assert.Contains(t, logs.String(), "device gone")
}
