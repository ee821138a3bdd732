package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/neboloop/hotword/internal/audio"
)

// FileSource reads raw PCM from a path, typically a FIFO fed by another
// process. Open waits for the path to appear.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return "file:" + s.Path }

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := waitForFile(ctx, s.Path); err != nil {
		return nil, err
	}

	// Opening a FIFO blocks until a writer connects.
	type result struct {
		f   *os.File
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := os.Open(s.Path)
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("open %s: %w", s.Path, r.err)
		}
		return withCancel(ctx, r.f), nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.f != nil {
				r.f.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// waitForFile returns once path exists, watching its directory for the
// create event.
func waitForFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	// The file may have been created between Stat and Add.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	want := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if filepath.Clean(ev.Name) == want && ev.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watch: %w", err)
		}
	}
}

// WAVSource replays a recorded mono 16-bit WAV file once.
type WAVSource struct {
	Path       string
	SampleRate int
}

func (s *WAVSource) Name() string  { return "wav:" + s.Path }
func (s *WAVSource) OneShot() bool { return true }

func (s *WAVSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, info, err := audio.ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	if info.SampleRate != s.SampleRate {
		return nil, fmt.Errorf("%s: sample rate %d, want %d", s.Path, info.SampleRate, s.SampleRate)
	}
	return io.NopCloser(bytes.NewReader(audio.EncodePCM(samples))), nil
}

// ReaderSource serves a single already-open stream, such as stdin.
type ReaderSource struct {
	Label string
	R     io.Reader
	used  bool
}

func (s *ReaderSource) Name() string  { return s.Label }
func (s *ReaderSource) OneShot() bool { return true }

func (s *ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.used {
		return nil, fmt.Errorf("%s: %w", s.Label, ErrEndOfStream)
	}
	s.used = true
	rc, ok := s.R.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(s.R)
	}
	return &readerStream{
		Reader: newCtxReader(ctx, s.R),
		closer: withCancel(ctx, rc),
	}, nil
}

// readerStream reads through a ctxReader and closes the underlying stream
// when the session ends or ctx is cancelled.
type readerStream struct {
	io.Reader
	closer io.Closer
}

func (r *readerStream) Close() error { return r.closer.Close() }
