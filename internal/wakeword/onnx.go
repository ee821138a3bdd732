package wakeword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/neboloop/hotword/internal/audio"
)

// Model scores one window of normalized samples for a single keyword.
type Model interface {
	Predict(window []float32) (float64, error)
	Close() error
}

// Windowed buffers frames into fixed windows and runs one model per
// allow-listed keyword on each window.
type Windowed struct {
	keywords    []string
	models      []Model
	window      int
	sensitivity float64
	buf         []float32
}

// NewWindowed pairs keywords[i] with models[i].
func NewWindowed(keywords []string, models []Model, window int, sensitivity float64) *Windowed {
	return &Windowed{
		keywords:    keywords,
		models:      models,
		window:      window,
		sensitivity: sensitivity,
		buf:         make([]float32, 0, window*2),
	}
}

func (w *Windowed) Name() string { return "onnx" }

func (w *Windowed) Score(_ context.Context, f audio.Frame) ([]Detection, error) {
	w.buf = append(w.buf, audio.Float32(f.Samples)...)
	var out []Detection
	for len(w.buf) >= w.window {
		chunk := w.buf[:w.window]
		for i, m := range w.models {
			p, err := m.Predict(chunk)
			if err != nil {
				return nil, fmt.Errorf("keyword %s: %w", w.keywords[i], err)
			}
			if p >= w.sensitivity {
				out = append(out, Detection{Keyword: w.keywords[i], Confidence: p, FrameIndex: f.Index})
			}
		}
		w.buf = append(w.buf[:0], w.buf[w.window:]...)
	}
	if len(out) > 0 {
		// Do not fire again on the audio that just triggered.
		w.Reset()
		slices.SortFunc(out, func(a, b Detection) int {
			switch {
			case a.Confidence > b.Confidence:
				return -1
			case a.Confidence < b.Confidence:
				return 1
			}
			return 0
		})
	}
	return out, nil
}

func (w *Windowed) Reset() {
	w.buf = w.buf[:0]
}

func (w *Windowed) Close() error {
	var errs []error
	for _, m := range w.models {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}

// ModelLoader opens the model file for one keyword.
type ModelLoader func(path string) (Model, error)

// LoadWindowed opens <dir>/<keyword>.onnx for every keyword in the
// allow-list. Keywords without a model are skipped; no model at all is
// ErrUnavailable.
func LoadWindowed(dir string, keywords []string, window int, sensitivity float64, load ModelLoader, log *slog.Logger) (*Windowed, error) {
	var (
		kws    []string
		models []Model
	)
	for _, kw := range keywords {
		path := filepath.Join(dir, kw+".onnx")
		if _, err := os.Stat(path); err != nil {
			log.Warn("no model for keyword", "keyword", kw, "path", path)
			continue
		}
		m, err := load(path)
		if err != nil {
			for _, loaded := range models {
				loaded.Close()
			}
			return nil, fmt.Errorf("%w: load %s: %v", ErrUnavailable, path, err)
		}
		kws = append(kws, kw)
		models = append(models, m)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no keyword models in %s", ErrUnavailable, dir)
	}
	log.Info("keyword models loaded", "keywords", kws, "window", window)
	return NewWindowed(kws, models, window, sensitivity), nil
}
