// Package models fetches and inspects the model files the pipeline loads
// from the data directory.
package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Manifest describes a downloadable model.
type Manifest struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Size   int64  `json:"size,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// Progress is reported while a model downloads.
type Progress struct {
	Model      string `json:"model"`
	Downloaded int64  `json:"downloaded"`
	Total      int64  `json:"total"`
	Done       bool   `json:"done"`
	Error      string `json:"error,omitempty"`
}

// SileroVAD is the speech classifier used by the silero gate. Keyword
// models are trained per word and supplied by the user.
var SileroVAD = Manifest{
	Name: "silero_vad.onnx",
	URL:  "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx",
}

// Required lists the models `hotword models pull` fetches.
func Required() []Manifest {
	return []Manifest{SileroVAD}
}

// Present reports whether path exists and looks complete.
func Present(path string, m Manifest) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if m.Size > 0 {
		return info.Size() == m.Size
	}
	return info.Size() > 0
}

// Keywords lists the keyword models in dir, named <keyword>.onnx.
func Keywords(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".onnx") || name == SileroVAD.Name {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".onnx"))
	}
	sort.Strings(out)
	return out, nil
}

// Downloader fetches manifests into a directory.
type Downloader struct {
	Client   *http.Client
	Attempts uint
}

func NewDownloader() *Downloader {
	return &Downloader{Client: &http.Client{Timeout: 10 * time.Minute}, Attempts: 3}
}

// Fetch downloads every missing model in ms into dir.
func (d *Downloader) Fetch(ctx context.Context, dir string, ms []Manifest, progress func(Progress)) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, m := range ms {
		path := filepath.Join(dir, m.Name)
		if Present(path, m) {
			if progress != nil {
				progress(Progress{Model: m.Name, Done: true})
			}
			continue
		}

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, d.download(ctx, m, dir, progress)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(d.Attempts))
		if err != nil {
			if progress != nil {
				progress(Progress{Model: m.Name, Error: err.Error()})
			}
			return fmt.Errorf("failed to download %s: %w", m.Name, err)
		}
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, m Manifest, dir string, progress func(Progress)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %d from %s", resp.StatusCode, m.URL)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	total := m.Size
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	// Write to a temp file first, then rename
	tmpPath := filepath.Join(dir, m.Name+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	pw := &progressWriter{name: m.Name, total: total, fn: progress}
	if _, err := io.Copy(io.MultiWriter(f, hasher, pw), resp.Body); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if m.SHA256 != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != m.SHA256 {
			return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", m.Name, m.SHA256, got)
		}
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, m.Name)); err != nil {
		return backoff.Permanent(err)
	}
	if progress != nil {
		progress(Progress{Model: m.Name, Downloaded: pw.n, Total: total, Done: true})
	}
	return nil
}

type progressWriter struct {
	name  string
	total int64
	n     int64
	fn    func(Progress)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	if w.fn != nil {
		w.fn(Progress{Model: w.name, Downloaded: w.n, Total: w.total})
	}
	return len(p), nil
}
