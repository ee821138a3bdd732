package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/neboloop/hotword/internal/audio"
)

// Whisper runs whisper-cli on a temporary WAV file.
type Whisper struct {
	Binary  string
	Model   string
	Threads int
}

// NewWhisper checks that the binary and model exist.
func NewWhisper(binary, model string, threads int) (*Whisper, error) {
	if binary == "" {
		binary = "whisper-cli"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, err)
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("%w: whisper model: %v", ErrNoBackend, err)
	}
	return &Whisper{Binary: path, Model: model, Threads: threads}, nil
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Transcribe(ctx context.Context, req Request) (string, error) {
	path, err := audio.TempWAV("hotword-asr-*.wav", req.Samples, req.SampleRate)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	args := []string{"-m", w.Model, "-f", path, "-nt", "-np"}
	if req.Language != "" {
		args = append(args, "-l", req.Language)
	}
	if w.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.Threads))
	}
	out, err := exec.CommandContext(ctx, w.Binary, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("whisper-cli: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("whisper-cli: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
