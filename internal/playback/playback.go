// Package playback plays the acknowledgment tone and speaks replies through
// external commands. Failures are logged and never stop the pipeline.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/config"
)

// ErrNoCommand is returned when no player command is configured.
var ErrNoCommand = errors.New("playback: no command configured")

// Tone describes a beep.
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Volume    float64
}

// Player renders a tone.
type Player interface {
	Beep(ctx context.Context, t Tone) error
}

// CommandPlayer writes the tone to a temporary WAV file and hands it to a
// player such as `aplay -q`. The path is appended as the last argument.
type CommandPlayer struct {
	Args       []string
	SampleRate int
	Env        []string
}

func NewCommandPlayer(args []string, rate int, pulseServer string) *CommandPlayer {
	p := &CommandPlayer{Args: args, SampleRate: rate}
	if pulseServer != "" {
		p.Env = []string{"PULSE_SERVER=" + pulseServer}
	}
	return p
}

func (p *CommandPlayer) Beep(ctx context.Context, t Tone) error {
	if len(p.Args) == 0 {
		return ErrNoCommand
	}
	samples := audio.Tone(t.Frequency, t.Duration, t.Volume, p.SampleRate)
	path, err := audio.TempWAV("hotword-beep-*.wav", samples, p.SampleRate)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	args := append(append([]string(nil), p.Args[1:]...), path)
	return run(ctx, p.Args[0], args, p.Env, nil)
}

// CommandSpeaker pipes text on stdin to a speech synthesizer command, for
// example `espeak-ng -v es --stdin`.
type CommandSpeaker struct {
	Args []string
	Env  []string
}

func NewCommandSpeaker(args []string, pulseServer string) *CommandSpeaker {
	s := &CommandSpeaker{Args: args}
	if pulseServer != "" {
		s.Env = []string{"PULSE_SERVER=" + pulseServer}
	}
	return s
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	if len(s.Args) == 0 {
		return ErrNoCommand
	}
	return run(ctx, s.Args[0], s.Args[1:], s.Env, strings.NewReader(text))
}

func run(ctx context.Context, name string, args, env []string, stdin *strings.Reader) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Acker plays the acknowledgment tone without blocking the caller.
type Acker struct {
	player  Player
	tone    Tone
	enabled bool
	log     *slog.Logger
	busy    chan struct{}
}

func NewAcker(p Player, c config.Playback, log *slog.Logger) *Acker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Acker{
		player:  p,
		tone:    Tone{Frequency: c.Frequency, Duration: c.Duration, Volume: c.Volume},
		enabled: c.Ack && p != nil,
		log:     log,
		busy:    make(chan struct{}, 1),
	}
}

// Ack starts the tone in the background. A tone still playing absorbs the
// request.
func (a *Acker) Ack(ctx context.Context) {
	if a == nil || !a.enabled {
		return
	}
	select {
	case a.busy <- struct{}{}:
	default:
		return
	}
	go func() {
		defer func() { <-a.busy }()
		if err := a.player.Beep(ctx, a.tone); err != nil {
			a.log.Warn("ack tone failed", "error", err)
		}
	}()
}

// Startup plays n beeps back to back and waits for them.
func (a *Acker) Startup(ctx context.Context, n int) {
	if a == nil || a.player == nil {
		return
	}
	for i := 0; i < n; i++ {
		if err := a.player.Beep(ctx, a.tone); err != nil {
			a.log.Warn("startup beep failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.tone.Duration / 2):
		}
	}
}
