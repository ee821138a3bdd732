package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/neboloop/hotword/internal/logging"
)

// CommandSource runs a capture program and reads PCM from its stdout.
type CommandSource struct {
	Args []string
	Env  []string
	log  *slog.Logger
}

// NewCommandSource runs args[0] with the remaining arguments.
func NewCommandSource(args []string, env ...string) *CommandSource {
	return &CommandSource{Args: args, Env: env, log: logging.For("capture")}
}

// NewPulseSource builds the parec invocation for the given rate, with an
// optional source device and server.
func NewPulseSource(command []string, rate int, device, server string) *CommandSource {
	args := append([]string(nil), command...)
	if len(args) == 0 {
		args = []string{"parec", "--rate", strconv.Itoa(rate), "--format", "s16le", "--channels", "1"}
	}
	if device != "" {
		args = append(args, "-d", device)
	}
	var env []string
	if server != "" {
		env = append(env, "PULSE_SERVER="+server)
	}
	return NewCommandSource(args, env...)
}

func (s *CommandSource) Name() string {
	if len(s.Args) == 0 {
		return "command"
	}
	return s.Args[0]
}

func (s *CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if len(s.Args) == 0 {
		return nil, errors.New("capture: empty command")
	}
	cmd := exec.CommandContext(ctx, s.Args[0], s.Args[1:]...)
	cmd.Env = append(os.Environ(), s.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.Args[0], err)
	}
	s.log.Info("capture started", "exec", s.Args, "pid", cmd.Process.Pid)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			s.log.Warn("capture stderr", "line", sc.Text())
		}
	}()

	return &commandStream{ReadCloser: stdout, cmd: cmd, log: s.log, stderrDone: stderrDone}, nil
}

// stderrGrace bounds how long Close waits for the stderr reader after the
// kill; a grandchild can keep the pipe open.
const stderrGrace = 2 * time.Second

type commandStream struct {
	io.ReadCloser
	cmd        *exec.Cmd
	log        *slog.Logger
	stderrDone chan struct{}
	once       sync.Once
}

// Close kills the capture program, drains its stderr and reaps it. Wait
// closes the pipes, so it runs only after the stderr reader is done.
func (c *commandStream) Close() error {
	c.once.Do(func() {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		select {
		case <-c.stderrDone:
		case <-time.After(stderrGrace):
			c.log.Debug("capture stderr still open after kill")
		}
		err := c.cmd.Wait()
		if err != nil && c.cmd.ProcessState != nil && !c.cmd.ProcessState.Success() {
			c.log.Debug("capture exited", "status", c.cmd.ProcessState.String())
		}
	})
	return nil
}
