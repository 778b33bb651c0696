// Package ffmpeg runs ffmpeg and ffprobe helper processes: metadata probing,
// container remuxing to MPEG-TS and streaming decode through pipes.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/thesyncim/playback/internal/log"
	"github.com/thesyncim/playback/internal/procgroup"
)

var (
	startTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_ffmpeg_start_total",
		Help: "Total number of ffmpeg helper process starts",
	}, []string{"role", "result"})

	exitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_ffmpeg_exit_total",
		Help: "Total number of ffmpeg helper process exits",
	}, []string{"role", "reason"})
)

const stderrLines = 64

// Process is a running ffmpeg child with piped stdin and stdout.
type Process struct {
	Role   string
	Stdin  io.WriteCloser // nil unless requested
	Stdout io.ReadCloser

	cmd    *exec.Cmd
	ring   *LineRing
	logger zerolog.Logger

	waitOnce sync.Once
	waitErr  error
	stopping bool
	mu       sync.Mutex
}

// StartOptions configures Start.
type StartOptions struct {
	Role   string // label for logs and metrics ("remux", "decode-video", ...)
	Stdin  bool   // open a stdin pipe
	Logger *zerolog.Logger
}

// Start launches bin with args in its own process group.
func Start(ctx context.Context, bin string, args []string, opts StartOptions) (*Process, error) {
	if opts.Role == "" {
		opts.Role = "ffmpeg"
	}
	logger := log.WithComponent("ffmpeg")
	if opts.Logger != nil {
		logger = log.Sub(*opts.Logger, "ffmpeg")
	}
	logger = logger.With().Str("role", opts.Role).Str(log.FieldBinary, bin).Logger()

	// #nosec G204 -- binary is operator-configured, arguments are built by this package
	cmd := exec.CommandContext(ctx, bin, args...)
	procgroup.Set(cmd)
	cmd.Cancel = func() error { return procgroup.Kill(cmd) }

	p := &Process{Role: opts.Role, cmd: cmd, ring: NewLineRing(stderrLines), logger: logger}
	cmd.Stderr = p.ring

	var err error
	if opts.Stdin {
		if p.Stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}
	if p.Stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		startTotal.WithLabelValues(opts.Role, "error").Inc()
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	startTotal.WithLabelValues(opts.Role, "ok").Inc()
	logger.Debug().Int(log.FieldPID, cmd.Process.Pid).Strs("args", args).Msg("process started")
	return p, nil
}

// Wait waits for the process to exit. It must only be called once all
// reads from Stdout are done. It is safe to call repeatedly.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.mu.Lock()
		stopping := p.stopping
		p.mu.Unlock()

		switch {
		case err == nil:
			exitTotal.WithLabelValues(p.Role, "exit0").Inc()
		case stopping:
			exitTotal.WithLabelValues(p.Role, "stopped").Inc()
			err = nil
		default:
			exitTotal.WithLabelValues(p.Role, "error").Inc()
			tail := p.ring.LastN(8)
			p.logger.Warn().Err(err).Strs(log.FieldStderr, tail).Msg("process failed")
			err = &ExitError{Role: p.Role, Err: err, Stderr: tail}
		}
		p.waitErr = err
	})
	return p.waitErr
}

// Stop terminates the process group, escalating to SIGKILL after grace,
// and reaps the child.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	if p.Stdin != nil {
		_ = p.Stdin.Close()
	}
	if err := procgroup.Terminate(p.cmd); err != nil {
		p.logger.Debug().Err(err).Msg("SIGTERM failed")
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = procgroup.Kill(p.cmd)
		return <-done
	}
}

// StderrTail returns the last n stderr lines.
func (p *Process) StderrTail(n int) []string { return p.ring.LastN(n) }

// ExitError reports an unexpected non-zero exit with the stderr tail.
type ExitError struct {
	Role   string
	Err    error
	Stderr []string
}

func (e *ExitError) Error() string {
	if len(e.Stderr) == 0 {
		return fmt.Sprintf("ffmpeg %s: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v: %s", e.Role, e.Err, strings.Join(e.Stderr, " | "))
}

func (e *ExitError) Unwrap() error { return e.Err }

// ErrNotFound is wrapped when a helper binary cannot be located.
var ErrNotFound = errors.New("binary not found")
