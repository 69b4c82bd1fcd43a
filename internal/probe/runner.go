package probe

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
)

// Sentinel exit codes for runs that produced no process exit status.
const (
	ExitSpawnFailed = -1
	ExitTimeout     = -2
	ExitCanceled    = -3
)

// waitDelay bounds how long Run waits for output pipes after the process
// was killed, grandchildren may keep them open.
const waitDelay = 5 * time.Second

type Command struct {
	Path    string
	Args    []string
	Env     []string // appended to the current environment
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

type Result struct {
	Path     string
	Args     []string
	Started  time.Time
	Stopped  time.Time
	Stdout   string
	Stderr   string
	ExitCode int
	// Err is set when the process could not be started, timed out or was
	// killed. A nonzero exit code alone is not an error.
	Err error
}

// Combined returns stdout followed by stderr, byte for byte, the way a
// shell redirect with 2>&1 would show them.
func (r Result) Combined() string {
	return r.Stdout + r.Stderr
}

func (r Result) Elapsed() time.Duration {
	return r.Stopped.Sub(r.Started)
}

// Runner executes external probe tools. It never fails the caller: spawn
// failures, timeouts and nonzero exits are all described by the Result.
type Runner struct {
	decoder Decoder
}

type Option func(*Runner)

func WithDecoder(d Decoder) Option {
	return func(r *Runner) {
		r.decoder = d
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{decoder: UTF8}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the command, waits for it and captures its output.
func (r *Runner) Run(ctx context.Context, proto Command) Result {
	result := Result{
		Path: proto.Path,
		Args: append([]string(nil), proto.Args...),
	}

	if proto.Timeout == 0 {
		slog.WarnContext(ctx, "command has no timeout", "path", proto.Path)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, proto.Path, proto.Args...)
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	cmd.WaitDelay = waitDelay
	hideWindow(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.DebugContext(ctx, "starting command", "cmd", proto.String())
	result.Started = time.Now()
	err := cmd.Run()
	result.Stopped = time.Now()

	result.Stdout = r.decoder.Decode(stdout.Bytes())
	result.Stderr = r.decoder.Decode(stderr.Bytes())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.ExitCode = ExitTimeout
		result.Err = fmt.Errorf("%s: killed after %s: %w", proto.Path, result.Elapsed().Round(time.Millisecond), context.DeadlineExceeded)
	case ctx.Err() != nil:
		result.ExitCode = ExitCanceled
		result.Err = fmt.Errorf("%s: %w", proto.Path, ctx.Err())
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			result.Err = err
		}
	default:
		result.ExitCode = ExitSpawnFailed
		result.Err = err
	}

	if result.Err != nil {
		result.Stderr = appendLine(result.Stderr, result.Err.Error())
	}

	slog.DebugContext(ctx, "command finished",
		"cmd", proto.Path,
		"exit_code", result.ExitCode,
		"elapsed", result.Elapsed().String(),
	)
	return result
}

func appendLine(s, line string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line + "\n"
}
