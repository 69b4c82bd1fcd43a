package diag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CZERTAINLY/apimon/internal/probe"
)

const (
	TitleTraceroute = "TRACEROUTE TO VIEW NETWORK PATH"
	TitleDNS        = "DNS LATENCY & RESOLUTION TEST"
	TitlePing       = "PING REACHABILITY & LATENCY TEST"
	TitleHTTPS      = "HTTPS API CONNECTION TIMING"
)

// ErrorMarker starts the line recording why a stage failed.
const ErrorMarker = "ERROR:"

// Stage is one probe of a diagnostic run.
type Stage interface {
	Title() string
	// Run probes host and returns the text for the report. On error the
	// text may still hold partial output.
	Run(ctx context.Context, host string) (string, error)
}

// ProbeRunner runs external commands, see probe.Runner.
type ProbeRunner interface {
	Run(ctx context.Context, cmd probe.Command) probe.Result
}

// CommandStage runs one external tool. Its output is recorded verbatim,
// a nonzero exit only adds an exit code line.
type CommandStage struct {
	title   string
	runner  ProbeRunner
	command func(host string) probe.Command
}

func NewCommandStage(title string, runner ProbeRunner, command func(host string) probe.Command) CommandStage {
	return CommandStage{title: title, runner: runner, command: command}
}

func (s CommandStage) Title() string {
	return s.title
}

// Command returns the command the stage runs for host.
func (s CommandStage) Command(host string) probe.Command {
	return s.command(host)
}

func (s CommandStage) Run(ctx context.Context, host string) (string, error) {
	cmd := s.command(host)
	res := s.runner.Run(ctx, cmd)
	text := res.Combined()
	if res.ExitCode != 0 {
		text = appendLine(text, fmt.Sprintf("[exit code %d]", res.ExitCode))
	}
	if res.Err != nil {
		return text, fmt.Errorf("%s: %w", cmd.Path, res.Err)
	}
	if res.ExitCode != 0 {
		slog.DebugContext(ctx, "probe exited with nonzero code", "cmd", cmd.String(), "exit_code", res.ExitCode)
	}
	return text, nil
}

func appendLine(s, line string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line + "\n"
}
