package diag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/apimon/internal/diag"
	"github.com/CZERTAINLY/apimon/internal/model"
	"github.com/CZERTAINLY/apimon/internal/probe"

	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and answers them from a table keyed by path.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []probe.Command
	results map[string]probe.Result
}

func (f *fakeRunner) Run(_ context.Context, cmd probe.Command) probe.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if res, ok := f.results[cmd.Path]; ok {
		return res
	}
	return probe.Result{Path: cmd.Path, Args: cmd.Args, Stdout: cmd.Path + " ok\n"}
}

func (f *fakeRunner) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ret = append(ret, c.Path)
	}
	return ret
}

type panicStage struct{}

func (panicStage) Title() string { return "PANIC" }
func (panicStage) Run(context.Context, string) (string, error) {
	panic("boom")
}

func TestPipeline(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{
		results: map[string]probe.Result{
			"tracert": {
				Path:     "tracert",
				Stderr:   "exec: \"tracert\": executable file not found in %PATH%\n",
				ExitCode: probe.ExitSpawnFailed,
				Err:      errors.New(`exec: "tracert": executable file not found in %PATH%`),
			},
			"ping": {
				Path:     "ping",
				Stdout:   "Request timed out.\n",
				ExitCode: 1,
			},
		},
	}
	now := time.Date(2024, 1, 1, 9, 0, 0, 500, time.UTC)
	p := diag.NewPipeline(diag.DefaultStages("windows", diag.StageOptions{Runner: runner})...).
		WithClock(func() time.Time { return now })

	rep := p.Execute(t.Context(), "api.example.com")
	require.Equal(t, "api.example.com", rep.Host)
	require.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), rep.GeneratedAt)
	require.Equal(t, []string{"tracert", "powershell", "ping", "curl"}, runner.paths())

	require.Len(t, rep.Sections, 4)
	titles := make([]string, 0, 4)
	for _, s := range rep.Sections {
		titles = append(titles, s.Title)
	}
	require.Equal(t, []string{diag.TitleTraceroute, diag.TitleDNS, diag.TitlePing, diag.TitleHTTPS}, titles)

	require.Contains(t, rep.Sections[0].Text, diag.ErrorMarker)
	require.Contains(t, rep.Sections[0].Text, "[exit code -1]")
	require.Equal(t, "powershell ok\n", rep.Sections[1].Text)
	require.Equal(t, "Request timed out.\n[exit code 1]\n", rep.Sections[2].Text)
	require.NotContains(t, rep.Sections[2].Text, diag.ErrorMarker)
	require.Equal(t, "curl ok\n", rep.Sections[3].Text)
}

func TestPipelinePanic(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	stages := append([]diag.Stage{panicStage{}}, diag.DefaultStages("linux", diag.StageOptions{Runner: runner})...)

	rep := diag.NewPipeline(stages...).Execute(t.Context(), "localhost")
	require.Len(t, rep.Sections, 5)
	require.Equal(t, "PANIC", rep.Sections[0].Title)
	require.Contains(t, rep.Sections[0].Text, diag.ErrorMarker)
	require.Contains(t, rep.Sections[0].Text, "panic: boom")
	require.Equal(t, []string{"traceroute", "dig", "ping", "curl"}, runner.paths())
}

func TestDefaultStages(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		goos     string
		opts     diag.StageOptions
		then     []string
	}{
		{
			scenario: "windows",
			goos:     "windows",
			then: []string{
				"tracert -d -w 1000 host",
				"powershell -NoProfile -ExecutionPolicy Bypass -Command Measure-Command {Resolve-DnsName host -Type A -ErrorAction SilentlyContinue}",
				"ping -n 4 host",
				"curl -o NUL -s -w",
			},
		},
		{
			scenario: "linux",
			goos:     "linux",
			opts:     diag.StageOptions{PingCount: 2},
			then: []string{
				"traceroute -n -w 1 host",
				"dig +tries=1 host A",
				"ping -c 2 host",
				"curl -o /dev/null -s -w",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			tc.opts.Runner = &fakeRunner{}
			stages := diag.DefaultStages(tc.goos, tc.opts)
			require.Len(t, stages, len(tc.then))
			for i, stage := range stages {
				cs, ok := stage.(diag.CommandStage)
				require.True(t, ok)
				cmd := cs.Command("host")
				require.Equal(t, model.DefaultProbeTimeout, cmd.Timeout)
				require.True(t, strings.HasPrefix(cmd.String(), tc.then[i]), fmt.Sprintf("%q does not start with %q", cmd.String(), tc.then[i]))
			}
			curl := stages[3].(diag.CommandStage).Command("host")
			require.Equal(t, "https://host", curl.Args[len(curl.Args)-1])
		})
	}
}

func TestDefaultStagesBuiltin(t *testing.T) {
	t.Parallel()
	stages := diag.DefaultStages("linux", diag.StageOptions{HTTPS: model.HTTPSProbeBuiltin})
	require.Len(t, stages, 4)
	_, ok := stages[3].(*diag.HTTPTimingStage)
	require.True(t, ok)
	require.Equal(t, diag.TitleHTTPS, stages[3].Title())
}
