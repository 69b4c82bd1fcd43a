package model_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/apimon/internal/model"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
host: example.com
log_dir: /tmp/logs
schedule:
  times:
    - "09:00"
    - "17:30"
probes:
  timeout: 90s
  ping_count: 6
  https: builtin
service:
  verbose: true
  start_delay: PT5S
  max_concurrent_runs: 2
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "example.com", cfg.Host)
	require.Equal(t, "/tmp/logs", cfg.ReportDir())
	require.Equal(t, model.ScheduleDaily, cfg.Schedule.Kind())
	require.Equal(t, []string{"09:00", "17:30"}, cfg.Schedule.Times)
	require.Equal(t, 90*time.Second, cfg.ProbeTimeout())
	require.Equal(t, 6, cfg.PingCount())
	require.Equal(t, model.HTTPSProbeBuiltin, cfg.Probes.HTTPS)
	require.True(t, cfg.Verbose())
	require.Equal(t, 5*time.Second, cfg.StartDelay())
	require.Equal(t, time.Second, cfg.PollInterval())
	require.Equal(t, 2, cfg.Service.MaxConcurrentRuns)
	require.Equal(t, model.EncodingUTF8, cfg.Encoding())
}

func TestLoadConfig_Interval(t *testing.T) {
	yml := `
host: example.com
schedule:
  interval_minutes: 15
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, model.ScheduleInterval, cfg.Schedule.Kind())
	require.Equal(t, "every 15 minutes", cfg.Schedule.String())
	require.Equal(t, model.DefaultProbeTimeout, cfg.ProbeTimeout())
	require.Equal(t, model.DefaultStartDelay, cfg.StartDelay())
	require.Equal(t, model.DefaultPingCount, cfg.PingCount())
	require.False(t, cfg.Verbose())
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Parallel()

	type then struct {
		path    string
		code    string
		message string
	}
	var testCases = []struct {
		scenario string
		given    string
		then     then
	}{
		{
			scenario: "missing host",
			given: `
schedule:
  times: ["09:00"]
`,
			then: then{"host", model.CodeMissingRequired, "field host is required"},
		},
		{
			scenario: "empty host",
			given: `
host: ""
schedule:
  times: ["09:00"]
`,
			then: then{"host", model.CodeEmptyValue, "field host must not be empty"},
		},
		{
			scenario: "invalid time",
			given: `
host: example.com
schedule:
  times: ["25:00"]
`,
			then: then{"schedule.times[0]", model.CodeInvalidTime, "invalid time format, use HH:MM (24-hour format)"},
		},
		{
			scenario: "zero interval",
			given: `
host: example.com
schedule:
  interval_minutes: 0
`,
			then: then{"schedule.interval_minutes", model.CodeInvalidInterval, "interval_minutes must be a whole number of minutes, at least 1"},
		},
		{
			scenario: "unknown https probe",
			given: `
host: example.com
schedule:
  times: ["09:00"]
probes:
  https: wget
`,
			then: then{"probes.https", model.CodeInvalidEnum, "field https must be curl or builtin"},
		},
		{
			scenario: "ping count out of range",
			given: `
host: example.com
schedule:
  times: ["09:00"]
probes:
  ping_count: 0
`,
			then: then{"probes.ping_count", model.CodeOutOfRange, "ping_count must be between 1 and 100"},
		},
		{
			scenario: "malformed duration",
			given: `
host: example.com
schedule:
  times: ["09:00"]
probes:
  timeout: soon
`,
			then: then{"probes.timeout", model.CodeInvalidDuration, "field timeout must be a duration like 90s, 5m or PT5M"},
		},
		{
			scenario: "both times and interval",
			given: `
host: example.com
schedule:
  times: ["09:00"]
  interval_minutes: 5
`,
			then: then{"schedule", model.CodeAmbiguousSchedule, "only one of times, interval_minutes and cron may be set"},
		},
		{
			scenario: "no schedule",
			given: `
host: example.com
schedule: {}
`,
			then: then{"schedule", model.CodeMissingSchedule, "at least one schedule time, an interval or a cron expression is required"},
		},
		{
			scenario: "poll slower than a minute",
			given: `
host: example.com
schedule:
  times: ["09:00"]
service:
  poll_interval: 2m
`,
			then: then{"service.poll_interval", model.CodeInvalidPoll, "poll interval must not exceed one minute"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tc.given))
			require.Error(t, err)
			details := model.CueErrDetails(err)
			require.Len(t, details, 1)
			require.Equal(t, tc.then.path, details[0].Path)
			require.Equal(t, tc.then.code, details[0].Code)
			require.Equal(t, tc.then.message, details[0].Message)
		})
	}
}

func TestCueErrDetailsPosition(t *testing.T) {
	t.Parallel()

	given := "host: example.com\nschedule:\n  times: [\"09:00\"]\nbogus: 1\n"
	_, err := model.LoadConfig(strings.NewReader(given))
	require.Error(t, err)

	details := model.CueErrDetails(err)
	require.Len(t, details, 1)
	d := details[0]
	require.Equal(t, "bogus", d.Path)
	require.Equal(t, model.CodeUnknownField, d.Code)
	require.Equal(t, "field bogus is not allowed", d.Message)
	require.Equal(t, "apimon.yaml", d.Pos.Filename)
	require.Equal(t, 4, d.Pos.Line)
	require.True(t, strings.HasPrefix(d.String(), "apimon.yaml:4:"))
	require.True(t, strings.HasSuffix(d.String(), "field bogus is not allowed (bogus)"))
}

func TestCueErrDetailsSemantic(t *testing.T) {
	t.Parallel()

	cfg := model.DefaultConfig()
	cfg.Host = " "
	cfg.Schedule = model.DailySpec("09:00", "7pm")
	cfg.Schedule.Timezone = "Mars/Olympus"

	details := model.CueErrDetails(cfg.Validate())
	var codes []string
	for _, d := range details {
		require.Zero(t, d.Pos)
		codes = append(codes, d.Path+" "+d.Code)
	}
	require.Equal(t, []string{
		"host empty_value",
		"schedule.timezone invalid_timezone",
	}, codes)
	require.Equal(t, "host: field host must not be empty", details[0].String())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := model.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Host = "  "
	cfg.Schedule = model.DailySpec("12:00", "7pm")
	cfg.Probes.Timeout = "soon"

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, model.ErrEmptyHost)
	require.ErrorIs(t, err, model.ErrInvalidTime)
	require.ErrorContains(t, err, `schedule.times[1]: "7pm"`)
	require.ErrorContains(t, err, `probes.timeout: "soon"`)

	var fe *model.FieldError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, "host", fe.Field)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig()
	require.Equal(t, "12:00, 17:00, 19:00", cfg.Schedule.String())
	require.NotEmpty(t, cfg.ReportDir())
	require.Equal(t, model.HTTPSProbeCurl, cfg.Probes.HTTPS)
}
