package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	HTTPSProbeCurl    = "curl"
	HTTPSProbeBuiltin = "builtin"

	EncodingUTF8 = "utf-8"

	DefaultProbeTimeout = 3 * time.Minute
	DefaultPingCount    = 4
	DefaultStartDelay   = 2 * time.Second
	DefaultPollInterval = time.Second
	// MaxPollInterval keeps at least one poll inside every wall-clock minute,
	// daily times are matched by minute.
	MaxPollInterval = time.Minute
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int          `json:"version" yaml:"version"` // fixed 0 for now
	Host     string       `json:"host" yaml:"host"`
	LogDir   string       `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	Schedule ScheduleSpec `json:"schedule" yaml:"schedule"`
	Probes   Probes       `json:"probes,omitempty" yaml:"probes,omitempty"`
	Service  Service      `json:"service,omitempty" yaml:"service,omitempty"`
}

// Probes tunes the external tools of a diagnostic run.
type Probes struct {
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // per tool
	PingCount int    `json:"ping_count,omitempty" yaml:"ping_count,omitempty"`
	Encoding  string `json:"encoding,omitempty" yaml:"encoding,omitempty"` // console code page of the tools
	HTTPS     string `json:"https,omitempty" yaml:"https,omitempty"`       // "curl" | "builtin"
}

type Service struct {
	Verbose           *bool  `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	StartDelay        string `json:"start_delay,omitempty" yaml:"start_delay,omitempty"`
	PollInterval      string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	MaxConcurrentRuns int    `json:"max_concurrent_runs,omitempty" yaml:"max_concurrent_runs,omitempty"` // 0 means unlimited
}

// DefaultConfig is stored when no config file exists yet. It mirrors the
// values the operator used to find pre-filled in the monitor window.
func DefaultConfig() Config {
	verbose := false
	return Config{
		Version:  0,
		Host:     "api.example.com",
		LogDir:   DefaultLogDir(),
		Schedule: DailySpec("12:00", "17:00", "19:00"),
		Probes: Probes{
			Timeout:   "3m",
			PingCount: DefaultPingCount,
			Encoding:  EncodingUTF8,
			HTTPS:     HTTPSProbeCurl,
		},
		Service: Service{
			Verbose:    &verbose,
			StartDelay: "2s",
		},
	}
}

// DefaultLogDir returns $HOME/apimon/reports, or a relative reports
// directory when the home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "reports"
	}
	return filepath.Join(home, "apimon", "reports")
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("apimon.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate reports every semantic problem of the config, each one
// identified by its field.
func (c Config) Validate() error {
	var errs []error
	if c.Version != 0 {
		errs = append(errs, fieldErr("version", fmt.Sprint(c.Version), ErrUnsupportedVersion))
	}
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, fieldErr("host", "", ErrEmptyHost))
	}
	if err := c.Schedule.Validate(); err != nil {
		errs = append(errs, err)
	}
	durations := []struct {
		field string
		value string
	}{
		{"probes.timeout", c.Probes.Timeout},
		{"service.start_delay", c.Service.StartDelay},
		{"service.poll_interval", c.Service.PollInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := ParseDuration(d.value)
		if err != nil {
			errs = append(errs, fieldErr(d.field, d.value, err))
			continue
		}
		if d.field == "service.poll_interval" && v > MaxPollInterval {
			errs = append(errs, fieldErr(d.field, d.value, ErrPollInterval))
		}
	}
	switch c.Probes.HTTPS {
	case "", HTTPSProbeCurl, HTTPSProbeBuiltin:
	default:
		errs = append(errs, fieldErr("probes.https", c.Probes.HTTPS, errors.New("must be curl or builtin")))
	}
	if c.Service.MaxConcurrentRuns < 0 {
		errs = append(errs, fieldErr("service.max_concurrent_runs", fmt.Sprint(c.Service.MaxConcurrentRuns), errors.New("must not be negative")))
	}
	return errors.Join(errs...)
}

// ReportDir returns the configured log folder or the default one.
func (c Config) ReportDir() string {
	if dir := strings.TrimSpace(c.LogDir); dir != "" {
		return dir
	}
	return DefaultLogDir()
}

func (c Config) ProbeTimeout() time.Duration {
	return durationOr(c.Probes.Timeout, DefaultProbeTimeout)
}

func (c Config) StartDelay() time.Duration {
	return durationOr(c.Service.StartDelay, DefaultStartDelay)
}

func (c Config) PollInterval() time.Duration {
	return durationOr(c.Service.PollInterval, DefaultPollInterval)
}

func (c Config) PingCount() int {
	if c.Probes.PingCount <= 0 {
		return DefaultPingCount
	}
	return c.Probes.PingCount
}

func (c Config) Encoding() string {
	if c.Probes.Encoding == "" {
		return EncodingUTF8
	}
	return c.Probes.Encoding
}

func (c Config) Verbose() bool {
	return get(c.Service.Verbose)
}

func durationOr(s string, dflt time.Duration) time.Duration {
	if s == "" {
		return dflt
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return dflt
	}
	return d
}

func get[T any](pt *T) T {
	var zero T
	if pt == nil {
		return zero
	}
	return *pt
}
