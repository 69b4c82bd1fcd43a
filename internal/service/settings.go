package service

import (
	"errors"
	"strings"
	"time"

	"github.com/CZERTAINLY/apimon/internal/model"
)

// Settings is everything a Session needs to monitor one host.
type Settings struct {
	Host     string
	Schedule model.ScheduleSpec
	LogDir   string
	// StartDelay postpones the run dispatched by Start.
	StartDelay time.Duration
	// PollInterval is how often the schedule is checked, at most a minute.
	PollInterval time.Duration
	// MaxConcurrentRuns limits overlapping runs, 0 means unlimited.
	MaxConcurrentRuns int
}

// SettingsFromConfig maps the configuration file to session settings.
func SettingsFromConfig(cfg model.Config) Settings {
	return Settings{
		Host:              strings.TrimSpace(cfg.Host),
		Schedule:          cfg.Schedule,
		LogDir:            cfg.ReportDir(),
		StartDelay:        cfg.StartDelay(),
		PollInterval:      cfg.PollInterval(),
		MaxConcurrentRuns: cfg.Service.MaxConcurrentRuns,
	}
}

func (s Settings) withDefaults() Settings {
	s.Host = strings.TrimSpace(s.Host)
	s.LogDir = strings.TrimSpace(s.LogDir)
	if s.StartDelay < 0 {
		s.StartDelay = 0
	}
	if s.PollInterval <= 0 {
		s.PollInterval = model.DefaultPollInterval
	}
	return s
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Host) == "" {
		errs = append(errs, &model.FieldError{Field: "host", Err: model.ErrEmptyHost})
	}
	if strings.TrimSpace(s.LogDir) == "" {
		errs = append(errs, &model.FieldError{Field: "log_dir", Err: model.ErrEmptyLogDir})
	}
	if err := s.Schedule.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.PollInterval > model.MaxPollInterval {
		errs = append(errs, &model.FieldError{Field: "service.poll_interval", Value: s.PollInterval.String(), Err: model.ErrPollInterval})
	}
	if s.MaxConcurrentRuns < 0 {
		errs = append(errs, &model.FieldError{Field: "service.max_concurrent_runs", Err: errors.New("must not be negative")})
	}
	return errors.Join(errs...)
}
