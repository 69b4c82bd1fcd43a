package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyHost          = errors.New("host is empty")
	ErrEmptyLogDir        = errors.New("log folder is empty")
	ErrEmptySchedule      = errors.New("at least one schedule time, an interval or a cron expression is required")
	ErrAmbiguousSchedule  = errors.New("only one of times, interval_minutes and cron may be set")
	ErrInvalidTime        = errors.New("invalid time format, use HH:MM (24-hour format)")
	ErrInvalidInterval    = errors.New("interval must be a positive number of minutes")
	ErrInvalidCron        = errors.New("invalid cron expression")
	ErrInvalidTimezone    = errors.New("unknown timezone")
	ErrUnsupportedVersion = errors.New("unsupported config version")
	ErrPollInterval       = errors.New("poll interval must not exceed one minute")
)

// FieldError identifies the configuration field a validation failure belongs to.
type FieldError struct {
	Field string // host, schedule.times[1], probes.timeout ...
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(field, value string, err error) error {
	return &FieldError{Field: field, Value: value, Err: err}
}
