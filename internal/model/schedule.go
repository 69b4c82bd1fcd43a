package model

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Clock is a wall-clock time of day with minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24-hour HH:MM value.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, ErrInvalidTime
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) Compare(o Clock) int {
	return cmp.Or(cmp.Compare(c.Hour, o.Hour), cmp.Compare(c.Minute, o.Minute))
}

type ScheduleKind int

const (
	ScheduleNone ScheduleKind = iota
	ScheduleDaily
	ScheduleInterval
	ScheduleCron
)

// ScheduleSpec selects when diagnostic runs are triggered. Exactly one of
// Times, IntervalMinutes and Cron is expected to be set.
type ScheduleSpec struct {
	Times           []string `json:"times,omitempty" yaml:"times,omitempty"`
	IntervalMinutes int      `json:"interval_minutes,omitempty" yaml:"interval_minutes,omitempty"`
	Cron            string   `json:"cron,omitempty" yaml:"cron,omitempty"`
	Timezone        string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

func DailySpec(times ...string) ScheduleSpec {
	return ScheduleSpec{Times: times}
}

func IntervalSpec(minutes int) ScheduleSpec {
	return ScheduleSpec{IntervalMinutes: minutes}
}

func CronSpec(expr string) ScheduleSpec {
	return ScheduleSpec{Cron: expr}
}

func (s ScheduleSpec) hasTimes() bool {
	return slices.ContainsFunc(s.Times, func(t string) bool {
		return strings.TrimSpace(t) != ""
	})
}

// Kind reports the variant in use. Blank time entries do not count, the same
// way an empty time box of the form was skipped.
func (s ScheduleSpec) Kind() ScheduleKind {
	switch {
	case s.hasTimes():
		return ScheduleDaily
	case s.IntervalMinutes != 0:
		return ScheduleInterval
	case strings.TrimSpace(s.Cron) != "":
		return ScheduleCron
	default:
		return ScheduleNone
	}
}

// Clocks returns the parsed, deduplicated and sorted daily times. Every
// invalid entry is reported with its index.
func (s ScheduleSpec) Clocks() ([]Clock, error) {
	var errs []error
	clocks := make([]Clock, 0, len(s.Times))
	for i, raw := range s.Times {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, err := ParseClock(raw)
		if err != nil {
			errs = append(errs, fieldErr(fmt.Sprintf("schedule.times[%d]", i), raw, err))
			continue
		}
		clocks = append(clocks, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(clocks) == 0 {
		return nil, fieldErr("schedule.times", "", ErrEmptySchedule)
	}
	slices.SortFunc(clocks, Clock.Compare)
	return slices.Compact(clocks), nil
}

// Location resolves Timezone, empty and "Local" meaning the machine zone.
func (s ScheduleSpec) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fieldErr("schedule.timezone", name, fmt.Errorf("%w: %w", ErrInvalidTimezone, err))
	}
	return loc, nil
}

// Validate checks the spec the way the schedule will interpret it.
func (s ScheduleSpec) Validate() error {
	set := 0
	if s.hasTimes() {
		set++
	}
	if s.IntervalMinutes != 0 {
		set++
	}
	if strings.TrimSpace(s.Cron) != "" {
		set++
	}
	if set > 1 {
		return fieldErr("schedule", "", ErrAmbiguousSchedule)
	}

	if _, err := s.Location(); err != nil {
		return err
	}

	switch s.Kind() {
	case ScheduleDaily:
		_, err := s.Clocks()
		return err
	case ScheduleInterval:
		if s.IntervalMinutes < 0 {
			return fieldErr("schedule.interval_minutes", fmt.Sprint(s.IntervalMinutes), ErrInvalidInterval)
		}
		return nil
	case ScheduleCron:
		if _, err := ParseCron(s.Cron); err != nil {
			return fieldErr("schedule.cron", s.Cron, fmt.Errorf("%w: %w", ErrInvalidCron, err))
		}
		return nil
	default:
		return fieldErr("schedule", "", ErrEmptySchedule)
	}
}

func (s ScheduleSpec) String() string {
	switch s.Kind() {
	case ScheduleDaily:
		clocks, err := s.Clocks()
		if err != nil {
			return strings.Join(s.Times, ", ")
		}
		times := make([]string, 0, len(clocks))
		for _, c := range clocks {
			times = append(times, c.String())
		}
		return strings.Join(times, ", ")
	case ScheduleInterval:
		if s.IntervalMinutes == 1 {
			return "every minute"
		}
		return fmt.Sprintf("every %d minutes", s.IntervalMinutes)
	case ScheduleCron:
		return "cron " + strings.TrimSpace(s.Cron)
	default:
		return "none"
	}
}
