// Package schedule decides when a diagnostic run is due.
//
// A Schedule is polled by the session loop with the current time, roughly
// once per second. Due reports true exactly once per trigger and records the
// fire, so a sub-minute poll cadence never fires the same trigger twice.
// Schedules are not safe for concurrent use; the owner serializes calls.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/CZERTAINLY/apimon/internal/model"

	"github.com/robfig/cron/v3"
)

type Schedule interface {
	// Due reports whether a run should be dispatched at now and, if so,
	// marks the trigger as fired.
	Due(now time.Time) bool
	String() string
}

// FromSpec validates spec and builds the matching schedule. start is the
// session start time, the reference point of Interval schedules.
func FromSpec(spec model.ScheduleSpec, start time.Time) (Schedule, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	loc, err := spec.Location()
	if err != nil {
		return nil, err
	}

	switch spec.Kind() {
	case model.ScheduleDaily:
		clocks, err := spec.Clocks()
		if err != nil {
			return nil, err
		}
		return NewDaily(loc, clocks...).StartedAt(start), nil
	case model.ScheduleInterval:
		return NewInterval(time.Duration(spec.IntervalMinutes)*time.Minute, start)
	case model.ScheduleCron:
		return NewCron(spec.Cron, loc, start)
	default:
		return nil, fmt.Errorf("unsupported schedule %q", spec.String())
	}
}

// Daily fires once per day at every configured wall-clock minute.
type Daily struct {
	loc   *time.Location
	times []model.Clock
	fired map[model.Clock]string // date of the last fire
}

func NewDaily(loc *time.Location, times ...model.Clock) *Daily {
	if loc == nil {
		loc = time.Local
	}
	return &Daily{
		loc:   loc,
		times: times,
		fired: make(map[model.Clock]string, len(times)),
	}
}

// StartedAt marks the clocks of the minute t falls in as fired, so a
// session started at 09:00:30 runs its 09:00 trigger tomorrow.
func (d *Daily) StartedAt(t time.Time) *Daily {
	t = t.In(d.loc)
	current := model.Clock{Hour: t.Hour(), Minute: t.Minute()}
	for _, c := range d.times {
		if c == current {
			d.fired[c] = t.Format(time.DateOnly)
		}
	}
	return d
}

func (d *Daily) Due(now time.Time) bool {
	now = now.In(d.loc)
	current := model.Clock{Hour: now.Hour(), Minute: now.Minute()}
	for _, c := range d.times {
		if c != current {
			continue
		}
		day := now.Format(time.DateOnly)
		if d.fired[c] == day {
			return false
		}
		d.fired[c] = day
		return true
	}
	return false
}

func (d *Daily) String() string {
	names := make([]string, 0, len(d.times))
	for _, c := range d.times {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}

// Interval fires whenever at least every has elapsed since the last fire,
// the first time one interval after start.
type Interval struct {
	every time.Duration
	last  time.Time
}

func NewInterval(every time.Duration, start time.Time) (*Interval, error) {
	if every <= 0 {
		return nil, model.ErrInvalidInterval
	}
	return &Interval{every: every, last: start}, nil
}

func (i *Interval) Due(now time.Time) bool {
	if now.Sub(i.last) < i.every {
		return false
	}
	i.last = now
	return true
}

func (i *Interval) String() string {
	return "every " + i.every.String()
}

// Cron fires at the activations of a cron expression. Activations missed
// between two polls collapse into one fire.
type Cron struct {
	expr  string
	sched cron.Schedule
	loc   *time.Location
	next  time.Time
}

func NewCron(expr string, loc *time.Location, start time.Time) (*Cron, error) {
	sched, err := model.ParseCron(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidCron, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Cron{
		expr:  expr,
		sched: sched,
		loc:   loc,
		next:  sched.Next(start.In(loc)),
	}, nil
}

func (c *Cron) Due(now time.Time) bool {
	if c.next.IsZero() || now.Before(c.next) {
		return false
	}
	c.next = c.sched.Next(now.In(c.loc))
	return true
}

func (c *Cron) String() string {
	return "cron " + c.expr
}
