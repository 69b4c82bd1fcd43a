package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/CZERTAINLY/apimon/internal/diag"
	"github.com/CZERTAINLY/apimon/internal/log"
	"github.com/CZERTAINLY/apimon/internal/report"
	"github.com/CZERTAINLY/apimon/internal/schedule"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	ErrSessionRunning = errors.New("monitoring session is already running")
	ErrNotConfigured  = errors.New("monitoring session is not configured")
)

type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Pipeline produces the diagnostic report for a host, see diag.Pipeline.
type Pipeline interface {
	Execute(ctx context.Context, host string) diag.Report
}

// ReportWriter stores reports, see report.Writer.
type ReportWriter interface {
	Prepare(dir string) error
	Write(ctx context.Context, rep diag.Report, dir string) (string, error)
}

type Option func(*Session)

// WithNotifyBuffer sets how many status messages may wait for the
// StatusFunc before new ones are dropped.
func WithNotifyBuffer(size int) Option {
	return func(s *Session) {
		s.notifier = newNotifier(s.notifier.fn, size)
	}
}

// Session schedules diagnostic runs for one host. It is safe for concurrent
// use.
type Session struct {
	pipeline Pipeline
	writer   ReportWriter
	notifier *notifier

	mu       sync.Mutex
	settings *Settings
	sem      *semaphore.Weighted
	state    State
	stop     chan struct{}

	wg sync.WaitGroup // loop and runs
}

func NewSession(pipeline Pipeline, writer ReportWriter, status StatusFunc, opts ...Option) *Session {
	s := &Session{
		pipeline: pipeline,
		writer:   writer,
		notifier: newNotifier(status, defaultNotifyBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure validates and stores the settings used by the next Start or
// run. A running session can't be reconfigured.
func (s *Session) Configure(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return ErrSessionRunning
	}

	settings = settings.withDefaults()
	if err := settings.Validate(); err != nil {
		s.status(context.Background(), "Configuration error: "+err.Error())
		return err
	}

	s.settings = &settings
	s.sem = nil
	if settings.MaxConcurrentRuns > 0 {
		s.sem = semaphore.NewWeighted(int64(settings.MaxConcurrentRuns))
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Settings returns the current settings and false if the session was not
// configured yet.
func (s *Session) Settings() (Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return Settings{}, false
	}
	return *s.settings, true
}

// Start launches the polling loop and schedules one run after the start
// delay. Runs inherit ctx, canceling it kills their probes and stops the
// loop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return ErrSessionRunning
	}
	if s.settings == nil {
		return ErrNotConfigured
	}
	settings := *s.settings

	sched, err := schedule.FromSpec(settings.Schedule, time.Now())
	if err != nil {
		s.status(ctx, "Configuration error: "+err.Error())
		return err
	}

	stop := make(chan struct{})
	s.stop = stop
	s.state = StateRunning

	slog.InfoContext(ctx, "monitoring started", "host", settings.Host, "schedule", sched.String())
	s.status(ctx, fmt.Sprintf("Monitoring started for %s. Scheduled times: %s", settings.Host, settings.Schedule))

	s.wg.Go(func() {
		s.loop(ctx, stop, sched, settings)
	})
	return nil
}

// Stop ends the polling loop and drops pending triggers. Runs in flight
// continue. Stopping a stopped session does nothing.
func (s *Session) Stop() {
	if s.halt(nil) {
		s.status(context.Background(), "Monitoring stopped by user.")
	}
}

// halt moves a running session to stopped. With a non nil stop it only does
// so when stop belongs to the current loop.
func (s *Session) halt(stop chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || (stop != nil && stop != s.stop) {
		return false
	}
	close(s.stop)
	s.stop = nil
	s.state = StateStopped
	return true
}

// Wait blocks until the loop and all runs have finished and every status
// message was delivered. It must not be called concurrently with Start.
func (s *Session) Wait() {
	s.wg.Wait()
	s.notifier.wait()
}

// loop is the session event loop. It multiplexes
//  1. the stop signal and ctx cancellation, which end the loop
//  2. the start delay timer, which dispatches the startup run
//  3. the poll ticker, which asks the schedule whether a run is due
func (s *Session) loop(ctx context.Context, stop chan struct{}, sched schedule.Schedule, settings Settings) {
	slog.DebugContext(ctx, "starting a polling loop", "poll_interval", settings.PollInterval.String())

	delay := time.NewTimer(settings.StartDelay)
	defer delay.Stop()
	ticker := time.NewTicker(settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			slog.DebugContext(ctx, "polling loop stopped")
			return
		case <-ctx.Done():
			if s.halt(stop) {
				slog.InfoContext(ctx, "monitoring stopped", "reason", context.Cause(ctx))
			}
			return
		case <-delay.C:
			if stopped(stop) {
				return
			}
			s.dispatch(ctx, settings, TriggerStartup)
		case now := <-ticker.C:
			if stopped(stop) {
				return
			}
			if sched.Due(now) {
				s.dispatch(ctx, settings, TriggerSchedule)
			}
		}
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// RunOnce dispatches one run in the background, whether the session runs or
// not.
func (s *Session) RunOnce(ctx context.Context) error {
	settings, ok := s.Settings()
	if !ok {
		return ErrNotConfigured
	}
	s.dispatch(ctx, settings, TriggerManual)
	return nil
}

// Run executes one run in the foreground and returns the report path.
func (s *Session) Run(ctx context.Context) (string, error) {
	settings, ok := s.Settings()
	if !ok {
		return "", ErrNotConfigured
	}
	return s.run(runContext(ctx, settings.Host, TriggerManual), settings)
}

func runContext(ctx context.Context, host, trigger string) context.Context {
	return log.ContextAttrs(ctx,
		slog.String("run_id", uuid.NewString()),
		slog.String("host", host),
		slog.String("trigger", trigger),
	)
}

// dispatch starts a run on its own goroutine. When MaxConcurrentRuns is
// reached the trigger is skipped.
func (s *Session) dispatch(ctx context.Context, settings Settings, trigger string) {
	s.mu.Lock()
	sem := s.sem
	s.mu.Unlock()

	runCtx := runContext(ctx, settings.Host, trigger)
	if sem != nil && !sem.TryAcquire(1) {
		slog.WarnContext(runCtx, "run skipped: too many runs in progress", "max_concurrent_runs", settings.MaxConcurrentRuns)
		s.status(runCtx, fmt.Sprintf("Skipping diagnostics for %s: %d run(s) still in progress.", settings.Host, settings.MaxConcurrentRuns))
		return
	}

	s.wg.Go(func() {
		if sem != nil {
			defer sem.Release(1)
		}
		_, _ = s.run(runCtx, settings)
	})
}

// run is one diagnostic run: prepare the log folder, probe the host and store
// the report. Every outcome is reported through the status callback.
func (s *Session) run(ctx context.Context, settings Settings) (path string, err error) {
	host := settings.Host
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "run panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
			s.status(ctx, fmt.Sprintf("A critical error occurred during diagnostics for %s: %v", host, r))
		}
	}()

	started := time.Now()
	slog.InfoContext(ctx, "run started")
	s.status(ctx, fmt.Sprintf("Running diagnostics for %s...", host))

	if err := s.writer.Prepare(settings.LogDir); err != nil {
		return "", s.folderError(ctx, settings.LogDir, err)
	}

	rep := s.pipeline.Execute(ctx, host)

	path, err = s.writer.Write(ctx, rep, settings.LogDir)
	if err != nil {
		if errors.Is(err, report.ErrCreateDir) {
			return "", s.folderError(ctx, settings.LogDir, err)
		}
		slog.ErrorContext(ctx, "saving report failed", "error", err)
		s.status(ctx, fmt.Sprintf("A critical error occurred during diagnostics for %s: %v", host, err))
		return "", err
	}

	slog.InfoContext(ctx, "run finished", "path", path, "elapsed", time.Since(started).String())
	s.status(ctx, "Diagnostics complete. Log saved to "+path)
	return path, nil
}

func (s *Session) folderError(ctx context.Context, dir string, err error) error {
	cause := err
	var dirErr *report.DirError
	if errors.As(err, &dirErr) {
		cause = dirErr.Err
	}
	slog.ErrorContext(ctx, "creating log folder failed", "dir", dir, "error", err)
	s.status(ctx, fmt.Sprintf("Error creating log folder '%s': %v", dir, cause))
	return err
}

func (s *Session) status(ctx context.Context, msg string) {
	s.notifier.notify(ctx, msg)
}
