package main

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/CZERTAINLY/apimon/internal/diag"
	"github.com/CZERTAINLY/apimon/internal/model"
	"github.com/CZERTAINLY/apimon/internal/probe"
	"github.com/CZERTAINLY/apimon/internal/report"
	"github.com/CZERTAINLY/apimon/internal/service"
)

// newPipeline builds the diagnostic stages of this OS tuned by cfg.
func newPipeline(cfg model.Config) (*diag.Pipeline, error) {
	dec, err := probe.NewDecoder(cfg.Encoding())
	if err != nil {
		return nil, fmt.Errorf("probes.encoding: %w", err)
	}
	runner := probe.NewRunner(probe.WithDecoder(dec))
	stages := diag.DefaultStages(runtime.GOOS, diag.StageOptions{
		Runner:    runner,
		Timeout:   cfg.ProbeTimeout(),
		PingCount: cfg.PingCount(),
		HTTPS:     cfg.Probes.HTTPS,
	})
	return diag.NewPipeline(stages...), nil
}

// newSession returns a configured session printing its status to out.
func newSession(cfg model.Config, out io.Writer) (*service.Session, error) {
	pipeline, err := newPipeline(cfg)
	if err != nil {
		return nil, err
	}
	session := service.NewSession(pipeline, report.NewWriter(), statusPrinter(out))
	if err := session.Configure(service.SettingsFromConfig(cfg)); err != nil {
		return nil, err
	}
	return session, nil
}

// statusPrinter prints every status message as [HH:MM:SS] message.
func statusPrinter(out io.Writer) service.StatusFunc {
	return func(msg string) {
		fmt.Fprintf(out, "[%s] %s\n", time.Now().Format(time.TimeOnly), msg)
	}
}
