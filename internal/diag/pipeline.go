// Package diag runs the diagnostic probes against a host and collects their
// output into a Report.
//
// The Pipeline executes a fixed, ordered list of stages one after the other,
// stage N+1 starts only after the process of stage N has finished and its
// output was captured. A failing stage never aborts the run: its section gets
// the partial output and an ERROR: line, and the next stage runs. Output of
// the tools is not interpreted, the report is meant to be read by a human.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/apimon/internal/log"
)

type Pipeline struct {
	stages []Stage
	now    func() time.Time
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{
		stages: stages,
		now:    time.Now,
	}
}

// WithClock replaces the source of the report generation time.
// This method exists for a unit testing only.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Execute runs every stage against host and returns the report. It always
// returns one section per stage, in stage order.
func (p *Pipeline) Execute(ctx context.Context, host string) Report {
	report := Report{
		Host:        host,
		GeneratedAt: p.now().Truncate(time.Second),
		Sections:    make([]Section, 0, len(p.stages)),
	}

	for idx, stage := range p.stages {
		stageCtx := log.ContextAttrs(ctx,
			slog.String("stage", stage.Title()),
			slog.Int("stage_idx", idx+1),
		)
		started := time.Now()
		text, err := runStage(stageCtx, stage, host)
		if err != nil {
			slog.WarnContext(stageCtx, "stage failed", "error", err)
			text = appendLine(text, fmt.Sprintf("%s %s stage for %s failed: %v", ErrorMarker, stage.Title(), host, err))
		}
		slog.DebugContext(stageCtx, "stage finished", "elapsed", time.Since(started).String())
		report.Sections = append(report.Sections, Section{
			Title: stage.Title(),
			Text:  text,
		})
	}
	return report
}

func runStage(ctx context.Context, stage Stage, host string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(ctx, host)
}
