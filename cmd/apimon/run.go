package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/CZERTAINLY/apimon/internal/log"
	"github.com/CZERTAINLY/apimon/internal/model"
	"github.com/CZERTAINLY/apimon/internal/report"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run monitors the host until interrupted",
	RunE:  doRun,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "once runs the diagnostics one time and saves the report",
	RunE:  doOnce,
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "reports lists the saved reports",
	RunE:  doReports,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "config prints the effective configuration",
	RunE:  doConfig,
}

func cmdContext(cmd *cobra.Command) context.Context {
	attrs := slog.Group("apimon",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	session, err := newSession(config, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// runs outlive the signal for the grace period
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	if err := session.Start(runCtx); err != nil {
		return err
	}

	finished := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		<-sigCtx.Done()
		slog.InfoContext(ctx, "shutting down", "grace", flagGrace.String())
		session.Stop()
		select {
		case <-finished:
		case <-time.After(flagGrace):
			slog.WarnContext(ctx, "grace period expired: canceling runs in progress")
			cancelRuns()
		}
		return nil
	})
	g.Go(func() error {
		<-sigCtx.Done()
		session.Wait()
		close(finished)
		return nil
	})
	return g.Wait()
}

func doOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := newSession(config, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	_, err = session.Run(ctx)
	session.Wait()
	return err
}

func doReports(cmd *cobra.Command, args []string) error {
	dir := config.ReportDir()
	entries, err := report.List(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "no reports in %s\n", dir)
		return nil
	}

	summaries, err := report.Summarize(cmdContext(cmd), entries, runtime.NumCPU())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tHOST\tSECTIONS\tSIZE\tFILE")
	for _, s := range summaries {
		host, sections := "?", "?"
		if s.Err != nil {
			slog.WarnContext(cmd.Context(), "unreadable report", "path", s.Path, "error", s.Err)
		} else {
			host = s.Host
			sections = fmt.Sprint(s.Sections)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.Time.Format(time.DateTime), host, sections, s.Size, s.Name)
	}
	return tw.Flush()
}

func doConfig(cmd *cobra.Command, args []string) error {
	cfg := config
	if flagDefault {
		cfg = model.DefaultConfig()
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", configPath)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
