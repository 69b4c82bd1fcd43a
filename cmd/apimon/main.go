package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/CZERTAINLY/apimon/internal/log"
	"github.com/CZERTAINLY/apimon/internal/model"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const configName = "apimon.yaml"

var (
	userConfigPath string // /default/config/path/apimon on given OS
	configPath     string // actual config file used
	config         model.Config

	flagConfigFilePath string        // value of --config flag
	flagVerbose        bool          // value of --verbose flag
	flagHost           string        // value of --host flag
	flagLogDir         string        // value of --log-dir flag
	flagTimes          []string      // value of --times flag
	flagInterval       int           // value of --interval flag
	flagCron           string        // value of --cron flag
	flagGrace          time.Duration // value of run --grace flag
	flagDefault        bool          // value of config --default flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		d = "."
	}
	userConfigPath = filepath.Join(d, "apimon")
}

func main() {
	// root flags
	rootFlags(rootCmd.PersistentFlags())
	rootCmd.MarkFlagsMutuallyExclusive("times", "interval", "cron")

	runCmd.Flags().DurationVar(&flagGrace, "grace", 30*time.Second, "how long to wait for runs in progress on shutdown")
	configCmd.Flags().BoolVar(&flagDefault, "default", false, "print the default configuration")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initApimon

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("apimon failed", "err", err)
		os.Exit(1)
	}
}

func rootFlags(pf *pflag.FlagSet) {
	pf.StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	pf.BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	pf.StringVar(&flagHost, "host", "", "API host to diagnose, overrides the config file")
	pf.StringVar(&flagLogDir, "log-dir", "", "folder for the reports, overrides the config file")
	pf.StringSliceVar(&flagTimes, "times", nil, "daily run times in HH:MM, e.g. 12:00,17:00")
	pf.IntVar(&flagInterval, "interval", 0, "run every N minutes instead of at fixed times")
	pf.StringVar(&flagCron, "cron", "", "run at the activations of a cron expression")
}

var rootCmd = &cobra.Command{
	Use:          "apimon",
	Short:        "Scheduled network diagnostics of an API host",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of an apimon",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Fprintln(out, "apimon: version info not available")
			return
		}

		if configPath != "" {
			fmt.Fprintf(out, "config: %s\n", configPath)
		}
		fmt.Fprintf(out, "apimon: %s\n", info.Main.Version)
		fmt.Fprintf(out, "go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Fprintf(out, "commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Fprintf(out, "date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Fprintf(out, "dirty:  %s\n", s.Value)
			}
		}
		fmt.Fprintln(out)
	},
}

func initApimon(cmd *cobra.Command, _ []string) error {
	configPath = lookupConfig()

	var err error
	if configPath == "" {
		configPath = filepath.Join(userConfigPath, configName)
		config, err = storeDefaultConfig(configPath)
		if err != nil {
			return err
		}
	} else {
		config, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}

	// flags have a precedence over config file
	if err := applyFlags(cmd, &config); err != nil {
		return err
	}

	slog.SetDefault(log.New(config.Verbose(), os.Stderr))

	slog.Debug("apimon run", "configPath", configPath)
	slog.Debug("apimon run", "config", config)
	return nil
}

func lookupConfig() string {
	if envConfig, ok := os.LookupEnv("APIMONCONFIG"); ok && envConfig != "" {
		return envConfig
	}
	if flagConfigFilePath != "" {
		return flagConfigFilePath
	}
	for _, d := range []string{".", userConfigPath} {
		path := filepath.Join(d, configName)
		if exists(path) {
			return path
		}
	}
	return ""
}

func storeDefaultConfig(path string) (model.Config, error) {
	cfg := model.DefaultConfig()
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return cfg, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return cfg, fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	slog.Info("default configuration stored", "path", path)
	return cfg, nil
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid configuration", d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return *cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *model.Config) error {
	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Service.Verbose = &flagVerbose
	}

	changed := false
	if flags.Changed("host") {
		cfg.Host = strings.TrimSpace(flagHost)
		changed = true
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = flagLogDir
		changed = true
	}

	tz := cfg.Schedule.Timezone
	switch {
	case flags.Changed("times"):
		cfg.Schedule = model.DailySpec(flagTimes...)
		changed = true
	case flags.Changed("interval"):
		cfg.Schedule = model.IntervalSpec(flagInterval)
		changed = true
	case flags.Changed("cron"):
		cfg.Schedule = model.CronSpec(flagCron)
		changed = true
	}
	cfg.Schedule.Timezone = tz

	if !changed {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid command line: %w", err)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
