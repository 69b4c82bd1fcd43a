package diag

import (
	"net/http"
	"strconv"
	"time"

	"github.com/CZERTAINLY/apimon/internal/model"
	"github.com/CZERTAINLY/apimon/internal/probe"
)

// curlTimingFormat makes curl print the same labels as HTTPTimingStage.
const curlTimingFormat = `DNS Lookup:      %{time_namelookup}s\n` +
	`TCP Connection:  %{time_connect}s\n` +
	`SSL Handshake:   %{time_appconnect}s\n` +
	`TTFB:            %{time_starttransfer}s\n` +
	`Total Time:      %{time_total}s\n`

type StageOptions struct {
	Runner    ProbeRunner
	Timeout   time.Duration // per tool
	PingCount int
	HTTPS     string // model.HTTPSProbeCurl or model.HTTPSProbeBuiltin
	Client    *http.Client
}

// DefaultStages returns the four diagnostic stages for goos in the report
// order: path trace, DNS resolution timing, ping and HTTPS timing.
func DefaultStages(goos string, opts StageOptions) []Stage {
	if opts.Timeout <= 0 {
		opts.Timeout = model.DefaultProbeTimeout
	}
	if opts.PingCount <= 0 {
		opts.PingCount = model.DefaultPingCount
	}
	if opts.Runner == nil {
		opts.Runner = probe.NewRunner()
	}

	cmd := func(path string, args ...string) probe.Command {
		return probe.Command{Path: path, Args: args, Timeout: opts.Timeout}
	}
	count := strconv.Itoa(opts.PingCount)

	var trace, dns, ping, curl func(host string) probe.Command
	if goos == "windows" {
		trace = func(host string) probe.Command { return cmd("tracert", "-d", "-w", "1000", host) }
		dns = func(host string) probe.Command {
			return cmd("powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command",
				"Measure-Command {Resolve-DnsName "+host+" -Type A -ErrorAction SilentlyContinue}")
		}
		ping = func(host string) probe.Command { return cmd("ping", "-n", count, host) }
		curl = func(host string) probe.Command {
			return cmd("curl", "-o", "NUL", "-s", "-w", curlTimingFormat, "https://"+host)
		}
	} else {
		trace = func(host string) probe.Command { return cmd("traceroute", "-n", "-w", "1", host) }
		dns = func(host string) probe.Command { return cmd("dig", "+tries=1", host, "A") }
		ping = func(host string) probe.Command { return cmd("ping", "-c", count, host) }
		curl = func(host string) probe.Command {
			return cmd("curl", "-o", "/dev/null", "-s", "-w", curlTimingFormat, "https://"+host)
		}
	}

	stages := []Stage{
		NewCommandStage(TitleTraceroute, opts.Runner, trace),
		NewCommandStage(TitleDNS, opts.Runner, dns),
		NewCommandStage(TitlePing, opts.Runner, ping),
	}
	if opts.HTTPS == model.HTTPSProbeBuiltin {
		stages = append(stages, &HTTPTimingStage{Client: opts.Client, Timeout: opts.Timeout})
	} else {
		stages = append(stages, NewCommandStage(TitleHTTPS, opts.Runner, curl))
	}
	return stages
}
