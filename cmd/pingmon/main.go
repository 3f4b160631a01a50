// Command pingmon samples round-trip latency to one or more hosts on a
// fixed cadence and writes the samples as a network log CSV, the format the
// timeline matcher consumes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/screenlag/internal/config"
	"github.com/banshee-data/screenlag/internal/logging"
	"github.com/banshee-data/screenlag/internal/netlog"
	"github.com/banshee-data/screenlag/internal/version"
)

func main() {
	var (
		targets     = flag.String("targets", "", "comma-separated ping targets (default from config)")
		interval    = flag.Duration("interval", 0, "time between ping cycles (default from config)")
		timeout     = flag.Duration("timeout", 0, "per-ping timeout (default from config)")
		duration    = flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
		out         = flag.String("out", "network_log.csv", "output CSV path")
		configPath  = flag.String("config", "", "tuning config JSON (optional)")
		verbose     = flag.Bool("v", false, "debug logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger := logging.New(os.Stderr, *verbose)

	if err := run(logger, *targets, *interval, *timeout, *duration, *out, *configPath); err != nil {
		logger.Error("pingmon failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, targets string, interval, timeout, duration time.Duration, out, configPath string) error {
	tuning := config.EmptyTuningConfig()
	if configPath != "" {
		loaded, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return err
		}
		tuning = loaded
	}

	cfg := tuning.MonitorConfig()
	if targets != "" {
		cfg.Targets = splitTargets(targets)
	}
	if interval > 0 {
		cfg.Interval = interval
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	mon := netlog.NewMonitor(cfg, nil, nil, logger)
	if err := mon.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	<-ctx.Done()
	logger.Info("stopping ping monitor")

	joinCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	entries, err := mon.Stop(joinCtx)
	if err != nil {
		logger.Warn("monitor did not stop cleanly", "error", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no samples collected")
	}

	if err := netlog.SaveLog(out, entries); err != nil {
		return err
	}

	stats := mon.Stats(entries)
	logger.Info("network log written",
		"path", out,
		"samples", stats.Total,
		"success", stats.Success,
		"timeouts", stats.Timeouts,
		"loss_rate", fmt.Sprintf("%.1f%%", stats.LossRate*100),
		"avg_ping_ms", fmt.Sprintf("%.1f", stats.AvgPingMs))
	return nil
}

func splitTargets(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
