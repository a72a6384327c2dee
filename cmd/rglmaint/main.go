// rglmaint runs the gateway's housekeeping on a cron schedule:
// compressing finished recordings, pruning old ones and sweeping stale
// live-session markers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/stlalpha/rgl/internal/config"
	"github.com/stlalpha/rgl/internal/logging"
	"github.com/stlalpha/rgl/internal/maintenance"
	"github.com/stlalpha/rgl/internal/scheduler"
	"github.com/stlalpha/rgl/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rglmaint: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var once bool

	flagSet := pflag.NewFlagSet("rglmaint", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "rgldir/rgl.jsonc", "path to the gateway configuration")
	flagSet.BoolVar(&logging.DebugEnabled, "debug", os.Getenv("RGL_DEBUG") == "1", "enable debug logging")
	flagSet.BoolVar(&once, "once", false, "run every enabled job once and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	closer, err := logging.Init(logging.Options{Level: "info", Console: true})
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	registry, err := session.NewRegistry(cfg.LiveDir)
	if err != nil {
		return err
	}

	tasks := &maintenance.Tasks{
		RecordingsDir: cfg.RecordingsDir,
		Registry:      registry,
		Retention:     cfg.Maintenance.Retention.Std(),
	}
	sched := scheduler.New(tasks.Jobs(cfg.Maintenance), cfg.Maintenance.HistoryFile, cfg.Maintenance.MaxConcurrent)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		sched.RunAll(ctx)
		return nil
	}
	log.Info().Str("recordings", cfg.RecordingsDir).Str("live", cfg.LiveDir).Msg("rglmaint starting")
	return sched.Start(ctx)
}
