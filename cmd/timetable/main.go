package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomasr8/new-timetable/internal/config"
	"github.com/tomasr8/new-timetable/internal/layout"
	appLog "github.com/tomasr8/new-timetable/internal/log"
	"github.com/tomasr8/new-timetable/internal/seed"
	"github.com/tomasr8/new-timetable/internal/timetable"
	"github.com/tomasr8/new-timetable/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	seedPath   string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		appLog.Warn("default config could not be saved", "config_path", flags.configPath, "reason", err.Error())
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.seedPath != "" {
		conf.Seed = config.SeedConfig{File: flags.seedPath}
	}
	if !flags.debug {
		level, ok := appLog.ParseLevel(conf.LogLevel)
		if !ok {
			appLog.Warn("unknown log level; using info", "log_level", conf.LogLevel)
		}
		appLog.SetLevel(level)
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Warn("unknown timezone; using UTC", "timezone", conf.Timezone)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"pixels_per_minute", conf.PixelsPerMinute,
		"snap_minutes", conf.SnapMinutes,
		"min_duration_minutes", conf.MinDurationMinutes,
		"refresh", conf.RefreshCron,
		"once", flags.once,
	)

	load, sourceName, err := newSeedLoader(conf.Seed, loc)
	if err != nil {
		appLog.Error("invalid seed configuration", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, _, err := load(ctx)
	if err != nil {
		appLog.Error("failed to load seed", err, "source", sourceName)
		os.Exit(1)
	}
	snap, err := timetable.New(entries, timetable.Options{
		Layout:      layout.Options{PixelsPerMinute: conf.PixelsPerMinute},
		MinDuration: conf.MinDurationMinutes,
	})
	if err != nil {
		appLog.Error("seed rejected", err, "source", sourceName)
		os.Exit(1)
	}
	appLog.Info("seed loaded", "source", sourceName, "entries", snap.Len())

	if flags.once {
		out, err := seed.Encode(snap.Entries())
		if err != nil {
			appLog.Error("failed to encode layout", err)
			os.Exit(1)
		}
		if _, err := os.Stdout.Write(out); err != nil {
			appLog.Error("failed to write layout", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, conf, timetable.NewBoard(snap), load); err != nil {
		appLog.Error("server stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("timetable exiting")
}

// run serves the API until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, conf *config.Config, board *timetable.Board, load web.LoadFunc) error {
	srv := web.NewServer(conf, board, load)

	stopRefresh, err := srv.StartRefresh(ctx, conf.RefreshCron)
	if err != nil {
		return err
	}
	defer stopRefresh()

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.seedPath, "seed", "", "YAML seed file (overrides the configured seed source)")
	flag.BoolVar(&cfg.once, "once", false, "Lay out the seed, print it as YAML and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
