package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/silasm01/calendar-manager/internal/config"
	appLog "github.com/silasm01/calendar-manager/internal/log"
	"github.com/silasm01/calendar-manager/internal/model"
	"github.com/silasm01/calendar-manager/internal/publish"
	"github.com/silasm01/calendar-manager/internal/reconcile"
	"github.com/silasm01/calendar-manager/internal/store"
	"github.com/silasm01/calendar-manager/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("calmanage starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"sync_window_days", conf.SyncWindowDays,
		"refresh", conf.RefreshCron,
		"source_count", len(conf.Sources),
		"approved_feed", conf.ApprovedFeed != nil,
		"once", flags.once,
	)

	settings, err := store.Open(conf.DatabasePath)
	if err != nil {
		appLog.Error("failed to open settings database", err, "path", conf.DatabasePath)
		os.Exit(1)
	}
	defer settings.Close()

	sources := configSources(conf)
	opts := reconcile.Options{
		Sources:    sources,
		WindowDays: conf.SyncWindowDays,
		Buffers:    settings,
	}
	if conf.ApprovedFeed != nil {
		opts.ApprovedFeedName = conf.ApprovedFeed.Name
		opts.ApprovedFeedURL = conf.ApprovedFeed.URL
	}
	engine := reconcile.New(opts)
	publisher := publish.New(sources)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		runOnce(ctx, engine)
		return
	}

	// Periodic pass keeps logs fresh and surfaces feed problems early even
	// when nobody is hitting the API.
	if conf.RefreshCron != "" {
		c := cron.New()
		_, cronErr := c.AddFunc(conf.RefreshCron, func() {
			if _, err := engine.Run(ctx, time.Now()); err != nil {
				appLog.Error("scheduled reconcile pass failed", err)
			}
		})
		if cronErr != nil {
			appLog.Error("invalid refresh schedule", cronErr, "refresh", conf.RefreshCron)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
	}

	server := web.NewServer(conf, engine, publisher, settings)
	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLog.Error("HTTP server shutdown failed", err)
		}
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("calmanage exiting")
}

// runOnce executes a single reconciliation pass and prints the result as
// JSON to stdout.
func runOnce(ctx context.Context, engine *reconcile.Engine) {
	events, err := engine.Run(ctx, time.Now())
	if err != nil {
		appLog.Error("reconcile pass failed", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		appLog.Error("failed to encode events", err)
		os.Exit(1)
	}
}

func configSources(conf *config.Config) []model.Source {
	sources := make([]model.Source, 0, len(conf.Sources))
	for _, src := range conf.Sources {
		sources = append(sources, model.Source{
			Name:       src.Name,
			FeedURL:    src.FeedURL,
			BlockedURL: src.BlockedURL,
		})
	}
	return sources
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calmanage/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one reconciliation pass, print JSON and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
