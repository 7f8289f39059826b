package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silasm01/calendar-manager/internal/config"
	appLog "github.com/silasm01/calendar-manager/internal/log"
	"github.com/silasm01/calendar-manager/internal/scrape"
)

// workscrape logs into the shift-planning site, extracts the confirmed
// shifts for the configured user and upserts them into the approved
// calendar store. Safe to run repeatedly: shift UIDs are deterministic.
func main() {
	var configPath string
	var timeout time.Duration
	flag.StringVar(&configPath, "config", "/etc/calmanage/config.yaml", "Path to config file")
	flag.DurationVar(&timeout, "timeout", scrape.DefaultTimeout, "Browser session timeout")
	flag.Parse()

	conf, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		os.Exit(1)
	}
	if conf.Scrape == nil {
		appLog.Error("no scrape section in config", nil, "config_path", configPath)
		os.Exit(1)
	}
	if conf.ApprovedFeed == nil || conf.ApprovedFeed.URL == "" {
		appLog.Error("no approved_feed store configured", nil, "config_path", configPath)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(conf.Scrape.Timezone)
	if err != nil {
		appLog.Error("invalid scrape timezone", err, "timezone", conf.Scrape.Timezone)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	shifts, err := scrape.FetchShifts(ctx, scrape.Options{
		LoginURL: conf.Scrape.LoginURL,
		Email:    conf.Scrape.Email,
		Password: conf.Scrape.Password,
		UserID:   conf.Scrape.UserID,
		Location: loc,
		Timeout:  timeout,
	})
	if err != nil {
		appLog.Error("shift scrape failed", err)
		os.Exit(1)
	}

	published, err := scrape.PublishShifts(ctx, conf.ApprovedFeed.URL, conf.Scrape.Summary, shifts)
	if err != nil {
		appLog.Error("shift publish failed", err)
		os.Exit(1)
	}

	appLog.Info("workscrape finished", "shifts", len(shifts), "published", published)
}
