package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/silasm01/calendar-manager/internal/config"
	"github.com/silasm01/calendar-manager/internal/ics"
	appLog "github.com/silasm01/calendar-manager/internal/log"
)

// calclear wipes every event out of one calendar store: fetch the store's
// feed, enumerate UIDs, delete each {baseURL}{uid}.ics resource. Meant for
// resetting placeholder stores or the approved calendar during testing.
func main() {
	var configPath, storeName string
	var yes bool
	flag.StringVar(&configPath, "config", "/etc/calmanage/config.yaml", "Path to config file")
	flag.StringVar(&storeName, "store", "", "Store to clear: a source name (its placeholder store) or \"approved\"")
	flag.BoolVar(&yes, "yes", false, "Actually delete; without this flag nothing is removed")
	flag.Parse()

	conf, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		os.Exit(1)
	}

	baseURL, err := resolveStoreURL(conf, storeName)
	if err != nil {
		appLog.Error("cannot resolve store", err, "store", storeName)
		os.Exit(1)
	}

	ctx := context.Background()

	fetcher := ics.NewFetcher()
	results := fetcher.FetchAll(ctx, []ics.Request{{ID: storeName, URL: baseURL}})
	res := results[storeName]
	if res.Err != nil {
		appLog.Error("failed to fetch store feed", res.Err, "store", storeName)
		os.Exit(1)
	}

	placeholders, err := ics.ParsePlaceholders(res.Body)
	if err != nil {
		appLog.Error("failed to parse store feed", err, "store", storeName)
		os.Exit(1)
	}

	appLog.Info("events found", "store", storeName, "count", len(placeholders))
	if !yes {
		appLog.Info("dry run; pass -yes to delete")
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	deleted := 0
	for uid := range placeholders {
		if err := deleteEvent(ctx, client, baseURL+uid+".ics"); err != nil {
			appLog.Warn("delete failed", err, "uid", uid)
			continue
		}
		deleted++
	}

	appLog.Info("store cleared", "store", storeName, "deleted", deleted, "total", len(placeholders))
}

func resolveStoreURL(conf *config.Config, name string) (string, error) {
	if name == "" {
		return "", errors.New("no -store given")
	}
	if name == "approved" {
		if conf.ApprovedFeed == nil || conf.ApprovedFeed.URL == "" {
			return "", errors.New("no approved_feed configured")
		}
		return conf.ApprovedFeed.URL, nil
	}
	for _, src := range conf.Sources {
		if src.Name == name {
			return src.BlockedURL, nil
		}
	}
	return "", errors.New("unknown source " + name)
}

func deleteEvent(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(resp.Status)
	}
	return nil
}
