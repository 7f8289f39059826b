package scrape

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/silasm01/calendar-manager/internal/ics"
	appLog "github.com/silasm01/calendar-manager/internal/log"
)

const publishTimeout = 10 * time.Second

// PublishShifts upserts every shift into the approved calendar store at
// {approvedURL}{uid}.ics. The UID is derived from the shift's start
// instant, so re-running the scraper overwrites instead of duplicating.
// Per-shift failures are logged and the sweep continues; the returned count
// is the number of successful upserts.
func PublishShifts(ctx context.Context, approvedURL, summary string, shifts []Shift) (int, error) {
	if approvedURL == "" {
		return 0, errors.New("scrape: approved store URL is empty")
	}

	client := &http.Client{Timeout: publishTimeout}
	now := time.Now()

	published := 0
	for _, shift := range shifts {
		uid := shiftUID(shift)
		body := ics.BuildPlaceholder(ics.Placeholder{
			UID:   uid,
			Start: shift.Start,
			End:   shift.End,
			Title: summary,
		}, now)

		if err := upsertShift(ctx, client, approvedURL+uid+".ics", body); err != nil {
			appLog.Warn("shift upsert failed", err, "uid", uid)
			continue
		}
		published++
	}

	appLog.Info("shifts published", "published", published, "total", len(shifts))
	return published, nil
}

// shiftUID gives each shift a stable identity based on its start instant.
func shiftUID(shift Shift) string {
	return "shift-" + shift.Start.UTC().Format("20060102T150405Z")
}

func upsertShift(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(resp.Status)
	}
	return nil
}
