package reconcile

import (
	"context"
	"time"

	"github.com/silasm01/calendar-manager/internal/ics"
	appLog "github.com/silasm01/calendar-manager/internal/log"
	"github.com/silasm01/calendar-manager/internal/model"
)

// matchToleranceSec is the combined start+end drift (in seconds) still
// treated as "approved". It absorbs timezone rounding and serialization
// jitter between a feed and the round-tripped placeholder document.
const matchToleranceSec = 60

// BufferSource supplies the buffer-setting snapshot for one pass.
type BufferSource interface {
	AllBuffers(ctx context.Context) (map[model.BufferKey]model.Buffer, error)
}

// Engine reconciles source feeds against the placeholder stores their
// siblings maintain. Each Run owns its own snapshot and result set, so
// concurrent passes never share mutable state.
type Engine struct {
	sources      []model.Source
	approvedName string
	approvedURL  string
	windowDays   int

	fetcher *ics.Fetcher
	buffers BufferSource
}

// Options configures an Engine.
type Options struct {
	// Sources are the calendar owners subject to the approval workflow.
	Sources []model.Source
	// ApprovedFeedName / ApprovedFeedURL describe the externally managed
	// feed whose events bypass placeholder matching and surface as
	// approved. URL empty disables it.
	ApprovedFeedName string
	ApprovedFeedURL  string
	// WindowDays is the forward sync horizon.
	WindowDays int
	// Fetcher may be nil, in which case a default one is used.
	Fetcher *ics.Fetcher
	// Buffers supplies the per-pass buffer snapshot.
	Buffers BufferSource
}

// New constructs an Engine from immutable configuration.
func New(opts Options) *Engine {
	f := opts.Fetcher
	if f == nil {
		f = ics.NewFetcher()
	}
	name := opts.ApprovedFeedName
	if name == "" {
		name = "Work"
	}
	return &Engine{
		sources:      opts.Sources,
		approvedName: name,
		approvedURL:  opts.ApprovedFeedURL,
		windowDays:   opts.WindowDays,
		fetcher:      f,
		buffers:      opts.Buffers,
	}
}

// Run executes one reconciliation pass: fetch every feed and placeholder
// store concurrently, classify each source event, and return the unified
// list. Any single feed failing degrades that feed to zero events; the pass
// itself only fails on context cancellation. Output order follows source
// configuration order, not any presentation order.
func (e *Engine) Run(ctx context.Context, now time.Time) ([]model.ReconciledEvent, error) {
	started := time.Now()
	now = now.UTC()
	windowEnd := now.AddDate(0, 0, e.windowDays)

	// Snapshot the buffer settings once; classification must see one
	// consistent view for the whole pass.
	buffers := map[model.BufferKey]model.Buffer{}
	if e.buffers != nil {
		snap, err := e.buffers.AllBuffers(ctx)
		if err != nil {
			appLog.Error("buffer snapshot load failed; classifying with zero buffers", err)
		} else {
			buffers = snap
		}
	}

	results := e.fetcher.FetchAll(ctx, e.fetchRequests())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Placeholder stores are owned per sibling: approving an event from A
	// writes placeholders into every OTHER source's store. So A's
	// "already approved" set is the union of all sibling stores, never A's
	// own.
	storeByOwner := make(map[string]map[string]model.Window, len(e.sources))
	for _, src := range e.sources {
		res, ok := results[blockedID(src.Name)]
		if !ok || res.Err != nil {
			continue
		}
		parsed, err := ics.ParsePlaceholders(res.Body)
		if err != nil {
			appLog.Error("placeholder store unparseable; skipping", err, "owner", src.Name)
			continue
		}
		storeByOwner[src.Name] = parsed
	}

	events := make([]model.ReconciledEvent, 0)

	for _, src := range e.sources {
		placeholders := e.mergedSiblingPlaceholders(src.Name, storeByOwner)

		res, ok := results[mainID(src.Name)]
		if !ok || res.Err != nil {
			// Feed unavailable this pass: contributes zero events.
			continue
		}
		raw, err := ics.ParseEvents(res.Body, src.Name, now, windowEnd)
		if err != nil {
			continue
		}

		for _, ev := range raw {
			status := classify(ev, placeholders, buffers)
			events = append(events, reconciled(ev, status))
		}
	}

	// The always-approved feed is not part of the approval workflow; its
	// events surface directly.
	if e.approvedURL != "" {
		if res, ok := results[approvedID]; ok && res.Err == nil {
			raw, err := ics.ParseEvents(res.Body, e.approvedName, now, windowEnd)
			if err == nil {
				for _, ev := range raw {
					events = append(events, reconciled(ev, model.StatusApproved))
				}
			}
		}
	}

	appLog.Info("reconcile pass completed",
		"events", len(events),
		"sources", len(e.sources),
		"window_days", e.windowDays,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return events, nil
}

const approvedID = "approved"

func mainID(source string) string   { return "main:" + source }
func blockedID(owner string) string { return "blocked:" + owner }

func (e *Engine) fetchRequests() []ics.Request {
	reqs := make([]ics.Request, 0, 2*len(e.sources)+1)
	for _, src := range e.sources {
		reqs = append(reqs, ics.Request{ID: mainID(src.Name), URL: src.FeedURL})
		reqs = append(reqs, ics.Request{ID: blockedID(src.Name), URL: src.BlockedURL})
	}
	if e.approvedURL != "" {
		reqs = append(reqs, ics.Request{ID: approvedID, URL: e.approvedURL})
	}
	return reqs
}

// mergedSiblingPlaceholders unions every OTHER source's placeholder store.
// When two siblings transiently hold diverging placeholders for one UID,
// whichever store is merged last wins; the ordering is deliberately left
// unspecified, matching the publisher's best-effort semantics.
func (e *Engine) mergedSiblingPlaceholders(sourceName string, storeByOwner map[string]map[string]model.Window) map[string]model.Window {
	merged := make(map[string]model.Window)
	for _, other := range e.sources {
		if other.Name == sourceName {
			continue
		}
		for uid, win := range storeByOwner[other.Name] {
			merged[uid] = win
		}
	}
	return merged
}

// classify derives an event's status from the placeholder (if any) and the
// buffer snapshot. It is a pure function of its inputs.
func classify(ev model.RawEvent, placeholders map[string]model.Window, buffers map[model.BufferKey]model.Buffer) model.Status {
	ph, ok := placeholders[ev.UID]
	if !ok {
		return model.StatusPending
	}

	// The placeholder was published with the buffers applied; reverse them
	// to recover the original window before comparing.
	buf := buffers[model.BufferKey{UID: ev.UID, Source: ev.Source}]
	origStart := ph.Start.Add(time.Duration(buf.BeforeMin) * time.Minute)
	origEnd := ph.End.Add(-time.Duration(buf.AfterMin) * time.Minute)

	drift := absSeconds(ev.Start.Sub(origStart)) + absSeconds(ev.End.Sub(origEnd))
	if drift > matchToleranceSec {
		return model.StatusTimeChanged
	}
	return model.StatusApproved
}

func absSeconds(d time.Duration) float64 {
	s := d.Seconds()
	if s < 0 {
		return -s
	}
	return s
}

func reconciled(ev model.RawEvent, status model.Status) model.ReconciledEvent {
	return model.ReconciledEvent{
		UID:         ev.UID,
		Source:      ev.Source,
		Title:       ev.Title,
		Start:       ev.Start,
		End:         ev.End,
		Location:    ev.Location,
		Description: ev.Description,
		Status:      status,
	}
}
