package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/silasm01/calendar-manager/internal/ics"
	appLog "github.com/silasm01/calendar-manager/internal/log"
	"github.com/silasm01/calendar-manager/internal/model"
)

const (
	genericTitle       = "Busy"
	fallbackTitle      = "Event"
	genericDescription = "Blocked time"

	publishTimeout = 10 * time.Second
)

// Validation failures surfaced to the boundary layer as HTTP 400.
var (
	ErrMissingUID    = errors.New("publish: missing uid")
	ErrMissingSource = errors.New("publish: missing source")
	ErrMissingWindow = errors.New("publish: missing start or end time")
)

// ApproveRequest carries one approval decision into the publisher.
type ApproveRequest struct {
	UID    string
	Source string
	Start  time.Time
	End    time.Time

	Title       string
	Description string

	UseGenericTitle       bool
	UseGenericDescription bool

	BufferBeforeMin int
	BufferAfterMin  int
}

// Publisher upserts and retracts opaque placeholder events in sibling
// calendars' placeholder stores. Publishing is best-effort per sibling:
// one store rejecting a write never blocks the sweep across the rest.
type Publisher struct {
	sources []model.Source
	client  *http.Client
	now     func() time.Time
}

// New constructs a Publisher over the configured sources.
func New(sources []model.Source) *Publisher {
	return &Publisher{
		sources: sources,
		client:  &http.Client{Timeout: publishTimeout},
		now:     time.Now,
	}
}

// Approve expands the event window by the requested buffers and upserts an
// opaque placeholder, keyed by UID, into every sibling store (every
// configured source except the originating one). The per-UID resource
// address makes the upsert idempotent: re-approving overwrites the prior
// placeholder instead of duplicating it.
//
// Per-sibling failures are logged as warnings; the call succeeds once the
// placeholder document itself could be built.
func (p *Publisher) Approve(ctx context.Context, req ApproveRequest) error {
	if req.UID == "" {
		return ErrMissingUID
	}
	if req.Source == "" {
		return ErrMissingSource
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return ErrMissingWindow
	}

	start := req.Start.Add(-time.Duration(req.BufferBeforeMin) * time.Minute)
	end := req.End.Add(time.Duration(req.BufferAfterMin) * time.Minute)

	title := req.Title
	if req.UseGenericTitle {
		title = genericTitle
	} else if title == "" {
		title = fallbackTitle
	}

	description := req.Description
	if req.UseGenericDescription {
		description = genericDescription
	}

	body := ics.BuildPlaceholder(ics.Placeholder{
		UID:         req.UID,
		Start:       start,
		End:         end,
		Title:       title,
		Description: description,
	}, p.now())

	for _, sibling := range p.siblings(req.Source) {
		if err := p.upsert(ctx, sibling, req.UID, body); err != nil {
			appLog.Warn("placeholder upsert failed", err, "sibling", sibling.Name, "uid", req.UID)
		}
	}

	appLog.Info("event approved", "uid", req.UID, "source", req.Source,
		"buffer_before_min", req.BufferBeforeMin, "buffer_after_min", req.BufferAfterMin)
	return nil
}

// RemoveApproval deletes the placeholder at uid's resource address from
// every configured store. A 404 counts as success so retracting an already
// absent approval is idempotent; other failures are logged and the sweep
// continues.
func (p *Publisher) RemoveApproval(ctx context.Context, uid string) error {
	if uid == "" {
		return ErrMissingUID
	}

	for _, src := range p.sources {
		if err := p.delete(ctx, src, uid); err != nil {
			appLog.Warn("placeholder delete failed", err, "store", src.Name, "uid", uid)
		}
	}

	appLog.Info("approval removed", "uid", uid)
	return nil
}

func (p *Publisher) siblings(source string) []model.Source {
	out := make([]model.Source, 0, len(p.sources))
	for _, src := range p.sources {
		if src.Name == source {
			continue
		}
		out = append(out, src)
	}
	return out
}

func placeholderURL(src model.Source, uid string) string {
	return src.BlockedURL + uid + ".ics"
}

func (p *Publisher) upsert(ctx context.Context, src model.Source, uid string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, placeholderURL(src, uid), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(resp.Status)
	}
	return nil
}

func (p *Publisher) delete(ctx context.Context, src model.Source, uid string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, placeholderURL(src, uid), nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		// Nothing to retract.
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(resp.Status)
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
