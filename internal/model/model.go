package model

import "time"

// Status classifies a source event against the placeholders that sibling
// calendars hold on its behalf.
type Status string

const (
	// StatusPending means no sibling store holds a placeholder for the event.
	StatusPending Status = "pending"
	// StatusApproved means a placeholder exists and its buffer-reversed
	// window matches the event's own window within tolerance.
	StatusApproved Status = "approved"
	// StatusTimeChanged means a placeholder exists but the event has since
	// moved: the buffer-reversed window no longer matches.
	StatusTimeChanged Status = "time_changed"
)

// Source identifies one calendar owner: where its events are read from and
// where opaque placeholders published on behalf of other owners live.
type Source struct {
	// Name is the unique key for this source (e.g. "family").
	Name string
	// FeedURL is the ICS endpoint of the owner's main calendar.
	FeedURL string
	// BlockedURL is the base URL of the owner's placeholder store. Upserts
	// and deletes target {BlockedURL}{uid}.ics.
	BlockedURL string
}

// RawEvent is one VEVENT occurrence as decoded from a main feed. Times are
// normalized to UTC; a date-only value is treated as midnight UTC. UID may
// be empty when the feed omits it.
type RawEvent struct {
	UID         string
	Source      string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Window is a [Start, End] time span in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// BufferKey addresses the buffer setting for one event in one source.
type BufferKey struct {
	UID    string
	Source string
}

// Buffer is the padding (in minutes) applied around an approved event's
// window when its placeholder is published.
type Buffer struct {
	BeforeMin int
	AfterMin  int
}

// ReconciledEvent is the engine's output unit. Status is a pure function of
// the raw event, the matching placeholder (if any) and the buffer setting
// (if any).
type ReconciledEvent struct {
	UID         string    `json:"uid"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
}
