package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"
)

const prodID = "-//calendar-manager//EN"

// Placeholder describes one opaque busy block to serialize. UID is copied
// from the originating source event so siblings can be joined back to it.
type Placeholder struct {
	UID         string
	Start       time.Time
	End         time.Time
	Title       string
	Description string // omitted from the document when empty
}

// BuildPlaceholder renders a single-VEVENT VCALENDAR document for upsert
// into a sibling's placeholder store. The event is marked TRANSP:OPAQUE so
// consuming calendars treat the block as busy time.
func BuildPlaceholder(p Placeholder, now time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetVersion("2.0")

	ev := cal.AddEvent(p.UID)
	ev.SetDtStampTime(now.UTC())
	ev.SetStartAt(p.Start.UTC())
	ev.SetEndAt(p.End.UTC())
	ev.SetSummary(p.Title)
	if p.Description != "" {
		ev.SetDescription(p.Description)
	}
	ev.SetProperty(ical.ComponentProperty("TRANSP"), "OPAQUE")

	return []byte(cal.Serialize())
}
