package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/silasm01/calendar-manager/internal/log"
	"github.com/silasm01/calendar-manager/internal/model"
)

// noTitle is the summary substituted when a feed omits SUMMARY.
const noTitle = "No Title"

// ParseEvents decodes every VEVENT in body into a RawEvent, normalizing
// start/end to UTC and keeping only events whose start lies inside
// [windowStart, windowEnd]. Events past the sync horizon never reach the
// reconciliation engine.
//
// Defaults for sparse feeds: a missing DTEND equals DTSTART, a missing
// SUMMARY becomes "No Title", missing DESCRIPTION/LOCATION become empty
// strings and a missing UID is kept as the empty string. A malformed VEVENT
// is logged and skipped; an undecodable document returns an error and the
// caller treats the feed as contributing zero events.
func ParseEvents(body []byte, sourceName string, windowStart, windowEnd time.Time) ([]model.RawEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "source", sourceName)
		return nil, err
	}

	events := make([]model.RawEvent, 0)

	for _, ve := range cal.Events() {
		start, end, perr := eventWindow(ve)
		if perr != nil {
			// Log and skip this component, keep decoding the rest.
			appLog.Error("ics vevent skipped", perr, "source", sourceName)
			continue
		}

		if start.Before(windowStart) || start.After(windowEnd) {
			continue
		}

		ev := model.RawEvent{
			UID:    propValue(ve, ical.ComponentPropertyUniqueId),
			Source: sourceName,
			Title:  propValue(ve, ical.ComponentPropertySummary),
			Start:  start,
			End:    end,
		}
		if ev.Title == "" {
			ev.Title = noTitle
		}
		ev.Description = propValue(ve, ical.ComponentPropertyDescription)
		ev.Location = propValue(ve, ical.ComponentPropertyLocation)

		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "source", sourceName, "event_count", len(events))
	return events, nil
}

// ParsePlaceholders decodes every VEVENT in body into just its UID and time
// window. No window filtering happens here: a placeholder whose
// buffer-expanded span falls outside the sync horizon must still be
// matchable against its source event. VEVENTs without a UID are skipped
// (they can never be joined to anything).
func ParsePlaceholders(body []byte) (map[string]model.Window, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	placeholders := make(map[string]model.Window)

	for _, ve := range cal.Events() {
		uid := propValue(ve, ical.ComponentPropertyUniqueId)
		if uid == "" {
			continue
		}
		start, end, perr := eventWindow(ve)
		if perr != nil {
			appLog.Error("placeholder vevent skipped", perr, "uid", uid)
			continue
		}
		placeholders[uid] = model.Window{Start: start, End: end}
	}

	return placeholders, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// eventWindow extracts the normalized (UTC) start and end instants of a
// VEVENT. A missing DTEND defaults to DTSTART; a missing DTSTART makes the
// component malformed.
func eventWindow(ve *ical.VEvent) (time.Time, time.Time, error) {
	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return time.Time{}, time.Time{}, errors.New("missing DTSTART")
	}

	start, err := parsePropTime(startProp)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	end := start
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
		if e, eerr := parsePropTime(endProp); eerr == nil {
			end = e
		} else {
			return time.Time{}, time.Time{}, eerr
		}
	}

	return start, end, nil
}

// parsePropTime parses a DTSTART/DTEND property value into a UTC instant.
// Forms handled:
//
//   - 20250601T100000Z         UTC date-time
//   - 20250601T100000 + TZID   zoned date-time, converted to UTC
//   - 20250601T100000          floating date-time, read as UTC
//   - 20250601                 date-only, midnight UTC
func parsePropTime(p *ical.IANAProperty) (time.Time, error) {
	v := strings.TrimSpace(p.Value)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		const layout = "20060102T150405Z"
		return time.Parse(layout, v)
	}

	if strings.Contains(v, "T") {
		const layout = "20060102T150405"
		loc := time.UTC
		if params := p.ICalParameters; params != nil {
			if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
				if l, lerr := time.LoadLocation(tzs[0]); lerr == nil {
					loc = l
				}
			}
		}
		t, err := time.ParseInLocation(layout, v, loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}

	// Date-only (all-day): midnight in the reference timezone.
	const layoutDate = "20060102"
	t, err := time.ParseInLocation(layoutDate, v, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
