package scrape

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestParseShiftCells(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	cells := []shiftCell{
		// Confirmed shift (light green).
		{ID: "cell;755438;2025-06-02", Text: "09:00 - 17:00\nButik", Style: "background-color: #91F073;"},
		// Confirmed shift (dark green), no trailing note.
		{ID: "cell;755438;2025-06-03", Text: "10:00 - 14:30", Style: "background: #55AB43"},
		// Empty cell: no shift that day.
		{ID: "cell;755438;2025-06-04", Text: "", Style: "background-color: #91F073;"},
		// Draft shift color: not confirmed, skipped.
		{ID: "cell;755438;2025-06-05", Text: "12:00 - 16:00", Style: "background-color: #CCCCCC;"},
		// Garbled text: skipped, does not abort the rest.
		{ID: "cell;755438;2025-06-06", Text: "whole day", Style: "background-color: #91F073;"},
	}

	shifts := parseShiftCells(cells, loc)
	if len(shifts) != 2 {
		t.Fatalf("want 2 shifts, got %d: %+v", len(shifts), shifts)
	}

	// Copenhagen is UTC+2 in June: 09:00 local is 07:00Z.
	want := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	if !shifts[0].Start.Equal(want) {
		t.Errorf("shift start = %v, want %v", shifts[0].Start, want)
	}
	wantEnd := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	if !shifts[0].End.Equal(wantEnd) {
		t.Errorf("shift end = %v, want %v", shifts[0].End, wantEnd)
	}

	if !shifts[1].End.Equal(time.Date(2025, 6, 3, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("half-hour end mishandled: %v", shifts[1].End)
	}
}

func TestShiftUIDIsDeterministic(t *testing.T) {
	shift := Shift{
		Start: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}
	if shiftUID(shift) != shiftUID(shift) {
		t.Fatal("uid must be stable across runs")
	}
	if got, want := shiftUID(shift), "shift-20250602T070000Z"; got != want {
		t.Errorf("shiftUID = %q, want %q", got, want)
	}
}

func TestPublishShiftsUpserts(t *testing.T) {
	var mu sync.Mutex
	puts := make(map[string][]byte)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	shifts := []Shift{
		{Start: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)},
		{Start: time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 3, 12, 30, 0, 0, time.UTC)},
	}

	published, err := PublishShifts(context.Background(), srv.URL+"/approved/", "Work", shifts)
	if err != nil {
		t.Fatalf("PublishShifts: %v", err)
	}
	if published != 2 {
		t.Fatalf("published = %d, want 2", published)
	}

	mu.Lock()
	defer mu.Unlock()
	body, ok := puts["/approved/shift-20250602T070000Z.ics"]
	if !ok {
		t.Fatalf("expected upsert at deterministic path, got %v", keys(puts))
	}
	if len(body) == 0 {
		t.Error("empty document published")
	}

	// Re-running hits the same paths: idempotent by construction.
	if _, err := PublishShifts(context.Background(), srv.URL+"/approved/", "Work", shifts); err != nil {
		t.Fatalf("second PublishShifts: %v", err)
	}
	if len(puts) != 2 {
		t.Errorf("re-run created new resources: %v", keys(puts))
	}
}

func TestPublishShiftsRequiresURL(t *testing.T) {
	if _, err := PublishShifts(context.Background(), "", "Work", nil); err == nil {
		t.Fatal("expected error for empty store URL")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
