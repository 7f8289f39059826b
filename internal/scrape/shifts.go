package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	appLog "github.com/silasm01/calendar-manager/internal/log"
)

// Default parameters for a scrape run. The schedule site renders the whole
// period lazily, so the timeout covers login plus table rendering.
const (
	DefaultTimeout = 90 * time.Second

	scheduleMenuExpr = `//*[text()='Vagtplan']`
	wholePeriodExpr  = `//*[text()='Hele perioden']`
)

// Cells carrying one of these background colors are confirmed shifts; all
// other colored cells are drafts or absences and must not be published.
var approvedShiftColors = []string{"#91F073", "#55AB43"}

// Shift is one confirmed work shift, normalized to UTC.
type Shift struct {
	Start time.Time
	End   time.Time
}

// Options configures a scrape run against the schedule site.
type Options struct {
	// LoginURL is the schedule site's login page.
	LoginURL string
	Email    string
	Password string

	// UserID selects the timetable row (data-user attribute value).
	UserID string

	// Location is the timezone the timetable's wall-clock times are in.
	Location *time.Location

	// Timeout bounds the whole browser session. Zero means DefaultTimeout.
	Timeout time.Duration
}

// shiftCell is the raw material extracted from one timetable cell.
type shiftCell struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Style string `json:"style"`
}

// FetchShifts drives a headless Chromium session: log in, open the
// timetable for the whole period, and extract the configured user's
// confirmed shifts.
func FetchShifts(parentCtx context.Context, opts Options) ([]Shift, error) {
	if opts.LoginURL == "" {
		return nil, errors.New("scrape: LoginURL is required")
	}
	if opts.UserID == "" {
		return nil, errors.New("scrape: UserID is required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	rowSelector := fmt.Sprintf(`tr[data-user='%s'].cal-row`, opts.UserID)
	extractExpr := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q + " div")).map(d => ({id: d.id || '', text: d.innerText || '', style: d.getAttribute('style') || ''}))`,
		rowSelector)

	var cells []shiftCell
	tasks := chromedp.Tasks{
		chromedp.Navigate(opts.LoginURL),
		chromedp.WaitVisible(`input[name="user_session[email]"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="user_session[email]"]`, opts.Email, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="user_session[password]"]`, opts.Password, chromedp.ByQuery),
		chromedp.Click(`button[type=submit]`, chromedp.ByQuery),
		chromedp.WaitVisible(scheduleMenuExpr, chromedp.BySearch),
		chromedp.Click(scheduleMenuExpr, chromedp.BySearch),
		chromedp.Click(wholePeriodExpr, chromedp.BySearch),
		chromedp.WaitVisible(rowSelector, chromedp.ByQuery),
		// Small extra delay so the period's cells finish painting.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(extractExpr, &cells),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("scrape: chromedp run failed: %w", err)
	}

	appLog.Info("timetable cells retrieved", "count", len(cells))
	return parseShiftCells(cells, opts.Location), nil
}

// parseShiftCells turns raw timetable cells into confirmed shifts. Cell
// format: id ends in ";YYYY-MM-DD", inner text starts with "HH:MM - HH:MM",
// and the style carries the shift-state background color.
func parseShiftCells(cells []shiftCell, loc *time.Location) []Shift {
	shifts := make([]Shift, 0, len(cells))

	for _, cell := range cells {
		if strings.TrimSpace(cell.Text) == "" {
			continue
		}
		if !hasApprovedColor(cell.Style) {
			continue
		}

		shift, err := parseShiftCell(cell, loc)
		if err != nil {
			appLog.Warn("timetable cell skipped", err, "id", cell.ID)
			continue
		}
		shifts = append(shifts, shift)
	}

	appLog.Info("confirmed shifts parsed", "count", len(shifts))
	return shifts
}

func hasApprovedColor(style string) bool {
	for _, c := range approvedShiftColors {
		if strings.Contains(style, c) {
			return true
		}
	}
	return false
}

func parseShiftCell(cell shiftCell, loc *time.Location) (Shift, error) {
	idParts := strings.Split(cell.ID, ";")
	day := strings.TrimSpace(idParts[len(idParts)-1])

	firstLine := cell.Text
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}
	times := strings.SplitN(firstLine, "-", 2)
	if len(times) != 2 {
		return Shift{}, fmt.Errorf("unexpected time range %q", firstLine)
	}

	const layout = "2006-01-02 15:04"
	start, err := time.ParseInLocation(layout, day+" "+strings.TrimSpace(times[0]), loc)
	if err != nil {
		return Shift{}, err
	}
	end, err := time.ParseInLocation(layout, day+" "+strings.TrimSpace(times[1]), loc)
	if err != nil {
		return Shift{}, err
	}

	return Shift{Start: start.UTC(), End: end.UTC()}, nil
}
