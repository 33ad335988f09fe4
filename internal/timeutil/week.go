// Package timeutil computes calendar windows in a user's local timezone.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	// Embedded IANA database so user timezones resolve on minimal images.
	_ "time/tzdata"
)

// Window is a local calendar week in UTC instants. End is the last whole
// second of the week (Sunday 23:59:59) for display; Until is the next
// Monday 00:00 and is the exclusive bound used for membership.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Until time.Time `json:"-"`
}

// Contains reports whether t falls inside [Start, Until).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.Until)
}

// LoadLocation resolves an IANA timezone name. Empty means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timeutil: unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}

// WeekBounds returns Monday 00:00:00 through Sunday 23:59:59 of the week
// containing now, evaluated in loc and expressed in UTC, with Until set to the
// following Monday 00:00:00. Offsets are resolved per boundary, so a DST
// switch inside the week is accounted for.
func WeekBounds(loc *time.Location, now time.Time) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	// time.Weekday is Sunday=0; shift so Monday=0.
	sinceMonday := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()

	start := time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d-sinceMonday+6, 23, 59, 59, 0, loc)
	until := time.Date(y, m, d-sinceMonday+7, 0, 0, 0, 0, loc)
	return Window{Start: start.UTC(), End: end.UTC(), Until: until.UTC()}
}

// CurrentWeekBounds is WeekBounds for a timezone name.
func CurrentWeekBounds(tz string, now time.Time) (Window, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return Window{}, err
	}
	return WeekBounds(loc, now), nil
}
