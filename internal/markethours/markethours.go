// Package markethours decides when the engine is allowed to tick.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session describes the regular trading window of an exchange.
type Session struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Holidays    Calendar

	// AlwaysOpen disables every check; used for simulated sessions.
	AlwaysOpen bool
}

// NSE returns the NSE cash session (9:15 AM – 3:30 PM IST, Mon–Fri).
func NSE() Session {
	return Session{
		Location:    IST,
		OpenHour:    9,
		OpenMinute:  15,
		CloseHour:   15,
		CloseMinute: 30,
		Holidays:    NSEHolidays(),
	}
}

// Always returns a session that is open around the clock.
func Always() Session {
	return Session{Location: time.UTC, AlwaysOpen: true}
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("markethours: invalid clock %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func (s Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// IsOpen returns true if t falls within the session on a trading day.
func (s Session) IsOpen(t time.Time) bool {
	if s.AlwaysOpen {
		return true
	}
	local := t.In(s.loc())
	if !s.IsTradingDay(local) {
		return false
	}
	hm := local.Hour()*60 + local.Minute()
	return hm >= s.OpenHour*60+s.OpenMinute && hm < s.CloseHour*60+s.CloseMinute
}

// IsTradingDay returns true if t is Mon–Fri and not a holiday.
func (s Session) IsTradingDay(t time.Time) bool {
	if s.AlwaysOpen {
		return true
	}
	local := t.In(s.loc())
	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !s.Holidays.Contains(local)
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, today's open is returned.
func (s Session) NextOpen(t time.Time) time.Time {
	if s.AlwaysOpen {
		return t
	}
	local := t.In(s.loc())

	todayOpen := s.openOn(local)
	if local.Before(todayOpen) && s.IsTradingDay(local) {
		return todayOpen
	}

	d := local.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ { // weekends plus the longest holiday run
		if s.IsTradingDay(d) {
			return s.openOn(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return s.openOn(local.AddDate(0, 0, 1))
}

// TodayClose returns the session close on t's date.
func (s Session) TodayClose(t time.Time) time.Time {
	local := t.In(s.loc())
	return time.Date(local.Year(), local.Month(), local.Day(), s.CloseHour, s.CloseMinute, 0, 0, s.loc())
}

// TimeUntilClose returns the duration until today's close, or 0 once closed.
func (s Session) TimeUntilClose(t time.Time) time.Duration {
	d := s.TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next open.
func (s Session) TimeUntilOpen(t time.Time) time.Duration {
	return s.NextOpen(t).Sub(t)
}

// Status returns a human-readable market status.
func (s Session) Status(t time.Time) string {
	if s.AlwaysOpen {
		return "Market Open (continuous)"
	}
	if s.IsOpen(t) {
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(s.TimeUntilClose(t)))
	}
	next := s.NextOpen(t)
	return fmt.Sprintf("Market Closed — opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func (s Session) openOn(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), s.OpenHour, s.OpenMinute, 0, 0, s.loc())
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
