package markethours

import (
	"fmt"
	"time"
)

// Calendar is a set of exchange holidays keyed by local date.
type Calendar map[string]bool

const dateLayout = "2006-01-02"

// ParseCalendar builds a calendar from YYYY-MM-DD dates.
func ParseCalendar(dates []string) (Calendar, error) {
	c := make(Calendar, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("markethours: invalid holiday %q: %w", d, err)
		}
		c[d] = true
	}
	return c, nil
}

// Contains reports whether t's date, in t's own location, is a holiday.
func (c Calendar) Contains(t time.Time) bool {
	return c[t.Format(dateLayout)]
}

// Add marks the given dates as holidays.
func (c Calendar) Add(dates ...time.Time) {
	for _, d := range dates {
		c[d.Format(dateLayout)] = true
	}
}

// NSE holidays for 2026.
// Source: NSE India official holiday list.
var nseHolidays2026 = []struct {
	month time.Month
	day   int
}{
	{time.January, 26},  // Republic Day
	{time.February, 17}, // Mahashivratri (tentative)
	{time.March, 14},    // Holi
	{time.March, 31},    // Id-ul-Fitr (Eid) (tentative)
	{time.April, 2},     // Ram Navami (tentative)
	{time.April, 6},     // Mahavir Jayanti
	{time.April, 10},    // Good Friday
	{time.April, 14},    // Dr. Ambedkar Jayanti
	{time.May, 1},       // Maharashtra Day
	{time.June, 7},      // Bakrid / Eid ul-Adha (tentative)
	{time.July, 6},      // Muharram (tentative)
	{time.August, 15},   // Independence Day
	{time.August, 16},   // Janmashtami (tentative)
	{time.September, 5}, // Milad-un-Nabi (tentative)
	{time.October, 2},   // Mahatma Gandhi Jayanti
	{time.October, 20},  // Dussehra
	{time.October, 21},  // Dussehra (tentative)
	{time.November, 5},  // Diwali / Lakshmi Puja (tentative)
	{time.November, 6},  // Diwali Balipratipada (tentative)
	{time.November, 7},  // Bhai Dooj (tentative)
	{time.November, 19}, // Guru Nanak Jayanti
	{time.December, 25}, // Christmas
}

// NSEHolidays returns a fresh copy of the built-in NSE calendar.
func NSEHolidays() Calendar {
	c := make(Calendar, len(nseHolidays2026))
	for _, h := range nseHolidays2026 {
		c.Add(time.Date(2026, h.month, h.day, 0, 0, 0, 0, IST))
	}
	return c
}
