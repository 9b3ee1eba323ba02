package domain

import (
	"fmt"
	"time"
)

// Table is the partitioned raw-log parent table.
const Table = "activity_log"

// Descriptor is one monthly partition covering [Start, End).
type Descriptor struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// MonthStart truncates t to the first instant of its UTC month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ForMonth returns the partition covering the month containing t.
func ForMonth(t time.Time) Descriptor {
	start := MonthStart(t)
	return Descriptor{
		Name:  fmt.Sprintf("%s_y%04dm%02d", Table, start.Year(), int(start.Month())),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// Covers reports whether t falls in [Start, End).
func (d Descriptor) Covers(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}
