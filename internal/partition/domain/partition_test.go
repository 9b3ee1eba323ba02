package domain

import (
	"testing"
	"time"
)

func TestForMonth(t *testing.T) {
	d := ForMonth(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	if d.Name != "activity_log_y2026m12" {
		t.Errorf("name = %q", d.Name)
	}
	if !d.Start.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", d.Start)
	}
	if !d.End.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", d.End)
	}
}

func TestForMonth_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 2026-11-01 02:00 at UTC+5 is still October in UTC.
	d := ForMonth(time.Date(2026, 11, 1, 2, 0, 0, 0, loc))
	if d.Name != "activity_log_y2026m10" {
		t.Errorf("name = %q, want October partition", d.Name)
	}
}

func TestCovers(t *testing.T) {
	d := ForMonth(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	testCases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC), true},
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC), false},
	}
	for _, tc := range testCases {
		if got := d.Covers(tc.at); got != tc.want {
			t.Errorf("Covers(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
}
