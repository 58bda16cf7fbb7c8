package bell

import (
	"fmt"
	"time"
)

// AudioClip is an uploaded bell tone. Duration is measured once at upload
// time from the file's audio metadata; 0 means unknown.
type AudioClip struct {
	ID        int64
	Name      string
	Path      string
	Duration  float64 // seconds
	CreatedAt time.Time
}

// DurationLabel renders the clip length for listings ("1m 30d", "45d", "—").
func (c *AudioClip) DurationLabel() string {
	if c == nil || c.Duration <= 0 {
		return "—"
	}
	total := int(c.Duration)
	if m := total / 60; m > 0 {
		return fmt.Sprintf("%dm %dd", m, total%60)
	}
	return fmt.Sprintf("%dd", total)
}

// Schedule is one recurring bell: a weekday plus a time of day.
// Schedules sharing a Name form a group that is edited and toggled together.
// Clip is nil for a silent bell; that is valid, not an error.
type Schedule struct {
	ID        int64
	Name      string
	Day       Day
	Time      Clock
	ClipID    *int64
	Clip      *AudioClip
	Active    bool
	CreatedAt time.Time
}

// ClipName returns the linked clip name or the conventional placeholder.
func (s *Schedule) ClipName() string {
	if s.Clip != nil {
		return s.Clip.Name
	}
	return "Tanpa Musik"
}

// Date is a calendar date, the scope of an Exception.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates an instant to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate accepts "YYYY-MM-DD".
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight of the date in the given location.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Weekday returns the Day the date falls on.
func (d Date) Weekday() Day { return DayOf(d.Time(time.UTC)) }

// Before reports whether d is an earlier calendar date than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// Exception suppresses one schedule on one specific date (holiday, exam).
// At most one exception may exist per (date, schedule) pair.
type Exception struct {
	ID         int64
	Date       Date
	ScheduleID int64
	Schedule   *Schedule
	Reason     string
	CreatedAt  time.Time
}
