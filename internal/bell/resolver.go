package bell

import (
	"context"
	"time"
)

// ScheduleSource is the read side of the schedule store that the resolver
// needs. The persistence layer implements it; tests use in-memory fakes.
type ScheduleSource interface {
	// ActiveSchedulesAt returns active schedules on the given day whose time
	// matches the given hour and minute exactly (seconds ignored).
	ActiveSchedulesAt(ctx context.Context, day Day, hour, minute int) ([]*Schedule, error)

	// ActiveSchedulesOn returns all active schedules on the given day,
	// ordered by time of day.
	ActiveSchedulesOn(ctx context.Context, day Day) ([]*Schedule, error)

	// ExcludedScheduleIDs returns the subset of ids that have an exception
	// recorded for the given date.
	ExcludedScheduleIDs(ctx context.Context, date Date, ids []int64) (map[int64]struct{}, error)
}

// Resolver answers "which bells are due right now" and "what rings next".
type Resolver struct {
	src ScheduleSource
}

func NewResolver(src ScheduleSource) *Resolver { return &Resolver{src: src} }

// DueNow returns the active schedules matching now's weekday and minute,
// minus any excluded for today's date. Matching is at minute granularity.
func (r *Resolver) DueNow(ctx context.Context, now time.Time) ([]*Schedule, error) {
	matched, err := r.src.ActiveSchedulesAt(ctx, DayOf(now), now.Hour(), now.Minute())
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(matched))
	for i, s := range matched {
		ids[i] = s.ID
	}
	excluded, err := r.src.ExcludedScheduleIDs(ctx, DateOf(now), ids)
	if err != nil {
		return nil, err
	}
	if len(excluded) == 0 {
		return matched, nil
	}

	due := matched[:0]
	for _, s := range matched {
		if _, skip := excluded[s.ID]; !skip {
			due = append(due, s)
		}
	}
	return due, nil
}

// NextBell returns the earliest upcoming schedule: the first one later today,
// otherwise the earliest on the first of the next seven days that has any
// active schedule. Nil means no active schedule exists at all.
func (r *Resolver) NextBell(ctx context.Context, now time.Time) (*Schedule, error) {
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()

	today, err := r.src.ActiveSchedulesOn(ctx, DayOf(now))
	if err != nil {
		return nil, err
	}
	for _, s := range today {
		if s.Time.Seconds() > nowSec {
			return s, nil
		}
	}

	for offset := 1; offset <= 7; offset++ {
		day := DayOf(now.AddDate(0, 0, offset))
		schedules, err := r.src.ActiveSchedulesOn(ctx, day)
		if err != nil {
			return nil, err
		}
		if len(schedules) > 0 {
			return schedules[0], nil
		}
	}
	return nil, nil
}
