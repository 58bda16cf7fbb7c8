package admin

import (
	"context"
	"fmt"
	"time"

	"cobrell/internal/bell"
	"cobrell/internal/player"
	logx "cobrell/pkg/logx"
)

// TestPlay plays a clip once from the admin surface. Unlike scheduled rings
// it refuses while something is already playing.
func (s *Service) TestPlay(ctx context.Context, clipID int64) error {
	if s.player.Status().IsPlaying {
		return ErrPlayerBusy
	}
	clip, err := s.store.GetClip(ctx, clipID)
	if err != nil {
		return err
	}
	s.player.Play(clip.Path, "Tes: "+clip.Name)
	return nil
}

// StopPlay halts whatever is playing, scheduled or test.
func (s *Service) StopPlay() {
	s.player.Stop()
}

func (s *Service) PlaybackStatus() player.Status {
	return s.player.Status()
}

// Overview is the dashboard header: counts, the next bell, and server time.
type Overview struct {
	ActiveSchedules int
	Clips           int
	NextBell        *bell.Schedule
	ServerTime      time.Time
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	now := s.now().In(s.loc)

	schedules, err := s.store.CountActiveSchedules(ctx)
	if err != nil {
		return nil, err
	}
	clips, err := s.store.CountClips(ctx)
	if err != nil {
		return nil, err
	}
	next, err := s.resolver.NextBell(ctx, now)
	if err != nil {
		return nil, err
	}
	return &Overview{
		ActiveSchedules: schedules,
		Clips:           clips,
		NextBell:        next,
		ServerTime:      now,
	}, nil
}

// NextBell exposes the resolver's answer for status displays.
func (s *Service) NextBell(ctx context.Context) (*bell.Schedule, error) {
	return s.resolver.NextBell(ctx, s.now().In(s.loc))
}

// DueNow lists the schedules that would ring this minute, for displays.
// The trigger engine does its own due query; this never affects firing.
func (s *Service) DueNow(ctx context.Context) ([]*bell.Schedule, error) {
	return s.resolver.DueNow(ctx, s.now().In(s.loc))
}

// DaySummary is one calendar cell: how many bells ring that date and how
// many are excluded.
type DaySummary struct {
	Date       bell.Date
	Day        bell.Day
	Bells      int
	Exceptions int
}

// CalendarMonth summarizes a month: the active bell count per date (by
// weekday) and the exception count per date.
func (s *Service) CalendarMonth(ctx context.Context, year int, month time.Month) ([]*DaySummary, error) {
	if month < time.January || month > time.December {
		return nil, inputErr(fmt.Sprintf("bulan %d tidak valid", int(month)))
	}

	byDay, err := s.store.CountActiveByDay(ctx)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.store.CountExceptionsByDayOfMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	out := make([]*DaySummary, 0, daysInMonth)
	for d := 1; d <= daysInMonth; d++ {
		date := bell.Date{Year: year, Month: month, Day: d}
		weekday := date.Weekday()
		out = append(out, &DaySummary{
			Date:       date,
			Day:        weekday,
			Bells:      byDay[weekday],
			Exceptions: exceptions[d],
		})
	}
	return out, nil
}

// CalendarDay is the day-detail view: every schedule on the date with its
// exclusion state. Same data the exception form pre-selects from.
func (s *Service) CalendarDay(ctx context.Context, rawDate string) (*DaySchedules, error) {
	detail, err := s.SchedulesForDate(ctx, rawDate)
	if err != nil {
		return nil, err
	}
	s.log.Debug("calendar day viewed", logx.String("date", detail.Date.String()))
	return detail, nil
}
