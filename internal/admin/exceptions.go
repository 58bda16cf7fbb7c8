package admin

import (
	"context"
	"errors"
	"sort"

	"cobrell/internal/bell"
	"cobrell/internal/storage"
	logx "cobrell/pkg/logx"
)

// DayEntry is one schedule as it stands on a specific date.
type DayEntry struct {
	Schedule        *bell.Schedule
	AlreadyExcluded bool
	Reason          string
}

// DaySchedules is the pre-selection view for the exception form and the
// calendar day detail: everything that would ring on that date.
type DaySchedules struct {
	Date    bell.Date
	Day     bell.Day
	Entries []*DayEntry
}

// SchedulesForDate lists the active schedules falling on the date's weekday,
// marking the ones already excluded for that date.
func (s *Service) SchedulesForDate(ctx context.Context, rawDate string) (*DaySchedules, error) {
	date, err := bell.ParseDate(rawDate)
	if err != nil {
		return nil, inputErr("tanggal tidak valid, gunakan format YYYY-MM-DD")
	}
	day := date.Weekday()

	schedules, err := s.store.ActiveSchedulesOn(ctx, day)
	if err != nil {
		return nil, err
	}
	excluded, err := s.store.ExceptionsOn(ctx, date)
	if err != nil {
		return nil, err
	}

	out := &DaySchedules{Date: date, Day: day}
	for _, sch := range schedules {
		reason, skip := excluded[sch.ID]
		out.Entries = append(out.Entries, &DayEntry{
			Schedule:        sch,
			AlreadyExcluded: skip,
			Reason:          reason,
		})
	}
	return out, nil
}

// ExceptionInput creates exceptions for several schedules on one date.
type ExceptionInput struct {
	Date        string  `validate:"required"`
	ScheduleIDs []int64 `validate:"required,min=1,dive,gt=0"`
	Reason      string  `validate:"required,max=200"`
}

// ExceptionResult counts what CreateExceptions did. Skipped covers both
// already-existing (date, schedule) pairs and ids that don't ring on the
// date's weekday.
type ExceptionResult struct {
	Date    bell.Date
	Created int
	Skipped int
}

// CreateExceptions records a suppression for each given schedule on the
// given date. Duplicates are counted, not errors, so re-submitting a form is
// harmless.
func (s *Service) CreateExceptions(ctx context.Context, in ExceptionInput) (*ExceptionResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, asInputError(err)
	}
	date, err := bell.ParseDate(in.Date)
	if err != nil {
		return nil, inputErr("tanggal tidak valid, gunakan format YYYY-MM-DD")
	}

	// Only schedules that actually ring on that weekday can be excluded.
	onDay, err := s.store.ActiveSchedulesOn(ctx, date.Weekday())
	if err != nil {
		return nil, err
	}
	valid := make(map[int64]struct{}, len(onDay))
	for _, sch := range onDay {
		valid[sch.ID] = struct{}{}
	}

	res := &ExceptionResult{Date: date}
	for _, id := range in.ScheduleIDs {
		if _, ok := valid[id]; !ok {
			res.Skipped++
			continue
		}
		_, err := s.store.CreateException(ctx, date, id, in.Reason)
		if errors.Is(err, storage.ErrDuplicateException) {
			res.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Created++
	}

	s.log.Info("exceptions created",
		logx.String("date", date.String()),
		logx.Int("created", res.Created),
		logx.Int("skipped", res.Skipped),
	)
	return res, nil
}

// ExceptionList splits exceptions around today: Upcoming holds today and
// later (soonest first), Past holds everything earlier (most recent first).
type ExceptionList struct {
	Upcoming []*bell.Exception
	Past     []*bell.Exception
}

func (s *Service) ListExceptions(ctx context.Context) (*ExceptionList, error) {
	all, err := s.store.ListExceptions(ctx)
	if err != nil {
		return nil, err
	}

	today := s.today()
	out := &ExceptionList{}
	for _, e := range all {
		if e.Date.Before(today) {
			out.Past = append(out.Past, e)
		} else {
			out.Upcoming = append(out.Upcoming, e)
		}
	}
	// Store order is date-descending; upcoming reads better soonest-first.
	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		if out.Upcoming[i].Date != out.Upcoming[j].Date {
			return out.Upcoming[i].Date.Before(out.Upcoming[j].Date)
		}
		return out.Upcoming[i].Schedule.Time.Before(out.Upcoming[j].Schedule.Time)
	})
	return out, nil
}

func (s *Service) DeleteException(ctx context.Context, id int64) error {
	return s.store.DeleteException(ctx, id)
}
