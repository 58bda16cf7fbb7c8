// Package admin is the administrative facade over the bell store and the
// playback controller: schedule group editing with conflict validation,
// per-date exceptions, clip registration, test playback, and the read-only
// dashboard queries.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cobrell/internal/bell"
	"cobrell/internal/player"
	"cobrell/internal/storage"
	logx "cobrell/pkg/logx"
)

// ErrPlayerBusy is returned by TestPlay while another playback is running.
// Scheduled rings pre-empt; manual test plays do not.
var ErrPlayerBusy = errors.New("bel sedang berbunyi, hentikan dulu sebelum memutar musik lain")

// InputError carries user-facing validation messages in the order they were
// found. It is the error form of the conflict validator's []string result.
type InputError struct {
	Messages []string
}

func (e *InputError) Error() string { return strings.Join(e.Messages, "; ") }

func inputErr(msgs ...string) error { return &InputError{Messages: msgs} }

// Player is the slice of the playback controller the facade needs.
type Player interface {
	Play(path, displayName string)
	Stop()
	Status() player.Status
}

type Service struct {
	store    *storage.DB
	player   Player
	resolver *bell.Resolver
	validate *validator.Validate
	log      logx.Logger

	mediaDir string
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Service)

// WithMediaDir sets where registered clip files are stored.
func WithMediaDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.mediaDir = dir
		}
	}
}

// WithLocation sets the wall-clock timezone used for "today" and next-bell.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store *storage.DB, p Player, log logx.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		player:   p,
		resolver: bell.NewResolver(store),
		validate: validator.New(),
		log:      log.With(logx.String("component", "admin")),
		mediaDir: "./media",
		loc:      time.Local,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) today() bell.Date {
	return bell.DateOf(s.now().In(s.loc))
}

// ---- Schedule groups ----

// GroupInput is a whole schedule group as submitted from the admin surface.
// Saving replaces every row the group had before.
type GroupInput struct {
	Name   string   `validate:"required,max=120"`
	Days   []string `validate:"required,min=1,dive,required"`
	Times  []string `validate:"required,min=1,dive,required"`
	ClipID *int64   `validate:"omitempty,gt=0"`
	Active bool
}

// GroupResult reports what a save did.
type GroupResult struct {
	Name     string
	Created  int
	Replaced int64
}

// Group is the listing form: one row per name, days and times aggregated.
type Group struct {
	Name   string
	Days   []bell.Day
	Times  []bell.Clock
	Clip   *bell.AudioClip
	Active bool // all member rows active
	Count  int
}

// CreateOrReplaceScheduleGroup validates and saves a schedule group. The
// save is destructive: all existing rows with the same name are deleted and
// the day x time cartesian product is inserted fresh, so removed slots (and
// their exceptions, via cascade) disappear.
//
// Validation failures come back as *InputError; nothing is written in that
// case.
func (s *Service) CreateOrReplaceScheduleGroup(ctx context.Context, in GroupInput) (*GroupResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, asInputError(err)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, inputErr("nama jadwal wajib diisi")
	}

	days, times, msgs := parseSlots(in.Days, in.Times)
	if len(msgs) > 0 {
		return nil, &InputError{Messages: msgs}
	}

	var clip *bell.AudioClip
	if in.ClipID != nil {
		var err error
		clip, err = s.store.GetClip(ctx, *in.ClipID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, inputErr("musik yang dipilih tidak ditemukan")
		}
		if err != nil {
			return nil, err
		}
	}

	// Identical (day, time) slots are rejected before overlap checking, even
	// against inactive rows. The group's own rows don't count: they are about
	// to be replaced.
	occupied, err := s.store.SchedulesInSlots(ctx, days, times)
	if err != nil {
		return nil, err
	}
	var dupMsgs []string
	for _, row := range occupied {
		if row.Name == in.Name {
			continue
		}
		dupMsgs = append(dupMsgs, fmt.Sprintf(
			"%s %s sudah dipakai oleh jadwal %q.",
			row.Day.Label(), row.Time.HHMM(), row.Name,
		))
	}
	if len(dupMsgs) > 0 {
		return nil, &InputError{Messages: dupMsgs}
	}

	if in.Active {
		active, err := s.store.ActiveSchedules(ctx)
		if err != nil {
			return nil, err
		}
		exclude := map[int64]struct{}{}
		for _, row := range active {
			if row.Name == in.Name {
				exclude[row.ID] = struct{}{}
			}
		}
		slots := make([]bell.Slot, 0, len(days)*len(times))
		for _, d := range days {
			for _, t := range times {
				slots = append(slots, bell.Slot{Day: d, Time: t})
			}
		}
		if msgs := bell.ValidateConflicts(active, slots, clip, exclude); len(msgs) > 0 {
			return nil, &InputError{Messages: msgs}
		}
	}

	replaced, err := s.store.DeleteGroup(ctx, in.Name)
	if err != nil {
		return nil, err
	}

	rows := make([]*bell.Schedule, 0, len(days)*len(times))
	for _, d := range days {
		for _, t := range times {
			rows = append(rows, &bell.Schedule{
				Name:   in.Name,
				Day:    d,
				Time:   t,
				ClipID: in.ClipID,
				Clip:   clip,
				Active: in.Active,
			})
		}
	}
	created, err := s.store.CreateSchedules(ctx, rows)
	if err != nil {
		return nil, err
	}

	s.log.Info("schedule group saved",
		logx.String("name", in.Name),
		logx.Int("created", created),
		logx.Int64("replaced", replaced),
		logx.Bool("active", in.Active),
	)
	return &GroupResult{Name: in.Name, Created: created, Replaced: replaced}, nil
}

// ListGroups aggregates schedules by name. Groups come back sorted by name,
// with days in weekday order and times ascending. A group counts as active
// only when every member row is active.
func (s *Service) ListGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}

	byName := map[string]*Group{}
	var order []string
	for _, row := range rows {
		g, ok := byName[row.Name]
		if !ok {
			g = &Group{Name: row.Name, Active: true}
			byName[row.Name] = g
			order = append(order, row.Name)
		}
		g.Count++
		if !row.Active {
			g.Active = false
		}
		if g.Clip == nil && row.Clip != nil {
			g.Clip = row.Clip
		}
		if !containsDay(g.Days, row.Day) {
			g.Days = append(g.Days, row.Day)
		}
		if !containsClock(g.Times, row.Time) {
			g.Times = append(g.Times, row.Time)
		}
	}

	sort.Strings(order)
	out := make([]*Group, 0, len(order))
	for _, name := range order {
		g := byName[name]
		sort.Slice(g.Days, func(i, j int) bool { return g.Days[i].Order() < g.Days[j].Order() })
		sort.Slice(g.Times, func(i, j int) bool { return g.Times[i].Before(g.Times[j]) })
		out = append(out, g)
	}
	return out, nil
}

// ToggleGroup flips a group's active state: if any member row is active the
// whole group goes inactive, otherwise the whole group goes active. Returns
// the new state.
func (s *Service) ToggleGroup(ctx context.Context, name string) (bool, error) {
	rows, err := s.store.SchedulesByName(ctx, name)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, storage.ErrNotFound
	}

	anyActive := false
	for _, row := range rows {
		if row.Active {
			anyActive = true
			break
		}
	}
	newState := !anyActive
	if _, err := s.store.SetGroupActive(ctx, name, newState); err != nil {
		return false, err
	}
	s.log.Info("schedule group toggled", logx.String("name", name), logx.Bool("active", newState))
	return newState, nil
}

// DeleteGroup removes every row of a group; exceptions cascade away.
func (s *Service) DeleteGroup(ctx context.Context, name string) (int64, error) {
	n, err := s.store.DeleteGroup(ctx, name)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, storage.ErrNotFound
	}
	s.log.Info("schedule group deleted", logx.String("name", name), logx.Int64("rows", n))
	return n, nil
}

// DeleteSchedule removes a single schedule row.
func (s *Service) DeleteSchedule(ctx context.Context, id int64) error {
	return s.store.DeleteSchedule(ctx, id)
}

// ---- helpers ----

// parseSlots validates and canonicalizes raw day/time strings: duplicates
// are collapsed, days sort into weekday order, times ascend.
func parseSlots(rawDays, rawTimes []string) ([]bell.Day, []bell.Clock, []string) {
	var msgs []string

	var days []bell.Day
	for _, raw := range rawDays {
		d, err := bell.ParseDay(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("hari %q tidak dikenal", raw))
			continue
		}
		if !containsDay(days, d) {
			days = append(days, d)
		}
	}

	var times []bell.Clock
	for _, raw := range rawTimes {
		t, err := bell.ParseClock(raw)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("jam %q tidak valid", raw))
			continue
		}
		if !containsClock(times, t) {
			times = append(times, t)
		}
	}

	if len(msgs) > 0 {
		return nil, nil, msgs
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Order() < days[j].Order() })
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return days, times, nil
}

func containsDay(list []bell.Day, d bell.Day) bool {
	for _, x := range list {
		if x == d {
			return true
		}
	}
	return false
}

func containsClock(list []bell.Clock, c bell.Clock) bool {
	for _, x := range list {
		if x.Seconds() == c.Seconds() {
			return true
		}
	}
	return false
}

// asInputError converts validator failures into user-facing messages.
func asInputError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "min":
			msgs = append(msgs, fmt.Sprintf("%s wajib diisi", strings.ToLower(fe.Field())))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s terlalu panjang (maks %s)", strings.ToLower(fe.Field()), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s tidak valid", strings.ToLower(fe.Field())))
		}
	}
	return &InputError{Messages: msgs}
}
