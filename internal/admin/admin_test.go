package admin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cobrell/internal/bell"
	"cobrell/internal/player"
	"cobrell/internal/storage"
	logx "cobrell/pkg/logx"
)

type fakePlayer struct {
	busy    bool
	plays   []string
	stopped int
}

func (f *fakePlayer) Play(path, name string) { f.plays = append(f.plays, path) }
func (f *fakePlayer) Stop()                  { f.stopped++ }
func (f *fakePlayer) Status() player.Status {
	if f.busy {
		return player.Status{IsPlaying: true, CurrentName: "busy"}
	}
	return player.Status{}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *storage.DB, *fakePlayer) {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bell.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fp := &fakePlayer{}
	opts = append([]Option{WithMediaDir(t.TempDir())}, opts...)
	return New(db, fp, logx.Nop(), opts...), db, fp
}

func mustSaveGroup(t *testing.T, svc *Service, in GroupInput) *GroupResult {
	t.Helper()
	res, err := svc.CreateOrReplaceScheduleGroup(context.Background(), in)
	if err != nil {
		t.Fatalf("save group %q: %v", in.Name, err)
	}
	return res
}

func TestCreateGroupCartesianProduct(t *testing.T) {
	t.Parallel()
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	res := mustSaveGroup(t, svc, GroupInput{
		Name:   "Masuk Kelas",
		Days:   []string{"senin", "selasa", "senin"}, // duplicate collapses
		Times:  []string{"07:00", "13:00"},
		Active: true,
	})
	if res.Created != 4 {
		t.Fatalf("created = %d, want 4 (2 days x 2 times)", res.Created)
	}
	if res.Replaced != 0 {
		t.Fatalf("replaced = %d, want 0 on first save", res.Replaced)
	}

	rows, err := db.SchedulesByName(ctx, "Masuk Kelas")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("stored rows = %d", len(rows))
	}
}

func TestReplaceGroupDropsOldSlots(t *testing.T) {
	t.Parallel()
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	mustSaveGroup(t, svc, GroupInput{
		Name: "Pulang", Days: []string{"jumat"}, Times: []string{"11:30"}, Active: true,
	})
	res := mustSaveGroup(t, svc, GroupInput{
		Name: "Pulang", Days: []string{"jumat"}, Times: []string{"11:00"}, Active: true,
	})
	if res.Replaced != 1 || res.Created != 1 {
		t.Fatalf("replaced/created = %d/%d, want 1/1", res.Replaced, res.Created)
	}

	rows, err := db.SchedulesByName(ctx, "Pulang")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Time.HHMM() != "11:00" {
		t.Fatalf("rows after replace = %+v", rows)
	}
}

func TestCreateGroupRejectsOccupiedSlot(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustSaveGroup(t, svc, GroupInput{
		Name: "Upacara", Days: []string{"senin"}, Times: []string{"07:00"}, Active: false,
	})

	// Occupied even though the existing row is inactive.
	_, err := svc.CreateOrReplaceScheduleGroup(ctx, GroupInput{
		Name: "Masuk", Days: []string{"senin"}, Times: []string{"07:00"}, Active: true,
	})
	var ie *InputError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want InputError", err)
	}

	// Re-saving the same group into its own slot is fine.
	mustSaveGroup(t, svc, GroupInput{
		Name: "Upacara", Days: []string{"senin"}, Times: []string{"07:00"}, Active: true,
	})
}

func TestCreateGroupConflictAgainstPlayingBell(t *testing.T) {
	t.Parallel()
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	clip, err := db.CreateClip(ctx, "Bel Panjang", "/media/long.mp3", 90)
	if err != nil {
		t.Fatal(err)
	}
	mustSaveGroup(t, svc, GroupInput{
		Name: "Masuk", Days: []string{"rabu"}, Times: []string{"08:00"}, ClipID: &clip.ID, Active: true,
	})

	// 08:01:00 falls inside the 90s playback window starting at 08:00:00.
	_, err = svc.CreateOrReplaceScheduleGroup(ctx, GroupInput{
		Name: "Ganti Jam", Days: []string{"rabu"}, Times: []string{"08:01"}, Active: true,
	})
	var ie *InputError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want conflict InputError", err)
	}

	// The same slots saved inactive skip conflict validation entirely.
	mustSaveGroup(t, svc, GroupInput{
		Name: "Ganti Jam", Days: []string{"rabu"}, Times: []string{"08:01"}, Active: false,
	})
}

func TestCreateGroupInputValidation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   GroupInput
	}{
		{"empty name", GroupInput{Days: []string{"senin"}, Times: []string{"07:00"}}},
		{"no days", GroupInput{Name: "X", Times: []string{"07:00"}}},
		{"no times", GroupInput{Name: "X", Days: []string{"senin"}}},
		{"bad day", GroupInput{Name: "X", Days: []string{"monday"}, Times: []string{"07:00"}}},
		{"bad time", GroupInput{Name: "X", Days: []string{"senin"}, Times: []string{"25:00"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrReplaceScheduleGroup(ctx, tc.in)
			var ie *InputError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %v, want InputError", err)
			}
		})
	}
}

func TestListGroupsAggregates(t *testing.T) {
	t.Parallel()
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	mustSaveGroup(t, svc, GroupInput{
		Name: "Masuk", Days: []string{"selasa", "senin"}, Times: []string{"07:00"}, Active: true,
	})
	mustSaveGroup(t, svc, GroupInput{
		Name: "Istirahat", Days: []string{"senin"}, Times: []string{"10:00"}, Active: true,
	})

	if _, err := db.SetGroupActive(ctx, "Istirahat", false); err != nil {
		t.Fatal(err)
	}

	groups, err := svc.ListGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d", len(groups))
	}
	if groups[0].Name != "Istirahat" || groups[1].Name != "Masuk" {
		t.Fatalf("order = %q, %q", groups[0].Name, groups[1].Name)
	}
	if groups[0].Active {
		t.Fatal("Istirahat was deactivated, group must read inactive")
	}
	masuk := groups[1]
	if len(masuk.Days) != 2 || masuk.Days[0] != bell.Senin || masuk.Days[1] != bell.Selasa {
		t.Fatalf("days = %v, want weekday order", masuk.Days)
	}
	if masuk.Count != 2 || !masuk.Active {
		t.Fatalf("count/active = %d/%v", masuk.Count, masuk.Active)
	}
}

func TestToggleGroup(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustSaveGroup(t, svc, GroupInput{
		Name: "Masuk", Days: []string{"senin"}, Times: []string{"07:00"}, Active: true,
	})

	active, err := svc.ToggleGroup(ctx, "Masuk")
	if err != nil || active {
		t.Fatalf("first toggle = (%v, %v), want inactive", active, err)
	}
	active, err = svc.ToggleGroup(ctx, "Masuk")
	if err != nil || !active {
		t.Fatalf("second toggle = (%v, %v), want active", active, err)
	}

	if _, err := svc.ToggleGroup(ctx, "Tidak Ada"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing group err = %v", err)
	}
}

func TestCreateExceptionsSkipsAndCounts(t *testing.T) {
	t.Parallel()
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	mustSaveGroup(t, svc, GroupInput{
		Name: "Masuk", Days: []string{"senin"}, Times: []string{"07:00"}, Active: true,
	})
	rows, err := db.SchedulesByName(ctx, "Masuk")
	if err != nil || len(rows) != 1 {
		t.Fatalf("seed rows: %v %d", err, len(rows))
	}
	id := rows[0].ID

	// 2026-01-05 is a Monday.
	res, err := svc.CreateExceptions(ctx, ExceptionInput{
		Date:        "2026-01-05",
		ScheduleIDs: []int64{id, 9999},
		Reason:      "Libur",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 || res.Skipped != 1 {
		t.Fatalf("created/skipped = %d/%d, want 1/1", res.Created, res.Skipped)
	}

	// Re-submitting the same form only skips.
	res, err = svc.CreateExceptions(ctx, ExceptionInput{
		Date: "2026-01-05", ScheduleIDs: []int64{id}, Reason: "Libur",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Skipped != 1 {
		t.Fatalf("resubmit created/skipped = %d/%d", res.Created, res.Skipped)
	}

	// A Tuesday date can't exclude a Monday-only schedule.
	res, err = svc.CreateExceptions(ctx, ExceptionInput{
		Date: "2026-01-06", ScheduleIDs: []int64{id}, Reason: "Libur",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Skipped != 1 {
		t.Fatalf("wrong weekday created/skipped = %d/%d", res.Created, res.Skipped)
	}
}

func TestSchedulesForDateMarksExcluded(t *testing.T) {
	t.Parallel()
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	mustSaveGroup(t, svc, GroupInput{
		Name: "Masuk", Days: []string{"senin"}, Times: []string{"07:00", "10:00"}, Active: true,
	})
	rows, err := db.SchedulesByName(ctx, "Masuk")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateExceptions(ctx, ExceptionInput{
		Date: "2026-01-05", ScheduleIDs: []int64{rows[0].ID}, Reason: "Ujian",
	}); err != nil {
		t.Fatal(err)
	}

	detail, err := svc.SchedulesForDate(ctx, "2026-01-05")
	if err != nil {
		t.Fatal(err)
	}
	if detail.Day != bell.Senin || len(detail.Entries) != 2 {
		t.Fatalf("detail = %+v", detail)
	}
	if !detail.Entries[0].AlreadyExcluded || detail.Entries[0].Reason != "Ujian" {
		t.Fatalf("first entry = %+v, want excluded", detail.Entries[0])
	}
	if detail.Entries[1].AlreadyExcluded {
		t.Fatalf("second entry should not be excluded")
	}

	if _, err := svc.SchedulesForDate(ctx, "05-01-2026"); err == nil {
		t.Fatal("bad date format must be rejected")
	}
}

func TestListExceptionsSplitsAroundToday(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC) // Wednesday
	svc, db, _ := newTestService(t, WithClock(func() time.Time { return now }), WithLocation(time.UTC))
	ctx := context.Background()

	mustSaveGroup(t, svc, GroupInput{
		Name: "Masuk", Days: []string{"senin", "rabu"}, Times: []string{"07:00"}, Active: true,
	})
	rows, err := db.SchedulesByName(ctx, "Masuk")
	if err != nil || len(rows) != 2 {
		t.Fatalf("seed: %v %d", err, len(rows))
	}
	var monday, wednesday int64
	for _, r := range rows {
		if r.Day == bell.Senin {
			monday = r.ID
		} else {
			wednesday = r.ID
		}
	}

	for _, e := range []struct {
		date string
		id   int64
	}{
		{"2026-01-05", monday},    // past
		{"2026-01-07", wednesday}, // today: upcoming
		{"2026-01-12", monday},    // future
	} {
		if _, err := svc.CreateExceptions(ctx, ExceptionInput{
			Date: e.date, ScheduleIDs: []int64{e.id}, Reason: "Libur",
		}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := svc.ListExceptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Upcoming) != 2 || len(list.Past) != 1 {
		t.Fatalf("upcoming/past = %d/%d, want 2/1", len(list.Upcoming), len(list.Past))
	}
	if list.Upcoming[0].Date.String() != "2026-01-07" {
		t.Fatalf("upcoming order = %s, want soonest first", list.Upcoming[0].Date)
	}
	if list.Past[0].Date.String() != "2026-01-05" {
		t.Fatalf("past[0] = %s", list.Past[0].Date)
	}
}

func TestTestPlayRefusesWhileBusy(t *testing.T) {
	t.Parallel()
	svc, db, fp := newTestService(t)
	ctx := context.Background()

	clip, err := db.CreateClip(ctx, "Bel", "/media/bel.mp3", 4)
	if err != nil {
		t.Fatal(err)
	}

	fp.busy = true
	if err := svc.TestPlay(ctx, clip.ID); !errors.Is(err, ErrPlayerBusy) {
		t.Fatalf("busy err = %v, want ErrPlayerBusy", err)
	}
	if len(fp.plays) != 0 {
		t.Fatal("busy refusal must not start playback")
	}

	fp.busy = false
	if err := svc.TestPlay(ctx, clip.ID); err != nil {
		t.Fatal(err)
	}
	if len(fp.plays) != 1 || fp.plays[0] != "/media/bel.mp3" {
		t.Fatalf("plays = %v", fp.plays)
	}

	if err := svc.TestPlay(ctx, 9999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing clip err = %v", err)
	}

	svc.StopPlay()
	if fp.stopped != 1 {
		t.Fatalf("stopped = %d", fp.stopped)
	}
}

func TestRegisterClipValidatesAndCopies(t *testing.T) {
	t.Parallel()
	mediaDir := t.TempDir()
	svc, db, _ := newTestService(t, WithMediaDir(mediaDir))
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "tone.mp3")
	if err := os.WriteFile(src, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	clip, err := svc.RegisterClip(ctx, ClipInput{Name: "Bel Masuk", SourcePath: src})
	if err != nil {
		t.Fatal(err)
	}
	if clip.Name != "Bel Masuk" {
		t.Fatalf("name = %q", clip.Name)
	}
	if filepath.Dir(clip.Path) != mediaDir {
		t.Fatalf("clip stored at %q, want inside %q", clip.Path, mediaDir)
	}
	if _, err := os.Stat(clip.Path); err != nil {
		t.Fatalf("copied file missing: %v", err)
	}

	// Unsupported extension.
	bad := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(bad, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var ie *InputError
	if _, err := svc.RegisterClip(ctx, ClipInput{Name: "X", SourcePath: bad}); !errors.As(err, &ie) {
		t.Fatalf("pdf err = %v, want InputError", err)
	}

	// Same source filename gets a suffixed destination, not an overwrite.
	clip2, err := svc.RegisterClip(ctx, ClipInput{Name: "Bel Lain", SourcePath: src})
	if err != nil {
		t.Fatal(err)
	}
	if clip2.Path == clip.Path {
		t.Fatalf("second clip reused path %q", clip2.Path)
	}

	// Delete removes row and file.
	if err := svc.DeleteClip(ctx, clip.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(clip.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present after delete: %v", err)
	}
	if _, err := db.GetClip(ctx, clip.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("row still present after delete: %v", err)
	}
}

func TestOverviewAndCalendar(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC) // Monday morning
	svc, db, _ := newTestService(t, WithClock(func() time.Time { return now }), WithLocation(time.UTC))
	ctx := context.Background()

	if _, err := db.CreateClip(ctx, "Bel", "/media/bel.mp3", 4); err != nil {
		t.Fatal(err)
	}
	mustSaveGroup(t, svc, GroupInput{
		Name: "Masuk", Days: []string{"senin"}, Times: []string{"07:00"}, Active: true,
	})

	ov, err := svc.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ov.ActiveSchedules != 1 || ov.Clips != 1 {
		t.Fatalf("counts = %d/%d", ov.ActiveSchedules, ov.Clips)
	}
	if ov.NextBell == nil || ov.NextBell.Time.HHMM() != "07:00" {
		t.Fatalf("next bell = %+v", ov.NextBell)
	}

	rows, err := db.SchedulesByName(ctx, "Masuk")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateExceptions(ctx, ExceptionInput{
		Date: "2026-01-12", ScheduleIDs: []int64{rows[0].ID}, Reason: "Libur",
	}); err != nil {
		t.Fatal(err)
	}

	month, err := svc.CalendarMonth(ctx, 2026, time.January)
	if err != nil {
		t.Fatal(err)
	}
	if len(month) != 31 {
		t.Fatalf("january has %d summaries", len(month))
	}
	jan5, jan6, jan12 := month[4], month[5], month[11]
	if jan5.Bells != 1 || jan5.Day != bell.Senin {
		t.Fatalf("jan 5 = %+v", jan5)
	}
	if jan6.Bells != 0 {
		t.Fatalf("jan 6 = %+v", jan6)
	}
	if jan12.Exceptions != 1 {
		t.Fatalf("jan 12 = %+v", jan12)
	}

	if _, err := svc.CalendarMonth(ctx, 2026, time.Month(13)); err == nil {
		t.Fatal("month 13 must be rejected")
	}
}
