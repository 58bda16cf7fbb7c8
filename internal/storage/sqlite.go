package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cobrell/internal/bell"
	logx "cobrell/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// DB is the SQLite-backed store. It implements bell.ScheduleSource.
type DB struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	// Cascade/SET NULL behavior on exceptions and clip references needs this.
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &DB{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (d *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, string(b))
	return err
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ---- Clips ----

func (d *DB) CreateClip(ctx context.Context, name, path string, duration float64) (*bell.AudioClip, error) {
	now := time.Now()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO clips(name, path, duration, created_at) VALUES(?,?,?,?)`,
		name, path, duration, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &bell.AudioClip{ID: id, Name: name, Path: path, Duration: duration, CreatedAt: now}, nil
}

func (d *DB) GetClip(ctx context.Context, id int64) (*bell.AudioClip, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, path, duration, created_at FROM clips WHERE id = ?`, id)
	c, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (d *DB) ListClips(ctx context.Context) ([]*bell.AudioClip, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, path, duration, created_at FROM clips ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bell.AudioClip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) SetClipDuration(ctx context.Context, id int64, duration float64) error {
	res, err := d.db.ExecContext(ctx, `UPDATE clips SET duration = ? WHERE id = ?`, duration, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClip removes the clip row; the clip_id of referring schedules becomes
// NULL via the foreign key action (schedules themselves are kept).
func (d *DB) DeleteClip(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM clips WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Schedules ----

const scheduleCols = `
	s.id, s.name, s.day, s.time, s.clip_id, s.active, s.created_at,
	c.name, c.path, c.duration, c.created_at`

const scheduleFrom = ` FROM schedules s LEFT JOIN clips c ON c.id = s.clip_id`

// CreateSchedules inserts a batch atomically and returns the created count.
func (d *DB) CreateSchedules(ctx context.Context, rows []*bell.Schedule) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, s := range rows {
		var clipID any
		if s.ClipID != nil {
			clipID = *s.ClipID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO schedules(name, day, time, clip_id, active, created_at) VALUES(?,?,?,?,?,?)`,
			s.Name, string(s.Day), s.Time.String(), clipID, s.Active, now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return 0, err
		}
		s.ID, _ = res.LastInsertId()
		s.CreatedAt = now
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (d *DB) querySchedules(ctx context.Context, where string, args ...any) ([]*bell.Schedule, error) {
	q := `SELECT` + scheduleCols + scheduleFrom
	if where != "" {
		q += " WHERE " + where
	}
	q += ` ORDER BY s.day, s.time, s.id`

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bell.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListSchedules returns every schedule, active or not, in day-order then time.
func (d *DB) ListSchedules(ctx context.Context) ([]*bell.Schedule, error) {
	out, err := d.querySchedules(ctx, "")
	if err != nil {
		return nil, err
	}
	sortSchedules(out)
	return out, nil
}

func (d *DB) ActiveSchedules(ctx context.Context) ([]*bell.Schedule, error) {
	out, err := d.querySchedules(ctx, `s.active = 1`)
	if err != nil {
		return nil, err
	}
	sortSchedules(out)
	return out, nil
}

func (d *DB) ActiveSchedulesAt(ctx context.Context, day bell.Day, hour, minute int) ([]*bell.Schedule, error) {
	hhmm := fmt.Sprintf("%02d:%02d", hour, minute)
	return d.querySchedules(ctx, `s.active = 1 AND s.day = ? AND substr(s.time, 1, 5) = ?`, string(day), hhmm)
}

func (d *DB) ActiveSchedulesOn(ctx context.Context, day bell.Day) ([]*bell.Schedule, error) {
	return d.querySchedules(ctx, `s.active = 1 AND s.day = ?`, string(day))
}

func (d *DB) SchedulesByName(ctx context.Context, name string) ([]*bell.Schedule, error) {
	return d.querySchedules(ctx, `s.name = ?`, name)
}

// SchedulesInSlots returns any schedule (active or not) occupying one of the
// given (day, time) combinations. Used for the duplicate-slot pre-check.
func (d *DB) SchedulesInSlots(ctx context.Context, days []bell.Day, times []bell.Clock) ([]*bell.Schedule, error) {
	if len(days) == 0 || len(times) == 0 {
		return nil, nil
	}
	var (
		where strings.Builder
		args  []any
	)
	where.WriteString(`s.day IN (`)
	for i, day := range days {
		if i > 0 {
			where.WriteString(",")
		}
		where.WriteString("?")
		args = append(args, string(day))
	}
	where.WriteString(`) AND s.time IN (`)
	for i, tm := range times {
		if i > 0 {
			where.WriteString(",")
		}
		where.WriteString("?")
		args = append(args, tm.String())
	}
	where.WriteString(`)`)
	return d.querySchedules(ctx, where.String(), args...)
}

func (d *DB) DeleteSchedule(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteGroup removes all rows sharing a name (their exceptions cascade).
func (d *DB) DeleteGroup(ctx context.Context, name string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM schedules WHERE name = ?`, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) SetGroupActive(ctx context.Context, name string, active bool) (int64, error) {
	res, err := d.db.ExecContext(ctx, `UPDATE schedules SET active = ? WHERE name = ?`, active, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) CountActiveSchedules(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules WHERE active = 1`).Scan(&n)
	return n, err
}

func (d *DB) CountClips(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips`).Scan(&n)
	return n, err
}

// CountActiveByDay returns active schedule counts keyed by weekday.
func (d *DB) CountActiveByDay(ctx context.Context) (map[bell.Day]int, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT day, COUNT(*) FROM schedules WHERE active = 1 GROUP BY day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[bell.Day]int{}
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out[bell.Day(day)] = n
	}
	return out, rows.Err()
}

// ---- Exceptions ----

// CreateException records a suppression for (date, schedule).
// Returns ErrDuplicateException if the pair already exists.
func (d *DB) CreateException(ctx context.Context, date bell.Date, scheduleID int64, reason string) (*bell.Exception, error) {
	now := time.Now()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO exceptions(date, schedule_id, reason, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(date, schedule_id) DO NOTHING`,
		date.String(), scheduleID, reason, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrDuplicateException
	}
	id, _ := res.LastInsertId()
	return &bell.Exception{ID: id, Date: date, ScheduleID: scheduleID, Reason: reason, CreatedAt: now}, nil
}

// ListExceptions returns every exception with its schedule attached,
// most recent date first, then by schedule time.
func (d *DB) ListExceptions(ctx context.Context) ([]*bell.Exception, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT e.id, e.date, e.schedule_id, e.reason, e.created_at,`+scheduleCols+`
		 FROM exceptions e
		 JOIN schedules s ON s.id = e.schedule_id
		 LEFT JOIN clips c ON c.id = s.clip_id
		 ORDER BY e.date DESC, s.time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bell.Exception
	for rows.Next() {
		e := &bell.Exception{}
		var (
			dateStr, createdStr string
			s                   = &bell.Schedule{}
			dayStr, timeStr     string
			sCreated            string
			clipID              sql.NullInt64
			cName, cPath        sql.NullString
			cDuration           sql.NullFloat64
			cCreated            sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &dateStr, &e.ScheduleID, &e.Reason, &createdStr,
			&s.ID, &s.Name, &dayStr, &timeStr, &clipID, &s.Active, &sCreated,
			&cName, &cPath, &cDuration, &cCreated,
		); err != nil {
			return nil, err
		}
		if e.Date, err = bell.ParseDate(dateStr); err != nil {
			return nil, err
		}
		e.CreatedAt = parseStoredTime(createdStr)
		if err := fillSchedule(s, dayStr, timeStr, sCreated, clipID, cName, cPath, cDuration, cCreated); err != nil {
			return nil, err
		}
		e.Schedule = s
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExceptionsOn returns reason by schedule id for a single date.
func (d *DB) ExceptionsOn(ctx context.Context, date bell.Date) (map[int64]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT schedule_id, reason FROM exceptions WHERE date = ?`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]string{}
	for rows.Next() {
		var id int64
		var reason string
		if err := rows.Scan(&id, &reason); err != nil {
			return nil, err
		}
		out[id] = reason
	}
	return out, rows.Err()
}

func (d *DB) ExcludedScheduleIDs(ctx context.Context, date bell.Date, ids []int64) (map[int64]struct{}, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(`SELECT schedule_id FROM exceptions WHERE date = ? AND schedule_id IN (`)
	args = append(args, date.String())
	for i, id := range ids {
		if i > 0 {
			q.WriteString(",")
		}
		q.WriteString("?")
		args = append(args, id)
	}
	q.WriteString(`)`)

	rows, err := d.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (d *DB) DeleteException(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM exceptions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountExceptionsByDayOfMonth returns exception counts keyed by day-of-month.
func (d *DB) CountExceptionsByDayOfMonth(ctx context.Context, year int, month time.Month) (map[int]int, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))
	rows, err := d.db.QueryContext(ctx,
		`SELECT CAST(substr(date, 9, 2) AS INTEGER), COUNT(*)
		 FROM exceptions WHERE date LIKE ? || '%' GROUP BY date`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]int{}
	for rows.Next() {
		var day, n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out[day] += n
	}
	return out, rows.Err()
}

// PruneExceptionsBefore deletes exceptions dated strictly before the cutoff.
func (d *DB) PruneExceptionsBefore(ctx context.Context, cutoff bell.Date) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM exceptions WHERE date < ?`, cutoff.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClip(r rowScanner) (*bell.AudioClip, error) {
	c := &bell.AudioClip{}
	var created string
	if err := r.Scan(&c.ID, &c.Name, &c.Path, &c.Duration, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = parseStoredTime(created)
	return c, nil
}

func scanSchedule(r rowScanner) (*bell.Schedule, error) {
	s := &bell.Schedule{}
	var (
		dayStr, timeStr, created string
		clipID                   sql.NullInt64
		cName, cPath             sql.NullString
		cDuration                sql.NullFloat64
		cCreated                 sql.NullString
	)
	if err := r.Scan(&s.ID, &s.Name, &dayStr, &timeStr, &clipID, &s.Active, &created,
		&cName, &cPath, &cDuration, &cCreated); err != nil {
		return nil, err
	}
	if err := fillSchedule(s, dayStr, timeStr, created, clipID, cName, cPath, cDuration, cCreated); err != nil {
		return nil, err
	}
	return s, nil
}

func fillSchedule(s *bell.Schedule, dayStr, timeStr, created string,
	clipID sql.NullInt64, cName, cPath sql.NullString, cDuration sql.NullFloat64, cCreated sql.NullString,
) error {
	s.Day = bell.Day(dayStr)
	tm, err := bell.ParseClock(timeStr)
	if err != nil {
		return fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	s.Time = tm
	s.CreatedAt = parseStoredTime(created)
	if clipID.Valid {
		id := clipID.Int64
		s.ClipID = &id
		s.Clip = &bell.AudioClip{
			ID:        id,
			Name:      cName.String,
			Path:      cPath.String,
			Duration:  cDuration.Float64,
			CreatedAt: parseStoredTime(cCreated.String),
		}
	}
	return nil
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// sortSchedules orders by canonical day order (senin first), then time.
// SQL sorts the day column lexically, which is wrong for display.
func sortSchedules(list []*bell.Schedule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Day.Order() != list[j].Day.Order() {
			return list[i].Day.Order() < list[j].Day.Order()
		}
		return list[i].Time.Before(list[j].Time)
	})
}
