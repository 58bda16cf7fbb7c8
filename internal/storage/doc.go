// Package storage persists schedules, audio clips, and date-scoped
// exceptions in a single SQLite database file.
//
// The schema (see migrations.sql) enforces the relational invariants the
// domain relies on: at most one exception per (date, schedule) pair, cascade
// deletion of a schedule's exceptions, and SET NULL of clip references when
// a clip is removed. The (weekday, time) uniqueness of active schedules is
// deliberately NOT a database constraint; it must account for playback
// duration and is owned by the conflict validator.
package storage
