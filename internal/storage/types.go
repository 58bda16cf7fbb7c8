package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateException is returned when an exception already exists
	// for the same (date, schedule) pair.
	ErrDuplicateException = errors.New("storage: exception already exists")
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}
