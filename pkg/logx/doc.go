// Package logx wraps zerolog behind a small structured-logging API.
//
// It provides:
//   - a Logger value type with With()/level methods and typed Field helpers
//   - a Service that owns the configured sinks (console, JSON file) and can
//     re-apply logging config at runtime without invalidating held Loggers
//
// The zero Logger value is a safe no-op.
package logx
