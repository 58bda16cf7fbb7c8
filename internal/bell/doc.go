// Package bell holds the scheduling domain: weekday/time-of-day types, the
// interval arithmetic used for playback-overlap detection, the conflict
// validator run at data-entry time, and the resolver that decides which
// schedules are due at a given instant.
//
// Everything here is side-effect free; persistence is reached only through
// the narrow ScheduleSource interface.
package bell
