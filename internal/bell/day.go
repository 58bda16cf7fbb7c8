package bell

import (
	"fmt"
	"time"
)

// Day is a day of the week, stored by its Indonesian key.
// Canonical ordering is Senin=0 .. Minggu=6 (Monday first).
type Day string

const (
	Senin  Day = "senin"
	Selasa Day = "selasa"
	Rabu   Day = "rabu"
	Kamis  Day = "kamis"
	Jumat  Day = "jumat"
	Sabtu  Day = "sabtu"
	Minggu Day = "minggu"
)

// Days lists all days in canonical order.
var Days = []Day{Senin, Selasa, Rabu, Kamis, Jumat, Sabtu, Minggu}

var dayOrder = map[Day]int{
	Senin: 0, Selasa: 1, Rabu: 2, Kamis: 3, Jumat: 4, Sabtu: 5, Minggu: 6,
}

var dayLabels = map[Day]string{
	Senin: "Senin", Selasa: "Selasa", Rabu: "Rabu", Kamis: "Kamis",
	Jumat: "Jumat", Sabtu: "Sabtu", Minggu: "Minggu",
}

// time.Weekday is Sunday=0; our ordering is Monday=0.
var dayFromWeekday = map[time.Weekday]Day{
	time.Monday:    Senin,
	time.Tuesday:   Selasa,
	time.Wednesday: Rabu,
	time.Thursday:  Kamis,
	time.Friday:    Jumat,
	time.Saturday:  Sabtu,
	time.Sunday:    Minggu,
}

// DayOf returns the Day for a wall-clock instant.
func DayOf(t time.Time) Day { return dayFromWeekday[t.Weekday()] }

// ParseDay validates a raw day key.
func ParseDay(raw string) (Day, error) {
	d := Day(raw)
	if _, ok := dayOrder[d]; !ok {
		return "", fmt.Errorf("unknown day %q", raw)
	}
	return d, nil
}

// Valid reports whether d is one of the seven known days.
func (d Day) Valid() bool {
	_, ok := dayOrder[d]
	return ok
}

// Order returns the canonical position (Senin=0 .. Minggu=6).
// Unknown days sort last.
func (d Day) Order() int {
	if n, ok := dayOrder[d]; ok {
		return n
	}
	return 99
}

// Label returns the display form ("Senin", "Selasa", ...).
func (d Day) Label() string {
	if l, ok := dayLabels[d]; ok {
		return l
	}
	return string(d)
}
