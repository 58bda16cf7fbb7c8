package bell

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Clock is a time of day with second precision.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock accepts "HH:MM" or "HH:MM:SS".
func ParseClock(raw string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM or HH:MM:SS", raw)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Clock{}, fmt.Errorf("invalid time %q: %w", raw, err)
		}
		nums[i] = n
	}
	c := Clock{Hour: nums[0], Minute: nums[1]}
	if len(nums) == 3 {
		c.Second = nums[2]
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 || c.Second < 0 || c.Second > 59 {
		return Clock{}, fmt.Errorf("time %q out of range", raw)
	}
	return c, nil
}

// Seconds returns the offset from midnight in [0, 86399].
func (c Clock) Seconds() int { return c.Hour*3600 + c.Minute*60 + c.Second }

// String renders "HH:MM:SS".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// HHMM renders "HH:MM", the form used in schedule listings and conflict messages.
func (c Clock) HHMM() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Before reports whether c is strictly earlier in the day than other.
func (c Clock) Before(other Clock) bool { return c.Seconds() < other.Seconds() }

// Overlaps reports whether [startA, endA) and [startB, endB) intersect.
// Half-open semantics: touching endpoints do not overlap.
func Overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && startB < endA
}

// FormatSeconds renders a seconds-of-day offset as "HH:MM:SS".
// Values past the end of the day are clamped to 23:59:59, not wrapped.
func FormatSeconds(total int) string {
	if total > 86399 {
		total = 86399
	}
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// ClipSeconds returns the whole-second playback length used for overlap
// checks: ceil of the clip duration, 0 for a missing or unmeasured clip.
func ClipSeconds(clip *AudioClip) int {
	if clip == nil || clip.Duration <= 0 {
		return 0
	}
	return int(math.Ceil(clip.Duration))
}
