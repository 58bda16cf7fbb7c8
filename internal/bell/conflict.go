package bell

import (
	"fmt"
	"sort"
)

// Slot is one proposed (weekday, start time) combination in a batch.
type Slot struct {
	Day  Day
	Time Clock
}

type proposed struct {
	jam        string
	start, end int
}

type existing struct {
	name       string
	jam        string
	start, end int
}

// ValidateConflicts checks a proposed batch of schedule slots against the
// currently active schedules and against itself.
//
// Rules:
//   - no two active schedules may start at the same second on the same day
//   - no bell may start while another bell's audio is still playing
//     (half-open intervals of ceil(clip duration) seconds)
//
// active is the full set of active schedules system-wide; rows whose ID is in
// excludeIDs are ignored, which lets a group be re-validated against everything
// but itself during an edit. clip is the tone the whole batch will use, nil
// for a silent bell.
//
// The result is a de-duplicated, order-preserving list of human-readable
// messages; empty means the batch is safe to persist. Callers should skip the
// check entirely when saving an inactive batch; conflicts between inactive
// schedules are harmless.
func ValidateConflicts(active []*Schedule, candidates []Slot, clip *AudioClip, excludeIDs map[int64]struct{}) []string {
	newDuration := ClipSeconds(clip)
	clipLabel := "Tanpa Musik"
	if clip != nil {
		clipLabel = clip.Name
	}

	proposedByDay := map[Day][]proposed{}
	for _, c := range candidates {
		start := c.Time.Seconds()
		proposedByDay[c.Day] = append(proposedByDay[c.Day], proposed{
			jam:   c.Time.HHMM(),
			start: start,
			end:   start + newDuration,
		})
	}

	existingByDay := map[Day][]existing{}
	for _, s := range active {
		if !s.Active {
			continue
		}
		if _, skip := excludeIDs[s.ID]; skip {
			continue
		}
		start := s.Time.Seconds()
		existingByDay[s.Day] = append(existingByDay[s.Day], existing{
			name:  s.Name,
			jam:   s.Time.HHMM(),
			start: start,
			end:   start + ClipSeconds(s.Clip),
		})
	}

	var errs []string
	seen := map[string]struct{}{}
	addError := func(msg string) {
		if _, dup := seen[msg]; dup {
			return
		}
		seen[msg] = struct{}{}
		errs = append(errs, msg)
	}

	// Iterate days in canonical order so messages are stable across runs.
	for _, day := range Days {
		items := proposedByDay[day]
		if len(items) == 0 {
			continue
		}
		dayLabel := day.Label()

		for _, item := range items {
			for _, ex := range existingByDay[day] {
				if item.start == ex.start {
					addError(fmt.Sprintf(
						"%s %s bentrok dengan jadwal %q karena waktu mulai sama.",
						dayLabel, item.jam, ex.name,
					))
					continue
				}
				if Overlaps(item.start, item.end, ex.start, ex.end) {
					addError(fmt.Sprintf(
						"%s %s bentrok dengan %q (%s–%s) karena suara bel masih diputar.",
						dayLabel, item.jam, ex.name, ex.jam, FormatSeconds(ex.end),
					))
				}
			}
		}

		// Batch against itself: sort by start so messages read chronologically.
		sorted := append([]proposed(nil), items...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
		for i := 0; i < len(sorted); i++ {
			left := sorted[i]
			for _, right := range sorted[i+1:] {
				if left.start == right.start {
					addError(fmt.Sprintf(
						"%s %s dan %s bentrok karena waktu mulai sama.",
						dayLabel, left.jam, right.jam,
					))
					continue
				}
				if Overlaps(left.start, left.end, right.start, right.end) {
					addError(fmt.Sprintf(
						"%s %s–%s bentrok dengan %s karena musik %q masih diputar.",
						dayLabel, left.jam, FormatSeconds(left.end), right.jam, clipLabel,
					))
				}
			}
		}
	}

	return errs
}
