package player

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeDuration measures an audio file's length in seconds using ffprobe.
// Returns 0 if ffprobe is missing or the file cannot be read; a clip with an
// unknown duration is still usable, it just occupies a zero-length interval
// in conflict checks.
func ProbeDuration(ctx context.Context, path string) float64 {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || sec < 0 {
		return 0
	}
	// Match the upload-time convention of one decimal place.
	return float64(int(sec*10+0.5)) / 10
}
