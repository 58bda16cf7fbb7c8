package player

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Backend is one way of rendering an audio file through the system output.
// Backends are tried in a fixed priority order; the first one that is
// installed and can handle the file's format wins.
type Backend interface {
	Name() string
	// Available reports whether the underlying player binary is installed.
	Available() bool
	// CanPlay reports whether this backend handles the given file.
	CanPlay(path string) bool
	// Command builds the player process for the given file.
	Command(ctx context.Context, path string) *exec.Cmd
}

type execBackend struct {
	name string
	bin  string
	// exts limits the backend to specific extensions; empty means any.
	exts []string
	args func(path string) []string
	// platforms limits the backend to specific GOOS values; empty means any.
	platforms []string
}

func (b *execBackend) Name() string { return b.name }

func (b *execBackend) Available() bool {
	if len(b.platforms) > 0 {
		ok := false
		for _, p := range b.platforms {
			if runtime.GOOS == p {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	_, err := exec.LookPath(b.bin)
	return err == nil
}

func (b *execBackend) CanPlay(path string) bool {
	if len(b.exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range b.exts {
		if ext == e {
			return true
		}
	}
	return false
}

func (b *execBackend) Command(ctx context.Context, path string) *exec.Cmd {
	return exec.CommandContext(ctx, b.bin, b.args(path)...)
}

// Backends returns the fallback chain in priority order.
// Mirrors the classic desktop/RPi player lineup: afplay on macOS, then
// format-specific ALSA tools, then the generic ffplay/cvlc catch-alls.
func Backends() []Backend {
	return []Backend{
		&execBackend{
			name:      "afplay",
			bin:       "afplay",
			platforms: []string{"darwin"},
			args:      func(path string) []string { return []string{path} },
		},
		&execBackend{
			name: "aplay",
			bin:  "aplay",
			exts: []string{".wav"},
			args: func(path string) []string { return []string{path} },
		},
		&execBackend{
			name: "mpg123",
			bin:  "mpg123",
			exts: []string{".mp3"},
			args: func(path string) []string { return []string{"-q", path} },
		},
		&execBackend{
			name: "ffplay",
			bin:  "ffplay",
			args: func(path string) []string {
				return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
			},
		},
		&execBackend{
			name: "cvlc",
			bin:  "cvlc",
			args: func(path string) []string {
				return []string{"--play-and-exit", "--no-video", path}
			},
		},
	}
}

// AvailableBackends returns the installed subset of the chain, in order.
func AvailableBackends() []Backend {
	var out []Backend
	for _, b := range Backends() {
		if b.Available() {
			out = append(out, b)
		}
	}
	return out
}
