package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	logx "cobrell/pkg/logx"
)

// errStopped marks a playback that ended because stop was requested.
// It suppresses the backend fallback: a cancelled play is not a failure.
var errStopped = errors.New("playback stopped")

const defaultGrace = 10 * time.Second

// Status is a non-blocking snapshot of the playback slot.
type Status struct {
	IsPlaying   bool   `json:"is_playing"`
	CurrentName string `json:"current_name"`
}

type playback struct {
	name     string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (p *playback) requestStop() { p.stopOnce.Do(func() { close(p.stop) }) }

func (p *playback) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Controller serializes access to the audio output. Replacing the current
// playback (stop old, install new) is atomic under mu, so concurrent Play and
// Stop calls from the trigger engine and the admin interface cannot race.
type Controller struct {
	mu       sync.Mutex
	current  *playback
	backends []Backend
	grace    time.Duration
	log      logx.Logger

	// Throttles repeated playback-failure logs (a missing player would
	// otherwise produce an error line on every scheduled ring).
	errLimiter *rate.Limiter

	// run is swapped in tests.
	run func(stop <-chan struct{}, path string) error
}

type Option func(*Controller)

// WithGrace bounds how long Stop (and a pre-empting Play) waits for the
// current playback to acknowledge cancellation.
func WithGrace(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.grace = d
		}
	}
}

func WithBackends(backends []Backend) Option {
	return func(c *Controller) { c.backends = backends }
}

func New(log logx.Logger, opts ...Option) *Controller {
	c := &Controller{
		grace:      defaultGrace,
		log:        log.With(logx.String("component", "player")),
		errLimiter: rate.NewLimiter(rate.Every(30*time.Second), 3),
	}
	for _, o := range opts {
		o(c)
	}
	if c.backends == nil {
		c.backends = AvailableBackends()
	}
	if c.run == nil {
		c.run = c.runChain
	}
	return c
}

// Play starts the given file asynchronously and returns immediately.
// Anything already playing is stopped first (bounded wait). A missing file
// or missing player is logged, never returned: the bell is treated as
// "didn't ring" and the caller keeps going.
func (c *Controller) Play(path, displayName string) {
	if _, err := os.Stat(path); err != nil {
		c.log.Error("audio file not found", logx.String("path", path))
		return
	}
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopCurrentLocked()

	p := &playback{
		name: displayName,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	c.current = p

	go func() {
		defer close(p.done)
		c.log.Info("playing", logx.String("name", p.name), logx.String("path", path))
		if err := c.run(p.stop, path); err != nil {
			if c.errLimiter.Allow() {
				c.log.Error("playback failed", logx.String("name", p.name), logx.Err(err))
			} else {
				c.log.Debug("playback failed (log throttled)", logx.String("name", p.name), logx.Err(err))
			}
			return
		}
		c.log.Info("playback finished", logx.String("name", p.name))
	}()
}

// Stop cancels the current playback and waits (bounded) for it to exit.
// Idempotent: stopping an idle controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.stopCurrentLocked()
	c.log.Info("playback stopped")
}

// Status is a non-blocking read of the playback slot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.finished() {
		return Status{}
	}
	return Status{IsPlaying: true, CurrentName: c.current.name}
}

// stopCurrentLocked detaches the current playback, requesting cancellation
// and waiting at most the grace period. Callers must hold mu.
func (c *Controller) stopCurrentLocked() {
	cur := c.current
	if cur == nil {
		return
	}
	c.current = nil
	if cur.finished() {
		return
	}
	c.log.Info("stopping previous playback", logx.String("name", cur.name))
	cur.requestStop()
	select {
	case <-cur.done:
	case <-time.After(c.grace):
		// Give up the wait but proceed; the goroutine will still clean up.
		c.log.Warn("playback did not stop within grace period", logx.String("name", cur.name))
	}
}

// runChain tries each installed backend in priority order until one plays
// the file to completion (or the stop flag is raised).
func (c *Controller) runChain(stop <-chan struct{}, path string) error {
	var lastErr error
	tried := 0
	for _, b := range c.backends {
		if !b.CanPlay(path) {
			continue
		}
		tried++
		err := c.runBackend(b, stop, path)
		if err == nil || errors.Is(err, errStopped) {
			return nil
		}
		lastErr = err
		c.log.Debug("backend failed, trying next", logx.String("backend", b.Name()), logx.Err(err))
	}
	if tried == 0 {
		return fmt.Errorf("no audio player available for %q (install mpg123, ffplay, or vlc)", filepath.Base(path))
	}
	return lastErr
}

func (c *Controller) runBackend(b Backend, stop <-chan struct{}, path string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := b.Command(ctx, path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", b.Name(), err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
		return nil
	case <-stop:
		// Ask nicely first; the context kill is the backstop.
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-waitCh:
		case <-time.After(5 * time.Second):
			cancel()
			<-waitCh
		}
		return errStopped
	}
}
