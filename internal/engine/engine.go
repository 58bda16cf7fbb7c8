// Package engine runs the bell trigger loop: poll the clock at sub-second
// resolution, ask the resolver what is due, and ring each due schedule
// exactly once per matching minute.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"cobrell/internal/bell"
	logx "cobrell/pkg/logx"
)

// State is the engine lifecycle: Idle → Running → Stopping → Stopped.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Resolver answers which schedules are due at a given instant.
type Resolver interface {
	DueNow(ctx context.Context, now time.Time) ([]*bell.Schedule, error)
}

// Player receives ring dispatches. Play must not block.
type Player interface {
	Play(path, displayName string)
	Stop()
}

const defaultTick = 500 * time.Millisecond

type Engine struct {
	resolver Resolver
	player   Player
	log      logx.Logger

	tick time.Duration
	now  func() time.Time

	state  atomic.Int32
	cancel context.CancelFunc
	mu     sync.Mutex // guards cancel

	// Exactly-once bookkeeping: cleared whenever the minute key changes.
	lastMinute string
	fired      map[int64]struct{}
}

type Option func(*Engine)

// WithTick overrides the poll interval. Must stay well under a minute so the
// minute-key bookkeeping keeps its exactly-once guarantee.
func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(resolver Resolver, player Player, log logx.Logger, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		player:   player,
		log:      log.With(logx.String("component", "engine")),
		tick:     defaultTick,
		now:      time.Now,
		fired:    map[int64]struct{}{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) State() State { return State(e.state.Load()) }

// Run executes the poll loop until ctx is cancelled or Stop is called.
// It blocks; host it under a supervisor goroutine.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("engine already started (state %s)", e.State())
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.log.Info("bell scheduler started", logx.Duration("tick", e.tick))

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	defer func() {
		e.state.Store(int32(StateStopped))
		e.player.Stop()
		e.log.Info("bell scheduler stopped")
	}()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.C:
			e.step(runCtx, e.now())
		}
	}
}

// Stop requests termination and cancels any in-flight playback.
// Idempotent; safe to call from signal handlers or the admin interface.
func (e *Engine) Stop() {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// step is one loop iteration. Every failure inside it is contained here:
// a malformed schedule, a resolver error, or a panic is logged and the loop
// proceeds to the next tick. Nothing in a single iteration may kill the loop.
func (e *Engine) step(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in scheduler tick",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	minuteKey := now.Format("15:04")
	if minuteKey != e.lastMinute {
		e.fired = map[int64]struct{}{}
		e.lastMinute = minuteKey
	}

	due, err := e.resolver.DueNow(ctx, now)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.log.Error("due-schedule query failed", logx.Err(err), logx.Time("now", now))
		}
		return
	}

	for _, s := range due {
		if _, already := e.fired[s.ID]; already {
			continue
		}
		e.fired[s.ID] = struct{}{}
		e.ring(s, now)
	}
}

// ring dispatches one due schedule. A schedule without a clip is a silent
// bell: logged, not an error.
func (e *Engine) ring(s *bell.Schedule, now time.Time) {
	e.log.Info("BEL!",
		logx.String("name", s.Name),
		logx.String("day", s.Day.Label()),
		logx.String("time", s.Time.HHMM()),
		logx.Time("at", now),
	)

	if s.Clip == nil || s.Clip.Path == "" {
		e.log.Warn("schedule has no clip; silent ring", logx.String("name", s.Name))
		return
	}
	e.player.Play(s.Clip.Path, fmt.Sprintf("%s — %s", s.Name, s.Clip.Name))
}
