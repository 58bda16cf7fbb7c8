package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cobrell/internal/bell"
	logx "cobrell/pkg/logx"
)

type stubResolver struct {
	mu  sync.Mutex
	due func(now time.Time) []*bell.Schedule
	err error
}

func (r *stubResolver) DueNow(_ context.Context, now time.Time) ([]*bell.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.due == nil {
		return nil, nil
	}
	return r.due(now), nil
}

type recordingPlayer struct {
	mu    sync.Mutex
	plays []string
	stops int
}

func (p *recordingPlayer) Play(_, name string) {
	p.mu.Lock()
	p.plays = append(p.plays, name)
	p.mu.Unlock()
}

func (p *recordingPlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *recordingPlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

var clip = &bell.AudioClip{ID: 1, Name: "Lonceng", Path: "/media/lonceng.mp3"}

// 2026-01-05 is a Monday.
func monday(clock string, fraction time.Duration) time.Time {
	c, err := bell.ParseClock(clock)
	if err != nil {
		panic(err)
	}
	return time.Date(2026, 1, 5, c.Hour, c.Minute, c.Second, 0, time.Local).Add(fraction)
}

func TestExactlyOncePerMatchingMinute(t *testing.T) {
	t.Parallel()
	sched := &bell.Schedule{ID: 1, Name: "Masuk Pagi", Day: bell.Senin, Time: bell.Clock{Hour: 8}, Clip: clip, Active: true}
	res := &stubResolver{due: func(now time.Time) []*bell.Schedule {
		if now.Hour() == 8 && now.Minute() == 0 {
			return []*bell.Schedule{sched}
		}
		return nil
	}}
	p := &recordingPlayer{}
	e := New(res, p, logx.Nop())

	// Simulate 08:00:00.0 through 08:00:59.5 at a 500ms tick.
	ctx := context.Background()
	for off := time.Duration(0); off < time.Minute; off += 500 * time.Millisecond {
		e.step(ctx, monday("08:00:00", off))
	}

	if got := p.playCount(); got != 1 {
		t.Fatalf("ring fired %d times over the minute, want exactly 1", got)
	}
}

func TestMinuteBoundaryResetsFiredSet(t *testing.T) {
	t.Parallel()
	first := &bell.Schedule{ID: 1, Name: "Masuk", Day: bell.Senin, Time: bell.Clock{Hour: 8}, Clip: clip, Active: true}
	second := &bell.Schedule{ID: 2, Name: "Istirahat", Day: bell.Senin, Time: bell.Clock{Hour: 8, Minute: 1}, Clip: clip, Active: true}
	res := &stubResolver{due: func(now time.Time) []*bell.Schedule {
		switch now.Minute() {
		case 0:
			return []*bell.Schedule{first}
		case 1:
			return []*bell.Schedule{second}
		}
		return nil
	}}
	p := &recordingPlayer{}
	e := New(res, p, logx.Nop())

	ctx := context.Background()
	for off := time.Duration(0); off < 2*time.Minute; off += 500 * time.Millisecond {
		e.step(ctx, monday("08:00:00", off))
	}

	if got := p.playCount(); got != 2 {
		t.Fatalf("got %d rings across two minutes, want 2 (one each)", got)
	}
}

func TestSameScheduleRefiresInLaterMinute(t *testing.T) {
	t.Parallel()
	sched := &bell.Schedule{ID: 1, Name: "Masuk", Day: bell.Senin, Time: bell.Clock{Hour: 8}, Clip: clip, Active: true}
	res := &stubResolver{due: func(now time.Time) []*bell.Schedule {
		// Resolver keeps returning the schedule for two different minutes;
		// the engine's fired set must reset at the boundary.
		return []*bell.Schedule{sched}
	}}
	p := &recordingPlayer{}
	e := New(res, p, logx.Nop())

	ctx := context.Background()
	e.step(ctx, monday("08:00:00", 0))
	e.step(ctx, monday("08:00:30", 0))
	e.step(ctx, monday("08:01:00", 0))

	if got := p.playCount(); got != 2 {
		t.Fatalf("got %d rings, want 2 (once per minute)", got)
	}
}

func TestResolverErrorDoesNotKillLoop(t *testing.T) {
	t.Parallel()
	sched := &bell.Schedule{ID: 1, Name: "Masuk", Day: bell.Senin, Time: bell.Clock{Hour: 8}, Clip: clip, Active: true}
	res := &stubResolver{err: errors.New("database is locked")}
	p := &recordingPlayer{}
	e := New(res, p, logx.Nop())

	ctx := context.Background()
	e.step(ctx, monday("08:00:00", 0))

	// Error clears; the same minute can still ring on a later tick.
	res.mu.Lock()
	res.err = nil
	res.due = func(time.Time) []*bell.Schedule { return []*bell.Schedule{sched} }
	res.mu.Unlock()

	e.step(ctx, monday("08:00:01", 0))
	if got := p.playCount(); got != 1 {
		t.Fatalf("got %d rings after transient error, want 1", got)
	}
}

func TestStepContainsPanics(t *testing.T) {
	t.Parallel()
	res := &stubResolver{due: func(time.Time) []*bell.Schedule {
		panic("malformed schedule")
	}}
	p := &recordingPlayer{}
	e := New(res, p, logx.Nop())

	// Must not propagate.
	e.step(context.Background(), monday("08:00:00", 0))
}

func TestSilentBellDoesNotTouchPlayer(t *testing.T) {
	t.Parallel()
	sched := &bell.Schedule{ID: 1, Name: "Senyap", Day: bell.Senin, Time: bell.Clock{Hour: 8}, Active: true}
	res := &stubResolver{due: func(time.Time) []*bell.Schedule { return []*bell.Schedule{sched} }}
	p := &recordingPlayer{}
	e := New(res, p, logx.Nop())

	e.step(context.Background(), monday("08:00:00", 0))
	if got := p.playCount(); got != 0 {
		t.Fatalf("silent bell dispatched %d plays, want 0", got)
	}
}

func TestRunAndStopLifecycle(t *testing.T) {
	t.Parallel()
	res := &stubResolver{}
	p := &recordingPlayer{}
	e := New(res, p, logx.Nop(), WithTick(10*time.Millisecond))

	if e.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", e.State())
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for e.State() != StateRunning {
		select {
		case <-deadline:
			t.Fatal("engine never reached running state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	e.Stop()
	e.Stop() // idempotent

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if e.State() != StateStopped {
		t.Fatalf("final state = %s, want stopped", e.State())
	}
	p.mu.Lock()
	stops := p.stops
	p.mu.Unlock()
	if stops == 0 {
		t.Fatal("Stop must cancel in-flight playback")
	}
}
