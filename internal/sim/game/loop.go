package game

import (
	"context"
	"errors"
	"time"
)

var ErrLoopStopped = errors.New("game loop stopped")

type call struct {
	fn   func(*Game)
	done chan struct{}
}

// Loop owns a Game on a single goroutine. The virtual clock follows wall time
// in whole ticks; every other access goes through Call.
type Loop struct {
	g     *Game
	tick  time.Duration
	calls chan call
	stop  chan struct{}
	done  chan struct{}
}

func NewLoop(g *Game, tick time.Duration) *Loop {
	if tick <= 0 {
		tick = time.Second
	}
	return &Loop{
		g:     g,
		tick:  tick,
		calls: make(chan call, 64),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case c := <-l.calls:
			c.fn(l.g)
			close(c.done)
		case now := <-ticker.C:
			elapsed := now.Sub(last).Truncate(time.Second)
			if elapsed <= 0 {
				continue
			}
			last = last.Add(elapsed)
			if !l.g.Paused() && !l.g.Ended() {
				l.g.Advance(elapsed)
			}
		}
	}
}

func (l *Loop) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// Call runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func(*Game)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case l.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}
