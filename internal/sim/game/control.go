package game

import (
	"fmt"
	"time"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/fault"
)

// AdvancePhase ends the current phase regardless of turns or timers.
func (g *Game) AdvancePhase() error {
	g.bus.Hold()
	defer g.bus.Release()
	return g.phases.Advance()
}

// ForceAdvanceToPhase jumps to name inside the current cycle.
func (g *Game) ForceAdvanceToPhase(name string) error {
	g.bus.Hold()
	defer g.bus.Release()
	return g.phases.ForceAdvanceTo(name)
}

// PauseGame freezes every timer. Pausing a paused game is a no-op.
func (g *Game) PauseGame() {
	g.bus.Hold()
	defer g.bus.Release()
	g.pause("request")
}

func (g *Game) pause(reason string) {
	if g.paused {
		return
	}
	g.paused = true
	g.timers.Pause()
	g.log.Info().Str("reason", reason).Msg("game paused")
	g.bus.Publish(bus.GamePaused, map[string]any{"reason": reason})
}

// ResumeGame re-arms every timer with its remaining time. A faulted game
// stays paused until Recover.
func (g *Game) ResumeGame() error {
	g.bus.Hold()
	defer g.bus.Release()
	if g.fault != nil {
		return fault.Actionf(protocol.ErrConflict, "game is faulted: %v", g.fault)
	}
	g.resume()
	return nil
}

func (g *Game) resume() {
	if !g.paused {
		return
	}
	g.paused = false
	g.timers.Resume()
	g.log.Info().Msg("game resumed")
	g.bus.Publish(bus.GameResumed, nil)
}

// Recover clears a recorded fault and resumes play. It returns the cleared
// fault, or nil when there was none.
func (g *Game) Recover() error {
	g.bus.Hold()
	defer g.bus.Release()
	prev := g.fault
	if prev == nil {
		return nil
	}
	g.fault = nil
	g.log.Warn().Err(prev).Msg("fault cleared")
	g.resume()
	return prev
}

// Advance moves the virtual clock forward by d, firing every timer that
// comes due. Callback panics are contained and recorded as faults.
func (g *Game) Advance(d time.Duration) {
	g.bus.Hold()
	defer g.bus.Release()
	defer func() {
		if r := recover(); r != nil {
			g.raise(fmt.Errorf("clock callback panicked: %v", r))
		}
	}()
	g.clock.Advance(d)
}
