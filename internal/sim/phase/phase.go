// Package phase is the cycle/phase state machine. It owns the cycle counter
// and the current phase, runs per-phase entry and exit handlers, and arms the
// auto-advance timer of each phase.
package phase

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/tuning"
)

const (
	TerritorySelection = "territory_selection"
	Outfitting         = "outfitting"
	Production         = "production"
	ResourceAuction    = "resource_auction"
	EndOfCycle         = "end_of_cycle"
	Ended              = "ended"
)

// Sequence is the fixed phase order of a cycle.
var Sequence = []string{TerritorySelection, Outfitting, Production, ResourceAuction, EndOfCycle}

func Index(name string) int {
	for i, p := range Sequence {
		if p == name {
			return i
		}
	}
	return -1
}

func IsValid(name string) bool { return name == Ended || Index(name) >= 0 }

// Group is the timer group every timer armed during a phase belongs to.
func Group(name string) string { return "phase:" + name }

const phaseTimer = "phase"

// Handler runs on phase entry and exit. Either func may be nil.
type Handler struct {
	Enter func(cycle int) error
	Exit  func(cycle int) error
}

type request struct {
	force  bool
	target string
}

type Machine struct {
	bus       *bus.Bus
	timers    *clock.Timers
	configs   map[string]tuning.PhaseConfig
	maxCycles int
	warnings  []time.Duration
	log       zerolog.Logger

	handlers map[string]Handler

	cycle   int
	phase   string
	started bool

	transitioning bool
	pending       []request

	// OnFault is told about every handler error or panic.
	OnFault func(err error)
	// OnEnd runs before game.ended is published; its result is merged into
	// the event payload.
	OnEnd func(cycle int) map[string]any
}

func New(b *bus.Bus, timers *clock.Timers, t tuning.Tuning, logger zerolog.Logger) *Machine {
	return &Machine{
		bus:       b,
		timers:    timers,
		configs:   t.Phases,
		maxCycles: t.MaxCycles,
		warnings:  t.Turns.Warnings(),
		log:       logger.With().Str("component", "phase").Logger(),
		handlers:  map[string]Handler{},
	}
}

func (m *Machine) Register(phase string, h Handler) { m.handlers[phase] = h }

func (m *Machine) Cycle() int          { return m.cycle }
func (m *Machine) Phase() string       { return m.phase }
func (m *Machine) MaxCycles() int      { return m.maxCycles }
func (m *Machine) Ended() bool         { return m.phase == Ended }
func (m *Machine) Started() bool       { return m.started }
func (m *Machine) Transitioning() bool { return m.transitioning }

func (m *Machine) Config(phase string) tuning.PhaseConfig { return m.configs[phase] }

// Start enters territory selection of cycle 1.
func (m *Machine) Start() error {
	if m.started {
		return nil
	}
	m.started = true
	m.cycle = 1
	m.bus.Publish(bus.CycleStarted, map[string]any{"cycle": m.cycle, "max_cycles": m.maxCycles})
	m.enter(TerritorySelection)
	m.drainPending()
	return nil
}

// Advance moves to the next phase, rolling into the next cycle after the
// last phase, or to ended once the final cycle completes. A request made
// while a transition is running is queued behind it.
func (m *Machine) Advance() error {
	if !m.started {
		return fault.Actionf(protocol.ErrConflict, "game not started")
	}
	if m.phase == Ended && !m.transitioning {
		return fault.Actionf(protocol.ErrGameEnded, "game has ended")
	}
	return m.submit(request{})
}

// ForceAdvanceTo jumps straight to name without ordering checks. Jumping to
// the current phase is a no-op.
func (m *Machine) ForceAdvanceTo(name string) error {
	if !IsValid(name) {
		return fault.Validationf(protocol.ErrBadRequest, "unknown phase %q", name)
	}
	if !m.started {
		return fault.Actionf(protocol.ErrConflict, "game not started")
	}
	if name == m.phase && !m.transitioning {
		return nil
	}
	return m.submit(request{force: true, target: name})
}

func (m *Machine) submit(r request) error {
	m.pending = append(m.pending, r)
	if m.transitioning {
		return nil
	}
	m.drainPending()
	return nil
}

func (m *Machine) drainPending() {
	if m.transitioning {
		return
	}
	for len(m.pending) > 0 {
		r := m.pending[0]
		m.pending = m.pending[1:]
		m.apply(r)
	}
}

func (m *Machine) apply(r request) {
	if m.phase == Ended {
		return
	}
	if r.force {
		if r.target == m.phase {
			return
		}
		m.exit()
		if r.target == Ended {
			m.end()
			return
		}
		m.enter(r.target)
		return
	}

	next := Index(m.phase) + 1
	m.exit()
	if next < len(Sequence) {
		m.enter(Sequence[next])
		return
	}
	if m.cycle >= m.maxCycles {
		m.end()
		return
	}
	m.cycle++
	m.bus.Publish(bus.CycleStarted, map[string]any{"cycle": m.cycle, "max_cycles": m.maxCycles})
	m.enter(TerritorySelection)
}

func (m *Machine) exit() {
	if m.phase == "" {
		return
	}
	m.transitioning = true
	defer func() { m.transitioning = false }()

	prev := m.phase
	if h := m.handlers[prev]; h.Exit != nil {
		m.guard(prev, "exit", h.Exit)
	}
	n := m.timers.CancelGroup(Group(prev))
	m.log.Debug().Str("phase", prev).Int("cycle", m.cycle).Int("timers_cancelled", n).Msg("phase exit")
	m.bus.Publish(bus.PhaseEnded, map[string]any{"phase": prev, "cycle": m.cycle})
}

func (m *Machine) enter(name string) {
	m.transitioning = true
	defer func() { m.transitioning = false }()

	m.phase = name
	cfg := m.configs[name]
	m.bus.Publish(bus.PhaseStarted, map[string]any{
		"phase":          name,
		"cycle":          m.cycle,
		"time_limit_s":   cfg.TimeLimitSeconds,
		"auto_advance":   cfg.AutoAdvance,
		"player_actions": cfg.AllowsPlayerActions,
	})
	if cfg.AutoAdvance && cfg.TimeLimitSeconds > 0 {
		m.armPhaseTimer(name, time.Duration(cfg.TimeLimitSeconds)*time.Second, time.Duration(cfg.TimeLimitSeconds)*time.Second)
	}
	if h := m.handlers[name]; h.Enter != nil {
		m.guard(name, "enter", h.Enter)
	}
	m.log.Info().Str("phase", name).Int("cycle", m.cycle).Msg("phase started")
}

func (m *Machine) end() {
	m.phase = Ended
	data := map[string]any{"cycle": m.cycle}
	if m.OnEnd != nil {
		for k, v := range m.OnEnd(m.cycle) {
			data[k] = v
		}
	}
	m.bus.Publish(bus.GameEnded, data)
	m.log.Info().Int("cycle", m.cycle).Msg("game ended")
}

func (m *Machine) armPhaseTimer(name string, limit, remaining time.Duration) {
	spec := clock.Spec{
		Name:     phaseTimer,
		Group:    Group(name),
		Kind:     "phase",
		Subject:  name,
		Duration: limit,
		Warnings: m.warnings,
		OnExpire: func() {
			if m.phase != name {
				return
			}
			m.log.Info().Str("phase", name).Msg("phase timer expired")
			_ = m.Advance()
		},
	}
	if remaining < limit {
		m.timers.Restore(spec, remaining)
		return
	}
	m.timers.Start(spec)
}

// guard runs a handler, converting errors and panics into reported faults.
// The phase pointer is already updated, so a failing handler never leaves
// the machine between phases.
func (m *Machine) guard(phase, stage string, fn func(cycle int) error) {
	defer func() {
		if r := recover(); r != nil {
			m.report(phase, stage, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(m.cycle); err != nil {
		m.report(phase, stage, err)
	}
}

func (m *Machine) report(phase, stage string, err error) {
	m.log.Error().Err(err).Str("phase", phase).Str("stage", stage).Msg("phase handler failed")
	m.bus.Publish(bus.SystemError, map[string]any{
		"source": "phase." + stage,
		"phase":  phase,
		"error":  err.Error(),
	})
	if m.OnFault != nil {
		m.OnFault(fmt.Errorf("phase %s %s: %w", phase, stage, err))
	}
}

// PhaseRemaining is the time left on the auto-advance timer, if armed.
func (m *Machine) PhaseRemaining() (time.Duration, bool) {
	return m.timers.Remaining(phaseTimer)
}

// State is the serialisable machine position.
type State struct {
	Cycle          int           `json:"cycle"`
	Phase          string        `json:"phase"`
	Started        bool          `json:"started"`
	PhaseRemaining time.Duration `json:"phase_remaining"`
}

func (m *Machine) State() State {
	rem, _ := m.PhaseRemaining()
	return State{Cycle: m.cycle, Phase: m.phase, Started: m.started, PhaseRemaining: rem}
}

// CheckState reports whether st names a position the machine can resume.
func CheckState(st State) error {
	if st.Phase != "" && !IsValid(st.Phase) {
		return fault.Validationf(protocol.ErrBadRequest, "unknown phase %q", st.Phase)
	}
	if st.Cycle < 0 || st.PhaseRemaining < 0 {
		return fault.Validationf(protocol.ErrBadRequest, "bad phase position cycle=%d remaining=%v", st.Cycle, st.PhaseRemaining)
	}
	return nil
}

// Restore places the machine at a saved position without running handlers.
func (m *Machine) Restore(st State) error {
	if err := CheckState(st); err != nil {
		return err
	}
	m.timers.Cancel(phaseTimer)
	m.cycle = st.Cycle
	m.phase = st.Phase
	m.started = st.Started
	m.pending = nil
	m.transitioning = false
	cfg := m.configs[st.Phase]
	if st.Phase != Ended && cfg.AutoAdvance && cfg.TimeLimitSeconds > 0 && st.PhaseRemaining > 0 {
		m.armPhaseTimer(st.Phase, time.Duration(cfg.TimeLimitSeconds)*time.Second, st.PhaseRemaining)
	}
	return nil
}
