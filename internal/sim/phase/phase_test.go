package phase

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/tuning"
)

type harness struct {
	clock  *clock.Clock
	bus    *bus.Bus
	timers *clock.Timers
	m      *Machine
	events []string
	faults []error
}

func newHarness(t *testing.T, maxCycles int) *harness {
	t.Helper()
	tun := tuning.Defaults()
	tun.MaxCycles = maxCycles
	h := &harness{clock: clock.New()}
	h.bus = bus.New(zerolog.Nop(), h.clock.Now)
	h.timers = clock.NewTimers(h.clock, h.bus, zerolog.Nop())
	h.m = New(h.bus, h.timers, tun, zerolog.Nop())
	h.m.OnFault = func(err error) { h.faults = append(h.faults, err) }
	h.bus.Subscribe(bus.All, func(ev bus.Event) {
		switch ev.Name {
		case bus.PhaseStarted:
			h.events = append(h.events, "start:"+ev.Data["phase"].(string))
		case bus.PhaseEnded:
			h.events = append(h.events, "end:"+ev.Data["phase"].(string))
		case bus.CycleStarted, bus.GameEnded, bus.SystemError:
			h.events = append(h.events, ev.Name)
		}
	})
	return h
}

func TestStart_EntersFirstPhaseOfCycleOne(t *testing.T) {
	h := newHarness(t, 3)
	if err := h.m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.m.Cycle() != 1 || h.m.Phase() != TerritorySelection {
		t.Fatalf("got cycle %d phase %s", h.m.Cycle(), h.m.Phase())
	}
	want := []string{bus.CycleStarted, "start:" + TerritorySelection}
	if !reflect.DeepEqual(h.events, want) {
		t.Fatalf("events: got %v want %v", h.events, want)
	}
}

func TestAdvance_FullCycleIncrementsOnce(t *testing.T) {
	h := newHarness(t, 3)
	_ = h.m.Start()
	for i := 0; i < len(Sequence); i++ {
		if err := h.m.Advance(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if h.m.Cycle() != 2 || h.m.Phase() != TerritorySelection {
		t.Fatalf("got cycle %d phase %s", h.m.Cycle(), h.m.Phase())
	}
	cycles := 0
	for _, e := range h.events {
		if e == bus.CycleStarted {
			cycles++
		}
	}
	if cycles != 2 {
		t.Fatalf("cycle.started published %d times", cycles)
	}
	for _, st := range h.timers.States() {
		if st.Group != Group(TerritorySelection) {
			t.Fatalf("orphaned timer %s in group %s", st.Name, st.Group)
		}
	}
}

func TestAdvance_EndsAfterFinalCycle(t *testing.T) {
	h := newHarness(t, 1)
	_ = h.m.Start()
	for i := 0; i < len(Sequence); i++ {
		_ = h.m.Advance()
	}
	if !h.m.Ended() {
		t.Fatalf("phase: got %s", h.m.Phase())
	}
	if h.events[len(h.events)-1] != bus.GameEnded {
		t.Fatalf("last event: %v", h.events)
	}
	err := h.m.Advance()
	if fault.CodeOf(err) != protocol.ErrGameEnded {
		t.Fatalf("advance after end: %v", err)
	}
	if h.timers.Len() != 0 {
		t.Fatalf("timers left: %d", h.timers.Len())
	}
}

func TestHandlers_RunOnEntryAndExit(t *testing.T) {
	h := newHarness(t, 3)
	var calls []string
	h.m.Register(Outfitting, Handler{
		Enter: func(cycle int) error { calls = append(calls, "enter"); return nil },
		Exit:  func(cycle int) error { calls = append(calls, "exit"); return nil },
	})
	_ = h.m.Start()
	_ = h.m.Advance()
	_ = h.m.Advance()
	if !reflect.DeepEqual(calls, []string{"enter", "exit"}) {
		t.Fatalf("calls: %v", calls)
	}
}

func TestHandler_AdvanceFromEnterIsQueued(t *testing.T) {
	h := newHarness(t, 3)
	h.m.Register(Production, Handler{Enter: func(int) error { return h.m.Advance() }})
	_ = h.m.Start()
	_ = h.m.ForceAdvanceTo(Production)
	if h.m.Phase() != ResourceAuction {
		t.Fatalf("phase: got %s", h.m.Phase())
	}
	want := []string{
		bus.CycleStarted, "start:" + TerritorySelection,
		"end:" + TerritorySelection, "start:" + Production,
		"end:" + Production, "start:" + ResourceAuction,
	}
	if !reflect.DeepEqual(h.events, want) {
		t.Fatalf("events: got %v want %v", h.events, want)
	}
}

func TestHandler_PanicIsContained(t *testing.T) {
	h := newHarness(t, 3)
	h.m.Register(Outfitting, Handler{Enter: func(int) error { panic("kaboom") }})
	_ = h.m.Start()
	if err := h.m.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if h.m.Phase() != Outfitting {
		t.Fatalf("phase: got %s", h.m.Phase())
	}
	if len(h.faults) != 1 || !strings.Contains(h.faults[0].Error(), "kaboom") {
		t.Fatalf("faults: %v", h.faults)
	}
	found := false
	for _, e := range h.events {
		if e == bus.SystemError {
			found = true
		}
	}
	if !found {
		t.Fatalf("system.error not published: %v", h.events)
	}
}

func TestHandler_ErrorReported(t *testing.T) {
	h := newHarness(t, 3)
	boom := errors.New("exit failed")
	h.m.Register(TerritorySelection, Handler{Exit: func(int) error { return boom }})
	_ = h.m.Start()
	_ = h.m.Advance()
	if len(h.faults) != 1 || !errors.Is(h.faults[0], boom) {
		t.Fatalf("faults: %v", h.faults)
	}
	if h.m.Phase() != Outfitting {
		t.Fatalf("phase: got %s", h.m.Phase())
	}
}

func TestForceAdvanceTo(t *testing.T) {
	h := newHarness(t, 3)
	_ = h.m.Start()

	err := h.m.ForceAdvanceTo("harvest")
	if fault.KindOf(err) != fault.Validation {
		t.Fatalf("unknown phase: %v", err)
	}
	if err := h.m.ForceAdvanceTo(TerritorySelection); err != nil {
		t.Fatalf("same phase: %v", err)
	}
	if len(h.events) != 2 {
		t.Fatalf("same-phase jump emitted events: %v", h.events)
	}
	if err := h.m.ForceAdvanceTo(ResourceAuction); err != nil {
		t.Fatalf("force: %v", err)
	}
	if h.m.Phase() != ResourceAuction || h.m.Cycle() != 1 {
		t.Fatalf("got cycle %d phase %s", h.m.Cycle(), h.m.Phase())
	}
	if err := h.m.ForceAdvanceTo(Ended); err != nil {
		t.Fatalf("force end: %v", err)
	}
	if !h.m.Ended() {
		t.Fatalf("phase: got %s", h.m.Phase())
	}
}

func TestPhaseTimer_AutoAdvances(t *testing.T) {
	h := newHarness(t, 3)
	_ = h.m.Start()
	h.clock.Advance(179 * time.Second)
	if h.m.Phase() != TerritorySelection {
		t.Fatalf("advanced early: %s", h.m.Phase())
	}
	h.clock.Advance(time.Second)
	if h.m.Phase() != Outfitting {
		t.Fatalf("phase: got %s", h.m.Phase())
	}
	if rem, ok := h.m.PhaseRemaining(); !ok || rem != 240*time.Second {
		t.Fatalf("remaining: %v %v", rem, ok)
	}
}

func TestPhaseTimer_WarningsFromTuning(t *testing.T) {
	tun := tuning.Defaults()
	tun.Turns.WarningSeconds = []int{60}
	c := clock.New()
	b := bus.New(zerolog.Nop(), c.Now)
	timers := clock.NewTimers(c, b, zerolog.Nop())
	m := New(b, timers, tun, zerolog.Nop())
	var got []int
	b.Subscribe(bus.TimerWarning, func(ev bus.Event) {
		if ev.Data["kind"] == "phase" {
			got = append(got, ev.Data["remaining_s"].(int))
		}
	})
	_ = m.Start()
	c.Advance(179 * time.Second)
	if !reflect.DeepEqual(got, []int{60}) {
		t.Fatalf("phase warnings: got %v want [60]", got)
	}
}

func TestPhaseTimer_NotArmedWithoutAutoAdvance(t *testing.T) {
	h := newHarness(t, 3)
	_ = h.m.Start()
	_ = h.m.ForceAdvanceTo(ResourceAuction)
	if _, ok := h.m.PhaseRemaining(); ok {
		t.Fatalf("auction phase should have no phase timer")
	}
}

func TestPhaseTimer_PauseHoldsPhase(t *testing.T) {
	h := newHarness(t, 3)
	_ = h.m.Start()
	h.clock.Advance(100 * time.Second)
	h.timers.Pause()
	h.clock.Advance(time.Hour)
	if h.m.Phase() != TerritorySelection {
		t.Fatalf("advanced while paused: %s", h.m.Phase())
	}
	h.timers.Resume()
	h.clock.Advance(80 * time.Second)
	if h.m.Phase() != Outfitting {
		t.Fatalf("phase: got %s", h.m.Phase())
	}
}

func TestStateRestore(t *testing.T) {
	h := newHarness(t, 5)
	_ = h.m.Start()
	_ = h.m.Advance()
	h.clock.Advance(40 * time.Second)
	st := h.m.State()
	if st.PhaseRemaining != 200*time.Second {
		t.Fatalf("remaining: %v", st.PhaseRemaining)
	}

	h2 := newHarness(t, 5)
	if err := h2.m.Restore(st); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if h2.m.Cycle() != 1 || h2.m.Phase() != Outfitting || !h2.m.Started() {
		t.Fatalf("restored: cycle %d phase %s", h2.m.Cycle(), h2.m.Phase())
	}
	if len(h2.events) != 0 {
		t.Fatalf("restore ran handlers: %v", h2.events)
	}
	h2.clock.Advance(200 * time.Second)
	if h2.m.Phase() != Production {
		t.Fatalf("phase: got %s", h2.m.Phase())
	}

	if err := h2.m.Restore(State{Cycle: 1, Phase: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown phase")
	}
}
