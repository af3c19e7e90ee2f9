package turns

import (
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

type harness struct {
	clock     *clock.Clock
	bus       *bus.Bus
	timers    *clock.Timers
	bank      *clock.Bank
	reg       *registry.Registry
	seq       *Sequencer
	rules     map[string]Rule
	completed []string
}

func newHarness(t *testing.T, gold map[string]int, ids ...string) *harness {
	t.Helper()
	tun := tuning.Defaults()
	h := &harness{clock: clock.New(), reg: registry.New(tun.Wealth)}
	h.bus = bus.New(zerolog.Nop(), h.clock.Now)
	h.timers = clock.NewTimers(h.clock, h.bus, zerolog.Nop())
	h.bank = clock.NewBank(time.Duration(tun.Turns.TimeBankSeconds) * time.Second)
	for _, id := range ids {
		if _, err := h.reg.AddPlayer(id, id, gold[id]); err != nil {
			t.Fatalf("add player: %v", err)
		}
	}
	h.seq = NewSequencer(h.reg, h.bus, h.timers, h.bank, tun.Turns, zerolog.Nop())
	h.seq.OnComplete = func(phase string) { h.completed = append(h.completed, phase) }
	h.rules = DefaultRules(tun.Turns)
	return h
}

func (h *harness) begin(phase string) { h.seq.Begin(phase, "phase:"+phase, h.rules[phase]) }

func TestOrder_PoorestFirst(t *testing.T) {
	h := newHarness(t, map[string]int{"Alice": 1200, "Bob": 800, "Charlie": 1000, "Diana": 600}, "Alice", "Bob", "Charlie", "Diana")
	h.begin("territory_selection")
	want := []string{"Diana", "Bob", "Charlie", "Alice"}
	if got := h.seq.Order(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order: got %v want %v", got, want)
	}
	if h.seq.Current() != "Diana" {
		t.Fatalf("first holder: got %s", h.seq.Current())
	}
}

func TestOrder_NonDecreasingWealthWithSeatTieBreak(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 500, "b": 300, "c": 500, "d": 300}, "a", "b", "c", "d")
	got := Order(h.reg, h.reg.IDs())
	want := []string{"b", "d", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order: got %v want %v", got, want)
	}
	for i := 1; i < len(got); i++ {
		if h.reg.Wealth(got[i-1]) > h.reg.Wealth(got[i]) {
			t.Fatalf("wealth decreased at %d", i)
		}
	}
}

func TestOrder_AgreesWithDisputeOrder(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 400, "b": 400, "c": 100}, "a", "b", "c")
	ids := []string{"b", "a"}
	if got, want := Order(h.reg, ids)[0], h.reg.Poorest(ids); got != want {
		t.Fatalf("first in turn order %s, dispute winner %s", got, want)
	}
	if got := Order(h.reg, h.reg.IDs()); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("order: %v", got)
	}
}

func TestCanAct_Gating(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 100, "b": 200}, "a", "b")
	h.begin("territory_selection")

	if err := h.seq.CanAct("b", protocol.ActionClaimTerritory); fault.From(err).Code != protocol.ErrNotYourTurn {
		t.Fatalf("out of turn: got %v", err)
	}
	if err := h.seq.CanAct("a", protocol.ActionSubmitPosition); fault.From(err).Code != protocol.ErrNoPermission {
		t.Fatalf("disallowed action: got %v", err)
	}
	if err := h.seq.CanAct("a", protocol.ActionClaimTerritory); err != nil {
		t.Fatalf("holder should act: %v", err)
	}
}

func TestConsume_BudgetEndsTurnAndWrapCompletes(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 100, "b": 200}, "a", "b")
	var started []string
	h.bus.Subscribe(bus.TurnStarted, func(ev bus.Event) { started = append(started, ev.Data["player"].(string)) })
	h.begin("territory_selection")

	// Budget of two claim actions per turn.
	h.seq.Consume("a")
	if h.seq.Current() != "a" {
		t.Fatalf("turn ended early")
	}
	h.seq.Consume("a")
	if h.seq.Current() != "b" {
		t.Fatalf("expected b to hold the turn, got %q", h.seq.Current())
	}
	if err := h.seq.EndTurn("b"); err != nil {
		t.Fatalf("end turn: %v", err)
	}
	if !reflect.DeepEqual(h.completed, []string{"territory_selection"}) {
		t.Fatalf("completion: %v", h.completed)
	}
	if h.seq.Active() {
		t.Fatalf("sequence still active")
	}
	if !reflect.DeepEqual(started, []string{"a", "b"}) {
		t.Fatalf("turn.started: %v", started)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("orphaned callbacks: %d", h.clock.Pending())
	}
}

func TestUnlimitedPhaseWaitsForEndTurn(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 100}, "a")
	h.begin("outfitting")
	for i := 0; i < 10; i++ {
		if err := h.seq.CanAct("a", protocol.ActionPurchaseConstruct); err != nil {
			t.Fatalf("action %d: %v", i, err)
		}
		h.seq.Consume("a")
	}
	if h.seq.Current() != "a" {
		t.Fatalf("unlimited turn ended without end_turn")
	}
	h.seq.EndTurn("a")
	if len(h.completed) != 1 {
		t.Fatalf("expected completion")
	}
}

func TestAutomatedPhaseRejectsActions(t *testing.T) {
	h := newHarness(t, nil, "a")
	h.begin("production")
	if err := h.seq.CanAct("a", protocol.ActionEndTurn); err == nil {
		t.Fatalf("expected rejection in automated phase")
	}
}

func TestSimultaneous_AllPlayersActUntilEachEnds(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 100, "b": 200}, "a", "b")
	h.begin("resource_auction")
	for _, id := range []string{"a", "b"} {
		if err := h.seq.CanAct(id, protocol.ActionSubmitPosition); err != nil {
			t.Fatalf("%s: %v", id, err)
		}
	}
	h.seq.EndTurn("b")
	if err := h.seq.CanAct("b", protocol.ActionSubmitPosition); err == nil {
		t.Fatalf("b acted after ending turn")
	}
	if len(h.completed) != 0 {
		t.Fatalf("completed too early")
	}
	h.seq.EndTurn("a")
	if len(h.completed) != 1 {
		t.Fatalf("expected completion once all ended")
	}
}

func TestTurnTimeout_EndsTurnAndDrawsBank(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 100, "b": 200}, "a", "b")
	var warnings int
	h.bus.Subscribe(bus.TimerWarning, func(bus.Event) { warnings++ })
	h.begin("outfitting")

	h.clock.Advance(60 * time.Second)
	if h.seq.Current() != "b" {
		t.Fatalf("timeout did not pass the turn, holder %q", h.seq.Current())
	}
	if got := h.bank.Balance("a"); got != 120*time.Second {
		t.Fatalf("bank: got %v want 120s", got)
	}
	if warnings != 2 {
		t.Fatalf("warnings: got %d want 2", warnings)
	}
}

func TestEmptyBankGetsPenaltyTurn(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 100}, "a")
	h.bank.Open("a")
	h.bank.Set("a", 0)
	var limit int
	h.bus.Subscribe(bus.TurnStarted, func(ev bus.Event) { limit = ev.Data["limit_s"].(int) })
	h.begin("outfitting")
	if limit != 15 {
		t.Fatalf("limit: got %d want 15", limit)
	}
	h.clock.Advance(15 * time.Second)
	if len(h.completed) != 1 {
		t.Fatalf("penalty turn did not expire")
	}
}

func TestStateRestore_ResumesHolderTimer(t *testing.T) {
	h := newHarness(t, map[string]int{"a": 100, "b": 200}, "a", "b")
	h.begin("outfitting")
	h.clock.Advance(20 * time.Second)
	st := h.seq.State()
	if st.TurnRemaining != 40*time.Second {
		t.Fatalf("remaining: got %v", st.TurnRemaining)
	}

	h2 := newHarness(t, map[string]int{"a": 100, "b": 200}, "a", "b")
	h2.seq.Restore(st, h2.rules["outfitting"])
	if h2.seq.Current() != "a" {
		t.Fatalf("holder: got %q", h2.seq.Current())
	}
	h2.clock.Advance(39 * time.Second)
	if h2.seq.Current() != "a" {
		t.Fatalf("turn ended early")
	}
	h2.clock.Advance(time.Second)
	if h2.seq.Current() != "b" {
		t.Fatalf("restored timer did not fire")
	}
}
