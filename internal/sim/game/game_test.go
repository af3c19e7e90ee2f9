package game

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/persistence/snapshot"
	"arcanecycles.io/internal/persistence/store"
	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/phase"
	"arcanecycles.io/internal/sim/tuning"
)

type harness struct {
	g      *Game
	store  *store.Memory
	events []bus.Event
}

func newHarness(t *testing.T, mutate func(*tuning.Tuning)) *harness {
	t.Helper()
	tun := tuning.Defaults()
	tun.Market.EventChance = 0
	if mutate != nil {
		mutate(&tun)
	}
	h := &harness{store: store.NewMemory()}
	g, err := New(Config{
		GameID:  "test-game",
		Tuning:  tun,
		Store:   h.store,
		Players: []PlayerSpec{{ID: "p1", Name: "Alice"}, {ID: "p2", Name: "Bob"}},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	h.g = g
	g.Bus().Subscribe(bus.All, func(ev bus.Event) { h.events = append(h.events, ev) })
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func (h *harness) count(name string) int {
	n := 0
	for _, ev := range h.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (h *harness) last(name string) (bus.Event, bool) {
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Name == name {
			return h.events[i], true
		}
	}
	return bus.Event{}, false
}

func (h *harness) act(player, typ, target string, p protocol.ActionParams) Result {
	return h.g.ExecutePlayerAction(player, protocol.Action{Type: typ, Target: target, Params: p})
}

func (h *harness) mustAct(t *testing.T, player, typ, target string, p protocol.ActionParams) Result {
	t.Helper()
	res := h.act(player, typ, target, p)
	if !res.OK {
		t.Fatalf("%s %s %s: %s %s", player, typ, target, res.Code, res.Message)
	}
	return res
}

func TestFullCycle_ReturnsToTerritorySelection(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < len(phase.Sequence); i++ {
		if err := h.g.AdvancePhase(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if h.g.Phase() != phase.TerritorySelection || h.g.Cycle() != 2 {
		t.Fatalf("got cycle %d phase %s", h.g.Cycle(), h.g.Phase())
	}
	if n := h.count(bus.CycleStarted); n != 2 {
		t.Fatalf("cycle.started: got %d want 2", n)
	}
	for _, st := range h.g.Timers().States() {
		if st.Group != phase.Group(phase.TerritorySelection) {
			t.Fatalf("orphaned timer %s (group %s)", st.Name, st.Group)
		}
	}
}

func TestClaimDispute_SeatBreaksWealthTie(t *testing.T) {
	h := newHarness(t, nil)
	target := h.g.Registry().TerritoryIDs()[0]

	if res := h.act("p2", protocol.ActionClaimTerritory, target, protocol.ActionParams{}); res.Code != protocol.ErrNotYourTurn {
		t.Fatalf("out of turn claim: %+v", res)
	}
	if ev, ok := h.last(bus.ActionRejected); !ok || ev.Data["code"] != protocol.ErrNotYourTurn {
		t.Fatalf("rejection event: %+v", ev)
	}

	h.mustAct(t, "p1", protocol.ActionClaimTerritory, target, protocol.ActionParams{})
	h.mustAct(t, "p1", protocol.ActionEndTurn, "", protocol.ActionParams{})
	res := h.mustAct(t, "p2", protocol.ActionClaimTerritory, target, protocol.ActionParams{})
	if res.Data["disputed"] != true {
		t.Fatalf("second claim should be disputed: %+v", res.Data)
	}
	h.mustAct(t, "p2", protocol.ActionEndTurn, "", protocol.ActionParams{})

	if h.g.Phase() != phase.Outfitting {
		t.Fatalf("phase after sequence: %s", h.g.Phase())
	}
	terr, _ := h.g.Registry().Territory(target)
	if terr.Owner != "p1" {
		t.Fatalf("owner: got %q want p1", terr.Owner)
	}
	ev, ok := h.last(bus.DisputeResolved)
	if !ok || ev.Data["winner"] != "p1" {
		t.Fatalf("dispute.resolved: %+v", ev)
	}
}

func TestClaimBudget_EndsTurnWhenSpent(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.g.Registry().TerritoryIDs()
	h.mustAct(t, "p1", protocol.ActionClaimTerritory, ids[0], protocol.ActionParams{})
	minBid := h.g.Territory().MinimumBid(ids[1])
	res := h.mustAct(t, "p1", protocol.ActionClaimTerritory, ids[1], protocol.ActionParams{Bid: minBid})
	if res.Data["paid"] != true {
		t.Fatalf("second claim should be a paid bid: %+v", res.Data)
	}
	if h.g.Turns().Current() != "p2" {
		t.Fatalf("turn should pass after the budget is spent, holder %q", h.g.Turns().Current())
	}
}

func TestRejections(t *testing.T) {
	h := newHarness(t, nil)
	target := h.g.Registry().TerritoryIDs()[0]

	cases := []struct {
		name   string
		player string
		action protocol.Action
		code   string
		kind   fault.Kind
	}{
		{"unknown player", "zed", protocol.Action{Type: protocol.ActionEndTurn}, protocol.ErrBadRequest, fault.Validation},
		{"unknown action", "p1", protocol.Action{Type: "summon_dragon"}, protocol.ErrBadRequest, fault.Validation},
		{"wrong phase", "p1", protocol.Action{Type: protocol.ActionPurchaseConstruct, Params: protocol.ActionParams{ConstructType: "mana_well"}}, protocol.ErrNoPermission, fault.Action},
		{"unknown territory", "p1", protocol.Action{Type: protocol.ActionClaimTerritory, Target: "T99_99"}, protocol.ErrInvalidTarget, fault.Validation},
	}
	for _, tc := range cases {
		res := h.g.ExecutePlayerAction(tc.player, tc.action)
		if res.OK || res.Code != tc.code || res.Kind != tc.kind {
			t.Fatalf("%s: got %+v, want %s/%s", tc.name, res, tc.kind, tc.code)
		}
	}

	h.g.PauseGame()
	if res := h.act("p1", protocol.ActionClaimTerritory, target, protocol.ActionParams{}); res.Code != protocol.ErrGamePaused {
		t.Fatalf("paused: %+v", res)
	}
	if got := h.count(bus.ActionRejected); got != len(cases)+1 {
		t.Fatalf("action.rejected events: got %d want %d", got, len(cases)+1)
	}
}

func TestOutfitting_PurchaseInstallProduce(t *testing.T) {
	h := newHarness(t, nil)
	target := h.g.Registry().TerritoryIDs()[0]
	h.mustAct(t, "p1", protocol.ActionClaimTerritory, target, protocol.ActionParams{})
	if err := h.g.AdvancePhase(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if h.g.Turns().Current() != "p2" {
		t.Fatalf("poorer player should open outfitting, holder %q", h.g.Turns().Current())
	}
	h.mustAct(t, "p2", protocol.ActionEndTurn, "", protocol.ActionParams{})

	res := h.mustAct(t, "p1", protocol.ActionPurchaseConstruct, "", protocol.ActionParams{ConstructType: "mana_well"})
	cid := res.Data["construct"].(string)
	h.mustAct(t, "p1", protocol.ActionInstallConstruct, target, protocol.ActionParams{ConstructID: cid})
	h.mustAct(t, "p1", protocol.ActionBuyPreservation, "", protocol.ActionParams{Resource: "mana"})

	p1, _ := h.g.Registry().Player("p1")
	if want := 1000 - 150 - 100; p1.Gold != want {
		t.Fatalf("gold: got %d want %d", p1.Gold, want)
	}

	if err := h.g.AdvancePhase(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if h.g.Phase() != phase.Production {
		t.Fatalf("phase: %s", h.g.Phase())
	}
	c, _ := h.g.Registry().Construct(cid)
	if c.Status == model.StatusInstalling {
		t.Fatalf("installation not resolved")
	}
	if c.Status == model.StatusDamaged {
		t.Fatalf("cycle 1 must not roll a critical failure")
	}
	wantReports := 0
	if c.Status == model.StatusActive {
		wantReports = 1
		if p1.Resources[model.Mana] == 0 {
			t.Fatalf("active construct produced nothing")
		}
	}
	if got := h.count(bus.ProductionApplied); got != wantReports {
		t.Fatalf("production.applied: got %d want %d", got, wantReports)
	}
}

func TestAuction_TradeAndCompletion(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.g.ForceAdvanceToPhase(phase.ResourceAuction); err != nil {
		t.Fatalf("force: %v", err)
	}
	if h.g.Market().Current() != model.Mana {
		t.Fatalf("first window: %s", h.g.Market().Current())
	}
	if err := h.g.Registry().AddResource("p2", model.Mana, 20); err != nil {
		t.Fatalf("seed mana: %v", err)
	}

	h.mustAct(t, "p2", protocol.ActionSubmitPosition, "", protocol.ActionParams{Side: "sell", Price: 50, Quantity: 10})
	res := h.mustAct(t, "p1", protocol.ActionSubmitPosition, "", protocol.ActionParams{Resource: "mana", Side: "buy", Price: 60, Quantity: 10})
	if trades := res.Data["trades"].([]string); len(trades) != 1 {
		t.Fatalf("trades: %v", trades)
	}
	p1, _ := h.g.Registry().Player("p1")
	p2, _ := h.g.Registry().Player("p2")
	if p1.Gold != 1000-550 || p1.Resources[model.Mana] != 10 {
		t.Fatalf("buyer: gold %d mana %d", p1.Gold, p1.Resources[model.Mana])
	}
	if p2.Gold != 1000+550 || p2.Resources[model.Mana] != 10 {
		t.Fatalf("seller: gold %d mana %d", p2.Gold, p2.Resources[model.Mana])
	}

	h.mustAct(t, "p1", protocol.ActionEndTurn, "", protocol.ActionParams{})
	if res := h.act("p1", protocol.ActionSubmitPosition, "", protocol.ActionParams{Side: "buy", Price: 60, Quantity: 1}); res.OK {
		t.Fatalf("action after end_turn accepted")
	}
	h.mustAct(t, "p2", protocol.ActionEndTurn, "", protocol.ActionParams{})
	if h.g.Phase() != phase.EndOfCycle {
		t.Fatalf("phase after every player ended: %s", h.g.Phase())
	}
	if h.g.Timers().Len() != 1 {
		t.Fatalf("only the end-of-cycle phase timer should remain, got %+v", h.g.Timers().States())
	}
}

func TestAuction_WindowsRunOutAdvancesPhase(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.g.ForceAdvanceToPhase(phase.ResourceAuction)
	// The last window closes at 375s; the end-of-cycle timer would fire at 380s.
	h.g.Advance(376 * time.Second)
	if h.g.Phase() != phase.EndOfCycle {
		t.Fatalf("phase: %s", h.g.Phase())
	}
	if h.count(bus.AuctionCompleted) != 1 {
		t.Fatalf("auction.completed: %d", h.count(bus.AuctionCompleted))
	}
}

func TestTurnTimeouts_DrawBankAndAdvance(t *testing.T) {
	h := newHarness(t, nil)
	h.g.Advance(120 * time.Second)
	if h.g.Phase() != phase.Outfitting {
		t.Fatalf("phase: %s", h.g.Phase())
	}
	for _, id := range []string{"p1", "p2"} {
		if got := h.g.Bank().Balance(id); got != 120*time.Second {
			t.Fatalf("%s bank: %v", id, got)
		}
	}
	if h.count(bus.TimeBankDrawn) != 2 {
		t.Fatalf("timebank.drawn: %d", h.count(bus.TimeBankDrawn))
	}
}

func TestPauseResume_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.g.Advance(30 * time.Second)
	h.g.PauseGame()
	h.g.PauseGame()
	h.g.Advance(time.Hour)
	if h.g.Phase() != phase.TerritorySelection || h.g.Turns().Current() != "p1" {
		t.Fatalf("state moved while paused: %s %s", h.g.Phase(), h.g.Turns().Current())
	}
	if err := h.g.ResumeGame(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := h.g.ResumeGame(); err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if h.count(bus.GamePaused) != 1 || h.count(bus.GameResumed) != 1 {
		t.Fatalf("paused %d resumed %d", h.count(bus.GamePaused), h.count(bus.GameResumed))
	}
	h.g.Advance(30 * time.Second)
	if h.g.Turns().Current() != "p2" {
		t.Fatalf("p1 turn should expire after its remaining 30s, holder %q", h.g.Turns().Current())
	}
}

func TestFault_PausesUntilRecover(t *testing.T) {
	h := newHarness(t, nil)
	h.g.Bus().Subscribe(bus.PhaseStarted, func(ev bus.Event) {
		if ev.Data["phase"] == phase.Outfitting {
			panic("listener bug")
		}
	})
	_ = h.g.AdvancePhase()
	if !h.g.Paused() || h.g.Fault() == nil {
		t.Fatalf("paused=%v fault=%v", h.g.Paused(), h.g.Fault())
	}
	if h.count(bus.SystemError) == 0 {
		t.Fatalf("system.error not published")
	}
	if err := h.g.ResumeGame(); fault.CodeOf(err) != protocol.ErrConflict {
		t.Fatalf("resume while faulted: %v", err)
	}
	if err := h.g.Recover(); err == nil {
		t.Fatalf("recover should return the cleared fault")
	}
	if h.g.Paused() || h.g.Fault() != nil {
		t.Fatalf("after recover: paused=%v fault=%v", h.g.Paused(), h.g.Fault())
	}
	if h.g.Phase() != phase.Outfitting {
		t.Fatalf("phase: %s", h.g.Phase())
	}
}

func TestGameEnd_FinalStandings(t *testing.T) {
	h := newHarness(t, func(tun *tuning.Tuning) { tun.MaxCycles = 1 })
	_ = h.g.Registry().CreditGold("p2", 500)
	for i := 0; i < len(phase.Sequence); i++ {
		_ = h.g.AdvancePhase()
	}
	if !h.g.Ended() {
		t.Fatalf("phase: %s", h.g.Phase())
	}
	st := h.g.Standings()
	if len(st) != 2 || st[0].PlayerID != "p2" || st[0].Rank != 1 {
		t.Fatalf("standings: %+v", st)
	}
	ev, ok := h.last(bus.GameEnded)
	if !ok || ev.Data["standings"] == nil {
		t.Fatalf("game.ended: %+v", ev)
	}
	if res := h.act("p1", protocol.ActionEndTurn, "", protocol.ActionParams{}); res.Code != protocol.ErrGameEnded {
		t.Fatalf("action after end: %+v", res)
	}
	if err := h.g.AdvancePhase(); fault.CodeOf(err) != protocol.ErrGameEnded {
		t.Fatalf("advance after end: %v", err)
	}
	if h.g.Timers().Len() != 0 {
		t.Fatalf("timers left: %+v", h.g.Timers().States())
	}
}

func TestSaveLoad_RestoresStateAndTimers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	target := h.g.Registry().TerritoryIDs()[0]
	h.mustAct(t, "p1", protocol.ActionClaimTerritory, target, protocol.ActionParams{})
	h.g.Advance(20 * time.Second)

	hdr, err := h.g.Save(ctx, "slot1")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if hdr.Cycle != 1 || hdr.Phase != phase.TerritorySelection || hdr.SaveID == "" {
		t.Fatalf("header: %+v", hdr)
	}

	h.mustAct(t, "p1", protocol.ActionEndTurn, "", protocol.ActionParams{})
	h.g.Advance(50 * time.Second)

	if _, err := h.g.Load(ctx, "slot1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if h.g.Turns().Current() != "p1" || h.g.Territory().FreeClaims("p1") != 0 {
		t.Fatalf("turn state not restored: holder %q", h.g.Turns().Current())
	}
	if got := h.g.Territory().Claimants(target); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("claimants: %v", got)
	}
	if rem, ok := h.g.Timers().Remaining("turn:" + phase.TerritorySelection + ":p1"); !ok || rem != 40*time.Second {
		t.Fatalf("turn timer: %v %v", rem, ok)
	}
	if h.count(bus.GameLoaded) != 1 {
		t.Fatalf("game.loaded not published")
	}
	h.g.Advance(40 * time.Second)
	if h.g.Turns().Current() != "p2" {
		t.Fatalf("restored timer did not fire, holder %q", h.g.Turns().Current())
	}
}

func TestLoad_VersionMismatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	var buf bytes.Buffer
	snap := h.g.Snapshot()
	if _, err := snapshot.Encode(&buf, snap, snapshot.Header{Slot: "old"}, snapshot.Zstd); err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := buf.Bytes()
	nl := bytes.IndexByte(raw, '\n')
	var hdr snapshot.Header
	_ = json.Unmarshal(raw[:nl], &hdr)
	hdr.Version = 99
	hb, _ := json.Marshal(hdr)
	_ = h.store.Save(ctx, "old", append(append(hb, '\n'), raw[nl+1:]...))

	_, err := h.g.Load(ctx, "old")
	if !errors.Is(err, snapshot.ErrVersionMismatch) || fault.KindOf(err) != fault.Validation {
		t.Fatalf("got %v", err)
	}
	if h.g.Phase() != phase.TerritorySelection {
		t.Fatalf("failed load changed state: %s", h.g.Phase())
	}
}

func TestRestore_RejectedSnapshotLeavesGameUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.g.Advance(10 * time.Second)
	before := h.g.View()
	timers := h.g.Timers().Len()
	now := h.g.Clock().Now()

	cases := map[string]func(*snapshot.V1){
		"unknown phase":       func(s *snapshot.V1) { s.Phase.Phase = "bogus" },
		"unknown turn phase":  func(s *snapshot.V1) { s.Turns.Phase = "bogus" },
		"different tuning":    func(s *snapshot.V1) { s.Tuning.MaxCycles++ },
		"turn order stranger": func(s *snapshot.V1) { s.Turns.Order = append(s.Turns.Order, "ghost") },
	}
	for name, mutate := range cases {
		snap := h.g.Snapshot()
		snap.Registry.Players[0].Gold = 7
		snap.ClockNow += 12345 * time.Second
		mutate(&snap)
		if err := h.g.Restore(snap); fault.KindOf(err) != fault.Validation {
			t.Fatalf("%s: got %v", name, err)
		}
		if got := h.g.View(); !reflect.DeepEqual(got, before) {
			t.Fatalf("%s: view changed:\n got=%+v\nwant=%+v", name, got, before)
		}
		if h.g.Timers().Len() != timers || h.g.Clock().Now() != now {
			t.Fatalf("%s: timers %d clock %v", name, h.g.Timers().Len(), h.g.Clock().Now())
		}
	}
	h.g.Advance(170 * time.Second)
	if h.g.Phase() != phase.Outfitting {
		t.Fatalf("phase timer lost after rejected restore: %s", h.g.Phase())
	}
}

func TestAutoSave_OnCycleStart(t *testing.T) {
	h := newHarness(t, func(tun *tuning.Tuning) { tun.AutoSave = true })
	for i := 0; i < len(phase.Sequence); i++ {
		_ = h.g.AdvancePhase()
	}
	raw, err := h.store.Load(context.Background(), autoSaveSlot)
	if err != nil {
		t.Fatalf("auto save: %v", err)
	}
	hdr, err := snapshot.ReadHeader(bytes.NewReader(raw))
	if err != nil || hdr.Cycle != 2 || hdr.Phase != phase.TerritorySelection {
		t.Fatalf("auto save header: %+v %v", hdr, err)
	}
}

func TestLoop_SerialisesCalls(t *testing.T) {
	h := newHarness(t, nil)
	loop := NewLoop(h.g, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	var got string
	if err := loop.Call(ctx, func(g *Game) { got = g.Phase() }); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != phase.TerritorySelection {
		t.Fatalf("phase via loop: %s", got)
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	if err := loop.Call(context.Background(), func(*Game) {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("call after stop: %v", err)
	}
}
