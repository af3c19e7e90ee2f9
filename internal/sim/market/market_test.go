package market

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

type harness struct {
	clock  *clock.Clock
	bus    *bus.Bus
	timers *clock.Timers
	reg    *registry.Registry
	m      *Engine
	done   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tun := tuning.Defaults()
	tun.Market.EventChance = 0
	h := &harness{clock: clock.New(), reg: registry.New(tun.Wealth)}
	h.bus = bus.New(zerolog.Nop(), h.clock.Now)
	h.timers = clock.NewTimers(h.clock, h.bus, zerolog.Nop())
	h.reg.AddPlayer("buyer", "buyer", 1000)
	h.reg.AddPlayer("seller", "seller", 0)
	h.reg.AddResource("seller", model.Mana, 20)
	h.m = New(h.reg, h.bus, h.clock, h.timers, catalogs.Defaults(), tun, zerolog.Nop())
	h.m.OnComplete = func() { h.done++ }
	return h
}

func TestQuote_Formula(t *testing.T) {
	in := PriceInputs{Base: 40, Demand: 80, Supply: 20, Equilibrium: 400, Volatility: 0.3, Min: 10, Max: 500}
	if got := Quote(in); got < 41.79 || got > 41.81 {
		t.Fatalf("quote: got %v want 41.8", got)
	}
	in.Supply = 100000
	if got := Quote(in); got != 10 {
		t.Fatalf("floor clamp: got %v", got)
	}
	in.Supply, in.Demand = 0, 1e7
	if got := Quote(in); got != 500 {
		t.Fatalf("ceiling clamp: got %v", got)
	}
}

func TestSubmit_CrossingPositionsTradeAtMidpoint(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("phase:resource_auction")
	var executed []bus.Event
	h.bus.Subscribe(bus.AuctionTradeExecuted, func(ev bus.Event) { executed = append(executed, ev) })

	if trades, err := h.m.Submit("seller", model.Mana, model.Sell, 50, 3); err != nil || len(trades) != 0 {
		t.Fatalf("sell: trades=%v err=%v", trades, err)
	}
	trades, err := h.m.Submit("buyer", model.Mana, model.Buy, 60, 5)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades: got %d want 1", len(trades))
	}
	tr := trades[0]
	if tr.Price != 55 || tr.Quantity != 3 || tr.Buyer != "buyer" || tr.Seller != "seller" {
		t.Fatalf("trade: %+v", tr)
	}
	if h.m.Book().Len() != 0 {
		t.Fatalf("both positions must be removed, %d left", h.m.Book().Len())
	}
	b, _ := h.reg.Player("buyer")
	s, _ := h.reg.Player("seller")
	if b.Gold != 1000-165 || s.Gold != 165 {
		t.Fatalf("gold: buyer=%d seller=%d", b.Gold, s.Gold)
	}
	if b.Resources[model.Mana] != 3 || s.Resources[model.Mana] != 17 {
		t.Fatalf("mana: buyer=%d seller=%d", b.Resources[model.Mana], s.Resources[model.Mana])
	}
	if len(executed) != 1 {
		t.Fatalf("trade events: %d", len(executed))
	}
	if len(h.m.Trades()) != 1 {
		t.Fatalf("trade history: %d", len(h.m.Trades()))
	}
}

func TestSubmit_NonCrossingRests(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	h.m.Submit("seller", model.Mana, model.Sell, 70, 3)
	trades, _ := h.m.Submit("buyer", model.Mana, model.Buy, 60, 3)
	if len(trades) != 0 || h.m.Book().Len() != 2 {
		t.Fatalf("expected resting book, trades=%v len=%d", trades, h.m.Book().Len())
	}
	// Replacing the bid with a crossing price trades at the new midpoint.
	trades, _ = h.m.Submit("buyer", model.Mana, model.Buy, 80, 2)
	if len(trades) != 1 || trades[0].Price != 75 || trades[0].Quantity != 2 {
		t.Fatalf("trade after update: %+v", trades)
	}
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.Submit("buyer", model.Mana, model.Buy, 50, 1); fault.KindOf(err) != fault.Action {
		t.Fatalf("closed window: %v", err)
	}
	h.m.Begin("g")
	cases := []struct {
		name string
		err  error
		kind fault.Kind
		code string
	}{
		{"wrong resource", second(h.m.Submit("buyer", model.Aether, model.Buy, 50, 1)), fault.Validation, protocol.ErrInvalidTarget},
		{"below band", second(h.m.Submit("buyer", model.Mana, model.Buy, 5, 1)), fault.Validation, protocol.ErrBadRequest},
		{"above band", second(h.m.Submit("buyer", model.Mana, model.Buy, 501, 1)), fault.Validation, protocol.ErrBadRequest},
		{"zero qty", second(h.m.Submit("buyer", model.Mana, model.Buy, 50, 0)), fault.Validation, protocol.ErrBadRequest},
		{"seller short", second(h.m.Submit("seller", model.Mana, model.Sell, 50, 21)), fault.Resource, protocol.ErrNoResource},
		{"buyer short", second(h.m.Submit("buyer", model.Mana, model.Buy, 500, 3)), fault.Resource, protocol.ErrNoResource},
	}
	for _, tc := range cases {
		fe := fault.From(tc.err)
		if fe == nil || fe.Kind != tc.kind || fe.Code != tc.code {
			t.Fatalf("%s: got %v", tc.name, tc.err)
		}
	}
	if h.m.Book().Len() != 0 {
		t.Fatalf("rejected positions reached the book")
	}
}

func TestSubmit_HugeBuyQuantityRejected(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	before := h.m.Quote(model.Mana)

	if _, err := h.m.Submit("buyer", model.Mana, model.Buy, 500, 1<<61); fault.KindOf(err) != fault.Validation {
		t.Fatalf("oversized quantity: got %v", err)
	}
	if _, err := h.m.Submit("buyer", model.Mana, model.Buy, 500, MaxQuantity); fault.KindOf(err) != fault.Resource {
		t.Fatalf("unaffordable max quantity: got %v", err)
	}
	if h.m.Book().Len() != 0 {
		t.Fatalf("rejected buy reached the book")
	}
	if got := h.m.Quote(model.Mana); got != before {
		t.Fatalf("quote moved: got %v want %v", got, before)
	}
	if cost := buyerCost(500, 1.5, MaxQuantity); !cost.IsPositive() {
		t.Fatalf("cost wrapped: %v", cost)
	}
}

func second(_ []Trade, err error) error { return err }

func TestMatch_UnaffordableBuyerIsCancelled(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	h.m.Submit("buyer", model.Mana, model.Buy, 100, 5)
	h.reg.DebitGold("buyer", 900)
	trades, err := h.m.Submit("seller", model.Mana, model.Sell, 90, 5)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("unaffordable trade executed: %+v", trades)
	}
	if _, ok := h.m.Book().Get("buyer"); ok {
		t.Fatalf("buyer position should be cancelled")
	}
	if _, ok := h.m.Book().Get("seller"); !ok {
		t.Fatalf("seller position should rest")
	}
	b, _ := h.reg.Player("buyer")
	if b.Gold != 100 {
		t.Fatalf("buyer gold touched: %d", b.Gold)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	if err := h.m.Cancel("buyer"); fault.From(err).Code != protocol.ErrInvalidTarget {
		t.Fatalf("cancel without position: %v", err)
	}
	h.m.Submit("buyer", model.Mana, model.Buy, 20, 1)
	if err := h.m.Cancel("buyer"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.m.Book().Len() != 0 {
		t.Fatalf("position not removed")
	}
}

func TestWindowQueue_RunsAllResourcesThenCompletes(t *testing.T) {
	h := newHarness(t)
	var opened []string
	h.bus.Subscribe(bus.AuctionWindowOpened, func(ev bus.Event) { opened = append(opened, ev.Data["resource"].(string)) })
	h.m.Begin("phase:resource_auction")
	h.m.Submit("buyer", model.Mana, model.Buy, 20, 1)

	h.clock.Advance(90 * time.Second)
	if h.m.Current() != "" {
		t.Fatalf("window still open during transition")
	}
	if h.m.Book().Len() != 0 {
		t.Fatalf("book not cleared at window end")
	}
	h.clock.Advance(5 * time.Second)
	if h.m.Current() != model.Vitality {
		t.Fatalf("second window: got %q", h.m.Current())
	}
	h.clock.Advance(3 * 95 * time.Second)
	want := []string{"mana", "vitality", "arcanum", "aether"}
	if len(opened) != 4 {
		t.Fatalf("opened: %v", opened)
	}
	for i := range want {
		if opened[i] != want[i] {
			t.Fatalf("opened: %v", opened)
		}
	}
	if h.done != 1 || h.m.Running() {
		t.Fatalf("completion: done=%d running=%v", h.done, h.m.Running())
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("orphaned callbacks: %d", h.clock.Pending())
	}
}

func TestEvents_PriceMultiplierExpiresAndReverts(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	before := h.m.Quote(model.Mana)
	ev, ok := h.m.TriggerEvent("ARCANE_BOOM", model.Mana)
	if !ok {
		t.Fatalf("trigger failed")
	}
	if got := h.m.Quote(model.Mana); got <= before {
		t.Fatalf("boom did not raise price: %v -> %v", before, got)
	}
	if h.m.Quote(model.Arcanum) != h.m.computeQuote(model.Arcanum) {
		t.Fatalf("quote cache out of date")
	}
	h.clock.Advance(time.Duration(45) * time.Second)
	if len(h.m.Events()) != 0 {
		t.Fatalf("event %s did not expire", ev.ID)
	}
	if got := h.m.Quote(model.Mana); got != before {
		t.Fatalf("price not reverted: %v want %v", got, before)
	}
}

func TestEvents_BuyerSkewRaisesSettlement(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	h.m.TriggerEvent("BROKER_LEVY", model.Mana)
	h.m.Submit("seller", model.Mana, model.Sell, 50, 3)
	trades, _ := h.m.Submit("buyer", model.Mana, model.Buy, 60, 3)
	if len(trades) != 1 {
		t.Fatalf("trades: %+v", trades)
	}
	// ceil(55 * 1.1 * 3) = 182; seller unaffected.
	if trades[0].BuyerPaid != 182 || trades[0].SellerReceived != 165 {
		t.Fatalf("settlement: %+v", trades[0])
	}
}

func TestEvents_CycleProductionMultiplier(t *testing.T) {
	h := newHarness(t)
	h.m.TriggerEvent("AETHER_STORM", "")
	if got := h.m.ProductionMultiplier(model.Aether); got != 1.3 {
		t.Fatalf("multiplier: got %v", got)
	}
	if got := h.m.ProductionMultiplier(model.Mana); got != 1 {
		t.Fatalf("unscoped resource: got %v", got)
	}
	h.m.EndCycle(1)
	if len(h.m.Events()) != 1 {
		t.Fatalf("two-cycle event expired early")
	}
	h.m.EndCycle(2)
	if len(h.m.Events()) != 0 || h.m.ProductionMultiplier(model.Aether) != 1 {
		t.Fatalf("event did not expire after two cycles")
	}
}

func TestStop_ClearsBookAndTimedEvents(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	h.m.TriggerEvent("VOLATILE_WINDS", model.Mana)
	h.m.Submit("buyer", model.Mana, model.Buy, 20, 1)
	h.m.Stop()
	if h.m.Book().Len() != 0 || len(h.m.Events()) != 0 || h.m.Running() {
		t.Fatalf("stop left state: book=%d events=%d", h.m.Book().Len(), len(h.m.Events()))
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("orphaned callbacks: %d", h.clock.Pending())
	}
	if h.done != 0 {
		t.Fatalf("stop must not signal completion")
	}
}

func TestStateRestore_MidWindow(t *testing.T) {
	h := newHarness(t)
	h.m.Begin("g")
	h.m.Submit("buyer", model.Mana, model.Buy, 20, 2)
	h.clock.Advance(30 * time.Second)
	st := h.m.State()
	if st.WindowRemaining != 60*time.Second {
		t.Fatalf("window remaining: %v", st.WindowRemaining)
	}

	h2 := newHarness(t)
	h2.m.Restore(st)
	if h2.m.Current() != model.Mana {
		t.Fatalf("current: %q", h2.m.Current())
	}
	if p, ok := h2.m.Book().Get("buyer"); !ok || p.Quantity != 2 {
		t.Fatalf("book not restored")
	}
	h2.clock.Advance(60 * time.Second)
	if h2.m.Current() != "" {
		t.Fatalf("restored window did not close")
	}
}

func TestHistory_Bounded(t *testing.T) {
	h := History{Limit: 3}
	for i := 0; i < 5; i++ {
		h.Add(PricePoint{Price: float64(i)})
	}
	if len(h.Points) != 3 || h.Points[0].Price != 2 {
		t.Fatalf("history: %+v", h.Points)
	}
	if last, _ := h.Last(); last.Price != 4 {
		t.Fatalf("last: %+v", last)
	}
}
