// Package market is the resource auction: a queue of per-resource windows,
// a continuous double-auction book per window, the quote model with its
// price history, and randomized market events.
package market

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

const (
	windowTimer     = "auction:window"
	transitionTimer = "auction:transition"
)

// Depositor credits bought resources to a player, applying storage limits.
type Depositor func(player string, r model.Resource, n int) error

type Trade struct {
	ID             string         `json:"id"`
	Buyer          string         `json:"buyer"`
	Seller         string         `json:"seller"`
	Resource       model.Resource `json:"resource"`
	Price          float64        `json:"price"`
	Quantity       int            `json:"quantity"`
	BuyerPaid      int            `json:"buyer_paid"`
	SellerReceived int            `json:"seller_received"`
	At             time.Duration  `json:"at"`
}

func TradeID(n uint64) string {
	return fmt.Sprintf("TR%06d", n)
}

type Engine struct {
	reg    *registry.Registry
	bus    *bus.Bus
	clock  *clock.Clock
	timers *clock.Timers
	cats   *catalogs.Catalogs
	tun    tuning.Market
	seed   int64
	log    zerolog.Logger

	deposit Depositor
	group   string

	queue   []model.Resource
	window  int
	open    bool
	running bool
	book    *Book

	quotes  map[model.Resource]float64
	history map[model.Resource]*History

	trades   []Trade
	tradeSeq uint64

	events   map[uint64]*ActiveEvent
	eventSeq uint64
	rolls    uint64

	// OnComplete runs after the last window closes.
	OnComplete func()
}

func New(reg *registry.Registry, b *bus.Bus, c *clock.Clock, timers *clock.Timers, cats *catalogs.Catalogs, t tuning.Tuning, logger zerolog.Logger) *Engine {
	m := &Engine{
		reg:     reg,
		bus:     b,
		clock:   c,
		timers:  timers,
		cats:    cats,
		tun:     t.Market,
		seed:    t.Seed,
		log:     logger.With().Str("component", "market").Logger(),
		queue:   model.Resources[:],
		book:    NewBook(),
		quotes:  map[model.Resource]float64{},
		history: map[model.Resource]*History{},
		events:  map[uint64]*ActiveEvent{},
	}
	m.deposit = reg.AddResource
	for _, r := range model.Resources {
		m.history[r] = &History{Limit: t.Market.HistoryLength}
		m.quotes[r] = m.computeQuote(r)
		m.history[r].Add(PricePoint{At: c.Now(), Price: m.quotes[r], Source: "quote"})
	}
	return m
}

// SetDepositor routes bought resources through storage rules.
func (m *Engine) SetDepositor(d Depositor) {
	if d != nil {
		m.deposit = d
	}
}

func (m *Engine) Running() bool { return m.running }

// Current is the resource whose window is open, or "" between windows.
func (m *Engine) Current() model.Resource {
	if !m.open {
		return ""
	}
	return m.queue[m.window]
}

func (m *Engine) Book() *Book { return m.book }

func (m *Engine) Quote(r model.Resource) float64 { return m.quotes[r] }

func (m *Engine) Quotes() map[model.Resource]float64 {
	out := make(map[model.Resource]float64, len(m.quotes))
	for k, v := range m.quotes {
		out[k] = v
	}
	return out
}

func (m *Engine) History(r model.Resource) []PricePoint {
	h, ok := m.history[r]
	if !ok {
		return nil
	}
	return append([]PricePoint(nil), h.Points...)
}

// Trades is the append-only trade record.
func (m *Engine) Trades() []Trade { return append([]Trade(nil), m.trades...) }

// Begin opens the first window. group is the timer group of the auction
// phase, so leaving the phase cancels every auction timer.
func (m *Engine) Begin(group string) {
	m.Stop()
	m.group = group
	m.window = 0
	m.running = true
	m.openWindow()
}

// Stop abandons the auction: the book is cleared and timed events revert.
func (m *Engine) Stop() {
	m.timers.Cancel(windowTimer)
	m.timers.Cancel(transitionTimer)
	if m.open {
		m.clearBook("auction_stopped")
	}
	m.open = false
	m.running = false
	m.clearWindowEvents()
}

func (m *Engine) openWindow() {
	r := m.queue[m.window]
	m.open = true
	m.book = NewBook()
	d := time.Duration(m.tun.WindowSeconds) * time.Second
	m.bus.Publish(bus.AuctionWindowOpened, map[string]any{
		"resource":   string(r),
		"window":     m.window,
		"duration_s": m.tun.WindowSeconds,
		"price":      m.quotes[r],
	})
	m.rollEvent(catalogs.TriggerWindow, r)
	m.armWindowTimer(d)
}

func (m *Engine) armWindowTimer(d time.Duration) {
	m.timers.Start(clock.Spec{
		Name:     windowTimer,
		Group:    m.group,
		Kind:     "auction_window",
		Subject:  string(m.queue[m.window]),
		Duration: d,
		OnExpire: m.closeWindow,
	})
}

func (m *Engine) armTransitionTimer(d time.Duration) {
	m.timers.Start(clock.Spec{
		Name:     transitionTimer,
		Group:    m.group,
		Kind:     "auction_transition",
		Duration: d,
		OnExpire: m.nextWindow,
	})
}

// CloseWindow ends the open window early.
func (m *Engine) CloseWindow() {
	if !m.open {
		return
	}
	m.timers.Cancel(windowTimer)
	m.closeWindow()
}

func (m *Engine) closeWindow() {
	if !m.open {
		return
	}
	r := m.queue[m.window]
	m.clearBook("window_closed")
	m.open = false
	m.refreshQuotes("quote")
	traded := 0
	for _, t := range m.trades {
		if t.Resource == r {
			traded++
		}
	}
	m.bus.Publish(bus.AuctionWindowClosed, map[string]any{
		"resource": string(r),
		"window":   m.window,
		"price":    m.quotes[r],
		"trades":   traded,
	})
	if m.window+1 >= len(m.queue) {
		m.finish()
		return
	}
	if m.tun.TransitionSeconds <= 0 {
		m.nextWindow()
		return
	}
	m.armTransitionTimer(time.Duration(m.tun.TransitionSeconds) * time.Second)
}

func (m *Engine) nextWindow() {
	if !m.running {
		return
	}
	m.window++
	m.openWindow()
}

func (m *Engine) finish() {
	m.running = false
	m.clearWindowEvents()
	m.bus.Publish(bus.AuctionCompleted, map[string]any{
		"trades": len(m.trades),
		"prices": quotesData(m.quotes),
	})
	if m.OnComplete != nil {
		m.OnComplete()
	}
}

func (m *Engine) clearBook(reason string) {
	for _, p := range m.book.Clear() {
		m.bus.Publish(bus.AuctionPositionDrop, map[string]any{
			"player":   p.Player,
			"resource": string(p.Resource),
			"reason":   reason,
		})
	}
}

// MaxQuantity bounds a single position.
const MaxQuantity = math.MaxInt32

// Submit places or replaces the player's position in the open window and
// runs matching. It returns the trades the update produced.
func (m *Engine) Submit(player string, r model.Resource, side model.Side, price float64, qty int) ([]Trade, error) {
	if !m.open {
		return nil, fault.Actionf(protocol.ErrNoPermission, "no auction window is open")
	}
	if r != m.Current() {
		return nil, fault.Validationf(protocol.ErrInvalidTarget, "window is open for %s, not %s", m.Current(), r)
	}
	if side != model.Buy && side != model.Sell {
		return nil, fault.Validationf(protocol.ErrBadRequest, "unknown side %q", side)
	}
	if math.IsNaN(price) || price < m.tun.MinPrice || price > m.tun.MaxPrice {
		return nil, fault.Validationf(protocol.ErrBadRequest, "price %v outside [%v,%v]", price, m.tun.MinPrice, m.tun.MaxPrice)
	}
	if qty <= 0 || qty > MaxQuantity {
		return nil, fault.Validationf(protocol.ErrBadRequest, "quantity %d outside [1,%d]", qty, MaxQuantity)
	}
	p, ok := m.reg.Player(player)
	if !ok {
		return nil, fault.Validationf(protocol.ErrBadRequest, "unknown player %s", player)
	}
	mods := m.modifiers(r)
	switch side {
	case model.Sell:
		if p.Resources[r] < qty {
			return nil, fault.Resourcef("%s holds %d %s, offered %d", player, p.Resources[r], r, qty)
		}
	case model.Buy:
		if cost := buyerCost(price, mods.BuyerSkew, qty); cost.GreaterThan(decimal.NewFromInt(int64(p.Gold))) {
			return nil, fault.Resourcef("%s cannot cover %s gold", player, cost.String())
		}
	}
	pos := m.book.Upsert(Position{
		Player:   player,
		Resource: r,
		Side:     side,
		Price:    price,
		Quantity: qty,
		At:       m.clock.Now(),
	})
	m.bus.Publish(bus.AuctionPositionUpdate, map[string]any{
		"player":   player,
		"resource": string(r),
		"side":     string(side),
		"price":    pos.Price,
		"quantity": pos.Quantity,
	})
	trades := m.match()
	m.refreshQuotes("quote")
	return trades, nil
}

func (m *Engine) Cancel(player string) error {
	if !m.open {
		return fault.Actionf(protocol.ErrNoPermission, "no auction window is open")
	}
	p, ok := m.book.Remove(player)
	if !ok {
		return fault.Validationf(protocol.ErrInvalidTarget, "%s has no open position", player)
	}
	m.bus.Publish(bus.AuctionPositionDrop, map[string]any{
		"player":   player,
		"resource": string(p.Resource),
		"reason":   "cancelled",
	})
	m.refreshQuotes("quote")
	return nil
}

// match executes crossing pairs until the book no longer crosses. Each match
// fills min(qty) at the midpoint and removes both positions. A side that can
// no longer settle is cancelled and the scan continues.
func (m *Engine) match() []Trade {
	var out []Trade
	for {
		buy, sell, ok := m.book.Cross()
		if !ok {
			return out
		}
		r := buy.Resource
		qty := buy.Quantity
		if sell.Quantity < qty {
			qty = sell.Quantity
		}
		mid := decimal.NewFromFloat(buy.Price).Add(decimal.NewFromFloat(sell.Price)).Div(decimal.NewFromInt(2))
		mods := m.modifiers(r)
		pays := settleAmount(mid, mods.BuyerSkew, qty, true)
		gets := settleAmount(mid, mods.SellerSkew, qty, false)

		if !m.reg.CanAfford(buy.Player, pays) {
			m.dropUnsettleable(buy)
			continue
		}
		if sp, _ := m.reg.Player(sell.Player); sp == nil || sp.Resources[r] < qty {
			m.dropUnsettleable(sell)
			continue
		}

		if err := m.reg.DebitGold(buy.Player, pays); err != nil {
			m.dropUnsettleable(buy)
			continue
		}
		if err := m.reg.RemoveResource(sell.Player, r, qty); err != nil {
			_ = m.reg.CreditGold(buy.Player, pays)
			m.dropUnsettleable(sell)
			continue
		}
		_ = m.reg.CreditGold(sell.Player, gets)
		if err := m.deposit(buy.Player, r, qty); err != nil {
			m.log.Error().Err(err).Str("player", buy.Player).Msg("deposit bought resources")
		}
		m.book.Remove(buy.Player)
		m.book.Remove(sell.Player)

		m.tradeSeq++
		t := Trade{
			ID:             TradeID(m.tradeSeq),
			Buyer:          buy.Player,
			Seller:         sell.Player,
			Resource:       r,
			Price:          mid.InexactFloat64(),
			Quantity:       qty,
			BuyerPaid:      pays,
			SellerReceived: gets,
			At:             m.clock.Now(),
		}
		m.trades = append(m.trades, t)
		m.history[r].Add(PricePoint{At: t.At, Price: t.Price, Source: "trade"})
		out = append(out, t)
		m.bus.Publish(bus.AuctionTradeExecuted, map[string]any{
			"trade":           t.ID,
			"buyer":           t.Buyer,
			"seller":          t.Seller,
			"resource":        string(r),
			"price":           t.Price,
			"quantity":        t.Quantity,
			"buyer_paid":      t.BuyerPaid,
			"seller_received": t.SellerReceived,
		})
	}
}

func (m *Engine) dropUnsettleable(p *Position) {
	m.book.Remove(p.Player)
	m.bus.Publish(bus.AuctionPositionDrop, map[string]any{
		"player":   p.Player,
		"resource": string(p.Resource),
		"reason":   "unsettleable",
	})
}

// settleAmount is price*skew*qty in gold: buyers round up, sellers round down.
func settleAmount(price decimal.Decimal, skew float64, qty int, roundUp bool) int {
	v := price.Mul(decimal.NewFromFloat(skew)).Mul(decimal.NewFromInt(int64(qty)))
	if roundUp {
		return int(v.Ceil().IntPart())
	}
	return int(v.Floor().IntPart())
}

// buyerCost stays in decimal so oversized quantities cannot wrap an int.
func buyerCost(price, skew float64, qty int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(skew)).Mul(decimal.NewFromInt(int64(qty))).Ceil()
}

func (m *Engine) computeQuote(r model.Resource) float64 {
	supply := float64(m.reg.Holdings(r))
	demand := m.tun.BaselineDemand[string(r)] * float64(m.reg.NumPlayers())
	if m.open && m.Current() == r {
		supply += float64(m.book.OpenQuantity(model.Sell))
		demand += float64(m.book.OpenQuantity(model.Buy))
	}
	mods := m.modifiers(r)
	p := Quote(PriceInputs{
		Base:        m.tun.BasePrices[string(r)],
		Demand:      demand,
		Supply:      supply,
		Equilibrium: m.tun.Equilibrium[string(r)],
		Volatility:  m.tun.Volatility[string(r)] + mods.VolatilityDelta,
		Min:         m.tun.MinPrice,
		Max:         m.tun.MaxPrice,
	})
	p = clamp(p*mods.PriceMultiplier+mods.PricePush, m.tun.MinPrice, m.tun.MaxPrice)
	return decimal.NewFromFloat(p).Round(2).InexactFloat64()
}

// RefreshQuotes recomputes every quote; holdings change outside the market.
func (m *Engine) RefreshQuotes() { m.refreshQuotes("quote") }

func (m *Engine) refreshQuotes(source string) {
	for _, r := range model.Resources {
		p := m.computeQuote(r)
		if p == m.quotes[r] {
			continue
		}
		prev := m.quotes[r]
		m.quotes[r] = p
		m.history[r].Add(PricePoint{At: m.clock.Now(), Price: p, Source: "quote"})
		m.bus.Publish(bus.MarketPriceUpdated, map[string]any{
			"resource": string(r),
			"price":    p,
			"previous": prev,
			"cause":    source,
		})
	}
}

func quotesData(q map[model.Resource]float64) map[string]float64 {
	out := make(map[string]float64, len(q))
	for k, v := range q {
		out[string(k)] = v
	}
	return out
}
