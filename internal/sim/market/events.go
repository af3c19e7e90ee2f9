package market

import (
	"fmt"
	"sort"
	"time"

	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/dice"
	"arcanecycles.io/internal/sim/model"
)

// ActiveEvent is a triggered market event. Window events expire by timer;
// cycle events count down cycles.
type ActiveEvent struct {
	Seq             uint64         `json:"seq"`
	ID              string         `json:"id"`
	Trigger         string         `json:"trigger"`
	Effect          string         `json:"effect"`
	Magnitude       float64        `json:"magnitude"`
	Resource        model.Resource `json:"resource,omitempty"`
	StartedAt       time.Duration  `json:"started_at"`
	Duration        time.Duration  `json:"duration,omitempty"`
	CyclesRemaining int            `json:"cycles_remaining,omitempty"`
}

func (e ActiveEvent) appliesTo(r model.Resource) bool {
	return e.Resource == "" || e.Resource == r
}

// Modifiers folds every active event touching r.
type Modifiers struct {
	PriceMultiplier      float64
	VolatilityDelta      float64
	PricePush            float64
	BuyerSkew            float64
	SellerSkew           float64
	ProductionMultiplier float64
}

func (m *Engine) modifiers(r model.Resource) Modifiers {
	mod := Modifiers{PriceMultiplier: 1, BuyerSkew: 1, SellerSkew: 1, ProductionMultiplier: 1}
	for _, ev := range m.events {
		if !ev.appliesTo(r) {
			continue
		}
		switch ev.Effect {
		case catalogs.EffectPriceMultiplier:
			mod.PriceMultiplier *= ev.Magnitude
		case catalogs.EffectVolatility:
			mod.VolatilityDelta += ev.Magnitude
		case catalogs.EffectPricePush:
			mod.PricePush += ev.Magnitude
		case catalogs.EffectBuyerSkew:
			mod.BuyerSkew *= ev.Magnitude
		case catalogs.EffectSellerSkew:
			mod.SellerSkew *= ev.Magnitude
		case catalogs.EffectProductionMultiplier:
			mod.ProductionMultiplier *= ev.Magnitude
		}
	}
	return mod
}

// ProductionMultiplier is the product of active production effects on r.
func (m *Engine) ProductionMultiplier(r model.Resource) float64 {
	return m.modifiers(r).ProductionMultiplier
}

// Events lists active events in trigger order.
func (m *Engine) Events() []ActiveEvent {
	out := make([]ActiveEvent, 0, len(m.events))
	for _, seq := range m.eventOrder() {
		out = append(out, *m.events[seq])
	}
	return out
}

// rollEvent triggers a weighted event of the given trigger with EventChance.
// scope is the resource a window event falls back to.
func (m *Engine) rollEvent(trigger string, scope model.Resource) (ActiveEvent, bool) {
	m.rolls++
	label := "market:" + trigger
	if dice.Chance(dice.Roll(m.seed, label, int(m.rolls))) >= m.tun.EventChance {
		return ActiveEvent{}, false
	}
	weights := map[string]float64{}
	for _, id := range m.cats.Events.IDs {
		def := m.cats.Events.ByID[id]
		if def.Trigger == trigger && def.BaseWeight > 0 {
			weights[id] = def.BaseWeight
		}
	}
	id := dice.Weighted(weights, dice.Roll(m.seed, label+":pick", int(m.rolls)))
	if id == "" {
		return ActiveEvent{}, false
	}
	return m.TriggerEvent(id, scope)
}

// TriggerEvent activates a catalog event directly.
func (m *Engine) TriggerEvent(id string, scope model.Resource) (ActiveEvent, bool) {
	def, ok := m.cats.Events.ByID[id]
	if !ok {
		return ActiveEvent{}, false
	}
	m.eventSeq++
	ev := ActiveEvent{
		Seq:       m.eventSeq,
		ID:        def.ID,
		Trigger:   def.Trigger,
		Effect:    def.Effect,
		Magnitude: def.Magnitude,
		Resource:  model.Resource(def.Resource),
		StartedAt: m.clock.Now(),
	}
	if ev.Resource == "" && def.Trigger == catalogs.TriggerWindow {
		ev.Resource = scope
	}
	if def.Trigger == catalogs.TriggerCycle {
		ev.CyclesRemaining = def.DurationCycles
		if ev.CyclesRemaining <= 0 {
			ev.CyclesRemaining = 1
		}
	} else {
		ev.Duration = time.Duration(def.DurationSeconds) * time.Second
	}
	m.events[ev.Seq] = &ev
	if ev.Duration > 0 {
		m.armEventTimer(ev.Seq, ev.Duration)
	}
	m.bus.Publish(bus.MarketEventTriggered, map[string]any{
		"event":      ev.ID,
		"seq":        ev.Seq,
		"title":      def.Title,
		"effect":     ev.Effect,
		"magnitude":  ev.Magnitude,
		"resource":   string(ev.Resource),
		"duration_s": int(ev.Duration / time.Second),
		"cycles":     ev.CyclesRemaining,
	})
	m.log.Info().Str("event", ev.ID).Str("resource", string(ev.Resource)).Msg("market event triggered")
	m.refreshQuotes("event")
	return ev, true
}

func (m *Engine) armEventTimer(seq uint64, remaining time.Duration) {
	spec := clock.Spec{
		Name:     eventTimerName(seq),
		Group:    m.eventGroup(),
		Kind:     "market_event",
		Subject:  fmt.Sprint(seq),
		Duration: remaining,
		OnExpire: func() { m.expireEvent(seq, "timer") },
	}
	m.timers.Start(spec)
}

func (m *Engine) eventGroup() string {
	if m.group != "" {
		return m.group
	}
	return "market"
}

func eventTimerName(seq uint64) string { return fmt.Sprintf("market:event:%d", seq) }

func (m *Engine) expireEvent(seq uint64, reason string) {
	ev, ok := m.events[seq]
	if !ok {
		return
	}
	delete(m.events, seq)
	m.timers.Cancel(eventTimerName(seq))
	m.bus.Publish(bus.MarketEventExpired, map[string]any{
		"event":    ev.ID,
		"seq":      seq,
		"resource": string(ev.Resource),
		"reason":   reason,
	})
	m.refreshQuotes("event")
}

// EndCycle ages cycle events, expiring those that have run out, then rolls
// a new cycle event.
func (m *Engine) EndCycle(cycle int) {
	for _, seq := range m.eventOrder() {
		ev := m.events[seq]
		if ev.Trigger != catalogs.TriggerCycle {
			continue
		}
		ev.CyclesRemaining--
		if ev.CyclesRemaining <= 0 {
			m.expireEvent(seq, "cycles")
		}
	}
	m.rollEvent(catalogs.TriggerCycle, "")
}

// clearWindowEvents expires every timed event, used when the auction ends.
func (m *Engine) clearWindowEvents() {
	for _, seq := range m.eventOrder() {
		if m.events[seq].Trigger == catalogs.TriggerWindow {
			m.expireEvent(seq, "auction_end")
		}
	}
}

func (m *Engine) eventOrder() []uint64 {
	out := make([]uint64, 0, len(m.events))
	for seq := range m.events {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
