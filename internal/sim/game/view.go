package game

import (
	"time"

	"arcanecycles.io/internal/sim/market"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/registry"
)

type PlayerView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Seat        int           `json:"seat"`
	Gold        int           `json:"gold"`
	Wealth      int           `json:"wealth"`
	Resources   model.Amounts `json:"resources"`
	Territories []string      `json:"territories"`
	Constructs  []string      `json:"constructs"`
	TimeBankS   int           `json:"time_bank_s"`
}

// View is a read-only summary for transports and runners.
type View struct {
	GameID       string                     `json:"game_id"`
	Cycle        int                        `json:"cycle"`
	MaxCycles    int                        `json:"max_cycles"`
	Phase        string                     `json:"phase"`
	PhaseLeftS   int                        `json:"phase_left_s,omitempty"`
	Paused       bool                       `json:"paused"`
	Fault        string                     `json:"fault,omitempty"`
	TurnHolder   string                     `json:"turn_holder,omitempty"`
	TurnOrder    []string                   `json:"turn_order,omitempty"`
	AuctionFor   model.Resource             `json:"auction_for,omitempty"`
	Quotes       map[model.Resource]float64 `json:"quotes"`
	Events       []market.ActiveEvent       `json:"market_events,omitempty"`
	Players      []PlayerView               `json:"players"`
	Standings    []registry.Standing        `json:"standings,omitempty"`
	ClockSeconds int64                      `json:"clock_s"`
}

func (g *Game) View() View {
	v := View{
		GameID:       g.id,
		Cycle:        g.Cycle(),
		MaxCycles:    g.tun.MaxCycles,
		Phase:        g.Phase(),
		Paused:       g.paused,
		TurnHolder:   g.seq.Current(),
		AuctionFor:   g.market.Current(),
		Quotes:       g.market.Quotes(),
		Events:       g.market.Events(),
		Standings:    g.Standings(),
		ClockSeconds: int64(g.clock.Now() / time.Second),
	}
	if g.seq.Active() {
		v.TurnOrder = g.seq.Order()
	}
	if rem, ok := g.phases.PhaseRemaining(); ok {
		v.PhaseLeftS = int(rem / time.Second)
	}
	if g.fault != nil {
		v.Fault = g.fault.Error()
	}
	for _, id := range g.reg.IDs() {
		p, _ := g.reg.Player(id)
		v.Players = append(v.Players, PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Seat:        p.Seat,
			Gold:        p.Gold,
			Wealth:      g.reg.Wealth(id),
			Resources:   p.Resources.Clone(),
			Territories: append([]string(nil), p.Territories...),
			Constructs:  append([]string(nil), p.Constructs...),
			TimeBankS:   int(g.bank.Balance(id) / time.Second),
		})
	}
	return v
}
