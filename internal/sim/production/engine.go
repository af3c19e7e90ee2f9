package production

import (
	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

// Multipliers reports the active production multiplier per resource.
type Multipliers interface {
	ProductionMultiplier(r model.Resource) float64
}

type Engine struct {
	reg        *registry.Registry
	bus        *bus.Bus
	cats       *catalogs.Catalogs
	tun        tuning.Production
	basePrices map[string]float64
	mult       Multipliers
	log        zerolog.Logger
}

func New(reg *registry.Registry, b *bus.Bus, cats *catalogs.Catalogs, t tuning.Tuning, logger zerolog.Logger) *Engine {
	return &Engine{
		reg:        reg,
		bus:        b,
		cats:       cats,
		tun:        t.Production,
		basePrices: t.Market.BasePrices,
		log:        logger.With().Str("component", "production").Logger(),
	}
}

// SetMultipliers wires the market's event multipliers. Nil means 1.0 for all.
func (e *Engine) SetMultipliers(m Multipliers) { e.mult = m }

// Interference counts neighbours owned by another player that bear an active
// construct.
func (e *Engine) Interference(territoryID string) int {
	t, ok := e.reg.Territory(territoryID)
	if !ok || t.Owner == "" {
		return 0
	}
	n := 0
	for _, nb := range e.reg.Neighbors(territoryID) {
		if nb.Owner == "" || nb.Owner == t.Owner {
			continue
		}
		if _, active := e.reg.ActiveConstructOn(nb.ID); active {
			n++
		}
	}
	return n
}

// TerritoryOutput is the resource and amount an active construct on
// territoryID yields this cycle.
func (e *Engine) TerritoryOutput(territoryID string) (model.Resource, int, bool) {
	t, ok := e.reg.Territory(territoryID)
	if !ok || t.Owner == "" {
		return "", 0, false
	}
	c, ok := e.reg.ActiveConstructOn(territoryID)
	if !ok {
		return "", 0, false
	}
	res := c.Type.Output()
	mods := e.tun.TerrainModifiers[string(t.Terrain)]
	terrainMod := 1.0
	if m, ok := mods[string(res)]; ok {
		terrainMod = m
	}
	eventMult := 1.0
	if e.mult != nil {
		eventMult = e.mult.ProductionMultiplier(res)
	}
	return res, Output(Inputs{
		Base:            e.tun.Base[string(res)],
		Level:           c.Level,
		TerrainModifier: terrainMod,
		Synergy:         e.cats.IdealTerrain(c.Type) == t.Terrain,
		Interference:    e.Interference(territoryID),
		EventMultiplier: eventMult,
		Efficiency:      c.Efficiency,
	}, e.tun), true
}

// Report is one player's production pass.
type Report struct {
	Produced model.Amounts
	Overflow Overflow
}

// Apply runs production for every owned territory and deposits the output
// through the storage rules. It refreshes each territory's interference map.
func (e *Engine) Apply(cycle int) map[string]Report {
	produced := map[string]model.Amounts{}
	for _, id := range e.reg.TerritoryIDs() {
		e.refreshInterference(id)
		res, amount, ok := e.TerritoryOutput(id)
		if !ok || amount == 0 {
			continue
		}
		t, _ := e.reg.Territory(id)
		if produced[t.Owner] == nil {
			produced[t.Owner] = model.Amounts{}
		}
		produced[t.Owner][res] += amount
	}

	out := map[string]Report{}
	for _, pid := range e.reg.IDs() {
		amounts := produced[pid]
		if len(amounts) == 0 {
			continue
		}
		ov, err := e.Deposit(pid, amounts)
		if err != nil {
			e.log.Error().Err(err).Str("player", pid).Msg("deposit production")
			continue
		}
		out[pid] = Report{Produced: amounts, Overflow: ov}
		e.bus.Publish(bus.ProductionApplied, map[string]any{
			"cycle":    cycle,
			"player":   pid,
			"produced": amountsData(amounts),
		})
	}
	return out
}

func (e *Engine) refreshInterference(territoryID string) {
	t, ok := e.reg.Territory(territoryID)
	if !ok {
		return
	}
	t.Interference = map[string]float64{}
	if t.Owner == "" {
		return
	}
	for _, nb := range e.reg.Neighbors(territoryID) {
		if nb.Owner == "" || nb.Owner == t.Owner {
			continue
		}
		if _, active := e.reg.ActiveConstructOn(nb.ID); active {
			t.Interference[nb.ID] = e.tun.InterferencePenalty
		}
	}
}

// PreservedCapacity is the amount of r shielded from decay.
func (e *Engine) PreservedCapacity(playerID string, r model.Resource) int {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return 0
	}
	return p.PreservationTiers[r] * e.tun.PreservationPerTier
}

// DecayPlayer applies one cycle of decay to a player and returns what was lost.
func (e *Engine) DecayPlayer(playerID string) (model.Amounts, error) {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return nil, fault.Validationf(protocol.ErrBadRequest, "unknown player %s", playerID)
	}
	lost := model.Amounts{}
	for _, r := range model.Resources {
		d := Decay(p.Resources[r], e.PreservedCapacity(playerID, r), e.tun.DecayRates[string(r)])
		lost[r] = d
	}
	for _, r := range model.Resources {
		if lost[r] == 0 {
			continue
		}
		if err := e.reg.RemoveResource(playerID, r, lost[r]); err != nil {
			return nil, err
		}
	}
	return lost, nil
}

// ApplyDecay decays every player and publishes one event per player.
func (e *Engine) ApplyDecay(cycle int) map[string]model.Amounts {
	out := map[string]model.Amounts{}
	for _, pid := range e.reg.IDs() {
		lost, err := e.DecayPlayer(pid)
		if err != nil {
			e.log.Error().Err(err).Str("player", pid).Msg("decay")
			continue
		}
		out[pid] = lost
		p, _ := e.reg.Player(pid)
		e.bus.Publish(bus.ResourcesDecayed, map[string]any{
			"cycle":     cycle,
			"player":    pid,
			"decayed":   amountsData(lost),
			"remaining": amountsData(p.Resources),
		})
	}
	return out
}

func amountsData(a model.Amounts) map[string]int {
	out := make(map[string]int, len(a))
	for _, r := range model.Resources {
		out[string(r)] = a[r]
	}
	return out
}
