// Package bots holds scripted players. A bot reads the game directly and
// submits actions through the same entry point transports use.
package bots

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/game"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/phase"
)

// maxActionsPerTurn stops a bot from spinning on repeated rejections.
const maxActionsPerTurn = 12

type Bot struct {
	ID  string
	rng *rand.Rand
	log zerolog.Logger

	turnKey string
	actions int
	traded  map[model.Resource]bool
}

func New(id string, seed int64, logger zerolog.Logger) *Bot {
	return &Bot{
		ID:     id,
		rng:    rand.New(rand.NewSource(seed)),
		log:    logger.With().Str("component", "bot").Str("player", id).Logger(),
		traded: map[model.Resource]bool{},
	}
}

// Step performs at most one action and reports whether it did.
func (b *Bot) Step(g *game.Game) bool {
	if g.Ended() || g.Paused() {
		return false
	}
	key := fmt.Sprintf("%d:%s", g.Cycle(), g.Phase())
	if key != b.turnKey {
		b.turnKey, b.actions = key, 0
		b.traded = map[model.Resource]bool{}
	}
	var mine bool
	switch g.Phase() {
	case phase.TerritorySelection, phase.Outfitting:
		mine = g.Turns().Current() == b.ID
	case phase.ResourceAuction:
		mine = g.Turns().CanAct(b.ID, protocol.ActionSubmitPosition) == nil
	}
	if !mine {
		return false
	}
	if b.actions >= maxActionsPerTurn {
		return b.endTurn(g)
	}

	switch g.Phase() {
	case phase.TerritorySelection:
		return b.claim(g)
	case phase.Outfitting:
		return b.outfit(g)
	default:
		return b.trade(g)
	}
}

func (b *Bot) do(g *game.Game, a protocol.Action) bool {
	b.actions++
	res := g.ExecutePlayerAction(b.ID, a)
	if !res.OK {
		b.log.Debug().Str("action", a.Type).Str("code", res.Code).Str("msg", res.Message).Msg("rejected")
	}
	return res.OK
}

func (b *Bot) endTurn(g *game.Game) bool {
	b.do(g, protocol.Action{Type: protocol.ActionEndTurn})
	// Either the turn passed or the action budget is exhausted; both count as
	// progress for the driver.
	return true
}

func (b *Bot) claim(g *game.Game) bool {
	p, _ := g.Registry().Player(b.ID)
	acq := g.Territory()
	var best string
	bestScore := math.Inf(-1)
	for _, id := range g.Registry().TerritoryIDs() {
		t, _ := g.Registry().Territory(id)
		if t.Owner != "" || contains(acq.Claimants(id), b.ID) {
			continue
		}
		score := b.terrainValue(g, t.Terrain) + b.rng.Float64()
		if acq.FreeClaims(b.ID) == 0 {
			min := acq.MinimumBid(id)
			if min*3 > p.Gold {
				continue
			}
			score -= float64(min) / 100
		}
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	if best == "" {
		return b.endTurn(g)
	}
	a := protocol.Action{Type: protocol.ActionClaimTerritory, Target: best}
	if acq.FreeClaims(b.ID) == 0 {
		a.Params.Bid = acq.MinimumBid(best)
	}
	if !b.do(g, a) {
		return b.endTurn(g)
	}
	return true
}

// terrainValue favours terrain that suits some construct type.
func (b *Bot) terrainValue(g *game.Game, t model.Terrain) float64 {
	for _, ct := range model.ConstructTypes {
		if g.Catalogs().IdealTerrain(ct) == t {
			return 2
		}
	}
	return 0
}

func (b *Bot) outfit(g *game.Game) bool {
	p, _ := g.Registry().Player(b.ID)
	cons := g.Constructs()

	for _, cid := range p.Constructs {
		c, _ := g.Registry().Construct(cid)
		if c.Status == model.StatusDamaged && p.Gold >= g.Tuning().Constructs.RepairCost*2 {
			if b.do(g, protocol.Action{Type: protocol.ActionRepairConstruct, Target: cid}) {
				return true
			}
		}
	}

	var inventory string
	for _, cid := range p.Constructs {
		if c, _ := g.Registry().Construct(cid); c.Status == model.StatusInventory {
			inventory = cid
			break
		}
	}
	for _, tid := range p.Territories {
		t, _ := g.Registry().Territory(tid)
		if t.Construct != "" {
			continue
		}
		if inventory != "" {
			return b.do(g, protocol.Action{
				Type:   protocol.ActionInstallConstruct,
				Target: tid,
				Params: protocol.ActionParams{ConstructID: inventory},
			}) || b.endTurn(g)
		}
		ct := b.constructFor(g, t.Terrain)
		if cost := cons.Cost(ct); cost > 0 && p.Gold >= cost*2 {
			return b.do(g, protocol.Action{
				Type:   protocol.ActionPurchaseConstruct,
				Params: protocol.ActionParams{ConstructType: string(ct)},
			}) || b.endTurn(g)
		}
		break
	}

	for _, r := range model.Resources {
		if p.Resources[r] > 0 && p.Resources[r]*4 >= g.Production().Capacity(b.ID, r)*3 {
			if cost := g.Production().StorageUpgradeCost(b.ID, r); cost > 0 && p.Gold >= cost*3 {
				if b.do(g, protocol.Action{Type: protocol.ActionUpgradeStorage, Target: string(r)}) {
					return true
				}
			}
		}
	}
	return b.endTurn(g)
}

func (b *Bot) constructFor(g *game.Game, t model.Terrain) model.ConstructType {
	for _, ct := range model.ConstructTypes {
		if g.Catalogs().IdealTerrain(ct) == t {
			return ct
		}
	}
	return model.ConstructTypes[b.rng.Intn(len(model.ConstructTypes))]
}

// trade posts one position per resource window and ends the turn once every
// resource has had a window.
func (b *Bot) trade(g *game.Game) bool {
	m := g.Market()
	r := m.Current()
	if r == "" || b.traded[r] {
		if len(b.traded) == len(model.Resources) {
			return b.endTurn(g)
		}
		return false
	}
	if _, ok := m.Book().Get(b.ID); ok {
		return false
	}
	b.traded[r] = true

	p, _ := g.Registry().Player(b.ID)
	quote := m.Quote(r)
	if quote <= 0 {
		return false
	}
	var pos protocol.ActionParams
	switch {
	case p.Resources[r] > 0:
		qty := (p.Resources[r] + 1) / 2
		pos = protocol.ActionParams{Side: string(model.Sell), Price: round2(quote * (0.9 + 0.1*b.rng.Float64())), Quantity: qty}
	case float64(p.Gold) > quote*6:
		pos = protocol.ActionParams{Side: string(model.Buy), Price: round2(quote * (1 + 0.1*b.rng.Float64())), Quantity: 2}
	default:
		return true
	}
	pos.Resource = string(r)
	b.do(g, protocol.Action{Type: protocol.ActionSubmitPosition, Params: pos})
	return true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Drive plays g to the end with bots, advancing the virtual clock one second
// whenever no bot acts. It stops after limit virtual time and reports whether
// the game ended.
func Drive(g *game.Game, bots []*Bot, limit time.Duration) bool {
	var elapsed time.Duration
	for !g.Ended() && elapsed < limit {
		if g.Paused() {
			return false
		}
		for round := 0; round < 64; round++ {
			acted := false
			for _, b := range bots {
				if b.Step(g) {
					acted = true
				}
			}
			if !acted {
				break
			}
		}
		g.Advance(time.Second)
		elapsed += time.Second
	}
	return g.Ended()
}
