// Package territory runs the claim phase: free claims, dispute resolution and
// paid territory auctions for claims beyond a player's free allotment.
package territory

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

// Gate is the turn check every claim passes through.
type Gate interface {
	CanAct(player, action string) error
}

type Bid struct {
	Player string `json:"player"`
	Amount int    `json:"amount"`
	Seq    uint64 `json:"seq"`
}

type Outcome struct {
	Territory string `json:"territory"`
	Paid      bool   `json:"paid"`
	Bid       int    `json:"bid,omitempty"`
	Disputed  bool   `json:"disputed"`
}

type Award struct {
	Territory string   `json:"territory"`
	Winner    string   `json:"winner"`
	Losers    []string `json:"losers,omitempty"`
	Paid      int      `json:"paid,omitempty"`
}

type Acquisition struct {
	reg  *registry.Registry
	bus  *bus.Bus
	gate Gate
	tun  tuning.Territory
	log  zerolog.Logger

	cycle      int
	open       bool
	resolved   bool
	freeClaims map[string]int
	claims     map[string][]string
	bids       map[string][]Bid
	bidSeq     uint64
}

func New(reg *registry.Registry, b *bus.Bus, gate Gate, t tuning.Territory, logger zerolog.Logger) *Acquisition {
	return &Acquisition{
		reg:        reg,
		bus:        b,
		gate:       gate,
		tun:        t,
		log:        logger.With().Str("component", "territory").Logger(),
		freeClaims: map[string]int{},
		claims:     map[string][]string{},
		bids:       map[string][]Bid{},
	}
}

// Open starts the claim phase of cycle: free claims reset and the claim and
// bid books are emptied.
func (a *Acquisition) Open(cycle int) {
	a.cycle = cycle
	a.open = true
	a.resolved = false
	a.claims = map[string][]string{}
	a.bids = map[string][]Bid{}
	a.freeClaims = map[string]int{}
	for _, id := range a.reg.IDs() {
		a.freeClaims[id] = a.tun.FreeClaimsPerCycle
	}
}

func (a *Acquisition) IsOpen() bool { return a.open }

func (a *Acquisition) FreeClaims(player string) int { return a.freeClaims[player] }

// Claimants returns the ordered claimants of a territory.
func (a *Acquisition) Claimants(territoryID string) []string {
	return append([]string(nil), a.claims[territoryID]...)
}

// Disputed lists territories with two or more claimants.
func (a *Acquisition) Disputed() []string {
	var out []string
	for id, c := range a.claims {
		if len(c) > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// MinimumBid is desirability * (1 + (cycle-1) * growth), rounded up.
func (a *Acquisition) MinimumBid(territoryID string) int {
	t, ok := a.reg.Territory(territoryID)
	if !ok {
		return 0
	}
	d := a.tun.Desirability[string(t.Terrain)]
	cycle := a.cycle
	if cycle < 1 {
		cycle = 1
	}
	return int(math.Ceil(d*(1+float64(cycle-1)*a.tun.CycleBidGrowth) - 1e-9))
}

// AttemptClaim records a free claim, or a paid bid once free claims are spent.
// Nothing is granted until ResolveDisputes.
func (a *Acquisition) AttemptClaim(player, territoryID string, bid int) (Outcome, error) {
	if !a.open {
		return Outcome{}, fault.Actionf(protocol.ErrNoPermission, "claims are only accepted during territory selection")
	}
	if a.gate != nil {
		if err := a.gate.CanAct(player, protocol.ActionClaimTerritory); err != nil {
			return Outcome{}, err
		}
	}
	t, ok := a.reg.Territory(territoryID)
	if !ok {
		return Outcome{}, fault.Validationf(protocol.ErrInvalidTarget, "unknown territory %s", territoryID)
	}
	if t.Owner != "" {
		return Outcome{}, fault.Actionf(protocol.ErrConflict, "territory %s is owned by %s", territoryID, t.Owner)
	}
	if a.hasClaimed(player, territoryID) {
		return Outcome{}, fault.Actionf(protocol.ErrConflict, "%s already claimed %s", player, territoryID)
	}

	if a.freeClaims[player] > 0 {
		a.freeClaims[player]--
		a.claims[territoryID] = append(a.claims[territoryID], player)
		out := Outcome{Territory: territoryID, Disputed: len(a.claims[territoryID]) > 1}
		if out.Disputed {
			a.bus.Publish(bus.TerritoryDisputed, map[string]any{
				"territory": territoryID,
				"claimants": a.Claimants(territoryID),
			})
		}
		return out, nil
	}

	minBid := a.MinimumBid(territoryID)
	if bid < minBid {
		return Outcome{}, fault.Validationf(protocol.ErrBadRequest, "bid %d below minimum %d for %s", bid, minBid, territoryID)
	}
	if !a.reg.CanAfford(player, bid) {
		return Outcome{}, fault.Resourcef("%s cannot afford bid %d", player, bid)
	}
	a.bidSeq++
	a.bids[territoryID] = append(a.bids[territoryID], Bid{Player: player, Amount: bid, Seq: a.bidSeq})
	a.bus.Publish(bus.TerritoryBidPlaced, map[string]any{
		"territory": territoryID,
		"player":    player,
		"bid":       bid,
		"minimum":   minBid,
	})
	return Outcome{Territory: territoryID, Paid: true, Bid: bid}, nil
}

func (a *Acquisition) hasClaimed(player, territoryID string) bool {
	for _, p := range a.claims[territoryID] {
		if p == player {
			return true
		}
	}
	for _, b := range a.bids[territoryID] {
		if b.Player == player {
			return true
		}
	}
	return false
}

// ResolveDisputes settles the claim phase exactly once. Free claims are decided
// first; paid auctions then run on whatever is still unowned. A second call
// in the same phase is a no-op.
func (a *Acquisition) ResolveDisputes() []Award {
	if a.resolved {
		return nil
	}
	a.resolved = true
	a.open = false

	var awards []Award
	for _, id := range sortedKeys(a.claims) {
		claimants := a.claims[id]
		winner := a.reg.Poorest(claimants)
		if err := a.reg.AssignTerritory(id, winner); err != nil {
			a.log.Error().Err(err).Str("territory", id).Msg("award claim")
			continue
		}
		award := Award{Territory: id, Winner: winner}
		for _, p := range claimants {
			if p != winner {
				award.Losers = append(award.Losers, p)
			}
		}
		awards = append(awards, award)
		a.bus.Publish(bus.TerritoryClaimed, map[string]any{"territory": id, "player": winner, "via": "claim"})
		if len(claimants) > 1 {
			a.bus.Publish(bus.DisputeResolved, map[string]any{
				"territory": id,
				"winner":    winner,
				"losers":    award.Losers,
			})
		}
	}
	a.claims = map[string][]string{}

	for _, id := range sortedBidKeys(a.bids) {
		if award, ok := a.resolveAuction(id); ok {
			awards = append(awards, award)
		}
	}
	a.bids = map[string][]Bid{}
	return awards
}

func (a *Acquisition) resolveAuction(territoryID string) (Award, bool) {
	t, ok := a.reg.Territory(territoryID)
	bids := append([]Bid(nil), a.bids[territoryID]...)
	if !ok || len(bids) == 0 {
		return Award{}, false
	}
	bidders := make([]string, 0, len(bids))
	for _, b := range bids {
		bidders = append(bidders, b.Player)
	}
	if t.Owner != "" {
		a.bus.Publish(bus.TerritoryAuctionResolved, map[string]any{"territory": territoryID, "winner": "", "bidders": bidders, "reason": "claimed"})
		return Award{}, false
	}
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount > bids[j].Amount
		}
		if bids[i].Seq != bids[j].Seq {
			return bids[i].Seq < bids[j].Seq
		}
		pi, _ := a.reg.Player(bids[i].Player)
		pj, _ := a.reg.Player(bids[j].Player)
		return pi.Seat < pj.Seat
	})
	for _, b := range bids {
		if err := a.reg.DebitGold(b.Player, b.Amount); err != nil {
			continue
		}
		if err := a.reg.AssignTerritory(territoryID, b.Player); err != nil {
			// Refund so a failed assignment never costs gold.
			_ = a.reg.CreditGold(b.Player, b.Amount)
			a.log.Error().Err(err).Str("territory", territoryID).Msg("award auction")
			return Award{}, false
		}
		award := Award{Territory: territoryID, Winner: b.Player, Paid: b.Amount}
		for _, p := range bidders {
			if p != b.Player {
				award.Losers = append(award.Losers, p)
			}
		}
		a.bus.Publish(bus.TerritoryClaimed, map[string]any{"territory": territoryID, "player": b.Player, "via": "auction", "paid": b.Amount})
		a.bus.Publish(bus.TerritoryAuctionResolved, map[string]any{"territory": territoryID, "winner": b.Player, "paid": b.Amount, "bidders": bidders})
		return award, true
	}
	a.bus.Publish(bus.TerritoryAuctionResolved, map[string]any{"territory": territoryID, "winner": "", "bidders": bidders, "reason": "unaffordable"})
	return Award{}, false
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedBidKeys(m map[string][]Bid) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
