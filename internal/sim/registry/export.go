package registry

import (
	"fmt"
	"sort"

	"arcanecycles.io/internal/sim/model"
)

// Export is a deep copy of every arena, used by snapshots.
type Export struct {
	Players       []Player    `json:"players"`
	Territories   []Territory `json:"territories"`
	Constructs    []Construct `json:"constructs"`
	NextConstruct uint64      `json:"next_construct"`
}

func (r *Registry) Export() Export {
	var e Export
	for _, id := range r.order {
		p := *r.players[id]
		p.Resources = p.Resources.Clone()
		p.StorageLevels = p.StorageLevels.Clone()
		p.PreservationTiers = p.PreservationTiers.Clone()
		p.Territories = append([]string(nil), p.Territories...)
		p.Constructs = append([]string(nil), p.Constructs...)
		e.Players = append(e.Players, p)
	}
	for _, id := range r.TerritoryIDs() {
		t := *r.territories[id]
		t.Improvements = append([]string(nil), t.Improvements...)
		t.Interference = cloneFloats(t.Interference)
		e.Territories = append(e.Territories, t)
	}
	for _, id := range r.ConstructIDs() {
		e.Constructs = append(e.Constructs, *r.constructs[id])
	}
	e.NextConstruct = r.nextConstr
	return e
}

// Import replaces every arena with e after checking referential integrity.
func (r *Registry) Import(e Export) error {
	next := New(r.weights)
	players := append([]Player(nil), e.Players...)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })
	for i := range players {
		p := players[i]
		if p.Gold < 0 {
			return fmt.Errorf("player %s: %w gold", p.ID, ErrNegativeAmount)
		}
		cp := p
		cp.Seat = len(next.order)
		cp.Resources = orEmpty(p.Resources).Clone()
		cp.StorageLevels = orEmpty(p.StorageLevels).Clone()
		cp.PreservationTiers = orEmpty(p.PreservationTiers).Clone()
		for res, n := range cp.Resources {
			if n < 0 {
				return fmt.Errorf("player %s: %w %s", p.ID, ErrNegativeAmount, res)
			}
		}
		cp.Territories = append([]string(nil), p.Territories...)
		cp.Constructs = append([]string(nil), p.Constructs...)
		if _, dup := next.players[cp.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePlayer, cp.ID)
		}
		next.players[cp.ID] = &cp
		next.order = append(next.order, cp.ID)
	}
	for i := range e.Territories {
		t := e.Territories[i]
		t.Interference = cloneFloats(t.Interference)
		t.Improvements = append([]string(nil), t.Improvements...)
		if t.Owner != "" {
			if _, ok := next.players[t.Owner]; !ok {
				return fmt.Errorf("territory %s: %w %s", t.ID, ErrUnknownPlayer, t.Owner)
			}
		}
		if err := next.AddTerritory(&t); err != nil {
			return err
		}
	}
	for i := range e.Constructs {
		c := e.Constructs[i]
		if _, ok := next.players[c.Owner]; !ok {
			return fmt.Errorf("construct %s: %w %s", c.ID, ErrUnknownPlayer, c.Owner)
		}
		if c.Territory != "" {
			t, ok := next.territories[c.Territory]
			if !ok {
				return fmt.Errorf("construct %s: %w %s", c.ID, ErrUnknownTerritory, c.Territory)
			}
			if t.Construct != c.ID {
				return fmt.Errorf("construct %s: territory %s bears %q", c.ID, t.ID, t.Construct)
			}
		}
		next.constructs[c.ID] = &c
	}
	next.nextConstr = e.NextConstruct
	*r = *next
	return nil
}

func orEmpty(a model.Amounts) model.Amounts {
	if a == nil {
		return model.Amounts{}
	}
	return a
}

func cloneFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
