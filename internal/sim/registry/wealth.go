package registry

import "sort"

// Wealth is gold + territories*TerritoryValue + sum(level)*ConstructLevelValue
// + sum(resources)*ResourceValue. Unknown players have zero wealth.
func (r *Registry) Wealth(id string) int {
	p, ok := r.players[id]
	if !ok {
		return 0
	}
	w := p.Gold
	w += len(p.Territories) * r.weights.TerritoryValue
	for _, cid := range p.Constructs {
		if c, ok := r.constructs[cid]; ok {
			w += c.Level * r.weights.ConstructLevelValue
		}
	}
	w += p.Resources.Total() * r.weights.ResourceValue
	return w
}

// ByWealth orders ids poorest first, breaking ties by seat.
func (r *Registry) ByWealth(ids []string) []string {
	out := append([]string(nil), ids...)
	wealth := make(map[string]int, len(out))
	for _, id := range out {
		wealth[id] = r.Wealth(id)
	}
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := wealth[out[i]], wealth[out[j]]
		if wi != wj {
			return wi < wj
		}
		return r.seat(out[i]) < r.seat(out[j])
	})
	return out
}

// Poorest returns the poorest of ids under the same order as ByWealth.
func (r *Registry) Poorest(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return r.ByWealth(ids)[0]
}

type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Wealth   int    `json:"wealth"`
}

// Standings ranks every player richest first; ties go to the lower seat.
func (r *Registry) Standings() []Standing {
	ids := r.IDs()
	sort.SliceStable(ids, func(i, j int) bool {
		wi, wj := r.Wealth(ids[i]), r.Wealth(ids[j])
		if wi != wj {
			return wi > wj
		}
		return r.seat(ids[i]) < r.seat(ids[j])
	})
	out := make([]Standing, 0, len(ids))
	for i, id := range ids {
		out = append(out, Standing{Rank: i + 1, PlayerID: id, Name: r.players[id].Name, Wealth: r.Wealth(id)})
	}
	return out
}

func (r *Registry) seat(id string) int {
	if p, ok := r.players[id]; ok {
		return p.Seat
	}
	return len(r.order)
}
