package market

import (
	"sort"
	"time"

	"arcanecycles.io/internal/sim/model"
)

// Position is a player's single live order for the open window.
type Position struct {
	Player   string         `json:"player"`
	Resource model.Resource `json:"resource"`
	Side     model.Side     `json:"side"`
	Price    float64        `json:"price"`
	Quantity int            `json:"quantity"`
	At       time.Duration  `json:"at"`
	Seq      uint64         `json:"seq"`
}

// Book holds at most one position per player.
type Book struct {
	positions map[string]*Position
	seq       uint64
}

func NewBook() *Book {
	return &Book{positions: map[string]*Position{}}
}

// Upsert replaces the player's position. A replaced order loses its time
// priority.
func (b *Book) Upsert(p Position) *Position {
	b.seq++
	p.Seq = b.seq
	b.positions[p.Player] = &p
	return &p
}

func (b *Book) Remove(player string) (*Position, bool) {
	p, ok := b.positions[player]
	if ok {
		delete(b.positions, player)
	}
	return p, ok
}

func (b *Book) Get(player string) (*Position, bool) {
	p, ok := b.positions[player]
	return p, ok
}

func (b *Book) Len() int { return len(b.positions) }

func (b *Book) Clear() []*Position {
	out := b.sorted(func(*Position) bool { return true })
	b.positions = map[string]*Position{}
	return out
}

// Buys sorts bids by price descending, then time.
func (b *Book) Buys() []*Position {
	out := b.sorted(func(p *Position) bool { return p.Side == model.Buy })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price > out[j].Price
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Sells sorts asks by price ascending, then time.
func (b *Book) Sells() []*Position {
	out := b.sorted(func(p *Position) bool { return p.Side == model.Sell })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Cross returns the best bid and best ask when the bid meets the ask.
func (b *Book) Cross() (buy, sell *Position, ok bool) {
	buys, sells := b.Buys(), b.Sells()
	if len(buys) == 0 || len(sells) == 0 {
		return nil, nil, false
	}
	if buys[0].Price < sells[0].Price {
		return nil, nil, false
	}
	return buys[0], sells[0], true
}

// OpenQuantity sums the quantity of positions on side.
func (b *Book) OpenQuantity(side model.Side) int {
	n := 0
	for _, p := range b.positions {
		if p.Side == side {
			n += p.Quantity
		}
	}
	return n
}

func (b *Book) sorted(keep func(*Position) bool) []*Position {
	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
