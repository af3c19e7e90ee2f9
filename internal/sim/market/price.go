package market

import "time"

// PriceInputs are the terms of the quote formula for one resource.
type PriceInputs struct {
	Base        float64
	Demand      float64
	Supply      float64
	Equilibrium float64
	Volatility  float64
	Min, Max    float64
}

// Quote is base * (1 + ((demand-supply)/equilibrium) * volatility), clamped
// to [Min, Max].
func Quote(in PriceInputs) float64 {
	p := in.Base
	if in.Equilibrium > 0 {
		p = in.Base * (1 + ((in.Demand-in.Supply)/in.Equilibrium)*in.Volatility)
	}
	return clamp(p, in.Min, in.Max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > lo && v > hi {
		return hi
	}
	return v
}

type PricePoint struct {
	At     time.Duration `json:"at"`
	Price  float64       `json:"price"`
	Source string        `json:"source"` // quote | trade
}

// History is a bounded ring of price points, oldest first.
type History struct {
	Limit  int          `json:"limit"`
	Points []PricePoint `json:"points"`
}

func (h *History) Add(p PricePoint) {
	h.Points = append(h.Points, p)
	if h.Limit > 0 && len(h.Points) > h.Limit {
		h.Points = append([]PricePoint(nil), h.Points[len(h.Points)-h.Limit:]...)
	}
}

func (h *History) Last() (PricePoint, bool) {
	if len(h.Points) == 0 {
		return PricePoint{}, false
	}
	return h.Points[len(h.Points)-1], true
}
