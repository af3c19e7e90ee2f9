// Package model holds the fixed taxonomies shared by every simulation package:
// resources, terrains, construct types and hex coordinates.
package model

import "fmt"

type Resource string

const (
	Mana     Resource = "mana"
	Vitality Resource = "vitality"
	Arcanum  Resource = "arcanum"
	Aether   Resource = "aether"
)

// Resources is the canonical order. Auction windows and snapshots iterate it.
var Resources = [4]Resource{Mana, Vitality, Arcanum, Aether}

func ParseResource(s string) (Resource, error) {
	switch Resource(s) {
	case Mana, Vitality, Arcanum, Aether:
		return Resource(s), nil
	}
	return "", fmt.Errorf("unknown resource %q", s)
}

// Amounts maps a resource to a non-negative quantity.
type Amounts map[Resource]int

func (a Amounts) Total() int {
	n := 0
	for _, v := range a {
		n += v
	}
	return n
}

func (a Amounts) Clone() Amounts {
	out := make(Amounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}
