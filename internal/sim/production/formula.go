// Package production computes construct output, per-cycle decay and the
// storage rules that bound what a player can hold.
package production

import (
	"math"

	"arcanecycles.io/internal/sim/tuning"
)

// Inputs are the per-territory terms of the production formula.
type Inputs struct {
	Base            float64
	Level           int
	TerrainModifier float64
	Synergy         bool
	Interference    int
	EventMultiplier float64
	Efficiency      float64
}

// Output evaluates
//
//	base * (1 + (level-1)*levelBonus) * terrainMod * synergy
//	     * (1 - interference*penalty) * eventMultiplier * efficiency
//
// floored to an integer. The interference factor never drops below zero.
func Output(in Inputs, p tuning.Production) int {
	if in.Level < 1 {
		in.Level = 1
	}
	v := in.Base
	v *= 1 + float64(in.Level-1)*p.LevelBonus
	v *= in.TerrainModifier
	if in.Synergy {
		v *= p.SynergyBonus
	}
	interference := 1 - float64(in.Interference)*p.InterferencePenalty
	if interference < 0 {
		interference = 0
	}
	v *= interference
	v *= in.EventMultiplier
	v *= in.Efficiency
	if v <= 0 {
		return 0
	}
	// Absorb float error so 12*1.25 stays 15 rather than 14.
	return int(math.Floor(v + 1e-9))
}

// Decay returns floor(max(0, amount-preserved) * rate).
func Decay(amount, preserved int, rate float64) int {
	exposed := amount - preserved
	if exposed <= 0 || rate <= 0 {
		return 0
	}
	d := int(math.Floor(float64(exposed)*rate + 1e-9))
	if d > amount {
		d = amount
	}
	return d
}
