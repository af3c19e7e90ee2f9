// Package dice provides the seeded, replayable rolls used by installation
// outcomes and market events. A roll depends only on its inputs, so a game
// replayed from a snapshot rolls the same results.
package dice

import (
	"hash/fnv"
	"sort"
)

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Roll hashes a seed, a label and a counter into a uniform uint64.
func Roll(seed int64, label string, n int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(label))
	un := uint64(uint32(int32(n)))
	return mix64(uint64(seed) ^ h.Sum64() ^ (un * 0xc2b2ae3d27d4eb4f))
}

// Chance maps a roll to [0,1).
func Chance(roll uint64) float64 {
	return float64(roll%1_000_000_000) / 1_000_000_000.0
}

// Weighted picks an id with probability proportional to its weight. Ids are
// visited in sorted order so the pick is stable for a given roll.
func Weighted(weights map[string]float64, roll uint64) string {
	if len(weights) == 0 {
		return ""
	}
	ids := make([]string, 0, len(weights))
	var total float64
	for id, w := range weights {
		if w > 0 {
			ids = append(ids, id)
			total += w
		}
	}
	if total <= 0 || len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)

	target := Chance(roll) * total
	var acc float64
	for _, id := range ids {
		acc += weights[id]
		if target < acc {
			return id
		}
	}
	return ids[len(ids)-1]
}
