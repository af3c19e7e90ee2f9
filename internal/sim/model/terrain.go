package model

import "fmt"

type Terrain string

const (
	Plains   Terrain = "plains"
	Forest   Terrain = "forest"
	Mountain Terrain = "mountain"
	Swamp    Terrain = "swamp"
	Desert   Terrain = "desert"
	LeyNexus Terrain = "ley_nexus"
)

var Terrains = [6]Terrain{Plains, Forest, Mountain, Swamp, Desert, LeyNexus}

func ParseTerrain(s string) (Terrain, error) {
	for _, t := range Terrains {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown terrain %q", s)
}

// Hex is an axial hex coordinate. The third cube coordinate s is -q-r.
type Hex struct {
	Q int `json:"q"`
	R int `json:"r"`
}

func (h Hex) S() int { return -h.Q - h.R }

var hexDirections = [6]Hex{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent coordinates.
func (h Hex) Neighbors() [6]Hex {
	var out [6]Hex
	for i, d := range hexDirections {
		out[i] = Hex{Q: h.Q + d.Q, R: h.R + d.R}
	}
	return out
}

// HexDistance returns the hex distance between two coordinates.
func HexDistance(a, b Hex) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	m := dq
	if dr > m {
		m = dr
	}
	if ds > m {
		m = ds
	}
	return m
}

// TerritoryID is the canonical id for the territory at h.
func TerritoryID(h Hex) string { return fmt.Sprintf("T%d_%d", h.Q, h.R) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
