// Package mapgen lays out the hex board from layered simplex noise.
package mapgen

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/registry"
)

type Config struct {
	Width  int
	Height int
	Seed   int64
	// LeyThreshold is the ley-noise level above which a tile becomes a nexus.
	LeyThreshold float64
}

type Tile struct {
	Hex       model.Hex
	Terrain   model.Terrain
	Elevation float64
	Moisture  float64
	Heat      float64
	Ley       float64
}

// Generate returns Width*Height tiles in row-major order. Rows are laid out
// as odd-r offset and converted to axial coordinates, so the board is a
// rectangle on screen. The same seed always yields the same board.
func Generate(cfg Config) ([]Tile, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("map size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.LeyThreshold <= 0 {
		cfg.LeyThreshold = 0.78
	}
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	moistNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	heatNoise := opensimplex.NewNormalized(cfg.Seed + 2)
	leyNoise := opensimplex.NewNormalized(cfg.Seed + 3)

	tiles := make([]Tile, 0, cfg.Width*cfg.Height)
	for row := 0; row < cfg.Height; row++ {
		for col := 0; col < cfg.Width; col++ {
			h := OffsetToAxial(col, row)
			x := float64(h.Q) + float64(h.R)*0.5
			y := float64(h.R) * math.Sqrt(3.0) / 2.0

			t := Tile{
				Hex:       h,
				Elevation: octaveNoise(elevNoise, x, y, 4, 0.18, 0.5),
				Moisture:  octaveNoise(moistNoise, x, y, 3, 0.15, 0.5),
				Heat:      octaveNoise(heatNoise, x, y, 3, 0.12, 0.5),
				Ley:       octaveNoise(leyNoise, x, y, 2, 0.35, 0.5),
			}
			t.Terrain = deriveTerrain(t, cfg.LeyThreshold)
			tiles = append(tiles, t)
		}
	}
	return tiles, nil
}

// Populate generates the board and registers every tile as an unowned territory.
func Populate(reg *registry.Registry, cfg Config) error {
	tiles, err := Generate(cfg)
	if err != nil {
		return err
	}
	for _, t := range tiles {
		if err := reg.AddTerritory(&registry.Territory{
			ID:      model.TerritoryID(t.Hex),
			Hex:     t.Hex,
			Terrain: t.Terrain,
		}); err != nil {
			return err
		}
	}
	return nil
}

// OffsetToAxial converts odd-r offset coordinates to axial.
func OffsetToAxial(col, row int) model.Hex {
	return model.Hex{Q: col - (row-(row&1))/2, R: row}
}

func deriveTerrain(t Tile, leyThreshold float64) model.Terrain {
	switch {
	case t.Ley >= leyThreshold:
		return model.LeyNexus
	case t.Elevation >= 0.68:
		return model.Mountain
	case t.Moisture >= 0.62 && t.Elevation < 0.4:
		return model.Swamp
	case t.Moisture < 0.38 && t.Heat >= 0.5:
		return model.Desert
	case t.Moisture >= 0.5:
		return model.Forest
	default:
		return model.Plains
	}
}

// octaveNoise sums octaves of normalized noise and rescales to [0,1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxAmp := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxAmp += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxAmp
}
