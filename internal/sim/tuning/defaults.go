package tuning

// Defaults mirrors configs/tuning.yaml. Tests build games from it directly.
func Defaults() Tuning {
	return Tuning{
		MapWidth:     8,
		MapHeight:    6,
		MaxCycles:    10,
		StartingGold: 1000,
		AutoSave:     false,
		Seed:         1337,

		Storage: Storage{Backend: "file", Path: "./data/saves", Codec: "zstd"},

		Phases: map[string]PhaseConfig{
			"territory_selection": {AllowsPlayerActions: true, AutoAdvance: true, TimeLimitSeconds: 180},
			"outfitting":          {AllowsPlayerActions: true, AutoAdvance: true, TimeLimitSeconds: 240},
			"production":          {AllowsPlayerActions: false, AutoAdvance: true, TimeLimitSeconds: 5},
			"resource_auction":    {AllowsPlayerActions: true, AutoAdvance: false, TimeLimitSeconds: 0},
			"end_of_cycle":        {AllowsPlayerActions: false, AutoAdvance: true, TimeLimitSeconds: 5},
		},

		Turns: Turns{
			TurnSeconds:        60,
			PenaltyTurnSeconds: 15,
			TimeBankSeconds:    180,
			WarningSeconds:     []int{30, 10},
			ClaimActions:       2,
		},

		Territory: Territory{
			FreeClaimsPerCycle: 1,
			CycleBidGrowth:     0.1,
			Desirability: map[string]float64{
				"plains":    60,
				"forest":    80,
				"mountain":  90,
				"swamp":     50,
				"desert":    40,
				"ley_nexus": 150,
			},
		},

		Constructs: Constructs{
			Cost: map[string]int{
				"mana_well":    150,
				"life_grove":   120,
				"arcane_forge": 220,
				"aether_spire": 180,
			},
			UpgradeBaseCost: 200,
			RepairCost:      80,
		},

		Production: Production{
			Base: map[string]float64{
				"mana":     10,
				"vitality": 12,
				"arcanum":  4,
				"aether":   6,
			},
			LevelBonus:          0.5,
			SynergyBonus:        1.5,
			InterferencePenalty: 0.05,
			TerrainModifiers: map[string]map[string]float64{
				"plains":    {"mana": 1.0, "vitality": 1.2, "arcanum": 0.9, "aether": 1.0},
				"forest":    {"mana": 1.1, "vitality": 1.3, "arcanum": 0.8, "aether": 0.9},
				"mountain":  {"mana": 0.9, "vitality": 0.7, "arcanum": 1.3, "aether": 1.1},
				"swamp":     {"mana": 1.2, "vitality": 1.0, "arcanum": 1.0, "aether": 0.8},
				"desert":    {"mana": 0.8, "vitality": 0.6, "arcanum": 1.1, "aether": 1.3},
				"ley_nexus": {"mana": 1.4, "vitality": 1.0, "arcanum": 1.2, "aether": 1.4},
			},
			DecayRates: map[string]float64{
				"mana":     0.20,
				"vitality": 0.50,
				"arcanum":  0.0,
				"aether":   0.10,
			},
			PreservationPerTier:    25,
			PreservationBaseCost:   100,
			StorageBaseCapacity:    200,
			StoragePerLevel:        100,
			StorageUpgradeBaseCost: 150,
			OverflowGoldRate:       0.5,
		},

		Market: Market{
			BasePrices: map[string]float64{
				"mana":     40,
				"vitality": 30,
				"arcanum":  90,
				"aether":   60,
			},
			Volatility: map[string]float64{
				"mana":     0.3,
				"vitality": 0.4,
				"arcanum":  0.2,
				"aether":   0.3,
			},
			Equilibrium: map[string]float64{
				"mana":     400,
				"vitality": 400,
				"arcanum":  200,
				"aether":   300,
			},
			BaselineDemand: map[string]float64{
				"mana":     40,
				"vitality": 40,
				"arcanum":  20,
				"aether":   30,
			},
			MinPrice:          10,
			MaxPrice:          500,
			WindowSeconds:     90,
			TransitionSeconds: 5,
			EventChance:       0.18,
			HistoryLength:     64,
		},

		Wealth: Wealth{
			TerritoryValue:      50,
			ConstructLevelValue: 75,
			ResourceValue:       2,
		},
	}
}
