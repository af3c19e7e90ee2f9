package catalogs

import "arcanecycles.io/internal/sim/model"

// Defaults mirrors the files under configs/. Tests build games from it directly.
func Defaults() *Catalogs {
	c := &Catalogs{
		Constructs: ConstructCatalog{Defs: []ConstructDef{
			{Type: string(model.ManaWell), Name: "Mana Well", IdealTerrain: string(model.Swamp), Description: "Draws raw mana from stagnant ley pools."},
			{Type: string(model.LifeGrove), Name: "Life Grove", IdealTerrain: string(model.Forest), Description: "Cultivates vitality from old growth."},
			{Type: string(model.ArcaneForge), Name: "Arcane Forge", IdealTerrain: string(model.Mountain), Description: "Smelts arcanum out of deep ore."},
			{Type: string(model.AetherSpire), Name: "Aether Spire", IdealTerrain: string(model.Desert), Description: "Condenses aether from open sky."},
		}},
		Install: InstallTable{
			Outcomes: []InstallOutcome{
				{ID: "critical_success", Weight: 10, Result: InstallActive, Efficiency: 1.25},
				{ID: "success", Weight: 60, Result: InstallActive, Efficiency: 1.0},
				{ID: "partial", Weight: 20, Result: InstallActive, Efficiency: 0.75},
				{ID: "failure", Weight: 7, Result: InstallInventory, Efficiency: 0},
				{ID: "critical_failure", Weight: 3, Result: InstallDamaged, Efficiency: 0},
			},
			FirstCycleExcluded: []string{"critical_failure"},
		},
	}
	_ = indexConstructs(&c.Constructs)

	events := []EventDef{
		{ID: "ARCANE_BOOM", Title: "Arcane Boom", Description: "Collectors bid up every lot.", Trigger: TriggerWindow, BaseWeight: 1.0, Effect: EffectPriceMultiplier, Magnitude: 1.3, DurationSeconds: 45},
		{ID: "MARKET_CRASH", Title: "Market Crash", Description: "A rumour of surplus tanks prices.", Trigger: TriggerWindow, BaseWeight: 0.8, Effect: EffectPriceMultiplier, Magnitude: 0.7, DurationSeconds: 45},
		{ID: "VOLATILE_WINDS", Title: "Volatile Winds", Description: "Prices swing harder on every imbalance.", Trigger: TriggerWindow, BaseWeight: 1.0, Effect: EffectVolatility, Magnitude: 0.3, DurationSeconds: 60},
		{ID: "GUILD_BUYOUT", Title: "Guild Buyout", Description: "The guild sweeps the book.", Trigger: TriggerWindow, BaseWeight: 0.7, Effect: EffectPricePush, Magnitude: 25, DurationSeconds: 40},
		{ID: "DUMPING_SPREE", Title: "Dumping Spree", Description: "Hoarders unload their stock.", Trigger: TriggerWindow, BaseWeight: 0.7, Effect: EffectPricePush, Magnitude: -20, DurationSeconds: 40},
		{ID: "BROKER_LEVY", Title: "Broker Levy", Description: "Buyers pay a brokerage surcharge.", Trigger: TriggerWindow, BaseWeight: 0.6, Effect: EffectBuyerSkew, Magnitude: 1.1, DurationSeconds: 60},
		{ID: "SELLERS_BOUNTY", Title: "Seller's Bounty", Description: "The crown tops up every sale.", Trigger: TriggerWindow, BaseWeight: 0.6, Effect: EffectSellerSkew, Magnitude: 1.1, DurationSeconds: 60},
		{ID: "LEY_RESONANCE", Title: "Ley Resonance", Description: "Mana wells run hot next cycle.", Trigger: TriggerCycle, BaseWeight: 1.0, Effect: EffectProductionMultiplier, Magnitude: 1.25, Resource: string(model.Mana), DurationCycles: 1},
		{ID: "BLIGHT", Title: "Blight", Description: "Groves wither for a cycle.", Trigger: TriggerCycle, BaseWeight: 0.8, Effect: EffectProductionMultiplier, Magnitude: 0.8, Resource: string(model.Vitality), DurationCycles: 1},
		{ID: "AETHER_STORM", Title: "Aether Storm", Description: "Spires overflow for two cycles.", Trigger: TriggerCycle, BaseWeight: 0.6, Effect: EffectProductionMultiplier, Magnitude: 1.3, Resource: string(model.Aether), DurationCycles: 2},
	}
	c.Events.ByID = make(map[string]EventDef, len(events))
	for _, ev := range events {
		c.Events.ByID[ev.ID] = ev
	}
	c.Events.IDs = sortedIDs(c.Events.ByID)
	return c
}
