package tuning

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	MapWidth     int   `yaml:"map_width"`
	MapHeight    int   `yaml:"map_height"`
	MaxCycles    int   `yaml:"max_cycles"`
	StartingGold int   `yaml:"starting_gold"`
	AutoSave     bool  `yaml:"auto_save"`
	Seed         int64 `yaml:"seed"`

	Storage    Storage                `yaml:"storage"`
	Phases     map[string]PhaseConfig `yaml:"phases"`
	Turns      Turns                  `yaml:"turns"`
	Territory  Territory              `yaml:"territory"`
	Constructs Constructs             `yaml:"constructs"`
	Production Production             `yaml:"production"`
	Market     Market                 `yaml:"market"`
	Wealth     Wealth                 `yaml:"wealth"`
}

type Storage struct {
	Backend string `yaml:"backend"` // file | sqlite | memory
	Path    string `yaml:"path"`
	Codec   string `yaml:"codec"` // zstd | lz4
}

type PhaseConfig struct {
	AllowsPlayerActions bool `yaml:"allows_player_actions"`
	AutoAdvance         bool `yaml:"auto_advance"`
	TimeLimitSeconds    int  `yaml:"time_limit_seconds"`
}

type Turns struct {
	TurnSeconds        int   `yaml:"turn_seconds"`
	PenaltyTurnSeconds int   `yaml:"penalty_turn_seconds"`
	TimeBankSeconds    int   `yaml:"time_bank_seconds"`
	WarningSeconds     []int `yaml:"warning_seconds"`
	ClaimActions       int   `yaml:"claim_actions"`
}

type Territory struct {
	FreeClaimsPerCycle int                `yaml:"free_claims_per_cycle"`
	CycleBidGrowth     float64            `yaml:"cycle_bid_growth"`
	Desirability       map[string]float64 `yaml:"desirability"`
}

type Constructs struct {
	Cost            map[string]int `yaml:"cost"`
	UpgradeBaseCost int            `yaml:"upgrade_base_cost"`
	RepairCost      int            `yaml:"repair_cost"`
}

type Production struct {
	Base                map[string]float64            `yaml:"base"`
	LevelBonus          float64                       `yaml:"level_bonus"`
	SynergyBonus        float64                       `yaml:"synergy_bonus"`
	InterferencePenalty float64                       `yaml:"interference_penalty"`
	TerrainModifiers    map[string]map[string]float64 `yaml:"terrain_modifiers"`
	DecayRates          map[string]float64            `yaml:"decay_rates"`

	PreservationPerTier  int `yaml:"preservation_per_tier"`
	PreservationBaseCost int `yaml:"preservation_base_cost"`

	StorageBaseCapacity    int     `yaml:"storage_base_capacity"`
	StoragePerLevel        int     `yaml:"storage_per_level"`
	StorageUpgradeBaseCost int     `yaml:"storage_upgrade_base_cost"`
	OverflowGoldRate       float64 `yaml:"overflow_gold_rate"`
}

type Market struct {
	BasePrices        map[string]float64 `yaml:"base_prices"`
	Volatility        map[string]float64 `yaml:"volatility"`
	Equilibrium       map[string]float64 `yaml:"equilibrium"`
	BaselineDemand    map[string]float64 `yaml:"baseline_demand"`
	MinPrice          float64            `yaml:"min_price"`
	MaxPrice          float64            `yaml:"max_price"`
	WindowSeconds     int                `yaml:"window_seconds"`
	TransitionSeconds int                `yaml:"transition_seconds"`
	EventChance       float64            `yaml:"event_chance"`
	HistoryLength     int                `yaml:"history_length"`
}

type Wealth struct {
	TerritoryValue      int `yaml:"territory_value"`
	ConstructLevelValue int `yaml:"construct_level_value"`
	ResourceValue       int `yaml:"resource_value"`
}

// Load reads a tuning file over the defaults, so a partial file only overrides
// the keys it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Warnings converts WarningSeconds for the timer service. Phase and turn
// timers share the thresholds.
func (t Turns) Warnings() []time.Duration {
	out := make([]time.Duration, 0, len(t.WarningSeconds))
	for _, w := range t.WarningSeconds {
		out = append(out, time.Duration(w)*time.Second)
	}
	return out
}

// SameRules reports whether t and o play the same game. Storage settings and
// auto-save are operational and may differ between a save and its load.
func (t Tuning) SameRules(o Tuning) bool {
	a, errA := rulesYAML(t)
	b, errB := rulesYAML(o)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

func rulesYAML(t Tuning) ([]byte, error) {
	t.Storage = Storage{}
	t.AutoSave = false
	return yaml.Marshal(t)
}

func (t Tuning) Validate() error {
	if t.MapWidth <= 0 || t.MapHeight <= 0 {
		return fmt.Errorf("map size must be positive, got %dx%d", t.MapWidth, t.MapHeight)
	}
	if t.MaxCycles < 1 {
		return fmt.Errorf("max_cycles must be >= 1, got %d", t.MaxCycles)
	}
	if t.StartingGold < 0 {
		return fmt.Errorf("starting_gold must be >= 0, got %d", t.StartingGold)
	}
	if t.Market.MinPrice <= 0 || t.Market.MaxPrice < t.Market.MinPrice {
		return fmt.Errorf("market price band invalid: [%v,%v]", t.Market.MinPrice, t.Market.MaxPrice)
	}
	if t.Market.EventChance < 0 || t.Market.EventChance > 1 {
		return fmt.Errorf("market event_chance must be in [0,1], got %v", t.Market.EventChance)
	}
	switch t.Storage.Backend {
	case "", "file", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", t.Storage.Backend)
	}
	switch t.Storage.Codec {
	case "", "zstd", "lz4":
	default:
		return fmt.Errorf("unknown snapshot codec %q", t.Storage.Codec)
	}
	return nil
}
