package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"arcanecycles.io/internal/sim/model"
)

type Catalogs struct {
	Constructs ConstructCatalog
	Events     EventCatalog
	Install    InstallTable
}

type ConstructCatalog struct {
	Defs   []ConstructDef `yaml:"constructs"`
	ByType map[model.ConstructType]ConstructDef
	Digest string
}

type ConstructDef struct {
	Type         string `yaml:"type"`
	Name         string `yaml:"name"`
	IdealTerrain string `yaml:"ideal_terrain"`
	Description  string `yaml:"description,omitempty"`
}

// Event effect kinds.
const (
	EffectPriceMultiplier      = "price_multiplier"
	EffectVolatility           = "volatility"
	EffectPricePush            = "price_push"
	EffectBuyerSkew            = "buyer_skew"
	EffectSellerSkew           = "seller_skew"
	EffectProductionMultiplier = "production_multiplier"
)

// Event triggers.
const (
	TriggerWindow = "window"
	TriggerCycle  = "cycle"
)

type EventCatalog struct {
	ByID   map[string]EventDef
	IDs    []string
	Digest string
}

type EventDef struct {
	ID          string  `yaml:"id"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Trigger     string  `yaml:"trigger"`
	BaseWeight  float64 `yaml:"base_weight"`
	Effect      string  `yaml:"effect"`
	Magnitude   float64 `yaml:"magnitude"`
	// Resource pins the event to one resource; empty means the resource of the
	// window that triggered it (window events) or every resource (cycle events).
	Resource        string `yaml:"resource,omitempty"`
	DurationSeconds int    `yaml:"duration_seconds,omitempty"`
	DurationCycles  int    `yaml:"duration_cycles,omitempty"`
}

// Install outcome results.
const (
	InstallActive    = "active"
	InstallInventory = "inventory"
	InstallDamaged   = "damaged"
)

type InstallTable struct {
	Outcomes []InstallOutcome `yaml:"outcomes"`
	// FirstCycleExcluded outcome ids cannot be rolled during cycle 1.
	FirstCycleExcluded []string `yaml:"first_cycle_excluded"`
	Digest             string   `yaml:"-"`
}

type InstallOutcome struct {
	ID         string  `yaml:"id"`
	Weight     float64 `yaml:"weight"`
	Result     string  `yaml:"result"`
	Efficiency float64 `yaml:"efficiency"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadConstructs(filepath.Join(configDir, "constructs.yaml"), &c.Constructs); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, "events"), &c.Events); err != nil {
		return nil, err
	}
	if err := loadInstall(filepath.Join(configDir, "install_outcomes.yaml"), &c.Install); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) Validate() error {
	for _, ct := range model.ConstructTypes {
		def, ok := c.Constructs.ByType[ct]
		if !ok {
			return fmt.Errorf("constructs.yaml: missing construct %s", ct)
		}
		if _, err := model.ParseTerrain(def.IdealTerrain); err != nil {
			return fmt.Errorf("constructs.yaml: %s: %w", ct, err)
		}
	}
	for _, id := range c.Events.IDs {
		ev := c.Events.ByID[id]
		switch ev.Effect {
		case EffectPriceMultiplier, EffectVolatility, EffectPricePush, EffectBuyerSkew, EffectSellerSkew, EffectProductionMultiplier:
		default:
			return fmt.Errorf("event %s: unknown effect %q", id, ev.Effect)
		}
		switch ev.Trigger {
		case TriggerWindow, TriggerCycle:
		default:
			return fmt.Errorf("event %s: unknown trigger %q", id, ev.Trigger)
		}
		if ev.Resource != "" {
			if _, err := model.ParseResource(ev.Resource); err != nil {
				return fmt.Errorf("event %s: %w", id, err)
			}
		}
	}
	if len(c.Install.Outcomes) == 0 {
		return fmt.Errorf("install_outcomes.yaml: no outcomes")
	}
	for _, o := range c.Install.Outcomes {
		switch o.Result {
		case InstallActive, InstallInventory, InstallDamaged:
		default:
			return fmt.Errorf("install outcome %s: unknown result %q", o.ID, o.Result)
		}
		if o.Efficiency < model.MinEfficiency || o.Efficiency > model.MaxEfficiency {
			return fmt.Errorf("install outcome %s: efficiency %v out of range", o.ID, o.Efficiency)
		}
	}
	return nil
}

// IdealTerrain returns the terrain that grants a construct type its synergy bonus.
func (c *Catalogs) IdealTerrain(ct model.ConstructType) model.Terrain {
	return model.Terrain(c.Constructs.ByType[ct].IdealTerrain)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadConstructs(path string, out *ConstructCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("constructs.yaml: %w", err)
	}
	out.Digest = sha256Hex(raw)
	return indexConstructs(out)
}

func indexConstructs(out *ConstructCatalog) error {
	out.ByType = map[model.ConstructType]ConstructDef{}
	for _, d := range out.Defs {
		ct, err := model.ParseConstructType(d.Type)
		if err != nil {
			return fmt.Errorf("constructs.yaml: %w", err)
		}
		out.ByType[ct] = d
	}
	return nil
}

func loadInstall(path string, out *InstallTable) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("install_outcomes.yaml: %w", err)
	}
	out.Digest = sha256Hex(raw)
	return nil
}

func loadEvents(dir string, out *EventCatalog) error {
	out.ByID = map[string]EventDef{}

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".yaml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var ev EventDef
		if err := yaml.Unmarshal(b, &ev); err != nil {
			return fmt.Errorf("event %s: %w", filepath.Base(p), err)
		}
		if ev.ID == "" {
			return fmt.Errorf("event %s: missing id", filepath.Base(p))
		}
		out.ByID[ev.ID] = ev
	}
	out.IDs = sortedIDs(out.ByID)
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func sortedIDs(m map[string]EventDef) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
