// Package constructs handles the construct lifecycle: purchase into
// inventory, installation onto a territory, the installation roll, upgrades
// and repairs.
package constructs

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/dice"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

// RepairedEfficiency is the efficiency of a construct brought back from damage.
const RepairedEfficiency = 0.75

type Manager struct {
	reg   *registry.Registry
	bus   *bus.Bus
	table catalogs.InstallTable
	tun   tuning.Constructs
	seed  int64
	log   zerolog.Logger
}

func New(reg *registry.Registry, b *bus.Bus, cats *catalogs.Catalogs, t tuning.Tuning, logger zerolog.Logger) *Manager {
	return &Manager{
		reg:   reg,
		bus:   b,
		table: cats.Install,
		tun:   t.Constructs,
		seed:  t.Seed,
		log:   logger.With().Str("component", "constructs").Logger(),
	}
}

func (m *Manager) Cost(ct model.ConstructType) int { return m.tun.Cost[string(ct)] }

func (m *Manager) UpgradeCost(level int) int { return m.tun.UpgradeBaseCost * level }

func (m *Manager) Purchase(player string, ct model.ConstructType) (*registry.Construct, error) {
	if _, err := model.ParseConstructType(string(ct)); err != nil {
		return nil, fault.Validationf(protocol.ErrBadRequest, "%v", err)
	}
	cost := m.Cost(ct)
	if err := m.reg.DebitGold(player, cost); err != nil {
		return nil, fault.From(err)
	}
	c, err := m.reg.NewConstruct(player, ct)
	if err != nil {
		_ = m.reg.CreditGold(player, cost)
		return nil, fault.From(err)
	}
	m.bus.Publish(bus.ConstructPurchased, map[string]any{
		"player":    player,
		"construct": c.ID,
		"type":      string(ct),
		"cost":      cost,
	})
	return c, nil
}

func (m *Manager) owned(player, constructID string) (*registry.Construct, error) {
	c, ok := m.reg.Construct(constructID)
	if !ok {
		return nil, fault.Validationf(protocol.ErrInvalidTarget, "unknown construct %s", constructID)
	}
	if c.Owner != player {
		return nil, fault.Actionf(protocol.ErrNoPermission, "construct %s belongs to %s", constructID, c.Owner)
	}
	return c, nil
}

// Install places an inventory construct on an owned, empty territory. The
// outcome is rolled when production begins.
func (m *Manager) Install(player, constructID, territoryID string) error {
	c, err := m.owned(player, constructID)
	if err != nil {
		return err
	}
	if c.Status != model.StatusInventory {
		return fault.Actionf(protocol.ErrConflict, "construct %s is %s, not in inventory", c.ID, c.Status)
	}
	t, ok := m.reg.Territory(territoryID)
	if !ok {
		return fault.Validationf(protocol.ErrInvalidTarget, "unknown territory %s", territoryID)
	}
	if t.Owner != player {
		return fault.Actionf(protocol.ErrNoPermission, "territory %s is not owned by %s", territoryID, player)
	}
	if t.Construct != "" {
		return fault.Actionf(protocol.ErrConflict, "territory %s already bears %s", territoryID, t.Construct)
	}
	if err := m.reg.PlaceConstruct(c.ID, territoryID); err != nil {
		return fault.From(err)
	}
	c.Status = model.StatusInstalling
	return nil
}

// Outcome is the result of one installation roll.
type Outcome struct {
	Construct  string                `json:"construct"`
	Territory  string                `json:"territory"`
	OutcomeID  string                `json:"outcome"`
	Status     model.ConstructStatus `json:"status"`
	Efficiency float64               `json:"efficiency"`
}

// ResolveInstallations rolls the outcome table for every installing
// construct. Outcomes listed as first-cycle exclusions cannot be rolled in
// cycle 1. A construct that cannot be returned to inventory is skipped and
// reported in the joined error.
func (m *Manager) ResolveInstallations(cycle int) ([]Outcome, error) {
	weights := map[string]float64{}
	byID := map[string]catalogs.InstallOutcome{}
	excluded := map[string]bool{}
	if cycle <= 1 {
		for _, id := range m.table.FirstCycleExcluded {
			excluded[id] = true
		}
	}
	for _, o := range m.table.Outcomes {
		if excluded[o.ID] {
			continue
		}
		weights[o.ID] = o.Weight
		byID[o.ID] = o
	}

	var out []Outcome
	var errs []error
	for _, id := range m.reg.ConstructIDs() {
		c, _ := m.reg.Construct(id)
		if c.Status != model.StatusInstalling {
			continue
		}
		pick := dice.Weighted(weights, dice.Roll(m.seed, c.ID, cycle))
		o, ok := byID[pick]
		if !ok {
			o = catalogs.InstallOutcome{ID: "success", Result: catalogs.InstallActive, Efficiency: 1.0}
		}
		res := Outcome{Construct: c.ID, Territory: c.Territory, OutcomeID: o.ID}
		switch o.Result {
		case catalogs.InstallActive:
			c.Status = model.StatusActive
			c.Efficiency = o.Efficiency
		case catalogs.InstallDamaged:
			c.Status = model.StatusDamaged
			c.Efficiency = 0
		default:
			if err := m.reg.UnplaceConstruct(c.ID); err != nil {
				m.log.Error().Err(err).Str("construct", c.ID).Msg("return failed install to inventory")
				errs = append(errs, fmt.Errorf("install %s: %w", c.ID, err))
				continue
			}
		}
		res.Status = c.Status
		res.Efficiency = c.Efficiency
		out = append(out, res)
		m.bus.Publish(bus.ConstructInstalled, map[string]any{
			"player":     c.Owner,
			"construct":  c.ID,
			"territory":  res.Territory,
			"outcome":    o.ID,
			"status":     string(c.Status),
			"efficiency": c.Efficiency,
		})
	}
	return out, errors.Join(errs...)
}

func (m *Manager) Upgrade(player, constructID string) (int, error) {
	c, err := m.owned(player, constructID)
	if err != nil {
		return 0, err
	}
	if c.Level >= model.MaxConstructLevel {
		return 0, fault.Actionf(protocol.ErrConflict, "construct %s is already level %d", c.ID, c.Level)
	}
	if c.Status == model.StatusDamaged {
		return 0, fault.Actionf(protocol.ErrConflict, "construct %s must be repaired first", c.ID)
	}
	cost := m.UpgradeCost(c.Level)
	if err := m.reg.DebitGold(player, cost); err != nil {
		return 0, fault.From(err)
	}
	c.Level++
	m.bus.Publish(bus.ConstructUpgraded, map[string]any{"player": player, "construct": c.ID, "level": c.Level, "cost": cost})
	return c.Level, nil
}

func (m *Manager) Repair(player, constructID string) error {
	c, err := m.owned(player, constructID)
	if err != nil {
		return err
	}
	if c.Status != model.StatusDamaged {
		return fault.Actionf(protocol.ErrConflict, "construct %s is not damaged", c.ID)
	}
	if err := m.reg.DebitGold(player, m.tun.RepairCost); err != nil {
		return fault.From(err)
	}
	c.Status = model.StatusActive
	c.Efficiency = RepairedEfficiency
	m.bus.Publish(bus.ConstructRepaired, map[string]any{"player": player, "construct": c.ID, "cost": m.tun.RepairCost})
	return nil
}
