// Package turns orders players for an interactive phase and gates their
// actions by turn, allow-list and budget.
package turns

import (
	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/tuning"
)

type Mode string

const (
	Sequential   Mode = "sequential"
	Simultaneous Mode = "simultaneous"
	Automated    Mode = "automated"
)

// Unlimited is the budget of phases that never run out of actions.
const Unlimited = -1

type Rule struct {
	Mode    Mode
	Budget  int
	Allowed []string
	// EndsOnExplicitEndTurn keeps a turn open after the budget is spent.
	EndsOnExplicitEndTurn bool
}

func (r Rule) Allows(action string) bool {
	if action == protocol.ActionEndTurn && r.Mode != Automated {
		return true
	}
	for _, a := range r.Allowed {
		if a == action {
			return true
		}
	}
	return false
}

// DefaultRules is the per-phase rules table.
func DefaultRules(t tuning.Turns) map[string]Rule {
	claimBudget := t.ClaimActions
	if claimBudget <= 0 {
		claimBudget = 1
	}
	return map[string]Rule{
		"territory_selection": {
			Mode:    Sequential,
			Budget:  claimBudget,
			Allowed: []string{protocol.ActionClaimTerritory},
		},
		"outfitting": {
			Mode:   Sequential,
			Budget: Unlimited,
			Allowed: []string{
				protocol.ActionPurchaseConstruct,
				protocol.ActionInstallConstruct,
				protocol.ActionUpgradeConstruct,
				protocol.ActionRepairConstruct,
				protocol.ActionBuyPreservation,
				protocol.ActionUpgradeStorage,
			},
			EndsOnExplicitEndTurn: true,
		},
		"production": {Mode: Automated, Budget: 0},
		"resource_auction": {
			Mode:                  Simultaneous,
			Budget:                Unlimited,
			Allowed:               []string{protocol.ActionSubmitPosition, protocol.ActionCancelPosition},
			EndsOnExplicitEndTurn: true,
		},
		"end_of_cycle": {Mode: Automated, Budget: 0},
	}
}
