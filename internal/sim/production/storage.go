package production

import (
	"math"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/model"
)

// Overflow is what a deposit could not store and the gold it became.
type Overflow struct {
	Amounts model.Amounts `json:"amounts"`
	Gold    int           `json:"gold"`
}

func (o Overflow) Empty() bool { return o.Amounts.Total() == 0 }

func (e *Engine) Capacity(playerID string, r model.Resource) int {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return 0
	}
	return e.tun.StorageBaseCapacity + p.StorageLevels[r]*e.tun.StoragePerLevel
}

// Deposit adds amounts up to capacity. The excess is converted to gold at
// OverflowGoldRate of the resource's base price and reported.
func (e *Engine) Deposit(playerID string, amounts model.Amounts) (Overflow, error) {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return Overflow{}, fault.Validationf(protocol.ErrBadRequest, "unknown player %s", playerID)
	}
	ov := Overflow{Amounts: model.Amounts{}}
	stored := model.Amounts{}
	for _, r := range model.Resources {
		n := amounts[r]
		if n < 0 {
			return Overflow{}, fault.Validationf(protocol.ErrBadRequest, "negative deposit %d %s", n, r)
		}
		if n == 0 {
			continue
		}
		room := e.Capacity(playerID, r) - p.Resources[r]
		if room < 0 {
			room = 0
		}
		keep := n
		if keep > room {
			keep = room
		}
		stored[r] = keep
		if excess := n - keep; excess > 0 {
			ov.Amounts[r] = excess
			ov.Gold += int(math.Floor(float64(excess) * e.basePrices[string(r)] * e.tun.OverflowGoldRate))
		}
	}
	for r, n := range stored {
		if err := e.reg.AddResource(playerID, r, n); err != nil {
			return Overflow{}, err
		}
	}
	if ov.Gold > 0 {
		if err := e.reg.CreditGold(playerID, ov.Gold); err != nil {
			return Overflow{}, err
		}
	}
	if !ov.Empty() {
		e.bus.Publish(bus.StorageOverflow, map[string]any{
			"player":   playerID,
			"overflow": amountsData(ov.Amounts),
			"gold":     ov.Gold,
		})
	}
	return ov, nil
}

// PreservationCost doubles with every tier already owned.
func (e *Engine) PreservationCost(playerID string, r model.Resource) int {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return 0
	}
	return e.tun.PreservationBaseCost << uint(p.PreservationTiers[r])
}

func (e *Engine) BuyPreservation(playerID string, r model.Resource) (int, error) {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return 0, fault.Validationf(protocol.ErrBadRequest, "unknown player %s", playerID)
	}
	cost := e.PreservationCost(playerID, r)
	if err := e.reg.DebitGold(playerID, cost); err != nil {
		return 0, fault.From(err)
	}
	p.PreservationTiers[r]++
	e.log.Debug().Str("player", playerID).Str("resource", string(r)).Int("tier", p.PreservationTiers[r]).Int("cost", cost).Msg("preservation bought")
	return p.PreservationTiers[r], nil
}

// StorageUpgradeCost grows linearly with the next level.
func (e *Engine) StorageUpgradeCost(playerID string, r model.Resource) int {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return 0
	}
	return e.tun.StorageUpgradeBaseCost * (p.StorageLevels[r] + 1)
}

func (e *Engine) UpgradeStorage(playerID string, r model.Resource) (int, error) {
	p, ok := e.reg.Player(playerID)
	if !ok {
		return 0, fault.Validationf(protocol.ErrBadRequest, "unknown player %s", playerID)
	}
	cost := e.StorageUpgradeCost(playerID, r)
	if err := e.reg.DebitGold(playerID, cost); err != nil {
		return 0, fault.From(err)
	}
	p.StorageLevels[r]++
	return e.Capacity(playerID, r), nil
}
