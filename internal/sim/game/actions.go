package game

import (
	"errors"
	"fmt"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/model"
)

// Result is the outcome of one player action.
type Result struct {
	OK      bool           `json:"ok"`
	Kind    fault.Kind     `json:"kind,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func rejected(err error) Result {
	fe := fault.From(err)
	return Result{Kind: fe.Kind, Code: fe.Code, Message: fe.Error()}
}

// ExecutePlayerAction validates and applies a single action. Every call
// publishes exactly one of action.executed or action.rejected.
func (g *Game) ExecutePlayerAction(playerID string, a protocol.Action) (res Result) {
	g.bus.Hold()
	defer g.bus.Release()

	defer func() {
		if r := recover(); r != nil {
			err := fault.Systemf("action %s panicked: %v", a.Type, r)
			g.raise(err)
			res = rejected(err)
		}
		if res.OK {
			data := map[string]any{"player": playerID, "action": a.Type, "phase": g.Phase(), "cycle": g.Cycle()}
			for k, v := range res.Data {
				data[k] = v
			}
			g.bus.Publish(bus.ActionExecuted, data)
			return
		}
		g.bus.Publish(bus.ActionRejected, map[string]any{
			"player":  playerID,
			"action":  a.Type,
			"kind":    string(res.Kind),
			"code":    res.Code,
			"message": res.Message,
		})
	}()

	data, err := g.execute(playerID, a)
	if err != nil {
		if fault.KindOf(err) == fault.System {
			g.raise(err)
		}
		g.log.Debug().Err(err).Str("player", playerID).Str("action", a.Type).Msg("action rejected")
		return rejected(err)
	}
	return Result{OK: true, Data: data}
}

func (g *Game) execute(playerID string, a protocol.Action) (map[string]any, error) {
	switch {
	case !g.phases.Started():
		return nil, fault.Actionf(protocol.ErrConflict, "game not started")
	case g.phases.Ended():
		return nil, fault.Actionf(protocol.ErrGameEnded, "game has ended")
	case g.paused:
		return nil, fault.Actionf(protocol.ErrGamePaused, "game is paused")
	}
	if _, ok := g.reg.Player(playerID); !ok {
		return nil, fault.Validationf(protocol.ErrBadRequest, "unknown player %s", playerID)
	}
	if !protocol.IsKnownAction(a.Type) {
		return nil, fault.Validationf(protocol.ErrBadRequest, "unknown action %q", a.Type)
	}
	if cfg := g.phases.Config(g.Phase()); !cfg.AllowsPlayerActions {
		return nil, fault.Actionf(protocol.ErrNoPermission, "no player actions in phase %s", g.Phase())
	}
	if err := g.seq.CanAct(playerID, a.Type); err != nil {
		return nil, err
	}
	if a.Type == protocol.ActionEndTurn {
		return nil, g.seq.EndTurn(playerID)
	}

	data, err := g.dispatch(playerID, a)
	if err != nil {
		return nil, err
	}
	g.seq.Consume(playerID)
	return data, nil
}

func (g *Game) dispatch(playerID string, a protocol.Action) (map[string]any, error) {
	p := a.Params
	switch a.Type {
	case protocol.ActionClaimTerritory:
		out, err := g.acq.AttemptClaim(playerID, a.Target, p.Bid)
		if err != nil {
			return nil, err
		}
		return map[string]any{"territory": out.Territory, "paid": out.Paid, "bid": out.Bid, "disputed": out.Disputed}, nil

	case protocol.ActionPurchaseConstruct:
		ct, err := model.ParseConstructType(firstNonEmpty(p.ConstructType, a.Target))
		if err != nil {
			return nil, fault.Validationf(protocol.ErrBadRequest, "%v", err)
		}
		c, err := g.cons.Purchase(playerID, ct)
		if err != nil {
			return nil, err
		}
		return map[string]any{"construct": c.ID, "type": string(c.Type)}, nil

	case protocol.ActionInstallConstruct:
		if err := g.cons.Install(playerID, p.ConstructID, a.Target); err != nil {
			return nil, err
		}
		return map[string]any{"construct": p.ConstructID, "territory": a.Target}, nil

	case protocol.ActionUpgradeConstruct:
		id := firstNonEmpty(p.ConstructID, a.Target)
		level, err := g.cons.Upgrade(playerID, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"construct": id, "level": level}, nil

	case protocol.ActionRepairConstruct:
		id := firstNonEmpty(p.ConstructID, a.Target)
		if err := g.cons.Repair(playerID, id); err != nil {
			return nil, err
		}
		return map[string]any{"construct": id}, nil

	case protocol.ActionBuyPreservation:
		r, err := parseResource(firstNonEmpty(p.Resource, a.Target))
		if err != nil {
			return nil, err
		}
		tier, err := g.prod.BuyPreservation(playerID, r)
		if err != nil {
			return nil, err
		}
		return map[string]any{"resource": string(r), "tier": tier}, nil

	case protocol.ActionUpgradeStorage:
		r, err := parseResource(firstNonEmpty(p.Resource, a.Target))
		if err != nil {
			return nil, err
		}
		capacity, err := g.prod.UpgradeStorage(playerID, r)
		if err != nil {
			return nil, err
		}
		return map[string]any{"resource": string(r), "capacity": capacity}, nil

	case protocol.ActionSubmitPosition:
		r := g.market.Current()
		if p.Resource != "" {
			var err error
			if r, err = parseResource(p.Resource); err != nil {
				return nil, err
			}
		}
		side, err := model.ParseSide(p.Side)
		if err != nil {
			return nil, fault.Validationf(protocol.ErrBadRequest, "%v", err)
		}
		trades, err := g.market.Submit(playerID, r, side, p.Price, p.Quantity)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(trades))
		for _, t := range trades {
			ids = append(ids, t.ID)
		}
		return map[string]any{"resource": string(r), "side": string(side), "trades": ids}, nil

	case protocol.ActionCancelPosition:
		if err := g.market.Cancel(playerID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, fault.Validationf(protocol.ErrBadRequest, "unhandled action %q", a.Type)
}

func parseResource(s string) (model.Resource, error) {
	r, err := model.ParseResource(s)
	if err != nil {
		return "", fault.Validationf(protocol.ErrBadRequest, "%v", err)
	}
	return r, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// raise records a critical fault, publishes system.error and pauses the
// game until Recover.
func (g *Game) raise(err error) {
	if err == nil {
		return
	}
	fe := fault.From(err)
	g.bus.Publish(bus.SystemError, map[string]any{"source": "game", "code": fe.Code, "error": err.Error()})
	g.recordFault(err)
}

// recordFault is raise without the event, for faults the phase machine has
// already published.
func (g *Game) recordFault(err error) {
	g.log.Error().Err(err).Msg("critical fault")
	if g.fault == nil {
		g.fault = err
	} else {
		g.fault = errors.Join(g.fault, err)
	}
	g.pause("fault")
}

func (g *Game) onHandlerPanic(ev bus.Event, recovered any) {
	g.raise(fmt.Errorf("subscriber of %s panicked: %v", ev.Name, recovered))
}
