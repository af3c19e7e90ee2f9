package turns

import (
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

// Sequencer owns turn order and per-player budgets for the current phase.
type Sequencer struct {
	players registry.Players
	bus     *bus.Bus
	timers  *clock.Timers
	bank    *clock.Bank
	tun     tuning.Turns
	log     zerolog.Logger

	phase   string
	group   string
	rule    Rule
	order   []string
	current int
	budgets map[string]int
	done    map[string]bool
	active  bool

	// OnComplete runs after the sequence wraps around (or every simultaneous
	// player has ended their turn).
	OnComplete func(phase string)
}

func NewSequencer(players registry.Players, b *bus.Bus, timers *clock.Timers, bank *clock.Bank, t tuning.Turns, logger zerolog.Logger) *Sequencer {
	return &Sequencer{
		players: players,
		bus:     b,
		timers:  timers,
		bank:    bank,
		tun:     t,
		log:     logger.With().Str("component", "turns").Logger(),
		budgets: map[string]int{},
		done:    map[string]bool{},
	}
}

// Order sorts ids ascending by wealth, ties by seat. It is the same order
// the registry uses to pick the poorest claimant in a dispute.
func Order(players registry.Players, ids []string) []string {
	return players.ByWealth(ids)
}

// Begin computes the order for phase and opens the first turn. group is the
// timer group the phase machine cancels on exit.
func (s *Sequencer) Begin(phase, group string, rule Rule) {
	s.stopTurnTimers()
	s.phase = phase
	s.group = group
	s.rule = rule
	s.order = Order(s.players, s.players.IDs())
	s.current = 0
	s.budgets = map[string]int{}
	s.done = map[string]bool{}
	for _, id := range s.order {
		s.budgets[id] = rule.Budget
		s.bank.Open(id)
	}
	s.active = rule.Mode != Automated && len(s.order) > 0
	if !s.active {
		return
	}
	s.log.Debug().Str("phase", phase).Strs("order", s.order).Str("mode", string(rule.Mode)).Msg("sequence begun")
	if rule.Mode == Simultaneous {
		for _, id := range s.order {
			s.publishTurnStarted(id, 0)
		}
		return
	}
	s.startTurn()
}

// Stop closes the sequence without signalling completion.
func (s *Sequencer) Stop() {
	s.stopTurnTimers()
	s.active = false
}

func (s *Sequencer) Active() bool    { return s.active }
func (s *Sequencer) Phase() string   { return s.phase }
func (s *Sequencer) Rule() Rule      { return s.rule }
func (s *Sequencer) Order() []string { return append([]string(nil), s.order...) }

// Current is the turn holder of a sequential phase.
func (s *Sequencer) Current() string {
	if !s.active || s.rule.Mode != Sequential || s.current >= len(s.order) {
		return ""
	}
	return s.order[s.current]
}

func (s *Sequencer) Budget(player string) int { return s.budgets[player] }

// CanAct reports why player may not perform action right now, or nil.
func (s *Sequencer) CanAct(player, action string) error {
	if !s.active {
		return fault.Actionf(protocol.ErrNoPermission, "no player actions in phase %s", s.phase)
	}
	if _, ok := s.budgets[player]; !ok {
		return fault.Validationf(protocol.ErrBadRequest, "unknown player %s", player)
	}
	if !s.rule.Allows(action) {
		return fault.Actionf(protocol.ErrNoPermission, "%s not allowed in phase %s", action, s.phase)
	}
	switch s.rule.Mode {
	case Sequential:
		if s.Current() != player {
			return fault.Actionf(protocol.ErrNotYourTurn, "turn belongs to %s", s.Current())
		}
	case Simultaneous:
		if s.done[player] {
			return fault.Actionf(protocol.ErrNoPermission, "%s already ended their turn", player)
		}
	}
	if action != protocol.ActionEndTurn && s.budgets[player] == 0 {
		return fault.Actionf(protocol.ErrNoPermission, "no actions left this turn")
	}
	return nil
}

// Consume records a successful action. Spending the last unit of a finite
// budget ends the turn unless the phase waits for an explicit end_turn.
func (s *Sequencer) Consume(player string) {
	if !s.active {
		return
	}
	b := s.budgets[player]
	if b == Unlimited {
		return
	}
	if b > 0 {
		b--
		s.budgets[player] = b
	}
	if b == 0 && !s.rule.EndsOnExplicitEndTurn {
		s.endTurn(player, "budget")
	}
}

// EndTurn is the explicit end_turn action.
func (s *Sequencer) EndTurn(player string) error {
	if err := s.CanAct(player, protocol.ActionEndTurn); err != nil {
		return err
	}
	s.endTurn(player, "explicit")
	return nil
}

func (s *Sequencer) endTurn(player, reason string) {
	if s.rule.Mode == Simultaneous {
		s.done[player] = true
		s.bus.Publish(bus.TurnEnded, map[string]any{"phase": s.phase, "player": player, "reason": reason})
		for _, id := range s.order {
			if !s.done[id] {
				return
			}
		}
		s.complete()
		return
	}
	if s.Current() != player {
		return
	}
	s.timers.Cancel(s.turnTimerName(player))
	s.bus.Publish(bus.TurnEnded, map[string]any{"phase": s.phase, "player": player, "reason": reason})
	s.current++
	if s.current >= len(s.order) {
		s.complete()
		return
	}
	s.startTurn()
}

func (s *Sequencer) complete() {
	s.active = false
	s.stopTurnTimers()
	s.bus.Publish(bus.TurnSequenceCompleted, map[string]any{"phase": s.phase, "order": append([]string(nil), s.order...)})
	if s.OnComplete != nil {
		s.OnComplete(s.phase)
	}
}

func (s *Sequencer) startTurn() {
	player := s.order[s.current]
	limit := s.turnLimit(player)
	s.armTurnTimer(player, limit, limit)
	s.publishTurnStarted(player, limit)
}

func (s *Sequencer) turnLimit(player string) time.Duration {
	if s.bank.Balance(player) <= 0 && s.tun.PenaltyTurnSeconds > 0 {
		return time.Duration(s.tun.PenaltyTurnSeconds) * time.Second
	}
	return time.Duration(s.tun.TurnSeconds) * time.Second
}

func (s *Sequencer) armTurnTimer(player string, limit, remaining time.Duration) {
	if limit <= 0 {
		return
	}
	spec := clock.Spec{
		Name:     s.turnTimerName(player),
		Group:    s.group,
		Kind:     "turn",
		Subject:  player,
		Duration: limit,
		Warnings: s.tun.Warnings(),
		OnExpire: func() { s.onTurnExpired(player, limit) },
	}
	if remaining < limit {
		s.timers.Restore(spec, remaining)
		return
	}
	s.timers.Start(spec)
}

// onTurnExpired forces the turn closed and charges the turn to the bank.
func (s *Sequencer) onTurnExpired(player string, limit time.Duration) {
	if s.Current() != player {
		return
	}
	drawn := s.bank.Debit(player, limit)
	s.bus.Publish(bus.TimeBankDrawn, map[string]any{
		"player":    player,
		"drawn_s":   int(drawn / time.Second),
		"balance_s": int(s.bank.Balance(player) / time.Second),
	})
	s.log.Info().Str("player", player).Str("phase", s.phase).Dur("drawn", drawn).Msg("turn timed out")
	s.endTurn(player, "timeout")
}

func (s *Sequencer) publishTurnStarted(player string, limit time.Duration) {
	s.bus.Publish(bus.TurnStarted, map[string]any{
		"phase":   s.phase,
		"player":  player,
		"index":   s.indexOf(player),
		"budget":  s.budgets[player],
		"limit_s": int(limit / time.Second),
	})
}

func (s *Sequencer) indexOf(player string) int {
	for i, id := range s.order {
		if id == player {
			return i
		}
	}
	return -1
}

func (s *Sequencer) turnTimerName(player string) string {
	return "turn:" + s.phase + ":" + player
}

func (s *Sequencer) stopTurnTimers() {
	for _, id := range s.order {
		s.timers.Cancel(s.turnTimerName(id))
	}
}
