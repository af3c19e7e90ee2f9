// Package game is the orchestrator. It builds every simulation component,
// wires them through the event bus, and is the single surface transports and
// runners call into. A Game is not safe for concurrent use; Loop serialises
// access from other goroutines.
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"arcanecycles.io/internal/persistence/store"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/clock"
	"arcanecycles.io/internal/sim/constructs"
	"arcanecycles.io/internal/sim/mapgen"
	"arcanecycles.io/internal/sim/market"
	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/phase"
	"arcanecycles.io/internal/sim/production"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/territory"
	"arcanecycles.io/internal/sim/tuning"
	"arcanecycles.io/internal/sim/turns"
)

type PlayerSpec struct {
	ID   string
	Name string
}

type Config struct {
	GameID   string
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	// Store backs Save, Load and auto-save. Nil disables persistence.
	Store   store.Store
	Players []PlayerSpec
	Logger  zerolog.Logger
}

type Game struct {
	id   string
	tun  tuning.Tuning
	cats *catalogs.Catalogs
	log  zerolog.Logger

	clock  *clock.Clock
	bus    *bus.Bus
	timers *clock.Timers
	bank   *clock.Bank

	reg    *registry.Registry
	rules  map[string]turns.Rule
	seq    *turns.Sequencer
	acq    *territory.Acquisition
	cons   *constructs.Manager
	prod   *production.Engine
	market *market.Engine
	phases *phase.Machine
	store  store.Store

	paused    bool
	fault     error
	standings []registry.Standing
	lastSave  string
}

func New(cfg Config) (*Game, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if cfg.Catalogs == nil {
		cfg.Catalogs = catalogs.Defaults()
	}
	if cfg.GameID == "" {
		cfg.GameID = uuid.NewString()
	}

	g := &Game{
		id:    cfg.GameID,
		tun:   cfg.Tuning,
		cats:  cfg.Catalogs,
		log:   cfg.Logger.With().Str("game", cfg.GameID).Logger(),
		clock: clock.New(),
		store: cfg.Store,
	}
	g.bus = bus.New(g.log, g.clock.Now)
	g.bus.OnHandlerPanic = g.onHandlerPanic
	g.timers = clock.NewTimers(g.clock, g.bus, g.log)
	g.bank = clock.NewBank(time.Duration(g.tun.Turns.TimeBankSeconds) * time.Second)

	g.reg = registry.New(g.tun.Wealth)
	if err := mapgen.Populate(g.reg, mapgen.Config{Width: g.tun.MapWidth, Height: g.tun.MapHeight, Seed: g.tun.Seed}); err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	for _, p := range cfg.Players {
		if err := g.AddPlayer(p.ID, p.Name); err != nil {
			return nil, err
		}
	}

	g.rules = turns.DefaultRules(g.tun.Turns)
	g.seq = turns.NewSequencer(g.reg, g.bus, g.timers, g.bank, g.tun.Turns, g.log)
	g.acq = territory.New(g.reg, g.bus, g.seq, g.tun.Territory, g.log)
	g.cons = constructs.New(g.reg, g.bus, g.cats, g.tun, g.log)
	g.prod = production.New(g.reg, g.bus, g.cats, g.tun, g.log)
	g.market = market.New(g.reg, g.bus, g.clock, g.timers, g.cats, g.tun, g.log)
	g.phases = phase.New(g.bus, g.timers, g.tun, g.log)

	g.prod.SetMultipliers(g.market)
	g.market.SetDepositor(func(player string, r model.Resource, n int) error {
		_, err := g.prod.Deposit(player, model.Amounts{r: n})
		return err
	})
	g.market.OnComplete = g.requestAdvance
	g.seq.OnComplete = func(string) { g.requestAdvance() }
	g.phases.OnFault = g.recordFault
	g.phases.OnEnd = g.finalScoring
	g.registerPhases()

	g.bus.Subscribe(bus.CycleStarted, g.onCycleStarted)
	return g, nil
}

// AddPlayer seats a player with the starting gold. Seats follow call order.
func (g *Game) AddPlayer(id, name string) error {
	if g.phases != nil && g.phases.Started() {
		return fmt.Errorf("cannot add player %s after the game started", id)
	}
	if name == "" {
		name = id
	}
	_, err := g.reg.AddPlayer(id, name, g.tun.StartingGold)
	return err
}

// Start enters the first phase of cycle 1.
func (g *Game) Start() error {
	g.bus.Hold()
	defer g.bus.Release()
	if g.reg.NumPlayers() == 0 {
		return fmt.Errorf("no players seated")
	}
	g.log.Info().Int("players", g.reg.NumPlayers()).Int("max_cycles", g.tun.MaxCycles).Msg("game starting")
	return g.phases.Start()
}

func (g *Game) registerPhases() {
	g.phases.Register(phase.TerritorySelection, phase.Handler{
		Enter: func(cycle int) error {
			g.acq.Open(cycle)
			g.beginTurns(phase.TerritorySelection)
			return nil
		},
		Exit: func(cycle int) error {
			g.seq.Stop()
			g.acq.ResolveDisputes()
			return nil
		},
	})
	g.phases.Register(phase.Outfitting, phase.Handler{
		Enter: func(int) error {
			g.beginTurns(phase.Outfitting)
			return nil
		},
		Exit: func(int) error {
			g.seq.Stop()
			return nil
		},
	})
	g.phases.Register(phase.Production, phase.Handler{
		Enter: func(cycle int) error {
			_, err := g.cons.ResolveInstallations(cycle)
			g.prod.Apply(cycle)
			return err
		},
	})
	g.phases.Register(phase.ResourceAuction, phase.Handler{
		Enter: func(int) error {
			g.market.Begin(phase.Group(phase.ResourceAuction))
			g.beginTurns(phase.ResourceAuction)
			return nil
		},
		Exit: func(int) error {
			g.seq.Stop()
			g.market.Stop()
			return nil
		},
	})
	g.phases.Register(phase.EndOfCycle, phase.Handler{
		Enter: func(cycle int) error {
			g.prod.ApplyDecay(cycle)
			g.market.EndCycle(cycle)
			g.market.RefreshQuotes()
			return nil
		},
	})
}

func (g *Game) beginTurns(name string) {
	g.seq.Begin(name, phase.Group(name), g.rules[name])
}

// requestAdvance is the completion hook of the sequencer and the market.
func (g *Game) requestAdvance() {
	if g.phases.Ended() {
		return
	}
	if err := g.phases.Advance(); err != nil {
		g.log.Warn().Err(err).Msg("completion advance refused")
	}
}

func (g *Game) finalScoring(cycle int) map[string]any {
	g.standings = g.reg.Standings()
	rows := make([]map[string]any, 0, len(g.standings))
	for _, s := range g.standings {
		rows = append(rows, map[string]any{
			"rank":   s.Rank,
			"player": s.PlayerID,
			"name":   s.Name,
			"wealth": s.Wealth,
		})
	}
	if len(g.standings) > 0 {
		g.log.Info().Str("winner", g.standings[0].PlayerID).Int("wealth", g.standings[0].Wealth).Msg("final standings")
	}
	return map[string]any{"standings": rows}
}

func (g *Game) ID() string                        { return g.id }
func (g *Game) Tuning() tuning.Tuning             { return g.tun }
func (g *Game) Catalogs() *catalogs.Catalogs      { return g.cats }
func (g *Game) Bus() *bus.Bus                     { return g.bus }
func (g *Game) Clock() *clock.Clock               { return g.clock }
func (g *Game) Timers() *clock.Timers             { return g.timers }
func (g *Game) Registry() *registry.Registry      { return g.reg }
func (g *Game) Market() *market.Engine            { return g.market }
func (g *Game) Territory() *territory.Acquisition { return g.acq }
func (g *Game) Production() *production.Engine    { return g.prod }
func (g *Game) Constructs() *constructs.Manager   { return g.cons }
func (g *Game) Turns() *turns.Sequencer           { return g.seq }
func (g *Game) Cycle() int                        { return g.phases.Cycle() }
func (g *Game) Phase() string                     { return g.phases.Phase() }
func (g *Game) Ended() bool                       { return g.phases.Ended() }
func (g *Game) Paused() bool                      { return g.paused }
func (g *Game) Fault() error                      { return g.fault }
func (g *Game) Bank() *clock.Bank                 { return g.bank }

// Standings is empty until the game ends.
func (g *Game) Standings() []registry.Standing {
	return append([]registry.Standing(nil), g.standings...)
}
