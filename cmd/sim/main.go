// Command sim plays a full game headlessly with scripted bots on the virtual
// clock and prints the final standings and state digest.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/persistence/journal"
	"arcanecycles.io/internal/persistence/snapshot"
	"arcanecycles.io/internal/sim/bots"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/game"
	"arcanecycles.io/internal/sim/registry"
	"arcanecycles.io/internal/sim/tuning"
)

type summary struct {
	GameID    string              `json:"game_id"`
	Cycles    int                 `json:"cycles"`
	Ended     bool                `json:"ended"`
	VirtualS  int64               `json:"virtual_s"`
	Events    map[string]int      `json:"events"`
	Standings []registry.Standing `json:"standings"`
	Digest    string              `json:"digest"`
	Fault     string              `json:"fault,omitempty"`
}

func main() {
	var (
		configDir = flag.String("configs", "./configs", "config directory")
		nPlayers  = flag.Int("players", 4, "number of bot players")
		cycles    = flag.Int("cycles", 0, "override max_cycles (0 keeps tuning)")
		seed      = flag.Int64("seed", 0, "override tuning seed (0 keeps tuning)")
		limit     = flag.Duration("limit", 24*time.Hour, "virtual time budget")
		journalTo = flag.String("journal", "", "write the event journal under this directory")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Msg("load tuning")
		}
		tune = tuning.Defaults()
	}
	if *cycles > 0 {
		tune.MaxCycles = *cycles
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	tune.AutoSave = false
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Warn().Err(err).Msg("catalogs not loaded; using defaults")
		cats = catalogs.Defaults()
	}

	var seats []game.PlayerSpec
	for i := 1; i <= *nPlayers; i++ {
		id := fmt.Sprintf("bot%d", i)
		seats = append(seats, game.PlayerSpec{ID: id, Name: id})
	}
	g, err := game.New(game.Config{Tuning: tune, Catalogs: cats, Players: seats, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("new game")
	}

	counts := map[string]int{}
	g.Bus().Subscribe(bus.All, func(ev bus.Event) { counts[ev.Name]++ })
	if *journalTo != "" {
		jr := journal.NewEventJournal(filepath.Join(*journalTo, g.ID()), g.ID(), logger)
		jr.Attach(g.Bus())
		defer jr.Close()
	}

	if err := g.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start")
	}
	players := make([]*bots.Bot, 0, len(seats))
	for i, s := range seats {
		players = append(players, bots.New(s.ID, tune.Seed+int64(i), logger))
	}
	ended := bots.Drive(g, players, *limit)

	digest, err := snapshot.Digest(g.Snapshot())
	if err != nil {
		logger.Fatal().Err(err).Msg("digest")
	}
	out := summary{
		GameID:    g.ID(),
		Cycles:    g.Cycle(),
		Ended:     ended,
		VirtualS:  int64(g.Clock().Now() / time.Second),
		Events:    counts,
		Standings: g.Standings(),
		Digest:    digest,
	}
	if g.Fault() != nil {
		out.Fault = g.Fault().Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	if !ended {
		os.Exit(1)
	}
}
