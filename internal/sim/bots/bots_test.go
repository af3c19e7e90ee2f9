package bots

import (
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/game"
	"arcanecycles.io/internal/sim/tuning"
)

func play(t *testing.T) (*game.Game, map[string]int) {
	t.Helper()
	tun := tuning.Defaults()
	tun.MaxCycles = 2
	g, err := game.New(game.Config{
		GameID: "bots",
		Tuning: tun,
		Players: []game.PlayerSpec{
			{ID: "p1", Name: "Alice"},
			{ID: "p2", Name: "Bob"},
			{ID: "p3", Name: "Charlie"},
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	counts := map[string]int{}
	g.Bus().Subscribe(bus.All, func(ev bus.Event) { counts[ev.Name]++ })
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	var bs []*Bot
	for i, id := range []string{"p1", "p2", "p3"} {
		bs = append(bs, New(id, int64(i+1), zerolog.Nop()))
	}
	if !Drive(g, bs, 4*time.Hour) {
		t.Fatalf("game did not end: cycle %d phase %s paused %v fault %v", g.Cycle(), g.Phase(), g.Paused(), g.Fault())
	}
	return g, counts
}

func TestDrive_PlaysToFinalStandings(t *testing.T) {
	g, counts := play(t)
	if g.Fault() != nil {
		t.Fatalf("fault: %v", g.Fault())
	}
	if n := len(g.Standings()); n != 3 {
		t.Fatalf("standings: %d", n)
	}
	if counts[bus.CycleStarted] != 2 || counts[bus.GameEnded] != 1 {
		t.Fatalf("cycles %d, ended %d", counts[bus.CycleStarted], counts[bus.GameEnded])
	}
	owned := 0
	for _, id := range g.Registry().IDs() {
		p, _ := g.Registry().Player(id)
		owned += len(p.Territories)
	}
	if owned == 0 {
		t.Fatalf("no territory awarded")
	}
	if counts[bus.ConstructPurchased] == 0 {
		t.Fatalf("no construct purchased")
	}
	if counts[bus.SystemError] != 0 {
		t.Fatalf("system errors: %d", counts[bus.SystemError])
	}
}

func TestDrive_Deterministic(t *testing.T) {
	a, _ := play(t)
	b, _ := play(t)
	sa, sb := a.Standings(), b.Standings()
	if !reflect.DeepEqual(sa, sb) {
		t.Fatalf("standings differ:\n%v\n%v", sa, sb)
	}
}
