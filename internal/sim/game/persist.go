package game

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"arcanecycles.io/internal/persistence/snapshot"
	"arcanecycles.io/internal/persistence/store"
	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/fault"
	"arcanecycles.io/internal/sim/phase"
	"arcanecycles.io/internal/sim/registry"
)

const autoSaveSlot = "auto"

// Snapshot captures the full game state.
func (g *Game) Snapshot() snapshot.V1 {
	snap := snapshot.V1{
		Version:   snapshot.Version,
		GameID:    g.id,
		Seed:      g.tun.Seed,
		Tuning:    g.tun,
		ClockNow:  g.clock.Now(),
		Paused:    g.paused,
		Registry:  g.reg.Export(),
		Phase:     g.phases.State(),
		Turns:     g.seq.State(),
		Territory: g.acq.State(),
		Market:    g.market.State(),
		Banks:     g.bank.Balances(),
	}
	if g.fault != nil {
		snap.Fault = g.fault.Error()
	}
	return snap
}

// Save encodes a snapshot into slot through the configured store.
func (g *Game) Save(ctx context.Context, slot string) (snapshot.Header, error) {
	g.bus.Hold()
	defer g.bus.Release()
	if g.store == nil {
		return snapshot.Header{}, fault.Actionf(protocol.ErrConflict, "no save store configured")
	}
	if err := store.ValidSlot(slot); err != nil {
		return snapshot.Header{}, fault.Validationf(protocol.ErrBadRequest, "%v", err)
	}
	codec, err := snapshot.ParseCodec(g.tun.Storage.Codec)
	if err != nil {
		return snapshot.Header{}, fault.Validationf(protocol.ErrBadRequest, "%v", err)
	}
	var buf bytes.Buffer
	h, err := snapshot.Encode(&buf, g.Snapshot(), snapshot.Header{
		GameID:  g.id,
		SaveID:  uuid.NewString(),
		Slot:    slot,
		Cycle:   g.Cycle(),
		Phase:   g.Phase(),
		SavedAt: time.Now().UTC(),
	}, codec)
	if err != nil {
		return h, &fault.Error{Kind: fault.System, Code: protocol.ErrInternal, Msg: "encode snapshot", Err: err}
	}
	if err := g.store.Save(ctx, slot, buf.Bytes()); err != nil {
		return h, &fault.Error{Kind: fault.System, Code: protocol.ErrInternal, Msg: "write save " + slot, Err: err}
	}
	g.lastSave = h.SaveID
	g.log.Info().Str("slot", slot).Str("save_id", h.SaveID).Int("bytes", buf.Len()).Msg("game saved")
	g.bus.Publish(bus.GameSaved, map[string]any{"slot": slot, "save_id": h.SaveID, "cycle": h.Cycle, "phase": h.Phase})
	return h, nil
}

// Load replaces the whole game state with the snapshot in slot. Timers are
// re-armed with the remaining time they had when saved.
func (g *Game) Load(ctx context.Context, slot string) (snapshot.Header, error) {
	g.bus.Hold()
	defer g.bus.Release()
	if g.store == nil {
		return snapshot.Header{}, fault.Actionf(protocol.ErrConflict, "no save store configured")
	}
	raw, err := g.store.Load(ctx, slot)
	if err != nil {
		return snapshot.Header{}, &fault.Error{Kind: fault.Validation, Code: protocol.ErrInvalidTarget, Msg: "read save " + slot, Err: err}
	}
	snap, h, err := snapshot.Decode(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, snapshot.ErrVersionMismatch) {
			return h, &fault.Error{Kind: fault.Validation, Code: protocol.ErrConflict, Msg: "incompatible save", Err: err}
		}
		return h, &fault.Error{Kind: fault.System, Code: protocol.ErrInternal, Msg: "decode save " + slot, Err: err}
	}
	if err := g.Restore(snap); err != nil {
		return h, err
	}
	g.log.Info().Str("slot", slot).Str("save_id", h.SaveID).Int("cycle", h.Cycle).Str("phase", h.Phase).Msg("game loaded")
	g.bus.Publish(bus.GameLoaded, map[string]any{"slot": slot, "save_id": h.SaveID, "cycle": h.Cycle, "phase": h.Phase})
	return h, nil
}

// Restore applies snap in place. Every part of the snapshot is checked
// before anything changes, so a rejected snapshot leaves the game untouched.
func (g *Game) Restore(snap snapshot.V1) error {
	if snap.Version != snapshot.Version {
		return &fault.Error{Kind: fault.Validation, Code: protocol.ErrConflict, Msg: "incompatible save",
			Err: fmt.Errorf("%w: got %d", snapshot.ErrVersionMismatch, snap.Version)}
	}
	if !snap.Tuning.SameRules(g.tun) {
		return fault.Validationf(protocol.ErrConflict, "save was made under different tuning")
	}
	if err := phase.CheckState(snap.Phase); err != nil {
		return err
	}
	if snap.Turns.Phase != "" {
		if _, ok := g.rules[snap.Turns.Phase]; !ok {
			return fault.Validationf(protocol.ErrBadRequest, "unknown turn phase %q", snap.Turns.Phase)
		}
	}
	reg := registry.New(g.tun.Wealth)
	if err := reg.Import(snap.Registry); err != nil {
		return &fault.Error{Kind: fault.Validation, Code: protocol.ErrBadRequest, Msg: "corrupt save", Err: err}
	}
	for _, id := range snap.Turns.Order {
		if _, ok := reg.Player(id); !ok {
			return fault.Validationf(protocol.ErrBadRequest, "turn order names unknown player %s", id)
		}
	}

	// Nothing below may fail.
	*g.reg = *reg
	g.timers.Reset()
	g.clock.Set(snap.ClockNow)
	g.id = snap.GameID
	g.fault = nil
	if snap.Fault != "" {
		g.fault = errors.New(snap.Fault)
	}
	for id, d := range snap.Banks {
		g.bank.Set(id, d)
	}
	if err := g.phases.Restore(snap.Phase); err != nil {
		g.raise(err)
		return err
	}
	g.seq.Restore(snap.Turns, g.rules[snap.Turns.Phase])
	g.acq.Restore(snap.Territory)
	g.market.Restore(snap.Market)

	g.paused = false
	if snap.Paused {
		g.pause("restored")
	}
	g.standings = nil
	if g.phases.Ended() {
		g.standings = g.reg.Standings()
	}
	return nil
}

// Saves lists the occupied save slots.
func (g *Game) Saves(ctx context.Context) ([]string, error) {
	if g.store == nil {
		return nil, nil
	}
	slots, err := g.store.List(ctx)
	if err != nil {
		return nil, &fault.Error{Kind: fault.System, Code: protocol.ErrInternal, Msg: "list saves", Err: err}
	}
	return slots, nil
}

// LastSaveID is the save id of the most recent successful Save.
func (g *Game) LastSaveID() string { return g.lastSave }

func (g *Game) onCycleStarted(ev bus.Event) {
	if !g.tun.AutoSave || g.store == nil {
		return
	}
	if _, err := g.Save(context.Background(), autoSaveSlot); err != nil {
		g.log.Error().Err(err).Msg("auto-save failed")
	}
}
