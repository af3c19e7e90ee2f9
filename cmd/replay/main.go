// Command replay inspects a save file and walks an event journal, checking
// sequence continuity and printing the events that match the filters.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"arcanecycles.io/internal/persistence/journal"
	"arcanecycles.io/internal/persistence/snapshot"
)

func main() {
	var (
		savePath   = flag.String("save", "", "path to a .snap save file (optional)")
		journalDir = flag.String("journal", "", "journal directory containing events-*.jsonl.zst (optional)")
		name       = flag.String("name", "", "only print events whose name has this prefix")
		player     = flag.String("player", "", "only print events whose data names this player")
		fromSeq    = flag.Uint64("from_seq", 0, "skip events before this sequence number")
		quiet      = flag.Bool("q", false, "print the summary only")
	)
	flag.Parse()

	if *savePath == "" && *journalDir == "" {
		fmt.Fprintln(os.Stderr, "missing -save or -journal")
		os.Exit(2)
	}

	if *savePath != "" {
		if err := inspectSave(*savePath); err != nil {
			fmt.Fprintln(os.Stderr, "read save:", err)
			os.Exit(1)
		}
	}
	if *journalDir == "" {
		return
	}

	var (
		last    uint64
		total   int
		printed int
		gaps    int
		counts  = map[string]int{}
	)
	err := journal.ReadAll(*journalDir, func(e journal.Entry) error {
		if last != 0 && e.Seq != last+1 {
			gaps++
			fmt.Fprintf(os.Stderr, "seq gap: %d -> %d\n", last, e.Seq)
		}
		last = e.Seq
		total++
		counts[e.Name]++
		if e.Seq < *fromSeq || !strings.HasPrefix(e.Name, *name) || !mentions(e, *player) || *quiet {
			return nil
		}
		printed++
		data, _ := json.Marshal(e.Data)
		fmt.Printf("%8d %10s %-28s %s\n", e.Seq, (time.Duration(e.AtMs) * time.Millisecond).String(), e.Name, data)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Printf("journal: events=%d printed=%d last_seq=%d gaps=%d\n", total, printed, last, gaps)
	for _, n := range names {
		fmt.Printf("  %-28s %d\n", n, counts[n])
	}
	if gaps > 0 {
		os.Exit(1)
	}
}

func inspectSave(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	snap, h, err := snapshot.Decode(f)
	if err != nil {
		return err
	}
	fmt.Printf("save v%d game=%s slot=%s save_id=%s cycle=%d phase=%s codec=%s saved_at=%s\n",
		h.Version, h.GameID, h.Slot, h.SaveID, h.Cycle, h.Phase, h.Codec, h.SavedAt.Format(time.RFC3339))
	fmt.Printf("  clock=%s paused=%v territories=%d constructs=%d trades=%d\n",
		snap.ClockNow, snap.Paused, len(snap.Registry.Territories), len(snap.Registry.Constructs), len(snap.Market.Trades))
	if snap.Fault != "" {
		fmt.Printf("  fault: %s\n", snap.Fault)
	}
	for _, p := range snap.Registry.Players {
		fmt.Printf("  %-10s %-12s gold=%-6d territories=%-3d constructs=%d\n", p.ID, p.Name, p.Gold, len(p.Territories), len(p.Constructs))
	}
	return nil
}

func mentions(e journal.Entry, player string) bool {
	if player == "" {
		return true
	}
	for _, k := range []string{"player", "buyer", "seller", "winner"} {
		if v, ok := e.Data[k].(string); ok && v == player {
			return true
		}
	}
	return false
}
