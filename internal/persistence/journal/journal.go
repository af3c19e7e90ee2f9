// Package journal appends every bus event to hourly-rotated zstd JSONL files.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"arcanecycles.io/internal/sim/bus"
)

type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Entry is one journal line.
type Entry struct {
	GameID string         `json:"game_id"`
	Seq    uint64         `json:"seq"`
	Name   string         `json:"name"`
	AtMs   int64          `json:"at_ms"`
	Data   map[string]any `json:"data,omitempty"`
}

// EventJournal records every event published on a bus.
type EventJournal struct {
	w      *Writer
	gameID string
	log    zerolog.Logger
	sub    bus.SubID
	b      *bus.Bus
}

func NewEventJournal(dir, gameID string, logger zerolog.Logger) *EventJournal {
	return &EventJournal{
		w:      NewWriter(filepath.Join(dir, "events"), "events"),
		gameID: gameID,
		log:    logger.With().Str("component", "journal").Logger(),
	}
}

// Attach subscribes to every event on b.
func (j *EventJournal) Attach(b *bus.Bus) {
	j.b = b
	j.sub = b.Subscribe(bus.All, func(ev bus.Event) {
		if err := j.WriteEvent(ev); err != nil {
			j.log.Error().Err(err).Str("event", ev.Name).Msg("journal write failed")
		}
	})
}

func (j *EventJournal) WriteEvent(ev bus.Event) error {
	return j.w.Write(Entry{
		GameID: j.gameID,
		Seq:    ev.Seq,
		Name:   ev.Name,
		AtMs:   ev.At.Milliseconds(),
		Data:   ev.Data,
	})
}

func (j *EventJournal) Close() error {
	if j.b != nil {
		j.b.Unsubscribe(j.sub)
		j.b = nil
	}
	return j.w.Close()
}
