// Package bus is the in-process publish/subscribe channel every simulation
// component publishes to. Dispatch is synchronous but never re-entrant: events
// published while a handler runs (or while the bus is held) are queued and
// delivered in FIFO order once the current handler returns.
package bus

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// All subscribes a handler to every event.
const All = "*"

type Event struct {
	Seq  uint64         `json:"seq"`
	Name string         `json:"name"`
	At   time.Duration  `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

type Handler func(Event)

type SubID uint64

type subscription struct {
	id      SubID
	name    string
	handler Handler
}

type Bus struct {
	log zerolog.Logger
	now func() time.Duration

	subs    map[string][]subscription
	removed map[SubID]bool
	nextSub SubID
	nextSeq uint64

	queue       []Event
	holds       int
	dispatching bool

	// OnHandlerPanic is invoked (after recovery) when a subscriber panics.
	OnHandlerPanic func(ev Event, recovered any)
}

func New(logger zerolog.Logger, now func() time.Duration) *Bus {
	if now == nil {
		now = func() time.Duration { return 0 }
	}
	return &Bus{
		log:     logger.With().Str("component", "bus").Logger(),
		now:     now,
		subs:    map[string][]subscription{},
		removed: map[SubID]bool{},
	}
}

func (b *Bus) Subscribe(name string, h Handler) SubID {
	b.nextSub++
	id := b.nextSub
	b.subs[name] = append(b.subs[name], subscription{id: id, name: name, handler: h})
	return id
}

func (b *Bus) Unsubscribe(id SubID) {
	for name, list := range b.subs {
		for i, s := range list {
			if s.id != id {
				continue
			}
			b.subs[name] = append(list[:i:i], list[i+1:]...)
			if b.dispatching {
				b.removed[id] = true
			}
			return
		}
	}
}

// Publish queues an event and dispatches it unless a dispatch is already in
// progress or the bus is held.
func (b *Bus) Publish(name string, data map[string]any) Event {
	b.nextSeq++
	ev := Event{Seq: b.nextSeq, Name: name, At: b.now(), Data: data}
	b.queue = append(b.queue, ev)
	b.drain()
	return ev
}

// Hold defers dispatch until the matching Release. Holds nest.
func (b *Bus) Hold() { b.holds++ }

func (b *Bus) Release() {
	if b.holds == 0 {
		return
	}
	b.holds--
	b.drain()
}

// Pending reports queued, undelivered events.
func (b *Bus) Pending() int { return len(b.queue) }

func (b *Bus) drain() {
	if b.dispatching || b.holds > 0 {
		return
	}
	b.dispatching = true
	defer func() {
		b.dispatching = false
		b.removed = map[SubID]bool{}
	}()
	for len(b.queue) > 0 {
		ev := b.queue[0]
		b.queue = b.queue[1:]
		for _, s := range b.targets(ev.Name) {
			if b.removed[s.id] {
				continue
			}
			b.deliver(s, ev)
		}
	}
}

func (b *Bus) targets(name string) []subscription {
	named := b.subs[name]
	all := b.subs[All]
	out := make([]subscription, 0, len(named)+len(all))
	out = append(out, named...)
	out = append(out, all...)
	// Subscription order, regardless of name vs wildcard.
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event", ev.Name).
				Uint64("seq", ev.Seq).
				Str("panic", fmt.Sprint(r)).
				Msg("subscriber panicked")
			if b.OnHandlerPanic != nil {
				b.OnHandlerPanic(ev, r)
			}
		}
	}()
	s.handler(ev)
}
