package clock

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"arcanecycles.io/internal/sim/bus"
)

// Spec describes a named countdown.
type Spec struct {
	Name     string
	Group    string
	Kind     string
	Subject  string
	Duration time.Duration
	// Warnings are remaining-time thresholds (e.g. 30s, 10s).
	Warnings  []time.Duration
	OnExpire  func()
	OnWarning func(remaining time.Duration)
}

// State is the externally visible view of a live timer.
type State struct {
	Name      string        `json:"name"`
	Group     string        `json:"group"`
	Kind      string        `json:"kind"`
	Subject   string        `json:"subject,omitempty"`
	Duration  time.Duration `json:"duration"`
	Remaining time.Duration `json:"remaining"`
}

type timer struct {
	spec      Spec
	deadline  time.Duration
	remaining time.Duration
	expireID  ID
	warnIDs   []ID
	warned    map[time.Duration]bool
}

// Timers tracks named countdowns on a Clock. Pausing freezes every countdown;
// resuming re-arms each with exactly the remaining time it had.
type Timers struct {
	clock  *Clock
	bus    *bus.Bus
	log    zerolog.Logger
	timers map[string]*timer
	paused bool
}

func NewTimers(c *Clock, b *bus.Bus, logger zerolog.Logger) *Timers {
	return &Timers{
		clock:  c,
		bus:    b,
		log:    logger.With().Str("component", "timers").Logger(),
		timers: map[string]*timer{},
	}
}

// Start arms (or re-arms) the named timer.
func (t *Timers) Start(spec Spec) {
	t.Cancel(spec.Name)
	tm := &timer{spec: spec, remaining: spec.Duration, warned: map[time.Duration]bool{}}
	t.timers[spec.Name] = tm
	if !t.paused {
		t.arm(tm)
	}
	t.log.Debug().Str("timer", spec.Name).Str("group", spec.Group).Dur("duration", spec.Duration).Msg("timer started")
}

func (t *Timers) Cancel(name string) bool {
	tm, ok := t.timers[name]
	if !ok {
		return false
	}
	t.disarm(tm)
	delete(t.timers, name)
	return true
}

// CancelGroup cancels every timer in group and returns how many were live.
func (t *Timers) CancelGroup(group string) int {
	n := 0
	for _, name := range t.names() {
		if t.timers[name].spec.Group == group {
			t.Cancel(name)
			n++
		}
	}
	return n
}

func (t *Timers) Remaining(name string) (time.Duration, bool) {
	tm, ok := t.timers[name]
	if !ok {
		return 0, false
	}
	return t.remainingOf(tm), true
}

// Elapsed is Duration minus Remaining for a live timer.
func (t *Timers) Elapsed(name string) (time.Duration, bool) {
	tm, ok := t.timers[name]
	if !ok {
		return 0, false
	}
	return tm.spec.Duration - t.remainingOf(tm), true
}

func (t *Timers) Has(name string) bool {
	_, ok := t.timers[name]
	return ok
}

func (t *Timers) Len() int { return len(t.timers) }

func (t *Timers) Paused() bool { return t.paused }

// Pause snapshots the remaining time of every live timer and stops firing.
func (t *Timers) Pause() {
	if t.paused {
		return
	}
	for _, tm := range t.timers {
		tm.remaining = t.remainingOf(tm)
		t.disarm(tm)
	}
	t.paused = true
}

// Resume re-arms every timer with the remaining time captured at Pause.
func (t *Timers) Resume() {
	if !t.paused {
		return
	}
	t.paused = false
	for _, name := range t.names() {
		t.arm(t.timers[name])
	}
}

// States lists live timers sorted by name.
func (t *Timers) States() []State {
	out := make([]State, 0, len(t.timers))
	for _, name := range t.names() {
		tm := t.timers[name]
		out = append(out, State{
			Name:      name,
			Group:     tm.spec.Group,
			Kind:      tm.spec.Kind,
			Subject:   tm.spec.Subject,
			Duration:  tm.spec.Duration,
			Remaining: t.remainingOf(tm),
		})
	}
	return out
}

// Restore arms spec with a remaining time shorter than its full duration.
func (t *Timers) Restore(spec Spec, remaining time.Duration) {
	t.Cancel(spec.Name)
	tm := &timer{spec: spec, remaining: remaining, warned: map[time.Duration]bool{}}
	for _, w := range spec.Warnings {
		if w >= remaining {
			tm.warned[w] = true
		}
	}
	t.timers[spec.Name] = tm
	if !t.paused {
		t.arm(tm)
	}
}

func (t *Timers) names() []string {
	names := make([]string, 0, len(t.timers))
	for name := range t.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Timers) remainingOf(tm *timer) time.Duration {
	if t.paused || tm.expireID == 0 {
		return tm.remaining
	}
	r := tm.deadline - t.clock.Now()
	if r < 0 {
		r = 0
	}
	return r
}

func (t *Timers) arm(tm *timer) {
	now := t.clock.Now()
	tm.deadline = now + tm.remaining
	name := tm.spec.Name
	for _, w := range tm.spec.Warnings {
		if tm.warned[w] || w <= 0 || w >= tm.remaining {
			continue
		}
		threshold := w
		id := t.clock.AfterFunc(tm.remaining-threshold, func() { t.warn(name, threshold) })
		tm.warnIDs = append(tm.warnIDs, id)
	}
	tm.expireID = t.clock.AfterFunc(tm.remaining, func() { t.expire(name) })
}

func (t *Timers) disarm(tm *timer) {
	if tm.expireID != 0 {
		t.clock.Cancel(tm.expireID)
		tm.expireID = 0
	}
	for _, id := range tm.warnIDs {
		t.clock.Cancel(id)
	}
	tm.warnIDs = nil
}

func (t *Timers) warn(name string, threshold time.Duration) {
	tm, ok := t.timers[name]
	if !ok || tm.warned[threshold] {
		return
	}
	tm.warned[threshold] = true
	t.bus.Publish(bus.TimerWarning, map[string]any{
		"timer":       name,
		"group":       tm.spec.Group,
		"kind":        tm.spec.Kind,
		"subject":     tm.spec.Subject,
		"remaining_s": int(threshold / time.Second),
	})
	if tm.spec.OnWarning != nil {
		tm.spec.OnWarning(threshold)
	}
}

func (t *Timers) expire(name string) {
	tm, ok := t.timers[name]
	if !ok {
		return
	}
	tm.expireID = 0
	t.disarm(tm)
	delete(t.timers, name)
	t.bus.Publish(bus.TimerExpired, map[string]any{
		"timer":   name,
		"group":   tm.spec.Group,
		"kind":    tm.spec.Kind,
		"subject": tm.spec.Subject,
	})
	if tm.spec.OnExpire != nil {
		tm.spec.OnExpire()
	}
}

// Reset cancels every timer and leaves the service unpaused.
func (t *Timers) Reset() {
	for _, name := range t.names() {
		t.Cancel(name)
	}
	t.paused = false
}
