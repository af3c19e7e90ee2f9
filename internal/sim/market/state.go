package market

import (
	"time"

	"arcanecycles.io/internal/sim/model"
)

// State is the serialisable auction: book, quotes, history, trades, events
// and the remaining time on each auction timer.
type State struct {
	Group   string     `json:"group"`
	Running bool       `json:"running"`
	Open    bool       `json:"open"`
	Window  int        `json:"window"`
	Book    []Position `json:"book,omitempty"`
	BookSeq uint64     `json:"book_seq"`

	Quotes  map[model.Resource]float64 `json:"quotes"`
	History map[model.Resource]History `json:"history"`

	Trades   []Trade `json:"trades,omitempty"`
	TradeSeq uint64  `json:"trade_seq"`

	Events   []ActiveEvent `json:"events,omitempty"`
	EventSeq uint64        `json:"event_seq"`
	Rolls    uint64        `json:"rolls"`

	WindowRemaining     time.Duration            `json:"window_remaining"`
	TransitionRemaining time.Duration            `json:"transition_remaining"`
	EventRemaining      map[uint64]time.Duration `json:"event_remaining,omitempty"`
}

func (m *Engine) State() State {
	st := State{
		Group:          m.group,
		Running:        m.running,
		Open:           m.open,
		Window:         m.window,
		BookSeq:        m.book.seq,
		Quotes:         m.Quotes(),
		History:        map[model.Resource]History{},
		Trades:         m.Trades(),
		TradeSeq:       m.tradeSeq,
		Events:         m.Events(),
		EventSeq:       m.eventSeq,
		Rolls:          m.rolls,
		EventRemaining: map[uint64]time.Duration{},
	}
	for _, p := range m.book.sorted(func(*Position) bool { return true }) {
		st.Book = append(st.Book, *p)
	}
	for r, h := range m.history {
		st.History[r] = History{Limit: h.Limit, Points: append([]PricePoint(nil), h.Points...)}
	}
	st.WindowRemaining, _ = m.timers.Remaining(windowTimer)
	st.TransitionRemaining, _ = m.timers.Remaining(transitionTimer)
	for _, ev := range st.Events {
		if rem, ok := m.timers.Remaining(eventTimerName(ev.Seq)); ok {
			st.EventRemaining[ev.Seq] = rem
		}
	}
	return st
}

// Restore replaces the auction state and re-arms its timers.
func (m *Engine) Restore(st State) {
	m.timers.Cancel(windowTimer)
	m.timers.Cancel(transitionTimer)
	for _, seq := range m.eventOrder() {
		m.timers.Cancel(eventTimerName(seq))
	}
	m.group = st.Group
	m.running = st.Running
	m.open = st.Open
	m.window = st.Window
	m.book = NewBook()
	for _, p := range st.Book {
		cp := p
		m.book.positions[cp.Player] = &cp
	}
	m.book.seq = st.BookSeq
	m.quotes = map[model.Resource]float64{}
	for k, v := range st.Quotes {
		m.quotes[k] = v
	}
	for _, r := range model.Resources {
		h := st.History[r]
		if h.Limit == 0 {
			h.Limit = m.tun.HistoryLength
		}
		m.history[r] = &History{Limit: h.Limit, Points: append([]PricePoint(nil), h.Points...)}
	}
	m.trades = append([]Trade(nil), st.Trades...)
	m.tradeSeq = st.TradeSeq
	m.events = map[uint64]*ActiveEvent{}
	for _, ev := range st.Events {
		cp := ev
		m.events[cp.Seq] = &cp
	}
	m.eventSeq = st.EventSeq
	m.rolls = st.Rolls

	for seq, rem := range st.EventRemaining {
		if _, ok := m.events[seq]; ok && rem > 0 {
			m.armEventTimer(seq, rem)
		}
	}
	if m.open && st.WindowRemaining > 0 {
		m.armWindowTimer(st.WindowRemaining)
	}
	if m.running && !m.open && st.TransitionRemaining > 0 {
		m.armTransitionTimer(st.TransitionRemaining)
	}
}
