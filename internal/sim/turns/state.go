package turns

import "time"

// State is the serialisable view of a sequence in progress.
type State struct {
	Phase         string          `json:"phase"`
	Group         string          `json:"group"`
	Active        bool            `json:"active"`
	Order         []string        `json:"order"`
	Current       int             `json:"current"`
	Budgets       map[string]int  `json:"budgets"`
	Done          map[string]bool `json:"done,omitempty"`
	TurnRemaining time.Duration   `json:"turn_remaining"`
}

func (s *Sequencer) State() State {
	st := State{
		Phase:   s.phase,
		Group:   s.group,
		Active:  s.active,
		Order:   append([]string(nil), s.order...),
		Current: s.current,
		Budgets: make(map[string]int, len(s.budgets)),
		Done:    make(map[string]bool, len(s.done)),
	}
	for k, v := range s.budgets {
		st.Budgets[k] = v
	}
	for k, v := range s.done {
		st.Done[k] = v
	}
	if cur := s.Current(); cur != "" {
		st.TurnRemaining, _ = s.timers.Remaining(s.turnTimerName(cur))
	}
	return st
}

// Restore resumes a saved sequence under rule, re-arming the holder's turn
// timer with its saved remaining time.
func (s *Sequencer) Restore(st State, rule Rule) {
	s.stopTurnTimers()
	s.phase = st.Phase
	s.group = st.Group
	s.rule = rule
	s.active = st.Active
	s.order = append([]string(nil), st.Order...)
	s.current = st.Current
	s.budgets = map[string]int{}
	s.done = map[string]bool{}
	for k, v := range st.Budgets {
		s.budgets[k] = v
	}
	for k, v := range st.Done {
		s.done[k] = v
	}
	if cur := s.Current(); cur != "" && st.TurnRemaining > 0 {
		limit := s.turnLimit(cur)
		if st.TurnRemaining > limit {
			limit = st.TurnRemaining
		}
		s.armTurnTimer(cur, limit, st.TurnRemaining)
	}
}
