package territory

// State is the serialisable claim book.
type State struct {
	Cycle      int                 `json:"cycle"`
	Open       bool                `json:"open"`
	Resolved   bool                `json:"resolved"`
	FreeClaims map[string]int      `json:"free_claims"`
	Claims     map[string][]string `json:"claims,omitempty"`
	Bids       map[string][]Bid    `json:"bids,omitempty"`
	BidSeq     uint64              `json:"bid_seq"`
}

func (a *Acquisition) State() State {
	st := State{
		Cycle:      a.cycle,
		Open:       a.open,
		Resolved:   a.resolved,
		FreeClaims: map[string]int{},
		Claims:     map[string][]string{},
		Bids:       map[string][]Bid{},
		BidSeq:     a.bidSeq,
	}
	for k, v := range a.freeClaims {
		st.FreeClaims[k] = v
	}
	for k, v := range a.claims {
		st.Claims[k] = append([]string(nil), v...)
	}
	for k, v := range a.bids {
		st.Bids[k] = append([]Bid(nil), v...)
	}
	return st
}

func (a *Acquisition) Restore(st State) {
	a.cycle = st.Cycle
	a.open = st.Open
	a.resolved = st.Resolved
	a.bidSeq = st.BidSeq
	a.freeClaims = map[string]int{}
	a.claims = map[string][]string{}
	a.bids = map[string][]Bid{}
	for k, v := range st.FreeClaims {
		a.freeClaims[k] = v
	}
	for k, v := range st.Claims {
		a.claims[k] = append([]string(nil), v...)
	}
	for k, v := range st.Bids {
		a.bids[k] = append([]Bid(nil), v...)
	}
}
