package clock

import "time"

// Bank holds each player's persistent reserve of turn time.
type Bank struct {
	initial  time.Duration
	balances map[string]time.Duration
}

func NewBank(initial time.Duration) *Bank {
	return &Bank{initial: initial, balances: map[string]time.Duration{}}
}

func (b *Bank) Open(playerID string) {
	if _, ok := b.balances[playerID]; !ok {
		b.balances[playerID] = b.initial
	}
}

func (b *Bank) Balance(playerID string) time.Duration { return b.balances[playerID] }

func (b *Bank) Set(playerID string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.balances[playerID] = d
}

// Debit removes up to d from the player's bank and returns what was taken.
func (b *Bank) Debit(playerID string, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	bal := b.balances[playerID]
	if d > bal {
		d = bal
	}
	b.balances[playerID] = bal - d
	return d
}

// Balances returns a copy of every balance.
func (b *Bank) Balances() map[string]time.Duration {
	out := make(map[string]time.Duration, len(b.balances))
	for k, v := range b.balances {
		out[k] = v
	}
	return out
}
