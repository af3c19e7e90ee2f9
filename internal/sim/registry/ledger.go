package registry

import (
	"fmt"

	"arcanecycles.io/internal/sim/model"
)

// The ledger methods validate before mutating, so a failed call leaves the
// player untouched.

func (r *Registry) CreditGold(id string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit %d", ErrNegativeAmount, amount)
	}
	p, ok := r.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	p.Gold += amount
	return nil
}

func (r *Registry) DebitGold(id string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: debit %d", ErrNegativeAmount, amount)
	}
	p, ok := r.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	if p.Gold < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientGold, id, p.Gold, amount)
	}
	p.Gold -= amount
	return nil
}

func (r *Registry) CanAfford(id string, amount int) bool {
	p, ok := r.players[id]
	return ok && amount >= 0 && p.Gold >= amount
}

func (r *Registry) AddResource(id string, res model.Resource, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: add %d %s", ErrNegativeAmount, n, res)
	}
	p, ok := r.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	if _, err := model.ParseResource(string(res)); err != nil {
		return err
	}
	p.Resources[res] += n
	return nil
}

func (r *Registry) RemoveResource(id string, res model.Resource, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: remove %d %s", ErrNegativeAmount, n, res)
	}
	p, ok := r.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	if p.Resources[res] < n {
		return fmt.Errorf("%w: %s has %d %s, needs %d", ErrInsufficientAmount, id, p.Resources[res], res, n)
	}
	p.Resources[res] -= n
	return nil
}

// Holdings sums one resource across every player.
func (r *Registry) Holdings(res model.Resource) int {
	n := 0
	for _, p := range r.players {
		n += p.Resources[res]
	}
	return n
}
