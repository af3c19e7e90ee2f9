// Package registry owns the id-indexed arenas for players, territories and
// constructs. Relationships are stored as ids and resolved here; no component
// keeps pointers into another component's state.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"arcanecycles.io/internal/sim/model"
	"arcanecycles.io/internal/sim/tuning"
)

var (
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrUnknownTerritory   = errors.New("unknown territory")
	ErrUnknownConstruct   = errors.New("unknown construct")
	ErrDuplicatePlayer    = errors.New("duplicate player")
	ErrInsufficientGold   = errors.New("insufficient gold")
	ErrInsufficientAmount = errors.New("insufficient resource")
	ErrNegativeAmount     = errors.New("negative amount")
)

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Seat is the registration index. It breaks every wealth tie.
	Seat      int           `json:"seat"`
	Gold      int           `json:"gold"`
	Resources model.Amounts `json:"resources"`

	Territories []string `json:"territories"`
	Constructs  []string `json:"constructs"`

	StorageLevels     model.Amounts `json:"storage_levels"`
	PreservationTiers model.Amounts `json:"preservation_tiers"`
}

type Territory struct {
	ID           string        `json:"id"`
	Hex          model.Hex     `json:"hex"`
	Terrain      model.Terrain `json:"terrain"`
	Owner        string        `json:"owner,omitempty"`
	Construct    string        `json:"construct,omitempty"`
	Improvements []string      `json:"improvements,omitempty"`
	// Interference is the penalty factor contributed by each neighbour,
	// refreshed at every production pass.
	Interference map[string]float64 `json:"interference,omitempty"`
}

type Construct struct {
	ID         string                `json:"id"`
	Type       model.ConstructType   `json:"type"`
	Level      int                   `json:"level"`
	Owner      string                `json:"owner"`
	Territory  string                `json:"territory,omitempty"`
	Status     model.ConstructStatus `json:"status"`
	Efficiency float64               `json:"efficiency"`
}

// Players is the single lookup every component resolves players through.
type Players interface {
	Player(id string) (*Player, bool)
	IDs() []string
	Wealth(id string) int
	ByWealth(ids []string) []string
	CreditGold(id string, amount int) error
	DebitGold(id string, amount int) error
	AddResource(id string, r model.Resource, n int) error
	RemoveResource(id string, r model.Resource, n int) error
}

type Registry struct {
	weights tuning.Wealth

	players     map[string]*Player
	order       []string
	territories map[string]*Territory
	byHex       map[model.Hex]string
	constructs  map[string]*Construct
	nextConstr  uint64
}

var _ Players = (*Registry)(nil)

func New(weights tuning.Wealth) *Registry {
	return &Registry{
		weights:     weights,
		players:     map[string]*Player{},
		territories: map[string]*Territory{},
		byHex:       map[model.Hex]string{},
		constructs:  map[string]*Construct{},
	}
}

// AddPlayer registers a player in the next seat.
func (r *Registry) AddPlayer(id, name string, gold int) (*Player, error) {
	if id == "" {
		return nil, fmt.Errorf("player id is empty")
	}
	if _, ok := r.players[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, id)
	}
	if gold < 0 {
		return nil, fmt.Errorf("%w: starting gold %d", ErrNegativeAmount, gold)
	}
	p := &Player{
		ID:                id,
		Name:              name,
		Seat:              len(r.order),
		Gold:              gold,
		Resources:         model.Amounts{},
		StorageLevels:     model.Amounts{},
		PreservationTiers: model.Amounts{},
	}
	for _, res := range model.Resources {
		p.Resources[res] = 0
	}
	r.players[id] = p
	r.order = append(r.order, id)
	return p, nil
}

func (r *Registry) Player(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// IDs returns player ids in seat order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) NumPlayers() int { return len(r.order) }

func (r *Registry) AddTerritory(t *Territory) error {
	if _, ok := r.territories[t.ID]; ok {
		return fmt.Errorf("duplicate territory %s", t.ID)
	}
	if t.Interference == nil {
		t.Interference = map[string]float64{}
	}
	r.territories[t.ID] = t
	r.byHex[t.Hex] = t.ID
	return nil
}

func (r *Registry) Territory(id string) (*Territory, bool) {
	t, ok := r.territories[id]
	return t, ok
}

func (r *Registry) TerritoryAt(h model.Hex) (*Territory, bool) {
	id, ok := r.byHex[h]
	if !ok {
		return nil, false
	}
	return r.territories[id], true
}

// TerritoryIDs returns every territory id, sorted.
func (r *Registry) TerritoryIDs() []string {
	ids := make([]string, 0, len(r.territories))
	for id := range r.territories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Neighbors returns the territories adjacent to id that exist on the map.
func (r *Registry) Neighbors(id string) []*Territory {
	t, ok := r.territories[id]
	if !ok {
		return nil
	}
	out := make([]*Territory, 0, 6)
	for _, h := range t.Hex.Neighbors() {
		if n, ok := r.TerritoryAt(h); ok {
			out = append(out, n)
		}
	}
	return out
}

// AssignTerritory makes owner the owner of an unowned territory.
func (r *Registry) AssignTerritory(territoryID, owner string) error {
	t, ok := r.territories[territoryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTerritory, territoryID)
	}
	p, ok := r.players[owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, owner)
	}
	if t.Owner != "" {
		return fmt.Errorf("territory %s already owned by %s", territoryID, t.Owner)
	}
	t.Owner = owner
	p.Territories = append(p.Territories, territoryID)
	return nil
}

// NewConstruct creates a construct in the owner's inventory.
func (r *Registry) NewConstruct(owner string, ct model.ConstructType) (*Construct, error) {
	p, ok := r.players[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, owner)
	}
	r.nextConstr++
	c := &Construct{
		ID:         ConstructID(r.nextConstr),
		Type:       ct,
		Level:      model.MinConstructLevel,
		Owner:      owner,
		Status:     model.StatusInventory,
		Efficiency: 1.0,
	}
	r.constructs[c.ID] = c
	p.Constructs = append(p.Constructs, c.ID)
	return c, nil
}

func ConstructID(n uint64) string {
	return fmt.Sprintf("C%06d", n)
}

func (r *Registry) Construct(id string) (*Construct, bool) {
	c, ok := r.constructs[id]
	return c, ok
}

// ConstructIDs returns every construct id, sorted.
func (r *Registry) ConstructIDs() []string {
	ids := make([]string, 0, len(r.constructs))
	for id := range r.constructs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PlaceConstruct binds a construct to an empty territory.
func (r *Registry) PlaceConstruct(constructID, territoryID string) error {
	c, ok := r.constructs[constructID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConstruct, constructID)
	}
	t, ok := r.territories[territoryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTerritory, territoryID)
	}
	if t.Construct != "" {
		return fmt.Errorf("territory %s already bears %s", territoryID, t.Construct)
	}
	t.Construct = constructID
	c.Territory = territoryID
	return nil
}

// UnplaceConstruct returns a construct to inventory, freeing its territory.
func (r *Registry) UnplaceConstruct(constructID string) error {
	c, ok := r.constructs[constructID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConstruct, constructID)
	}
	if t, ok := r.territories[c.Territory]; ok && t.Construct == constructID {
		t.Construct = ""
	}
	c.Territory = ""
	c.Status = model.StatusInventory
	return nil
}

// ActiveConstructOn returns the construct on a territory if it is active.
func (r *Registry) ActiveConstructOn(territoryID string) (*Construct, bool) {
	t, ok := r.territories[territoryID]
	if !ok || t.Construct == "" {
		return nil, false
	}
	c, ok := r.constructs[t.Construct]
	if !ok || c.Status != model.StatusActive {
		return nil, false
	}
	return c, true
}
