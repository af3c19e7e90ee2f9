package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Token           string `json:"token"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	GameID          string     `json:"game_id"`
	PlayerID        string     `json:"player_id"`
	Cycle           int        `json:"cycle"`
	Phase           string     `json:"phase"`
	Params          GameParams `json:"params"`
}

type GameParams struct {
	MapWidth     int `json:"map_width"`
	MapHeight    int `json:"map_height"`
	MaxCycles    int `json:"max_cycles"`
	StartingGold int `json:"starting_gold"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Action          Action `json:"action"`
}

// Action is the single player action entry shape.
type Action struct {
	Type   string       `json:"type"`
	Target string       `json:"target,omitempty"`
	Params ActionParams `json:"params,omitempty"`
}

type ActionParams struct {
	Bid           int     `json:"bid,omitempty"`
	ConstructType string  `json:"construct_type,omitempty"`
	ConstructID   string  `json:"construct_id,omitempty"`
	Resource      string  `json:"resource,omitempty"`
	Side          string  `json:"side,omitempty"`
	Price         float64 `json:"price,omitempty"`
	Quantity      int     `json:"quantity,omitempty" jsonschema:"minimum=0,maximum=2147483647"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Seq             uint64         `json:"seq"`
	Name            string         `json:"name"`
	AtMs            int64          `json:"at_ms"`
	Data            map[string]any `json:"data,omitempty"`
}

// Player action types.
const (
	ActionClaimTerritory    = "claim_territory"
	ActionPurchaseConstruct = "purchase_construct"
	ActionInstallConstruct  = "install_construct"
	ActionUpgradeConstruct  = "upgrade_construct"
	ActionRepairConstruct   = "repair_construct"
	ActionBuyPreservation   = "buy_preservation"
	ActionUpgradeStorage    = "upgrade_storage"
	ActionSubmitPosition    = "submit_position"
	ActionCancelPosition    = "cancel_position"
	ActionEndTurn           = "end_turn"
)

var knownActions = map[string]struct{}{
	ActionClaimTerritory:    {},
	ActionPurchaseConstruct: {},
	ActionInstallConstruct:  {},
	ActionUpgradeConstruct:  {},
	ActionRepairConstruct:   {},
	ActionBuyPreservation:   {},
	ActionUpgradeStorage:    {},
	ActionSubmitPosition:    {},
	ActionCancelPosition:    {},
	ActionEndTurn:           {},
}

func IsKnownAction(t string) bool {
	_, ok := knownActions[t]
	return ok
}
