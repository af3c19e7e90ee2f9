package bus

// Event names.
const (
	CycleStarted          = "cycle.started"
	PhaseStarted          = "phase.started"
	PhaseEnded            = "phase.ended"
	TurnStarted           = "turn.started"
	TurnEnded             = "turn.ended"
	TurnSequenceCompleted = "turn.sequence.completed"

	TerritoryClaimed         = "territory.claimed"
	TerritoryDisputed        = "territory.disputed"
	DisputeResolved          = "dispute.resolved"
	TerritoryBidPlaced       = "territory.bid.placed"
	TerritoryAuctionResolved = "territory.auction.resolved"

	ConstructPurchased = "construct.purchased"
	ConstructInstalled = "construct.installed"
	ConstructUpgraded  = "construct.upgraded"
	ConstructRepaired  = "construct.repaired"

	ProductionApplied = "production.applied"
	ResourcesDecayed  = "resources.decayed"
	StorageOverflow   = "storage.overflow"

	TimerWarning  = "timer.warning"
	TimerExpired  = "timer.expired"
	TimeBankDrawn = "timebank.drawn"

	AuctionWindowOpened   = "auction.window.opened"
	AuctionWindowClosed   = "auction.window.closed"
	AuctionPositionUpdate = "auction.position.updated"
	AuctionPositionDrop   = "auction.position.cancelled"
	AuctionTradeExecuted  = "auction.trade.executed"
	AuctionCompleted      = "auction.completed"
	MarketPriceUpdated    = "market.price.updated"
	MarketEventTriggered  = "market.event.triggered"
	MarketEventExpired    = "market.event.expired"

	ActionExecuted = "action.executed"
	ActionRejected = "action.rejected"

	SystemError = "system.error"
	GamePaused  = "game.paused"
	GameResumed = "game.resumed"
	GameSaved   = "game.saved"
	GameLoaded  = "game.loaded"
	GameEnded   = "game.ended"
)
