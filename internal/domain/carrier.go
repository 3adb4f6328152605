package domain

// CarrierIdentity is the derived identity of a fleet carrier. It is built
// fresh from an event window on every query and never persisted.
type CarrierIdentity struct {
	CarrierID     int64
	Callsign      string
	Name          string
	DockingAccess string
	Services      []string // activated, non-captain crew roles, lower-cased
	StarSystem    string
	SystemAddress int64
	TotalCapacity int
	UsedSpace     int
	FreeSpace     int
}

// CarrierTradeOrder is the current believed state of one buy or sell order
// on a carrier market. Commodity is the normalized lookup key.
type CarrierTradeOrder struct {
	Commodity string
	LocalName string
	Amount    int
	Price     int64
}

// CarrierCargoItem is one commodity currently believed to be in the
// carrier's tradeable cargo.
type CarrierCargoItem struct {
	Commodity string
	LocalName string
	Quantity  int
}

// CarrierState is the full derived view of a carrier: identity plus the
// latest-wins projection of its orders and cargo. There is no history,
// only current believed state.
type CarrierState struct {
	CarrierIdentity
	Cargo      []CarrierCargoItem
	BuyOrders  []CarrierTradeOrder
	SellOrders []CarrierTradeOrder
}
