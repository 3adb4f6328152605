package domain

import (
	"encoding/json"
	"time"
)

// EventKind identifies the journal record type an Event was decoded from.
type EventKind string

// Journal event kinds promoted to typed events. Anything else is dropped
// by the decoder before field extraction.
const (
	KindColonisationDepot        EventKind = "ColonisationConstructionDepot"
	KindColonisationContribution EventKind = "ColonisationContribution"
	KindLocation                 EventKind = "Location"
	KindFSDJump                  EventKind = "FSDJump"
	KindDocked                   EventKind = "Docked"
	KindCommander                EventKind = "Commander"
	KindCarrierStats             EventKind = "CarrierStats"
	KindCarrierLocation          EventKind = "CarrierLocation"
	KindCarrierTradeOrder        EventKind = "CarrierTradeOrder"
)

// Event is one decoded journal record. Exactly one payload pointer is
// non-nil, matching Kind. Raw preserves the original line for fields that
// were not promoted to typed attributes.
//
// Events are immutable once decoded. A slice of events is ordered by file
// position, which is not necessarily timestamp order.
type Event struct {
	Timestamp time.Time
	Kind      EventKind
	Raw       json.RawMessage

	Depot           *ColonisationDepot
	Contribution    *ColonisationContribution
	Location        *LocationEvent
	Jump            *FSDJumpEvent
	Docked          *DockedEvent
	Commander       *CommanderEvent
	CarrierStats    *CarrierStatsEvent
	CarrierLocation *CarrierLocationEvent
	CarrierTrade    *CarrierTradeOrderEvent
}

// DepotResource is one commodity requirement inside a depot snapshot.
type DepotResource struct {
	Name          string `json:"Name"`
	NameLocalised string `json:"Name_Localised"`
	Required      int    `json:"RequiredAmount"`
	Provided      int    `json:"ProvidedAmount"`
	Payment       int    `json:"Payment"`
}

// ColonisationDepot is a full snapshot of one construction site's progress.
// The game emits these repeatedly (and near-identically) while the player
// is docked at the depot. Station and system fields are frequently absent.
type ColonisationDepot struct {
	MarketID             int64           `json:"MarketID"`
	StationName          string          `json:"StationName"`
	StationType          string          `json:"StationType"`
	StarSystem           string          `json:"StarSystem"`
	SystemAddress        int64           `json:"SystemAddress"`
	ConstructionProgress float64         `json:"ConstructionProgress"`
	ConstructionComplete bool            `json:"ConstructionComplete"`
	ConstructionFailed   bool            `json:"ConstructionFailed"`
	ResourcesRequired    []DepotResource `json:"ResourcesRequired"`
}

// ColonisationContribution records the cumulative (not incremental) amount
// delivered for one commodity at one construction market.
type ColonisationContribution struct {
	MarketID int64  `json:"MarketID"`
	Name     string `json:"Name"`
	Amount   int    `json:"Amount"`
}

// LocationEvent is emitted on login and on certain position changes.
type LocationEvent struct {
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
	Docked        bool   `json:"Docked"`
	StationName   string `json:"StationName"`
	StationType   string `json:"StationType"`
}

// FSDJumpEvent is emitted on arrival in a new star system.
type FSDJumpEvent struct {
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
}

// DockedEvent is emitted when the player docks at any station.
type DockedEvent struct {
	StationName   string `json:"StationName"`
	StationType   string `json:"StationType"`
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
	MarketID      int64  `json:"MarketID"`
}

// CommanderEvent identifies the player owning the journal.
type CommanderEvent struct {
	Name string `json:"Name"`
	FID  string `json:"FID"`
}

// CarrierCrew is one crew role entry in a carrier stats record.
type CarrierCrew struct {
	CrewRole  string `json:"CrewRole"`
	Activated bool   `json:"Activated"`
	Enabled   bool   `json:"Enabled"`
	CrewName  string `json:"CrewName"`
}

// CarrierSpaceUsage carries tonnage figures from a carrier stats record.
type CarrierSpaceUsage struct {
	TotalCapacity      int `json:"TotalCapacity"`
	Crew               int `json:"Crew"`
	Cargo              int `json:"Cargo"`
	CargoSpaceReserved int `json:"CargoSpaceReserved"`
	ShipPacks          int `json:"ShipPacks"`
	ModulePacks        int `json:"ModulePacks"`
	FreeSpace          int `json:"FreeSpace"`
}

// CarrierStatsEvent is a periodic snapshot of a fleet carrier's identity
// and capacity.
type CarrierStatsEvent struct {
	CarrierID     int64             `json:"CarrierID"`
	Callsign      string            `json:"Callsign"`
	Name          string            `json:"Name"`
	DockingAccess string            `json:"DockingAccess"`
	Crew          []CarrierCrew     `json:"Crew"`
	SpaceUsage    CarrierSpaceUsage `json:"SpaceUsage"`
}

// CarrierLocationEvent reports where a fleet carrier currently is.
type CarrierLocationEvent struct {
	CarrierID     int64  `json:"CarrierID"`
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
}

// CarrierTradeOrderEvent records a buy/sell order change on a fleet
// carrier's market. Stock and Outstanding are pointers because their
// absence is meaningful for cargo derivation.
type CarrierTradeOrderEvent struct {
	CarrierID          int64  `json:"CarrierID"`
	BlackMarket        bool   `json:"BlackMarket"`
	Commodity          string `json:"Commodity"`
	CommodityLocalised string `json:"Commodity_Localised"`
	PurchaseOrder      int    `json:"PurchaseOrder"`
	SaleOrder          int    `json:"SaleOrder"`
	CancelTrade        bool   `json:"CancelTrade"`
	Price              int64  `json:"Price"`
	Stock              *int   `json:"Stock"`
	Outstanding        *int   `json:"Outstanding"`
}

// Station types the game uses for colonization construction facilities.
const (
	StationTypeSpaceConstructionDepot     = "SpaceConstructionDepot"
	StationTypePlanetaryConstructionDepot = "PlanetaryConstructionDepot"
	StationTypeFleetCarrier               = "FleetCarrier"
)

// IsConstructionDepot reports whether a station type classifies the
// station as a colonization construction facility.
func IsConstructionDepot(stationType string) bool {
	return stationType == StationTypeSpaceConstructionDepot ||
		stationType == StationTypePlanetaryConstructionDepot
}

// IsFleetCarrier reports whether a station type is a fleet carrier dock.
func IsFleetCarrier(stationType string) bool {
	return stationType == StationTypeFleetCarrier
}
