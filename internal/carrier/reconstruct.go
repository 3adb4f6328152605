// Package carrier derives point-in-time fleet carrier views from a
// bounded event window.
//
// Everything here is pure and stateless: given the identical event list,
// every call produces the identical output. Nothing is persisted and
// nothing is remembered between calls.
package carrier

import (
	"sort"
	"strings"

	"colonytrack/internal/commodity"
	"colonytrack/internal/domain"
)

// captainRole is excluded from the derived service list: it represents
// the owner, not an activated carrier service.
const captainRole = "Captain"

// Identity derives a carrier's identity from the event window.
//
// The newest fleet-carrier dock event for the carrier establishes the
// docking context; the newest CarrierStats and CarrierLocation events
// enrich name, callsign, access policy, services and tonnage.
func Identity(events []domain.Event, carrierID int64) *domain.CarrierIdentity {
	id := &domain.CarrierIdentity{CarrierID: carrierID}

	// Newest-wins fields come from a single backwards scan.
	var dock *domain.DockedEvent
	var stats *domain.CarrierStatsEvent
	var location *domain.CarrierLocationEvent
	for i := len(events) - 1; i >= 0; i-- {
		ev := &events[i]
		switch ev.Kind {
		case domain.KindDocked:
			if dock == nil && domain.IsFleetCarrier(ev.Docked.StationType) && ev.Docked.MarketID == carrierID {
				dock = ev.Docked
			}
		case domain.KindCarrierStats:
			if stats == nil && ev.CarrierStats.CarrierID == carrierID {
				stats = ev.CarrierStats
			}
		case domain.KindCarrierLocation:
			if location == nil && ev.CarrierLocation.CarrierID == carrierID {
				location = ev.CarrierLocation
			}
		}
		if dock != nil && stats != nil && location != nil {
			break
		}
	}

	if dock != nil {
		// A carrier dock reports the callsign as the station name.
		id.Callsign = dock.StationName
		id.StarSystem = dock.StarSystem
		id.SystemAddress = dock.SystemAddress
	}
	if stats != nil {
		id.Name = stats.Name
		if stats.Callsign != "" {
			id.Callsign = stats.Callsign
		}
		id.DockingAccess = stats.DockingAccess
		id.Services = services(stats.Crew)
		id.TotalCapacity = stats.SpaceUsage.TotalCapacity
		id.FreeSpace = stats.SpaceUsage.FreeSpace
		id.UsedSpace = stats.SpaceUsage.TotalCapacity - stats.SpaceUsage.FreeSpace
	}
	if location != nil {
		// The carrier's own location beats the player's docking context.
		id.StarSystem = location.StarSystem
		id.SystemAddress = location.SystemAddress
	}

	return id
}

// services derives the active service list from crew roles: activated,
// non-captain roles, case-folded, sorted for determinism.
func services(crew []domain.CarrierCrew) []string {
	var out []string
	for _, c := range crew {
		if c.Activated && c.CrewRole != captainRole {
			out = append(out, strings.ToLower(c.CrewRole))
		}
	}
	sort.Strings(out)
	return out
}

// tradeView accumulates the latest-wins projection for one commodity.
type tradeView struct {
	localName string
	buy       *domain.CarrierTradeOrder
	sell      *domain.CarrierTradeOrder
	stock     int
}

// State derives the carrier's identity plus its current cargo and order
// book from the event window.
func State(events []domain.Event, carrierID int64) *domain.CarrierState {
	state := &domain.CarrierState{CarrierIdentity: *Identity(events, carrierID)}

	views := make(map[string]*tradeView)
	for i := range events {
		ev := &events[i]
		if ev.Kind != domain.KindCarrierTradeOrder || ev.CarrierTrade.CarrierID != carrierID {
			continue
		}
		applyTradeOrder(views, ev.CarrierTrade)
	}

	// Deterministic output: sorted by commodity key.
	keys := make([]string, 0, len(views))
	for k := range views {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := views[k]
		if v.buy != nil {
			state.BuyOrders = append(state.BuyOrders, *v.buy)
		}
		if v.sell != nil {
			state.SellOrders = append(state.SellOrders, *v.sell)
		}
		if v.stock > 0 {
			state.Cargo = append(state.Cargo, domain.CarrierCargoItem{
				Commodity: k,
				LocalName: v.localName,
				Quantity:  v.stock,
			})
		}
	}

	return state
}

// applyTradeOrder folds one trade-order event into the per-commodity
// views. The latest event wins outright: a carrier market cannot hold a
// buy and a sell order for the same commodity simultaneously.
func applyTradeOrder(views map[string]*tradeView, order *domain.CarrierTradeOrderEvent) {
	key := commodity.Key(order.Commodity)

	if order.CancelTrade {
		// An explicit cancel clears everything known for the key.
		delete(views, key)
		return
	}

	v := views[key]
	if v == nil {
		v = &tradeView{}
		views[key] = v
	}
	if name := commodity.DisplayName(order.Commodity, order.CommodityLocalised); name != "" {
		v.localName = name
	}

	switch {
	case order.SaleOrder > 0:
		v.sell = &domain.CarrierTradeOrder{
			Commodity: key,
			LocalName: v.localName,
			Amount:    order.SaleOrder,
			Price:     order.Price,
		}
		v.buy = nil
		v.stock = deriveStock(order, order.SaleOrder)

	case order.PurchaseOrder > 0:
		v.buy = &domain.CarrierTradeOrder{
			Commodity: key,
			LocalName: v.localName,
			Amount:    order.PurchaseOrder,
			Price:     order.Price,
		}
		// The buy order replaces any sell order, and with it the cargo
		// row that sell order implied.
		v.sell = nil
		v.stock = 0

	case order.Stock != nil || order.Outstanding != nil:
		// A bare stock report updates an open sell order. Zero stock
		// means the order is fulfilled: the commodity leaves both the
		// cargo view and the order book.
		v.stock = deriveStock(order, v.stock)
		if v.sell != nil && v.stock == 0 {
			v.sell = nil
		}
	}

	if v.buy == nil && v.sell == nil && v.stock == 0 {
		delete(views, key)
	}
}

// deriveStock picks the believed cargo amount for a sell order:
// explicit stock first, outstanding second, the nominal order size last.
func deriveStock(order *domain.CarrierTradeOrderEvent, fallback int) int {
	if order.Stock != nil {
		return *order.Stock
	}
	if order.Outstanding != nil {
		return *order.Outstanding
	}
	return fallback
}
