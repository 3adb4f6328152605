package carrier

import (
	"reflect"
	"testing"

	"colonytrack/internal/domain"
)

const testCarrierID = int64(3700000001)

func intPtr(v int) *int { return &v }

func dockEvent(marketID int64, stationType, callsign, system string) domain.Event {
	return domain.Event{
		Kind: domain.KindDocked,
		Docked: &domain.DockedEvent{
			StationName:   callsign,
			StationType:   stationType,
			StarSystem:    system,
			SystemAddress: 99,
			MarketID:      marketID,
		},
	}
}

func statsEvent(carrierID int64, name string, crew []domain.CarrierCrew) domain.Event {
	return domain.Event{
		Kind: domain.KindCarrierStats,
		CarrierStats: &domain.CarrierStatsEvent{
			CarrierID:     carrierID,
			Callsign:      "X7F-22B",
			Name:          name,
			DockingAccess: "all",
			Crew:          crew,
			SpaceUsage: domain.CarrierSpaceUsage{
				TotalCapacity: 25000,
				FreeSpace:     18000,
			},
		},
	}
}

func tradeEvent(order domain.CarrierTradeOrderEvent) domain.Event {
	o := order
	if o.CarrierID == 0 {
		o.CarrierID = testCarrierID
	}
	return domain.Event{Kind: domain.KindCarrierTradeOrder, CarrierTrade: &o}
}

func TestIdentityFromDockStatsAndLocation(t *testing.T) {
	events := []domain.Event{
		dockEvent(testCarrierID, domain.StationTypeFleetCarrier, "X7F-22B", "Old System"),
		statsEvent(testCarrierID, "Resolute", []domain.CarrierCrew{
			{CrewRole: "Captain", Activated: true},
			{CrewRole: "Refuel", Activated: true},
			{CrewRole: "Repair", Activated: true},
			{CrewRole: "Shipyard", Activated: false},
		}),
		{
			Kind: domain.KindCarrierLocation,
			CarrierLocation: &domain.CarrierLocationEvent{
				CarrierID:     testCarrierID,
				StarSystem:    "New System",
				SystemAddress: 424242,
			},
		},
	}

	id := Identity(events, testCarrierID)

	if id.CarrierID != testCarrierID {
		t.Fatalf("CarrierID = %d, want %d", id.CarrierID, testCarrierID)
	}
	if id.Name != "Resolute" || id.Callsign != "X7F-22B" {
		t.Errorf("name/callsign = %q/%q", id.Name, id.Callsign)
	}
	if id.StarSystem != "New System" || id.SystemAddress != 424242 {
		t.Errorf("carrier location should override docking context, got %q/%d", id.StarSystem, id.SystemAddress)
	}
	if want := []string{"refuel", "repair"}; !reflect.DeepEqual(id.Services, want) {
		t.Errorf("Services = %v, want %v", id.Services, want)
	}
	if id.TotalCapacity != 25000 || id.FreeSpace != 18000 || id.UsedSpace != 7000 {
		t.Errorf("tonnage = %d/%d/%d", id.TotalCapacity, id.UsedSpace, id.FreeSpace)
	}
}

func TestIdentityNewestDockWins(t *testing.T) {
	events := []domain.Event{
		dockEvent(testCarrierID, domain.StationTypeFleetCarrier, "X7F-22B", "First"),
		dockEvent(12345, "Coriolis", "Jameson Memorial", "Shinrarta Dezhra"),
		dockEvent(testCarrierID, domain.StationTypeFleetCarrier, "X7F-22B", "Second"),
	}

	id := Identity(events, testCarrierID)
	if id.StarSystem != "Second" {
		t.Fatalf("StarSystem = %q, want the newest carrier dock", id.StarSystem)
	}
}

func TestIdentityIgnoresOtherCarriers(t *testing.T) {
	events := []domain.Event{
		dockEvent(999, domain.StationTypeFleetCarrier, "Q0Q-00Q", "Elsewhere"),
		statsEvent(999, "Not Ours", nil),
	}

	id := Identity(events, testCarrierID)
	if id.Name != "" || id.StarSystem != "" {
		t.Fatalf("foreign carrier events leaked into identity: %+v", id)
	}
}

func TestStateSellOrderCreatesCargo(t *testing.T) {
	events := []domain.Event{
		tradeEvent(domain.CarrierTradeOrderEvent{
			Commodity:          "$steel_name;",
			CommodityLocalised: "Steel",
			SaleOrder:          23,
			Price:              4200,
		}),
	}

	state := State(events, testCarrierID)

	if len(state.SellOrders) != 1 || len(state.BuyOrders) != 0 {
		t.Fatalf("orders = %d sell / %d buy", len(state.SellOrders), len(state.BuyOrders))
	}
	sell := state.SellOrders[0]
	if sell.Commodity != "steel" || sell.Amount != 23 || sell.Price != 4200 {
		t.Errorf("sell order = %+v", sell)
	}
	if len(state.Cargo) != 1 || state.Cargo[0].Commodity != "steel" || state.Cargo[0].Quantity != 23 {
		t.Errorf("cargo = %+v, want 23t of steel implied by the sale order", state.Cargo)
	}
	if state.Cargo[0].LocalName != "Steel" {
		t.Errorf("LocalName = %q", state.Cargo[0].LocalName)
	}
}

func TestStateStockReportDrainsCargo(t *testing.T) {
	events := []domain.Event{
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Steel", SaleOrder: 23, Price: 4200}),
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Steel", Stock: intPtr(0), Outstanding: intPtr(0)}),
	}

	state := State(events, testCarrierID)

	if len(state.Cargo) != 0 {
		t.Errorf("cargo = %+v, want empty after zero stock report", state.Cargo)
	}
	if len(state.SellOrders) != 0 {
		t.Errorf("sell orders = %+v, want fulfilled order removed", state.SellOrders)
	}
}

func TestStateCancelClearsEverything(t *testing.T) {
	events := []domain.Event{
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Titanium", SaleOrder: 100, Price: 900, Stock: intPtr(100)}),
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "titanium", CancelTrade: true}),
	}

	state := State(events, testCarrierID)
	if len(state.SellOrders)+len(state.BuyOrders)+len(state.Cargo) != 0 {
		t.Fatalf("cancel left residue: %+v", state)
	}
}

func TestStateSellEvictsBuyAndViceVersa(t *testing.T) {
	events := []domain.Event{
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Tritium", PurchaseOrder: 500, Price: 40000}),
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Tritium", SaleOrder: 200, Price: 52000, Stock: intPtr(200)}),
	}

	state := State(events, testCarrierID)
	if len(state.BuyOrders) != 0 {
		t.Fatalf("buy order survived a sell order for the same commodity: %+v", state.BuyOrders)
	}
	if len(state.SellOrders) != 1 || state.SellOrders[0].Amount != 200 {
		t.Fatalf("sell orders = %+v", state.SellOrders)
	}

	events = append(events, tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Tritium", PurchaseOrder: 300, Price: 39000}))
	state = State(events, testCarrierID)
	if len(state.SellOrders) != 0 || len(state.Cargo) != 0 {
		t.Fatalf("buy order should evict the sell order and its cargo row: %+v", state)
	}
	if len(state.BuyOrders) != 1 || state.BuyOrders[0].Amount != 300 {
		t.Fatalf("buy orders = %+v", state.BuyOrders)
	}
}

func TestStateStockDerivationPriority(t *testing.T) {
	tests := []struct {
		name  string
		order domain.CarrierTradeOrderEvent
		want  int
	}{
		{"explicit stock wins", domain.CarrierTradeOrderEvent{Commodity: "Gold", SaleOrder: 50, Stock: intPtr(31), Outstanding: intPtr(7)}, 31},
		{"outstanding next", domain.CarrierTradeOrderEvent{Commodity: "Gold", SaleOrder: 50, Outstanding: intPtr(7)}, 7},
		{"order size last", domain.CarrierTradeOrderEvent{Commodity: "Gold", SaleOrder: 50}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := State([]domain.Event{tradeEvent(tt.order)}, testCarrierID)
			if len(state.Cargo) != 1 || state.Cargo[0].Quantity != tt.want {
				t.Fatalf("cargo = %+v, want quantity %d", state.Cargo, tt.want)
			}
		})
	}
}

func TestStateDeterministicOrdering(t *testing.T) {
	events := []domain.Event{
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Titanium", SaleOrder: 10, Stock: intPtr(10)}),
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Aluminium", SaleOrder: 5, Stock: intPtr(5)}),
		tradeEvent(domain.CarrierTradeOrderEvent{Commodity: "Steel", SaleOrder: 8, Stock: intPtr(8)}),
	}

	first := State(events, testCarrierID)
	second := State(events, testCarrierID)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input produced different states")
	}

	want := []string{"aluminium", "steel", "titanium"}
	for i, item := range first.Cargo {
		if item.Commodity != want[i] {
			t.Fatalf("cargo order = %v, want keys sorted", first.Cargo)
		}
	}
}

func TestStateIgnoresOtherCarrierOrders(t *testing.T) {
	events := []domain.Event{
		tradeEvent(domain.CarrierTradeOrderEvent{CarrierID: 999, Commodity: "Gold", SaleOrder: 50}),
	}
	state := State(events, testCarrierID)
	if len(state.SellOrders) != 0 || len(state.Cargo) != 0 {
		t.Fatalf("foreign carrier order leaked: %+v", state)
	}
}
