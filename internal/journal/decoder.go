// Package journal decodes raw journal lines into typed events.
//
// Decoding is line-independent and tolerant: a malformed line invalidates
// only itself, and kinds outside the allow-list are dropped before any
// field extraction.
package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"colonytrack/internal/domain"
)

// TimeFormat is the fixed timestamp layout used by journal records.
const TimeFormat = "2006-01-02T15:04:05Z"

// envelope is the common header every journal record carries.
type envelope struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
}

// Decode turns one journal line into a typed event.
//
// Returns (nil, nil) for kinds outside the allow-list and for blank lines.
// Returns (nil, err) for malformed JSON, an unparsable timestamp or a
// missing required field; the caller counts the failure and moves on.
func Decode(line []byte) (*domain.Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	kind := domain.EventKind(env.Event)
	if !allowed(kind) {
		return nil, nil
	}

	ts, err := time.Parse(TimeFormat, env.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp %q: %w", env.Timestamp, err)
	}

	ev := &domain.Event{
		Timestamp: ts,
		Kind:      kind,
		Raw:       json.RawMessage(append([]byte(nil), line...)),
	}

	if err := decodePayload(ev, line); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeLines decodes a newline-separated batch. It never fails the batch:
// undecodable lines are counted and skipped.
func DecodeLines(data []byte) (events []domain.Event, failed int) {
	for _, line := range bytes.Split(data, []byte("\n")) {
		ev, err := Decode(line)
		if err != nil {
			failed++
			continue
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events, failed
}

// allowed reports whether a kind is promoted to a typed event.
func allowed(kind domain.EventKind) bool {
	switch kind {
	case domain.KindColonisationDepot,
		domain.KindColonisationContribution,
		domain.KindLocation,
		domain.KindFSDJump,
		domain.KindDocked,
		domain.KindCommander,
		domain.KindCarrierStats,
		domain.KindCarrierLocation,
		domain.KindCarrierTradeOrder:
		return true
	}
	return false
}

// decodePayload extracts the kind-specific fields into ev.
func decodePayload(ev *domain.Event, line []byte) error {
	switch ev.Kind {
	case domain.KindColonisationDepot:
		var p domain.ColonisationDepot
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.MarketID == 0 {
			return fmt.Errorf("decode %s: missing MarketID", ev.Kind)
		}
		ev.Depot = &p

	case domain.KindColonisationContribution:
		var p domain.ColonisationContribution
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.MarketID == 0 || p.Name == "" {
			return fmt.Errorf("decode %s: missing MarketID or Name", ev.Kind)
		}
		ev.Contribution = &p

	case domain.KindLocation:
		var p domain.LocationEvent
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.StarSystem == "" {
			return fmt.Errorf("decode %s: missing StarSystem", ev.Kind)
		}
		ev.Location = &p

	case domain.KindFSDJump:
		var p domain.FSDJumpEvent
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.StarSystem == "" {
			return fmt.Errorf("decode %s: missing StarSystem", ev.Kind)
		}
		ev.Jump = &p

	case domain.KindDocked:
		var p domain.DockedEvent
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.StationName == "" {
			return fmt.Errorf("decode %s: missing StationName", ev.Kind)
		}
		ev.Docked = &p

	case domain.KindCommander:
		var p domain.CommanderEvent
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.Name == "" {
			return fmt.Errorf("decode %s: missing Name", ev.Kind)
		}
		ev.Commander = &p

	case domain.KindCarrierStats:
		var p domain.CarrierStatsEvent
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.CarrierID == 0 {
			return fmt.Errorf("decode %s: missing CarrierID", ev.Kind)
		}
		ev.CarrierStats = &p

	case domain.KindCarrierLocation:
		var p domain.CarrierLocationEvent
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.CarrierID == 0 {
			return fmt.Errorf("decode %s: missing CarrierID", ev.Kind)
		}
		ev.CarrierLocation = &p

	case domain.KindCarrierTradeOrder:
		var p domain.CarrierTradeOrderEvent
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		if p.CarrierID == 0 || p.Commodity == "" {
			return fmt.Errorf("decode %s: missing CarrierID or Commodity", ev.Kind)
		}
		ev.CarrierTrade = &p
	}
	return nil
}
