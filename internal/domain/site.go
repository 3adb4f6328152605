package domain

import "time"

// Site source tags. Journal means the site was last written from locally
// ingested events; external means the reconciliation merger wrote it from
// the community snapshot.
const (
	SourceJournal  = "journal"
	SourceExternal = "external"
)

// CommodityStatus describes delivery progress for one commodity.
type CommodityStatus string

// Commodity delivery states derived from provided vs required.
const (
	StatusNotStarted CommodityStatus = "not_started"
	StatusInProgress CommodityStatus = "in_progress"
	StatusCompleted  CommodityStatus = "completed"
)

// Commodity is one resource requirement of a construction site. It is
// identified inside the site's list by its normalized name, not globally.
type Commodity struct {
	Name      string // raw journal name, e.g. "$steel_name;"
	LocalName string // display name, e.g. "Steel"
	Required  int
	Provided  int // monotonic non-decreasing for the site's lifetime
	Payment   int
}

// Remaining returns the outstanding amount, never negative.
func (c *Commodity) Remaining() int {
	if c.Provided >= c.Required {
		return 0
	}
	return c.Required - c.Provided
}

// Status derives the delivery state from provided vs required.
func (c *Commodity) Status() CommodityStatus {
	switch {
	case c.Required > 0 && c.Provided >= c.Required:
		return StatusCompleted
	case c.Provided > 0:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// ConstructionSite is the persisted projection of one colonization build
// project, keyed by its market ID. Commodities keep insertion order.
//
// ConstructionComplete and ConstructionFailed are independent flags; the
// journal never guarantees they are mutually exclusive and the projection
// preserves whatever combination it sees.
type ConstructionSite struct {
	MarketID             int64
	StationName          string
	StationType          string
	StarSystem           string
	SystemAddress        int64
	Progress             float64 // percentage, 0-100
	ConstructionComplete bool
	ConstructionFailed   bool
	Commodities          []Commodity
	UpdatedAt            time.Time
	Source               string // SourceJournal or SourceExternal
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *ConstructionSite) Clone() *ConstructionSite {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Commodities = make([]Commodity, len(s.Commodities))
	copy(cp.Commodities, s.Commodities)
	return &cp
}

// InProgress reports whether the site is still being built.
func (s *ConstructionSite) InProgress() bool {
	return !s.ConstructionComplete && !s.ConstructionFailed
}
