// Package service is the collaborator-facing façade over the core:
// decoding, ingestion, queries, reconciliation and carrier views behind
// one type, so transports and UIs need no knowledge of the packages
// underneath.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"colonytrack/internal/carrier"
	"colonytrack/internal/domain"
	"colonytrack/internal/ingestion"
	"colonytrack/internal/journal"
	"colonytrack/internal/observability"
	"colonytrack/internal/reconcile"
	"colonytrack/internal/storage"
	"colonytrack/internal/tracker"
)

// Service wires the ingestion engine, tracker, store and optional
// reconciliation merger into a single entry point. All store access
// funnels through the store's own lock; Service adds no locking of its
// own.
type Service struct {
	store   storage.SiteStore
	tracker *tracker.Tracker
	engine  *ingestion.Engine
	merger  *reconcile.Merger
	logger  logrus.FieldLogger
}

// New builds a Service. source may be nil, which disables read-time
// reconciliation; queries then serve local state only.
func New(store storage.SiteStore, source reconcile.Source, logger logrus.FieldLogger) *Service {
	tr := tracker.New()
	s := &Service{
		store:   store,
		tracker: tr,
		engine:  ingestion.NewEngine(store, tr, logger),
		logger:  logger,
	}
	if source != nil {
		s.merger = reconcile.NewMerger(store, source, logger)
	}
	return s
}

// Decode decodes a single journal line. Uninteresting lines return
// (nil, nil).
func (s *Service) Decode(line []byte) (*domain.Event, error) {
	ev, err := journal.Decode(line)
	if err != nil {
		observability.RecordDecodeFailure()
		return nil, err
	}
	if ev == nil {
		observability.RecordLineDropped()
		return nil, nil
	}
	observability.RecordEventDecoded(string(ev.Kind))
	return ev, nil
}

// IngestEvents applies a decoded event batch and returns the star
// systems whose sites changed, sorted. On a store failure the batch
// stops, but systems already touched are still returned so callers can
// notify about the partial progress.
func (s *Service) IngestEvents(ctx context.Context, events []domain.Event) ([]string, error) {
	systems, err := s.engine.Apply(ctx, events)
	if err != nil {
		return systems, err
	}
	observability.RecordBatchApplied(len(systems), float64(time.Now().Unix()))
	return systems, nil
}

// IngestLines decodes and applies the journal lines of one file. Any
// failure, including a panic while processing the file, is contained
// here: the file contributes whatever was applied before the fault and
// the caller's loop continues. name identifies the file in logs only.
func (s *Service) IngestLines(ctx context.Context, name string, data []byte) (systems []string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{"file": name, "panic": r}).
				Error("ingestion of file aborted")
			systems = nil
		}
	}()

	events, failed := journal.DecodeLines(data)
	if failed > 0 {
		for i := 0; i < failed; i++ {
			observability.RecordDecodeFailure()
		}
		s.logger.WithFields(logrus.Fields{"file": name, "failed_lines": failed}).
			Warn("some journal lines failed to decode")
	}
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		observability.RecordEventDecoded(string(events[i].Kind))
	}

	systems, err := s.IngestEvents(ctx, events)
	if err != nil {
		s.logger.WithError(err).WithField("file", name).Error("ingestion of file failed")
	}
	return systems
}

// Site returns one site by market identifier.
func (s *Service) Site(ctx context.Context, marketID int64) (*domain.ConstructionSite, error) {
	return s.store.GetByMarketID(ctx, marketID)
}

// SitesBySystem returns the sites of one star system, name-sorted. When
// reconciliation is enabled the result is the external-merged view.
func (s *Service) SitesBySystem(ctx context.Context, system string) ([]*domain.ConstructionSite, error) {
	if s.merger != nil {
		return s.merger.Reconcile(ctx, system)
	}
	return s.store.GetBySystem(ctx, system)
}

// Systems lists every star system with at least one tracked site.
func (s *Service) Systems(ctx context.Context) ([]string, error) {
	return s.store.ListSystems(ctx)
}

// Stats returns aggregate counts over all tracked sites.
func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.store.Stats(ctx)
}

// ClearAll wipes all persisted site state.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}

// CarrierIdentity derives a carrier's identity from an event window.
func (s *Service) CarrierIdentity(events []domain.Event, carrierID int64) *domain.CarrierIdentity {
	return carrier.Identity(events, carrierID)
}

// CarrierState derives a carrier's full state from an event window.
func (s *Service) CarrierState(events []domain.Event, carrierID int64) *domain.CarrierState {
	observability.RecordCarrierStateBuilt()
	return carrier.State(events, carrierID)
}

// Location reports the player's current whereabouts.
func (s *Service) Location() (system, station string, docked bool) {
	return s.tracker.Current()
}

// Commander returns the journal owner's name, if seen.
func (s *Service) Commander() string {
	return s.tracker.Commander()
}
