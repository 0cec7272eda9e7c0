// Package syncer imports events from external calendar sources into owners' calendars.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/reconcile"
)

// DateRange is a half-open window [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Source fetches candidate events for an owner from an external calendar.
// Candidates carry the provider's identifier in ExternalID. Missing credentials
// are reported as models.ErrNotAuthenticated.
type Source interface {
	Name() string
	FetchEvents(ctx context.Context, ownerID int64, r DateRange) ([]models.Event, error)
}

// Reconciler merges candidates into an owner's events.
type Reconciler interface {
	Reconcile(ctx context.Context, candidate models.Event, ownerID int64) (models.Event, reconcile.Outcome, error)
}

// Binding imports one source into one owner's calendar.
type Binding struct {
	OwnerID int64
	Source  Source
}

// Result counts what happened to one binding during a sync cycle.
type Result struct {
	OwnerID   int64
	Source    string
	Fetched   int
	Created   int
	Updated   int
	Unchanged int
	Failed    int
	Err       error
}

// Syncer imports events from external sources through the reconciliation engine.
type Syncer struct {
	logger      *slog.Logger
	engine      Reconciler
	bindings    []Binding
	horizonDays int
	loc         *time.Location
	dryRun      bool
	now         func() time.Time
}

// NewSyncer creates a new Syncer. The import window starts at local midnight today in loc
// and spans horizonDays days.
func NewSyncer(logger *slog.Logger, engine Reconciler, bindings []Binding, horizonDays int, loc *time.Location, dryRun bool) *Syncer {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Syncer{
		logger:      logger,
		engine:      engine,
		bindings:    bindings,
		horizonDays: horizonDays,
		loc:         loc,
		dryRun:      dryRun,
		now:         time.Now,
	}
}

// Window returns the date range the next cycle will import.
func (s *Syncer) Window() DateRange {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return DateRange{Start: start, End: start.AddDate(0, 0, s.horizonDays)}
}

// Sync performs a full import cycle over every binding. A failing binding does not stop
// the others; its error is logged, recorded in its Result and joined into the returned error.
func (s *Syncer) Sync(ctx context.Context) ([]Result, error) {
	return s.run(ctx, s.bindings)
}

// SyncOwner runs an import cycle restricted to one owner's bindings.
func (s *Syncer) SyncOwner(ctx context.Context, ownerID int64) ([]Result, error) {
	var selected []Binding
	for _, b := range s.bindings {
		if b.OwnerID == ownerID {
			selected = append(selected, b)
		}
	}
	return s.run(ctx, selected)
}

func (s *Syncer) run(ctx context.Context, bindings []Binding) ([]Result, error) {
	window := s.Window()
	s.logger.Info("Starting import cycle.", "bindings", len(bindings), "from", window.Start, "to", window.End)

	results := make([]Result, 0, len(bindings))
	var errs []error
	for _, b := range bindings {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.syncBinding(ctx, b, window)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
		results = append(results, res)
	}

	s.logger.Info("Import cycle finished.", "bindings", len(results), "failedBindings", len(errs))
	return results, errors.Join(errs...)
}

func (s *Syncer) syncBinding(ctx context.Context, b Binding, window DateRange) Result {
	res := Result{OwnerID: b.OwnerID, Source: b.Source.Name()}

	candidates, err := b.Source.FetchEvents(ctx, b.OwnerID, window)
	if err != nil {
		if errors.Is(err, models.ErrNotAuthenticated) {
			s.logger.Warn("Owner is not authenticated with source, run the auth command.",
				"ownerID", b.OwnerID, "source", res.Source)
		} else {
			s.logger.Error("Could not fetch events from source.", "ownerID", b.OwnerID, "source", res.Source, "error", err)
		}
		res.Err = fmt.Errorf("import %s for owner %d: %w", res.Source, b.OwnerID, err)
		return res
	}
	res.Fetched = len(candidates)

	for _, candidate := range candidates {
		if s.dryRun {
			s.logger.Info("[DRY RUN] Would reconcile event.", "ownerID", b.OwnerID,
				"externalID", candidate.ExternalID, "title", candidate.Title, "startTime", candidate.StartTime)
			continue
		}

		_, outcome, err := s.engine.Reconcile(ctx, candidate, b.OwnerID)
		if err != nil {
			// Continue with the next event even if one fails.
			res.Failed++
			s.logger.Error("Failed to import event.", "ownerID", b.OwnerID,
				"externalID", candidate.ExternalID, "title", candidate.Title, "error", err)
			continue
		}
		switch outcome {
		case reconcile.OutcomeCreated:
			res.Created++
		case reconcile.OutcomeUpdated:
			res.Updated++
		case reconcile.OutcomeUnchanged:
			res.Unchanged++
		}
	}

	s.logger.Info("Imported events.", "ownerID", b.OwnerID, "source", res.Source, "fetched", res.Fetched,
		"created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged, "failed", res.Failed)
	return res
}
