// Package access enforces delegated read-only access to another owner's events.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/store"
)

// Gate sits between read requests and the event store whenever the requester
// is not the owner of the events being read. It never writes events.
type Gate struct {
	logger *slog.Logger
	perms  store.PermissionStore
	events store.EventStore
}

// NewGate creates a Gate over the given permission and event stores.
func NewGate(logger *slog.Logger, perms store.PermissionStore, events store.EventStore) *Gate {
	return &Gate{logger: logger, perms: perms, events: events}
}

// CanView reports whether observerID may read ownerID's events.
func (g *Gate) CanView(ctx context.Context, observerID, ownerID int64) (bool, error) {
	if observerID == ownerID {
		return true, nil
	}
	ok, err := g.perms.HasGrant(ctx, observerID, ownerID)
	if err != nil {
		return false, fmt.Errorf("check grant %d -> %d: %w", observerID, ownerID, err)
	}
	return ok, nil
}

// Grant lets observerID read ownerID's events. Granting twice is a no-op.
func (g *Gate) Grant(ctx context.Context, ownerID, observerID int64) error {
	if ownerID == observerID {
		return fmt.Errorf("grant access for %d: %w", ownerID, models.ErrSelfGrant)
	}
	if err := g.perms.AddGrant(ctx, observerID, ownerID); err != nil {
		return fmt.Errorf("grant access %d -> %d: %w", observerID, ownerID, err)
	}
	g.logger.Info("Granted read access.", "ownerID", ownerID, "observerID", observerID)
	return nil
}

// Revoke removes a grant. Revoking a grant that does not exist is a no-op.
func (g *Gate) Revoke(ctx context.Context, ownerID, observerID int64) error {
	if err := g.perms.RemoveGrant(ctx, observerID, ownerID); err != nil {
		return fmt.Errorf("revoke access %d -> %d: %w", observerID, ownerID, err)
	}
	g.logger.Info("Revoked read access.", "ownerID", ownerID, "observerID", observerID)
	return nil
}

// ListReadableEvents returns all of targetOwnerID's events, or models.ErrPermissionDenied
// when observerID holds no grant.
func (g *Gate) ListReadableEvents(ctx context.Context, observerID, targetOwnerID int64) ([]models.Event, error) {
	if err := g.authorize(ctx, observerID, targetOwnerID); err != nil {
		return nil, err
	}
	events, err := g.events.FindAllForOwner(ctx, targetOwnerID)
	if err != nil {
		return nil, fmt.Errorf("list events of %d: %w", targetOwnerID, err)
	}
	return events, nil
}

// ListReadableBetween is ListReadableEvents restricted to events overlapping [start, end).
func (g *Gate) ListReadableBetween(ctx context.Context, observerID, targetOwnerID int64, start, end time.Time) ([]models.Event, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("list events of %d: %w", targetOwnerID, models.ErrInvalidTimeRange)
	}
	if err := g.authorize(ctx, observerID, targetOwnerID); err != nil {
		return nil, err
	}
	events, err := g.events.FindBetween(ctx, start, end, targetOwnerID)
	if err != nil {
		return nil, fmt.Errorf("list events of %d: %w", targetOwnerID, err)
	}
	return events, nil
}

// ObservedOwners lists the owners whose calendars observerID may read, excluding itself.
func (g *Gate) ObservedOwners(ctx context.Context, observerID int64) ([]int64, error) {
	owners, err := g.perms.ListGrantedOwners(ctx, observerID)
	if err != nil {
		return nil, fmt.Errorf("list observed owners of %d: %w", observerID, err)
	}
	return owners, nil
}

func (g *Gate) authorize(ctx context.Context, observerID, ownerID int64) error {
	ok, err := g.CanView(ctx, observerID, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		g.logger.Warn("Denied read access.", "observerID", observerID, "ownerID", ownerID)
		return fmt.Errorf("observer %d reading owner %d: %w", observerID, ownerID, models.ErrPermissionDenied)
	}
	return nil
}
