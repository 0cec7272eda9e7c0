// Package store defines the persistence contracts for events and permission grants,
// and provides an in-memory implementation of both.
//
// Every EventStore method except FindAllGlobal is scoped by owner. FindAllGlobal exists
// only for the reminder scheduler, which must see every tenant's events.
package store

import (
	"context"
	"time"

	"remindcal/internal/models"
)

// EventStore is durable keyed storage for events. It holds no business logic.
type EventStore interface {
	// Create assigns a new ID and stores the event. It fails with models.ErrIDAssigned
	// if the event already carries an ID.
	Create(ctx context.Context, e models.Event) (models.Event, error)
	// Update replaces the row matching (e.ID, e.OwnerID). It fails with models.ErrNotFound
	// if there is none, and with models.ErrConflict if e.Version is non-zero and stale.
	Update(ctx context.Context, e models.Event) (models.Event, error)
	FindByID(ctx context.Context, id string, ownerID int64) (models.Event, bool, error)
	FindByExternalID(ctx context.Context, externalID string, ownerID int64) (models.Event, bool, error)
	FindAllForOwner(ctx context.Context, ownerID int64) ([]models.Event, error)
	// FindBetween returns the owner's events overlapping [start, end).
	FindBetween(ctx context.Context, start, end time.Time, ownerID int64) ([]models.Event, error)
	// DeleteByID reports whether a row was removed. Missing rows are not an error.
	DeleteByID(ctx context.Context, id string, ownerID int64) (bool, error)
	FindAllGlobal(ctx context.Context) ([]models.Event, error)
}

// PermissionStore records which owners granted read access to which observers.
type PermissionStore interface {
	AddGrant(ctx context.Context, observerID, ownerID int64) error
	RemoveGrant(ctx context.Context, observerID, ownerID int64) error
	HasGrant(ctx context.Context, observerID, ownerID int64) (bool, error)
	ListGrantedOwners(ctx context.Context, observerID int64) ([]int64, error)
}
