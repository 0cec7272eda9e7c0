package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"remindcal/internal/models"

	"github.com/google/uuid"
)

// MemoryEventStore keeps events in a map guarded by a RWMutex.
// Writes to the same event are serialized by the lock.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string]models.Event
	now    func() time.Time
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: make(map[string]models.Event),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryEventStore) Create(_ context.Context, e models.Event) (models.Event, error) {
	if e.ID != "" {
		return models.Event{}, fmt.Errorf("create event %s: %w", e.ID, models.ErrIDAssigned)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IsExternal() {
		if _, ok := s.findByExternalIDLocked(e.ExternalID, e.OwnerID); ok {
			return models.Event{}, fmt.Errorf("create event: external id %q for owner %d: %w", e.ExternalID, e.OwnerID, models.ErrConflict)
		}
	}

	e = e.Clone()
	e.ID = uuid.New().String()
	e.Version = 1
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	s.events[e.ID] = e
	return e.Clone(), nil
}

func (s *MemoryEventStore) Update(_ context.Context, e models.Event) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[e.ID]
	if !ok || existing.OwnerID != e.OwnerID {
		return models.Event{}, fmt.Errorf("update event %s for owner %d: %w", e.ID, e.OwnerID, models.ErrNotFound)
	}
	if e.Version != 0 && e.Version != existing.Version {
		return models.Event{}, fmt.Errorf("update event %s: version %d, stored %d: %w", e.ID, e.Version, existing.Version, models.ErrConflict)
	}
	if e.IsExternal() {
		if other, found := s.findByExternalIDLocked(e.ExternalID, e.OwnerID); found && other.ID != e.ID {
			return models.Event{}, fmt.Errorf("update event %s: external id %q taken by %s: %w", e.ID, e.ExternalID, other.ID, models.ErrConflict)
		}
	}

	e = e.Clone()
	e.Version = existing.Version + 1
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = s.now()
	s.events[e.ID] = e
	return e.Clone(), nil
}

func (s *MemoryEventStore) FindByID(_ context.Context, id string, ownerID int64) (models.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok || e.OwnerID != ownerID {
		return models.Event{}, false, nil
	}
	return e.Clone(), true, nil
}

func (s *MemoryEventStore) FindByExternalID(_ context.Context, externalID string, ownerID int64) (models.Event, bool, error) {
	if externalID == "" {
		return models.Event{}, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.findByExternalIDLocked(externalID, ownerID)
	if !ok {
		return models.Event{}, false, nil
	}
	return e.Clone(), true, nil
}

func (s *MemoryEventStore) FindAllForOwner(_ context.Context, ownerID int64) ([]models.Event, error) {
	return s.collect(func(e models.Event) bool { return e.OwnerID == ownerID }), nil
}

func (s *MemoryEventStore) FindBetween(_ context.Context, start, end time.Time, ownerID int64) ([]models.Event, error) {
	return s.collect(func(e models.Event) bool {
		return e.OwnerID == ownerID && e.EndTime.After(start) && e.StartTime.Before(end)
	}), nil
}

func (s *MemoryEventStore) DeleteByID(_ context.Context, id string, ownerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.OwnerID != ownerID {
		return false, nil
	}
	delete(s.events, id)
	return true, nil
}

func (s *MemoryEventStore) FindAllGlobal(_ context.Context) ([]models.Event, error) {
	return s.collect(func(models.Event) bool { return true }), nil
}

func (s *MemoryEventStore) findByExternalIDLocked(externalID string, ownerID int64) (models.Event, bool) {
	for _, e := range s.events {
		if e.OwnerID == ownerID && e.ExternalID == externalID {
			return e, true
		}
	}
	return models.Event{}, false
}

// collect returns matching events ordered by start time, then id.
func (s *MemoryEventStore) collect(match func(models.Event) bool) []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0)
	for _, e := range s.events {
		if match(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MemoryPermissionStore maps each observer to the set of owners that granted it access.
type MemoryPermissionStore struct {
	mu     sync.RWMutex
	grants map[int64]map[int64]struct{}
}

// NewMemoryPermissionStore creates an empty in-memory permission store.
func NewMemoryPermissionStore() *MemoryPermissionStore {
	return &MemoryPermissionStore{grants: make(map[int64]map[int64]struct{})}
}

func (s *MemoryPermissionStore) AddGrant(_ context.Context, observerID, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners, ok := s.grants[observerID]
	if !ok {
		owners = make(map[int64]struct{})
		s.grants[observerID] = owners
	}
	owners[ownerID] = struct{}{}
	return nil
}

func (s *MemoryPermissionStore) RemoveGrant(_ context.Context, observerID, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners, ok := s.grants[observerID]
	if !ok {
		return nil
	}
	delete(owners, ownerID)
	if len(owners) == 0 {
		delete(s.grants, observerID)
	}
	return nil
}

func (s *MemoryPermissionStore) HasGrant(_ context.Context, observerID, ownerID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[observerID][ownerID]
	return ok, nil
}

func (s *MemoryPermissionStore) ListGrantedOwners(_ context.Context, observerID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int64, 0, len(s.grants[observerID]))
	for ownerID := range s.grants[observerID] {
		out = append(out, ownerID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
