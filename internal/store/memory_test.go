package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/store"
	"remindcal/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventStore(t *testing.T) {
	storetest.RunEventStore(t, func(t *testing.T) store.EventStore {
		return store.NewMemoryEventStore()
	})
}

func TestMemoryPermissionStore(t *testing.T) {
	storetest.RunPermissionStore(t, func(t *testing.T) store.PermissionStore {
		return store.NewMemoryPermissionStore()
	})
}

func TestMemoryEventStore_ReturnsDetachedCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryEventStore()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	in := models.NewEvent("Copy", at, at.Add(time.Hour))
	in.OwnerID = 1
	in.ReminderTime = &at

	created, err := s.Create(ctx, in)
	require.NoError(t, err)
	*created.ReminderTime = at.Add(time.Hour)

	found, _, err := s.FindByID(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.True(t, found.ReminderTime.Equal(at))
}

func TestMemoryEventStore_ConcurrentVersionedUpdates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryEventStore()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	in := models.NewEvent("Contended", at, at.Add(time.Hour))
	in.OwnerID = 1
	created, err := s.Create(ctx, in)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := created
			e.ReminderSent = true
			if _, err := s.Update(ctx, e); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "only one writer holding version 1 may win")
}
