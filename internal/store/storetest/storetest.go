// Package storetest holds the behavioral suite every store implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func event(owner int64, title string, start time.Time, d time.Duration) models.Event {
	e := models.NewEvent(title, start, start.Add(d))
	e.OwnerID = owner
	return e
}

// RunEventStore exercises the EventStore contract against stores built by newStore.
// Each subtest receives a fresh, empty store.
func RunEventStore(t *testing.T, newStore func(t *testing.T) store.EventStore) {
	ctx := context.Background()

	t.Run("CreateAssignsIdentity", func(t *testing.T) {
		s := newStore(t)
		reminder := base.Add(-5 * time.Minute)
		in := event(42, "Standup", base, 30*time.Minute)
		in.Description = "daily"
		in.Location = "room 1"
		in.ReminderTime = &reminder

		got, err := s.Create(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, int64(1), got.Version)
		assert.False(t, got.CreatedAt.IsZero())

		found, ok, err := s.FindByID(ctx, got.ID, 42)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Standup", found.Title)
		assert.Equal(t, "daily", found.Description)
		assert.Equal(t, "room 1", found.Location)
		assert.True(t, found.StartTime.Equal(in.StartTime))
		assert.True(t, found.EndTime.Equal(in.EndTime))
		require.NotNil(t, found.ReminderTime)
		assert.True(t, found.ReminderTime.Equal(reminder))
		assert.True(t, found.RemindersEnabled)
		assert.False(t, found.ReminderSent)
	})

	t.Run("CreateRejectsPresetID", func(t *testing.T) {
		s := newStore(t)
		in := event(1, "Preset", base, time.Hour)
		in.ID = "already-here"

		_, err := s.Create(ctx, in)
		assert.ErrorIs(t, err, models.ErrIDAssigned)
	})

	t.Run("CreateRejectsDuplicateExternalID", func(t *testing.T) {
		s := newStore(t)
		in := event(7, "Sync A", base, time.Hour)
		in.ExternalID = "g1"

		_, err := s.Create(ctx, in)
		require.NoError(t, err)
		_, err = s.Create(ctx, in)
		assert.ErrorIs(t, err, models.ErrConflict)

		// The same external id under another owner is a different event.
		in.OwnerID = 8
		_, err = s.Create(ctx, in)
		assert.NoError(t, err)
	})

	t.Run("FindByIDIsOwnerScoped", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, event(1, "Mine", base, time.Hour))
		require.NoError(t, err)

		_, ok, err := s.FindByID(ctx, created.ID, 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("FindByExternalID", func(t *testing.T) {
		s := newStore(t)
		in := event(7, "Sync A", base, time.Hour)
		in.ExternalID = "g1"
		created, err := s.Create(ctx, in)
		require.NoError(t, err)

		found, ok, err := s.FindByExternalID(ctx, "g1", 7)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, created.ID, found.ID)

		_, ok, err = s.FindByExternalID(ctx, "g1", 8)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = s.FindByExternalID(ctx, "", 7)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UpdateReplacesFieldsAndBumpsVersion", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, event(1, "Draft", base, time.Hour))
		require.NoError(t, err)

		created.Title = "Final"
		created.ReminderSent = true
		created.RemindersEnabled = false
		updated, err := s.Update(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		found, _, err := s.FindByID(ctx, created.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "Final", found.Title)
		assert.True(t, found.ReminderSent)
		assert.False(t, found.RemindersEnabled)
		assert.Equal(t, int64(2), found.Version)
	})

	t.Run("UpdateRequiresMatchingOwner", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, event(1, "Mine", base, time.Hour))
		require.NoError(t, err)

		created.OwnerID = 2
		_, err = s.Update(ctx, created)
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = s.Update(ctx, event(1, "Ghost", base, time.Hour))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("UpdateWithStaleVersionConflicts", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, event(1, "Race", base, time.Hour))
		require.NoError(t, err)

		edit := created
		edit.Version = 0
		edit.Title = "Edited"
		_, err = s.Update(ctx, edit)
		require.NoError(t, err)

		stale := created
		stale.ReminderSent = true
		_, err = s.Update(ctx, stale)
		assert.ErrorIs(t, err, models.ErrConflict)

		found, _, err := s.FindByID(ctx, created.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "Edited", found.Title)
		assert.False(t, found.ReminderSent)
	})

	t.Run("OwnershipIsolation", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			_, err := s.Create(ctx, event(1, "one", base.Add(time.Duration(i)*time.Hour), time.Hour))
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, event(2, "two", base, time.Hour))
		require.NoError(t, err)

		got, err := s.FindAllForOwner(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, e := range got {
			assert.Equal(t, int64(1), e.OwnerID)
			if i > 0 {
				assert.False(t, e.StartTime.Before(got[i-1].StartTime), "ordered by start time")
			}
		}

		got, err = s.FindAllForOwner(ctx, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("FindBetweenUsesOverlap", func(t *testing.T) {
		s := newStore(t)
		mustCreate := func(title string, start time.Time, d time.Duration) {
			_, err := s.Create(ctx, event(1, title, start, d))
			require.NoError(t, err)
		}
		mustCreate("before", base.Add(-2*time.Hour), time.Hour)
		mustCreate("touching end", base.Add(-time.Hour), time.Hour)
		mustCreate("straddling", base.Add(-30*time.Minute), time.Hour)
		mustCreate("inside", base.Add(time.Hour), time.Hour)
		mustCreate("after", base.Add(5*time.Hour), time.Hour)
		_, err := s.Create(ctx, event(2, "foreign", base.Add(time.Hour), time.Hour))
		require.NoError(t, err)

		got, err := s.FindBetween(ctx, base, base.Add(4*time.Hour), 1)
		require.NoError(t, err)

		titles := make([]string, 0, len(got))
		for _, e := range got {
			titles = append(titles, e.Title)
		}
		assert.Equal(t, []string{"straddling", "inside"}, titles)
	})

	t.Run("DeleteIsOwnerScopedAndIdempotent", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, event(1, "Doomed", base, time.Hour))
		require.NoError(t, err)

		removed, err := s.DeleteByID(ctx, created.ID, 2)
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = s.DeleteByID(ctx, created.ID, 1)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.DeleteByID(ctx, created.ID, 1)
		require.NoError(t, err)
		assert.False(t, removed)

		_, ok, err := s.FindByID(ctx, created.ID, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("FindAllGlobalSpansOwners", func(t *testing.T) {
		s := newStore(t)
		for owner := int64(1); owner <= 3; owner++ {
			_, err := s.Create(ctx, event(owner, "x", base, time.Hour))
			require.NoError(t, err)
		}

		got, err := s.FindAllGlobal(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

// RunPermissionStore exercises the PermissionStore contract.
func RunPermissionStore(t *testing.T, newStore func(t *testing.T) store.PermissionStore) {
	ctx := context.Background()

	t.Run("GrantIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddGrant(ctx, 10, 1))
		require.NoError(t, s.AddGrant(ctx, 10, 1))
		require.NoError(t, s.AddGrant(ctx, 10, 3))
		require.NoError(t, s.AddGrant(ctx, 11, 1))

		owners, err := s.ListGrantedOwners(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, owners)

		ok, err := s.HasGrant(ctx, 10, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.HasGrant(ctx, 1, 10)
		require.NoError(t, err)
		assert.False(t, ok, "grants are directed")
	})

	t.Run("RevokeIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddGrant(ctx, 10, 1))
		require.NoError(t, s.RemoveGrant(ctx, 10, 1))
		require.NoError(t, s.RemoveGrant(ctx, 10, 1))
		require.NoError(t, s.RemoveGrant(ctx, 99, 1))

		ok, err := s.HasGrant(ctx, 10, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		owners, err := s.ListGrantedOwners(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, owners)
	})
}
