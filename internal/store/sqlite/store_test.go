package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/store"
	"remindcal/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh database under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEventStoreContract(t *testing.T) {
	storetest.RunEventStore(t, func(t *testing.T) store.EventStore {
		return createTestStore(t)
	})
}

func TestPermissionStoreContract(t *testing.T) {
	storetest.RunPermissionStore(t, func(t *testing.T) store.PermissionStore {
		return createTestStore(t)
	})
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e := models.NewEvent("Persisted", at, at.Add(time.Hour))
	e.OwnerID = 5
	created, err := s.Create(context.Background(), e)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	found, ok, err := s.FindByID(context.Background(), created.ID, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Persisted", found.Title)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestLocalEventsShareNullExternalID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e := models.NewEvent("Local", at, at.Add(time.Hour))
		e.OwnerID = 1
		_, err := s.Create(ctx, e)
		require.NoError(t, err, "local events must not collide on the external id index")
	}

	var nulls int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE external_id IS NULL`).Scan(&nulls))
	assert.Equal(t, 3, nulls)
}

func TestTimesRoundTripInUTC(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	loc := time.FixedZone("UTC+3", 3*60*60)
	start := time.Date(2026, 3, 2, 12, 0, 0, 123456789, loc)

	e := models.NewEvent("Zoned", start, start.Add(time.Hour))
	e.OwnerID = 1
	created, err := s.Create(ctx, e)
	require.NoError(t, err)

	found, _, err := s.FindByID(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.True(t, found.StartTime.Equal(start))
	assert.Equal(t, time.UTC, found.StartTime.Location())
}

func TestStoreUnavailableAfterClose(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.FindAllGlobal(context.Background())
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), models.ErrStoreUnavailable)
}
