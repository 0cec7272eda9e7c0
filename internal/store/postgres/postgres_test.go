package postgres

import (
	"os"
	"testing"

	"remindcal/internal/store"
	"remindcal/internal/store/storetest"

	"github.com/stretchr/testify/require"
)

// createTestStore connects to REMINDCAL_TEST_POSTGRES_DSN and empties both tables.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("REMINDCAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REMINDCAL_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, s.db.Exec("DELETE FROM events").Error)
	require.NoError(t, s.db.Exec("DELETE FROM permission_grants").Error)
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
