package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// countingStore records writes reaching the wrapped store.
type countingStore struct {
	store.EventStore
	creates int
	updates int

	// beforeCreate, if set, runs once before the next Create is forwarded.
	beforeCreate func()
}

func (s *countingStore) Create(ctx context.Context, e models.Event) (models.Event, error) {
	s.creates++
	if hook := s.beforeCreate; hook != nil {
		s.beforeCreate = nil
		hook()
	}
	return s.EventStore.Create(ctx, e)
}

func (s *countingStore) Update(ctx context.Context, e models.Event) (models.Event, error) {
	s.updates++
	return s.EventStore.Update(ctx, e)
}

func newTestEngine(t *testing.T) (*Engine, *countingStore) {
	t.Helper()
	cs := &countingStore{EventStore: store.NewMemoryEventStore()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(logger, cs), cs
}

func external(externalID, title string) models.Event {
	e := models.NewEvent(title, start, start.Add(time.Hour))
	e.ExternalID = externalID
	return e
}

func TestReconcile_IsIdempotentForIdenticalCandidates(t *testing.T) {
	eng, cs := newTestEngine(t)
	ctx := context.Background()

	first, outcome, err := eng.Reconcile(ctx, external("g1", "Sync A"), 7)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	second, outcome, err := eng.Reconcile(ctx, external("g1", "Sync A"), 7)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 1, cs.creates)
	assert.Equal(t, 0, cs.updates, "second reconcile must not write")

	all, err := eng.ListForOwner(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReconcile_UpdatesChangedTitleInPlace(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, _, err := eng.Reconcile(ctx, external("g1", "Sync A"), 7)
	require.NoError(t, err)

	second, outcome, err := eng.Reconcile(ctx, external("g1", "Sync A v2"), 7)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, second.ID)

	all, err := eng.ListForOwner(ctx, 7)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Sync A v2", all[0].Title)
	assert.Equal(t, "g1", all[0].ExternalID)
}

func TestReconcile_StampsOwnerAndClearsCallerID(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	candidate := models.NewEvent("Local", start, start.Add(time.Hour))
	candidate.ID = "caller-chosen"
	candidate.OwnerID = 999

	got, outcome, err := eng.Reconcile(ctx, candidate, 42)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, int64(42), got.OwnerID)
	assert.NotEqual(t, "caller-chosen", got.ID)

	foreign, err := eng.ListForOwner(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestReconcile_LocalCandidatesAlwaysCreate(t *testing.T) {
	eng, cs := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, outcome, err := eng.Reconcile(ctx, models.NewEvent("Same", start, start.Add(time.Hour)), 1)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, outcome)
	}
	assert.Equal(t, 2, cs.creates)
}

func TestReconcile_ExternalIDIsScopedByOwner(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a, _, err := eng.Reconcile(ctx, external("g1", "Sync A"), 7)
	require.NoError(t, err)
	b, outcome, err := eng.Reconcile(ctx, external("g1", "Sync A"), 8)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, outcome)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestReconcile_RejectsInvalidCandidates(t *testing.T) {
	eng, cs := newTestEngine(t)
	ctx := context.Background()

	bad := external("g1", "Backwards")
	bad.EndTime = start.Add(-time.Minute)
	_, _, err := eng.Reconcile(ctx, bad, 1)
	assert.ErrorIs(t, err, models.ErrInvalidTimeRange)

	_, _, err = eng.Reconcile(ctx, external("g2", ""), 1)
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	assert.Equal(t, 0, cs.creates)
}

func TestReconcile_KeepsSentFlagWhenReminderUnchanged(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	remindAt := start.Add(-10 * time.Minute)

	candidate := external("g1", "Review")
	candidate.ReminderTime = &remindAt
	created, _, err := eng.Reconcile(ctx, candidate, 1)
	require.NoError(t, err)

	// The scheduler marks the reminder sent.
	created.ReminderSent = true
	_, err = eng.events.Update(ctx, created)
	require.NoError(t, err)

	candidate.Title = "Review (moved room)"
	updated, outcome, err := eng.Reconcile(ctx, candidate, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.True(t, updated.ReminderSent, "title change must not re-fire the reminder")

	later := remindAt.Add(5 * time.Minute)
	candidate.ReminderTime = &later
	updated, _, err = eng.Reconcile(ctx, candidate, 1)
	require.NoError(t, err)
	assert.False(t, updated.ReminderSent, "a new reminder time re-arms the reminder")
}

func TestReconcile_RetriesAfterLosingCreateRace(t *testing.T) {
	eng, cs := newTestEngine(t)
	ctx := context.Background()

	cs.beforeCreate = func() {
		racer := external("g1", "Sync A")
		racer.OwnerID = 7
		_, err := cs.EventStore.Create(ctx, racer)
		require.NoError(t, err)
	}

	got, outcome, err := eng.Reconcile(ctx, external("g1", "Sync A"), 7)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	all, err := eng.ListForOwner(ctx, 7)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, all[0].ID, got.ID)
}

func TestApplyEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves external id when omitted", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		created, _, err := eng.Reconcile(ctx, external("g1", "Sync A"), 7)
		require.NoError(t, err)

		edit := models.NewEvent("Renamed locally", start, start.Add(2*time.Hour))
		edit.ID = created.ID
		got, err := eng.ApplyEdit(ctx, edit, 7)
		require.NoError(t, err)
		assert.Equal(t, "g1", got.ExternalID)
		assert.Equal(t, "Renamed locally", got.Title)
		assert.True(t, got.EndTime.Equal(start.Add(2*time.Hour)))
	})

	t.Run("requires the event to exist for the owner", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		created, _, err := eng.Reconcile(ctx, models.NewEvent("Mine", start, start.Add(time.Hour)), 1)
		require.NoError(t, err)

		edit := created
		edit.Title = "Hijacked"
		_, err = eng.ApplyEdit(ctx, edit, 2)
		assert.ErrorIs(t, err, models.ErrNotFound)

		edit.ID = "missing"
		_, err = eng.ApplyEdit(ctx, edit, 1)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("rejects end before start", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		created, _, err := eng.Reconcile(ctx, models.NewEvent("Mine", start, start.Add(time.Hour)), 1)
		require.NoError(t, err)

		created.EndTime = start.Add(-time.Hour)
		_, err = eng.ApplyEdit(ctx, created, 1)
		assert.ErrorIs(t, err, models.ErrInvalidTimeRange)
	})

	t.Run("rejects missing id", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		_, err := eng.ApplyEdit(ctx, models.NewEvent("No id", start, start.Add(time.Hour)), 1)
		assert.ErrorIs(t, err, models.ErrInvalidEvent)
	})
}

func TestSetReminder_AlwaysResetsSentFlag(t *testing.T) {
	ctx := context.Background()
	at := start.Add(-5 * time.Minute)
	earlier := start.Add(-time.Hour)

	for name, next := range map[string]*time.Time{
		"same time":    &at,
		"earlier time": &earlier,
		"cleared":      nil,
	} {
		t.Run(name, func(t *testing.T) {
			eng, _ := newTestEngine(t)
			candidate := models.NewEvent("Standup", start, start.Add(30*time.Minute))
			candidate.ReminderTime = &at
			created, _, err := eng.Reconcile(ctx, candidate, 42)
			require.NoError(t, err)

			created.ReminderSent = true
			_, err = eng.events.Update(ctx, created)
			require.NoError(t, err)

			got, err := eng.SetReminder(ctx, created.ID, 42, next)
			require.NoError(t, err)
			assert.False(t, got.ReminderSent)
			assert.True(t, models.SameReminderTime(next, got.ReminderTime))
		})
	}
}

func TestSetReminder_RequiresOwnedEvent(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	created, _, err := eng.Reconcile(ctx, models.NewEvent("Mine", start, start.Add(time.Hour)), 1)
	require.NoError(t, err)

	_, err = eng.SetReminder(ctx, created.ID, 2, &start)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = eng.SetRemindersEnabled(ctx, created.ID, 2, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetRemindersEnabled(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	created, _, err := eng.Reconcile(ctx, models.NewEvent("Mine", start, start.Add(time.Hour)), 1)
	require.NoError(t, err)
	require.True(t, created.RemindersEnabled)

	got, err := eng.SetRemindersEnabled(ctx, created.ID, 1, false)
	require.NoError(t, err)
	assert.False(t, got.RemindersEnabled)

	stored, err := eng.Get(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.False(t, stored.RemindersEnabled)
}

func TestDelete_IsOwnerScopedAndIdempotent(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	created, _, err := eng.Reconcile(ctx, models.NewEvent("Mine", start, start.Add(time.Hour)), 1)
	require.NoError(t, err)

	require.NoError(t, eng.Delete(ctx, created.ID, 2))
	_, err = eng.Get(ctx, created.ID, 1)
	require.NoError(t, err, "foreign delete must not remove the event")

	require.NoError(t, eng.Delete(ctx, created.ID, 1))
	require.NoError(t, eng.Delete(ctx, created.ID, 1))
	require.NoError(t, eng.Delete(ctx, "never-existed", 1))

	_, err = eng.Get(ctx, created.ID, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListBetween_RejectsInvertedRange(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.ListBetween(context.Background(), start, start.Add(-time.Hour), 1)
	assert.ErrorIs(t, err, models.ErrInvalidTimeRange)
}
