package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"remindcal/internal/models"

	"github.com/google/uuid"
)

const eventColumns = `id, external_id, owner_id, title, description, location, start_time, end_time,
	reminder_time, reminders_enabled, reminder_sent, version, created_at, updated_at`

// Create inserts a new event with a fresh UUID.
// A second event with the same (owner, external id) fails with models.ErrConflict.
func (s *Store) Create(ctx context.Context, e models.Event) (models.Event, error) {
	if e.ID != "" {
		return models.Event{}, fmt.Errorf("create event %s: %w", e.ID, models.ErrIDAssigned)
	}

	e = e.Clone()
	e.ID = uuid.New().String()
	e.Version = 1
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		nullString(e.ExternalID),
		e.OwnerID,
		e.Title,
		e.Description,
		e.Location,
		formatTime(e.StartTime),
		formatTime(e.EndTime),
		nullTime(e.ReminderTime),
		e.RemindersEnabled,
		e.ReminderSent,
		e.Version,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Event{}, fmt.Errorf("create event: external id %q for owner %d: %w", e.ExternalID, e.OwnerID, models.ErrConflict)
		}
		return models.Event{}, unavailable("create event", err)
	}
	return e, nil
}

// Update replaces the row matching (e.ID, e.OwnerID) and increments its version.
func (s *Store) Update(ctx context.Context, e models.Event) (models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Event{}, unavailable("update event: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		version   int64
		createdAt string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, created_at FROM events WHERE id = ? AND owner_id = ?`,
		e.ID, e.OwnerID,
	).Scan(&version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, fmt.Errorf("update event %s for owner %d: %w", e.ID, e.OwnerID, models.ErrNotFound)
	}
	if err != nil {
		return models.Event{}, unavailable("update event", err)
	}
	if e.Version != 0 && e.Version != version {
		return models.Event{}, fmt.Errorf("update event %s: version %d, stored %d: %w", e.ID, e.Version, version, models.ErrConflict)
	}

	e = e.Clone()
	e.Version = version + 1
	e.UpdatedAt = s.now()
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Event{}, fmt.Errorf("update event %s: parse created_at: %w", e.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events
		SET external_id = ?, title = ?, description = ?, location = ?, start_time = ?, end_time = ?,
			reminder_time = ?, reminders_enabled = ?, reminder_sent = ?, version = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`,
		nullString(e.ExternalID),
		e.Title,
		e.Description,
		e.Location,
		formatTime(e.StartTime),
		formatTime(e.EndTime),
		nullTime(e.ReminderTime),
		e.RemindersEnabled,
		e.ReminderSent,
		e.Version,
		formatTime(e.UpdatedAt),
		e.ID,
		e.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Event{}, fmt.Errorf("update event %s: external id %q: %w", e.ID, e.ExternalID, models.ErrConflict)
		}
		return models.Event{}, unavailable("update event", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Event{}, unavailable("update event: commit", err)
	}
	return e, nil
}

func (s *Store) FindByID(ctx context.Context, id string, ownerID int64) (models.Event, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ? AND owner_id = ?`, id, ownerID)
	return s.scanOne(row, "find event by id")
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string, ownerID int64) (models.Event, bool, error) {
	if externalID == "" {
		return models.Event{}, false, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE external_id = ? AND owner_id = ?`, externalID, ownerID)
	return s.scanOne(row, "find event by external id")
}

func (s *Store) FindAllForOwner(ctx context.Context, ownerID int64) ([]models.Event, error) {
	return s.query(ctx, "find events for owner", `
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = ?
		ORDER BY start_time ASC, id ASC
	`, ownerID)
}

func (s *Store) FindBetween(ctx context.Context, start, end time.Time, ownerID int64) ([]models.Event, error) {
	return s.query(ctx, "find events between", `
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND end_time > ? AND start_time < ?
		ORDER BY start_time ASC, id ASC
	`, ownerID, formatTime(start), formatTime(end))
}

func (s *Store) DeleteByID(ctx context.Context, id string, ownerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, unavailable("delete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("delete event", err)
	}
	return n > 0, nil
}

func (s *Store) FindAllGlobal(ctx context.Context) ([]models.Event, error) {
	return s.query(ctx, "find all events", `
		SELECT `+eventColumns+` FROM events
		ORDER BY start_time ASC, id ASC
	`)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row *sql.Row, op string) (models.Event, bool, error) {
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, false, nil
	}
	if err != nil {
		return models.Event{}, false, unavailable(op, err)
	}
	return e, true, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return events, nil
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		e                                models.Event
		externalID, reminderTime         sql.NullString
		start, end, createdAt, updatedAt string
	)
	err := row.Scan(
		&e.ID,
		&externalID,
		&e.OwnerID,
		&e.Title,
		&e.Description,
		&e.Location,
		&start,
		&end,
		&reminderTime,
		&e.RemindersEnabled,
		&e.ReminderSent,
		&e.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return models.Event{}, err
	}

	e.ExternalID = externalID.String
	if e.StartTime, err = parseTime(start); err != nil {
		return models.Event{}, fmt.Errorf("parse start_time: %w", err)
	}
	if e.EndTime, err = parseTime(end); err != nil {
		return models.Event{}, fmt.Errorf("parse end_time: %w", err)
	}
	if reminderTime.Valid {
		t, err := parseTime(reminderTime.String)
		if err != nil {
			return models.Event{}, fmt.Errorf("parse reminder_time: %w", err)
		}
		e.ReminderTime = &t
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Event{}, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Event{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
