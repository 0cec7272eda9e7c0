// Package postgres implements the event and permission stores on PostgreSQL through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindcal/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type eventRow struct {
	ID               string     `gorm:"primaryKey"`
	ExternalID       *string    `gorm:"uniqueIndex:idx_events_owner_external,where:external_id IS NOT NULL"`
	OwnerID          int64      `gorm:"not null;index:idx_events_owner_start;uniqueIndex:idx_events_owner_external"`
	Title            string     `gorm:"not null"`
	Description      string     `gorm:"not null;default:''"`
	Location         string     `gorm:"not null;default:''"`
	StartTime        time.Time  `gorm:"not null;index:idx_events_owner_start"`
	EndTime          time.Time  `gorm:"not null"`
	ReminderTime     *time.Time
	RemindersEnabled bool       `gorm:"not null"`
	ReminderSent     bool       `gorm:"not null"`
	Version          int64      `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (eventRow) TableName() string { return "events" }

type grantRow struct {
	ObserverID int64 `gorm:"primaryKey;autoIncrement:false"`
	OwnerID    int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt  time.Time
}

func (grantRow) TableName() string { return "permission_grants" }

// Store provides event and grant storage backed by PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects to the database described by dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}
	if err := db.AutoMigrate(&eventRow{}, &grantRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, e models.Event) (models.Event, error) {
	if e.ID != "" {
		return models.Event{}, fmt.Errorf("create event %s: %w", e.ID, models.ErrIDAssigned)
	}

	now := time.Now().UTC()
	e = e.Clone()
	e.ID = uuid.New().String()
	e.Version = 1
	e.CreatedAt = now
	e.UpdatedAt = now

	row := toRow(e)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.Event{}, fmt.Errorf("create event: external id %q for owner %d: %w", e.ExternalID, e.OwnerID, models.ErrConflict)
		}
		return models.Event{}, unavailable("create event", err)
	}
	return fromRow(row), nil
}

func (s *Store) Update(ctx context.Context, e models.Event) (models.Event, error) {
	var out models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current eventRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ?", e.ID, e.OwnerID).
			Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("update event %s for owner %d: %w", e.ID, e.OwnerID, models.ErrNotFound)
		}
		if err != nil {
			return unavailable("update event", err)
		}
		if e.Version != 0 && e.Version != current.Version {
			return fmt.Errorf("update event %s: version %d, stored %d: %w", e.ID, e.Version, current.Version, models.ErrConflict)
		}

		next := e.Clone()
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()
		row := toRow(next)

		err = tx.Model(&eventRow{}).
			Where("id = ? AND owner_id = ?", e.ID, e.OwnerID).
			Updates(map[string]any{
				"external_id":       row.ExternalID,
				"title":             row.Title,
				"description":       row.Description,
				"location":          row.Location,
				"start_time":        row.StartTime,
				"end_time":          row.EndTime,
				"reminder_time":     row.ReminderTime,
				"reminders_enabled": row.RemindersEnabled,
				"reminder_sent":     row.ReminderSent,
				"version":           row.Version,
				"updated_at":        row.UpdatedAt,
			}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("update event %s: external id %q: %w", e.ID, e.ExternalID, models.ErrConflict)
		}
		if err != nil {
			return unavailable("update event", err)
		}
		out = fromRow(row)
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id string, ownerID int64) (models.Event, bool, error) {
	return s.findOne(ctx, "find event by id", "id = ? AND owner_id = ?", id, ownerID)
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string, ownerID int64) (models.Event, bool, error) {
	if externalID == "" {
		return models.Event{}, false, nil
	}
	return s.findOne(ctx, "find event by external id", "external_id = ? AND owner_id = ?", externalID, ownerID)
}

func (s *Store) FindAllForOwner(ctx context.Context, ownerID int64) ([]models.Event, error) {
	return s.findMany(s.db.WithContext(ctx).Where("owner_id = ?", ownerID), "find events for owner")
}

func (s *Store) FindBetween(ctx context.Context, start, end time.Time, ownerID int64) ([]models.Event, error) {
	q := s.db.WithContext(ctx).Where("owner_id = ? AND end_time > ? AND start_time < ?", ownerID, start.UTC(), end.UTC())
	return s.findMany(q, "find events between")
}

func (s *Store) DeleteByID(ctx context.Context, id string, ownerID int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&eventRow{})
	if res.Error != nil {
		return false, unavailable("delete event", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) FindAllGlobal(ctx context.Context) ([]models.Event, error) {
	return s.findMany(s.db.WithContext(ctx), "find all events")
}

func (s *Store) AddGrant(ctx context.Context, observerID, ownerID int64) error {
	row := grantRow{ObserverID: observerID, OwnerID: ownerID, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return unavailable("add grant", err)
	}
	return nil
}

func (s *Store) RemoveGrant(ctx context.Context, observerID, ownerID int64) error {
	err := s.db.WithContext(ctx).
		Where("observer_id = ? AND owner_id = ?", observerID, ownerID).
		Delete(&grantRow{}).Error
	if err != nil {
		return unavailable("remove grant", err)
	}
	return nil
}

func (s *Store) HasGrant(ctx context.Context, observerID, ownerID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&grantRow{}).
		Where("observer_id = ? AND owner_id = ?", observerID, ownerID).
		Count(&n).Error
	if err != nil {
		return false, unavailable("has grant", err)
	}
	return n > 0, nil
}

func (s *Store) ListGrantedOwners(ctx context.Context, observerID int64) ([]int64, error) {
	owners := []int64{}
	err := s.db.WithContext(ctx).Model(&grantRow{}).
		Where("observer_id = ?", observerID).
		Order("owner_id ASC").
		Pluck("owner_id", &owners).Error
	if err != nil {
		return nil, unavailable("list granted owners", err)
	}
	return owners, nil
}

func (s *Store) findOne(ctx context.Context, op, where string, args ...any) (models.Event, bool, error) {
	var row eventRow
	err := s.db.WithContext(ctx).Where(where, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Event{}, false, nil
	}
	if err != nil {
		return models.Event{}, false, unavailable(op, err)
	}
	return fromRow(row), true, nil
}

func (s *Store) findMany(q *gorm.DB, op string) ([]models.Event, error) {
	var rows []eventRow
	if err := q.Order("start_time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, unavailable(op, err)
	}
	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, fromRow(r))
	}
	return events, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

func toRow(e models.Event) eventRow {
	row := eventRow{
		ID:               e.ID,
		OwnerID:          e.OwnerID,
		Title:            e.Title,
		Description:      e.Description,
		Location:         e.Location,
		StartTime:        e.StartTime.UTC(),
		EndTime:          e.EndTime.UTC(),
		RemindersEnabled: e.RemindersEnabled,
		ReminderSent:     e.ReminderSent,
		Version:          e.Version,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if e.ExternalID != "" {
		ext := e.ExternalID
		row.ExternalID = &ext
	}
	if e.ReminderTime != nil {
		t := e.ReminderTime.UTC()
		row.ReminderTime = &t
	}
	return row
}

func fromRow(r eventRow) models.Event {
	e := models.Event{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Title:            r.Title,
		Description:      r.Description,
		Location:         r.Location,
		StartTime:        r.StartTime.UTC(),
		EndTime:          r.EndTime.UTC(),
		RemindersEnabled: r.RemindersEnabled,
		ReminderSent:     r.ReminderSent,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ExternalID != nil {
		e.ExternalID = *r.ExternalID
	}
	if r.ReminderTime != nil {
		t := r.ReminderTime.UTC()
		e.ReminderTime = &t
	}
	return e
}
