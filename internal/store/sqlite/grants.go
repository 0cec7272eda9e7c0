package sqlite

import (
	"context"
)

// AddGrant records that ownerID allows observerID to read its events.
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) AddGrant(ctx context.Context, observerID, ownerID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_grants (observer_id, owner_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(observer_id, owner_id) DO NOTHING
	`, observerID, ownerID, formatTime(s.now()))
	if err != nil {
		return unavailable("add grant", err)
	}
	return nil
}

func (s *Store) RemoveGrant(ctx context.Context, observerID, ownerID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM permission_grants WHERE observer_id = ? AND owner_id = ?`, observerID, ownerID)
	if err != nil {
		return unavailable("remove grant", err)
	}
	return nil
}

func (s *Store) HasGrant(ctx context.Context, observerID, ownerID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permission_grants WHERE observer_id = ? AND owner_id = ?`, observerID, ownerID,
	).Scan(&n)
	if err != nil {
		return false, unavailable("has grant", err)
	}
	return n > 0, nil
}

func (s *Store) ListGrantedOwners(ctx context.Context, observerID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id FROM permission_grants WHERE observer_id = ? ORDER BY owner_id ASC`, observerID)
	if err != nil {
		return nil, unavailable("list granted owners", err)
	}
	defer rows.Close()

	owners := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list granted owners", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list granted owners", err)
	}
	return owners, nil
}
