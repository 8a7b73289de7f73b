package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists audit entries in the pricing_audit_logs table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore wraps the pool.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const entryColumns = `id, actor_kind, actor_user_id, action, entity_type, entity_id,
	before_state, after_state, reason, created_at`

// InsertEntry appends an immutable audit entry.
func (s *PGStore) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	if s == nil || s.pool == nil {
		return Entry{}, errors.New("audit: store not configured")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pricing_audit_logs (
			actor_kind, actor_user_id, action, entity_type, entity_id,
			before_state, after_state, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+entryColumns,
		e.ActorKind, e.ActorUserID, e.Action, e.EntityType, e.EntityID,
		e.BeforeState, e.AfterState, e.Reason,
	)
	return scanEntry(row)
}

// ListEntries returns entries newest first, optionally filtered by entity
// type and action.
func (s *PGStore) ListEntries(ctx context.Context, f ListFilter) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("audit: store not configured")
	}
	query := `SELECT ` + entryColumns + ` FROM pricing_audit_logs`
	args := make([]any, 0, 4)
	where := ""
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		where = fmt.Sprintf(" WHERE entity_type = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		clause := fmt.Sprintf("action = $%d", len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.ActorKind, &e.ActorUserID, &e.Action, &e.EntityType, &e.EntityID,
		&e.BeforeState, &e.AfterState, &e.Reason, &e.CreatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}
