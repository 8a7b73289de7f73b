package quote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-mentor/internal/pricing"
)

var (
	// ErrStoreUnavailable indicates the breakdown store is not wired.
	ErrStoreUnavailable = errors.New("quote: store unavailable")
	// ErrNotFound is returned for unknown or archived breakdown tokens.
	ErrNotFound = errors.New("quote: breakdown not found")
	// ErrAlreadyLocked is returned when confirming a token a second time.
	ErrAlreadyLocked = errors.New("quote: breakdown already locked")
)

// Record is a persisted price breakdown. The token is single use: a record
// is created unlocked by calculation and locked at most once by
// confirmation, after which no field changes again.
type Record struct {
	ID       uuid.UUID
	Token    uuid.UUID
	MentorID uuid.UUID
	UserID   *uuid.UUID
	pricing.Breakdown
	Locked      bool
	SessionID   *uuid.UUID
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// Store persists breakdowns and enforces the lock transition.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	GetByToken(ctx context.Context, token uuid.UUID) (Record, error)
	// Lock atomically transitions the breakdown to locked and binds the
	// session. Exactly one concurrent Lock per token succeeds; the rest
	// observe ErrAlreadyLocked.
	Lock(ctx context.Context, token uuid.UUID, sessionID uuid.UUID) (Record, error)
}

// NewStore constructs the Postgres-backed breakdown store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// PGStore implements Store plus the housekeeping queries used by the sweep
// worker.
type PGStore struct {
	pool *pgxpool.Pool
}

const breakdownColumns = `id, token, mentor_id, user_id, slot_minutes, mentor_base_rate, base_price,
regional_multiplier, surge_multiplier, COALESCE(promo_code, ''), promo_discount, community_discount,
subtotal_before_rounding, subtotal, commission, tax, ai_fee, credits_applied, final_price,
mentor_payout, currency, stages, locked, session_id, created_at, confirmed_at`

// Insert persists a freshly calculated, unlocked breakdown.
func (s *PGStore) Insert(ctx context.Context, rec Record) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	stages, err := json.Marshal(rec.Stages)
	if err != nil {
		return Record{}, err
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO price_breakdowns (
token, mentor_id, user_id, slot_minutes, mentor_base_rate, base_price,
regional_multiplier, surge_multiplier, promo_code, promo_discount, community_discount,
subtotal_before_rounding, subtotal, commission, tax, ai_fee, credits_applied, final_price,
mentor_payout, currency, stages)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
RETURNING `+breakdownColumns,
		rec.Token, rec.MentorID, rec.UserID, rec.SlotMinutes, rec.MentorBaseRate, rec.BasePrice,
		rec.RegionalMultiplier, rec.SurgeMultiplier, nullIfEmpty(rec.PromoCode), rec.PromoDiscount, rec.CommunityDiscount,
		rec.SubtotalBeforeRounding, rec.Subtotal, rec.Commission, rec.Tax, rec.AIFee, rec.CreditsApplied, rec.FinalPrice,
		rec.MentorPayout, rec.Currency, stages)
	return scanRecord(row)
}

// GetByToken fetches a breakdown regardless of lock state. Archived rows no
// longer resolve.
func (s *PGStore) GetByToken(ctx context.Context, token uuid.UUID) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+breakdownColumns+` FROM price_breakdowns
WHERE token = $1 AND archived_at IS NULL`, token)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Lock performs the check-and-set: the WHERE clause on the locked flag makes
// concurrent confirms mutually exclusive at the database.
func (s *PGStore) Lock(ctx context.Context, token uuid.UUID, sessionID uuid.UUID) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE price_breakdowns
SET locked = TRUE, session_id = $2, confirmed_at = now()
WHERE token = $1 AND locked = FALSE AND archived_at IS NULL
RETURNING `+breakdownColumns, token, sessionID)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}
	var locked bool
	probe := s.pool.QueryRow(ctx, `SELECT locked FROM price_breakdowns WHERE token = $1 AND archived_at IS NULL`, token)
	if err := probe.Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if locked {
		return Record{}, ErrAlreadyLocked
	}
	return Record{}, ErrNotFound
}

// ArchiveUnconfirmedBefore flags abandoned quotes older than the cutoff so
// they stop resolving by token. Locked breakdowns are never archived.
func (s *PGStore) ArchiveUnconfirmedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 500
	}
	tag, err := s.pool.Exec(ctx, `UPDATE price_breakdowns SET archived_at = now()
WHERE id IN (
  SELECT id FROM price_breakdowns
  WHERE locked = FALSE AND archived_at IS NULL AND created_at < $1
  ORDER BY created_at LIMIT $2
)`, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		stages []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Token, &rec.MentorID, &rec.UserID, &rec.SlotMinutes, &rec.MentorBaseRate, &rec.BasePrice,
		&rec.RegionalMultiplier, &rec.SurgeMultiplier, &rec.PromoCode, &rec.PromoDiscount, &rec.CommunityDiscount,
		&rec.SubtotalBeforeRounding, &rec.Subtotal, &rec.Commission, &rec.Tax, &rec.AIFee, &rec.CreditsApplied, &rec.FinalPrice,
		&rec.MentorPayout, &rec.Currency, &stages, &rec.Locked, &rec.SessionID, &rec.CreatedAt, &rec.ConfirmedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &rec.Stages); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
