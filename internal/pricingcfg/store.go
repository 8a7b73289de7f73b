package pricingcfg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the configuration store is not wired.
var ErrStoreUnavailable = errors.New("pricingcfg: store unavailable")

// Store answers effective-as-of reads for every configuration kind. All
// methods are read-only; the boolean reports whether a record matched.
type Store interface {
	EffectiveMentorRate(ctx context.Context, mentorID uuid.UUID, asOf time.Time) (MentorRate, bool, error)
	EffectiveRegionalMultiplier(ctx context.Context, regionCode string, asOf time.Time) (RegionalMultiplier, bool, error)
	EffectiveSurgeRule(ctx context.Context, skillID uuid.UUID, regionCode string) (SurgeRule, bool, error)
	PromoByCode(ctx context.Context, code string) (PromoRule, bool, error)
	EffectiveCommunityDiscount(ctx context.Context, userID uuid.UUID, asOf time.Time) (CommunityDiscount, bool, error)
	EffectiveCommissionPolicy(ctx context.Context, asOf time.Time) (CommissionPolicy, bool, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

// Overlapping effective windows are resolved by creation order: the most
// recently created matching record wins. Every query below carries the same
// ORDER BY created_at DESC LIMIT 1 for that reason.

func (s *pgStore) EffectiveMentorRate(ctx context.Context, mentorID uuid.UUID, asOf time.Time) (MentorRate, bool, error) {
	if s == nil || s.pool == nil {
		return MentorRate{}, false, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, mentor_id, hourly_rate, admin_override, COALESCE(override_reason, ''), effective_from, effective_to, created_at
FROM mentor_rates
WHERE mentor_id = $1 AND effective_from <= $2 AND (effective_to IS NULL OR effective_to > $2)
ORDER BY created_at DESC LIMIT 1`, mentorID, asOf)
	var r MentorRate
	if err := row.Scan(&r.ID, &r.MentorID, &r.HourlyRate, &r.AdminOverride, &r.OverrideReason, &r.EffectiveFrom, &r.EffectiveTo, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MentorRate{}, false, nil
		}
		return MentorRate{}, false, err
	}
	return r, true, nil
}

func (s *pgStore) EffectiveRegionalMultiplier(ctx context.Context, regionCode string, asOf time.Time) (RegionalMultiplier, bool, error) {
	if s == nil || s.pool == nil {
		return RegionalMultiplier{}, false, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, region_code, multiplier, effective_from, effective_to, created_at
FROM regional_multipliers
WHERE region_code = $1 AND effective_from <= $2 AND (effective_to IS NULL OR effective_to > $2)
ORDER BY created_at DESC LIMIT 1`, regionCode, asOf)
	var r RegionalMultiplier
	if err := row.Scan(&r.ID, &r.RegionCode, &r.Multiplier, &r.EffectiveFrom, &r.EffectiveTo, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RegionalMultiplier{}, false, nil
		}
		return RegionalMultiplier{}, false, err
	}
	return r, true, nil
}

// EffectiveSurgeRule prefers a rule scoped to the caller's region over a
// global rule for the same skill.
func (s *pgStore) EffectiveSurgeRule(ctx context.Context, skillID uuid.UUID, regionCode string) (SurgeRule, bool, error) {
	if s == nil || s.pool == nil {
		return SurgeRule{}, false, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, skill_id, region_code, multiplier, active, created_at
FROM surge_rules
WHERE skill_id = $1 AND active AND (region_code = $2 OR region_code IS NULL)
ORDER BY region_code NULLS LAST, created_at DESC LIMIT 1`, skillID, nullIfEmpty(regionCode))
	var r SurgeRule
	if err := row.Scan(&r.ID, &r.SkillID, &r.RegionCode, &r.Multiplier, &r.Active, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SurgeRule{}, false, nil
		}
		return SurgeRule{}, false, err
	}
	return r, true, nil
}

func (s *pgStore) PromoByCode(ctx context.Context, code string) (PromoRule, bool, error) {
	if s == nil || s.pool == nil {
		return PromoRule{}, false, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, code, kind, value, regions, valid_from, valid_to, stackable, usage_limit, used_count, active, created_at
FROM promo_rules WHERE code = $1`, code)
	var r PromoRule
	if err := row.Scan(&r.ID, &r.Code, &r.Kind, &r.Value, &r.Regions, &r.ValidFrom, &r.ValidTo, &r.Stackable, &r.UsageLimit, &r.UsedCount, &r.Active, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PromoRule{}, false, nil
		}
		return PromoRule{}, false, err
	}
	return r, true, nil
}

// EffectiveCommunityDiscount joins the user's community tags against active
// discount rules. Rules that require verification only match verified tags.
// When several tags qualify the largest discount wins.
func (s *pgStore) EffectiveCommunityDiscount(ctx context.Context, userID uuid.UUID, asOf time.Time) (CommunityDiscount, bool, error) {
	if s == nil || s.pool == nil {
		return CommunityDiscount{}, false, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT d.id, d.community_tag, d.discount_percent, d.requires_verification, d.valid_from, d.valid_to, d.created_at
FROM community_discounts d
JOIN user_community_tags t ON t.tag = d.community_tag
WHERE t.user_id = $1
  AND (NOT d.requires_verification OR t.verified)
  AND (d.valid_from IS NULL OR d.valid_from <= $2)
  AND (d.valid_to IS NULL OR d.valid_to > $2)
  AND (t.valid_from IS NULL OR t.valid_from <= $2)
  AND (t.valid_to IS NULL OR t.valid_to > $2)
ORDER BY d.discount_percent DESC, d.created_at DESC LIMIT 1`, userID, asOf)
	var r CommunityDiscount
	if err := row.Scan(&r.ID, &r.CommunityTag, &r.DiscountPercent, &r.RequiresVerification, &r.ValidFrom, &r.ValidTo, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CommunityDiscount{}, false, nil
		}
		return CommunityDiscount{}, false, err
	}
	return r, true, nil
}

func (s *pgStore) EffectiveCommissionPolicy(ctx context.Context, asOf time.Time) (CommissionPolicy, bool, error) {
	if s == nil || s.pool == nil {
		return CommissionPolicy{}, false, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, commission_percent, effective_from, effective_to, created_at
FROM commission_policies
WHERE effective_from <= $1 AND (effective_to IS NULL OR effective_to > $1)
ORDER BY created_at DESC LIMIT 1`, asOf)
	var r CommissionPolicy
	if err := row.Scan(&r.ID, &r.CommissionPercent, &r.EffectiveFrom, &r.EffectiveTo, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CommissionPolicy{}, false, nil
		}
		return CommissionPolicy{}, false, err
	}
	return r, true, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
