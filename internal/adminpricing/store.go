package adminpricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-mentor/internal/pricingcfg"
)

// ErrNotFound is returned when a config record does not exist.
var ErrNotFound = errors.New("adminpricing: record not found")

var errNotConfigured = errors.New("adminpricing: store not configured")

// Store persists pricing configuration. Windowed kinds are append-only: a
// change is a new row with a fresh effective window, never an update in
// place, so historical quotes stay explainable.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Page bounds list queries.
type Page struct {
	Limit  int32
	Offset int32
}

func (p Page) bounds() (int32, int32) {
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// CreateMentorRate inserts a new rate window for a mentor.
func (s *Store) CreateMentorRate(ctx context.Context, rec pricingcfg.MentorRate) (pricingcfg.MentorRate, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.MentorRate{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO mentor_rates (mentor_id, hourly_rate, admin_override, override_reason, effective_from, effective_to)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id, mentor_id, hourly_rate, admin_override, COALESCE(override_reason, ''), effective_from, effective_to, created_at`,
		rec.MentorID, rec.HourlyRate, rec.AdminOverride, rec.OverrideReason, rec.EffectiveFrom, rec.EffectiveTo,
	)
	var out pricingcfg.MentorRate
	err := row.Scan(&out.ID, &out.MentorID, &out.HourlyRate, &out.AdminOverride, &out.OverrideReason, &out.EffectiveFrom, &out.EffectiveTo, &out.CreatedAt)
	return out, err
}

// ListMentorRates returns rate windows newest first, optionally for one mentor.
func (s *Store) ListMentorRates(ctx context.Context, mentorID *uuid.UUID, page Page) ([]pricingcfg.MentorRate, error) {
	if s == nil || s.pool == nil {
		return nil, errNotConfigured
	}
	limit, offset := page.bounds()
	rows, err := s.pool.Query(ctx, `
		SELECT id, mentor_id, hourly_rate, admin_override, COALESCE(override_reason, ''), effective_from, effective_to, created_at
		FROM mentor_rates
		WHERE $1::uuid IS NULL OR mentor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		mentorID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricingcfg.MentorRate
	for rows.Next() {
		var rec pricingcfg.MentorRate
		if err := rows.Scan(&rec.ID, &rec.MentorID, &rec.HourlyRate, &rec.AdminOverride, &rec.OverrideReason, &rec.EffectiveFrom, &rec.EffectiveTo, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateRegionalMultiplier inserts a multiplier window for a region.
func (s *Store) CreateRegionalMultiplier(ctx context.Context, rec pricingcfg.RegionalMultiplier) (pricingcfg.RegionalMultiplier, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.RegionalMultiplier{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO regional_multipliers (region_code, multiplier, effective_from, effective_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id, region_code, multiplier, effective_from, effective_to, created_at`,
		rec.RegionCode, rec.Multiplier, rec.EffectiveFrom, rec.EffectiveTo,
	)
	var out pricingcfg.RegionalMultiplier
	err := row.Scan(&out.ID, &out.RegionCode, &out.Multiplier, &out.EffectiveFrom, &out.EffectiveTo, &out.CreatedAt)
	return out, err
}

// ListRegionalMultipliers returns multiplier windows newest first.
func (s *Store) ListRegionalMultipliers(ctx context.Context, regionCode string, page Page) ([]pricingcfg.RegionalMultiplier, error) {
	if s == nil || s.pool == nil {
		return nil, errNotConfigured
	}
	limit, offset := page.bounds()
	rows, err := s.pool.Query(ctx, `
		SELECT id, region_code, multiplier, effective_from, effective_to, created_at
		FROM regional_multipliers
		WHERE $1 = '' OR region_code = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		regionCode, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricingcfg.RegionalMultiplier
	for rows.Next() {
		var rec pricingcfg.RegionalMultiplier
		if err := rows.Scan(&rec.ID, &rec.RegionCode, &rec.Multiplier, &rec.EffectiveFrom, &rec.EffectiveTo, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateSurgeRule inserts a surge multiplier for a skill.
func (s *Store) CreateSurgeRule(ctx context.Context, rec pricingcfg.SurgeRule) (pricingcfg.SurgeRule, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.SurgeRule{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO surge_rules (skill_id, region_code, multiplier, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, skill_id, region_code, multiplier, active, created_at`,
		rec.SkillID, rec.RegionCode, rec.Multiplier, rec.Active,
	)
	var out pricingcfg.SurgeRule
	err := row.Scan(&out.ID, &out.SkillID, &out.RegionCode, &out.Multiplier, &out.Active, &out.CreatedAt)
	return out, err
}

// ListSurgeRules returns surge rules newest first.
func (s *Store) ListSurgeRules(ctx context.Context, page Page) ([]pricingcfg.SurgeRule, error) {
	if s == nil || s.pool == nil {
		return nil, errNotConfigured
	}
	limit, offset := page.bounds()
	rows, err := s.pool.Query(ctx, `
		SELECT id, skill_id, region_code, multiplier, active, created_at
		FROM surge_rules
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricingcfg.SurgeRule
	for rows.Next() {
		var rec pricingcfg.SurgeRule
		if err := rows.Scan(&rec.ID, &rec.SkillID, &rec.RegionCode, &rec.Multiplier, &rec.Active, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetSurgeRuleActive toggles a surge rule and returns the updated record.
func (s *Store) SetSurgeRuleActive(ctx context.Context, id uuid.UUID, active bool) (pricingcfg.SurgeRule, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.SurgeRule{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE surge_rules SET active = $2 WHERE id = $1
		RETURNING id, skill_id, region_code, multiplier, active, created_at`,
		id, active,
	)
	var out pricingcfg.SurgeRule
	err := row.Scan(&out.ID, &out.SkillID, &out.RegionCode, &out.Multiplier, &out.Active, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricingcfg.SurgeRule{}, ErrNotFound
	}
	return out, err
}

const promoColumns = `id, code, kind, value, regions, valid_from, valid_to, stackable, usage_limit, used_count, active, created_at`

// CreatePromoRule inserts a promo. Duplicate codes surface as a pgconn 23505.
func (s *Store) CreatePromoRule(ctx context.Context, rec pricingcfg.PromoRule) (pricingcfg.PromoRule, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.PromoRule{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO promo_rules (code, kind, value, regions, valid_from, valid_to, stackable, usage_limit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+promoColumns,
		rec.Code, rec.Kind, rec.Value, rec.Regions, rec.ValidFrom, rec.ValidTo, rec.Stackable, rec.UsageLimit, rec.Active,
	)
	return scanPromo(row)
}

// UpdatePromoRule replaces the mutable fields of a promo identified by code.
func (s *Store) UpdatePromoRule(ctx context.Context, rec pricingcfg.PromoRule) (pricingcfg.PromoRule, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.PromoRule{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE promo_rules
		SET kind = $2, value = $3, regions = $4, valid_from = $5, valid_to = $6,
			stackable = $7, usage_limit = $8, active = $9
		WHERE code = $1
		RETURNING `+promoColumns,
		rec.Code, rec.Kind, rec.Value, rec.Regions, rec.ValidFrom, rec.ValidTo, rec.Stackable, rec.UsageLimit, rec.Active,
	)
	out, err := scanPromo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricingcfg.PromoRule{}, ErrNotFound
	}
	return out, err
}

// GetPromoRule loads a promo by its case-sensitive code.
func (s *Store) GetPromoRule(ctx context.Context, code string) (pricingcfg.PromoRule, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.PromoRule{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_rules WHERE code = $1`, code)
	out, err := scanPromo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricingcfg.PromoRule{}, ErrNotFound
	}
	return out, err
}

// ListPromoRules returns promos newest first.
func (s *Store) ListPromoRules(ctx context.Context, page Page) ([]pricingcfg.PromoRule, error) {
	if s == nil || s.pool == nil {
		return nil, errNotConfigured
	}
	limit, offset := page.bounds()
	rows, err := s.pool.Query(ctx, `
		SELECT `+promoColumns+` FROM promo_rules
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricingcfg.PromoRule
	for rows.Next() {
		rec, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPromo(row pgx.Row) (pricingcfg.PromoRule, error) {
	var rec pricingcfg.PromoRule
	err := row.Scan(&rec.ID, &rec.Code, &rec.Kind, &rec.Value, &rec.Regions, &rec.ValidFrom, &rec.ValidTo,
		&rec.Stackable, &rec.UsageLimit, &rec.UsedCount, &rec.Active, &rec.CreatedAt)
	if err != nil {
		return pricingcfg.PromoRule{}, err
	}
	return rec, nil
}

// CreateCommunityDiscount inserts a community discount rule.
func (s *Store) CreateCommunityDiscount(ctx context.Context, rec pricingcfg.CommunityDiscount) (pricingcfg.CommunityDiscount, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.CommunityDiscount{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO community_discounts (community_tag, discount_percent, requires_verification, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, community_tag, discount_percent, requires_verification, valid_from, valid_to, created_at`,
		rec.CommunityTag, rec.DiscountPercent, rec.RequiresVerification, rec.ValidFrom, rec.ValidTo,
	)
	var out pricingcfg.CommunityDiscount
	err := row.Scan(&out.ID, &out.CommunityTag, &out.DiscountPercent, &out.RequiresVerification, &out.ValidFrom, &out.ValidTo, &out.CreatedAt)
	return out, err
}

// ListCommunityDiscounts returns community discount rules newest first.
func (s *Store) ListCommunityDiscounts(ctx context.Context, page Page) ([]pricingcfg.CommunityDiscount, error) {
	if s == nil || s.pool == nil {
		return nil, errNotConfigured
	}
	limit, offset := page.bounds()
	rows, err := s.pool.Query(ctx, `
		SELECT id, community_tag, discount_percent, requires_verification, valid_from, valid_to, created_at
		FROM community_discounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricingcfg.CommunityDiscount
	for rows.Next() {
		var rec pricingcfg.CommunityDiscount
		if err := rows.Scan(&rec.ID, &rec.CommunityTag, &rec.DiscountPercent, &rec.RequiresVerification, &rec.ValidFrom, &rec.ValidTo, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateCommissionPolicy inserts a commission window.
func (s *Store) CreateCommissionPolicy(ctx context.Context, rec pricingcfg.CommissionPolicy) (pricingcfg.CommissionPolicy, error) {
	if s == nil || s.pool == nil {
		return pricingcfg.CommissionPolicy{}, errNotConfigured
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO commission_policies (commission_percent, effective_from, effective_to)
		VALUES ($1, $2, $3)
		RETURNING id, commission_percent, effective_from, effective_to, created_at`,
		rec.CommissionPercent, rec.EffectiveFrom, rec.EffectiveTo,
	)
	var out pricingcfg.CommissionPolicy
	err := row.Scan(&out.ID, &out.CommissionPercent, &out.EffectiveFrom, &out.EffectiveTo, &out.CreatedAt)
	return out, err
}

// ListCommissionPolicies returns commission windows newest first.
func (s *Store) ListCommissionPolicies(ctx context.Context, page Page) ([]pricingcfg.CommissionPolicy, error) {
	if s == nil || s.pool == nil {
		return nil, errNotConfigured
	}
	limit, offset := page.bounds()
	rows, err := s.pool.Query(ctx, `
		SELECT id, commission_percent, effective_from, effective_to, created_at
		FROM commission_policies
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricingcfg.CommissionPolicy
	for rows.Next() {
		var rec pricingcfg.CommissionPolicy
		if err := rows.Scan(&rec.ID, &rec.CommissionPercent, &rec.EffectiveFrom, &rec.EffectiveTo, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
