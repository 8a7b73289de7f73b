package pricingcfg

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-mentor/internal/pricing"
)

// Defaults are the documented fallbacks used when no configuration record
// resolves. They come from deployment configuration, not the database.
type Defaults struct {
	MentorHourlyRate  decimal.Decimal
	CommissionPercent decimal.Decimal
	TaxRate           decimal.Decimal
	AgenticAIFee      decimal.Decimal
	Currency          string
}

// Query identifies the scope keys a snapshot is resolved for.
type Query struct {
	MentorID   uuid.UUID
	UserID     *uuid.UUID
	RegionCode string
	SkillID    *uuid.UUID
	PromoCode  string
	AsOf       time.Time
}

// Resolver assembles a pricing.Snapshot from the effective configuration as
// of a single instant. Missing records fall back to documented defaults and
// never fail the request; an unresolvable promo is dropped silently.
type Resolver struct {
	Store    Store
	Defaults Defaults
}

// Snapshot resolves every configuration kind the pipeline needs.
func (r Resolver) Snapshot(ctx context.Context, q Query) (pricing.Snapshot, error) {
	if r.Store == nil {
		return pricing.Snapshot{}, errors.New("pricingcfg: resolver store not configured")
	}
	snap := pricing.Snapshot{
		MentorRate:         r.Defaults.MentorHourlyRate,
		RegionalMultiplier: decimal.NewFromInt(1),
		SurgeMultiplier:    decimal.NewFromInt(1),
		CommissionPercent:  r.Defaults.CommissionPercent,
		TaxRate:            r.Defaults.TaxRate,
		AIFee:              r.Defaults.AgenticAIFee,
		Currency:           r.Defaults.Currency,
	}

	rate, ok, err := r.Store.EffectiveMentorRate(ctx, q.MentorID, q.AsOf)
	if err != nil {
		return pricing.Snapshot{}, err
	}
	if ok {
		snap.MentorRate = rate.HourlyRate
	} else {
		snap.MentorRateDefaulted = true
	}

	if q.RegionCode != "" {
		mult, ok, err := r.Store.EffectiveRegionalMultiplier(ctx, q.RegionCode, q.AsOf)
		if err != nil {
			return pricing.Snapshot{}, err
		}
		if ok {
			snap.RegionalMultiplier = mult.Multiplier
		}
	}

	if q.SkillID != nil {
		surge, ok, err := r.Store.EffectiveSurgeRule(ctx, *q.SkillID, q.RegionCode)
		if err != nil {
			return pricing.Snapshot{}, err
		}
		if ok {
			snap.SurgeMultiplier = surge.Multiplier
		}
	}

	policy, ok, err := r.Store.EffectiveCommissionPolicy(ctx, q.AsOf)
	if err != nil {
		return pricing.Snapshot{}, err
	}
	if ok {
		snap.CommissionPercent = policy.CommissionPercent
	}

	if q.PromoCode != "" {
		promo, err := r.resolvePromo(ctx, q)
		if err != nil {
			return pricing.Snapshot{}, err
		}
		snap.Promo = promo
	}

	if q.UserID != nil {
		comm, ok, err := r.Store.EffectiveCommunityDiscount(ctx, *q.UserID, q.AsOf)
		if err != nil {
			return pricing.Snapshot{}, err
		}
		if ok {
			snap.CommunityTag = comm.CommunityTag
			snap.CommunityPercent = comm.DiscountPercent
		}
	}

	return snap, nil
}

// resolvePromo returns nil (not an error) whenever the code is unknown,
// inactive, out of its window, exhausted, or not applicable to the region.
func (r Resolver) resolvePromo(ctx context.Context, q Query) (*pricing.Promo, error) {
	rule, ok, err := r.Store.PromoByCode(ctx, q.PromoCode)
	if err != nil {
		return nil, err
	}
	if !ok || !rule.Active {
		return nil, nil
	}
	if !InWindow(rule.ValidFrom, rule.ValidTo, q.AsOf) {
		return nil, nil
	}
	if rule.UsageLimit != nil && rule.UsedCount >= *rule.UsageLimit {
		return nil, nil
	}
	if len(rule.Regions) > 0 && !slices.Contains(rule.Regions, q.RegionCode) {
		return nil, nil
	}
	var discount pricing.Discount
	switch rule.Kind {
	case PromoKindPercentage:
		discount = pricing.Percentage(rule.Value)
	case PromoKindFixedAmount:
		discount = pricing.FixedAmount(rule.Value)
	default:
		return nil, nil
	}
	return &pricing.Promo{Code: rule.Code, Discount: discount}, nil
}
