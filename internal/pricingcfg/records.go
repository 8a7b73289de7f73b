package pricingcfg

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Promo discount kinds as stored in promo_rules.kind.
const (
	PromoKindPercentage  = "PERCENTAGE"
	PromoKindFixedAmount = "FIXED_AMOUNT"
)

// MentorRate is the hourly rate effective for a mentor during its window.
type MentorRate struct {
	ID             uuid.UUID       `json:"id"`
	MentorID       uuid.UUID       `json:"mentorId"`
	HourlyRate     decimal.Decimal `json:"hourlyRate"`
	AdminOverride  bool            `json:"adminOverride"`
	OverrideReason string          `json:"overrideReason,omitempty"`
	EffectiveFrom  time.Time       `json:"effectiveFrom"`
	EffectiveTo    *time.Time      `json:"effectiveTo,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// RegionalMultiplier scales prices for a region during its window.
type RegionalMultiplier struct {
	ID            uuid.UUID       `json:"id"`
	RegionCode    string          `json:"regionCode"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	EffectiveFrom time.Time       `json:"effectiveFrom"`
	EffectiveTo   *time.Time      `json:"effectiveTo,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SurgeRule is a demand multiplier for a skill, optionally scoped to a
// region. A region-scoped rule beats a global one for the same skill.
type SurgeRule struct {
	ID         uuid.UUID       `json:"id"`
	SkillID    uuid.UUID       `json:"skillId"`
	RegionCode *string         `json:"regionCode,omitempty"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// PromoRule is an admin-managed promotion. Codes are unique and
// case-sensitive; an empty region list means the promo applies everywhere.
type PromoRule struct {
	ID         uuid.UUID       `json:"id"`
	Code       string          `json:"code"`
	Kind       string          `json:"kind"`
	Value      decimal.Decimal `json:"value"`
	Regions    []string        `json:"regions,omitempty"`
	ValidFrom  *time.Time      `json:"validFrom,omitempty"`
	ValidTo    *time.Time      `json:"validTo,omitempty"`
	Stackable  bool            `json:"stackable"`
	UsageLimit *int32          `json:"usageLimit,omitempty"`
	UsedCount  int32           `json:"usedCount"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// CommunityDiscount rewards members of a community tag.
type CommunityDiscount struct {
	ID                   uuid.UUID       `json:"id"`
	CommunityTag         string          `json:"communityTag"`
	DiscountPercent      decimal.Decimal `json:"discountPercent"`
	RequiresVerification bool            `json:"requiresVerification"`
	ValidFrom            *time.Time      `json:"validFrom,omitempty"`
	ValidTo              *time.Time      `json:"validTo,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// CommissionPolicy is the platform commission effective during its window.
type CommissionPolicy struct {
	ID                uuid.UUID       `json:"id"`
	CommissionPercent decimal.Decimal `json:"commissionPercent"`
	EffectiveFrom     time.Time       `json:"effectiveFrom"`
	EffectiveTo       *time.Time      `json:"effectiveTo,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// InWindow reports whether asOf falls inside [from, to). A nil upper bound
// means the record is open-ended.
func InWindow(from, to *time.Time, asOf time.Time) bool {
	if from != nil && asOf.Before(*from) {
		return false
	}
	if to != nil && !asOf.Before(*to) {
		return false
	}
	return true
}
