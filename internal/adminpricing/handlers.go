package adminpricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-mentor/internal/audit"
	"github.com/noah-isme/backend-mentor/internal/common"
	"github.com/noah-isme/backend-mentor/internal/pricing"
	"github.com/noah-isme/backend-mentor/internal/pricingcfg"
	"github.com/noah-isme/backend-mentor/internal/quote"
)

// ConfigStore is the persistence surface the admin handlers require.
// Satisfied by *Store; tests use stubs.
type ConfigStore interface {
	CreateMentorRate(ctx context.Context, rec pricingcfg.MentorRate) (pricingcfg.MentorRate, error)
	ListMentorRates(ctx context.Context, mentorID *uuid.UUID, page Page) ([]pricingcfg.MentorRate, error)
	CreateRegionalMultiplier(ctx context.Context, rec pricingcfg.RegionalMultiplier) (pricingcfg.RegionalMultiplier, error)
	ListRegionalMultipliers(ctx context.Context, regionCode string, page Page) ([]pricingcfg.RegionalMultiplier, error)
	CreateSurgeRule(ctx context.Context, rec pricingcfg.SurgeRule) (pricingcfg.SurgeRule, error)
	ListSurgeRules(ctx context.Context, page Page) ([]pricingcfg.SurgeRule, error)
	SetSurgeRuleActive(ctx context.Context, id uuid.UUID, active bool) (pricingcfg.SurgeRule, error)
	CreatePromoRule(ctx context.Context, rec pricingcfg.PromoRule) (pricingcfg.PromoRule, error)
	UpdatePromoRule(ctx context.Context, rec pricingcfg.PromoRule) (pricingcfg.PromoRule, error)
	GetPromoRule(ctx context.Context, code string) (pricingcfg.PromoRule, error)
	ListPromoRules(ctx context.Context, page Page) ([]pricingcfg.PromoRule, error)
	CreateCommunityDiscount(ctx context.Context, rec pricingcfg.CommunityDiscount) (pricingcfg.CommunityDiscount, error)
	ListCommunityDiscounts(ctx context.Context, page Page) ([]pricingcfg.CommunityDiscount, error)
	CreateCommissionPolicy(ctx context.Context, rec pricingcfg.CommissionPolicy) (pricingcfg.CommissionPolicy, error)
	ListCommissionPolicies(ctx context.Context, page Page) ([]pricingcfg.CommissionPolicy, error)
}

// Handler exposes administrative pricing configuration endpoints. Every
// mutation is audited with the before and after state.
type Handler struct {
	Store    ConfigStore
	Audit    audit.Service
	Config   quote.ConfigSource
	Validate *validator.Validate
	Log      zerolog.Logger
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return false
		}
	}
	return true
}

func (h *Handler) actor(r *http.Request) audit.Actor {
	if userID, ok := common.UserID(r.Context()); ok && userID != "" {
		return audit.Actor{Kind: audit.ActorKindUser, UserID: &userID}
	}
	return audit.Actor{Kind: audit.ActorKindAnonymous}
}

func (h *Handler) record(r *http.Request, ch audit.Change) {
	if err := h.Audit.Record(r.Context(), h.actor(r), ch); err != nil {
		h.Log.Error().Err(err).Str("action", ch.Action).Msg("audit record failed")
	}
}

func page(r *http.Request) Page {
	limit, offset := common.ParseLimitOffset(r, 50, 200)
	return Page{Limit: limit, Offset: offset}
}

type mentorRatePayload struct {
	MentorID       string          `json:"mentorId" validate:"required,uuid"`
	HourlyRate     decimal.Decimal `json:"hourlyRate"`
	AdminOverride  bool            `json:"adminOverride"`
	OverrideReason string          `json:"overrideReason"`
	EffectiveFrom  time.Time       `json:"effectiveFrom" validate:"required"`
	EffectiveTo    *time.Time      `json:"effectiveTo"`
	Reason         string          `json:"reason"`
}

// CreateMentorRate opens a new rate window for a mentor.
func (h *Handler) CreateMentorRate(w http.ResponseWriter, r *http.Request) {
	var payload mentorRatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	if !payload.HourlyRate.IsPositive() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "hourly rate must be positive", nil)
		return
	}
	if payload.AdminOverride && strings.TrimSpace(payload.OverrideReason) == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "override reason is required for admin overrides", nil)
		return
	}
	mentorID, err := uuid.Parse(strings.TrimSpace(payload.MentorID))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid mentor id", nil)
		return
	}
	rec, err := h.Store.CreateMentorRate(r.Context(), pricingcfg.MentorRate{
		MentorID:       mentorID,
		HourlyRate:     payload.HourlyRate,
		AdminOverride:  payload.AdminOverride,
		OverrideReason: strings.TrimSpace(payload.OverrideReason),
		EffectiveFrom:  payload.EffectiveFrom,
		EffectiveTo:    payload.EffectiveTo,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create mentor rate", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "mentor_rate.create",
		EntityType: "mentor_rate",
		EntityID:   rec.ID.String(),
		After:      rec,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// ListMentorRates lists rate windows, optionally filtered by mentorId.
func (h *Handler) ListMentorRates(w http.ResponseWriter, r *http.Request) {
	var mentorID *uuid.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("mentorId")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid mentor id", nil)
			return
		}
		mentorID = &parsed
	}
	recs, err := h.Store.ListMentorRates(r.Context(), mentorID, page(r))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list mentor rates", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": recs})
}

type regionalMultiplierPayload struct {
	RegionCode    string          `json:"regionCode" validate:"required"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	EffectiveFrom time.Time       `json:"effectiveFrom" validate:"required"`
	EffectiveTo   *time.Time      `json:"effectiveTo"`
	Reason        string          `json:"reason"`
}

// CreateRegionalMultiplier opens a multiplier window for a region.
func (h *Handler) CreateRegionalMultiplier(w http.ResponseWriter, r *http.Request) {
	var payload regionalMultiplierPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if payload.Multiplier.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "multiplier must not be negative", nil)
		return
	}
	rec, err := h.Store.CreateRegionalMultiplier(r.Context(), pricingcfg.RegionalMultiplier{
		RegionCode:    strings.TrimSpace(payload.RegionCode),
		Multiplier:    payload.Multiplier,
		EffectiveFrom: payload.EffectiveFrom,
		EffectiveTo:   payload.EffectiveTo,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create regional multiplier", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "regional_multiplier.create",
		EntityType: "regional_multiplier",
		EntityID:   rec.ID.String(),
		After:      rec,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// ListRegionalMultipliers lists multiplier windows.
func (h *Handler) ListRegionalMultipliers(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListRegionalMultipliers(r.Context(), strings.TrimSpace(r.URL.Query().Get("regionCode")), page(r))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list regional multipliers", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": recs})
}

type surgeRulePayload struct {
	SkillID    string          `json:"skillId" validate:"required,uuid"`
	RegionCode *string         `json:"regionCode"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Active     *bool           `json:"active"`
	Reason     string          `json:"reason"`
}

// CreateSurgeRule adds a surge multiplier for a skill.
func (h *Handler) CreateSurgeRule(w http.ResponseWriter, r *http.Request) {
	var payload surgeRulePayload
	if !h.decode(w, r, &payload) {
		return
	}
	if !payload.Multiplier.IsPositive() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "multiplier must be positive", nil)
		return
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	var region *string
	if payload.RegionCode != nil && strings.TrimSpace(*payload.RegionCode) != "" {
		trimmed := strings.TrimSpace(*payload.RegionCode)
		region = &trimmed
	}
	skillID, err := uuid.Parse(strings.TrimSpace(payload.SkillID))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid skill id", nil)
		return
	}
	rec, err := h.Store.CreateSurgeRule(r.Context(), pricingcfg.SurgeRule{
		SkillID:    skillID,
		RegionCode: region,
		Multiplier: payload.Multiplier,
		Active:     active,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create surge rule", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "surge_rule.create",
		EntityType: "surge_rule",
		EntityID:   rec.ID.String(),
		After:      rec,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// ListSurgeRules lists surge rules.
func (h *Handler) ListSurgeRules(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListSurgeRules(r.Context(), page(r))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list surge rules", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": recs})
}

type surgeTogglePayload struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

// ToggleSurgeRule activates or deactivates a surge rule.
func (h *Handler) ToggleSurgeRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid surge rule id", nil)
		return
	}
	var payload surgeTogglePayload
	if !h.decode(w, r, &payload) {
		return
	}
	updated, err := h.Store.SetSurgeRuleActive(r.Context(), id, payload.Active)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "surge rule not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update surge rule", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "surge_rule.toggle",
		EntityType: "surge_rule",
		EntityID:   id.String(),
		After:      updated,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

type promoPayload struct {
	Code       string          `json:"code" validate:"required"`
	Kind       string          `json:"kind" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Value      decimal.Decimal `json:"value"`
	Regions    []string        `json:"regions"`
	ValidFrom  *time.Time      `json:"validFrom"`
	ValidTo    *time.Time      `json:"validTo"`
	Stackable  bool            `json:"stackable"`
	UsageLimit *int32          `json:"usageLimit"`
	Active     *bool           `json:"active"`
	Reason     string          `json:"reason"`
}

func (p promoPayload) toRecord() (pricingcfg.PromoRule, error) {
	code := strings.TrimSpace(p.Code)
	if code == "" {
		return pricingcfg.PromoRule{}, errors.New("code is required")
	}
	if !p.Value.IsPositive() {
		return pricingcfg.PromoRule{}, errors.New("value must be positive")
	}
	if p.Kind == pricingcfg.PromoKindPercentage && p.Value.GreaterThan(decimal.NewFromInt(100)) {
		return pricingcfg.PromoRule{}, errors.New("percentage value must not exceed 100")
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	regions := make([]string, 0, len(p.Regions))
	for _, raw := range p.Regions {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			regions = append(regions, trimmed)
		}
	}
	return pricingcfg.PromoRule{
		Code:       code,
		Kind:       p.Kind,
		Value:      p.Value,
		Regions:    regions,
		ValidFrom:  p.ValidFrom,
		ValidTo:    p.ValidTo,
		Stackable:  p.Stackable,
		UsageLimit: p.UsageLimit,
		Active:     active,
	}, nil
}

// CreatePromo inserts a new promo rule.
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	var payload promoPayload
	if !h.decode(w, r, &payload) {
		return
	}
	rec, err := payload.toRecord()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	created, err := h.Store.CreatePromoRule(r.Context(), rec)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "promo code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create promo", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "promo.create",
		EntityType: "promo_rule",
		EntityID:   created.Code,
		After:      created,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// UpdatePromo replaces the mutable fields of an existing promo.
func (h *Handler) UpdatePromo(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "code is required", nil)
		return
	}
	var payload promoPayload
	if !h.decode(w, r, &payload) {
		return
	}
	payload.Code = code
	rec, err := payload.toRecord()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	before, err := h.Store.GetPromoRule(r.Context(), code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update promo", nil)
		return
	}
	updated, err := h.Store.UpdatePromoRule(r.Context(), rec)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promo not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update promo", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "promo.update",
		EntityType: "promo_rule",
		EntityID:   code,
		Before:     before,
		After:      updated,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// ListPromos lists promo rules.
func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListPromoRules(r.Context(), page(r))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list promos", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": recs})
}

type communityDiscountPayload struct {
	CommunityTag         string          `json:"communityTag" validate:"required"`
	DiscountPercent      decimal.Decimal `json:"discountPercent"`
	RequiresVerification bool            `json:"requiresVerification"`
	ValidFrom            *time.Time      `json:"validFrom"`
	ValidTo              *time.Time      `json:"validTo"`
	Reason               string          `json:"reason"`
}

// CreateCommunityDiscount adds a community discount rule.
func (h *Handler) CreateCommunityDiscount(w http.ResponseWriter, r *http.Request) {
	var payload communityDiscountPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if !payload.DiscountPercent.IsPositive() || payload.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "discount percent must be in (0, 100]", nil)
		return
	}
	rec, err := h.Store.CreateCommunityDiscount(r.Context(), pricingcfg.CommunityDiscount{
		CommunityTag:         strings.TrimSpace(payload.CommunityTag),
		DiscountPercent:      payload.DiscountPercent,
		RequiresVerification: payload.RequiresVerification,
		ValidFrom:            payload.ValidFrom,
		ValidTo:              payload.ValidTo,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create community discount", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "community_discount.create",
		EntityType: "community_discount",
		EntityID:   rec.ID.String(),
		After:      rec,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// ListCommunityDiscounts lists community discount rules.
func (h *Handler) ListCommunityDiscounts(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListCommunityDiscounts(r.Context(), page(r))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list community discounts", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": recs})
}

type commissionPolicyPayload struct {
	CommissionPercent decimal.Decimal `json:"commissionPercent"`
	EffectiveFrom     time.Time       `json:"effectiveFrom" validate:"required"`
	EffectiveTo       *time.Time      `json:"effectiveTo"`
	Reason            string          `json:"reason"`
}

// CreateCommissionPolicy opens a new commission window.
func (h *Handler) CreateCommissionPolicy(w http.ResponseWriter, r *http.Request) {
	var payload commissionPolicyPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if payload.CommissionPercent.IsNegative() || payload.CommissionPercent.GreaterThan(decimal.NewFromInt(100)) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "commission percent must be in [0, 100]", nil)
		return
	}
	rec, err := h.Store.CreateCommissionPolicy(r.Context(), pricingcfg.CommissionPolicy{
		CommissionPercent: payload.CommissionPercent,
		EffectiveFrom:     payload.EffectiveFrom,
		EffectiveTo:       payload.EffectiveTo,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create commission policy", nil)
		return
	}
	h.record(r, audit.Change{
		Action:     "commission_policy.create",
		EntityType: "commission_policy",
		EntityID:   rec.ID.String(),
		After:      rec,
		Reason:     payload.Reason,
	})
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// ListCommissionPolicies lists commission windows.
func (h *Handler) ListCommissionPolicies(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListCommissionPolicies(r.Context(), page(r))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list commission policies", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": recs})
}

// Simulate runs the pricing pipeline against current configuration without
// persisting anything, through the same resolver real quotes use.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	if h.Config == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "config resolver not configured", nil)
		return
	}
	var payload quote.CalculatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	req, err := quote.ToPricingRequest(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if err := req.Validate(); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	asOf := req.SessionDate
	if asOf.IsZero() {
		asOf = time.Now()
	}
	snap, err := h.Config.Snapshot(r.Context(), pricingcfg.Query{
		MentorID:   req.MentorID,
		UserID:     req.UserID,
		RegionCode: req.RegionCode,
		SkillID:    req.SkillID,
		PromoCode:  req.PromoCode,
		AsOf:       asOf,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to resolve configuration", nil)
		return
	}
	breakdown := pricing.Calculate(req, snap)
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"breakdown":    breakdown,
		"explanations": breakdown.Explanations(),
		"simulated":    true,
	}})
}
