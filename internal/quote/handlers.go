package quote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-mentor/internal/common"
	"github.com/noah-isme/backend-mentor/internal/obs"
	"github.com/noah-isme/backend-mentor/internal/pricing"
)

// Handler exposes the quote lifecycle endpoints.
type Handler struct {
	Engine   *Engine
	Cache    *Cache
	Validate *validator.Validate
}

// CalculatePayload is the wire shape of a price calculation request. The
// admin simulate endpoint reuses it so simulations parse exactly like real
// quotes.
type CalculatePayload struct {
	MentorID       string  `json:"mentorId" validate:"required,uuid"`
	UserID         *string `json:"userId" validate:"omitempty,uuid"`
	SlotMinutes    int     `json:"slotMinutes" validate:"required,gt=0"`
	RegionCode     string  `json:"regionCode"`
	SkillID        *string `json:"skillId" validate:"omitempty,uuid"`
	SessionDate    *string `json:"sessionDate"`
	UseAgenticAI   bool    `json:"useAgenticAi"`
	CreditsToApply string  `json:"creditsToApply"`
	PromoCode      string  `json:"promoCode"`
}

type confirmPayload struct {
	BreakdownToken string          `json:"breakdownToken" validate:"required,uuid"`
	MentorID       *string         `json:"mentorId" validate:"omitempty,uuid"`
	Booking        *BookingDetails `json:"bookingDetails"`
}

// Calculate computes and persists a fresh quote.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	var payload CalculatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
	}
	req, err := ToPricingRequest(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	start := time.Now()
	resp, err := h.Engine.CalculatePrice(r.Context(), req)
	if err != nil {
		if errors.Is(err, pricing.ErrMentorRequired) || errors.Is(err, pricing.ErrInvalidSlot) {
			incCalc("invalid")
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		incCalc("error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to calculate price", nil)
		return
	}
	if obs.QuoteCalcLatency != nil {
		obs.QuoteCalcLatency.Observe(obs.DurationMillis(time.Since(start)))
	}
	if req.PromoCode != "" && resp.PromoCode == "" && obs.PromoSkipTotal != nil {
		obs.PromoSkipTotal.Inc()
	}
	incCalc("ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

// Confirm locks a previously calculated quote for a session.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	var payload confirmPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
	}
	token, err := uuid.Parse(strings.TrimSpace(payload.BreakdownToken))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid breakdown token", nil)
		return
	}
	mentorID := uuid.Nil
	if payload.MentorID != nil {
		mentorID, err = uuid.Parse(strings.TrimSpace(*payload.MentorID))
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid mentor id", nil)
			return
		}
	}
	details := BookingDetails{}
	if payload.Booking != nil {
		details = *payload.Booking
	}
	resp, err := h.Engine.ConfirmPrice(r.Context(), token, mentorID, details)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			incConfirm("not_found")
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "breakdown not found", nil)
		case errors.Is(err, ErrAlreadyLocked):
			incConfirm("conflict")
			common.JSONError(w, http.StatusConflict, "CONFLICT", "breakdown already locked", nil)
		case errors.Is(err, pricing.ErrMentorRequired):
			incConfirm("mismatch")
			common.JSONError(w, http.StatusConflict, "CONFLICT", "breakdown belongs to a different mentor", nil)
		default:
			incConfirm("error")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to confirm price", nil)
		}
		return
	}
	incConfirm("locked")
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

// GetByToken returns the stored breakdown for a token, locked or not.
func (h *Handler) GetByToken(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	raw := strings.TrimSpace(chi.URLParam(r, "token"))
	token, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid breakdown token", nil)
		return
	}
	if cached, ok := h.Cache.Get(r.Context(), token.String()); ok {
		common.JSON(w, http.StatusOK, map[string]any{"data": cached})
		return
	}
	resp, err := h.Engine.GetBreakdownByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "breakdown not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load breakdown", nil)
		return
	}
	h.Cache.Set(r.Context(), resp)
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

// ToPricingRequest parses and validates the wire payload into a pricing
// request.
func ToPricingRequest(payload CalculatePayload) (pricing.Request, error) {
	mentorID, err := uuid.Parse(strings.TrimSpace(payload.MentorID))
	if err != nil {
		return pricing.Request{}, errors.New("invalid mentor id")
	}
	req := pricing.Request{
		MentorID:     mentorID,
		SlotMinutes:  payload.SlotMinutes,
		RegionCode:   strings.TrimSpace(payload.RegionCode),
		UseAgenticAI: payload.UseAgenticAI,
		PromoCode:    strings.TrimSpace(payload.PromoCode),
	}
	if payload.UserID != nil && strings.TrimSpace(*payload.UserID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*payload.UserID))
		if err != nil {
			return pricing.Request{}, errors.New("invalid user id")
		}
		req.UserID = &parsed
	}
	if payload.SkillID != nil && strings.TrimSpace(*payload.SkillID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*payload.SkillID))
		if err != nil {
			return pricing.Request{}, errors.New("invalid skill id")
		}
		req.SkillID = &parsed
	}
	if payload.SessionDate != nil && strings.TrimSpace(*payload.SessionDate) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*payload.SessionDate))
		if err != nil {
			parsed, err = time.Parse("2006-01-02", strings.TrimSpace(*payload.SessionDate))
			if err != nil {
				return pricing.Request{}, errors.New("invalid session date")
			}
		}
		req.SessionDate = parsed
	}
	if trimmed := strings.TrimSpace(payload.CreditsToApply); trimmed != "" {
		credits, err := decimal.NewFromString(trimmed)
		if err != nil {
			return pricing.Request{}, errors.New("invalid credits amount")
		}
		if credits.IsNegative() {
			return pricing.Request{}, errors.New("credits must not be negative")
		}
		req.CreditsToApply = credits
	}
	return req, nil
}

func incCalc(result string) {
	if obs.QuoteCalcTotal != nil {
		obs.QuoteCalcTotal.WithLabelValues(result).Inc()
	}
}

func incConfirm(result string) {
	if obs.QuoteConfirmTotal != nil {
		obs.QuoteConfirmTotal.WithLabelValues(result).Inc()
	}
}
