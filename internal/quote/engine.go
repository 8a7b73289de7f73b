package quote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-mentor/internal/pricing"
	"github.com/noah-isme/backend-mentor/internal/pricingcfg"
)

// ConfigSource resolves the effective configuration snapshot a quote is
// computed against. Satisfied by pricingcfg.Resolver; tests use fakes.
type ConfigSource interface {
	Snapshot(ctx context.Context, q pricingcfg.Query) (pricing.Snapshot, error)
}

// QuoteResponse is the API shape shared by calculation and token lookup.
type QuoteResponse struct {
	BreakdownToken         string          `json:"breakdownToken"`
	MentorBaseRate         decimal.Decimal `json:"mentorBaseRate"`
	SlotMinutes            int             `json:"slotMinutes"`
	BasePrice              decimal.Decimal `json:"basePrice"`
	RegionalMultiplier     decimal.Decimal `json:"regionalMultiplier"`
	SurgeMultiplier        decimal.Decimal `json:"surgeMultiplier"`
	PromoCode              string          `json:"promoCode,omitempty"`
	PromoDiscount          decimal.Decimal `json:"promoDiscount"`
	CommunityDiscount      decimal.Decimal `json:"communityDiscount"`
	SubtotalBeforeRounding decimal.Decimal `json:"subtotalBeforeRounding"`
	Subtotal               decimal.Decimal `json:"subtotal"`
	PlatformCommission     decimal.Decimal `json:"platformCommission"`
	Tax                    decimal.Decimal `json:"tax"`
	AgenticAIFee           decimal.Decimal `json:"agenticAiFee"`
	CreditsApplied         decimal.Decimal `json:"creditsApplied"`
	FinalPrice             decimal.Decimal `json:"finalPrice"`
	MentorPayout           decimal.Decimal `json:"mentorPayout"`
	Explanations           []string        `json:"explanations"`
	Currency               string          `json:"currency"`
	Locked                 bool            `json:"locked"`
}

// BookingDetails is the confirmation context supplied by the booking flow.
type BookingDetails struct {
	SessionID *uuid.UUID `json:"sessionId,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// ConfirmResponse reports the outcome of the one-shot lock.
type ConfirmResponse struct {
	BreakdownID  string          `json:"breakdownId"`
	SessionID    string          `json:"sessionId"`
	FinalPrice   decimal.Decimal `json:"finalPrice"`
	MentorPayout decimal.Decimal `json:"mentorPayout"`
	Locked       bool            `json:"locked"`
	Message      string          `json:"message"`
}

// Engine composes the config resolver, the pure calculator, and the
// breakdown store behind the three pricing operations.
type Engine struct {
	Config ConfigSource
	Store  Store
	Now    func() time.Time
}

func (e *Engine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CalculatePrice resolves configuration as of the session date, runs the
// pipeline, and persists an unlocked breakdown under a fresh token. Every
// call persists a quote whether or not it is later confirmed.
func (e *Engine) CalculatePrice(ctx context.Context, req pricing.Request) (QuoteResponse, error) {
	if e == nil || e.Config == nil || e.Store == nil {
		return QuoteResponse{}, errors.New("quote: engine not configured")
	}
	if err := req.Validate(); err != nil {
		return QuoteResponse{}, err
	}
	asOf := req.SessionDate
	if asOf.IsZero() {
		asOf = e.now()
	}
	snap, err := e.Config.Snapshot(ctx, pricingcfg.Query{
		MentorID:   req.MentorID,
		UserID:     req.UserID,
		RegionCode: req.RegionCode,
		SkillID:    req.SkillID,
		PromoCode:  req.PromoCode,
		AsOf:       asOf,
	})
	if err != nil {
		return QuoteResponse{}, err
	}
	breakdown := pricing.Calculate(req, snap)
	rec, err := e.Store.Insert(ctx, Record{
		Token:     uuid.New(),
		MentorID:  req.MentorID,
		UserID:    req.UserID,
		Breakdown: breakdown,
	})
	if err != nil {
		return QuoteResponse{}, err
	}
	return toResponse(rec), nil
}

// ConfirmPrice locks the breakdown exactly once, binding the session. It
// never recomputes: the locked price is whatever CalculatePrice produced,
// even if configuration changed since.
func (e *Engine) ConfirmPrice(ctx context.Context, token uuid.UUID, mentorID uuid.UUID, details BookingDetails) (ConfirmResponse, error) {
	if e == nil || e.Store == nil {
		return ConfirmResponse{}, errors.New("quote: engine not configured")
	}
	if mentorID != uuid.Nil {
		existing, err := e.Store.GetByToken(ctx, token)
		if err != nil {
			return ConfirmResponse{}, err
		}
		if existing.MentorID != mentorID {
			return ConfirmResponse{}, pricing.ErrMentorRequired
		}
	}
	sessionID := uuid.New()
	if details.SessionID != nil && *details.SessionID != uuid.Nil {
		sessionID = *details.SessionID
	}
	rec, err := e.Store.Lock(ctx, token, sessionID)
	if err != nil {
		return ConfirmResponse{}, err
	}
	return ConfirmResponse{
		BreakdownID:  rec.ID.String(),
		SessionID:    sessionID.String(),
		FinalPrice:   rec.FinalPrice,
		MentorPayout: rec.MentorPayout,
		Locked:       rec.Locked,
		Message:      "price locked for session",
	}, nil
}

// GetBreakdownByToken returns the stored quote; output is identical whether
// the breakdown is locked or not.
func (e *Engine) GetBreakdownByToken(ctx context.Context, token uuid.UUID) (QuoteResponse, error) {
	if e == nil || e.Store == nil {
		return QuoteResponse{}, errors.New("quote: engine not configured")
	}
	rec, err := e.Store.GetByToken(ctx, token)
	if err != nil {
		return QuoteResponse{}, err
	}
	return toResponse(rec), nil
}

func toResponse(rec Record) QuoteResponse {
	return QuoteResponse{
		BreakdownToken:         rec.Token.String(),
		MentorBaseRate:         rec.MentorBaseRate,
		SlotMinutes:            rec.SlotMinutes,
		BasePrice:              rec.BasePrice,
		RegionalMultiplier:     rec.RegionalMultiplier,
		SurgeMultiplier:        rec.SurgeMultiplier,
		PromoCode:              rec.PromoCode,
		PromoDiscount:          rec.PromoDiscount,
		CommunityDiscount:      rec.CommunityDiscount,
		SubtotalBeforeRounding: rec.SubtotalBeforeRounding,
		Subtotal:               rec.Subtotal,
		PlatformCommission:     rec.Commission,
		Tax:                    rec.Tax,
		AgenticAIFee:           rec.AIFee,
		CreditsApplied:         rec.CreditsApplied,
		FinalPrice:             rec.FinalPrice,
		MentorPayout:           rec.MentorPayout,
		Explanations:           rec.Explanations(),
		Currency:               rec.Currency,
		Locked:                 rec.Locked,
	}
}
