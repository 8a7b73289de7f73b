package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrMentorRequired is returned when a request omits the mentor.
	ErrMentorRequired = errors.New("pricing: mentor id is required")
	// ErrInvalidSlot is returned for a non-positive slot duration.
	ErrInvalidSlot = errors.New("pricing: slot minutes must be positive")
)

var (
	hundred = decimal.NewFromInt(100)
	ten     = decimal.NewFromInt(10)
	one     = decimal.NewFromInt(1)
)

// Request carries everything the caller controls about a quote.
type Request struct {
	MentorID       uuid.UUID
	UserID         *uuid.UUID
	SlotMinutes    int
	RegionCode     string
	SkillID        *uuid.UUID
	SessionDate    time.Time
	UseAgenticAI   bool
	CreditsToApply decimal.Decimal
	PromoCode      string
}

// Validate rejects malformed requests before any pipeline stage runs.
func (r Request) Validate() error {
	if r.MentorID == uuid.Nil {
		return ErrMentorRequired
	}
	if r.SlotMinutes <= 0 {
		return ErrInvalidSlot
	}
	return nil
}

// Promo is a resolved, applicable promotion. A nil Promo on the snapshot
// means the code (if any) did not resolve and is skipped silently.
type Promo struct {
	Code     string
	Discount Discount
}

// Snapshot holds every configuration value the pipeline consumes, resolved
// as of the session date. Calculate does no I/O: the same request and
// snapshot always produce the same breakdown.
type Snapshot struct {
	MentorRate          decimal.Decimal
	MentorRateDefaulted bool
	RegionalMultiplier  decimal.Decimal
	SurgeMultiplier     decimal.Decimal
	Promo               *Promo
	CommunityTag        string
	CommunityPercent    decimal.Decimal
	CommissionPercent   decimal.Decimal
	TaxRate             decimal.Decimal
	AIFee               decimal.Decimal
	Currency            string
}

// Stage records one pipeline step for the audit trail. Amount is the running
// value after the stage executed.
type Stage struct {
	Name   string          `json:"name"`
	Detail string          `json:"detail"`
	Amount decimal.Decimal `json:"amount"`
}

// Breakdown is the complete result of the pipeline.
type Breakdown struct {
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
	Commission             decimal.Decimal `json:"platformCommission"`
	Tax                    decimal.Decimal `json:"tax"`
	AIFee                  decimal.Decimal `json:"agenticAiFee"`
	CreditsApplied         decimal.Decimal `json:"creditsApplied"`
	FinalPrice             decimal.Decimal `json:"finalPrice"`
	MentorPayout           decimal.Decimal `json:"mentorPayout"`
	Currency               string          `json:"currency"`
	Stages                 []Stage         `json:"stages"`
}

// Explanations renders the stage trail as human-readable strings.
func (b Breakdown) Explanations() []string {
	out := make([]string, 0, len(b.Stages))
	for _, s := range b.Stages {
		out = append(out, fmt.Sprintf("%s: %s = %s", s.Name, s.Detail, s.Amount.StringFixed(2)))
	}
	return out
}

// Calculate runs the fixed-order pipeline over the request and resolved
// snapshot. The request must already be validated. Stage order is load
// bearing: discounts apply before charm rounding, commission and tax are
// computed on the charm subtotal.
func Calculate(req Request, snap Snapshot) Breakdown {
	b := Breakdown{
		MentorBaseRate:     snap.MentorRate,
		SlotMinutes:        req.SlotMinutes,
		RegionalMultiplier: orOne(snap.RegionalMultiplier),
		SurgeMultiplier:    one,
		Currency:           snap.Currency,
	}

	rateDetail := fmt.Sprintf("hourly rate %s", snap.MentorRate.StringFixed(2))
	if snap.MentorRateDefaulted {
		rateDetail += " (platform default)"
	}
	b.stage("mentor_rate", rateDetail, snap.MentorRate)

	base := snap.MentorRate.
		Mul(decimal.NewFromInt(int64(req.SlotMinutes))).
		Div(decimal.NewFromInt(60)).
		Round(2)
	b.stage("base_price", fmt.Sprintf("%d minutes at hourly rate", req.SlotMinutes), base)

	base = base.Mul(b.RegionalMultiplier)
	b.stage("regional_multiplier", fmt.Sprintf("x%s for region %s", b.RegionalMultiplier.String(), orDash(req.RegionCode)), base)

	if req.SkillID != nil {
		b.SurgeMultiplier = orOne(snap.SurgeMultiplier)
		base = base.Mul(b.SurgeMultiplier)
		b.stage("surge_multiplier", fmt.Sprintf("x%s for skill demand", b.SurgeMultiplier.String()), base)
	}
	b.BasePrice = base.Round(2)

	running := b.BasePrice
	if req.PromoCode != "" {
		if snap.Promo != nil && !snap.Promo.Discount.IsZero() {
			var off decimal.Decimal
			running, off = snap.Promo.Discount.Apply(running)
			b.PromoCode = snap.Promo.Code
			b.PromoDiscount = off
			b.stage("promo_discount", fmt.Sprintf("code %s, %s", snap.Promo.Code, snap.Promo.Discount.Describe()), running)
		} else {
			b.stage("promo_discount", fmt.Sprintf("code %s not applicable, skipped", req.PromoCode), running)
		}
	}

	if snap.CommunityPercent.IsPositive() {
		var off decimal.Decimal
		running, off = Percentage(snap.CommunityPercent).Apply(running)
		b.CommunityDiscount = off
		b.stage("community_discount", fmt.Sprintf("%s%% off for %s", snap.CommunityPercent.String(), snap.CommunityTag), running)
	}

	b.SubtotalBeforeRounding = running.Round(2)
	b.Subtotal = charm(running)
	b.stage("charm_rounding", fmt.Sprintf("%s rounded to nearest 10 minus 1", b.SubtotalBeforeRounding.StringFixed(2)), b.Subtotal)

	b.Commission = b.Subtotal.Mul(snap.CommissionPercent).Div(hundred).Round(2)
	b.stage("platform_commission", fmt.Sprintf("%s%% of subtotal", snap.CommissionPercent.String()), b.Commission)

	b.Tax = b.Subtotal.Mul(snap.TaxRate).Round(2)
	b.stage("tax", fmt.Sprintf("rate %s on subtotal", snap.TaxRate.String()), b.Tax)

	if req.UseAgenticAI {
		b.AIFee = snap.AIFee.Round(2)
		b.stage("agentic_ai_fee", "flat assistant fee", b.AIFee)
	} else {
		b.AIFee = decimal.Zero
	}

	payable := b.Subtotal.Add(b.Tax).Add(b.AIFee)
	credits := req.CreditsToApply
	if credits.IsNegative() {
		credits = decimal.Zero
	}
	if credits.GreaterThan(payable) {
		credits = payable
	}
	b.CreditsApplied = credits.Round(2)
	if !b.CreditsApplied.IsZero() {
		b.stage("credits", fmt.Sprintf("%s credits applied", b.CreditsApplied.StringFixed(2)), payable.Sub(b.CreditsApplied))
	}

	b.FinalPrice = payable.Sub(b.CreditsApplied)
	if b.FinalPrice.IsNegative() {
		b.FinalPrice = decimal.Zero
	}
	b.stage("final_price", "subtotal + tax + fees - credits", b.FinalPrice)

	b.MentorPayout = b.Subtotal.Sub(b.Commission)
	b.stage("mentor_payout", "subtotal - platform commission", b.MentorPayout)

	b.PromoDiscount = b.PromoDiscount.Round(2)
	b.CommunityDiscount = b.CommunityDiscount.Round(2)
	return b
}

func (b *Breakdown) stage(name, detail string, amount decimal.Decimal) {
	b.Stages = append(b.Stages, Stage{Name: name, Detail: detail, Amount: amount.Round(2)})
}

// charm rounds to the nearest multiple of ten (half up) and subtracts one,
// so every positive subtotal ends in digit 9. Values that round to zero stay
// at zero rather than going negative.
func charm(v decimal.Decimal) decimal.Decimal {
	rounded := v.Div(ten).Round(0).Mul(ten)
	if !rounded.IsPositive() {
		return decimal.Zero
	}
	return rounded.Sub(one)
}

func orOne(v decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return one
	}
	return v
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
