package adminpricing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-mentor/internal/audit"
	"github.com/noah-isme/backend-mentor/internal/pricing"
	"github.com/noah-isme/backend-mentor/internal/pricingcfg"
)

type stubConfigStore struct {
	promos       map[string]pricingcfg.PromoRule
	surges       map[uuid.UUID]pricingcfg.SurgeRule
	mentorRates  []pricingcfg.MentorRate
	multipliers  []pricingcfg.RegionalMultiplier
	communities  []pricingcfg.CommunityDiscount
	commissions  []pricingcfg.CommissionPolicy
	failNextWith error
}

func newStubConfigStore() *stubConfigStore {
	return &stubConfigStore{
		promos: make(map[string]pricingcfg.PromoRule),
		surges: make(map[uuid.UUID]pricingcfg.SurgeRule),
	}
}

func (s *stubConfigStore) CreateMentorRate(_ context.Context, rec pricingcfg.MentorRate) (pricingcfg.MentorRate, error) {
	if s.failNextWith != nil {
		return pricingcfg.MentorRate{}, s.failNextWith
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	s.mentorRates = append(s.mentorRates, rec)
	return rec, nil
}

func (s *stubConfigStore) ListMentorRates(_ context.Context, mentorID *uuid.UUID, _ Page) ([]pricingcfg.MentorRate, error) {
	if mentorID == nil {
		return s.mentorRates, nil
	}
	var out []pricingcfg.MentorRate
	for _, rec := range s.mentorRates {
		if rec.MentorID == *mentorID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubConfigStore) CreateRegionalMultiplier(_ context.Context, rec pricingcfg.RegionalMultiplier) (pricingcfg.RegionalMultiplier, error) {
	rec.ID = uuid.New()
	s.multipliers = append(s.multipliers, rec)
	return rec, nil
}

func (s *stubConfigStore) ListRegionalMultipliers(_ context.Context, _ string, _ Page) ([]pricingcfg.RegionalMultiplier, error) {
	return s.multipliers, nil
}

func (s *stubConfigStore) CreateSurgeRule(_ context.Context, rec pricingcfg.SurgeRule) (pricingcfg.SurgeRule, error) {
	rec.ID = uuid.New()
	s.surges[rec.ID] = rec
	return rec, nil
}

func (s *stubConfigStore) ListSurgeRules(_ context.Context, _ Page) ([]pricingcfg.SurgeRule, error) {
	out := make([]pricingcfg.SurgeRule, 0, len(s.surges))
	for _, rec := range s.surges {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubConfigStore) SetSurgeRuleActive(_ context.Context, id uuid.UUID, active bool) (pricingcfg.SurgeRule, error) {
	rec, ok := s.surges[id]
	if !ok {
		return pricingcfg.SurgeRule{}, ErrNotFound
	}
	rec.Active = active
	s.surges[id] = rec
	return rec, nil
}

func (s *stubConfigStore) CreatePromoRule(_ context.Context, rec pricingcfg.PromoRule) (pricingcfg.PromoRule, error) {
	if _, exists := s.promos[rec.Code]; exists {
		return pricingcfg.PromoRule{}, &pgconn.PgError{Code: "23505"}
	}
	rec.ID = uuid.New()
	s.promos[rec.Code] = rec
	return rec, nil
}

func (s *stubConfigStore) UpdatePromoRule(_ context.Context, rec pricingcfg.PromoRule) (pricingcfg.PromoRule, error) {
	existing, ok := s.promos[rec.Code]
	if !ok {
		return pricingcfg.PromoRule{}, ErrNotFound
	}
	rec.ID = existing.ID
	s.promos[rec.Code] = rec
	return rec, nil
}

func (s *stubConfigStore) GetPromoRule(_ context.Context, code string) (pricingcfg.PromoRule, error) {
	rec, ok := s.promos[code]
	if !ok {
		return pricingcfg.PromoRule{}, ErrNotFound
	}
	return rec, nil
}

func (s *stubConfigStore) ListPromoRules(_ context.Context, _ Page) ([]pricingcfg.PromoRule, error) {
	out := make([]pricingcfg.PromoRule, 0, len(s.promos))
	for _, rec := range s.promos {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubConfigStore) CreateCommunityDiscount(_ context.Context, rec pricingcfg.CommunityDiscount) (pricingcfg.CommunityDiscount, error) {
	rec.ID = uuid.New()
	s.communities = append(s.communities, rec)
	return rec, nil
}

func (s *stubConfigStore) ListCommunityDiscounts(_ context.Context, _ Page) ([]pricingcfg.CommunityDiscount, error) {
	return s.communities, nil
}

func (s *stubConfigStore) CreateCommissionPolicy(_ context.Context, rec pricingcfg.CommissionPolicy) (pricingcfg.CommissionPolicy, error) {
	rec.ID = uuid.New()
	s.commissions = append(s.commissions, rec)
	return rec, nil
}

func (s *stubConfigStore) ListCommissionPolicies(_ context.Context, _ Page) ([]pricingcfg.CommissionPolicy, error) {
	return s.commissions, nil
}

type stubAuditStore struct {
	entries []audit.Entry
}

func (s *stubAuditStore) InsertEntry(_ context.Context, e audit.Entry) (audit.Entry, error) {
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *stubAuditStore) ListEntries(_ context.Context, _ audit.ListFilter) ([]audit.Entry, error) {
	return s.entries, nil
}

type stubResolver struct {
	snap pricing.Snapshot
}

func (s stubResolver) Snapshot(_ context.Context, _ pricingcfg.Query) (pricing.Snapshot, error) {
	return s.snap, nil
}

func testHandler() (*Handler, *stubConfigStore, *stubAuditStore) {
	store := newStubConfigStore()
	auditStore := &stubAuditStore{}
	h := &Handler{
		Store:    store,
		Audit:    audit.Service{Store: auditStore, Enabled: true},
		Config: stubResolver{snap: pricing.Snapshot{
			MentorRate:        decimal.RequireFromString("500"),
			CommissionPercent: decimal.RequireFromString("15"),
			TaxRate:           decimal.RequireFromString("0.18"),
			AIFee:             decimal.RequireFromString("49"),
			Currency:          "INR",
		}},
		Validate: validator.New(),
		Log:      zerolog.Nop(),
	}
	return h, store, auditStore
}

func adminRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/admin/pricing/promos", h.CreatePromo)
	r.Put("/admin/pricing/promos/{code}", h.UpdatePromo)
	r.Get("/admin/pricing/promos", h.ListPromos)
	r.Post("/admin/pricing/mentor-rates", h.CreateMentorRate)
	r.Post("/admin/pricing/surge-rules", h.CreateSurgeRule)
	r.Patch("/admin/pricing/surge-rules/{id}", h.ToggleSurgeRule)
	r.Post("/admin/pricing/commission-policies", h.CreateCommissionPolicy)
	r.Post("/admin/pricing/simulate", h.Simulate)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreatePromoAndDuplicateConflict(t *testing.T) {
	h, store, auditStore := testHandler()
	r := adminRouter(h)

	payload := map[string]any{
		"code":   "WELCOME10",
		"kind":   "PERCENTAGE",
		"value":  "10",
		"reason": "launch",
	}
	rec := doJSON(t, r, http.MethodPost, "/admin/pricing/promos", payload)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, store.promos, "WELCOME10")

	require.Len(t, auditStore.entries, 1)
	require.Equal(t, "promo.create", auditStore.entries[0].Action)
	require.Equal(t, "launch", *auditStore.entries[0].Reason)

	rec = doJSON(t, r, http.MethodPost, "/admin/pricing/promos", payload)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreatePromoValidation(t *testing.T) {
	h, _, _ := testHandler()
	r := adminRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/admin/pricing/promos", map[string]any{
		"code": "BAD", "kind": "GIFT", "value": "10",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/admin/pricing/promos", map[string]any{
		"code": "BAD", "kind": "PERCENTAGE", "value": "150",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePromoRecordsBeforeState(t *testing.T) {
	h, _, auditStore := testHandler()
	r := adminRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/admin/pricing/promos", map[string]any{
		"code": "SAVE5", "kind": "FIXED_AMOUNT", "value": "5",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, r, http.MethodPut, "/admin/pricing/promos/SAVE5", map[string]any{
		"code": "SAVE5", "kind": "FIXED_AMOUNT", "value": "7",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, auditStore.entries, 2)
	update := auditStore.entries[1]
	require.Equal(t, "promo.update", update.Action)
	require.NotNil(t, update.BeforeState)
	require.NotNil(t, update.AfterState)

	rec = doJSON(t, r, http.MethodPut, "/admin/pricing/promos/MISSING", map[string]any{
		"code": "MISSING", "kind": "FIXED_AMOUNT", "value": "7",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMentorRateRequiresOverrideReason(t *testing.T) {
	h, _, _ := testHandler()
	r := adminRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/admin/pricing/mentor-rates", map[string]any{
		"mentorId":      uuid.NewString(),
		"hourlyRate":    "750",
		"adminOverride": true,
		"effectiveFrom": time.Now().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/admin/pricing/mentor-rates", map[string]any{
		"mentorId":       uuid.NewString(),
		"hourlyRate":     "750",
		"adminOverride":  true,
		"overrideReason": "top mentor pricing review",
		"effectiveFrom":  time.Now().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestToggleSurgeRule(t *testing.T) {
	h, store, _ := testHandler()
	r := adminRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/admin/pricing/surge-rules", map[string]any{
		"skillId":    uuid.NewString(),
		"multiplier": "1.5",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var id uuid.UUID
	for rid := range store.surges {
		id = rid
	}
	rec = doJSON(t, r, http.MethodPatch, "/admin/pricing/surge-rules/"+id.String(), map[string]any{
		"active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, store.surges[id].Active)

	rec = doJSON(t, r, http.MethodPatch, "/admin/pricing/surge-rules/"+uuid.NewString(), map[string]any{
		"active": true,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimulateDoesNotPersist(t *testing.T) {
	h, store, auditStore := testHandler()
	r := adminRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/admin/pricing/simulate", map[string]any{
		"mentorId":    uuid.NewString(),
		"slotMinutes": 60,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Simulated    bool            `json:"simulated"`
			Explanations []string        `json:"explanations"`
			Breakdown    json.RawMessage `json:"breakdown"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Data.Simulated)
	require.NotEmpty(t, envelope.Data.Explanations)

	require.Empty(t, auditStore.entries)
	require.Empty(t, store.mentorRates)
}
