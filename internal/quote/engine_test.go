package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-mentor/internal/pricing"
	"github.com/noah-isme/backend-mentor/internal/pricingcfg"
)

type stubConfig struct {
	snap    pricing.Snapshot
	err     error
	lastQ   pricingcfg.Query
	queries int
}

func (s *stubConfig) Snapshot(_ context.Context, q pricingcfg.Query) (pricing.Snapshot, error) {
	s.lastQ = q
	s.queries++
	if s.err != nil {
		return pricing.Snapshot{}, s.err
	}
	return s.snap, nil
}

type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]Record)}
}

func (m *memStore) Insert(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	m.records[rec.Token] = rec
	return rec, nil
}

func (m *memStore) GetByToken(_ context.Context, token uuid.UUID) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[token]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) Lock(_ context.Context, token, sessionID uuid.UUID) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[token]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Locked {
		return Record{}, ErrAlreadyLocked
	}
	now := time.Now()
	rec.Locked = true
	rec.SessionID = &sessionID
	rec.ConfirmedAt = &now
	m.records[token] = rec
	return rec, nil
}

func testSnapshot() pricing.Snapshot {
	return pricing.Snapshot{
		MentorRate:        decimal.RequireFromString("1000"),
		CommissionPercent: decimal.RequireFromString("15"),
		TaxRate:           decimal.RequireFromString("0.18"),
		AIFee:             decimal.RequireFromString("49"),
		Currency:          "INR",
	}
}

func testEngine(cfg ConfigSource, store Store) *Engine {
	return &Engine{Config: cfg, Store: store, Now: func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}}
}

func TestCalculatePricePersistsQuote(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	store := newMemStore()
	eng := testEngine(cfg, store)

	mentor := uuid.New()
	resp, err := eng.CalculatePrice(context.Background(), pricing.Request{
		MentorID:    mentor,
		SlotMinutes: 60,
		RegionCode:  "IN",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.BreakdownToken)
	require.False(t, resp.Locked)
	require.Equal(t, "999", resp.Subtotal.String())
	require.NotEmpty(t, resp.Explanations)

	token, err := uuid.Parse(resp.BreakdownToken)
	require.NoError(t, err)
	stored, err := store.GetByToken(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, mentor, stored.MentorID)
	require.False(t, stored.Locked)
}

func TestCalculatePriceResolvesAsOfSessionDate(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	eng := testEngine(cfg, newMemStore())

	sessionDate := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := eng.CalculatePrice(context.Background(), pricing.Request{
		MentorID:    uuid.New(),
		SlotMinutes: 30,
		SessionDate: sessionDate,
	})
	require.NoError(t, err)
	require.True(t, cfg.lastQ.AsOf.Equal(sessionDate))

	_, err = eng.CalculatePrice(context.Background(), pricing.Request{
		MentorID:    uuid.New(),
		SlotMinutes: 30,
	})
	require.NoError(t, err)
	require.True(t, cfg.lastQ.AsOf.Equal(eng.Now()), "zero session date falls back to now")
}

func TestCalculatePriceRejectsInvalidRequest(t *testing.T) {
	eng := testEngine(&stubConfig{snap: testSnapshot()}, newMemStore())

	_, err := eng.CalculatePrice(context.Background(), pricing.Request{SlotMinutes: 60})
	require.ErrorIs(t, err, pricing.ErrMentorRequired)

	_, err = eng.CalculatePrice(context.Background(), pricing.Request{MentorID: uuid.New()})
	require.ErrorIs(t, err, pricing.ErrInvalidSlot)
}

func TestConfirmPriceLocksOnce(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	store := newMemStore()
	eng := testEngine(cfg, store)

	mentor := uuid.New()
	quote, err := eng.CalculatePrice(context.Background(), pricing.Request{
		MentorID:    mentor,
		SlotMinutes: 60,
	})
	require.NoError(t, err)
	token := uuid.MustParse(quote.BreakdownToken)

	confirmed, err := eng.ConfirmPrice(context.Background(), token, mentor, BookingDetails{})
	require.NoError(t, err)
	require.True(t, confirmed.Locked)
	require.NotEmpty(t, confirmed.SessionID)
	require.True(t, confirmed.FinalPrice.Equal(quote.FinalPrice), "confirm must not recompute")

	_, err = eng.ConfirmPrice(context.Background(), token, mentor, BookingDetails{})
	require.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestConfirmPriceDoesNotRepriceAfterConfigChange(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	store := newMemStore()
	eng := testEngine(cfg, store)

	mentor := uuid.New()
	quote, err := eng.CalculatePrice(context.Background(), pricing.Request{
		MentorID:    mentor,
		SlotMinutes: 60,
	})
	require.NoError(t, err)

	cfg.snap.MentorRate = decimal.RequireFromString("5000")

	confirmed, err := eng.ConfirmPrice(context.Background(), uuid.MustParse(quote.BreakdownToken), mentor, BookingDetails{})
	require.NoError(t, err)
	require.True(t, confirmed.FinalPrice.Equal(quote.FinalPrice))
	require.Equal(t, 1, cfg.queries, "confirm never re-resolves configuration")
}

func TestConfirmPriceMentorMismatch(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	eng := testEngine(cfg, newMemStore())

	quote, err := eng.CalculatePrice(context.Background(), pricing.Request{
		MentorID:    uuid.New(),
		SlotMinutes: 60,
	})
	require.NoError(t, err)

	_, err = eng.ConfirmPrice(context.Background(), uuid.MustParse(quote.BreakdownToken), uuid.New(), BookingDetails{})
	require.ErrorIs(t, err, pricing.ErrMentorRequired)
}

func TestConfirmPriceUnknownToken(t *testing.T) {
	eng := testEngine(&stubConfig{snap: testSnapshot()}, newMemStore())

	_, err := eng.ConfirmPrice(context.Background(), uuid.New(), uuid.Nil, BookingDetails{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmPriceHonoursProvidedSessionID(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	eng := testEngine(cfg, newMemStore())

	mentor := uuid.New()
	quote, err := eng.CalculatePrice(context.Background(), pricing.Request{MentorID: mentor, SlotMinutes: 60})
	require.NoError(t, err)

	session := uuid.New()
	confirmed, err := eng.ConfirmPrice(context.Background(), uuid.MustParse(quote.BreakdownToken), mentor, BookingDetails{SessionID: &session})
	require.NoError(t, err)
	require.Equal(t, session.String(), confirmed.SessionID)
}

func TestConcurrentConfirmExactlyOnce(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	store := newMemStore()
	eng := testEngine(cfg, store)

	mentor := uuid.New()
	quote, err := eng.CalculatePrice(context.Background(), pricing.Request{MentorID: mentor, SlotMinutes: 60})
	require.NoError(t, err)
	token := uuid.MustParse(quote.BreakdownToken)

	const attempts = 32
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = eng.ConfirmPrice(context.Background(), token, mentor, BookingDetails{})
		}(i)
	}
	wg.Wait()

	var locked, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			locked++
		case errors.Is(err, ErrAlreadyLocked):
			conflicts++
		default:
			t.Fatalf("unexpected confirm error: %v", err)
		}
	}
	require.Equal(t, 1, locked)
	require.Equal(t, attempts-1, conflicts)
}

func TestGetBreakdownByToken(t *testing.T) {
	cfg := &stubConfig{snap: testSnapshot()}
	eng := testEngine(cfg, newMemStore())

	mentor := uuid.New()
	quote, err := eng.CalculatePrice(context.Background(), pricing.Request{MentorID: mentor, SlotMinutes: 90})
	require.NoError(t, err)
	token := uuid.MustParse(quote.BreakdownToken)

	got, err := eng.GetBreakdownByToken(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, quote, got)

	_, err = eng.ConfirmPrice(context.Background(), token, mentor, BookingDetails{})
	require.NoError(t, err)

	locked, err := eng.GetBreakdownByToken(context.Background(), token)
	require.NoError(t, err)
	require.True(t, locked.Locked)
	require.True(t, locked.FinalPrice.Equal(quote.FinalPrice))
}
