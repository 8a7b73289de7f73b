package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubStore struct {
	entries []Entry
	listed  ListFilter
}

func (s *stubStore) InsertEntry(_ context.Context, e Entry) (Entry, error) {
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *stubStore) ListEntries(_ context.Context, f ListFilter) ([]Entry, error) {
	s.listed = f
	return s.entries, nil
}

func TestRecordPersistsChange(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true}

	userID := "admin-1"
	err := svc.Record(context.Background(), Actor{Kind: ActorKindUser, UserID: &userID}, Change{
		Action:     "promo.create",
		EntityType: "promo_rule",
		EntityID:   "WELCOME10",
		After:      map[string]any{"code": "WELCOME10", "value": "10"},
		Reason:     "launch campaign",
	})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	entry := store.entries[0]
	require.Equal(t, "promo.create", entry.Action)
	require.Equal(t, "promo_rule", entry.EntityType)
	require.Equal(t, "user", entry.ActorKind)
	require.Equal(t, "admin-1", *entry.ActorUserID)
	require.Nil(t, entry.BeforeState)

	var after map[string]any
	require.NoError(t, json.Unmarshal(entry.AfterState, &after))
	require.Equal(t, "WELCOME10", after["code"])
}

func TestRecordDisabledIsNoop(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: false}

	err := svc.Record(context.Background(), Actor{Kind: ActorKindSystem}, Change{
		Action:     "sweep",
		EntityType: "price_breakdown",
	})
	require.NoError(t, err)
	require.Empty(t, store.entries)
}

func TestRecordValidation(t *testing.T) {
	svc := Service{Store: &stubStore{}, Enabled: true}

	err := svc.Record(context.Background(), Actor{}, Change{EntityType: "promo_rule"})
	require.Error(t, err)

	err = svc.Record(context.Background(), Actor{}, Change{Action: "promo.create"})
	require.Error(t, err)
}

func TestRecordNormalizesActorKind(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true}

	err := svc.Record(context.Background(), Actor{Kind: ActorKind("bogus")}, Change{
		Action:     "rate.update",
		EntityType: "mentor_rate",
	})
	require.NoError(t, err)
	require.Equal(t, "anonymous", store.entries[0].ActorKind)
}
