package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindUser represents an authenticated administrator.
	ActorKindUser ActorKind = "user"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous represents unauthenticated actors.
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID *string
}

// Entry is one recorded configuration change.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	ActorKind   string          `json:"actorKind"`
	ActorUserID *string         `json:"actorUserId,omitempty"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entityType"`
	EntityID    *string         `json:"entityId,omitempty"`
	BeforeState json.RawMessage `json:"beforeState,omitempty"`
	AfterState  json.RawMessage `json:"afterState,omitempty"`
	Reason      *string         `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ListFilter narrows List results.
type ListFilter struct {
	EntityType string
	Action     string
	Limit      int32
	Offset     int32
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	ListEntries(ctx context.Context, f ListFilter) ([]Entry, error)
}

// Change captures the mutation being audited. Before and After are marshalled
// to JSON; a nil Before records a creation, a nil After a deletion.
type Change struct {
	Action     string
	EntityType string
	EntityID   string
	Before     any
	After      any
	Reason     string
}

// Service persists audit entries for configuration mutations.
type Service struct {
	Store   Store
	Enabled bool
}

// Record persists an audit entry when auditing is enabled. Marshal failures
// are returned rather than silently dropping state.
func (s Service) Record(ctx context.Context, actor Actor, ch Change) error {
	if !s.Enabled {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	action := strings.TrimSpace(ch.Action)
	if action == "" {
		return errors.New("audit: action is required")
	}
	entityType := strings.TrimSpace(ch.EntityType)
	if entityType == "" {
		return errors.New("audit: entity type is required")
	}

	before, err := marshalState(ch.Before)
	if err != nil {
		return err
	}
	after, err := marshalState(ch.After)
	if err != nil {
		return err
	}

	entry := Entry{
		ActorKind:   string(normalizeActorKind(actor.Kind)),
		ActorUserID: sanitizeString(actor.UserID),
		Action:      action,
		EntityType:  entityType,
		EntityID:    pointerOf(ch.EntityID),
		BeforeState: before,
		AfterState:  after,
		Reason:      pointerOf(ch.Reason),
	}
	_, err = s.Store.InsertEntry(ctx, entry)
	return err
}

func marshalState(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindUser, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func sanitizeString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func pointerOf(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
