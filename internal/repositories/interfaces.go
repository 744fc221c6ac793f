package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prudhvinik1/caresync/internal/models"
)

var ErrNotFound = errors.New("not found")

// KVStore is the string key-value persistence the event log sits on.
type KVStore interface {
	// Get returns ErrNotFound when the key has never been written.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes every entry or none of them.
	SetMany(ctx context.Context, values map[string]string) error
}

type EventStore interface {
	Load(ctx context.Context) (map[models.EventType][]uint32, error)
	Append(ctx context.Context, event models.Event) error
	Clear(ctx context.Context) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetPresence(ctx context.Context, deviceID uuid.UUID) (*models.Presence, error)
}
