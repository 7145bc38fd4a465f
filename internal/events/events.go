package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tipos de evento publicados após gravações confirmadas.
const (
	TypeUserSynced        = "user.synced"
	TypeUserUpdated       = "user.updated"
	TypeUserStatusChanged = "user.status_changed"
	TypeRemoteSyncFailed  = "user.remote_sync_failed"
	TypeRefreshCompleted  = "users.refresh_completed"
)

// Event é o envelope JSON enviado à fila.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

func New(eventType, userID string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher entrega eventos a um canal externo.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopPublisher descarta eventos. Usado quando AMQP_URL não está definido.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
