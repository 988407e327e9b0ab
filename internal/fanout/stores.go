// Package fanout turns a domain event into push deliveries: it resolves the
// recipients, looks up their delivery tokens, renders the payload and
// dispatches it through a push transport.
package fanout

import (
	"context"
	"errors"
	"time"

	"group-notifier/internal/models"
)

// ErrTransportOutage is returned by Dispatch when the transport rejected a
// whole round of sends. It is the only dispatch error a caller sees.
var ErrTransportOutage = errors.New("push transport outage")

// IdentityStore reads identity records. Missing records yield models.ErrNotFound.
type IdentityStore interface {
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
}

// GroupStore reads group records. Missing records yield models.ErrNotFound.
type GroupStore interface {
	GetGroup(ctx context.Context, id string) (*models.Group, error)
}

// TokenInvalidator clears a delivery token from every identity holding it and
// reports how many records changed. Clearing an absent token is not an error.
type TokenInvalidator interface {
	InvalidateToken(ctx context.Context, token string) (int64, error)
}

// Deduplicator claims event keys so redelivered events are processed once.
type Deduplicator interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Transport delivers one payload to a batch of tokens. A non-nil error means
// the call failed as a whole and no per-token results are meaningful.
type Transport interface {
	Name() string
	MaxBatchSize() int
	Send(ctx context.Context, tokens []string, payload models.NotificationPayload) ([]models.TokenResult, error)
}

// EventValidator checks an event against its per-type schema.
type EventValidator interface {
	Validate(event models.Event) error
}

// EventRecorder receives per-event telemetry.
type EventRecorder interface {
	RecordEventProcessed(ctx context.Context, eventType, result string)
	RecordEventDuration(ctx context.Context, eventType string, duration time.Duration)
	RecordRecipients(ctx context.Context, eventType string, n int)
}
