package repository

import (
	"context"
	"errors"

	"github.com/quocanhngo/memento/internal/model"
)

var (
	// ErrNotFound is returned when no subscriber has the given endpoint
	ErrNotFound = errors.New("subscriber not found")

	// ErrStoreUnavailable wraps every failure of the backing storage
	ErrStoreUnavailable = errors.New("subscription store unavailable")
)

// Batch is the scheduler's per-tick commit: successful sends to mark and
// gone endpoints to drop. MarkSent maps endpoint to local date key.
type Batch struct {
	MarkSent map[string]string
	Remove   []string
}

// Empty reports whether the batch changes nothing
func (b Batch) Empty() bool {
	return len(b.MarkSent) == 0 && len(b.Remove) == 0
}

// SubscriberStore is the single source of truth for subscribers. Every
// mutation is durable before it returns.
type SubscriberStore interface {
	// Upsert creates sub or refreshes the credentials and timezone of an
	// existing record, keeping its preferences, last sent date and creation time.
	Upsert(ctx context.Context, sub *model.Subscriber) (*model.Subscriber, error)
	Find(ctx context.Context, endpoint string) (*model.Subscriber, error)
	// Remove is idempotent
	Remove(ctx context.Context, endpoint string) error
	// ListAll returns a snapshot copy
	ListAll(ctx context.Context) ([]model.Subscriber, error)
	// UpdatePreferences merges patch into an existing record and never creates one
	UpdatePreferences(ctx context.Context, endpoint string, patch model.PreferencesPatch) (*model.Subscriber, error)
	// ApplyBatch commits a tick in one write. Marks for endpoints that no
	// longer exist are skipped.
	ApplyBatch(ctx context.Context, batch Batch) error
}

// refresh applies an upsert onto an existing record
func refresh(existing *model.Subscriber, incoming *model.Subscriber) {
	existing.Credentials = incoming.Credentials
	if incoming.Timezone != "" {
		existing.Timezone = incoming.Timezone
	}
}
