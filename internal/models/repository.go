package models

import (
	"context"
	"time"
)

// Repository is the durable store of paid subscriptions.
type Repository interface {
	// InsertSubscriptionIfAbsent stores a subscription record unless one already exists for id.
	InsertSubscriptionIfAbsent(ctx context.Context, id RecipientID, at time.Time) error
	// LoadSubscriberIDs returns the ids of all paid subscribers.
	LoadSubscriberIDs(ctx context.Context) ([]RecipientID, error)

	Close() error
}
