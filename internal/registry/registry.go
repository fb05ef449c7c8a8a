// Package registry keeps the subscription state shared by the bot commands
// and the notification dispatcher.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/core-coin/mintviewer/internal/gifts"
	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/pkg/logger"
)

// Registry holds the paid, active and filter sets. Only the paid set is
// persisted; active opt-ins and filters live for the process lifetime.
type Registry struct {
	logger  *logger.Logger
	repo    models.Repository
	catalog *gifts.Catalog
	now     func() time.Time

	mu      sync.RWMutex
	paid    map[models.RecipientID]struct{}
	active  map[models.RecipientID]struct{}
	filters map[models.RecipientID][]string
}

// New creates an empty registry. Call Load to hydrate the paid set.
func New(repo models.Repository, catalog *gifts.Catalog, logger *logger.Logger) *Registry {
	return &Registry{
		logger:  logger,
		repo:    repo,
		catalog: catalog,
		now:     time.Now,
		paid:    make(map[models.RecipientID]struct{}),
		active:  make(map[models.RecipientID]struct{}),
		filters: make(map[models.RecipientID][]string),
	}
}

// Load reads all paid subscribers from the store.
func (r *Registry) Load(ctx context.Context) error {
	ids, err := r.repo.LoadSubscriberIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load paid subscriptions: %w", err)
	}

	r.mu.Lock()
	for _, id := range ids {
		r.paid[id] = struct{}{}
	}
	r.mu.Unlock()

	r.logger.Infow("Loaded paid subscriptions", "count", len(ids), "chat_ids", ids)
	return nil
}

// Catalog returns the gift catalog filters are validated against.
func (r *Registry) Catalog() *gifts.Catalog {
	return r.catalog
}

// MarkPaid records a paid subscription. Repeated calls keep the first record.
func (r *Registry) MarkPaid(ctx context.Context, id models.RecipientID) error {
	if err := r.repo.InsertSubscriptionIfAbsent(ctx, id, r.now()); err != nil {
		return err
	}

	r.mu.Lock()
	r.paid[id] = struct{}{}
	r.mu.Unlock()

	r.logger.Infow("Subscription added", "chat_id", id)
	return nil
}

func (r *Registry) IsPaid(id models.RecipientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.paid[id]
	return ok
}

// Activate opts id in to notifications. Whether id has paid is checked by
// the caller.
func (r *Registry) Activate(id models.RecipientID) {
	r.mu.Lock()
	r.active[id] = struct{}{}
	r.mu.Unlock()
}

// Deactivate opts id out and reports whether it was active.
func (r *Registry) Deactivate(id models.RecipientID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[id]; !ok {
		return false
	}
	delete(r.active, id)
	return true
}

func (r *Registry) IsActive(id models.RecipientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[id]
	return ok
}

// ActiveSnapshot returns a copy of the active set, sorted by id.
func (r *Registry) ActiveSnapshot() []models.RecipientID {
	r.mu.RLock()
	ids := make([]models.RecipientID, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetFilter replaces the gift filter of id with names. If any name is not in
// the catalog nothing changes and *models.InvalidGiftError lists the
// offending names as given.
func (r *Registry) SetFilter(id models.RecipientID, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, models.ErrEmptyFilter
	}
	if invalid := r.catalog.Validate(names); len(invalid) > 0 {
		return nil, &models.InvalidGiftError{Names: invalid}
	}

	seen := make(map[string]struct{}, len(names))
	tokens := make([]string, 0, len(names))
	for _, name := range names {
		token := gifts.Normalize(name)
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}

	r.mu.Lock()
	r.filters[id] = tokens
	r.mu.Unlock()

	out := make([]string, len(tokens))
	copy(out, tokens)
	return out, nil
}

// ClearFilter removes the filter of id and reports whether one was set.
func (r *Registry) ClearFilter(id models.RecipientID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.filters[id]; !ok {
		return false
	}
	delete(r.filters, id)
	return true
}

// Filter returns the normalized filter tokens of id; nil means no filter.
func (r *Registry) Filter(id models.RecipientID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tokens, ok := r.filters[id]
	if !ok {
		return nil
	}
	out := make([]string, len(tokens))
	copy(out, tokens)
	return out
}

func (r *Registry) Stats() models.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.RegistryStats{
		Paid:     len(r.paid),
		Active:   len(r.active),
		Filtered: len(r.filters),
	}
}
