// Package readstate runs the optimistic mark-as-read protocol: mutate the store
// first, confirm with the backend, roll back when the backend refuses.
package readstate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// Store is the subset of the NotificationStore the coordinator mutates.
type Store interface {
	Get(id string) (domain.Notification, bool)
	MarkReadLocal(ids ...string) []domain.Notification
	MarkAllReadLocal() []domain.Notification
	Restore(priors ...domain.Notification) int
}

// Confirmer is the backend half of the protocol.
type Confirmer interface {
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
}

// RollbackObserver is told how many records were reverted after a refusal.
type RollbackObserver func(op string, count int)

// Coordinator is the ReadStateCoordinator.
type Coordinator struct {
	store      Store
	backend    Confirmer
	onRollback RollbackObserver
}

// New creates a Coordinator.
func New(store Store, backend Confirmer) *Coordinator {
	return &Coordinator{store: store, backend: backend}
}

// OnRollback registers an observer for rollbacks.
func (c *Coordinator) OnRollback(fn RollbackObserver) {
	c.onRollback = fn
}

// MarkAsRead marks one notification read locally and confirms it with the
// backend. An already-read id is a no-op. When the backend refuses, the
// record is restored and the returned error wraps domain.ErrReadStateRejected.
//
// The backend call runs on ctx alone, so disconnecting the push channel does
// not cancel it.
func (c *Coordinator) MarkAsRead(ctx context.Context, id string) error {
	priors := c.store.MarkReadLocal(id)
	if len(priors) == 0 {
		if _, ok := c.store.Get(id); !ok {
			return fmt.Errorf("mark %s as read: %w", id, domain.ErrNotFound)
		}
		return nil
	}

	if err := c.backend.MarkAsRead(ctx, id); err != nil {
		c.rollback("mark_read", priors)
		log.Warn().Err(err).Str("id", id).Msg("mark-as-read rejected, rolled back")
		return fmt.Errorf("mark %s as read: %w: %w", id, domain.ErrReadStateRejected, err)
	}

	log.Debug().Str("id", id).Msg("mark-as-read confirmed")
	return nil
}

// MarkAllAsRead marks the whole unread subset read as one logical operation:
// either the backend confirms it or every affected record is restored
// together. It returns the number of records changed locally.
func (c *Coordinator) MarkAllAsRead(ctx context.Context) (int, error) {
	priors := c.store.MarkAllReadLocal()

	// The backend may hold unread rows not yet seen locally, so it is called
	// even when nothing changed here.
	if err := c.backend.MarkAllAsRead(ctx); err != nil {
		c.rollback("mark_all_read", priors)
		log.Warn().Err(err).Int("count", len(priors)).Msg("mark-all-as-read rejected, rolled back")
		return 0, fmt.Errorf("mark all as read: %w: %w", domain.ErrReadStateRejected, err)
	}

	log.Debug().Int("count", len(priors)).Msg("mark-all-as-read confirmed")
	return len(priors), nil
}

func (c *Coordinator) rollback(op string, priors []domain.Notification) {
	if len(priors) == 0 {
		return
	}
	restored := c.store.Restore(priors...)
	if c.onRollback != nil {
		c.onRollback(op, restored)
	}
}
