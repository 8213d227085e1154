package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/timshannon/bolthold"
	bolt "go.etcd.io/bbolt"
)

type settleQueue struct {
	store *bolthold.Store
}

// NewSettleQueue stores pending settles next to the releases in the same
// bolt file.
func NewSettleQueue(store *bolthold.Store) domain.SettleQueue {
	return &settleQueue{store: store}
}

func (q *settleQueue) Enqueue(ctx context.Context, pending *domain.PendingSettle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pending.ID == "" {
		return domain.ErrInvalidInput
	}

	pending.DueUnix = pending.DueAt.UnixNano()
	if err := q.store.Upsert(pending.ID, pending); err != nil {
		return fmt.Errorf("enqueueing settle: %w", err)
	}
	return nil
}

func (q *settleQueue) Due(ctx context.Context, now time.Time) ([]domain.PendingSettle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pending []domain.PendingSettle
	err := q.store.Find(&pending, bolthold.Where("DueUnix").Le(now.UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("finding due settles: %w", err)
	}
	sortPending(pending)
	return pending, nil
}

func (q *settleQueue) Complete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := q.store.Delete(id, &domain.PendingSettle{})
	if errors.Is(err, bolthold.ErrNotFound) {
		return domain.ErrSettleNotFound
	}
	if err != nil {
		return fmt.Errorf("completing settle: %w", err)
	}
	return nil
}

// Reschedule reads and rewrites the entry inside one bolt transaction.
func (q *settleQueue) Reschedule(ctx context.Context, id string, lastErr string, due time.Time, ref *domain.AnnouncementRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := q.store.Bolt().Update(func(tx *bolt.Tx) error {
		var pending domain.PendingSettle
		err := q.store.TxGet(tx, id, &pending)
		if errors.Is(err, bolthold.ErrNotFound) {
			return domain.ErrSettleNotFound
		}
		if err != nil {
			return err
		}
		applyReschedule(&pending, lastErr, due, ref)
		return q.store.TxUpdate(tx, id, &pending)
	})
	if errors.Is(err, domain.ErrSettleNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("rescheduling settle: %w", err)
	}
	return nil
}

func (q *settleQueue) List(ctx context.Context) ([]domain.PendingSettle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pending []domain.PendingSettle
	if err := q.store.Find(&pending, nil); err != nil {
		return nil, fmt.Errorf("listing settles: %w", err)
	}
	sortPending(pending)
	return pending, nil
}

func applyReschedule(pending *domain.PendingSettle, lastErr string, due time.Time, ref *domain.AnnouncementRef) {
	pending.Attempts++
	pending.LastError = lastErr
	pending.DueAt = due
	pending.DueUnix = due.UnixNano()
	if ref != nil && pending.Announcement == nil {
		r := *ref
		pending.Announcement = &r
	}
}

func sortPending(pending []domain.PendingSettle) {
	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].DueAt.Equal(pending[j].DueAt) {
			return pending[i].DueAt.Before(pending[j].DueAt)
		}
		return pending[i].ID < pending[j].ID
	})
}
