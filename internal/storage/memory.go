package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/autopost/internal/domain"
)

// MemoryReleaseRepository keeps records in a map. Records are copied in and
// out so callers never share state with the store.
type MemoryReleaseRepository struct {
	mu      sync.Mutex
	records map[domain.GroupKey]*domain.ReleaseRecord
	now     func() time.Time
}

func NewMemoryReleaseRepository() *MemoryReleaseRepository {
	return &MemoryReleaseRepository{
		records: make(map[domain.GroupKey]*domain.ReleaseRecord),
		now:     time.Now,
	}
}

func (r *MemoryReleaseRepository) Get(ctx context.Context, key domain.GroupKey) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return nil, domain.ErrReleaseNotFound
	}
	return cloneRecord(record)
}

func (r *MemoryReleaseRepository) Append(ctx context.Context, req domain.AppendRequest) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record := domain.ApplyAppend(r.records[req.Key], req, r.now())
	r.records[req.Key] = record
	return cloneRecord(record)
}

func (r *MemoryReleaseRepository) RecordAnnouncement(ctx context.Context, key domain.GroupKey, ref domain.AnnouncementRef, digest string) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return nil, domain.ErrReleaseNotFound
	}
	if err := domain.ApplyAnnouncement(record, ref, digest, r.now()); err != nil {
		return nil, err
	}
	return cloneRecord(record)
}

func (r *MemoryReleaseRepository) RecordCaption(ctx context.Context, key domain.GroupKey, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrReleaseNotFound
	}
	record.CaptionDigest = digest
	record.UpdatedAt = r.now()
	return nil
}

func (r *MemoryReleaseRepository) List(ctx context.Context) ([]domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]domain.ReleaseRecord, 0, len(r.records))
	for _, record := range r.records {
		c, err := cloneRecord(record)
		if err != nil {
			return nil, err
		}
		records = append(records, *c)
	}
	sortReleases(records)
	return records, nil
}

func (r *MemoryReleaseRepository) Close() error {
	return nil
}

func cloneRecord(record *domain.ReleaseRecord) (*domain.ReleaseRecord, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("copying release: %w", err)
	}
	var c domain.ReleaseRecord
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("copying release: %w", err)
	}
	return &c, nil
}

type MemorySettleQueue struct {
	mu      sync.Mutex
	pending map[string]domain.PendingSettle
}

func NewMemorySettleQueue() *MemorySettleQueue {
	return &MemorySettleQueue{pending: make(map[string]domain.PendingSettle)}
}

func (q *MemorySettleQueue) Enqueue(ctx context.Context, pending *domain.PendingSettle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pending.ID == "" {
		return domain.ErrInvalidInput
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pending.DueUnix = pending.DueAt.UnixNano()
	q.pending[pending.ID] = *pending
	return nil
}

func (q *MemorySettleQueue) Due(ctx context.Context, now time.Time) ([]domain.PendingSettle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var due []domain.PendingSettle
	for _, p := range q.pending {
		if !p.DueAt.After(now) {
			due = append(due, p)
		}
	}
	sortPending(due)
	return due, nil
}

func (q *MemorySettleQueue) Complete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[id]; !ok {
		return domain.ErrSettleNotFound
	}
	delete(q.pending, id)
	return nil
}

func (q *MemorySettleQueue) Reschedule(ctx context.Context, id string, lastErr string, due time.Time, ref *domain.AnnouncementRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.pending[id]
	if !ok {
		return domain.ErrSettleNotFound
	}
	applyReschedule(&p, lastErr, due, ref)
	q.pending[id] = p
	return nil
}

func (q *MemorySettleQueue) List(ctx context.Context) ([]domain.PendingSettle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	all := make([]domain.PendingSettle, 0, len(q.pending))
	for _, p := range q.pending {
		all = append(all, p)
	}
	sortPending(all)
	return all, nil
}
