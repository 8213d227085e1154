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

type releaseRepository struct {
	store *bolthold.Store
	now   func() time.Time
}

func NewReleaseRepository(store *bolthold.Store) domain.ReleaseRepository {
	return &releaseRepository{store: store, now: time.Now}
}

func (r *releaseRepository) Get(ctx context.Context, key domain.GroupKey) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record domain.ReleaseRecord
	err := r.store.Get(string(key), &record)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, domain.ErrReleaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting release: %w", err)
	}
	return &record, nil
}

// Append reads, merges and writes the record inside one bolt transaction.
func (r *releaseRepository) Append(ctx context.Context, req domain.AppendRequest) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *domain.ReleaseRecord
	err := r.store.Bolt().Update(func(tx *bolt.Tx) error {
		current, err := r.txGet(tx, req.Key)
		if err != nil && !errors.Is(err, domain.ErrReleaseNotFound) {
			return err
		}
		result = domain.ApplyAppend(current, req, r.now())
		return r.store.TxUpsert(tx, string(req.Key), result)
	})
	if err != nil {
		return nil, fmt.Errorf("appending variants: %w", err)
	}
	return result, nil
}

func (r *releaseRepository) RecordAnnouncement(ctx context.Context, key domain.GroupKey, ref domain.AnnouncementRef, digest string) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *domain.ReleaseRecord
	err := r.store.Bolt().Update(func(tx *bolt.Tx) error {
		current, err := r.txGet(tx, key)
		if err != nil {
			return err
		}
		if err := domain.ApplyAnnouncement(current, ref, digest, r.now()); err != nil {
			return err
		}
		result = current
		return r.store.TxUpsert(tx, string(key), current)
	})
	if err != nil {
		return nil, fmt.Errorf("recording announcement: %w", err)
	}
	return result, nil
}

func (r *releaseRepository) RecordCaption(ctx context.Context, key domain.GroupKey, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.store.Bolt().Update(func(tx *bolt.Tx) error {
		current, err := r.txGet(tx, key)
		if err != nil {
			return err
		}
		current.CaptionDigest = digest
		current.UpdatedAt = r.now()
		return r.store.TxUpsert(tx, string(key), current)
	})
	if err != nil {
		return fmt.Errorf("recording caption: %w", err)
	}
	return nil
}

func (r *releaseRepository) List(ctx context.Context) ([]domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []domain.ReleaseRecord
	if err := r.store.Find(&records, nil); err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	sortReleases(records)
	return records, nil
}

func (r *releaseRepository) Close() error {
	return r.store.Close()
}

func (r *releaseRepository) txGet(tx *bolt.Tx, key domain.GroupKey) (*domain.ReleaseRecord, error) {
	var record domain.ReleaseRecord
	err := r.store.TxGet(tx, string(key), &record)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, domain.ErrReleaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// sortReleases orders records by most recent update, then key.
func sortReleases(records []domain.ReleaseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.After(records[j].UpdatedAt)
		}
		return records[i].Key < records[j].Key
	})
}
