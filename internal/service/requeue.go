package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

type idSource struct {
	mu      sync.Mutex
	entropy *rand.Rand
}

func newIDSource() *idSource {
	return &idSource{entropy: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *idSource) next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), g.entropy).String()
}

// requeue parks a failed batch on the settle queue. If the queue itself is
// down the batch stays in memory until the next sweep.
func (s *ReconcileService) requeue(ctx context.Context, batch domain.SettleBatch, cause error) {
	now := s.now()
	pending := domain.PendingSettle{
		ID:           s.ids.next(now),
		Key:          batch.Key,
		Uploads:      batch.Uploads,
		Announcement: unrecordedRef(batch, cause),
		Attempts:     1,
		LastError:    cause.Error(),
		DueAt:        now.Add(requeueDelay(1)),
		CreatedAt:    now,
	}

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := s.queue.Enqueue(enqueueCtx, &pending); err != nil {
		s.overflowMu.Lock()
		s.overflow = append(s.overflow, pending)
		s.overflowMu.Unlock()
		s.logAlert(pending, err, "settle queue unavailable, holding batch in memory")
		return
	}
	s.logAlert(pending, cause, "settle failed, batch requeued")
}

func unrecordedRef(batch domain.SettleBatch, cause error) *domain.AnnouncementRef {
	var settleErr *domain.SettleError
	if errors.As(cause, &settleErr) && settleErr.Announcement != nil {
		return settleErr.Announcement
	}
	return batch.Announcement
}

// RetryPending re-settles every queued batch that is due. Failures are
// rescheduled with a growing delay; entries are only removed on success.
func (s *ReconcileService) RetryPending(ctx context.Context) error {
	s.flushOverflow(ctx)

	due, err := s.queue.Due(ctx, s.now())
	if err != nil {
		return err
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.retryOne(ctx, &due[i])
	}
	return nil
}

func (s *ReconcileService) retryOne(ctx context.Context, pending *domain.PendingSettle) {
	err := s.settleOnce(ctx, pending.Batch())
	if err == nil || errors.Is(err, domain.ErrEmptyBatch) {
		if err := s.queue.Complete(ctx, pending.ID); err != nil && !errors.Is(err, domain.ErrSettleNotFound) {
			s.logQueueError(pending, err)
		}
		s.logRecovered(pending)
		return
	}

	var ref *domain.AnnouncementRef
	var settleErr *domain.SettleError
	if errors.As(err, &settleErr) {
		ref = settleErr.Announcement
	}

	due := s.now().Add(requeueDelay(pending.Attempts + 1))
	if rerr := s.queue.Reschedule(ctx, pending.ID, err.Error(), due, ref); rerr != nil {
		s.logQueueError(pending, rerr)
		return
	}
	pending.Attempts++
	pending.DueAt = due
	s.logAlert(*pending, err, "requeued settle failed again")
}

func (s *ReconcileService) flushOverflow(ctx context.Context) {
	s.overflowMu.Lock()
	held := s.overflow
	s.overflow = nil
	s.overflowMu.Unlock()

	var kept []domain.PendingSettle
	for i := range held {
		if err := s.queue.Enqueue(ctx, &held[i]); err != nil {
			kept = append(kept, held[i])
		}
	}
	if len(kept) == 0 {
		return
	}

	s.overflowMu.Lock()
	s.overflow = append(kept, s.overflow...)
	s.overflowMu.Unlock()
}

// Overflow returns batches that could not be written to the settle queue.
func (s *ReconcileService) Overflow() []domain.PendingSettle {
	s.overflowMu.Lock()
	defer s.overflowMu.Unlock()
	out := make([]domain.PendingSettle, len(s.overflow))
	copy(out, s.overflow)
	return out
}

func (s *ReconcileService) logAlert(pending domain.PendingSettle, err error, msg string) {
	log.WithFields(log.Fields{
		"key":      pending.Key,
		"id":       pending.ID,
		"uploads":  len(pending.Uploads),
		"attempts": pending.Attempts,
		"due":      pending.DueAt,
		"error":    err,
		"alert":    true,
	}).Error(msg)
}

func (s *ReconcileService) logRecovered(pending *domain.PendingSettle) {
	log.WithFields(log.Fields{
		"key":      pending.Key,
		"id":       pending.ID,
		"attempts": pending.Attempts,
	}).Info("requeued settle succeeded")
}

func (s *ReconcileService) logQueueError(pending *domain.PendingSettle, err error) {
	log.WithFields(log.Fields{
		"key":   pending.Key,
		"id":    pending.ID,
		"error": err,
	}).Error("settle queue update failed")
}
