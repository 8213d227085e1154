package service

import (
	"context"
	"errors"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	requeueBaseDelay = time.Minute
	requeueMaxDelay  = time.Hour
)

// withRetry runs fn until it succeeds, fails permanently or the retry
// budget is spent. The budget counts retries, not attempts.
func (s *ReconcileService) withRetry(ctx context.Context, op string, key domain.GroupKey, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryDelay
	b.MaxElapsedTime = 0
	b.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retryCount)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		log.WithFields(log.Fields{
			"op":    op,
			"key":   key,
			"retry": next,
			"error": err,
		}).Warn("settle step failed, retrying")
	})
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrAnnouncementConflict) ||
		errors.Is(err, domain.ErrPublishRejected) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// requeueDelay doubles per attempt from one minute up to an hour.
func requeueDelay(attempts int) time.Duration {
	delay := requeueBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= requeueMaxDelay {
			return requeueMaxDelay
		}
	}
	return delay
}
