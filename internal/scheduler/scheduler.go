package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	log "github.com/sirupsen/logrus"
)

const (
	defaultWait          = 30 * time.Second
	maxAgeFactor         = 5
	defaultSettleTimeout = 5 * time.Minute
)

var ErrStopped = errors.New("scheduler stopped")

// SettleFunc consumes one batch. It runs outside the scheduler lock on a
// context that is not tied to shutdown.
type SettleFunc func(ctx context.Context, batch domain.SettleBatch) error

type Option func(*Scheduler)

func WithWait(wait time.Duration) Option {
	return func(s *Scheduler) {
		if wait > 0 {
			s.wait = wait
		}
	}
}

// WithMaxAge caps how long a batch may keep growing after its first upload.
func WithMaxAge(maxAge time.Duration) Option {
	return func(s *Scheduler) {
		if maxAge > 0 {
			s.maxAge = maxAge
		}
	}
}

func WithSettleTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.settleTimeout = timeout
		}
	}
}

type Scheduler struct {
	settle        SettleFunc
	wait          time.Duration
	maxAge        time.Duration
	settleTimeout time.Duration
	now           func() time.Time

	mu      sync.Mutex
	batches map[domain.GroupKey]*batch
	stopped bool
}

// batch holds the uploads waiting for one key. While a settle runs, new
// uploads collect in pending and the timer is armed once it returns.
type batch struct {
	key          domain.GroupKey
	pending      []domain.Upload
	firstArrival time.Time
	dueAt        time.Time
	timer        *time.Timer
	gen          uint64
	settling     bool
	done         chan struct{}
}

// Snapshot describes a batch for the ops API.
type Snapshot struct {
	Key          domain.GroupKey `json:"key"`
	Uploads      int             `json:"uploads"`
	Filenames    []string        `json:"filenames"`
	FirstArrival time.Time       `json:"first_arrival"`
	DueAt        time.Time       `json:"due_at"`
	Settling     bool            `json:"settling"`
}

func New(settle SettleFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		settle:        settle,
		wait:          defaultWait,
		settleTimeout: defaultSettleTimeout,
		now:           time.Now,
		batches:       make(map[domain.GroupKey]*batch),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAge == 0 {
		s.maxAge = maxAgeFactor * s.wait
	}
	return s
}

// Submit adds an upload to the batch of key and restarts its timer.
func (s *Scheduler) Submit(key domain.GroupKey, upload domain.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	b, ok := s.batches[key]
	if !ok {
		b = &batch{key: key}
		s.batches[key] = b
	}
	if len(b.pending) == 0 {
		b.firstArrival = s.now()
	}
	b.pending = append(b.pending, upload)

	if b.settling {
		s.logDeferred(b)
		return nil
	}
	s.armLocked(b)
	return nil
}

func (s *Scheduler) armLocked(b *batch) {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen

	delay := s.wait
	if remaining := s.maxAge - s.now().Sub(b.firstArrival); remaining < delay {
		delay = remaining
	}
	if delay < 0 {
		delay = 0
	}
	b.dueAt = s.now().Add(delay)
	b.timer = time.AfterFunc(delay, func() {
		s.fire(b.key, gen)
	})
}

func (s *Scheduler) fire(key domain.GroupKey, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[key]
	if !ok || b.gen != gen || b.settling || len(b.pending) == 0 {
		return
	}
	s.startSettleLocked(b)
}

func (s *Scheduler) startSettleLocked(b *batch) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++

	uploads := b.pending
	b.pending = nil
	b.settling = true
	b.done = make(chan struct{})

	go s.run(b, uploads)
}

func (s *Scheduler) run(b *batch, uploads []domain.Upload) {
	ctx, cancel := context.WithTimeout(context.Background(), s.settleTimeout)
	err := s.settle(ctx, domain.SettleBatch{Key: b.key, Uploads: uploads})
	cancel()

	if err != nil {
		log.WithFields(log.Fields{
			"component": "scheduler",
			"key":       b.key,
			"uploads":   len(uploads),
			"error":     err,
		}).Error("settle failed")
	}

	s.finish(b)
}

func (s *Scheduler) finish(b *batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.settling = false
	close(b.done)

	if len(b.pending) == 0 {
		delete(s.batches, b.key)
		return
	}
	s.armLocked(b)
}

// Flush settles every waiting batch now and blocks until all settles,
// including ones for uploads that arrive meanwhile, have returned.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		var waits []chan struct{}
		for _, b := range s.batches {
			if !b.settling && len(b.pending) > 0 {
				s.startSettleLocked(b)
			}
			if b.settling {
				waits = append(waits, b.done)
			}
		}
		s.mu.Unlock()

		if len(waits) == 0 {
			return nil
		}
		for _, done := range waits {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Stop rejects further uploads and flushes what is waiting.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	log.WithField("component", "scheduler").Info("flushing pending batches")
	return s.Flush(ctx)
}

func (s *Scheduler) Pending() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(s.batches))
	for _, b := range s.batches {
		filenames := make([]string, 0, len(b.pending))
		for _, u := range b.pending {
			filenames = append(filenames, u.Meta.RawFilename)
		}
		snapshots = append(snapshots, Snapshot{
			Key:          b.key,
			Uploads:      len(b.pending),
			Filenames:    filenames,
			FirstArrival: b.firstArrival,
			DueAt:        b.dueAt,
			Settling:     b.settling,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Key < snapshots[j].Key
	})
	return snapshots
}

func (s *Scheduler) logDeferred(b *batch) {
	log.WithFields(log.Fields{
		"component": "scheduler",
		"key":       b.key,
		"waiting":   len(b.pending),
	}).Debug("settle in progress, deferring upload")
}
