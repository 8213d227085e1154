package service

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/amaumene/autopost/internal/config"
	"github.com/amaumene/autopost/internal/domain"
	"github.com/amaumene/autopost/internal/storage"
)

var errUnavailable = errors.New("unavailable")

type fakePosters struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (f *fakePosters) Lookup(_ context.Context, _ string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.url, f.err
}

func (f *fakePosters) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type editCall struct {
	ref     domain.AnnouncementRef
	caption string
}

type fakePublisher struct {
	mu         sync.Mutex
	failCreate int
	failEdit   int
	creates    []string
	edits      []editCall
	nextID     int
}

func (f *fakePublisher) Create(_ context.Context, posterURL, caption string) (domain.AnnouncementRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate > 0 {
		f.failCreate--
		return domain.AnnouncementRef{}, errUnavailable
	}
	f.nextID++
	f.creates = append(f.creates, caption)
	return domain.AnnouncementRef{ChatID: -100, MessageID: f.nextID, Kind: domain.AnnouncementPhoto}, nil
}

func (f *fakePublisher) Edit(_ context.Context, ref domain.AnnouncementRef, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit > 0 {
		f.failEdit--
		return errUnavailable
	}
	if ref.Kind == domain.AnnouncementPhoto && utf8.RuneCountInString(caption) > domain.PhotoCaptionLimit {
		return domain.ErrPublishRejected
	}
	f.edits = append(f.edits, editCall{ref: ref, caption: caption})
	return nil
}

func (f *fakePublisher) lastEdit() editCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return editCall{}
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakePublisher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.edits)
}

// flakyRepo fails RecordAnnouncement a set number of times.
type flakyRepo struct {
	domain.ReleaseRepository
	mu         sync.Mutex
	failRecord int
}

func (r *flakyRepo) RecordAnnouncement(ctx context.Context, key domain.GroupKey, ref domain.AnnouncementRef, digest string) (*domain.ReleaseRecord, error) {
	r.mu.Lock()
	if r.failRecord > 0 {
		r.failRecord--
		r.mu.Unlock()
		return nil, errUnavailable
	}
	r.mu.Unlock()
	return r.ReleaseRepository.RecordAnnouncement(ctx, key, ref, digest)
}

type fixture struct {
	svc       *ReconcileService
	repo      *flakyRepo
	posters   *fakePosters
	publisher *fakePublisher
	queue     *storage.MemorySettleQueue
	clock     time.Time
}

func testConfig() *config.Config {
	return &config.Config{
		FallbackPoster: "https://img/fallback.jpg",
		FileStoreBot:   "store_bot",
		RetryCount:     2,
		RetryDelay:     time.Millisecond,
	}
}

func newFixture() *fixture {
	f := &fixture{
		repo:      &flakyRepo{ReleaseRepository: storage.NewMemoryReleaseRepository()},
		posters:   &fakePosters{url: "https://img/poster.jpg"},
		publisher: &fakePublisher{},
		queue:     storage.NewMemorySettleQueue(),
		clock:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewReconcileService(testConfig(), f.repo, f.posters, f.publisher, f.queue)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func uploadOf(meta domain.MovieMeta, messageID int) domain.Upload {
	return domain.Upload{
		Meta:      meta,
		File:      domain.FileRef{ChatID: -200, MessageID: messageID},
		ArrivedAt: time.Date(2024, 5, 1, 9, 59, 0, 0, time.UTC),
	}
}
