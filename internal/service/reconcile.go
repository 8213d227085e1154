package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amaumene/autopost/internal/config"
	"github.com/amaumene/autopost/internal/domain"
	log "github.com/sirupsen/logrus"
)

const enqueueTimeout = 30 * time.Second

// ReconcileService folds settled batches into release records and keeps one
// announcement per release in step with its record.
type ReconcileService struct {
	repo           domain.ReleaseRepository
	posters        domain.PosterLookup
	publisher      domain.Publisher
	queue          domain.SettleQueue
	fallbackPoster string
	fileStoreBot   string
	retryCount     int
	retryDelay     time.Duration
	locks          *keyLock
	ids            *idSource
	now            func() time.Time

	overflowMu sync.Mutex
	overflow   []domain.PendingSettle

	// unrecorded holds announcements that were published but not yet
	// stored on their record.
	unrecordedMu sync.Mutex
	unrecorded   map[domain.GroupKey]domain.AnnouncementRef
}

func NewReconcileService(cfg *config.Config, repo domain.ReleaseRepository, posters domain.PosterLookup, publisher domain.Publisher, queue domain.SettleQueue) *ReconcileService {
	return &ReconcileService{
		repo:           repo,
		posters:        posters,
		publisher:      publisher,
		queue:          queue,
		fallbackPoster: cfg.FallbackPoster,
		fileStoreBot:   cfg.FileStoreBot,
		retryCount:     cfg.RetryCount,
		retryDelay:     cfg.RetryDelay,
		locks:          newKeyLock(),
		ids:            newIDSource(),
		now:            time.Now,
		unrecorded:     make(map[domain.GroupKey]domain.AnnouncementRef),
	}
}

// Settle reconciles one batch. When the retries are spent the batch is
// handed to the settle queue so none of its variants is lost.
func (s *ReconcileService) Settle(ctx context.Context, batch domain.SettleBatch) error {
	err := s.settleOnce(ctx, batch)
	if err == nil || errors.Is(err, domain.ErrEmptyBatch) {
		return err
	}
	s.requeue(ctx, batch, err)
	return err
}

func (s *ReconcileService) settleOnce(ctx context.Context, batch domain.SettleBatch) error {
	if len(batch.Uploads) == 0 {
		return domain.ErrEmptyBatch
	}

	unlock := s.locks.Lock(batch.Key)
	defer unlock()

	return s.reconcile(ctx, batch)
}

func (s *ReconcileService) reconcile(ctx context.Context, batch domain.SettleBatch) error {
	key := batch.Key
	meta := batch.Uploads[0].Meta

	existing, err := s.getRecord(ctx, key)
	if err != nil {
		return &domain.SettleError{Op: "load", Key: key, Announcement: batch.Announcement, Err: err}
	}

	posterURL := ""
	if existing == nil || existing.PosterURL == "" {
		posterURL = s.lookupPoster(ctx, meta.Title, meta.Year)
	}

	req := domain.AppendRequest{
		Key:       key,
		Title:     meta.Title,
		Year:      meta.Year,
		PosterURL: posterURL,
		Variants:  variantsOf(batch.Uploads),
	}

	var record *domain.ReleaseRecord
	err = s.withRetry(ctx, "append", key, func() error {
		var err error
		record, err = s.repo.Append(ctx, req)
		return err
	})
	if err != nil {
		return &domain.SettleError{Op: "append", Key: key, Announcement: batch.Announcement, Err: err}
	}
	s.logAppended(record, len(req.Variants))

	carried := batch.Announcement
	if carried == nil && !record.Announced() {
		carried, err = s.outstandingRef(ctx, key)
		if err != nil {
			return &domain.SettleError{Op: "load unrecorded announcement", Key: key, Err: err}
		}
	}
	if carried != nil {
		record, err = s.recordCarried(ctx, record, *carried)
		if err != nil {
			return &domain.SettleError{Op: "record carried announcement", Key: key, Announcement: carried, Err: err}
		}
	}

	caption := s.captionFor(record)
	digest := CaptionDigest(caption)

	if !record.Announced() {
		return s.create(ctx, record, caption, digest)
	}
	if record.CaptionDigest == digest {
		s.logUnchanged(record)
		return nil
	}
	return s.edit(ctx, record, caption, digest)
}

func (s *ReconcileService) getRecord(ctx context.Context, key domain.GroupKey) (*domain.ReleaseRecord, error) {
	var record *domain.ReleaseRecord
	err := s.withRetry(ctx, "load", key, func() error {
		r, err := s.repo.Get(ctx, key)
		if errors.Is(err, domain.ErrReleaseNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	return record, err
}

// lookupPoster never fails: a missing poster falls back to the configured
// image, which is then cached on the record like a real one.
func (s *ReconcileService) lookupPoster(ctx context.Context, title string, year int) string {
	url, err := s.posters.Lookup(ctx, title, year)
	if err == nil && url != "" {
		return url
	}
	if err == nil {
		err = domain.ErrPosterNotFound
	}
	log.WithFields(log.Fields{
		"title": title,
		"year":  year,
		"error": err,
	}).Warn("poster lookup failed, using fallback")
	return s.fallbackPoster
}

// outstandingRef finds an announcement for key that an earlier settle
// published but could not record. It is adopted instead of publishing again.
func (s *ReconcileService) outstandingRef(ctx context.Context, key domain.GroupKey) (*domain.AnnouncementRef, error) {
	s.unrecordedMu.Lock()
	ref, ok := s.unrecorded[key]
	s.unrecordedMu.Unlock()
	if ok {
		return &ref, nil
	}

	for _, pending := range s.Overflow() {
		if pending.Key == key && pending.Announcement != nil {
			return pending.Announcement, nil
		}
	}

	var queued []domain.PendingSettle
	err := s.withRetry(ctx, "list settle queue", key, func() error {
		var err error
		queued, err = s.queue.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, pending := range queued {
		if pending.Key == key && pending.Announcement != nil {
			return pending.Announcement, nil
		}
	}
	return nil, nil
}

func (s *ReconcileService) rememberUnrecorded(key domain.GroupKey, ref domain.AnnouncementRef) {
	s.unrecordedMu.Lock()
	defer s.unrecordedMu.Unlock()
	s.unrecorded[key] = ref
}

func (s *ReconcileService) forgetUnrecorded(key domain.GroupKey) {
	s.unrecordedMu.Lock()
	defer s.unrecordedMu.Unlock()
	delete(s.unrecorded, key)
}

// captionFor fits the caption of a photo announcement to the photo limit.
// Records without an announcement get the full caption; the publisher
// sends it as text when it is too long for a photo.
func (s *ReconcileService) captionFor(record *domain.ReleaseRecord) string {
	if record.Announced() && record.Announcement.Kind != domain.AnnouncementText {
		return FitCaption(record, s.fileStoreBot, domain.PhotoCaptionLimit)
	}
	return BuildCaption(record, s.fileStoreBot)
}

// recordCarried stores a reference published by an earlier attempt that
// failed before recording it.
func (s *ReconcileService) recordCarried(ctx context.Context, record *domain.ReleaseRecord, ref domain.AnnouncementRef) (*domain.ReleaseRecord, error) {
	if record.Announced() && *record.Announcement == ref {
		s.forgetUnrecorded(record.Key)
		return record, nil
	}
	if record.Announced() {
		s.forgetUnrecorded(record.Key)
		s.logOrphan(record, ref)
		return record, nil
	}

	var updated *domain.ReleaseRecord
	err := s.withRetry(ctx, "record announcement", record.Key, func() error {
		var err error
		updated, err = s.repo.RecordAnnouncement(ctx, record.Key, ref, "")
		return err
	})
	if errors.Is(err, domain.ErrAnnouncementConflict) {
		s.forgetUnrecorded(record.Key)
		s.logOrphan(record, ref)
		return s.repo.Get(ctx, record.Key)
	}
	if err != nil {
		return nil, err
	}
	s.forgetUnrecorded(record.Key)
	return updated, nil
}

func (s *ReconcileService) create(ctx context.Context, record *domain.ReleaseRecord, caption, digest string) error {
	var ref domain.AnnouncementRef
	err := s.withRetry(ctx, "publish", record.Key, func() error {
		var err error
		ref, err = s.publisher.Create(ctx, record.PosterURL, caption)
		return err
	})
	if err != nil {
		return &domain.SettleError{Op: "publish", Key: record.Key, Err: err}
	}

	err = s.withRetry(ctx, "record announcement", record.Key, func() error {
		_, err := s.repo.RecordAnnouncement(ctx, record.Key, ref, digest)
		return err
	})
	if err != nil {
		s.rememberUnrecorded(record.Key, ref)
		return &domain.SettleError{Op: "record announcement", Key: record.Key, Announcement: &ref, Err: err}
	}

	s.logPublished(record, ref)
	return nil
}

func (s *ReconcileService) edit(ctx context.Context, record *domain.ReleaseRecord, caption, digest string) error {
	ref := *record.Announcement
	err := s.withRetry(ctx, "edit", record.Key, func() error {
		return s.publisher.Edit(ctx, ref, caption)
	})
	if err != nil {
		return &domain.SettleError{Op: "edit", Key: record.Key, Err: err}
	}

	err = s.withRetry(ctx, "record caption", record.Key, func() error {
		return s.repo.RecordCaption(ctx, record.Key, digest)
	})
	if err != nil {
		return &domain.SettleError{Op: "record caption", Key: record.Key, Err: err}
	}

	s.logEdited(record, ref)
	return nil
}

func variantsOf(uploads []domain.Upload) []domain.QualityVariant {
	variants := make([]domain.QualityVariant, 0, len(uploads))
	for _, u := range uploads {
		variants = append(variants, domain.NewQualityVariant(u))
	}
	return variants
}

func (s *ReconcileService) logAppended(record *domain.ReleaseRecord, offered int) {
	log.WithFields(log.Fields{
		"key":      record.Key,
		"title":    record.Title,
		"variants": len(record.Variants),
		"offered":  offered,
	}).Info("release updated")
}

func (s *ReconcileService) logUnchanged(record *domain.ReleaseRecord) {
	log.WithFields(log.Fields{
		"key": record.Key,
	}).Debug("caption unchanged, skipping edit")
}

func (s *ReconcileService) logPublished(record *domain.ReleaseRecord, ref domain.AnnouncementRef) {
	log.WithFields(log.Fields{
		"key":       record.Key,
		"title":     record.Title,
		"messageID": ref.MessageID,
		"kind":      ref.Kind,
	}).Info("announcement published")
}

func (s *ReconcileService) logEdited(record *domain.ReleaseRecord, ref domain.AnnouncementRef) {
	log.WithFields(log.Fields{
		"key":       record.Key,
		"messageID": ref.MessageID,
		"variants":  len(record.Variants),
	}).Info("announcement edited")
}

func (s *ReconcileService) logOrphan(record *domain.ReleaseRecord, ref domain.AnnouncementRef) {
	log.WithFields(log.Fields{
		"key":       record.Key,
		"messageID": ref.MessageID,
		"alert":     true,
	}).Error("release already announced, carried announcement is orphaned")
}
