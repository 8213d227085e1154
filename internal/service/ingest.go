package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/amaumene/autopost/internal/groupkey"
	"github.com/amaumene/autopost/internal/parser"
	log "github.com/sirupsen/logrus"
)

// BatchScheduler accepts uploads for debouncing.
type BatchScheduler interface {
	Submit(key domain.GroupKey, upload domain.Upload) error
}

type IngestService struct {
	parser    *parser.Parser
	scheduler BatchScheduler
	now       func() time.Time
}

func NewIngestService(p *parser.Parser, scheduler BatchScheduler) *IngestService {
	return &IngestService{
		parser:    p,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Handle is the domain.UploadHandler fed by upload sources.
func (s *IngestService) Handle(ctx context.Context, raw domain.RawUpload) {
	upload, key, err := s.Ingest(ctx, raw)
	if err != nil {
		log.WithFields(log.Fields{
			"filename":  raw.Filename,
			"messageID": raw.File.MessageID,
			"error":     err,
			"alert":     true,
		}).Error("failed to ingest upload")
		return
	}

	log.WithFields(log.Fields{
		"key":        key,
		"title":      upload.Meta.Title,
		"year":       upload.Meta.Year,
		"resolution": upload.Meta.Resolution,
		"filename":   raw.Filename,
	}).Info("upload queued")
}

// Ingest parses raw, derives its group key and hands it to the scheduler.
func (s *IngestService) Ingest(ctx context.Context, raw domain.RawUpload) (domain.Upload, domain.GroupKey, error) {
	if err := ctx.Err(); err != nil {
		return domain.Upload{}, "", err
	}
	if strings.TrimSpace(raw.Filename) == "" {
		return domain.Upload{}, "", fmt.Errorf("upload without filename: %w", domain.ErrInvalidInput)
	}

	arrived := raw.ArrivedAt
	if arrived.IsZero() {
		arrived = s.now()
	}

	meta := s.parser.ParseUpload(raw)
	upload := domain.Upload{
		Meta:      meta,
		File:      raw.File,
		SizeBytes: raw.SizeBytes,
		Caption:   raw.Caption,
		ArrivedAt: arrived,
	}
	key := groupkey.Derive(meta)

	if err := s.scheduler.Submit(key, upload); err != nil {
		return upload, key, fmt.Errorf("scheduling upload: %w", err)
	}
	return upload, key, nil
}
