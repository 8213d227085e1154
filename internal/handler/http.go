package handler

import (
	"context"
	"errors"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/amaumene/autopost/internal/scheduler"
	"github.com/amaumene/autopost/internal/service"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

const flushTimeout = 2 * time.Minute

// BatchInspector is the part of the scheduler the API reads and drives.
type BatchInspector interface {
	Pending() []scheduler.Snapshot
	Flush(ctx context.Context) error
}

// OverflowInspector exposes failed batches that never reached the settle
// queue.
type OverflowInspector interface {
	Overflow() []domain.PendingSettle
}

type HTTPHandler struct {
	repo      domain.ReleaseRepository
	queue     domain.SettleQueue
	batches   BatchInspector
	overflow  OverflowInspector
	ingestSvc *service.IngestService
}

type uploadRequest struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Caption   string `json:"caption"`
}

type uploadResponse struct {
	Key  domain.GroupKey  `json:"key"`
	Meta domain.MovieMeta `json:"meta"`
}

type pendingResponse struct {
	Batches  []scheduler.Snapshot   `json:"batches"`
	Requeued []domain.PendingSettle `json:"requeued"`
	Unqueued []domain.PendingSettle `json:"unqueued"`
}

func NewHTTPHandler(repo domain.ReleaseRepository, queue domain.SettleQueue, batches BatchInspector, overflow OverflowInspector, ingestSvc *service.IngestService) *HTTPHandler {
	return &HTTPHandler{
		repo:      repo,
		queue:     queue,
		batches:   batches,
		overflow:  overflow,
		ingestSvc: ingestSvc,
	}
}

func (h *HTTPHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.handleHealth)

	api := app.Group("/api")
	api.Get("/releases", h.handleReleases)
	api.Get("/releases/:key", h.handleRelease)
	api.Get("/pending", h.handlePending)
	api.Post("/uploads", h.handleUpload)
	api.Post("/flush", h.handleFlush)
}

func (h *HTTPHandler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *HTTPHandler) handleReleases(c *fiber.Ctx) error {
	records, err := h.repo.List(c.UserContext())
	if err != nil {
		return h.internalError(c, "listing releases", err)
	}
	return c.JSON(records)
}

func (h *HTTPHandler) handleRelease(c *fiber.Ctx) error {
	key := domain.GroupKey(c.Params("key"))
	record, err := h.repo.Get(c.UserContext(), key)
	if errors.Is(err, domain.ErrReleaseNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "release not found"})
	}
	if err != nil {
		return h.internalError(c, "getting release", err)
	}
	return c.JSON(record)
}

// handlePending returns the in-memory batches even when the settle queue
// cannot be read.
func (h *HTTPHandler) handlePending(c *fiber.Ctx) error {
	resp := pendingResponse{
		Batches:  h.batches.Pending(),
		Unqueued: h.overflow.Overflow(),
	}

	requeued, err := h.queue.List(c.UserContext())
	if err != nil {
		log.WithFields(log.Fields{
			"path":  c.Path(),
			"error": err,
		}).Error("listing settle queue")
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
	resp.Requeued = requeued
	return c.JSON(resp)
}

func (h *HTTPHandler) handleUpload(c *fiber.Ctx) error {
	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	upload, key, err := h.ingestSvc.Ingest(c.UserContext(), domain.RawUpload{
		Filename:  req.Filename,
		SizeBytes: req.SizeBytes,
		Caption:   req.Caption,
		ArrivedAt: time.Now(),
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, scheduler.ErrStopped):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return h.internalError(c, "ingesting upload", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(uploadResponse{Key: key, Meta: upload.Meta})
}

func (h *HTTPHandler) handleFlush(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := h.batches.Flush(ctx); err != nil {
		return h.internalError(c, "flushing batches", err)
	}
	return c.JSON(fiber.Map{"message": "flushed"})
}

func (h *HTTPHandler) internalError(c *fiber.Ctx, msg string, err error) error {
	log.WithFields(log.Fields{
		"path":  c.Path(),
		"error": err,
	}).Error(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}
