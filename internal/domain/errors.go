package domain

import "errors"

var (
	ErrReleaseNotFound      = errors.New("release not found")
	ErrAnnouncementConflict = errors.New("announcement already recorded")
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyBatch           = errors.New("empty batch")
	ErrPosterNotFound       = errors.New("poster not found")
	ErrSettleNotFound       = errors.New("pending settle not found")
	ErrPublishRejected      = errors.New("publish rejected")
)
