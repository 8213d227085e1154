package domain

import (
	"context"
	"time"
)

// ReleaseRepository persists release records. Append must be atomic per key:
// it creates the record when absent and only adds variants whose identity is
// new.
type ReleaseRepository interface {
	Get(ctx context.Context, key GroupKey) (*ReleaseRecord, error)
	Append(ctx context.Context, req AppendRequest) (*ReleaseRecord, error)
	RecordAnnouncement(ctx context.Context, key GroupKey, ref AnnouncementRef, digest string) (*ReleaseRecord, error)
	RecordCaption(ctx context.Context, key GroupKey, digest string) error
	List(ctx context.Context) ([]ReleaseRecord, error)
	Close() error
}

// SettleQueue holds settles that exhausted their retries.
type SettleQueue interface {
	Enqueue(ctx context.Context, pending *PendingSettle) error
	Due(ctx context.Context, now time.Time) ([]PendingSettle, error)
	Complete(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, lastErr string, due time.Time, ref *AnnouncementRef) error
	List(ctx context.Context) ([]PendingSettle, error)
}

type PosterLookup interface {
	Lookup(ctx context.Context, title string, year int) (string, error)
}

type Publisher interface {
	Create(ctx context.Context, posterURL, caption string) (AnnouncementRef, error)
	Edit(ctx context.Context, ref AnnouncementRef, caption string) error
}

// UploadHandler receives uploads in source order. Sources deliver at least
// once, so handlers must tolerate redelivery.
type UploadHandler func(ctx context.Context, upload RawUpload)

type UploadSource interface {
	Run(ctx context.Context, handle UploadHandler) error
}
