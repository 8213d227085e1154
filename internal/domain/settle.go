package domain

import (
	"fmt"
	"time"
)

// SettleBatch is the unit handed from the debounce scheduler to the
// reconciliation engine. Announcement is set when a previous attempt
// published the announcement but could not record it.
type SettleBatch struct {
	Key          GroupKey
	Uploads      []Upload
	Announcement *AnnouncementRef
}

type PendingSettle struct {
	ID           string           `json:"id"`
	Key          GroupKey         `json:"key"`
	Uploads      []Upload         `json:"uploads"`
	Announcement *AnnouncementRef `json:"announcement,omitempty"`
	Attempts     int              `json:"attempts"`
	LastError    string           `json:"last_error,omitempty"`
	DueAt        time.Time        `json:"due_at"`
	DueUnix      int64            `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
}

func (p *PendingSettle) Batch() SettleBatch {
	return SettleBatch{
		Key:          p.Key,
		Uploads:      p.Uploads,
		Announcement: p.Announcement,
	}
}

// SettleError reports a failed settle step. Announcement carries a reference
// that was published but not recorded, so a retry can record it instead of
// publishing again.
type SettleError struct {
	Op           string
	Key          GroupKey
	Announcement *AnnouncementRef
	Err          error
}

func (e *SettleError) Error() string {
	return fmt.Sprintf("settle %s: %s: %v", e.Key, e.Op, e.Err)
}

func (e *SettleError) Unwrap() error {
	return e.Err
}
