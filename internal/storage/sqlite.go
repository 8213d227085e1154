package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteReleaseRepository stores each record as a JSON document keyed by its
// group key. A single connection serialises writers, so read-merge-write
// inside a transaction is atomic.
type SQLiteReleaseRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteReleaseRepository(dbPath string) (*SQLiteReleaseRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &SQLiteReleaseRepository{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating db: %w", err)
	}
	return r, nil
}

func (r *SQLiteReleaseRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS releases (
		key        TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_releases_updated ON releases(updated_at DESC);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteReleaseRepository) Get(ctx context.Context, key domain.GroupKey) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT data FROM releases WHERE key = ?`, string(key)))
	if err != nil && !errors.Is(err, domain.ErrReleaseNotFound) {
		return nil, fmt.Errorf("getting release: %w", err)
	}
	return record, err
}

func (r *SQLiteReleaseRepository) Append(ctx context.Context, req domain.AppendRequest) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *domain.ReleaseRecord
	err := r.update(ctx, req.Key, true, func(current *domain.ReleaseRecord) (*domain.ReleaseRecord, error) {
		result = domain.ApplyAppend(current, req, r.now())
		return result, nil
	})
	if err != nil {
		return nil, fmt.Errorf("appending variants: %w", err)
	}
	return result, nil
}

func (r *SQLiteReleaseRepository) RecordAnnouncement(ctx context.Context, key domain.GroupKey, ref domain.AnnouncementRef, digest string) (*domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *domain.ReleaseRecord
	err := r.update(ctx, key, false, func(current *domain.ReleaseRecord) (*domain.ReleaseRecord, error) {
		if err := domain.ApplyAnnouncement(current, ref, digest, r.now()); err != nil {
			return nil, err
		}
		result = current
		return current, nil
	})
	if err != nil {
		return nil, fmt.Errorf("recording announcement: %w", err)
	}
	return result, nil
}

func (r *SQLiteReleaseRepository) RecordCaption(ctx context.Context, key domain.GroupKey, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.update(ctx, key, false, func(current *domain.ReleaseRecord) (*domain.ReleaseRecord, error) {
		current.CaptionDigest = digest
		current.UpdatedAt = r.now()
		return current, nil
	})
	if err != nil {
		return fmt.Errorf("recording caption: %w", err)
	}
	return nil
}

func (r *SQLiteReleaseRepository) List(ctx context.Context) ([]domain.ReleaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT data FROM releases ORDER BY updated_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	defer rows.Close()

	var records []domain.ReleaseRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("listing releases: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	sortReleases(records)
	return records, nil
}

func (r *SQLiteReleaseRepository) Close() error {
	return r.db.Close()
}

// update runs mutate on the stored record inside a transaction. When create
// is false a missing record is ErrReleaseNotFound.
func (r *SQLiteReleaseRepository) update(ctx context.Context, key domain.GroupKey, create bool, mutate func(*domain.ReleaseRecord) (*domain.ReleaseRecord, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := scanRecord(tx.QueryRowContext(ctx, `SELECT data FROM releases WHERE key = ?`, string(key)))
	if err != nil && !(create && errors.Is(err, domain.ErrReleaseNotFound)) {
		return err
	}

	next, err := mutate(current)
	if err != nil {
		return err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO releases (key, data, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(key), string(data), next.CreatedAt.UTC().Format(time.RFC3339Nano), next.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ReleaseRecord, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReleaseNotFound
		}
		return nil, err
	}
	var record domain.ReleaseRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	return &record, nil
}
