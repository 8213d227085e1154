package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/timshannon/bolthold"
)

func setupTestStore(t *testing.T) *bolthold.Store {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	tmpfile.Close()

	store, err := bolthold.Open(tmpfile.Name(), 0666, nil)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
		os.Remove(tmpfile.Name())
	})

	return store
}

func setupSQLite(t *testing.T) *SQLiteReleaseRepository {
	t.Helper()
	repo, err := NewSQLiteReleaseRepository(filepath.Join(t.TempDir(), "releases.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func repositories(t *testing.T) map[string]domain.ReleaseRepository {
	return map[string]domain.ReleaseRepository{
		"bolt":   NewReleaseRepository(setupTestStore(t)),
		"sqlite": setupSQLite(t),
		"memory": NewMemoryReleaseRepository(),
	}
}

func variant(res domain.Resolution, size string) domain.QualityVariant {
	return domain.QualityVariant{Resolution: res, Size: size, Filename: "Movie.X." + string(res) + ".mkv"}
}

func TestReleaseRepository_Get(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Get(context.Background(), "missing_noyear")
			if !errors.Is(err, domain.ErrReleaseNotFound) {
				t.Errorf("Get() error = %v, want ErrReleaseNotFound", err)
			}
		})
	}
}

func TestReleaseRepository_Append(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			req := domain.AppendRequest{
				Key:       "movie-x_2020",
				Title:     "Movie X",
				Year:      2020,
				PosterURL: "https://img/first.jpg",
				Variants:  []domain.QualityVariant{variant(domain.Resolution720p, "700MB")},
			}

			created, err := repo.Append(ctx, req)
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if len(created.Variants) != 1 || created.PosterURL != "https://img/first.jpg" {
				t.Fatalf("Append() created = %+v", created)
			}

			req.PosterURL = "https://img/second.jpg"
			req.Variants = []domain.QualityVariant{
				variant(domain.Resolution720p, "700MB"),
				variant(domain.Resolution1080p, "1.4GB"),
			}
			if _, err := repo.Append(ctx, req); err != nil {
				t.Fatalf("Append() second error = %v", err)
			}

			got, err := repo.Get(ctx, "movie-x_2020")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if len(got.Variants) != 2 {
				t.Errorf("len(Variants) = %d, want 2", len(got.Variants))
			}
			if got.PosterURL != "https://img/first.jpg" {
				t.Errorf("PosterURL = %s, want first poster kept", got.PosterURL)
			}
			if got.Title != "Movie X" || got.Year != 2020 {
				t.Errorf("Title/Year = %s/%d", got.Title, got.Year)
			}
		})
	}
}

func TestReleaseRepository_AppendInvalid(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Append(context.Background(), domain.AppendRequest{})
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Append() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestReleaseRepository_ConcurrentAppend(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 8

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					req := domain.AppendRequest{
						Key:      "race_2020",
						Title:    "Race",
						Year:     2020,
						Variants: []domain.QualityVariant{variant(domain.Resolution720p, fmt.Sprintf("%dMB", 100+i))},
					}
					if _, err := repo.Append(ctx, req); err != nil {
						t.Errorf("Append() error = %v", err)
					}
				}(i)
			}
			wg.Wait()

			got, err := repo.Get(ctx, "race_2020")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if len(got.Variants) != writers {
				t.Errorf("len(Variants) = %d, want %d", len(got.Variants), writers)
			}
		})
	}
}

func TestReleaseRepository_RecordAnnouncement(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref := domain.AnnouncementRef{ChatID: -1001, MessageID: 42, Kind: domain.AnnouncementPhoto}

			if _, err := repo.RecordAnnouncement(ctx, "movie-x_2020", ref, "d1"); !errors.Is(err, domain.ErrReleaseNotFound) {
				t.Fatalf("RecordAnnouncement() on missing = %v, want ErrReleaseNotFound", err)
			}

			if _, err := repo.Append(ctx, domain.AppendRequest{Key: "movie-x_2020", Title: "Movie X", Year: 2020}); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			got, err := repo.RecordAnnouncement(ctx, "movie-x_2020", ref, "d1")
			if err != nil {
				t.Fatalf("RecordAnnouncement() error = %v", err)
			}
			if got.Announcement == nil || got.Announcement.MessageID != 42 || got.CaptionDigest != "d1" {
				t.Errorf("RecordAnnouncement() = %+v", got)
			}

			other := ref
			other.MessageID = 43
			if _, err := repo.RecordAnnouncement(ctx, "movie-x_2020", other, "d2"); !errors.Is(err, domain.ErrAnnouncementConflict) {
				t.Errorf("RecordAnnouncement() second ref = %v, want ErrAnnouncementConflict", err)
			}

			if err := repo.RecordCaption(ctx, "movie-x_2020", "d3"); err != nil {
				t.Fatalf("RecordCaption() error = %v", err)
			}
			stored, err := repo.Get(ctx, "movie-x_2020")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if stored.Announcement == nil || stored.Announcement.MessageID != 42 {
				t.Errorf("Announcement = %+v, want message 42", stored.Announcement)
			}
			if stored.CaptionDigest != "d3" {
				t.Errorf("CaptionDigest = %s, want d3", stored.CaptionDigest)
			}
		})
	}
}

func TestReleaseRepository_List(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []domain.GroupKey{"a_2020", "b_2021", "c_noyear"} {
				if _, err := repo.Append(ctx, domain.AppendRequest{Key: key, Title: string(key)}); err != nil {
					t.Fatalf("Append() error = %v", err)
				}
			}

			records, err := repo.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(records) != 3 {
				t.Errorf("len(List()) = %d, want 3", len(records))
			}
		})
	}
}

func TestReleaseRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := repo.Get(ctx, "a_2020"); !errors.Is(err, context.Canceled) {
				t.Errorf("Get() error = %v, want context.Canceled", err)
			}
			if _, err := repo.Append(ctx, domain.AppendRequest{Key: "a_2020"}); !errors.Is(err, context.Canceled) {
				t.Errorf("Append() error = %v, want context.Canceled", err)
			}
		})
	}
}
