package app

import (
	"fmt"
	"os"
	"time"

	"github.com/amaumene/autopost/internal/config"
	"github.com/amaumene/autopost/internal/domain"
	"github.com/amaumene/autopost/internal/storage"
	"github.com/timshannon/bolthold"
	bolt "go.etcd.io/bbolt"
)

// dbOpenTimeout bounds the wait for the bolt file lock held by a running server.
const dbOpenTimeout = 5 * time.Second

// Stores are the persistence backends chosen by STORE_DRIVER. The settle
// queue lives in bolt for both bolt and sqlite release stores.
type Stores struct {
	Bolt     *bolthold.Store
	Releases domain.ReleaseRepository
	Queue    domain.SettleQueue
}

func OpenStores(cfg *config.Config) (*Stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return &Stores{
			Releases: storage.NewMemoryReleaseRepository(),
			Queue:    storage.NewMemorySettleQueue(),
		}, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	store, err := bolthold.Open(cfg.DBPath(), cfg.DBFilePermissions, &bolthold.Options{
		Options: &bolt.Options{Timeout: dbOpenTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	stores := &Stores{
		Bolt:  store,
		Queue: storage.NewSettleQueue(store),
	}

	switch cfg.StoreDriver {
	case config.StoreSQLite:
		repo, err := storage.NewSQLiteReleaseRepository(cfg.SQLitePath())
		if err != nil {
			store.Close()
			return nil, err
		}
		stores.Releases = repo
	default:
		stores.Releases = storage.NewReleaseRepository(store)
	}
	return stores, nil
}

// Close closes the release store and the bolt file. The bolt release
// repository shares the bolt file, so it is closed only once.
func (s *Stores) Close() error {
	if s.Bolt == nil {
		return s.Releases.Close()
	}
	if _, separate := s.Releases.(*storage.SQLiteReleaseRepository); separate {
		if err := s.Releases.Close(); err != nil {
			s.Bolt.Close()
			return err
		}
	}
	return s.Bolt.Close()
}
