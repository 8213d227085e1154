package cli

import (
	"testing"

	"github.com/amaumene/autopost/internal/config"
)

func TestStorageConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/env/dir")
	t.Setenv("STORE_DRIVER", "bolt")

	tests := []struct {
		name       string
		dir        string
		driver     string
		wantDir    string
		wantDriver string
	}{
		{name: "env", wantDir: "/env/dir", wantDriver: config.StoreBolt},
		{name: "flags", dir: "/flag/dir", driver: "SQLite", wantDir: "/flag/dir", wantDriver: config.StoreSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir, storeDriver = tt.dir, tt.driver
			t.Cleanup(func() { dataDir, storeDriver = "", "" })

			cfg, err := storageConfig()
			if err != nil {
				t.Fatalf("storageConfig() error = %v", err)
			}
			if cfg.DataDir != tt.wantDir {
				t.Errorf("DataDir = %s, want %s", cfg.DataDir, tt.wantDir)
			}
			if cfg.StoreDriver != tt.wantDriver {
				t.Errorf("StoreDriver = %s, want %s", cfg.StoreDriver, tt.wantDriver)
			}
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	for _, name := range []string{"serve", "parse", "releases", "pending"} {
		cmd, _, err := RootCmd.Find([]string{name})
		if err != nil {
			t.Errorf("Find(%q) error = %v", name, err)
			continue
		}
		if cmd.Name() != name {
			t.Errorf("Find(%q) = %s", name, cmd.Name())
		}
	}
}
