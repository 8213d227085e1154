// Package cli implements the autopost commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/amaumene/autopost/internal/app"
	"github.com/amaumene/autopost/internal/config"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	storeDriver string
)

// RootCmd is the top-level command. Without a subcommand it runs the service.
var RootCmd = &cobra.Command{
	Use:   "autopost",
	Short: "Announce movie uploads from a Telegram channel",
	Long:  "Watches a source channel for movie files, groups them per title and year, and keeps one announcement per movie in the destination channel.",
	Run:   runServe,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: $DATA_DIR or .)")
	RootCmd.PersistentFlags().StringVar(&storeDriver, "driver", "", "Store driver: bolt, sqlite or memory (default: $STORE_DRIVER or bolt)")
}

func storageConfig() (*config.Config, error) {
	cfg, err := config.LoadStorage()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if storeDriver != "" {
		cfg.StoreDriver = strings.ToLower(storeDriver)
	}
	return cfg, nil
}

func openStores() (*app.Stores, error) {
	cfg, err := storageConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenStores(cfg)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
