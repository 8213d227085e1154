package cli

import (
	"github.com/amaumene/autopost/internal/app"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest, settle and publish loop",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	application, err := app.New()
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}

	if err := application.Run(cmd.Context()); err != nil {
		log.WithError(err).Fatal("Application failed")
	}
}
