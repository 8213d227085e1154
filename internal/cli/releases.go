package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/amaumene/autopost/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "releases [key]",
		Short: "List stored releases, or show one with its caption",
		Args:  cobra.MaximumNArgs(1),
		Run:   runReleases,
	}

	cmd.Flags().String("bot", "", "File store bot used for the caption deep link (default: $FILE_STORE_BOT)")
	cmd.Flags().Bool("keys-only", false, "Only output group keys")

	RootCmd.AddCommand(cmd)
}

func runReleases(cmd *cobra.Command, args []string) {
	bot, _ := cmd.Flags().GetString("bot")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	stores, err := openStores()
	if err != nil {
		exitErr("open store", err)
	}
	defer stores.Close()

	if len(args) == 1 {
		showRelease(cmd, stores.Releases, domain.GroupKey(args[0]), bot)
		return
	}

	records, err := stores.Releases.List(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	if keysOnly {
		for _, r := range records {
			fmt.Println(r.Key)
		}
		return
	}

	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}

func showRelease(cmd *cobra.Command, repo domain.ReleaseRepository, key domain.GroupKey, bot string) {
	record, err := repo.Get(cmd.Context(), key)
	if err != nil {
		exitErr("get", err)
	}

	if bot == "" {
		bot = os.Getenv("FILE_STORE_BOT")
	}

	b, _ := json.MarshalIndent(record, "", "  ")
	fmt.Println(string(b))
	fmt.Println()
	fmt.Println(service.BuildCaption(record, bot))
}
