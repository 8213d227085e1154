package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List settles waiting in the retry queue",
		Run:   runPending,
	}

	RootCmd.AddCommand(cmd)
}

func runPending(cmd *cobra.Command, args []string) {
	stores, err := openStores()
	if err != nil {
		exitErr("open store", err)
	}
	defer stores.Close()

	entries, err := stores.Queue.List(cmd.Context())
	if err != nil {
		exitErr("list pending", err)
	}

	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}
