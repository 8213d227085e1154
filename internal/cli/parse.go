package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/amaumene/autopost/internal/groupkey"
	"github.com/amaumene/autopost/internal/parser"
	"github.com/spf13/cobra"
)

type parseResult struct {
	Filename string           `json:"filename"`
	Key      domain.GroupKey  `json:"key"`
	Meta     domain.MovieMeta `json:"meta"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "parse <filename>...",
		Short: "Show the metadata and group key derived from filenames",
		Args:  cobra.MinimumNArgs(1),
		Run:   runParse,
	}

	cmd.Flags().StringSliceP("lang", "l", nil, "Extra language spelling=Name (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runParse(cmd *cobra.Command, args []string) {
	pairs, _ := cmd.Flags().GetStringSlice("lang")

	extra := make(map[string]string)
	for _, pair := range pairs {
		spelling, name, ok := strings.Cut(pair, "=")
		if !ok || spelling == "" || name == "" {
			exitErr("parse", fmt.Errorf("invalid language %q, want spelling=Name", pair))
		}
		extra[spelling] = name
	}

	p := parser.New(parser.WithLanguages(extra))
	results := make([]parseResult, 0, len(args))
	for _, filename := range args {
		meta := p.Parse(filename)
		results = append(results, parseResult{
			Filename: filename,
			Key:      groupkey.Derive(meta),
			Meta:     meta,
		})
	}

	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
