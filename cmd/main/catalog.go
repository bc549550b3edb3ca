package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"noprime/redirector/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Brand catalog tools",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a brand catalog document; no file checks the built-in one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogValidate,
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	c, err := catalog.Load(path)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"valid":   true,
		"version": c.Version(),
		"brands":  c.Len(),
		"aliases": len(c.Aliases()),
	})
}
