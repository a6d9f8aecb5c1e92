package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/snappy-loop/feeled/internal/catalog"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Print the selectable grades, languages, tones and narrator voices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("catalog")
		cat, err := catalog.Load(path)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cat)
		if err != nil {
			return fmt.Errorf("encode catalog: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	optionsCmd.Flags().String("catalog", cfg.CatalogPath, "catalog YAML file (default: built-in)")
	rootCmd.AddCommand(optionsCmd)
}
