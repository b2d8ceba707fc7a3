package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/docsync/internal/ai"
	cfgpkg "github.com/KaramelBytes/docsync/internal/config"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog used for cost estimates",
	Example: `  docsync models show
  docsync models sync --file ./models.json
  docsync models sync --file ./models.json --save`,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ai.Catalog())
	},
}

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge model pricing from a JSON file",
	Long: `Merge a JSON object of model name to pricing into the catalog. With --save the file
is recorded as models_catalog so every later run loads it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		save, _ := cmd.Flags().GetBool("save")
		if path == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(path)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		ai.MergeCatalog(m)
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %d model(s) from %s\n", len(m), path)
		if !save {
			return nil
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		c.ModelsCatalog = abs
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ models_catalog set to %s\n", abs)
		return nil
	},
}

func init() {
	modelsSyncCmd.Flags().String("file", "", "path to models JSON (map of name -> pricing)")
	modelsSyncCmd.Flags().Bool("save", false, "remember the file as models_catalog")
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	rootCmd.AddCommand(modelsCmd)
}
