package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/docsync/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the digest cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached digest counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openCache()
		if err != nil {
			return err
		}
		defer st.Close()
		s, err := st.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nDocuments: %d\nDir: %s\n", s.Entries, s.Documents, cfg.CacheDir)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openCache()
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := st.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d cached digest(s)\n", n)
		return nil
	},
}

func openCache() (*cache.Store, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	return cache.Open(c.CacheDir)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
