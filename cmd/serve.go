package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/docsync/internal/plan"
	"github.com/KaramelBytes/docsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the digest tools over MCP (stdio)",
	Long: `Start an MCP server on stdin/stdout exposing digest_documents and plan_changes.
Logs go to stderr; stdout carries only protocol frames.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := requireConfig()
		if err != nil {
			return err
		}
		c, err := withFlags(base, cmd.Flags())
		if err != nil {
			return err
		}
		a, err := newApp(c, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.Info("mcp server starting", "provider", a.provider, "model", a.model, "default_docs", len(c.DocIDs))
		s := server.New(server.Deps{
			Pipeline:    a.pipeline,
			Synthesizer: &plan.Synthesizer{LLM: a.llm, Temperature: c.Temperature, Logger: a.logger},
			Allow:       c.Allowlist,
			DefaultIDs:  c.DocIDs,
		})
		return server.Serve(s)
	},
}

func init() {
	addPipelineFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}
