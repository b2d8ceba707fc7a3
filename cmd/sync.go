package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/docsync/internal/plan"
	"github.com/KaramelBytes/docsync/internal/runlog"
	"github.com/KaramelBytes/docsync/internal/utils"
)

var syncCmd = &cobra.Command{
	Use:   "sync [ids...]",
	Short: "Digest documents, draft a change plan and write the allowed files",
	Long: `Run the digest pipeline, ask the model for a change plan built from the bundle and
write each proposed file under --root. Only paths starting with an --allow prefix
(or an allowlist entry from the config) are written; an empty allowlist permits any
relative path. Absolute paths and paths containing '..' are always refused.`,
	Example: `  docsync sync ./specs/auth.md --allow internal/auth/ --allow docs/
  docsync sync --dry-run --plan-out plan.yaml --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := requireConfig()
		if err != nil {
			return err
		}
		c, err := withFlags(base, cmd.Flags())
		if err != nil {
			return err
		}
		ids, err := resolveIDs(args, c)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		root, _ := f.GetString("root")
		dry, _ := f.GetBool("dry-run")
		planOut, _ := f.GetString("plan-out")
		format, _ := f.GetString("format")
		allow := c.Allowlist
		if f.Changed("allow") {
			allow, _ = f.GetStringSlice("allow")
		}
		if format != "json" && format != "yaml" {
			return fmt.Errorf("unsupported --format: %s (use json|yaml)", format)
		}

		a, err := newApp(c, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()
		out := cmd.OutOrStdout()

		rec := runlog.New("sync", a.model, a.pipeline.Options)
		rec.DryRun = dry
		ctx := contextOf(cmd)
		bundle, rep, err := a.pipeline.Run(ctx, ids)
		if err != nil {
			return err
		}
		rec.Report = rep
		printReport(out, rep, a)

		synth := &plan.Synthesizer{LLM: a.llm, Temperature: c.Temperature, Logger: a.logger}
		p := synth.Synthesize(ctx, bundle.Bytes(), allow)
		rec.Notes = p.Notes

		if planOut != "" {
			if err := writePlan(planOut, p, format); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Plan saved to %s\n", planOut)
		}

		w := &plan.Writer{Root: root, Allow: allow, DryRun: dry, Logger: a.logger}
		written, werr := w.Apply(p)
		rec.Written = written
		printWritten(out, written, dry)
		if p.Notes != "" {
			fmt.Fprintf(out, "\nNotes:\n%s\n", p.Notes)
		}
		if len(p.Files) == 0 {
			if err := a.llm.First(); err != nil {
				fmt.Fprintf(out, "⚠ %v\n", explainAIError(err, a.provider, a.model))
			}
		}
		saveRecord(out, rec, c.RunsDir, a)
		return werr
	},
}

func init() {
	f := syncCmd.Flags()
	f.StringSlice("allow", nil, "path prefix the plan may write under (repeatable; overrides allowlist)")
	f.String("root", ".", "directory the plan's relative paths are written under")
	f.Bool("dry-run", false, "draft the plan but write nothing")
	f.String("plan-out", "", "also save the raw plan to this file")
	f.String("format", "json", "format for --plan-out: json|yaml")
	addPipelineFlags(f)
	rootCmd.AddCommand(syncCmd)
}

func writePlan(path string, p plan.ChangePlan, format string) error {
	var (
		b   []byte
		err error
	)
	switch format {
	case "yaml":
		b, err = yaml.Marshal(p)
	default:
		b, err = json.MarshalIndent(p, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

func printWritten(w io.Writer, written []string, dry bool) {
	if len(written) == 0 {
		fmt.Fprintln(w, "No files written (maybe all proposed paths were outside allowlist?)")
		return
	}
	if dry {
		fmt.Fprintln(w, "Would write files:")
	} else {
		fmt.Fprintln(w, "Wrote files:")
	}
	for _, p := range written {
		fmt.Fprintf(w, "- %s\n", p)
	}
}
