package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/docsync/internal/ai"
	"github.com/KaramelBytes/docsync/internal/digest"
	"github.com/KaramelBytes/docsync/internal/runlog"
	"github.com/KaramelBytes/docsync/internal/source"
	"github.com/KaramelBytes/docsync/internal/utils"
)

var digestCmd = &cobra.Command{
	Use:   "digest [ids...]",
	Short: "Digest documents into a size-bounded JSON bundle",
	Long: `Fetch each document, summarize it window by window, merge the partial summaries and
pack the per-document digests into one JSON bundle no larger than --max-bytes.

Ids may be local paths, file:<path>, drive:<id>, http(s) URLs or bare ids resolved
through source_url_template. Without arguments, doc_ids from the config is used.`,
	Example: `  docsync digest ./specs/auth.md ./specs/billing.docx
  docsync digest 1AbCdEf --max-bytes 50000 -o bundle.json
  docsync digest --dry-run --window-size 8000`,
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
		out, _ := cmd.Flags().GetString("output")
		dry, _ := cmd.Flags().GetBool("dry-run")

		if dry {
			opts := c.DigestOptions()
			opts.Model = selectModel(c, c.DefaultModel)
			return estimateRun(contextOf(cmd), cmd.OutOrStdout(), buildSource(c), ids, opts, c.MaxTokens)
		}

		a, err := newApp(c, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		rec := runlog.New("digest", a.model, a.pipeline.Options)
		bundle, rep, err := a.pipeline.Run(contextOf(cmd), ids)
		if err != nil {
			return err
		}
		rec.Report = rep

		status := cmd.ErrOrStderr()
		if out != "" {
			if err := utils.SafeWriteFile(out, bundle.Bytes()); err != nil {
				return fmt.Errorf("write bundle: %w", err)
			}
			status = cmd.OutOrStdout()
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), string(bundle.Bytes()))
		}
		printReport(status, rep, a)
		if out != "" {
			fmt.Fprintf(status, "✓ Bundle written to %s (%d bytes)\n", out, rep.BundleBytes)
		}
		saveRecord(status, rec, c.RunsDir, a)
		return nil
	},
}

func init() {
	f := digestCmd.Flags()
	f.StringP("output", "o", "", "write the bundle to a file instead of stdout")
	f.Bool("dry-run", false, "fetch and window only; print window counts and an estimated cost")
	addPipelineFlags(f)
	rootCmd.AddCommand(digestCmd)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// estimateRun fetches and windows each document without calling a model.
// The cost is an upper bound: every window is assumed to use max_tokens.
func estimateRun(ctx context.Context, w io.Writer, src source.Source, ids []string, opts digest.Options, maxTokens int) error {
	windows, promptTokens := 0, 0
	for _, id := range ids {
		doc, err := src.Fetch(ctx, id)
		if err != nil {
			if !opts.SkipFailedFetch {
				return fmt.Errorf("fetch document %s: %w", id, err)
			}
			fmt.Fprintf(w, "⚠ %s: %v\n", id, err)
			continue
		}
		ws := digest.Windows(doc.Text, opts.WindowSize, opts.WindowOverlap, opts.MaxWindows)
		tok := 0
		for _, win := range ws {
			tok += utils.CountTokens(win.Text)
		}
		fmt.Fprintf(w, "%s: %d bytes, %d windows, ~%d tokens\n", doc.ID, len(doc.Text), len(ws), tok)
		windows += len(ws)
		promptTokens += tok
	}
	fmt.Fprintf(w, "Total: %d windows, ~%d prompt tokens\n", windows, promptTokens)
	if cost, ok := ai.EstimateCostUSD(opts.Model, promptTokens, windows*maxTokens); ok {
		fmt.Fprintf(w, "Estimated cost for %s: up to ~$%.4f\n", opts.Model, cost)
	} else {
		fmt.Fprintf(w, "⚠ No pricing known for %s (see 'docsync models show')\n", opts.Model)
	}
	return nil
}

func printReport(w io.Writer, rep digest.Report, a *app) {
	for _, d := range rep.Documents {
		switch {
		case d.Err != "":
			fmt.Fprintf(w, "✗ %s: skipped (%s)\n", d.DocID, d.Err)
		case d.Degraded:
			fmt.Fprintf(w, "⚠ %s: degraded, all %d windows failed\n", d.DocID, d.Windows)
		case len(d.DegradedWindows) > 0:
			fmt.Fprintf(w, "⚠ %s: %d windows, %d degraded\n", d.DocID, d.Windows, len(d.DegradedWindows))
		case d.Cached:
			fmt.Fprintf(w, "✓ %s: %d windows (cached)\n", d.DocID, d.Windows)
		default:
			fmt.Fprintf(w, "✓ %s: %d windows\n", d.DocID, d.Windows)
		}
	}
	if rep.Overflow {
		fmt.Fprintln(w, "⚠ Bundle ceiling too small for any digest; raise --max-bytes")
	} else if rep.Dropped > 0 {
		fmt.Fprintf(w, "⚠ %d trailing digest(s) dropped to fit the bundle ceiling\n", rep.Dropped)
	}
	if rep.Degradations() > 0 && a != nil {
		if err := a.llm.First(); err != nil {
			fmt.Fprintf(w, "⚠ %v\n", explainAIError(err, a.provider, a.model))
		}
	}
}

func saveRecord(w io.Writer, rec *runlog.Record, dir string, a *app) {
	rec.Finish()
	p, err := rec.Save(dir)
	if err != nil {
		a.logger.Warn("run record not saved", "err", err)
		return
	}
	fmt.Fprintf(w, "Run %s recorded at %s\n", rec.ID, p)
}
