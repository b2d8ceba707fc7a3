package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/KaramelBytes/docsync/internal/digest"
	"github.com/KaramelBytes/docsync/internal/plan"
)

// DigestTool handles digest_documents.
type DigestTool struct {
	pipeline   *digest.Pipeline
	defaultIDs []string
}

func NewDigestTool(p *digest.Pipeline, defaultIDs []string) *DigestTool {
	return &DigestTool{pipeline: p, defaultIDs: defaultIDs}
}

func (t *DigestTool) Definition() mcp.Tool {
	return mcp.NewTool("digest_documents",
		mcp.WithDescription("Fetch documents, summarize them window by window and return the size-bounded digest bundle as JSON."),
		mcp.WithString("documents",
			mcp.Description("Comma-separated document ids (file:path, drive:id, URL or bare id). Defaults to the configured doc_ids."),
		),
		mcp.WithNumber("max_bytes",
			mcp.Description("Byte ceiling for the bundle (default: configured bundle_max_bytes)"),
		),
	)
}

func (t *DigestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := idsArg(req, t.defaultIDs)
	if len(ids) == 0 {
		return mcp.NewToolResultError("'documents' is required (no doc_ids configured)"), nil
	}
	p := withCeiling(t.pipeline, req)
	b, rep, err := p.Run(ctx, ids)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("digest failed: %v", err)), nil
	}
	// The first item is always the bare bundle so clients can parse it as
	// JSON; warnings travel in a separate item.
	res := mcp.NewToolResultText(string(b.Bytes()))
	if note := reportNote(rep); note != "" {
		res.Content = append(res.Content, mcp.NewTextContent(note))
	}
	return res, nil
}

// PlanTool handles plan_changes.
type PlanTool struct {
	pipeline   *digest.Pipeline
	synth      *plan.Synthesizer
	allow      []string
	defaultIDs []string
}

func NewPlanTool(p *digest.Pipeline, s *plan.Synthesizer, allow, defaultIDs []string) *PlanTool {
	return &PlanTool{pipeline: p, synth: s, allow: allow, defaultIDs: defaultIDs}
}

func (t *PlanTool) Definition() mcp.Tool {
	return mcp.NewTool("plan_changes",
		mcp.WithDescription("Digest documents and draft a JSON change plan ({files, notes}) restricted to the allowed path prefixes. Files are not written."),
		mcp.WithString("documents",
			mcp.Description("Comma-separated document ids. Defaults to the configured doc_ids."),
		),
		mcp.WithString("allow",
			mcp.Description("Comma-separated allowed path prefixes (default: configured allowlist)"),
		),
		mcp.WithNumber("max_bytes",
			mcp.Description("Byte ceiling for the digest bundle"),
		),
	)
}

func (t *PlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := idsArg(req, t.defaultIDs)
	if len(ids) == 0 {
		return mcp.NewToolResultError("'documents' is required (no doc_ids configured)"), nil
	}
	allow := t.allow
	if v := splitArg(req.GetString("allow", "")); len(v) > 0 {
		allow = v
	}
	b, _, err := withCeiling(t.pipeline, req).Run(ctx, ids)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("digest failed: %v", err)), nil
	}
	cp := t.synth.Synthesize(ctx, b.Bytes(), allow)
	// Report only what the writer would accept.
	kept := cp.Files[:0:0]
	for _, f := range cp.Files {
		if rel, reason := plan.Accept(f.Path, allow); reason == "" {
			f.Path = rel
			kept = append(kept, f)
		}
	}
	cp.Files = kept
	out, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode plan: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func idsArg(req mcp.CallToolRequest, fallback []string) []string {
	if ids := splitArg(req.GetString("documents", "")); len(ids) > 0 {
		return ids
	}
	return fallback
}

func splitArg(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// withCeiling returns a copy of p with max_bytes applied when given.
func withCeiling(p *digest.Pipeline, req mcp.CallToolRequest) *digest.Pipeline {
	n := int(req.GetFloat("max_bytes", 0))
	if n <= 0 {
		return p
	}
	cp := *p
	cp.Options.BundleMaxBytes = n
	return &cp
}

func reportNote(rep digest.Report) string {
	var notes []string
	if n := rep.Degradations(); n > 0 {
		notes = append(notes, fmt.Sprintf("%d window(s) degraded", n))
	}
	if rep.Dropped > 0 {
		notes = append(notes, fmt.Sprintf("%d digest(s) dropped to fit the byte ceiling", rep.Dropped))
	}
	if rep.Overflow {
		notes = append(notes, "byte ceiling too small for any digest")
	}
	for _, d := range rep.Documents {
		if d.Err != "" {
			notes = append(notes, fmt.Sprintf("%s skipped: %s", d.DocID, d.Err))
		}
	}
	if len(notes) == 0 {
		return ""
	}
	return "Warnings: " + strings.Join(notes, "; ")
}
