// Package server exposes the digest pipeline as MCP tools over stdio.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/KaramelBytes/docsync/internal/digest"
	"github.com/KaramelBytes/docsync/internal/plan"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps are the components the tools call into.
type Deps struct {
	Pipeline    *digest.Pipeline
	Synthesizer *plan.Synthesizer
	Allow       []string
	DefaultIDs  []string
}

// New builds an MCP server with the docsync tools registered.
func New(d Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"docsync",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("docsync digests long specification documents into a bounded JSON bundle "+
			"and can draft a file change plan from it. Call digest_documents first; plan_changes "+
			"runs the digest itself and never writes files."),
	)

	dt := NewDigestTool(d.Pipeline, d.DefaultIDs)
	s.AddTool(dt.Definition(), dt.Handle)

	if d.Synthesizer != nil {
		pt := NewPlanTool(d.Pipeline, d.Synthesizer, d.Allow, d.DefaultIDs)
		s.AddTool(pt.Definition(), pt.Handle)
	}
	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
