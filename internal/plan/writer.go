package plan

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/docsync/internal/utils"
)

// Writer applies a ChangePlan under Root, writing only paths that begin with
// one of the Allow prefixes. An empty allowlist permits every relative path.
type Writer struct {
	Root   string
	Allow  []string
	DryRun bool
	Logger *slog.Logger
}

// Apply writes the permitted files and returns their cleaned paths in plan
// order. Rejected entries are skipped, not reported as errors. A failed write
// stops the run and returns the paths written so far.
func (w *Writer) Apply(p ChangePlan) ([]string, error) {
	log := w.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("comp", "writer")

	written := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		rel, reason := Accept(f.Path, w.Allow)
		if reason != "" {
			log.Debug("file skipped", "path", f.Path, "reason", reason)
			continue
		}
		if w.DryRun {
			written = append(written, rel)
			continue
		}
		dst := filepath.Join(w.Root, filepath.FromSlash(rel))
		if err := utils.EnsureDir(filepath.Dir(dst)); err != nil {
			return written, fmt.Errorf("create dir for %s: %w", rel, err)
		}
		if err := utils.SafeWriteFile(dst, []byte(f.Content)); err != nil {
			return written, fmt.Errorf("write %s: %w", rel, err)
		}
		log.Debug("file written", "path", rel, "bytes", len(f.Content))
		written = append(written, rel)
	}
	return written, nil
}

// Accept applies the writer's path rules: it returns the cleaned path, or a
// non-empty reason the path would be skipped.
func Accept(raw string, allow []string) (string, string) {
	p := strings.TrimSpace(raw)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	switch {
	case p == "":
		return "", "empty path"
	case path.IsAbs(p) || filepath.IsAbs(p) || filepath.VolumeName(p) != "":
		return "", "absolute path"
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", "parent traversal"
		}
	}
	if !Allowed(p, allow) {
		return "", "outside allowlist"
	}
	return p, ""
}

// Allowed reports whether p starts with one of the prefixes. No prefixes
// means no restriction.
func Allowed(p string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, prefix := range allow {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
