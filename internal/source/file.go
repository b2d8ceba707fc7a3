package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/docsync/internal/parser"
)

// FileSource reads documents from disk. Relative ids resolve against Dir.
type FileSource struct {
	Dir string
}

func (s FileSource) Fetch(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	path := strings.TrimSpace(id)
	if path == "" {
		return Document{}, fmt.Errorf("%w: empty path", ErrRetrieval)
	}
	if !filepath.IsAbs(path) && s.Dir != "" {
		path = filepath.Join(s.Dir, path)
	}
	text, err := parser.ParseFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", ErrRetrieval, id, err)
	}
	return Document{ID: id, Text: text}, nil
}
