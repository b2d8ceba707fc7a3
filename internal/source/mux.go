package source

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Mux routes ids to a source by prefix: "file:" reads from disk, "drive:"
// uses the URL template, and absolute http(s) URLs are fetched directly.
// Anything else goes to Default, unless PreferLocal is set and the id names
// an existing regular file.
type Mux struct {
	Files       Source
	Remote      Source
	Default     Source
	PreferLocal bool
}

func (m Mux) Fetch(ctx context.Context, id string) (Document, error) {
	var (
		src Source
		key = id
	)
	switch {
	case strings.HasPrefix(id, "file:"):
		src, key = m.Files, strings.TrimPrefix(id, "file:")
	case strings.HasPrefix(id, "drive:"):
		src, key = m.Remote, strings.TrimPrefix(id, "drive:")
	case isHTTPURL(id):
		src = m.Remote
	case m.PreferLocal && m.Files != nil && isFile(id):
		src = m.Files
	default:
		src = m.Default
	}
	if src == nil {
		return Document{}, fmt.Errorf("%w: no source configured for %q", ErrRetrieval, id)
	}
	doc, err := src.Fetch(ctx, key)
	if err != nil {
		return Document{}, err
	}
	doc.ID = id
	return doc, nil
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
