// Package source retrieves the full text of the documents docsync digests.
package source

import (
	"context"
	"errors"
)

// ErrRetrieval wraps every failure to fetch a document's text.
var ErrRetrieval = errors.New("document retrieval failed")

// Document is a fetched document. It is not modified after Fetch returns.
type Document struct {
	ID   string
	Text string
}

// Source fetches a document by identifier.
type Source interface {
	Fetch(ctx context.Context, id string) (Document, error)
}
