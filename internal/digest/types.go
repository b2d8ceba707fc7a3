// Package digest turns long documents into a bounded, structured bundle:
// windows are summarized independently (map), merged per document (reduce),
// and the per-document digests are packed under a byte ceiling (aggregate).
package digest

import "context"

// Window is a contiguous slice of a document's text. Start and End are byte
// offsets into the owning document.
type Window struct {
	Index int    `json:"index"`
	Text  string `json:"-"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// FileHint names a file the document suggests touching and why.
type FileHint struct {
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

// PartialSummary is the structured summary of a single window.
type PartialSummary struct {
	Highlights    []string   `json:"highlights"`
	Requirements  []string   `json:"requirements"`
	Constraints   []string   `json:"constraints"`
	Entities      []string   `json:"entities"`
	FileHints     []FileHint `json:"fileHints"`
	OpenQuestions []string   `json:"openQuestions"`

	// Degraded is set when the summary was built from a failed or unparseable
	// model response rather than from structured output.
	Degraded bool `json:"-"`
}

// DocumentDigest is the reduced summary of one document.
type DocumentDigest struct {
	DocID         string     `json:"docId"`
	Title         string     `json:"title"`
	Highlights    []string   `json:"highlights"`
	Requirements  []string   `json:"requirements"`
	Constraints   []string   `json:"constraints"`
	Entities      []string   `json:"entities"`
	FileHints     []FileHint `json:"fileHints"`
	OpenQuestions []string   `json:"openQuestions"`
	Windows       int        `json:"windows,omitempty"`
	Degraded      bool       `json:"degraded,omitempty"`
}

// Position tells the summarizer where a window sits within its document.
type Position struct {
	Index int
	Total int
}

// Completer is the text-generation capability the map and reduce steps call.
// It takes a system instruction and a user input and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, system, input string, temperature float64) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, input string, temperature float64) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, input string, temperature float64) (string, error) {
	return f(ctx, system, input, temperature)
}

func emptyPartial() PartialSummary {
	return PartialSummary{
		Highlights:    []string{},
		Requirements:  []string{},
		Constraints:   []string{},
		Entities:      []string{},
		FileHints:     []FileHint{},
		OpenQuestions: []string{},
	}
}

// normalizeNil replaces nil slices with empty ones so the JSON form always
// carries arrays rather than nulls.
func (p PartialSummary) normalizeNil() PartialSummary {
	if p.Highlights == nil {
		p.Highlights = []string{}
	}
	if p.Requirements == nil {
		p.Requirements = []string{}
	}
	if p.Constraints == nil {
		p.Constraints = []string{}
	}
	if p.Entities == nil {
		p.Entities = []string{}
	}
	if p.FileHints == nil {
		p.FileHints = []FileHint{}
	}
	if p.OpenQuestions == nil {
		p.OpenQuestions = []string{}
	}
	return p
}
