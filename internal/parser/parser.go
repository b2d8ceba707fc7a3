// Package parser extracts plain text from the document formats docsync reads
// from disk or receives over HTTP.
package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Parser converts one document format to plain text.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte) (string, error)
}

var registry []Parser

// Register adds a parser implementation to the registry. Earlier
// registrations win when several parsers accept the same name.
func Register(p Parser) {
	registry = append(registry, p)
}

// ParseFile reads path and returns its text using the first parser that
// accepts the file name. Unknown extensions are read as plain text.
func ParseFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return ParseBytes(path, data)
}

// ParseBytes parses already-loaded content, selecting the parser by name.
func ParseBytes(name string, data []byte) (string, error) {
	for _, p := range registry {
		if p.CanParse(name) {
			return p.Parse(data)
		}
	}
	return normalizeNewlines(string(data)), nil
}

// normalizeNewlines converts CRLF/CR to LF and collapses runs of blank lines
// to a single blank line.
func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

func init() {
	Register(txtParser{})
	Register(markdownParser{})
	Register(docxParser{})
}

// ErrUnsupported indicates a format that cannot be turned into text.
var ErrUnsupported = errors.New("unsupported document format")
