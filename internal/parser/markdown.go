package parser

import "strings"

type markdownParser struct{}

func (markdownParser) CanParse(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown")
}

// Parse keeps markdown as-is apart from line-ending cleanup; headings and
// lists carry meaning for the summarizer.
func (markdownParser) Parse(content []byte) (string, error) {
	return normalizeNewlines(string(content)), nil
}
