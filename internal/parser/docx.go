package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

type docxParser struct{}

var (
	docxParaEnd = regexp.MustCompile(`</w:p>`)
	xmlTag      = regexp.MustCompile(`<[^>]+>`)
)

func (docxParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".docx")
}

// Parse pulls word/document.xml out of the archive and strips markup,
// keeping one line per paragraph.
func (docxParser) Parse(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		text := docxParaEnd.ReplaceAllString(string(b), "\n")
		text = xmlTag.ReplaceAllString(text, "")
		text = unescapeXML(text)
		return strings.TrimSpace(normalizeNewlines(text)), nil
	}
	return "", fmt.Errorf("%w: document.xml not found in DOCX", ErrUnsupported)
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string { return xmlEntities.Replace(s) }
