package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/KaramelBytes/docsync/internal/parser"
)

// DefaultURLTemplate exports a Google Doc as plain text.
const DefaultURLTemplate = "https://www.googleapis.com/drive/v3/files/{id}/export?mimeType=text/plain"

// maxBody caps a single fetched document.
const maxBody = 32 << 20

// HTTPSource fetches documents over HTTP. The id replaces "{id}" in
// URLTemplate (path-escaped); an id that is already an absolute http(s) URL
// is fetched as-is. Token is only sent to the template's host.
type HTTPSource struct {
	URLTemplate string
	Token       string
	Client      *http.Client
	// MaxBytes caps the body; zero means 32 MiB. Larger bodies are an error.
	MaxBytes int64
}

// NewHTTPSource returns an HTTPSource with a client bounded by timeout.
func NewHTTPSource(tmpl, token string, timeout time.Duration) *HTTPSource {
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSource{URLTemplate: tmpl, Token: token, Client: &http.Client{Timeout: timeout}}
}

// URLFor returns the URL fetched for id.
func (s *HTTPSource) URLFor(id string) string {
	if isHTTPURL(id) {
		return id
	}
	tmpl := s.URLTemplate
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	return strings.ReplaceAll(tmpl, "{id}", url.PathEscape(id))
}

func (s *HTTPSource) Fetch(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, fmt.Errorf("%w: empty id", ErrRetrieval)
	}
	endpoint := s.URLFor(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Document{}, fmt.Errorf("%w: build request: %v", ErrRetrieval, err)
	}
	if s.Token != "" && s.trusted(req.URL) {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	req.Header.Set("Accept", "text/plain, text/markdown, */*")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", ErrRetrieval, id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Document{}, fmt.Errorf("%w: %s: status=%d body=%s", ErrRetrieval, id, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	limit := s.MaxBytes
	if limit <= 0 {
		limit = maxBody
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: read body: %v", ErrRetrieval, id, err)
	}
	if int64(len(data)) > limit {
		return Document{}, fmt.Errorf("%w: %s: body exceeds %d bytes", ErrRetrieval, id, limit)
	}
	text, err := parser.ParseBytes(nameHint(endpoint), data)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", ErrRetrieval, id, err)
	}
	return Document{ID: id, Text: text}, nil
}

// trusted reports whether u points at the same scheme and host as the URL
// template, the only place the bearer token belongs.
func (s *HTTPSource) trusted(u *url.URL) bool {
	tmpl := s.URLTemplate
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	t, err := url.Parse(strings.ReplaceAll(tmpl, "{id}", "x"))
	if err != nil {
		return false
	}
	return strings.EqualFold(t.Scheme, u.Scheme) && strings.EqualFold(t.Host, u.Host)
}

// nameHint picks a file name for parser selection from the URL path.
func nameHint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
