package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/KaramelBytes/docsync/internal/source"
	"golang.org/x/sync/errgroup"
)

// Options carries every tuning knob of a run. It is built once by the caller
// and passed down; nothing in this package reads the environment.
type Options struct {
	WindowSize     int `json:"window_size" yaml:"window_size"`
	WindowOverlap  int `json:"window_overlap" yaml:"window_overlap"`
	MaxWindows     int `json:"max_windows" yaml:"max_windows"`
	BundleMaxBytes int `json:"bundle_max_bytes" yaml:"bundle_max_bytes"`
	// Concurrency bounds in-flight window summaries per document. 1 keeps
	// the run strictly sequential.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// Model is part of the cache key so digests from different models do
	// not mix.
	Model string `json:"model" yaml:"model"`
	// SkipFailedFetch records retrieval failures and moves on instead of
	// aborting the run.
	SkipFailedFetch bool `json:"skip_failed_fetch,omitempty" yaml:"skip_failed_fetch,omitempty"`
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		WindowSize:     10000,
		WindowOverlap:  500,
		MaxWindows:     200,
		BundleMaxBytes: 100000,
		Concurrency:    1,
	}
}

// Source fetches a document's full text by identifier.
type Source interface {
	Fetch(ctx context.Context, id string) (source.Document, error)
}

// Cache memoizes digests of unchanged documents.
type Cache interface {
	Get(key string) (DocumentDigest, bool, error)
	Put(key string, d DocumentDigest) error
}

// DocReport describes what happened to one document during a run.
type DocReport struct {
	DocID           string `json:"doc_id" yaml:"doc_id"`
	Windows         int    `json:"windows" yaml:"windows"`
	DegradedWindows []int  `json:"degraded_windows,omitempty" yaml:"degraded_windows,omitempty"`
	Degraded        bool   `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Cached          bool   `json:"cached,omitempty" yaml:"cached,omitempty"`
	Err             string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report summarizes a run for the user and for the run log.
type Report struct {
	Documents   []DocReport `json:"documents" yaml:"documents"`
	Dropped     int         `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Overflow    bool        `json:"overflow,omitempty" yaml:"overflow,omitempty"`
	BundleBytes int         `json:"bundle_bytes" yaml:"bundle_bytes"`
}

// Degradations counts degraded windows across all documents.
func (r Report) Degradations() int {
	n := 0
	for _, d := range r.Documents {
		n += len(d.DegradedWindows)
	}
	return n
}

// Pipeline wires the map, reduce and aggregate steps to a document source.
type Pipeline struct {
	Source     Source
	Summarizer *Summarizer
	Reducer    *Reducer
	Cache      Cache
	Options    Options
	Logger     *slog.Logger
}

// Run digests each document in order and aggregates the results. Only
// retrieval failures produce an error, and only when SkipFailedFetch is off.
// The context is checked before each document is started.
func (p *Pipeline) Run(ctx context.Context, ids []string) (Bundle, Report, error) {
	log := p.logger()
	var rep Report
	digests := make([]DocumentDigest, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return Bundle{}, rep, err
		}
		doc, err := p.Source.Fetch(ctx, id)
		if err != nil {
			if !p.Options.SkipFailedFetch {
				return Bundle{}, rep, fmt.Errorf("fetch document %s: %w", id, err)
			}
			log.Warn("document skipped", "doc", id, "err", err)
			rep.Documents = append(rep.Documents, DocReport{DocID: id, Err: err.Error()})
			continue
		}
		d, dr := p.DigestDocument(ctx, doc)
		digests = append(digests, d)
		rep.Documents = append(rep.Documents, dr)
	}

	b := Aggregate(digests, p.Options.BundleMaxBytes)
	rep.Dropped = b.Dropped
	rep.Overflow = b.Overflow
	rep.BundleBytes = b.Size()
	if b.Overflow {
		log.Warn("bundle ceiling too small for any digest", "max_bytes", p.Options.BundleMaxBytes, "documents", len(digests))
	} else if b.Dropped > 0 {
		log.Warn("bundle truncated", "dropped", b.Dropped, "kept", len(b.Documents), "max_bytes", p.Options.BundleMaxBytes)
	}
	return b, rep, nil
}

// DigestDocument windows, summarizes and reduces one document.
func (p *Pipeline) DigestDocument(ctx context.Context, doc source.Document) (DocumentDigest, DocReport) {
	log := p.logger()
	dr := DocReport{DocID: doc.ID}

	key := CacheKey(doc.Text, p.Options)
	if p.Cache != nil {
		d, ok, err := p.Cache.Get(key)
		if err != nil {
			log.Warn("cache read failed", "doc", doc.ID, "err", err)
		} else if ok {
			// The key is content-only; a placeholder title names the document
			// that filled the entry, so rebuild it for this one.
			if d.Title == PlaceholderTitle(d.DocID) {
				d.Title = PlaceholderTitle(doc.ID)
			}
			d.DocID = doc.ID
			dr.Windows = d.Windows
			dr.Cached = true
			log.Debug("cache hit", "doc", doc.ID)
			return d, dr
		}
	}

	start := time.Now()
	ws := Windows(doc.Text, p.Options.WindowSize, p.Options.WindowOverlap, p.Options.MaxWindows)
	// Windowing only stops short of the end when the cap was hit.
	if ws[len(ws)-1].End < len(doc.Text) {
		log.Warn("window cap reached, document partially covered", "doc", doc.ID,
			"covered", ws[len(ws)-1].End, "size", len(doc.Text))
	}
	partials := p.summarizeAll(ctx, ws)
	for i, ps := range partials {
		if ps.Degraded {
			dr.DegradedWindows = append(dr.DegradedWindows, i)
		}
	}

	d := p.Reducer.Reduce(ctx, doc.ID, partials)
	dr.Windows = len(ws)
	dr.Degraded = d.Degraded
	log.Info("document digested", "doc", doc.ID, "windows", len(ws),
		"degraded_windows", len(dr.DegradedWindows), "dur_ms", time.Since(start).Milliseconds())

	if p.Cache != nil && !d.Degraded && len(dr.DegradedWindows) == 0 {
		if err := p.Cache.Put(key, d); err != nil {
			log.Warn("cache write failed", "doc", doc.ID, "err", err)
		}
	}
	return d, dr
}

// summarizeAll runs the map step on a bounded pool. Results land at their
// window index, so the reducer always sees window order.
func (p *Pipeline) summarizeAll(ctx context.Context, ws []Window) []PartialSummary {
	out := make([]PartialSummary, len(ws))
	limit := p.Options.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, w := range ws {
		g.Go(func() error {
			out[w.Index] = p.Summarizer.SummarizeWindow(ctx, w.Text, Position{Index: w.Index, Total: len(ws)})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return discardLogger()
	}
	return p.Logger.With("comp", "pipeline")
}

// CacheKey identifies a digest by document content and the settings that
// shape it.
func CacheKey(text string, o Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "v1|%d|%d|%d|%s|", o.WindowSize, o.WindowOverlap, o.MaxWindows, o.Model)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
