package digest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// DegradedHighlightRunes bounds the joined highlights of a fully degraded digest.
const DegradedHighlightRunes = 2000

// Reducer merges a document's partial summaries into one digest.
type Reducer struct {
	llm         Completer
	temperature float64
	useModel    bool
	log         *slog.Logger
}

// NewReducer returns a Reducer. When titleWithModel is set and llm is non-nil,
// the title is asked of the model first and the local heuristic is the
// fallback.
func NewReducer(llm Completer, temperature float64, titleWithModel bool, logger *slog.Logger) *Reducer {
	if logger == nil {
		logger = discardLogger()
	}
	return &Reducer{
		llm:         llm,
		temperature: temperature,
		useModel:    titleWithModel && llm != nil,
		log:         logger.With("comp", "reducer"),
	}
}

// Reduce concatenates every list field across partials in window order and
// removes near-duplicates, keeping the first occurrence.
func (r *Reducer) Reduce(ctx context.Context, docID string, partials []PartialSummary) DocumentDigest {
	d := DocumentDigest{DocID: docID, Windows: len(partials)}

	var hl, req, con, ent, oq []string
	var hints []FileHint
	degraded := 0
	for _, p := range partials {
		if p.Degraded {
			degraded++
		}
		hl = append(hl, p.Highlights...)
		req = append(req, p.Requirements...)
		con = append(con, p.Constraints...)
		ent = append(ent, p.Entities...)
		oq = append(oq, p.OpenQuestions...)
		hints = append(hints, p.FileHints...)
	}

	if len(partials) > 0 && degraded == len(partials) {
		r.log.Warn("document degraded", "doc", docID, "windows", len(partials))
		return degradedDigest(docID, partials)
	}

	d.Highlights = Dedup(hl)
	d.Requirements = Dedup(req)
	d.Constraints = Dedup(con)
	d.Entities = Dedup(ent)
	d.OpenQuestions = Dedup(oq)
	d.FileHints = DedupHints(hints)
	d.Title = r.title(ctx, docID, partials, d.Entities)
	return d
}

func (r *Reducer) title(ctx context.Context, docID string, partials []PartialSummary, entities []string) string {
	if r.useModel {
		raw, err := r.llm.Complete(ctx, titleSystemPrompt, titleInput(docID, partials), r.temperature)
		if err == nil {
			if t := parseTitle(raw); t != "" {
				return t
			}
			r.log.Debug("title reply unusable, using local title", "doc", docID)
		} else {
			r.log.Warn("title call failed, using local title", "doc", docID, "err", err)
		}
	}
	return localTitle(docID, entities)
}

func parseTitle(raw string) string {
	obj, ok := extractObject(raw)
	if !ok {
		return ""
	}
	var v struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return ""
	}
	return collapseSpace(v.Title)
}

// localTitle prefers an entity tagged "Title:" and otherwise falls back to a
// placeholder derived from the document id.
func localTitle(docID string, entities []string) string {
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if len(e) > len("title:") && strings.EqualFold(e[:len("title:")], "title:") {
			if t := collapseSpace(e[len("title:"):]); t != "" {
				return t
			}
		}
	}
	return PlaceholderTitle(docID)
}

// PlaceholderTitle is the title used when no better one is known.
func PlaceholderTitle(docID string) string {
	return "Document " + docID
}

func degradedDigest(docID string, partials []PartialSummary) DocumentDigest {
	var parts []string
	for _, p := range partials {
		parts = append(parts, p.Highlights...)
	}
	joined := excerpt(strings.Join(parts, "\n"), DegradedHighlightRunes)
	if joined == "" {
		joined = "(no summary available)"
	}
	return DocumentDigest{
		DocID:         docID,
		Title:         PlaceholderTitle(docID),
		Highlights:    []string{joined},
		Requirements:  []string{},
		Constraints:   []string{},
		Entities:      []string{},
		FileHints:     []FileHint{},
		OpenQuestions: []string{},
		Windows:       len(partials),
		Degraded:      true,
	}
}
