package digest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// ExcerptRunes bounds the raw-output excerpt kept in a degraded summary.
const ExcerptRunes = 500

// Summarizer is the map step: one model call per window.
type Summarizer struct {
	llm         Completer
	temperature float64
	log         *slog.Logger
}

// NewSummarizer returns a Summarizer calling llm. A nil logger discards output.
func NewSummarizer(llm Completer, temperature float64, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = discardLogger()
	}
	return &Summarizer{llm: llm, temperature: temperature, log: logger.With("comp", "summarizer")}
}

// SummarizeWindow returns the structured summary of one window. It never
// fails: a call error or malformed reply yields a degraded summary whose
// highlights carry an excerpt of what came back.
func (s *Summarizer) SummarizeWindow(ctx context.Context, text string, pos Position) PartialSummary {
	raw, err := s.llm.Complete(ctx, windowSystemPrompt, windowInput(text, pos), s.temperature)
	if err != nil {
		s.log.Warn("window degraded", "window", pos.Index, "total", pos.Total, "reason", "call failed", "err", err)
		return degradedPartial(err.Error())
	}
	ps, perr := ParsePartial(raw)
	if perr != nil {
		s.log.Warn("window degraded", "window", pos.Index, "total", pos.Total, "reason", "unparseable reply", "err", perr)
		return degradedPartial(raw)
	}
	return ps
}

// summaryKeys are the fields a conforming reply carries. An object with none
// of them (an error payload, {}) is not a summary.
var summaryKeys = []string{"highlights", "requirements", "constraints", "entities", "fileHints", "openQuestions"}

// ParsePartial decodes a model reply into a PartialSummary. Code fences and
// prose around the outermost JSON object are ignored.
func ParsePartial(raw string) (PartialSummary, error) {
	obj, ok := extractObject(raw)
	if !ok {
		return PartialSummary{}, errors.New("no JSON object in reply")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return PartialSummary{}, err
	}
	found := false
	for _, k := range summaryKeys {
		if _, ok := fields[k]; ok {
			found = true
			break
		}
	}
	if !found {
		return PartialSummary{}, errors.New("reply has no summary fields")
	}
	var ps PartialSummary
	dec := json.NewDecoder(strings.NewReader(obj))
	if err := dec.Decode(&ps); err != nil {
		return PartialSummary{}, err
	}
	return ps.normalizeNil(), nil
}

func degradedPartial(raw string) PartialSummary {
	ps := emptyPartial()
	ex := excerpt(raw, ExcerptRunes)
	if ex == "" {
		ex = "(empty response)"
	}
	ps.Highlights = []string{ex}
	ps.Degraded = true
	return ps
}

// extractObject returns the outermost {...} span of s, after removing a
// surrounding markdown code fence if present.
func extractObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// excerpt trims s and cuts it to at most n runes.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
