package digest

import "strings"

// Normalize is the equality key used for deduplication: trimmed, lower-cased,
// with internal whitespace runs collapsed to one space.
func Normalize(s string) string {
	return strings.ToLower(collapseSpace(s))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Dedup removes items whose normalized form was already seen, preserving the
// first occurrence and input order. Blank items are dropped. The result is
// never nil.
func Dedup(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := Normalize(it)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, strings.TrimSpace(it))
	}
	return out
}

// DedupHints removes file hints whose normalized path was already seen.
func DedupHints(hints []FileHint) []FileHint {
	out := make([]FileHint, 0, len(hints))
	seen := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		k := Normalize(strings.TrimPrefix(strings.TrimSpace(h.Path), "./"))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, FileHint{Path: strings.TrimSpace(h.Path), Purpose: strings.TrimSpace(h.Purpose)})
	}
	return out
}
