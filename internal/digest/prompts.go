package digest

import (
	"fmt"
	"strings"
)

const windowSystemPrompt = `You summarize one window of a longer specification document.
Return ONLY a JSON object with exactly these keys:
{
  "highlights": [string],
  "requirements": [string],
  "constraints": [string],
  "entities": [string],
  "fileHints": [{"path": string, "purpose": string}],
  "openQuestions": [string]
}
Rules:
- At most 8 items per list; keep each item to one sentence.
- If the window names the document's title, add it to "entities" as "Title: <title>".
- No commentary outside the JSON object.`

const titleSystemPrompt = `You are given partial summaries of one specification document, in order.
Return ONLY a JSON object of the form {"title": "<short document title>"}.
No commentary outside the JSON object.`

func windowInput(text string, pos Position) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Window %d of %d\n\n", pos.Index+1, pos.Total)
	sb.WriteString(text)
	return sb.String()
}

func titleInput(docID string, partials []PartialSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document id: %s\n", docID)
	for i, p := range partials {
		fmt.Fprintf(&sb, "\n--- Window %d ---\n", i+1)
		writeList(&sb, "Highlights", p.Highlights)
		writeList(&sb, "Entities", p.Entities)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label)
	sb.WriteString(":\n")
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
}
