package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Completer is the text-generation call used to draft a plan.
type Completer interface {
	Complete(ctx context.Context, system, input string, temperature float64) (string, error)
}

const systemPrompt = `You are a code builder. Given a JSON bundle of document digests, produce a JSON plan:
{
  "files": [{"path":"<relative path>", "content":"<full file content>"}],
  "notes": "<short summary>"
}
Rules:
- Prefer small, composable modules.
- Keep changes inside allowed paths only (provided separately).
- If something is ambiguous, add TODOs and safe scaffolds.
- Return only valid JSON. No commentary outside JSON.`

// Synthesizer asks the model for a ChangePlan.
type Synthesizer struct {
	LLM         Completer
	Temperature float64
	Logger      *slog.Logger
}

// Synthesize never fails: an unusable reply becomes notes-only.
func (s *Synthesizer) Synthesize(ctx context.Context, bundle []byte, allow []string) ChangePlan {
	log := s.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("comp", "synthesizer")

	raw, err := s.LLM.Complete(ctx, systemPrompt, Input(bundle, allow), s.Temperature)
	if err != nil {
		log.Warn("plan call failed", "err", err)
		return ChangePlan{Notes: fmt.Sprintf("plan synthesis failed: %v", err)}
	}
	p, err := Parse(raw)
	if err != nil {
		log.Warn("plan reply unparseable", "err", err, "bytes", len(raw))
		return ChangePlan{Notes: strings.TrimSpace(raw)}
	}
	log.Info("plan drafted", "files", len(p.Files))
	return p
}

// Input builds the user message: the allowed prefixes followed by the bundle.
func Input(bundle []byte, allow []string) string {
	allowed := strings.Join(allow, ", ")
	if allowed == "" {
		allowed = "(no restriction)"
	}
	return "Allowed paths: " + allowed + "\n\nDIGESTS:\n" + string(bundle)
}

// Parse decodes a plan reply, tolerating a surrounding code fence or prose
// around the object. A reply with neither "files" nor "notes" is an error.
func Parse(raw string) (ChangePlan, error) {
	obj, ok := extractObject(raw)
	if !ok {
		return ChangePlan{}, errors.New("decode plan: no JSON object in reply")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return ChangePlan{}, fmt.Errorf("decode plan: %w", err)
	}
	_, hasFiles := fields["files"]
	_, hasNotes := fields["notes"]
	if !hasFiles && !hasNotes {
		return ChangePlan{}, errors.New("decode plan: reply has neither files nor notes")
	}
	var p ChangePlan
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return ChangePlan{}, fmt.Errorf("decode plan: %w", err)
	}
	return p, nil
}

// extractObject strips a code fence and returns the outermost {...} span.
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
