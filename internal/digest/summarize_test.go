package digest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func reply(s string) CompleterFunc {
	return func(context.Context, string, string, float64) (string, error) { return s, nil }
}

func TestSummarizeWindowUnparseableDegrades(t *testing.T) {
	s := NewSummarizer(reply("I cannot summarize this"), 0.2, nil)
	got := s.SummarizeWindow(context.Background(), "text", Position{Index: 0, Total: 1})
	want := emptyPartial()
	want.Highlights = []string{"I cannot summarize this"}
	want.Degraded = true
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestSummarizeWindowParsesFencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"highlights\":[\"a\"],\"requirements\":[\"must b\"],\"fileHints\":[{\"path\":\"x.go\",\"purpose\":\"p\"}]}\n```"
	s := NewSummarizer(reply(raw), 0, nil)
	got := s.SummarizeWindow(context.Background(), "text", Position{})
	if got.Degraded {
		t.Fatal("unexpected degraded summary")
	}
	if !reflect.DeepEqual(got.Highlights, []string{"a"}) || got.FileHints[0].Path != "x.go" {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if got.Constraints == nil || got.OpenQuestions == nil {
		t.Fatal("missing lists should be empty, not nil")
	}
}

func TestSummarizeWindowCallErrorDegrades(t *testing.T) {
	llm := CompleterFunc(func(context.Context, string, string, float64) (string, error) {
		return "", errors.New("connection refused")
	})
	got := NewSummarizer(llm, 0, nil).SummarizeWindow(context.Background(), "text", Position{})
	if !got.Degraded || len(got.Highlights) != 1 || !strings.Contains(got.Highlights[0], "connection refused") {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestSummarizeWindowExcerptBounded(t *testing.T) {
	long := strings.Repeat("ü", ExcerptRunes*3)
	got := NewSummarizer(reply(long), 0, nil).SummarizeWindow(context.Background(), "", Position{})
	if n := len([]rune(got.Highlights[0])); n != ExcerptRunes {
		t.Fatalf("excerpt has %d runes", n)
	}
	got = NewSummarizer(reply("   "), 0, nil).SummarizeWindow(context.Background(), "", Position{})
	if got.Highlights[0] != "(empty response)" {
		t.Fatalf("blank reply highlight = %q", got.Highlights[0])
	}
}

func TestSummarizeWindowSendsPosition(t *testing.T) {
	var gotInput string
	llm := CompleterFunc(func(_ context.Context, system, input string, _ float64) (string, error) {
		gotInput = input
		if !strings.Contains(system, "openQuestions") {
			t.Errorf("system prompt lacks schema: %q", system)
		}
		return "{}", nil
	})
	NewSummarizer(llm, 0, nil).SummarizeWindow(context.Background(), "body", Position{Index: 1, Total: 3})
	if !strings.HasPrefix(gotInput, "Window 2 of 3\n\nbody") {
		t.Fatalf("unexpected input %q", gotInput)
	}
}

func TestParsePartialRejectsNonObject(t *testing.T) {
	for _, raw := range []string{"", "[1,2]", "{not json}", `{"highlights": "x"}`} {
		if _, err := ParsePartial(raw); err == nil {
			t.Errorf("ParsePartial(%q) should fail", raw)
		}
	}
}

func TestSummarizeWindowNonSummaryObjectDegrades(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"error":"I cannot summarize this"}`, `{"error":"I cannot summarize this"}`},
		{`{}`, `{}`},
		{"```json\n{\"status\":\"refused\"}\n```", "```json\n{\"status\":\"refused\"}\n```"},
	}
	for _, tc := range cases {
		got := NewSummarizer(reply(tc.raw), 0, nil).SummarizeWindow(context.Background(), "text", Position{})
		if !got.Degraded {
			t.Errorf("%s: expected a degraded summary", tc.raw)
			continue
		}
		if !reflect.DeepEqual(got.Highlights, []string{tc.want}) {
			t.Errorf("%s: highlights = %q", tc.raw, got.Highlights)
		}
	}
	if _, err := ParsePartial(`{"openQuestions":[]}`); err != nil {
		t.Fatalf("a reply with only one summary key is still a summary: %v", err)
	}
}
