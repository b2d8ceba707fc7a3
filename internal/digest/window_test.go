package digest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWindowsScenario(t *testing.T) {
	text := strings.Repeat("x", 25000)
	ws := Windows(text, 10000, 500, 200)
	wantStarts := []int{0, 9500, 19000}
	if len(ws) != len(wantStarts) {
		t.Fatalf("got %d windows, want %d", len(ws), len(wantStarts))
	}
	for i, w := range ws {
		if w.Start != wantStarts[i] || w.Index != i {
			t.Fatalf("window %d: start=%d index=%d", i, w.Start, w.Index)
		}
	}
	if last := ws[len(ws)-1]; last.End != 25000 {
		t.Fatalf("last end = %d", last.End)
	}
}

func TestWindowsCoverage(t *testing.T) {
	text := strings.Repeat("abcdefghij", 337)
	for _, size := range []int{1, 2, 7, 100, 999, 5000} {
		for _, overlap := range []int{-3, 0, 1, 5, 99, 6000} {
			ws := Windows(text, size, overlap, 100000)
			if ws[0].Start != 0 || ws[len(ws)-1].End != len(text) {
				t.Fatalf("size=%d overlap=%d: coverage [%d,%d)", size, overlap, ws[0].Start, ws[len(ws)-1].End)
			}
			for i, w := range ws {
				if w.End <= w.Start {
					t.Fatalf("size=%d overlap=%d: empty window %d", size, overlap, i)
				}
				if w.Text != text[w.Start:w.End] {
					t.Fatalf("size=%d overlap=%d: text mismatch at %d", size, overlap, i)
				}
				if i > 0 {
					prev := ws[i-1]
					if w.Start <= prev.Start {
						t.Fatalf("size=%d overlap=%d: start not increasing at %d", size, overlap, i)
					}
					if w.Start > prev.End {
						t.Fatalf("size=%d overlap=%d: gap before window %d", size, overlap, i)
					}
				}
			}
		}
	}
}

func TestWindowsOverlapNotLessThanSizeTerminates(t *testing.T) {
	ws := Windows("abcdef", 2, 5, 100)
	if got := ws[len(ws)-1].End; got != 6 {
		t.Fatalf("last end = %d", got)
	}
	// overlap clamps to size-1, so the cursor advances one byte per window
	if len(ws) != 5 {
		t.Fatalf("got %d windows, want 5", len(ws))
	}
}

func TestWindowsCap(t *testing.T) {
	ws := Windows(strings.Repeat("y", 1000), 10, 0, 3)
	if len(ws) != 3 {
		t.Fatalf("got %d windows, want 3", len(ws))
	}
	if ws[2].End != 30 {
		t.Fatalf("third window end = %d", ws[2].End)
	}
	if got := Windows("abc", 1, 0, 0); len(got) != 1 {
		t.Fatalf("maxWindows<=0 should yield one window, got %d", len(got))
	}
}

func TestWindowsEmptyAndWhole(t *testing.T) {
	ws := Windows("", 10, 2, 5)
	if len(ws) != 1 || ws[0].Text != "" || ws[0].Start != 0 || ws[0].End != 0 {
		t.Fatalf("empty text: %+v", ws)
	}
	ws = Windows("hello", 0, 0, 5)
	if len(ws) != 1 || ws[0].Text != "hello" {
		t.Fatalf("size<=0: %+v", ws)
	}
	ws = Windows("hello", 100, 10, 5)
	if len(ws) != 1 || ws[0].End != 5 {
		t.Fatalf("short text: %+v", ws)
	}
}

func TestWindowsUTF8Boundaries(t *testing.T) {
	text := strings.Repeat("héllo wörld ✓ ", 50)
	for _, size := range []int{1, 2, 3, 5, 16} {
		for _, overlap := range []int{0, 1, 4} {
			ws := Windows(text, size, overlap, 100000)
			if ws[len(ws)-1].End != len(text) {
				t.Fatalf("size=%d overlap=%d: incomplete coverage", size, overlap)
			}
			for _, w := range ws {
				if !utf8.ValidString(w.Text) {
					t.Fatalf("size=%d overlap=%d: window %d splits a rune: %q", size, overlap, w.Index, w.Text)
				}
			}
		}
	}
}

func TestWindowsInvalidUTF8StaysWithinSize(t *testing.T) {
	text := "ab" + strings.Repeat("\x80", 50000)
	ws := Windows(text, 100, 10, 1000)
	if ws[len(ws)-1].End != len(text) {
		t.Fatalf("incomplete coverage: last end = %d", ws[len(ws)-1].End)
	}
	for _, w := range ws {
		if n := w.End - w.Start; n > 100 || n <= 0 {
			t.Fatalf("window %d spans %d bytes (size 100)", w.Index, n)
		}
		if w.Text != text[w.Start:w.End] {
			t.Fatalf("window %d text mismatch", w.Index)
		}
	}
}

func TestWindowsWideRuneTakenWhole(t *testing.T) {
	ws := Windows("✓✓", 1, 0, 10)
	if len(ws) != 2 || ws[0].Text != "✓" || ws[1].Text != "✓" {
		t.Fatalf("unexpected windows: %+v", ws)
	}
}
