package digest

import "unicode/utf8"

// Windows splits text into overlapping windows of up to size bytes.
//
// Consecutive windows share overlap bytes. Windowing stops once the end of
// the text is reached or maxWindows windows have been produced, whichever
// comes first; partial coverage under the cap is not an error. An empty text
// yields a single empty window so every document has at least one unit of
// work. Boundaries never split a UTF-8 sequence.
func Windows(text string, size, overlap, maxWindows int) []Window {
	n := len(text)
	if size <= 0 || n == 0 {
		return []Window{{Index: 0, Text: text, Start: 0, End: n}}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	if maxWindows <= 0 {
		maxWindows = 1
	}

	var out []Window
	cursor := 0
	for len(out) < maxWindows {
		end := cursor + size
		if end > n {
			end = n
		}
		end = runeFloor(text, cursor, end)
		out = append(out, Window{Index: len(out), Text: text[cursor:end], Start: cursor, End: end})
		if end >= n {
			break
		}
		next := end - overlap
		if next < 0 {
			next = 0
		}
		next = runeFloor(text, 0, next)
		if next <= cursor {
			// overlap swallowed the whole step (short rune-adjusted window)
			next = end
		}
		cursor = next
	}
	return out
}

// runeFloor moves end back to the start of the rune it lands in, without
// going to or before lo. The scan looks at most utf8.UTFMax bytes back; when
// no rune start is in reach the bytes are not valid UTF-8 and end is used as
// is. A single valid rune wider than the window is taken whole.
func runeFloor(text string, lo, end int) int {
	if end >= len(text) {
		return end
	}
	for e := end; e > lo && end-e < utf8.UTFMax; e-- {
		if utf8.RuneStart(text[e]) {
			return e
		}
	}
	if _, n := utf8.DecodeRuneInString(text[lo:]); n > end-lo {
		return lo + n
	}
	return end
}
