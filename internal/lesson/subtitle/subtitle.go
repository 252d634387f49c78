// Package subtitle splits narration text into clause-sized chunks and picks the
// chunk being spoken at a narrated offset.
//
// Offsets are byte offsets into the narration text, the same unit the narration
// service reports progress in.
package subtitle

func isBreak(b byte) bool {
	switch b {
	case '.', '!', '?', ',', '\n', ':', ';':
		return true
	}
	return false
}

func isQuote(b byte) bool {
	return b == '\'' || b == '"'
}

// Segment splits after each run of clause punctuation, keeping the run (and one
// closing quote right after it) on the chunk it ends. A trailing fragment
// without punctuation is its own chunk. The chunks concatenate back to text.
// Empty text yields a single empty chunk.
func Segment(text string) []string {
	if text == "" {
		return []string{""}
	}
	var chunks []string
	start := 0
	for i := 0; i < len(text); {
		if !isBreak(text[i]) {
			i++
			continue
		}
		for i < len(text) && isBreak(text[i]) {
			i++
		}
		if i < len(text) && isQuote(text[i]) {
			i++
		}
		chunks = append(chunks, text[start:i])
		start = i
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

// ActiveIndex returns the index of the chunk whose [acc, acc+len) range holds
// narrated. At or past the end it is the last chunk; otherwise the first.
// Returns -1 only for an empty chunk list.
func ActiveIndex(chunks []string, narrated int) int {
	if len(chunks) == 0 {
		return -1
	}
	acc := 0
	for i, c := range chunks {
		if narrated >= acc && narrated < acc+len(c) {
			return i
		}
		acc += len(c)
	}
	if narrated >= acc {
		return len(chunks) - 1
	}
	return 0
}

// ActiveChunk is ActiveIndex resolved to the chunk text.
func ActiveChunk(chunks []string, narrated int) string {
	i := ActiveIndex(chunks, narrated)
	if i < 0 {
		return ""
	}
	return chunks[i]
}
