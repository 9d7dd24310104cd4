package knowledge

import (
	"fmt"
	"strings"
)

// Default chunking parameters, character based.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 150
)

// SplitText splits text into ordered chunks of at most maxSize characters,
// with consecutive chunks sharing overlap characters of context. Cuts prefer
// paragraph breaks, then sentence ends, falling back to a hard cut at
// maxSize. The split is deterministic and covers the whole input; the
// trailing remainder becomes a final short chunk rather than being dropped.
func SplitText(text string, maxSize, overlap int) ([]string, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", maxSize, overlap)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	if len(runes) <= maxSize {
		return []string{text}, nil
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		end := pos + maxSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[pos:]))
			break
		}
		cut := cutPoint(runes, pos, end, overlap)
		chunks = append(chunks, string(runes[pos:cut]))
		pos = cut - overlap
	}
	return chunks, nil
}

// cutPoint finds where to end the chunk starting at pos. It scans the window
// after the overlap region so the next chunk always makes forward progress.
func cutPoint(runes []rune, pos, end, overlap int) int {
	window := string(runes[pos+overlap+1 : end])

	// Paragraph break first.
	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return pos + overlap + 1 + len([]rune(window[:i+2]))
	}
	// Then the last sentence end.
	if i := lastSentenceEnd(window); i >= 0 {
		return pos + overlap + 1 + i + 1
	}
	// Hard cut.
	return end
}

func lastSentenceEnd(s string) int {
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n', '。', '！', '？':
			return i
		}
	}
	return -1
}
