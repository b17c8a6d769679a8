package chunking

import (
	"strings"
	"unicode"
)

// Splitter cuts extracted text into rune-bounded windows, preferring to break on
// whitespace so words are not split across windows.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 4000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Head returns the first window of text, or "" for blank input.
func (s *Splitter) Head(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return ""
	}
	end := s.boundary(runes, 0)
	return strings.TrimSpace(string(runes[:end]))
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	for start := 0; start < len(runes); {
		end := s.boundary(runes, start)
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// boundary picks the end of the window starting at start. It backs off to the last
// whitespace in the second half of the window and cuts hard when there is none.
func (s *Splitter) boundary(runes []rune, start int) int {
	end := start + s.ChunkSize
	if end >= len(runes) {
		return len(runes)
	}
	for i := end; i > start+s.ChunkSize/2; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}
