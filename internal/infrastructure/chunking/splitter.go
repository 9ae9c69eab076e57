package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)

// boundaries are tried in order: paragraph, line, sentence, word.
var boundaries = []func(string) []string{
	func(s string) []string { return splitKeep(s, "\n\n") },
	func(s string) []string { return splitKeep(s, "\n") },
	splitSentences,
	func(s string) []string { return splitKeep(s, " ") },
}

// Splitter cuts text into chunks of at most ChunkSize runes, preferring
// structural boundaries and falling back to hard character windows.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 500
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

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieces := s.splitRecursive(text, 0)
	out := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		if chunk := strings.TrimSpace(piece); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func (s *Splitter) splitRecursive(text string, level int) []string {
	if utf8.RuneCountInString(text) <= s.ChunkSize {
		return []string{text}
	}
	if level >= len(boundaries) {
		return s.hardCut(text)
	}

	parts := boundaries[level](text)
	if len(parts) <= 1 {
		return s.splitRecursive(text, level+1)
	}

	out := make([]string, 0, len(parts))
	small := make([]string, 0, len(parts))
	for _, part := range parts {
		if utf8.RuneCountInString(part) <= s.ChunkSize {
			small = append(small, part)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small)...)
			small = small[:0]
		}
		out = append(out, s.splitRecursive(part, level+1)...)
	}
	if len(small) > 0 {
		out = append(out, s.merge(small)...)
	}
	return out
}

// merge packs consecutive pieces into windows of at most ChunkSize runes and
// carries up to Overlap runes of trailing pieces into the next window.
func (s *Splitter) merge(pieces []string) []string {
	out := make([]string, 0, len(pieces))
	window := make([]string, 0, len(pieces))
	total := 0

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > s.ChunkSize && len(window) > 0 {
			out = append(out, strings.Join(window, ""))
			for len(window) > 0 && (total > s.Overlap || total+n > s.ChunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if len(window) > 0 {
		out = append(out, strings.Join(window, ""))
	}
	return out
}

func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitKeep splits after every sep, keeping sep attached to the preceding piece.
func splitKeep(s, sep string) []string {
	parts := strings.SplitAfter(s, sep)
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func splitSentences(s string) []string {
	idx := sentenceEndRe.FindAllStringIndex(s, -1)
	if len(idx) == 0 {
		return []string{s}
	}
	out := make([]string, 0, len(idx)+1)
	start := 0
	for _, loc := range idx {
		out = append(out, s[start:loc[1]])
		start = loc[1]
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
