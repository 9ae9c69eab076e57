package usecase

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

const (
	semanticWeight = 0.6
	lexicalWeight  = 0.3
	phraseWeight   = 0.1
)

var queryStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "be": {}, "by": {}, "can": {}, "do": {},
	"does": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {}, "me": {},
	"of": {}, "on": {}, "or": {}, "tell": {}, "the": {}, "to": {}, "was": {}, "what": {},
	"when": {}, "which": {}, "who": {}, "why": {}, "with": {},
}

// rerank reorders semantic hits by blending normalized similarity with
// IDF-weighted coverage of the query terms and an adjacent-term phrase bonus.
// Terms that occur in every candidate carry little weight.
func rerank(query string, candidates []domain.RetrievedChunk) []domain.RetrievedChunk {
	if len(candidates) < 2 {
		return candidates
	}
	terms := queryTerms(query)

	out := make([]domain.RetrievedChunk, len(candidates))
	copy(out, candidates)

	tokens := make([][]string, len(out))
	sets := make([]map[string]struct{}, len(out))
	df := make(map[string]int, len(terms))
	for i := range out {
		tokens[i] = tokenize(out[i].Text)
		sets[i] = make(map[string]struct{}, len(tokens[i]))
		for _, tok := range tokens[i] {
			sets[i][tok] = struct{}{}
		}
		for _, term := range terms {
			if _, ok := sets[i][term]; ok {
				df[term]++
			}
		}
	}

	weights := make(map[string]float64, len(terms))
	for _, term := range terms {
		weights[term] = math.Log(1 + float64(len(out))/float64(max(df[term], 1)))
	}

	lo, hi := out[0].Score, out[0].Score
	for _, c := range out[1:] {
		lo, hi = min(lo, c.Score), max(hi, c.Score)
	}

	for i := range out {
		semantic := 1.0
		if hi > lo {
			semantic = (out[i].Score - lo) / (hi - lo)
		}
		out[i].Score = semanticWeight*semantic +
			lexicalWeight*coverage(terms, weights, sets[i]) +
			phraseWeight*phraseHit(terms, tokens[i])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Index < out[j].Index
	})
	return out
}

func coverage(terms []string, weights map[string]float64, chunk map[string]struct{}) float64 {
	var hit, total float64
	for _, term := range terms {
		total += weights[term]
		if _, ok := chunk[term]; ok {
			hit += weights[term]
		}
	}
	if total == 0 {
		return 0
	}
	return hit / total
}

// phraseHit is 1 when two consecutive query terms appear next to each other in the chunk.
func phraseHit(terms, chunk []string) float64 {
	if len(terms) < 2 || len(chunk) < 2 {
		return 0
	}
	bigrams := make(map[[2]string]struct{}, len(chunk)-1)
	for i := 1; i < len(chunk); i++ {
		bigrams[[2]string{chunk[i-1], chunk[i]}] = struct{}{}
	}
	for i := 1; i < len(terms); i++ {
		if _, ok := bigrams[[2]string{terms[i-1], terms[i]}]; ok {
			return 1
		}
	}
	return 0
}

// queryTerms returns the distinct non-stopword tokens of the query in order.
func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range tokenize(query) {
		if _, stop := queryStopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// tokenize lowercases and splits on anything but letters, digits and dots,
// so decimal values such as "13.5" survive as one token.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "."); f != "" {
			out = append(out, f)
		}
	}
	return out
}
