package app

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Decision is the outcome of matching a candidate answer against the
// expected one. Close means "accepted, but not an exact match": a single
// typo for one-word answers, or 80–99% word overlap for longer ones.
type Decision struct {
	Correct bool
	Close   bool
}

// DecideAnswer reports whether candidate matches expected.
//
// Single-word answers are strict: the candidate must also be a single word,
// equal to the expected word or within Levenshtein distance 1. A sentence
// that merely contains the right word does not pass; short factual answers
// are too easy to pad into a pure-overlap check.
//
// Multi-word answers use word-set overlap against the expected word set:
// ratio >= 1.0 is correct, [0.8, 1.0) is correct-and-close.
func DecideAnswer(expected, candidate string) Decision {
	expectedWords := normalizeWords(expected)
	candidateWords := normalizeWords(candidate)

	if len(expectedWords) == 0 {
		return Decision{}
	}

	if len(expectedWords) == 1 {
		if len(candidateWords) != 1 {
			return Decision{}
		}
		if expectedWords[0] == candidateWords[0] {
			return Decision{Correct: true}
		}
		if levenshtein(expectedWords[0], candidateWords[0]) <= 1 {
			return Decision{Correct: true, Close: true}
		}
		return Decision{}
	}

	expectedSet := make(map[string]struct{}, len(expectedWords))
	for _, w := range expectedWords {
		expectedSet[w] = struct{}{}
	}
	candidateSet := make(map[string]struct{}, len(candidateWords))
	for _, w := range candidateWords {
		candidateSet[w] = struct{}{}
	}
	if len(candidateSet) == 0 {
		return Decision{}
	}

	overlap := 0
	for w := range expectedSet {
		if _, ok := candidateSet[w]; ok {
			overlap++
		}
	}
	ratio := float64(overlap) / float64(len(expectedSet))
	switch {
	case ratio >= 1.0:
		return Decision{Correct: true}
	case ratio >= 0.8:
		return Decision{Correct: true, Close: true}
	default:
		return Decision{}
	}
}

// AnswerHint describes the shape of an answer without giving it away:
// the letter count for a single word, the exact word count otherwise.
func AnswerHint(answer string) string {
	words := normalizeWords(answer)
	switch len(words) {
	case 0:
		return "No hint available."
	case 1:
		return fmt.Sprintf("The answer is one word (%d letters).", utf8.RuneCountInString(strings.TrimSpace(answer)))
	case 2:
		return "The answer is 2 words."
	default:
		return fmt.Sprintf("The answer is %d words.", len(words))
	}
}

// normalizeWords lowercases, folds diacritics and compatibility forms (NFKD),
// replaces punctuation with spaces, and splits into words.
func normalizeWords(s string) []string {
	s = norm.NFKD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark left over from decomposition
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// levenshtein computes edit distance with unit insert/delete/substitute costs.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 0
			if ca != cb {
				cost = 1
			}
			curr[j+1] = min3(prev[j]+cost, curr[j]+1, prev[j+1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
