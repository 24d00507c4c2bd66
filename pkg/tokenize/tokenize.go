// Package tokenize provides the basic text tokenizers used to pace agent
// transcript forwarding: sentence segmentation, word splitting, and a
// heuristic hyphenator that approximates syllable counts for speech-rate
// estimation.
//
// The implementations are deliberately simple and dependency-free; both
// tokenizer interfaces are pluggable so callers can substitute
// language-specific implementations.
package tokenize

import (
	"strings"
	"unicode"
)

// SentenceTokenizer segments text into sentences.
type SentenceTokenizer interface {
	// Tokenize returns the complete sentences found in text, in order.
	Tokenize(text string) []string

	// Split returns the complete sentences found in text plus the trailing
	// remainder that does not yet end in a sentence boundary. Used for
	// incremental segmentation of a growing stream buffer.
	Split(text string) (sentences []string, rest string)
}

// WordTokenizer splits text into words.
type WordTokenizer interface {
	Tokenize(text string) []string
}

// ── Sentence tokenizer ────────────────────────────────────────────────────────

// BasicSentenceTokenizer segments on '.', '!', '?' and '…', merging fragments
// shorter than MinSentenceLen into the following sentence so that transcript
// segments are not absurdly short ("Dr." alone, for example). Ellipses are
// treated as pauses, so "Well... maybe" never splits after "Well...".
type BasicSentenceTokenizer struct {
	// MinSentenceLen is the minimum rune length of an emitted sentence.
	// Zero means DefaultMinSentenceLen.
	MinSentenceLen int
}

// DefaultMinSentenceLen is the default minimum emitted sentence length.
const DefaultMinSentenceLen = 20

var _ SentenceTokenizer = (*BasicSentenceTokenizer)(nil)

func (t *BasicSentenceTokenizer) minLen() int {
	if t.MinSentenceLen > 0 {
		return t.MinSentenceLen
	}
	return DefaultMinSentenceLen
}

// Tokenize implements SentenceTokenizer. The trailing remainder, if any, is
// returned as a final sentence.
func (t *BasicSentenceTokenizer) Tokenize(text string) []string {
	sentences, rest := t.Split(text)
	if strings.TrimSpace(rest) != "" {
		sentences = append(sentences, strings.TrimSpace(rest))
	}
	return sentences
}

// Split implements SentenceTokenizer.
func (t *BasicSentenceTokenizer) Split(text string) (sentences []string, rest string) {
	minLen := t.minLen()
	runes := []rune(text)
	start := 0
	pending := ""

	for i, r := range runes {
		if !isSentenceEnd(r) {
			continue
		}
		// Consume any run of terminal punctuation as one boundary.
		if i+1 < len(runes) && isSentenceEnd(runes[i+1]) {
			continue
		}

		candidate := strings.TrimSpace(string(runes[start : i+1]))
		start = i + 1
		if candidate == "" {
			continue
		}
		if pending != "" {
			candidate = pending + " " + candidate
			pending = ""
		}
		if endsInEllipsis(runes, i) || len([]rune(candidate)) < minLen {
			pending = candidate
			continue
		}
		sentences = append(sentences, candidate)
	}

	rest = strings.TrimLeftFunc(string(runes[start:]), unicode.IsSpace)
	if pending != "" {
		if rest == "" {
			rest = pending
		} else {
			rest = pending + " " + rest
		}
	}
	return sentences, rest
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

// endsInEllipsis reports whether the terminal run ending at i spells an
// ellipsis. An ellipsis marks a pause, not a sentence end, so the text before
// it merges into the following sentence.
func endsInEllipsis(runes []rune, i int) bool {
	if runes[i] == '…' {
		return true
	}
	if runes[i] != '.' {
		return false
	}
	dots := 0
	for j := i; j >= 0 && runes[j] == '.'; j-- {
		dots++
	}
	return dots >= 2
}

// ── Word tokenizer ────────────────────────────────────────────────────────────

// BasicWordTokenizer splits on Unicode whitespace. Punctuation is kept
// attached to words unless IgnorePunctuation is set, in which case leading and
// trailing punctuation is stripped and punctuation-only tokens are dropped.
type BasicWordTokenizer struct {
	IgnorePunctuation bool
}

var _ WordTokenizer = (*BasicWordTokenizer)(nil)

// Tokenize implements WordTokenizer.
func (t *BasicWordTokenizer) Tokenize(text string) []string {
	fields := strings.Fields(text)
	if !t.IgnorePunctuation {
		return fields
	}

	out := fields[:0]
	for _, w := range fields {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// ── Hyphenation ───────────────────────────────────────────────────────────────

// Hyphenate splits word into pronounceable parts by cutting after each vowel
// group. The part count approximates the word's syllable count, which the
// transcript forwarder uses to estimate speech duration. Words with no vowels
// are returned whole.
func Hyphenate(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil
	}

	var parts []string
	start := 0
	inVowels := false
	for i, r := range runes {
		v := isVowel(r)
		if inVowels && !v {
			// End of a vowel group: cut before this consonant unless it is the
			// final consonant cluster, which stays attached to the last part.
			rest := string(runes[i:])
			if strings.IndexFunc(rest, isVowel) == -1 {
				break
			}
			parts = append(parts, string(runes[start:i]))
			start = i
		}
		inVowels = v
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
