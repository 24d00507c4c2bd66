package tokenize_test

import (
	"reflect"
	"testing"

	"github.com/overlapai/voicelink/pkg/tokenize"
)

// ─── TestSentenceTokenizer_Split ─────────────────────────────────────────────

func TestSentenceTokenizer_Split(t *testing.T) {
	t.Parallel()

	tok := &tokenize.BasicSentenceTokenizer{MinSentenceLen: 5}

	tests := []struct {
		name     string
		in       string
		want     []string
		wantRest string
	}{
		{
			name:     "single complete sentence",
			in:       "Hello there, how are you today? And",
			want:     []string{"Hello there, how are you today?"},
			wantRest: "And",
		},
		{
			name:     "no boundary yet",
			in:       "still streaming in",
			want:     nil,
			wantRest: "still streaming in",
		},
		{
			name:     "multiple sentences",
			in:       "First sentence here. Second one follows! Trailing",
			want:     []string{"First sentence here.", "Second one follows!"},
			wantRest: "Trailing",
		},
		{
			name:     "short fragment merges forward",
			in:       "Hm. That is a longer sentence. tail",
			want:     []string{"Hm. That is a longer sentence."},
			wantRest: "tail",
		},
		{
			name:     "ellipsis run is one boundary",
			in:       "Well... maybe so expressed. x",
			want:     []string{"Well... maybe so expressed."},
			wantRest: "x",
		},
		{
			name:     "trailing ellipsis stays in rest",
			in:       "I was thinking... then",
			want:     nil,
			wantRest: "I was thinking... then",
		},
		{
			name:     "unicode ellipsis merges forward",
			in:       "Hmm… that settles the matter. x",
			want:     []string{"Hmm… that settles the matter."},
			wantRest: "x",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, rest := tok.Split(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("sentences: got %q, want %q", got, tc.want)
			}
			if rest != tc.wantRest {
				t.Errorf("rest: got %q, want %q", rest, tc.wantRest)
			}
		})
	}
}

// ─── TestWordTokenizer ───────────────────────────────────────────────────────

func TestWordTokenizer(t *testing.T) {
	t.Parallel()

	plain := &tokenize.BasicWordTokenizer{}
	if got := plain.Tokenize("Hello, world! "); !reflect.DeepEqual(got, []string{"Hello,", "world!"}) {
		t.Errorf("punctuation kept: got %q", got)
	}

	stripped := &tokenize.BasicWordTokenizer{IgnorePunctuation: true}
	if got := stripped.Tokenize("Hello, world! ... ok"); !reflect.DeepEqual(got, []string{"Hello", "world", "ok"}) {
		t.Errorf("punctuation stripped: got %q", got)
	}
}

// ─── TestHyphenate ───────────────────────────────────────────────────────────

func TestHyphenate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		word  string
		parts int
	}{
		{"cat", 1},
		{"hello", 2},
		{"synchronized", 4},
		{"a", 1},
		{"rhythm", 1}, // trailing consonant cluster stays attached
		{"", 0},
		{"hmm", 1}, // no vowels: whole word
	}

	for _, tc := range tests {
		if got := len(tokenize.Hyphenate(tc.word)); got != tc.parts {
			t.Errorf("Hyphenate(%q): want %d parts, got %d (%q)",
				tc.word, tc.parts, got, tokenize.Hyphenate(tc.word))
		}
	}
}
