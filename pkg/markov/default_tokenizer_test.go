package markov

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize(t *testing.T) {
	tok := NewDefaultTokenizer()

	testCases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "Punctuation becomes tokens",
			text: "Hello, world!",
			want: []string{"Hello", ",", "world", "!"},
		},
		{
			name: "Every split mark",
			text: "well-known (sort of); yes—no. Why? Now!",
			want: []string{"well", "-", "known", "(", "sort", "of", ")", ";", "yes", "—", "no", ".", "Why", "?", "Now", "!"},
		},
		{
			name: "Curly quotes become straight quote tokens",
			text: "she said “hi”",
			want: []string{"she", "said", `"`, "hi", `"`},
		},
		{
			name: "Straight quotes stay attached",
			text: `a "b"`,
			want: []string{"a", `"b"`},
		},
		{
			name: "Whitespace is normalized",
			text: "  one\ttwo\nthree\r\nfour   five ",
			want: []string{"one", "two", "three", "four", "five"},
		},
		{
			name: "Underscores are removed",
			text: "_emphasis_ snake_case",
			want: []string{"emphasis", "snakecase"},
		},
		{
			name: "Empty text",
			text: " \n\t ",
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tok.Tokenize(tc.text)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}

			streamed, err := ReadTokens(tok, strings.NewReader(tc.text))
			if err != nil {
				t.Fatalf("ReadTokens failed: %v", err)
			}
			if diff := cmp.Diff(tc.want, streamed); diff != "" {
				t.Errorf("ReadTokens(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestRender(t *testing.T) {
	testCases := []struct {
		name   string
		tokens []string
		pick   int
		want   string
	}{
		{
			name:   "Punctuation reattaches",
			tokens: []string{"Hello", ",", "world", "!"},
			want:   "Hello, world!",
		},
		{
			name:   "Capitalized with random terminal",
			tokens: []string{"the", "dog", "barked"},
			pick:   1,
			want:   "The dog barked!",
		},
		{
			name:   "Leading mark is stripped",
			tokens: []string{".", "the", "end"},
			pick:   0,
			want:   "The end.",
		},
		{
			name:   "Leading quote is stripped",
			tokens: []string{`"`, "quiet", "?"},
			want:   "Quiet?",
		},
		{
			name:   "Dashes attach on both sides",
			tokens: []string{"well", "-", "known", "—", "mostly", "."},
			want:   "Well-known—mostly.",
		},
		{
			name:   "Mid sentence marks keep one space",
			tokens: []string{"stop", ".", "go", ";", "now", "?"},
			want:   "Stop. go; now?",
		},
		{
			name:   "Non-ASCII first letter",
			tokens: []string{"émile", "left"},
			pick:   2,
			want:   "Émile left?",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tok := NewDefaultTokenizer(WithSource(fixedSource{index: tc.pick}))
			got, err := tok.Render(tc.tokens)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Render(%q) = %q, want %q", tc.tokens, got, tc.want)
			}
		})
	}
}

func TestRenderEmptyInput(t *testing.T) {
	tok := NewDefaultTokenizer()
	for _, tokens := range [][]string{nil, {}, {""}, {"."}} {
		if _, err := tok.Render(tokens); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Render(%q): expected ErrEmptyInput, got %v", tokens, err)
		}
	}
}

func TestRenderAlwaysTerminates(t *testing.T) {
	tok := NewDefaultTokenizer(WithSource(NewSource(7)))
	for i := 0; i < 50; i++ {
		got, err := tok.Render([]string{"the", "dog", "barked"})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if !strings.HasPrefix(got, "The dog barked") {
			t.Errorf("expected capitalized sentence, got %q", got)
		}
		if !strings.ContainsAny(got[len(got)-1:], ".!?") {
			t.Errorf("expected terminal punctuation, got %q", got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tok := NewDefaultTokenizer(WithSource(fixedSource{}))
	for _, sentence := range []string{
		"Hello, world!",
		"Stop. Go!",
		"Well-known facts; more or less true?",
		"A long—winding road.",
	} {
		got, err := tok.Render(tok.Tokenize(sentence))
		if err != nil {
			t.Fatalf("Render failed for %q: %v", sentence, err)
		}
		if got != sentence {
			t.Errorf("round trip of %q produced %q", sentence, got)
		}
	}
}

func TestCustomTokenizerOptions(t *testing.T) {
	tok := NewDefaultTokenizer(
		WithPunctuation(".", ":"),
		WithAttached(),
		WithTerminals("…"),
		WithSource(fixedSource{}),
	)

	tokens := tok.Tokenize("key:value, more.")
	want := []string{"key", ":", "value,", "more", "."}
	if diff := cmp.Diff(want, tokens); diff != "" {
		t.Errorf("Tokenize mismatch (-want +got):\n%s", diff)
	}

	got, err := tok.Render([]string{"so", ":", "it", "goes"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "So: it goes…" {
		t.Errorf("Render = %q, want %q", got, "So: it goes…")
	}
}
