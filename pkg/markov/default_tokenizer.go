package markov

import (
	"bufio"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxLineSize bounds a single line of input text.
const maxLineSize = 16 * 1024 * 1024

var (
	defaultPunctuation = []string{".", "-", ",", "!", "?", "(", "—", ")", ";"}
	defaultAttached    = []string{"-", "—"}
	defaultTerminals   = []string{".", "!", "?"}
)

// DefaultTokenizer is a default implementation of the Tokenizer interface.
// It splits text on spaces after isolating every punctuation mark as its own
// token, and renders tokens back with punctuation re-attached, the first
// letter capitalized and a terminal mark appended when missing.
// Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	punctuation []string
	attached    map[string]bool
	terminals   []string
	source      Source
	cleaner     *strings.Replacer
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithPunctuation sets the marks that are split into standalone tokens.
// Default: . - , ! ? ( — ) ;
func WithPunctuation(marks ...string) Option {
	return func(t *DefaultTokenizer) {
		t.punctuation = marks
	}
}

// WithAttached sets the marks that render with no space on either side.
// Default: - —
func WithAttached(marks ...string) Option {
	return func(t *DefaultTokenizer) {
		t.attached = make(map[string]bool, len(marks))
		for _, m := range marks {
			t.attached[m] = true
		}
	}
}

// WithTerminals sets the marks that may end a rendered sentence. One is
// chosen at random when the text does not already end in one.
// Default: . ! ?
func WithTerminals(marks ...string) Option {
	return func(t *DefaultTokenizer) {
		t.terminals = marks
	}
}

// WithSource sets the random source used to pick terminal marks.
// Default: DefaultSource()
func WithSource(src Source) Option {
	return func(t *DefaultTokenizer) {
		if src != nil {
			t.source = src
		}
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		punctuation: defaultPunctuation,
		terminals:   defaultTerminals,
		source:      DefaultSource(),
	}
	WithAttached(defaultAttached...)(t)

	for _, opt := range opts {
		opt(t)
	}

	pairs := []string{
		"\t", " ",
		"\r", " ",
		"“", ` " `,
		"”", ` " `,
		"_", "",
	}
	for _, mark := range t.punctuation {
		pairs = append(pairs, mark, " "+mark+" ")
	}
	t.cleaner = strings.NewReplacer(pairs...)

	return t
}

// Tokenize splits a piece of text into tokens.
func (t *DefaultTokenizer) Tokenize(text string) []string {
	return t.split(strings.ReplaceAll(text, "\n", " "))
}

func (t *DefaultTokenizer) split(line string) []string {
	var tokens []string
	for _, word := range strings.Split(t.cleaner.Replace(line), " ") {
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// Render joins tokens with spaces and tidies the result into a sentence.
// It returns ErrEmptyInput when there is nothing to render.
func (t *DefaultTokenizer) Render(tokens []string) (string, error) {
	text := strings.Join(tokens, " ")
	if text == "" {
		return "", ErrEmptyInput
	}

	// A single leading mark is dropped, quotes included.
	if first, size := utf8.DecodeRuneInString(text); t.isLeadingMark(string(first)) {
		text = strings.TrimPrefix(text[size:], " ")
	}
	if text == "" {
		return "", ErrEmptyInput
	}

	if first, size := utf8.DecodeRuneInString(text); unicode.IsLower(first) {
		text = string(unicode.ToUpper(first)) + text[size:]
	}

	// The end of the text counts as a space so that a closing " !" collapses too.
	padded := text + " "
	for _, mark := range append(t.punctuation[:len(t.punctuation):len(t.punctuation)], `"`) {
		if t.attached[mark] {
			padded = strings.ReplaceAll(padded, " "+mark+" ", mark)
		} else {
			padded = strings.ReplaceAll(padded, " "+mark+" ", mark+" ")
		}
	}
	text = strings.TrimSuffix(padded, " ")

	if !t.endsInTerminal(text) && len(t.terminals) > 0 {
		if i := t.source.Pick(uniform(len(t.terminals))); i >= 0 {
			text += t.terminals[i]
		}
	}
	return text, nil
}

func (t *DefaultTokenizer) isLeadingMark(s string) bool {
	if s == `"` {
		return true
	}
	for _, mark := range t.punctuation {
		if mark == s {
			return true
		}
	}
	return false
}

func (t *DefaultTokenizer) endsInTerminal(text string) bool {
	for _, mark := range t.terminals {
		if strings.HasSuffix(text, mark) {
			return true
		}
	}
	return false
}

// NewStream Returns the stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &DefaultStreamTokenizer{
		scanner: scanner,
		buffer:  []string{},
		split:   t.split,
	}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer interface.
// It reads the stream line by line, so line breaks act as token separators.
type DefaultStreamTokenizer struct {
	scanner *bufio.Scanner
	buffer  []string
	split   func(string) []string
}

// Next returns the next token from the stream. When the stream is exhausted,
// it returns an empty string and io.EOF. Any other error indicates a problem
// reading from the underlying stream.
func (s *DefaultStreamTokenizer) Next() (string, error) {
	for len(s.buffer) == 0 { // Loop until we have tokens
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		s.buffer = s.split(s.scanner.Text())
	}

	token := s.buffer[0]
	s.buffer = s.buffer[1:]
	return token, nil
}
