package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Lower applies the language's lowercase mapping. A Caser carries state, so
// one is built per call to keep Resources shareable.
func (r *Resources) Lower(text string) string {
	return cases.Lower(r.tag).String(text)
}

// Tokenize splits text into word tokens. Any rune that is not a letter,
// digit or combining mark separates tokens, so elisions such as "dell'anca"
// yield "dell" and "anca". Case is preserved.
func (r *Resources) Tokenize(text string) []string {
	return strings.FieldsFunc(norm.NFC.String(text), func(c rune) bool {
		return !isWordRune(c)
	})
}

// Sentences splits text into trimmed sentences. A line break always ends a
// sentence. Within a line a sentence ends at '.', '!', '?' or '…' (plus any
// closing quotes or brackets) followed by whitespace, unless the period
// closes a known abbreviation.
func (r *Resources) Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(norm.NFC.String(text), "\n") {
		out = r.splitLine(out, []rune(line))
	}
	return out
}

func (r *Resources) splitLine(out []string, runes []rune) []string {
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}

		j := i + 1
		for j < len(runes) && (isTerminal(runes[j]) || isCloser(runes[j])) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			// "2.5", "e.g.x": not a boundary
			i = j - 1
			continue
		}
		if runes[i] == '.' && j == i+1 && r.isAbbreviation(runes[start:i]) {
			continue
		}

		out = appendSentence(out, runes[start:j])
		start = j
		i = j - 1
	}
	return appendSentence(out, runes[start:])
}

// isAbbreviation looks at the word immediately preceding a period.
func (r *Resources) isAbbreviation(before []rune) bool {
	k := len(before)
	for k > 0 && (unicode.IsLetter(before[k-1]) || before[k-1] == '.') {
		k--
	}
	if k == len(before) {
		return false
	}
	_, ok := r.abbreviations[r.Lower(string(before[k:]))]
	return ok
}

func appendSentence(out []string, runes []rune) []string {
	s := strings.TrimSpace(string(runes))
	if s == "" {
		return out
	}
	return append(out, s)
}

func isWordRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || unicode.Is(unicode.Mn, c)
}

func isTerminal(c rune) bool {
	switch c {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(c rune) bool {
	switch c {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}
