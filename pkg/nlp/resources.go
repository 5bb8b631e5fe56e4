// Package nlp holds the language resources used to classify free-text
// clinical notes: tokenization, sentence segmentation, case mapping,
// stopwords and stemming for a single configured language.
package nlp

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/italian"
	"golang.org/x/text/language"
)

//go:embed resources
var resourceFS embed.FS

// Language identifies a supported natural language.
type Language string

const (
	Italian Language = "italian"
)

// Normalizer is the read-only view of the language resources the
// classifiers depend on.
type Normalizer interface {
	Tokenize(text string) []string
	Sentences(text string) []string
	Lower(text string) string
	Stem(word string) string
	IsStopword(word string) bool
}

// Resources is the immutable bundle loaded once at process start. It is
// safe for concurrent use.
type Resources struct {
	language      Language
	tag           language.Tag
	stopwords     map[string]struct{}
	abbreviations map[string]struct{}
	stemmer       func(string) string
}

var _ Normalizer = (*Resources)(nil)

type languageSpec struct {
	tag     language.Tag
	stemmer func(string) string
}

var supported = map[Language]languageSpec{
	Italian: {tag: language.Italian, stemmer: stemItalian},
}

// Load reads the stopword and abbreviation lists of lang and binds its
// stemmer.
func Load(lang Language) (*Resources, error) {
	spec, ok := supported[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}

	stopwords, err := readWordList(path.Join("resources", string(lang), "stopwords.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s stopwords: %w", lang, err)
	}
	abbreviations, err := readWordList(path.Join("resources", string(lang), "abbreviations.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s abbreviations: %w", lang, err)
	}

	return &Resources{
		language:      lang,
		tag:           spec.tag,
		stopwords:     stopwords,
		abbreviations: abbreviations,
		stemmer:       spec.stemmer,
	}, nil
}

// Language returns the language the bundle was loaded for.
func (r *Resources) Language() Language {
	return r.language
}

// IsStopword reports whether word, case-insensitively, is a stopword.
func (r *Resources) IsStopword(word string) bool {
	_, ok := r.stopwords[r.Lower(word)]
	return ok
}

// Stem lowercases word and reduces it to its stem. Stopwords are returned
// lowercased but otherwise untouched.
func (r *Resources) Stem(word string) string {
	w := r.Lower(word)
	if _, ok := r.stopwords[w]; ok {
		return w
	}
	return r.stemmer(w)
}

func stemItalian(word string) string {
	env := snowballstem.NewEnv(word)
	italian.Stem(env)
	return env.Current()
}

func readWordList(name string) (map[string]struct{}, error) {
	data, err := resourceFS.ReadFile(name)
	if err != nil {
		return nil, err
	}

	words := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}
