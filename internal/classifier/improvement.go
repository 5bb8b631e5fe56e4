package classifier

import (
	"strings"

	"github.com/jwalitptl/physio-outreach/pkg/nlp"
)

// ImprovementDetector finds sentences reporting an improvement and drops
// the ones carrying a negation. Negation is only looked for inside the
// sentence itself; double negation is not handled.
type ImprovementDetector struct {
	normalizer      nlp.Normalizer
	keywords        map[string]struct{}
	negationLiteral string
	negationStems   map[string]struct{}
}

func NewImprovementDetector(normalizer nlp.Normalizer, lexicon Lexicon) *ImprovementDetector {
	keywords := make(map[string]struct{}, len(lexicon.Improvements))
	for _, word := range lexicon.Improvements {
		keywords[normalizer.Lower(word)] = struct{}{}
	}

	negationStems := make(map[string]struct{}, len(lexicon.NegationWords))
	for _, word := range lexicon.NegationWords {
		negationStems[normalizer.Stem(word)] = struct{}{}
	}

	return &ImprovementDetector{
		normalizer:      normalizer,
		keywords:        keywords,
		negationLiteral: normalizer.Lower(lexicon.NegationLiteral),
		negationStems:   negationStems,
	}
}

// ConfirmedImprovements returns, in text order, the sentences that contain an
// improvement keyword and no negation. An empty result means no evidence.
func (d *ImprovementDetector) ConfirmedImprovements(text string) []string {
	var confirmed []string
	for _, sentence := range d.Candidates(text) {
		if !d.negated(sentence) {
			confirmed = append(confirmed, sentence)
		}
	}
	return confirmed
}

// Candidates returns the sentences that contain an improvement keyword,
// negated or not.
func (d *ImprovementDetector) Candidates(text string) []string {
	var candidates []string
	for _, sentence := range d.normalizer.Sentences(text) {
		if d.hasKeyword(sentence) {
			candidates = append(candidates, sentence)
		}
	}
	return candidates
}

func (d *ImprovementDetector) hasKeyword(sentence string) bool {
	for _, token := range d.normalizer.Tokenize(d.normalizer.Lower(sentence)) {
		if _, ok := d.keywords[token]; ok {
			return true
		}
	}
	return false
}

func (d *ImprovementDetector) negated(sentence string) bool {
	lowered := d.normalizer.Lower(sentence)
	if d.negationLiteral != "" && strings.Contains(lowered, d.negationLiteral) {
		return true
	}
	for _, token := range d.normalizer.Tokenize(lowered) {
		if _, ok := d.negationStems[d.normalizer.Stem(token)]; ok {
			return true
		}
	}
	return false
}
