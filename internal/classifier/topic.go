package classifier

import (
	"github.com/jwalitptl/physio-outreach/pkg/nlp"
)

// TopicMatcher detects a mention of the target condition by stem equality.
type TopicMatcher struct {
	normalizer nlp.Normalizer
	anchors    map[string]struct{}
}

func NewTopicMatcher(normalizer nlp.Normalizer, lexicon Lexicon) *TopicMatcher {
	anchors := make(map[string]struct{}, len(lexicon.TopicAnchors))
	for _, word := range lexicon.TopicAnchors {
		anchors[normalizer.Stem(word)] = struct{}{}
	}
	return &TopicMatcher{
		normalizer: normalizer,
		anchors:    anchors,
	}
}

// Matches reports whether any token of text shares a stem with an anchor.
func (m *TopicMatcher) Matches(text string) bool {
	for _, token := range m.normalizer.Tokenize(text) {
		if _, ok := m.anchors[m.normalizer.Stem(token)]; ok {
			return true
		}
	}
	return false
}
