// Package classifier decides, from aggregated clinical notes, whether a
// patient talks about lower-back pain and whether the notes report an
// improvement.
package classifier

// Lexicon is the fixed word list the heuristics run on. Words are given in
// their surface form; anchors and negation words are stemmed by the
// classifiers at construction time.
type Lexicon struct {
	// TopicAnchors mark a mention of the target condition.
	TopicAnchors []string
	// Improvements are matched exactly against lowercased tokens.
	Improvements []string
	// NegationLiteral is searched as a substring of the lowercased sentence.
	NegationLiteral string
	// NegationWords are matched by stem.
	NegationWords []string
}

// ItalianLowerBackPain is the lexicon used for Italian physiotherapy notes.
var ItalianLowerBackPain = Lexicon{
	TopicAnchors: []string{"lombare", "lombalgia", "schiena"},
	Improvements: []string{
		"miglioramento", "miglioramenti", "migliorata", "migliorato", "migliorare",
		"recupero", "recuperata", "recuperato",
		"risoluzione", "risolta", "risolto",
		"riduzione", "ridotto", "diminuito", "diminuire", "calato",
		"progressi", "migliore", "meglio",
		"ottimi", "ottimo", "eccellente", "benissimo",
	},
	NegationLiteral: "non",
	NegationWords:   []string{"nessuno"},
}
