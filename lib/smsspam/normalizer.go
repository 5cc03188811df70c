package smsspam

import (
	"strings"
	"unicode"
)

// Normalizer converts raw sms text to normalized document: lowercase, ascii letters only,
// stop words removed, tokens stemmed. It has no state besides immutable configuration
// and is safe for concurrent use.
type Normalizer struct {
	stopWords WordSet
	stemmer   *Stemmer
}

// NewNormalizer makes a normalizer with the given stop words and stemmer
func NewNormalizer(stopWords WordSet, stemmer *Stemmer) *Normalizer {
	return &Normalizer{stopWords: stopWords, stemmer: stemmer}
}

// NewDefaultNormalizer makes a normalizer with embedded stop words and root dictionary
func NewDefaultNormalizer() *Normalizer {
	return NewNormalizer(DefaultStopWords(), NewStemmer(DefaultDictionary()))
}

// Normalize returns normalized document for the text. Empty or all-stopword input gives empty string.
func (n *Normalizer) Normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)

	tokens := strings.Fields(text)
	res := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if n.stopWords.Contains(token) {
			continue
		}
		stem := token
		if n.stemmer != nil {
			stem = n.stemmer.Stem(token)
		}
		// root may be a stop word itself, e.g. "adakah" -> "ada"
		if n.stopWords.Contains(stem) {
			continue
		}
		res = append(res, stem)
	}
	return strings.Join(res, " ")
}

// NormalizeAll normalizes a batch of texts, keeping the order
func (n *Normalizer) NormalizeAll(texts []string) []string {
	res := make([]string, len(texts))
	for i, t := range texts {
		res[i] = n.Normalize(t)
	}
	return res
}
