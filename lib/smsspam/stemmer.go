package smsspam

import "strings"

const (
	minStemLen     = 4 // shorter words are never stemmed
	maxPrefixDepth = 3 // max number of stacked derivational prefixes
)

var (
	particleSuffixes   = []string{"lah", "kah", "tah", "pun"}
	possessiveSuffixes = []string{"nya", "ku", "mu"}
)

// Stemmer reduces indonesian words to the root form.
// It strips inflectional and derivational affixes and accepts a candidate only
// if it is found in the root dictionary. Words without known root returned as is.
// Stemmer is immutable and safe for concurrent use.
type Stemmer struct {
	dict WordSet
}

// NewStemmer makes a stemmer with the given root words dictionary
func NewStemmer(dict WordSet) *Stemmer {
	return &Stemmer{dict: dict}
}

// Stem returns the root of the word, or the word itself if no root found
func (s *Stemmer) Stem(word string) string {
	if len(word) < minStemLen || s.dict.Contains(word) {
		return word
	}

	forms := suffixForms(word)
	for _, f := range forms[1:] {
		if s.dict.Contains(f) {
			return f
		}
	}

	// strip prefixes from the most stripped form, restoring suffixes back one by one on failure
	for i := len(forms) - 1; i >= 0; i-- {
		if root, ok := s.stripPrefixes(forms[i], maxPrefixDepth); ok {
			return root
		}
	}
	return word
}

// stripPrefixes removes up to depth prefixes, breadth first, until dictionary hit
func (s *Stemmer) stripPrefixes(word string, depth int) (string, bool) {
	if depth == 0 {
		return "", false
	}
	candidates := prefixCandidates(word)
	for _, c := range candidates {
		if s.dict.Contains(c) {
			return c, true
		}
	}
	for _, c := range candidates {
		if root, ok := s.stripPrefixes(c, depth-1); ok {
			return root, true
		}
	}
	return "", false
}

// suffixForms returns word with suffixes stripped step by step: particle, possessive, derivational.
// The first element is the word itself, the last one is the most stripped form.
func suffixForms(word string) []string {
	forms := []string{word}
	cur := word
	if w, ok := trimSuffix(cur, particleSuffixes...); ok {
		forms = append(forms, w)
		cur = w
	}
	if w, ok := trimSuffix(cur, possessiveSuffixes...); ok {
		forms = append(forms, w)
		cur = w
	}
	// -kan is ambiguous with -an after root ending with k, keep both
	if w, ok := trimSuffix(cur, "kan"); ok {
		forms = append(forms, cur[:len(cur)-2], w)
		return forms
	}
	if w, ok := trimSuffix(cur, "an", "i"); ok {
		forms = append(forms, w)
	}
	return forms
}

// prefixCandidates returns all words produced by removing one derivational prefix, with recoding
func prefixCandidates(word string) []string {
	res := []string{}
	seen := map[string]bool{}
	add := func(ww ...string) {
		for _, w := range ww {
			if len(w) >= 2 && !seen[w] {
				seen[w] = true
				res = append(res, w)
			}
		}
	}

	for _, p := range []string{"di", "ke", "se"} {
		if rest, ok := strings.CutPrefix(word, p); ok {
			add(rest)
		}
	}
	for _, p := range []string{"ber", "be", "ter", "te"} {
		if rest, ok := strings.CutPrefix(word, p); ok {
			add(rest)
		}
	}

	// me- and pe- share the same nasal recoding rules
	for _, base := range []string{"me", "pe"} {
		if !strings.HasPrefix(word, base) {
			continue
		}
		if rest, ok := strings.CutPrefix(word, base+"nge"); ok {
			add(rest)
		}
		if rest, ok := strings.CutPrefix(word, base+"ng"); ok {
			if startsWithVowel(rest) {
				add(rest, "k"+rest)
			} else {
				add(rest)
			}
		}
		if rest, ok := strings.CutPrefix(word, base+"ny"); ok && startsWithVowel(rest) {
			add("s"+rest, "ny"+rest)
		}
		if rest, ok := strings.CutPrefix(word, base+"m"); ok {
			if startsWithVowel(rest) {
				add("m"+rest, "p"+rest)
			} else {
				add(rest)
			}
		}
		if rest, ok := strings.CutPrefix(word, base+"n"); ok {
			if startsWithVowel(rest) {
				add("n"+rest, "t"+rest)
			} else {
				add(rest)
			}
		}
		if base == "pe" {
			if rest, ok := strings.CutPrefix(word, "per"); ok {
				add(rest)
			}
		}
		add(word[len(base):])
	}
	return res
}

// trimSuffix removes the first matching suffix, keeping at least two leading characters
func trimSuffix(word string, suffixes ...string) (string, bool) {
	for _, sfx := range suffixes {
		if strings.HasSuffix(word, sfx) && len(word)-len(sfx) >= 2 {
			return word[:len(word)-len(sfx)], true
		}
	}
	return word, false
}

func startsWithVowel(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
