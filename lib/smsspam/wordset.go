package smsspam

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"iter"
	"strings"
)

//go:embed data/stopwords.txt
var defaultStopWords []byte

//go:embed data/rootwords.txt
var defaultRootWords []byte

// WordSet is an immutable set of lowercase words, used for stop words and stemmer root dictionary
type WordSet struct {
	words map[string]struct{}
}

// NewWordSet makes a set from given words, words are lowercased and trimmed
func NewWordSet(words ...string) WordSet {
	res := WordSet{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			res.words[w] = struct{}{}
		}
	}
	return res
}

// ReadWordSet reads words from the reader, one word per line.
// Empty lines and lines started with # are ignored.
func ReadWordSet(r io.Reader) (WordSet, error) {
	words := []string{}
	var readErr error
	for w := range lineIterator(r, &readErr) {
		words = append(words, w)
	}
	if readErr != nil {
		return WordSet{}, fmt.Errorf("can't read words: %w", readErr)
	}
	return NewWordSet(words...), nil
}

// LoadStopWords reads user-provided stop words list
func LoadStopWords(r io.Reader) (WordSet, error) { return ReadWordSet(r) }

// LoadDictionary reads user-provided root words dictionary for the stemmer
func LoadDictionary(r io.Reader) (WordSet, error) { return ReadWordSet(r) }

// DefaultStopWords returns embedded indonesian stop words
func DefaultStopWords() WordSet {
	res, err := ReadWordSet(bytes.NewReader(defaultStopWords))
	if err != nil {
		panic(err) // embedded data can't be broken
	}
	return res
}

// DefaultDictionary returns embedded indonesian root words dictionary
func DefaultDictionary() WordSet {
	res, err := ReadWordSet(bytes.NewReader(defaultRootWords))
	if err != nil {
		panic(err)
	}
	return res
}

// Contains checks if the word is in the set
func (s WordSet) Contains(word string) bool {
	_, ok := s.words[word]
	return ok
}

// Len returns number of words in the set
func (s WordSet) Len() int { return len(s.words) }

// lineIterator returns an iterator over non-empty, non-comment lines of the reader.
// scanner error, if any, reported via errp after iteration completed.
func lineIterator(r io.Reader, errp *error) iter.Seq[string] {
	return func(yield func(string) bool) {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !yield(line) {
				return
			}
		}
		if err := scanner.Err(); err != nil && errp != nil {
			*errp = err
		}
	}
}
