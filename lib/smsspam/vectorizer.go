package smsspam

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// default vectorizer parameters
const (
	DefaultMaxFeatures = 5000
	DefaultMinTokenLen = 2
)

// SparseVector is a feature vector with only non-zero weights stored, indices sorted ascending
type SparseVector struct {
	Indices []int
	Values  []float64
	Dim     int
}

// Len returns vector dimensionality, always equal to vocabulary size of the vectorizer made it
func (v SparseVector) Len() int { return v.Dim }

// Dense returns the vector as a dense slice
func (v SparseVector) Dense() []float64 {
	res := make([]float64, v.Dim)
	for i, idx := range v.Indices {
		res[idx] = v.Values[i]
	}
	return res
}

// VectorizerConfig defines TF-IDF vectorizer parameters
type VectorizerConfig struct {
	MaxFeatures int // max vocabulary size, terms selected by total count in the corpus
	MinTokenLen int // shorter tokens ignored
}

// Vectorizer converts normalized documents to L2-normalized TF-IDF vectors.
// Vocabulary and idf weights are learned by Fit and never change after it,
// so a fitted vectorizer is safe for concurrent Transform calls.
type Vectorizer struct {
	VectorizerConfig
	vocabulary map[string]int // term -> index
	idf        []float64      // index -> idf weight
}

// NewVectorizer makes unfitted vectorizer, zero config fields replaced by defaults
func NewVectorizer(cfg VectorizerConfig) *Vectorizer {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = DefaultMaxFeatures
	}
	if cfg.MinTokenLen <= 0 {
		cfg.MinTokenLen = DefaultMinTokenLen
	}
	return &Vectorizer{VectorizerConfig: cfg}
}

// Fit learns vocabulary and idf weights from the corpus of normalized documents
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.New("can't fit vectorizer on empty corpus")
	}

	termCount := map[string]int{}
	docFreq := map[string]int{}
	for _, doc := range docs {
		seen := map[string]bool{}
		for _, token := range v.tokens(doc) {
			termCount[token]++
			if !seen[token] {
				docFreq[token]++
				seen[token] = true
			}
		}
	}
	if len(termCount) == 0 {
		return errors.New("empty vocabulary, documents contain only stop words or nothing")
	}

	terms := lo.Keys(termCount)
	sort.Slice(terms, func(i, j int) bool {
		if termCount[terms[i]] != termCount[terms[j]] {
			return termCount[terms[i]] > termCount[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms) // indices follow alphabetical order of terms

	n := float64(len(docs))
	vocabulary := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocabulary[term] = i
		idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	v.vocabulary, v.idf = vocabulary, idf
	return nil
}

// FitTransform fits the vectorizer and returns vectors of the same documents
func (v *Vectorizer) FitTransform(docs []string) ([]SparseVector, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs)
}

// Transform converts documents to vectors with the fitted vocabulary
func (v *Vectorizer) Transform(docs []string) ([]SparseVector, error) {
	if !v.Fitted() {
		return nil, ErrNotFitted
	}
	res := make([]SparseVector, len(docs))
	for i, doc := range docs {
		res[i] = v.transform(doc)
	}
	return res, nil
}

// TransformOne converts a single document to vector
func (v *Vectorizer) TransformOne(doc string) (SparseVector, error) {
	if !v.Fitted() {
		return SparseVector{}, ErrNotFitted
	}
	return v.transform(doc), nil
}

// Fitted checks if vocabulary learned
func (v *Vectorizer) Fitted() bool { return v.vocabulary != nil }

// Dim returns vocabulary size, 0 for unfitted vectorizer
func (v *Vectorizer) Dim() int { return len(v.idf) }

// Vocabulary returns a copy of term to index mapping
func (v *Vectorizer) Vocabulary() map[string]int {
	res := make(map[string]int, len(v.vocabulary))
	for k, idx := range v.vocabulary {
		res[k] = idx
	}
	return res
}

func (v *Vectorizer) transform(doc string) SparseVector {
	counts := map[int]int{}
	for _, token := range v.tokens(doc) {
		if idx, ok := v.vocabulary[token]; ok {
			counts[idx]++
		}
	}

	res := SparseVector{Dim: len(v.idf), Indices: lo.Keys(counts)}
	sort.Ints(res.Indices)
	res.Values = make([]float64, len(res.Indices))
	norm := 0.0
	for i, idx := range res.Indices {
		w := float64(counts[idx]) * v.idf[idx]
		res.Values[i] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range res.Values {
			res.Values[i] /= norm
		}
	}
	return res
}

func (v *Vectorizer) tokens(doc string) []string {
	return lo.Filter(strings.Fields(doc), func(t string, _ int) bool { return len(t) >= v.MinTokenLen })
}
