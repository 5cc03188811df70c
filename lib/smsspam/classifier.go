package smsspam

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
)

// DefaultAlpha is additive (Laplace) smoothing parameter of the classifier
const DefaultAlpha = 1.0

// Classifier is a multinomial naive bayes classifier over tf-idf vectors.
// Model parameters set by Fit only, a fitted classifier is read-only and safe for concurrent use.
type Classifier struct {
	Alpha float64

	classes        []Label     // sorted in canonical order, ties in prediction resolved to the first one
	classCount     []float64   // number of training documents per class
	logPrior       []float64   // log(count/total) per class
	featureLogProb [][]float64 // [class][term] log probability of the term given the class
}

// NewClassifier returns unfitted classifier, non-positive alpha replaced by default
func NewClassifier(alpha float64) *Classifier {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	return &Classifier{Alpha: alpha}
}

// Fit learns class priors and term likelihoods from vectors and their labels.
// Previous learning results discarded, there is no incremental update.
func (c *Classifier) Fit(x []SparseVector, y []Label) error {
	if len(x) == 0 {
		return errors.New("can't fit classifier on empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("can't fit classifier, %d vectors and %d labels", len(x), len(y))
	}
	dim := x[0].Dim
	for i, v := range x {
		if v.Dim != dim {
			return fmt.Errorf("can't fit classifier, vector %d has dimension %d, expected %d", i, v.Dim, dim)
		}
		if err := y[i].Validate(); err != nil {
			return fmt.Errorf("can't fit classifier, sample %d: %w", i, err)
		}
	}

	seen := map[Label]bool{}
	classes := []Label{}
	for _, l := range y {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sortLabels(classes)
	classIdx := make(map[Label]int, len(classes))
	for i, l := range classes {
		classIdx[l] = i
	}

	classCount := make([]float64, len(classes))
	featureCount := make([][]float64, len(classes))
	for i := range featureCount {
		featureCount[i] = make([]float64, dim)
	}
	for i, v := range x {
		ci := classIdx[y[i]]
		classCount[ci]++
		for j, idx := range v.Indices {
			featureCount[ci][idx] += v.Values[j]
		}
	}

	logPrior := make([]float64, len(classes))
	featureLogProb := make([][]float64, len(classes))
	for ci := range classes {
		logPrior[ci] = math.Log(classCount[ci] / float64(len(x)))
		total := 0.0
		for _, cnt := range featureCount[ci] {
			total += cnt
		}
		denominator := math.Log(total + c.Alpha*float64(dim))
		featureLogProb[ci] = make([]float64, dim)
		for t, cnt := range featureCount[ci] {
			featureLogProb[ci][t] = math.Log(cnt+c.Alpha) - denominator
		}
	}

	c.classes, c.classCount, c.logPrior, c.featureLogProb = classes, classCount, logPrior, featureLogProb
	return nil
}

// Predict returns the class with the highest joint log likelihood.
// On exact tie the first class in canonical order wins.
func (c *Classifier) Predict(x SparseVector) (Label, error) {
	jll, err := c.jointLogLikelihood(x)
	if err != nil {
		return "", err
	}
	return c.argmax(jll), nil
}

// PredictProba returns posterior probability of every known class
func (c *Classifier) PredictProba(x SparseVector) (map[Label]float64, error) {
	jll, err := c.jointLogLikelihood(x)
	if err != nil {
		return nil, err
	}
	return c.posterior(jll), nil
}

// Classify returns the predicted class and posterior probabilities of all classes,
// joint log likelihood computed once for both
func (c *Classifier) Classify(x SparseVector) (Label, map[Label]float64, error) {
	jll, err := c.jointLogLikelihood(x)
	if err != nil {
		return "", nil, err
	}
	return c.argmax(jll), c.posterior(jll), nil
}

func (c *Classifier) argmax(jll []float64) Label {
	best := 0
	for i := 1; i < len(jll); i++ {
		if jll[i] > jll[best] {
			best = i
		}
	}
	return c.classes[best]
}

func (c *Classifier) posterior(jll []float64) map[Label]float64 {
	logProbs := make(map[Label]float64, len(jll))
	for i, v := range jll {
		logProbs[c.classes[i]] = v
	}
	return softmax(logProbs)
}

// Classes returns known classes in canonical order
func (c *Classifier) Classes() []Label {
	return append([]Label(nil), c.classes...)
}

// Fitted checks if the classifier learned anything
func (c *Classifier) Fitted() bool { return len(c.classes) > 0 }

// Dim returns dimensionality of vectors the classifier fitted on
func (c *Classifier) Dim() int {
	if !c.Fitted() {
		return 0
	}
	return len(c.featureLogProb[0])
}

func (c *Classifier) jointLogLikelihood(x SparseVector) ([]float64, error) {
	if !c.Fitted() {
		return nil, ErrNotFitted
	}
	if x.Dim != c.Dim() {
		return nil, fmt.Errorf("vector dimension %d doesn't match classifier dimension %d", x.Dim, c.Dim())
	}
	res := make([]float64, len(c.classes))
	for ci := range c.classes {
		res[ci] = c.logPrior[ci]
		for j, idx := range x.Indices {
			res[ci] += x.Values[j] * c.featureLogProb[ci][idx]
		}
	}
	return res, nil
}

// softmax converts log probabilities to normalized probabilities.
// The max value subtracted before exponent to avoid overflow and underflow.
func softmax(logProbs map[Label]float64) map[Label]float64 {
	if len(logProbs) == 0 {
		return nil
	}
	maxLog := math.Inf(-1)
	for _, lp := range logProbs {
		maxLog = math.Max(maxLog, lp)
	}

	// summed in canonical order, so the same input always gives bit-identical result
	classes := lo.Keys(logProbs)
	sortLabels(classes)
	sum := 0.0
	probs := make(map[Label]float64, len(logProbs))
	for _, class := range classes {
		probs[class] = math.Exp(logProbs[class] - maxLog)
		sum += probs[class]
	}
	for class := range probs {
		probs[class] /= sum
	}
	return probs
}
