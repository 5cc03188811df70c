package smsspam

import (
	"fmt"
	"strings"
)

// PipelineConfig defines parameters of vectorizer and classifier
type PipelineConfig struct {
	MaxFeatures int
	MinTokenLen int
	Alpha       float64
}

// Prediction is a result of classification of a single text
type Prediction struct {
	Label           Label             `json:"label"`
	Probabilities   map[Label]float64 `json:"probabilities"`
	Normalized      string            `json:"normalized"`
	OutOfVocabulary bool              `json:"out_of_vocabulary"` // no known terms, label follows class priors only
}

// Pipeline chains normalizer, tf-idf vectorizer and naive bayes classifier.
// Fitted or loaded pipeline is immutable and can be shared between goroutines.
type Pipeline struct {
	normalizer *Normalizer
	vectorizer *Vectorizer
	classifier *Classifier
}

// NewPipeline makes unfitted pipeline. Nil normalizer replaced by the default one.
func NewPipeline(normalizer *Normalizer, cfg PipelineConfig) *Pipeline {
	if normalizer == nil {
		normalizer = NewDefaultNormalizer()
	}
	return &Pipeline{
		normalizer: normalizer,
		vectorizer: NewVectorizer(VectorizerConfig{MaxFeatures: cfg.MaxFeatures, MinTokenLen: cfg.MinTokenLen}),
		classifier: NewClassifier(cfg.Alpha),
	}
}

// Fit learns vocabulary and class statistics from already normalized documents
func (p *Pipeline) Fit(docs []string, labels []Label) error {
	if len(docs) != len(labels) {
		return fmt.Errorf("can't fit pipeline, %d documents and %d labels", len(docs), len(labels))
	}
	x, err := p.vectorizer.FitTransform(docs)
	if err != nil {
		return fmt.Errorf("can't fit vectorizer: %w", err)
	}
	if err := p.classifier.Fit(x, labels); err != nil {
		return fmt.Errorf("can't fit classifier: %w", err)
	}
	return nil
}

// Predict normalizes and classifies raw text. Blank text rejected with ErrEmptyInput.
func (p *Pipeline) Predict(text string) (Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return Prediction{}, ErrEmptyInput
	}
	return p.PredictNormalized(p.normalizer.Normalize(text))
}

// PredictNormalized classifies a document produced by the pipeline's normalizer
func (p *Pipeline) PredictNormalized(doc string) (Prediction, error) {
	x, err := p.vectorizer.TransformOne(doc)
	if err != nil {
		return Prediction{}, err
	}
	label, probs, err := p.classifier.Classify(x)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Label: label, Probabilities: probs, Normalized: doc, OutOfVocabulary: len(x.Indices) == 0}, nil
}

// PredictBatch classifies normalized documents, used for evaluation
func (p *Pipeline) PredictBatch(docs []string) ([]Label, error) {
	x, err := p.vectorizer.Transform(docs)
	if err != nil {
		return nil, err
	}
	res := make([]Label, len(x))
	for i, v := range x {
		if res[i], err = p.classifier.Predict(v); err != nil {
			return nil, fmt.Errorf("can't predict document %d: %w", i, err)
		}
	}
	return res, nil
}

// Normalizer returns normalizer used by the pipeline
func (p *Pipeline) Normalizer() *Normalizer { return p.normalizer }

// Vectorizer returns pipeline's vectorizer
func (p *Pipeline) Vectorizer() *Vectorizer { return p.vectorizer }

// Classifier returns pipeline's classifier
func (p *Pipeline) Classifier() *Classifier { return p.classifier }

// Dim returns feature space dimensionality
func (p *Pipeline) Dim() int { return p.vectorizer.Dim() }

// Fitted checks if pipeline is ready for prediction
func (p *Pipeline) Fitted() bool { return p.vectorizer.Fitted() && p.classifier.Fitted() }
