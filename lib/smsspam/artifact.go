package smsspam

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pkgz/fileutils"
)

// ArtifactVersion is the version of serialized pipeline format
const ArtifactVersion = 1

type artifact struct {
	Version    int                `json:"version"`
	CreatedAt  time.Time          `json:"created_at"`
	Vectorizer vectorizerArtifact `json:"vectorizer"`
	Classifier classifierArtifact `json:"classifier"`
}

type vectorizerArtifact struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	MaxFeatures int            `json:"max_features"`
	MinTokenLen int            `json:"min_token_len"`
}

type classifierArtifact struct {
	Classes        []Label     `json:"classes"`
	ClassCount     []float64   `json:"class_count"`
	LogPrior       []float64   `json:"log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
	Alpha          float64     `json:"alpha"`
}

// Save writes fitted pipeline as json artifact
func (p *Pipeline) Save(w io.Writer) error {
	if !p.Fitted() {
		return ErrNotFitted
	}
	a := artifact{
		Version:   ArtifactVersion,
		CreatedAt: time.Now().UTC(),
		Vectorizer: vectorizerArtifact{
			Vocabulary:  p.vectorizer.vocabulary,
			IDF:         p.vectorizer.idf,
			MaxFeatures: p.vectorizer.MaxFeatures,
			MinTokenLen: p.vectorizer.MinTokenLen,
		},
		Classifier: classifierArtifact{
			Classes:        p.classifier.classes,
			ClassCount:     p.classifier.classCount,
			LogPrior:       p.classifier.logPrior,
			FeatureLogProb: p.classifier.featureLogProb,
			Alpha:          p.classifier.Alpha,
		},
	}
	if err := json.NewEncoder(w).Encode(a); err != nil {
		return fmt.Errorf("can't encode artifact: %w", err)
	}
	return nil
}

// SaveFile writes artifact to the file. The file is replaced atomically,
// readers never see partially written artifact.
func (p *Pipeline) SaveFile(path string) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("can't make directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("can't create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = p.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("can't close temp file: %w", err)
	}
	if err = fileutils.MoveFile(tmp.Name(), path); err != nil {
		return fmt.Errorf("can't move artifact to %s: %w", path, err)
	}
	return nil
}

// LoadPipeline reads artifact and restores fitted pipeline with the given normalizer.
// Nil normalizer replaced by the default one.
func LoadPipeline(r io.Reader, normalizer *Normalizer) (*Pipeline, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("can't decode artifact: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	res := NewPipeline(normalizer, PipelineConfig{
		MaxFeatures: a.Vectorizer.MaxFeatures,
		MinTokenLen: a.Vectorizer.MinTokenLen,
		Alpha:       a.Classifier.Alpha,
	})
	res.vectorizer.vocabulary = a.Vectorizer.Vocabulary
	res.vectorizer.idf = a.Vectorizer.IDF
	res.classifier.classes = a.Classifier.Classes
	res.classifier.classCount = a.Classifier.ClassCount
	res.classifier.logPrior = a.Classifier.LogPrior
	res.classifier.featureLogProb = a.Classifier.FeatureLogProb
	return res, nil
}

// LoadFile reads artifact from the file, any failure reported as *ArtifactLoadError
func LoadFile(path string, normalizer *Normalizer) (*Pipeline, error) {
	if !fileutils.IsFile(path) {
		return nil, &ArtifactLoadError{Path: path, Err: os.ErrNotExist}
	}
	fh, err := os.Open(path) //nolint:gosec // path is a user-provided model location
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	defer fh.Close()

	res, err := LoadPipeline(fh, normalizer)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	return res, nil
}

// validate checks artifact consistency, dimensions must agree everywhere
func (a artifact) validate() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	dim := len(a.Vectorizer.IDF)
	if dim == 0 || len(a.Vectorizer.Vocabulary) != dim {
		return fmt.Errorf("vocabulary size %d doesn't match idf size %d", len(a.Vectorizer.Vocabulary), dim)
	}
	used := make([]bool, dim)
	for term, idx := range a.Vectorizer.Vocabulary {
		if idx < 0 || idx >= dim || used[idx] {
			return fmt.Errorf("invalid index %d of term %q", idx, term)
		}
		used[idx] = true
	}

	c := a.Classifier
	if len(c.Classes) == 0 {
		return errors.New("no classes in artifact")
	}
	if len(c.ClassCount) != len(c.Classes) || len(c.LogPrior) != len(c.Classes) || len(c.FeatureLogProb) != len(c.Classes) {
		return errors.New("inconsistent number of classes in artifact")
	}
	for i, l := range c.Classes {
		if err := l.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Classes[i-1] >= l {
			return errors.New("artifact classes are not in canonical order")
		}
		if len(c.FeatureLogProb[i]) != dim {
			return fmt.Errorf("class %s has %d features, expected %d", l, len(c.FeatureLogProb[i]), dim)
		}
	}
	return nil
}
