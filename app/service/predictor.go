// Package service provides inference service on top of the trained pipeline artifact.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/umputun/sms-spam/lib/smsspam"
)

// Policy defines when the model artifact is loaded
type Policy int

// enum of load policies
const (
	LoadOnce       Policy = iota // load on first use or explicit Load, keep for the process lifetime
	ReloadOnChange               // as LoadOnce, plus swap in a fresh artifact when the file is rewritten
)

func (p Policy) String() string {
	switch p {
	case LoadOnce:
		return "load-once"
	case ReloadOnChange:
		return "reload-on-change"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Result is the outcome of a single prediction
type Result = smsspam.Prediction

// Params defines predictor parameters
type Params struct {
	ModelFile  string              // path to json artifact made by training
	Normalizer *smsspam.Normalizer // must match normalizer used for training, default if nil
	Policy     Policy
	CacheSize  int           // max cached predictions, 0 disables cache
	CacheTTL   time.Duration // ttl of cached predictions
}

// ModelInfo describes currently loaded model
type ModelInfo struct {
	File       string          `json:"file"`
	Policy     string          `json:"policy"`
	Loaded     bool            `json:"loaded"`
	LoadedAt   time.Time       `json:"loaded_at"`
	Vocabulary int             `json:"vocabulary"`
	Classes    []smsspam.Label `json:"classes"`
}

// Predictor classifies texts with the model loaded from the artifact file.
// The loaded pipeline is never mutated, reload swaps it as a whole. Safe for concurrent use.
type Predictor struct {
	params   Params
	loadMu   sync.Mutex // serializes loads
	mu       sync.RWMutex
	pipeline *smsspam.Pipeline
	loadedAt time.Time
	gen      int                         // incremented on every load, part of the cache key
	cache    cache.Cache[string, Result] // results by model generation and normalized text, nil if disabled
}

// NewPredictor makes predictor, the artifact is not loaded until the first use or Load call
func NewPredictor(params Params) *Predictor {
	if params.Normalizer == nil {
		params.Normalizer = smsspam.NewDefaultNormalizer()
	}
	res := &Predictor{params: params}
	if params.CacheSize > 0 {
		res.cache = cache.NewCache[string, Result]().WithMaxKeys(params.CacheSize).WithTTL(params.CacheTTL)
	}
	return res
}

// Policy returns the load policy
func (p *Predictor) Policy() Policy { return p.params.Policy }

// Load loads the artifact if not loaded yet. Missing or corrupt artifact reported as *smsspam.ArtifactLoadError.
func (p *Predictor) Load() error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if pipeline, _ := p.current(); pipeline != nil {
		return nil
	}
	return p.load()
}

// Reload loads the artifact again and swaps it in. On failure the previous model stays active.
func (p *Predictor) Reload() error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	return p.load()
}

// Predict classifies raw text. Blank text rejected with smsspam.ErrEmptyInput before the model is touched.
func (p *Predictor) Predict(text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, smsspam.ErrEmptyInput
	}

	pipeline, gen := p.current()
	if pipeline == nil {
		if err := p.Load(); err != nil {
			return Result{}, err
		}
		pipeline, gen = p.current()
	}

	doc := p.params.Normalizer.Normalize(text)
	key := strconv.Itoa(gen) + ":" + doc
	if p.cache != nil {
		if res, ok := p.cache.Get(key); ok {
			res.Probabilities = maps.Clone(res.Probabilities)
			return res, nil
		}
	}

	res, err := pipeline.PredictNormalized(doc)
	if err != nil {
		return Result{}, fmt.Errorf("can't predict: %w", err)
	}
	if res.OutOfVocabulary {
		log.Printf("[DEBUG] no known terms in %q, label by class priors only", text)
	}
	if p.cache != nil {
		cached := res
		cached.Probabilities = maps.Clone(res.Probabilities)
		p.cache.Set(key, cached, p.params.CacheTTL)
	}
	return res, nil
}

// Info returns description of the loaded model
func (p *Predictor) Info() ModelInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	res := ModelInfo{File: p.params.ModelFile, Policy: p.params.Policy.String(), Loaded: p.pipeline != nil, LoadedAt: p.loadedAt}
	if p.pipeline != nil {
		res.Vocabulary = p.pipeline.Dim()
		res.Classes = p.pipeline.Classifier().Classes()
	}
	return res
}

// Watch reloads the artifact on every change of the model file until context canceled.
// Works for ReloadOnChange policy only.
func (p *Predictor) Watch(ctx context.Context) error {
	if p.params.Policy != ReloadOnChange {
		return fmt.Errorf("can't watch model with %s policy", p.params.Policy)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// artifact replaced by rename, so the directory is watched, not the file itself
	target := filepath.Clean(p.params.ModelFile)
	if err = watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to add %s to watcher: %w", filepath.Dir(target), err)
	}
	log.Printf("[INFO] watching model file %s", target)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] stopping watcher for %s, %v", target, ctx.Err())
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if e := p.Reload(); e != nil {
				log.Printf("[WARN] failed to reload updated model %s: %v", target, e)
			}
		case e, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Printf("[WARN] watcher error: %v", e)
		}
	}
}

func (p *Predictor) load() error {
	pipeline, err := smsspam.LoadFile(p.params.ModelFile, p.params.Normalizer)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.pipeline = pipeline
	p.loadedAt = time.Now()
	p.gen++
	p.mu.Unlock()
	if p.cache != nil {
		p.cache.Purge()
	}
	log.Printf("[INFO] model loaded from %s, %d terms, classes %v", p.params.ModelFile, pipeline.Dim(), pipeline.Classifier().Classes())
	return nil
}

func (p *Predictor) current() (*smsspam.Pipeline, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pipeline, p.gen
}
