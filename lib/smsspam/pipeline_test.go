package smsspam

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestSamples(t *testing.T) []Sample {
	t.Helper()
	fh, err := os.Open("testdata/sms.csv")
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	res := make([]Sample, 0, len(rows)-1)
	for _, row := range rows[1:] {
		l, err := ParseLabel(row[1])
		require.NoError(t, err)
		res = append(res, Sample{Text: row[0], Label: l})
	}
	return res
}

func texts(samples []Sample) []string {
	res := make([]string, len(samples))
	for i, s := range samples {
		res[i] = s.Text
	}
	return res
}

func labels(samples []Sample) []Label {
	res := make([]Label, len(samples))
	for i, s := range samples {
		res[i] = s.Label
	}
	return res
}

func fittedPipeline(t *testing.T) *Pipeline {
	t.Helper()
	samples := loadTestSamples(t)
	p := NewPipeline(nil, PipelineConfig{})
	require.NoError(t, p.Fit(p.Normalizer().NormalizeAll(texts(samples)), labels(samples)))
	return p
}

func TestPipeline_Predict(t *testing.T) {
	p := fittedPipeline(t)
	tests := []struct {
		name     string
		text     string
		expected Label
	}{
		{"normal", "Besok kita makan siang di kantor ya", LabelNormal},
		{"fraud", "SELAMAT! Anda memenangkan undian mobil mewah. Segera kirim data diri anda", LabelFraud},
		{"promotional", "Promo besar-besaran! Diskon hingga 70% hanya hari ini di toko kami", LabelPromotional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Predict(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Label)
			assert.False(t, res.OutOfVocabulary)
			assert.Len(t, res.Probabilities, 3)
			for _, l := range Labels() {
				assert.LessOrEqual(t, res.Probabilities[l], res.Probabilities[res.Label])
			}
		})
	}

	t.Run("empty input rejected", func(t *testing.T) {
		for _, text := range []string{"", "   ", "\n\t"} {
			_, err := p.Predict(text)
			assert.ErrorIs(t, err, ErrEmptyInput)
		}
	})

	t.Run("unknown words only", func(t *testing.T) {
		res, err := p.Predict("qwerty zxcvb 12345")
		require.NoError(t, err)
		assert.True(t, res.OutOfVocabulary)
		assert.Equal(t, "qwerty zxcvb", res.Normalized)
	})

	t.Run("stop words only is not empty input", func(t *testing.T) {
		res, err := p.Predict("yang dan di")
		require.NoError(t, err)
		assert.True(t, res.OutOfVocabulary)
		assert.Empty(t, res.Normalized)
	})
}

func TestPipeline_Deterministic(t *testing.T) {
	p1, p2 := fittedPipeline(t), fittedPipeline(t)
	assert.Equal(t, p1.Vectorizer().Vocabulary(), p2.Vectorizer().Vocabulary())

	for _, s := range loadTestSamples(t) {
		r1, err := p1.Predict(s.Text)
		require.NoError(t, err)
		r2, err := p2.Predict(s.Text)
		require.NoError(t, err)
		r3, err := p1.Predict(s.Text)
		require.NoError(t, err)
		assert.Equal(t, r1, r2)
		assert.Equal(t, r1, r3)
	}
}

func TestPipeline_Concurrent(t *testing.T) {
	p := fittedPipeline(t)
	samples := loadTestSamples(t)
	expected := make([]Label, len(samples))
	for i, s := range samples {
		res, err := p.Predict(s.Text)
		require.NoError(t, err)
		expected[i] = res.Label
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, s := range samples {
				res, err := p.Predict(s.Text)
				assert.NoError(t, err)
				assert.Equal(t, expected[i], res.Label)
			}
		}()
	}
	wg.Wait()
}

func TestPipeline_PredictBatch(t *testing.T) {
	p := fittedPipeline(t)
	samples := loadTestSamples(t)
	res, err := p.PredictBatch(p.Normalizer().NormalizeAll(texts(samples)))
	require.NoError(t, err)
	assert.Equal(t, labels(samples), res, "training set is separable")

	_, err = NewPipeline(nil, PipelineConfig{}).PredictBatch([]string{"promo"})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestPipeline_Errors(t *testing.T) {
	p := NewPipeline(nil, PipelineConfig{})
	_, err := p.Predict("promo diskon")
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.False(t, p.Fitted())

	assert.Error(t, p.Fit([]string{"promo"}, []Label{LabelPromotional, LabelNormal}))
	assert.Error(t, p.Fit([]string{"", ""}, []Label{LabelPromotional, LabelNormal}))
	assert.ErrorIs(t, p.Save(&bytes.Buffer{}), ErrNotFitted)
}

func TestPipeline_ArtifactRoundTrip(t *testing.T) {
	p := fittedPipeline(t)
	file := filepath.Join(t.TempDir(), "models", "model.json")
	require.NoError(t, p.SaveFile(file))

	loaded, err := LoadFile(file, nil)
	require.NoError(t, err)
	assert.Equal(t, p.Dim(), loaded.Dim())
	assert.Equal(t, p.vectorizer.vocabulary, loaded.vectorizer.vocabulary)
	assert.Equal(t, p.vectorizer.idf, loaded.vectorizer.idf, "floats restored exactly")
	assert.Equal(t, p.classifier.featureLogProb, loaded.classifier.featureLogProb)
	assert.Equal(t, p.classifier.logPrior, loaded.classifier.logPrior)

	for _, s := range loadTestSamples(t) {
		r1, err := p.Predict(s.Text)
		require.NoError(t, err)
		r2, err := loaded.Predict(s.Text)
		require.NoError(t, err)
		assert.Equal(t, r1, r2)
	}

	// no temp files left next to the artifact
	entries, err := os.ReadDir(filepath.Dir(file))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.json"), nil)
		var loadErr *ArtifactLoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, filepath.Join(dir, "nope.json"), loadErr.Path)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	tests := []struct {
		name, body string
	}{
		{"not json", "not a model"},
		{"wrong version", `{"version": 99}`},
		{"empty vocabulary", `{"version": 1, "vectorizer": {"vocabulary": {}, "idf": []}}`},
		{"bad index", `{"version": 1, "vectorizer": {"vocabulary": {"aa": 5}, "idf": [1.0]},
			"classifier": {"classes": ["fraud"], "class_count": [1], "log_prior": [0], "feature_log_prob": [[0]]}}`},
		{"no classes", `{"version": 1, "vectorizer": {"vocabulary": {"aa": 0}, "idf": [1.0]}, "classifier": {}}`},
		{"unknown class", `{"version": 1, "vectorizer": {"vocabulary": {"aa": 0}, "idf": [1.0]},
			"classifier": {"classes": ["spam"], "class_count": [1], "log_prior": [0], "feature_log_prob": [[0]]}}`},
		{"feature size mismatch", `{"version": 1, "vectorizer": {"vocabulary": {"aa": 0}, "idf": [1.0]},
			"classifier": {"classes": ["fraud"], "class_count": [1], "log_prior": [0], "feature_log_prob": [[0, 1]]}}`},
		{"classes order", `{"version": 1, "vectorizer": {"vocabulary": {"aa": 0}, "idf": [1.0]},
			"classifier": {"classes": ["normal", "fraud"], "class_count": [1, 1], "log_prior": [0, 0],
			"feature_log_prob": [[0], [0]]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			require.NoError(t, os.WriteFile(file, []byte(tt.body), 0o600))
			_, err := LoadFile(file, nil)
			var loadErr *ArtifactLoadError
			assert.ErrorAs(t, err, &loadErr)
		})
	}

	t.Run("valid minimal artifact", func(t *testing.T) {
		body := `{"version": 1, "vectorizer": {"vocabulary": {"aa": 0}, "idf": [1.0], "max_features": 10, "min_token_len": 2},
			"classifier": {"classes": ["fraud", "normal"], "class_count": [1, 1], "log_prior": [-0.693, -0.693],
			"feature_log_prob": [[0], [0]], "alpha": 1}}`
		p, err := LoadPipeline(strings.NewReader(body), nil)
		require.NoError(t, err)
		res, err := p.Predict("aa")
		require.NoError(t, err)
		assert.Equal(t, LabelFraud, res.Label)
	})
}
