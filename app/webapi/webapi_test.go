package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/sms-spam/app/dataset"
	"github.com/umputun/sms-spam/app/service"
	"github.com/umputun/sms-spam/app/storage"
	"github.com/umputun/sms-spam/app/storage/engine"
	"github.com/umputun/sms-spam/app/webapi/mocks"
	"github.com/umputun/sms-spam/lib/smsspam"
)

// newTestPredictor trains a model on the test dataset and returns predictor loading it
func newTestPredictor(t *testing.T) *service.Predictor {
	t.Helper()
	samples, err := dataset.LoadFile("../../lib/smsspam/testdata/sms.csv")
	require.NoError(t, err)
	p := smsspam.NewPipeline(nil, smsspam.PipelineConfig{})
	require.NoError(t, p.Fit(p.Normalizer().NormalizeAll(dataset.Texts(samples)), dataset.Labels(samples)))
	file := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, p.SaveFile(file))
	res := service.NewPredictor(service.Params{ModelFile: file})
	require.NoError(t, res.Load())
	return res
}

func newTestHistory(t *testing.T) *storage.Predictions {
	t.Helper()
	db, err := engine.NewSqlite(":memory:", "test")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	res, err := storage.NewPredictions(context.Background(), db)
	require.NoError(t, err)
	return res
}

func postJSON(t *testing.T, u string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(u, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestServer_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(Config{ListenAddr: "127.0.0.1:9876", Version: "dev", Predictor: &mocks.PredictorMock{}})
	done := make(chan struct{})
	go func() {
		err := srv.Run(ctx)
		assert.NoError(t, err)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:9876/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
	assert.Contains(t, resp.Header.Get("App-Name"), "sms-spam")
	assert.Contains(t, resp.Header.Get("App-Version"), "dev")

	cancel()
	<-done
}

func TestServer_Predict(t *testing.T) {
	srv := NewServer(Config{Version: "dev", Predictor: newTestPredictor(t)})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	tests := []struct {
		name  string
		text  string
		label smsspam.Label
		title string
	}{
		{"normal", "Besok kita makan siang di kantor ya", smsspam.LabelNormal, "NORMAL / AMAN"},
		{"fraud", "SELAMAT! Anda memenangkan undian mobil mewah. Segera kirim data diri anda", smsspam.LabelFraud, "PENIPUAN"},
		{"promotional", "Promo besar-besaran! Diskon hingga 70% hanya hari ini di toko kami", smsspam.LabelPromotional,
			"PROMOSI / IKLAN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": tt.text})
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var res predictResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
			assert.Equal(t, tt.label, res.Label)
			assert.Equal(t, tt.title, res.Title)
			assert.Len(t, res.Probabilities, 3)
			assert.False(t, res.OutOfVocabulary)
			sum := 0.0
			for _, p := range res.Probabilities {
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}

	t.Run("empty input", func(t *testing.T) {
		for _, text := range []string{"", "   \n\t"} {
			resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": text})
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(body), "no input provided")
		}
	})

	t.Run("bad json", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/predict", "application/json", strings.NewReader("{bad"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("out of vocabulary", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": "qwerty zxcvb 12345"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res predictResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.True(t, res.OutOfVocabulary)
	})

	t.Run("htmx form", func(t *testing.T) {
		form := url.Values{"text": {"Promo besar-besaran! Diskon hingga 70% hanya hari ini di toko kami"}}
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/predict", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `data-label="promotional"`)
		assert.Contains(t, string(body), "PROMOSI / IKLAN")
	})

	t.Run("htmx empty form", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/predict", strings.NewReader("text="))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "prediction-error")
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/predict")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "catch-all root handler takes unmatched methods")
	})
}

func TestServer_PredictFailure(t *testing.T) {
	mockPredictor := &mocks.PredictorMock{
		PredictFunc: func(text string) (service.Result, error) {
			return service.Result{}, errors.New("model is broken")
		},
	}
	mockHistory := &mocks.HistoryMock{}
	srv := NewServer(Config{Predictor: mockPredictor, History: mockHistory})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": "halo"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "model is broken")
	require.Len(t, mockPredictor.PredictCalls(), 1)
	assert.Equal(t, "halo", mockPredictor.PredictCalls()[0].Text)
	assert.Empty(t, mockHistory.AddCalls(), "failed prediction is not recorded")
}

func TestServer_StorageFailures(t *testing.T) {
	mockPredictor := &mocks.PredictorMock{
		PredictFunc: func(text string) (service.Result, error) {
			return service.Result{Label: smsspam.LabelNormal, Normalized: "halo",
				Probabilities: map[smsspam.Label]float64{smsspam.LabelNormal: 1}}, nil
		},
		InfoFunc: func() service.ModelInfo { return service.ModelInfo{Loaded: true} },
	}
	dbErr := errors.New("db is gone")
	mockHistory := &mocks.HistoryMock{
		AddFunc:   func(ctx context.Context, info storage.PredictionInfo) error { return dbErr },
		ReadFunc:  func(ctx context.Context, limit int) ([]storage.PredictionInfo, error) { return nil, dbErr },
		StatsFunc: func(ctx context.Context) ([]storage.LabelCount, error) { return nil, dbErr },
	}
	mockFeedback := &mocks.FeedbackMock{
		AppendFunc: func(s smsspam.Sample) (bool, error) { return false, errors.New("disk is full") },
	}
	srv := NewServer(Config{Predictor: mockPredictor, History: mockHistory, Feedback: mockFeedback})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	t.Run("prediction served when history add fails", func(t *testing.T) {
		mockHistory.ResetCalls()
		resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": "Halo apa kabar"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, mockHistory.AddCalls(), 1)
		assert.Equal(t, "Halo apa kabar", mockHistory.AddCalls()[0].Info.Text)
		assert.Equal(t, smsspam.LabelNormal, mockHistory.AddCalls()[0].Info.Label)
		assert.Equal(t, "halo", mockHistory.AddCalls()[0].Info.Normalized)
	})

	t.Run("history read fails", func(t *testing.T) {
		mockHistory.ResetCalls()
		resp, err := http.Get(ts.URL + "/history?limit=5000")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Len(t, mockHistory.ReadCalls(), 1)
		assert.Equal(t, maxHistoryLimit, mockHistory.ReadCalls()[0].Limit)
	})

	t.Run("stats fails", func(t *testing.T) {
		mockHistory.ResetCalls()
		resp, err := http.Get(ts.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Len(t, mockHistory.StatsCalls(), 1)
	})

	t.Run("feedback append fails", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/feedback", map[string]string{"text": "Halo", "label": "penipuan"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Len(t, mockFeedback.AppendCalls(), 1)
		assert.Equal(t, smsspam.Sample{Text: "Halo", Label: smsspam.LabelFraud}, mockFeedback.AppendCalls()[0].S)
	})
}

func TestServer_HistoryAndStats(t *testing.T) {
	predLog := &bytes.Buffer{}
	srv := NewServer(Config{Predictor: newTestPredictor(t), History: newTestHistory(t), PredictionLog: predLog})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	for _, text := range []string{"Besok kita makan siang di kantor ya", "Diskon hingga 70% hanya hari ini",
		"Promo spesial akhir pekan, belanja hemat"} {
		resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": text})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	t.Run("history", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/history?limit=2")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res []struct {
			ID    string        `json:"id"`
			Text  string        `json:"text"`
			Label smsspam.Label `json:"label"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		require.Len(t, res, 2)
		assert.Equal(t, "Promo spesial akhir pekan, belanja hemat", res[0].Text)
		assert.Equal(t, smsspam.LabelPromotional, res[0].Label)
		assert.NotEmpty(t, res[0].ID)
	})

	t.Run("history invalid limit", func(t *testing.T) {
		for _, limit := range []string{"abc", "0", "-5"} {
			resp, err := http.Get(ts.URL + "/history?limit=" + limit)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, limit)
		}
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res struct {
			Model       service.ModelInfo    `json:"model"`
			Predictions []storage.LabelCount `json:"predictions"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.True(t, res.Model.Loaded)
		assert.Equal(t, smsspam.Labels(), res.Model.Classes)
		assert.Equal(t, []storage.LabelCount{{Label: smsspam.LabelNormal, Count: 1}, {Label: smsspam.LabelPromotional, Count: 2}},
			res.Predictions)
	})

	t.Run("prediction log", func(t *testing.T) {
		lines := strings.Split(strings.TrimSpace(predLog.String()), "\n")
		require.Len(t, lines, 3)
		var rec struct {
			Text  string        `json:"text"`
			Label smsspam.Label `json:"label"`
		}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
		assert.Equal(t, "Besok kita makan siang di kantor ya", rec.Text)
		assert.Equal(t, smsspam.LabelNormal, rec.Label)
	})
}

func TestServer_NoHistory(t *testing.T) {
	srv := NewServer(Config{Predictor: newTestPredictor(t)})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"model"`)
	assert.NotContains(t, string(body), `"predictions"`)
}

func TestServer_Feedback(t *testing.T) {
	file := filepath.Join(t.TempDir(), "feedback.csv")
	srv := NewServer(Config{Predictor: newTestPredictor(t), Feedback: dataset.NewAppender(file)})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	tests := []struct {
		name   string
		body   map[string]string
		status int
		added  bool
	}{
		{name: "added", body: map[string]string{"text": "Cashback pulsa 20rb", "label": "promosi"}, status: http.StatusOK, added: true},
		{name: "duplicate", body: map[string]string{"text": "cashback PULSA 20rb", "label": "promotional"}, status: http.StatusOK},
		{name: "bad label", body: map[string]string{"text": "halo", "label": "spam"}, status: http.StatusBadRequest},
		{name: "empty text", body: map[string]string{"text": " ", "label": "normal"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/feedback", tt.body)
			defer resp.Body.Close()
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				return
			}
			var res struct {
				Added bool `json:"added"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
			assert.Equal(t, tt.added, res.Added)
		})
	}

	samples, err := dataset.LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, []smsspam.Sample{{Text: "Cashback pulsa 20rb", Label: smsspam.LabelPromotional}}, samples)
}

func TestServer_Auth(t *testing.T) {
	srv := NewServer(Config{Predictor: newTestPredictor(t), AuthPasswd: "secret"})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	t.Run("ping without auth", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/ping")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("predict unauthorized", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": "halo"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("index prompts for auth", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")
	})

	t.Run("predict authorized", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/predict", strings.NewReader(`{"text":"Diskon 70% hari ini"}`))
		require.NoError(t, err)
		req.SetBasicAuth("sms-spam", "secret")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServer_Index(t *testing.T) {
	srv := NewServer(Config{Version: "v1.2.3", Predictor: newTestPredictor(t), Feedback: dataset.NewAppender(filepath.Join(t.TempDir(), "f.csv"))})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `id="predict-form"`)
	assert.Contains(t, string(body), `id="feedback-form"`)
	assert.Contains(t, string(body), "sms-spam v1.2.3")
	assert.Contains(t, string(body), "PENIPUAN")

	resp, err = http.Get(ts.URL + "/not-found")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	srv := NewServer(Config{Predictor: newTestPredictor(t)})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/predict", map[string]string{"text": "Diskon 70% hari ini"})
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/predict", map[string]string{"text": ""})
	resp.Body.Close()
	resp, err := http.Get(ts.URL + "/not-found")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sms_spam_predictions_total{label="promotional"} 1`)
	assert.Contains(t, string(body), `sms_spam_predictions_total{label="fraud"} 0`)
	assert.Contains(t, string(body), "sms_spam_rejected_inputs_total 1")
	assert.Contains(t, string(body), "sms_spam_prediction_duration_seconds_count 1")
	assert.Contains(t, string(body), `sms_spam_http_requests_total{method="POST",route="POST /predict"} 2`)
	assert.Contains(t, string(body), `sms_spam_http_requests_total{method="GET",route="/"} 1`)
	assert.Contains(t, string(body), `sms_spam_http_requests_total{method="GET",route="GET /metrics"} 1`)
	assert.NotContains(t, string(body), `route="unmatched"`)
}

func TestGenerateRandomPassword(t *testing.T) {
	res, err := GenerateRandomPassword(32)
	require.NoError(t, err)
	assert.Len(t, res, 32)

	res2, err := GenerateRandomPassword(32)
	require.NoError(t, err)
	assert.NotEqual(t, res, res2)
}
