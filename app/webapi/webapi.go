// Package webapi provides a web API and a single page UI for sms classification.
package webapi

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/sms-spam/app/service"
	"github.com/umputun/sms-spam/app/storage"
	"github.com/umputun/sms-spam/lib/smsspam"
)

//go:generate moq --out mocks/predictor.go --pkg mocks --with-resets --skip-ensure . Predictor
//go:generate moq --out mocks/history.go --pkg mocks --with-resets --skip-ensure . History
//go:generate moq --out mocks/feedback.go --pkg mocks --with-resets --skip-ensure . Feedback

//go:embed assets/* assets/components/*
var templateFS embed.FS

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Server is a web API server.
type Server struct {
	Config
	metrics *metrics
	logMu   sync.Mutex
}

// Config defines server parameters
type Config struct {
	Version       string    // version to show in /ping
	ListenAddr    string    // listen address
	Predictor     Predictor // classifier, required
	History       History   // prediction history, optional
	Feedback      Feedback  // feedback samples collector, optional
	AuthPasswd    string    // basic auth password for user "sms-spam"
	RateLimit     float64   // max requests per second per client, 0 for default
	PredictionLog io.Writer // json lines log of predictions, optional
	Dbg           bool      // debug mode
}

// Predictor is a classifier interface
type Predictor interface {
	Predict(text string) (service.Result, error)
	Info() service.ModelInfo
}

// History is a prediction history storage interface
type History interface {
	Add(ctx context.Context, info storage.PredictionInfo) error
	Read(ctx context.Context, limit int) ([]storage.PredictionInfo, error)
	Stats(ctx context.Context) ([]storage.LabelCount, error)
}

// Feedback collects labeled samples for the next training
type Feedback interface {
	Append(s smsspam.Sample) (bool, error)
}

// predictResponse is the api response of POST /predict
type predictResponse struct {
	Label           smsspam.Label             `json:"label"`
	Title           string                    `json:"title"`
	Probabilities   map[smsspam.Label]float64 `json:"probabilities"`
	OutOfVocabulary bool                      `json:"out_of_vocabulary"`
	Normalized      string                    `json:"normalized"`
}

// NewServer creates a new web API server.
func NewServer(config Config) *Server {
	return &Server{Config: config, metrics: newMetrics()}
}

// Run starts server and accepts requests classifying messages.
func (s *Server) Run(ctx context.Context) error {
	if s.AuthPasswd != "" {
		log.Printf("[INFO] basic auth enabled for webapi server")
	} else {
		log.Printf("[WARN] basic auth disabled, access to webapi is not protected")
	}

	srv := &http.Server{Addr: s.ListenAddr, Handler: s.router(), ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown webapi server: %v", err)
		} else {
			log.Printf("[INFO] webapi server stopped")
		}
	}()

	log.Printf("[INFO] start webapi server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

// router makes http handler with all middlewares and routes
func (s *Server) router() http.Handler {
	rateLimit := s.RateLimit
	if rateLimit <= 0 {
		rateLimit = 50
	}
	lmt := tollbooth.NewLimiter(rateLimit, nil)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})

	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()), rest.Throttle(1000), s.metrics.middleware,
		rest.AppInfo("sms-spam", "umputun", s.Version), rest.Ping, tollbooth.HTTPMiddleware(lmt),
		rest.SizeLimit(64*1024))

	router.Handle("GET /metrics", s.metrics.handler())

	router.Group().Route(func(api *routegroup.Bundle) {
		api.Use(s.authMiddleware(rest.BasicAuthWithUserPasswd("sms-spam", s.AuthPasswd)))
		api.HandleFunc("POST /predict", s.predictHandler) // classify a message
		api.HandleFunc("GET /stats", s.statsHandler)      // model info and prediction counters
		if s.History != nil {
			api.HandleFunc("GET /history", s.historyHandler) // latest predictions
		}
		if s.Feedback != nil {
			api.HandleFunc("POST /feedback", s.feedbackHandler) // labeled sample for retraining
		}
	})

	router.Group().Route(func(webUI *routegroup.Bundle) {
		webUI.Use(s.authMiddleware(rest.BasicAuthWithPrompt("sms-spam", s.AuthPasswd)))
		webUI.HandleFunc("GET /", s.htmlIndexHandler) // serve template for web UI
	})

	return router
}

// predictHandler handles POST /predict request.
// It gets message text from request body and returns predicted label with class probabilities.
func (s *Server) predictHandler(w http.ResponseWriter, r *http.Request) {
	isHtmxRequest := r.Header.Get("HX-Request") == "true"

	var req struct {
		Text string `json:"text"`
	}
	if isHtmxRequest {
		req.Text = r.FormValue("text")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
		log.Printf("[WARN] can't decode request: %v", err)
		return
	}

	st := time.Now()
	res, err := s.Predictor.Predict(req.Text)
	if err != nil {
		if errors.Is(err, smsspam.ErrEmptyInput) {
			s.metrics.rejectedTotal.Inc()
			if isHtmxRequest {
				s.renderPrediction(w, predictionView{Error: "Teks SMS kosong, silakan isi pesan terlebih dahulu."})
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": err.Error()})
			return
		}
		log.Printf("[WARN] can't predict: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't predict", "details": err.Error()})
		return
	}
	s.metrics.observe(res, time.Since(st))
	s.record(r.Context(), req.Text, res)

	if !isHtmxRequest {
		rest.RenderJSON(w, predictResponse{Label: res.Label, Title: res.Label.Title(), Probabilities: res.Probabilities,
			OutOfVocabulary: res.OutOfVocabulary, Normalized: res.Normalized})
		return
	}
	s.renderPrediction(w, newPredictionView(res))
}

// statsHandler handles GET /stats request. It returns loaded model info and prediction counts per label.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	resp := rest.JSON{"model": s.Predictor.Info()}
	if s.History != nil {
		stats, err := s.History.Stats(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			rest.RenderJSON(w, rest.JSON{"error": "can't get prediction stats", "details": err.Error()})
			return
		}
		resp["predictions"] = stats
	}
	rest.RenderJSON(w, resp)
}

// historyHandler handles GET /history?limit=N request. It returns latest predictions, newest first.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": "invalid limit", "details": fmt.Sprintf("limit must be a positive number, got %q", v)})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.History.Read(r.Context(), limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't read history", "details": err.Error()})
		return
	}

	type historyEntry struct {
		ID        string        `json:"id"`
		Text      string        `json:"text"`
		Label     smsspam.Label `json:"label"`
		Title     string        `json:"title"`
		Timestamp time.Time     `json:"timestamp"`
	}
	resp := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyEntry{ID: e.ID, Text: e.Text, Label: e.Label, Title: e.Label.Title(), Timestamp: e.Timestamp})
	}
	rest.RenderJSON(w, resp)
}

// feedbackHandler handles POST /feedback request. It stores a labeled sample for the next training run.
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	isHtmxRequest := r.Header.Get("HX-Request") == "true"

	var req struct {
		Text  string `json:"text"`
		Label string `json:"label"`
	}
	if isHtmxRequest {
		req.Text, req.Label = r.FormValue("text"), r.FormValue("label")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
		return
	}

	label, err := smsspam.ParseLabel(req.Label)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "invalid label", "details": err.Error()})
		return
	}

	added, err := s.Feedback.Append(smsspam.Sample{Text: req.Text, Label: label})
	if err != nil {
		if errors.Is(err, smsspam.ErrEmptyInput) {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't store feedback", "details": err.Error()})
		return
	}
	if added {
		s.metrics.feedbackTotal.WithLabelValues(string(label)).Inc()
		log.Printf("[INFO] feedback sample added as %s", label)
	}

	if isHtmxRequest {
		fmt.Fprintf(w, "<div class='alert alert-info'>Terima kasih! Pesan dicatat sebagai %s.</div>", template.HTMLEscapeString(label.Title()))
		return
	}
	rest.RenderJSON(w, rest.JSON{"added": added, "label": label})
}

// htmlIndexHandler handles GET / request. It renders the classification form.
func (s *Server) htmlIndexHandler(w http.ResponseWriter, _ *http.Request) {
	tmpl, err := template.New("").ParseFS(templateFS, "assets/index.html")
	if err != nil {
		log.Printf("[WARN] can't load template: %v", err)
		http.Error(w, "Error loading template", http.StatusInternalServerError)
		return
	}

	type labelOption struct {
		Value string
		Title string
	}
	tmplData := struct {
		Version  string
		Model    service.ModelInfo
		Labels   []labelOption
		Examples []string
		Feedback bool
	}{
		Version:  s.Version,
		Model:    s.Predictor.Info(),
		Feedback: s.Feedback != nil,
		Examples: []string{
			"Besok kita makan siang di kantor ya, jangan lupa bawa laporan",
			"SELAMAT! Anda memenangkan undian mobil mewah. Segera kirim data diri anda",
			"Promo besar-besaran! Diskon hingga 70% hanya hari ini di toko kami",
		},
	}
	for _, l := range smsspam.Labels() {
		tmplData.Labels = append(tmplData.Labels, labelOption{Value: string(l), Title: l.Title()})
	}

	if err := tmpl.ExecuteTemplate(w, "index.html", tmplData); err != nil {
		log.Printf("[WARN] can't execute template: %v", err)
		http.Error(w, "Error executing template", http.StatusInternalServerError)
		return
	}
}

// predictionView is the data of the prediction result fragment
type predictionView struct {
	Error           string
	Label           smsspam.Label
	Title           string
	OutOfVocabulary bool
	Probabilities   []probabilityRow
}

type probabilityRow struct {
	Title   string
	Percent string
}

func newPredictionView(res service.Result) predictionView {
	v := predictionView{Label: res.Label, Title: res.Label.Title(), OutOfVocabulary: res.OutOfVocabulary}
	for _, l := range smsspam.Labels() {
		p, ok := res.Probabilities[l]
		if !ok {
			continue
		}
		v.Probabilities = append(v.Probabilities, probabilityRow{Title: l.Title(), Percent: fmt.Sprintf("%.1f%%", p*100)})
	}
	return v
}

func (s *Server) renderPrediction(w http.ResponseWriter, v predictionView) {
	tmpl, err := template.New("").ParseFS(templateFS, "assets/components/prediction.html")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't parse template", "details": err.Error()})
		return
	}
	if err := tmpl.ExecuteTemplate(w, "prediction.html", v); err != nil {
		log.Printf("[WARN] can't execute result template: %v", err)
		http.Error(w, "Error rendering result", http.StatusInternalServerError)
		return
	}
}

// record stores prediction in history and prediction log, failures are logged only
func (s *Server) record(ctx context.Context, text string, res service.Result) {
	entry := storage.PredictionInfo{Text: text, Label: res.Label, Normalized: res.Normalized, Timestamp: time.Now()}
	if s.History != nil {
		if err := s.History.Add(ctx, entry); err != nil {
			log.Printf("[WARN] can't store prediction: %v", err)
		}
	}
	if s.PredictionLog == nil {
		return
	}

	rec := struct {
		Text          string                    `json:"text"`
		Label         smsspam.Label             `json:"label"`
		Probabilities map[smsspam.Label]float64 `json:"probabilities"`
		OOV           bool                      `json:"oov,omitempty"`
		Timestamp     time.Time                 `json:"timestamp"`
	}{Text: text, Label: res.Label, Probabilities: res.Probabilities, OOV: res.OutOfVocabulary, Timestamp: entry.Timestamp}
	line, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[WARN] can't marshal prediction log record: %v", err)
		return
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	if _, err := s.PredictionLog.Write(append(line, '\n')); err != nil {
		log.Printf("[WARN] can't write prediction log: %v", err)
	}
}

func (s *Server) authMiddleware(mw func(next http.Handler) http.Handler) func(next http.Handler) http.Handler {
	if s.AuthPasswd == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return mw
}

// GenerateRandomPassword generates a random password of a given length
func GenerateRandomPassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	var password strings.Builder
	charsetSize := big.NewInt(int64(len(charset)))
	for range length {
		randomNumber, err := rand.Int(rand.Reader, charsetSize)
		if err != nil {
			return "", err
		}
		password.WriteByte(charset[randomNumber.Int64()])
	}
	return password.String(), nil
}
