package webapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umputun/sms-spam/lib/smsspam"
)

// metrics holds prometheus collectors of the server, registered in the server's own registry
type metrics struct {
	registry           *prometheus.Registry
	requestsTotal      *prometheus.CounterVec
	predictionsTotal   *prometheus.CounterVec
	rejectedTotal      prometheus.Counter
	outOfVocabTotal    prometheus.Counter
	predictionDuration prometheus.Histogram
	feedbackTotal      *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sms_spam_http_requests_total",
				Help: "Total number of HTTP requests by method and route.",
			},
			[]string{"method", "route"},
		),
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sms_spam_predictions_total",
				Help: "Total number of predictions by label.",
			},
			[]string{"label"},
		),
		rejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sms_spam_rejected_inputs_total",
				Help: "Total number of rejected empty inputs.",
			},
		),
		outOfVocabTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sms_spam_out_of_vocabulary_total",
				Help: "Total number of predictions without any known term.",
			},
		),
		predictionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sms_spam_prediction_duration_seconds",
				Help:    "Prediction latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		feedbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sms_spam_feedback_total",
				Help: "Total number of feedback samples by label.",
			},
			[]string{"label"},
		),
	}
	m.registry.MustRegister(m.requestsTotal, m.predictionsTotal, m.rejectedTotal, m.outOfVocabTotal,
		m.predictionDuration, m.feedbackTotal)
	for _, l := range smsspam.Labels() {
		m.predictionsTotal.WithLabelValues(string(l))
	}
	return m
}

// observe records a successful prediction
func (m *metrics) observe(res smsspam.Prediction, elapsed time.Duration) {
	m.predictionsTotal.WithLabelValues(string(res.Label)).Inc()
	m.predictionDuration.Observe(elapsed.Seconds())
	if res.OutOfVocabulary {
		m.outOfVocabTotal.Inc()
	}
}

// middleware counts requests by method and matched route pattern.
// routegroup wraps each registered handler, so the mux has already set r.Pattern here.
func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(r.Method, route).Inc()
		next.ServeHTTP(w, r)
	})
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
