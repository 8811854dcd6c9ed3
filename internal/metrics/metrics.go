package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"provider-integrity-go/internal/fsm"
	"provider-integrity-go/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Observer records engine outcomes as Prometheus metrics.
type Observer struct {
	events        *prometheus.CounterVec
	handlers      *prometheus.CounterVec
	compensations *prometheus.CounterVec
	latency       *prometheus.HistogramVec

	CloseoutsPublished prometheus.Counter
	CloseoutsDropped   prometheus.Counter
	ListenerErrors     *prometheus.CounterVec
}

func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_events_total",
			Help: "Provider callbacks handled, by outcome",
		}, []string{"provider", "event", "outcome"}),
		handlers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_handlers_invoked_total",
			Help: "Side-effect handlers run by the state machine",
		}, []string{"provider", "handler"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_action_compensations_total",
			Help: "Action records deleted after a failed attempt",
		}, []string{"provider", "event"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_event_duration_seconds",
			Help:    "Time spent handling one callback",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "event"}),
		CloseoutsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closeouts_published_total",
			Help: "Round closeouts written to Kafka",
		}),
		CloseoutsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closeouts_dropped_total",
			Help: "Round closeouts dropped because the buffer was full",
		}),
		ListenerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callback_listener_errors_total",
			Help: "Callback listener errors by stage",
		}, []string{"stage"}),
	}
	reg.MustRegister(o.events, o.handlers, o.compensations, o.latency,
		o.CloseoutsPublished, o.CloseoutsDropped, o.ListenerErrors)
	return o
}

func (o *Observer) HandlerInvoked(provider string, handler fsm.Handler) {
	o.handlers.WithLabelValues(provider, string(handler)).Inc()
}

func (o *Observer) EventHandled(provider string, event models.EventType, outcome string, elapsed time.Duration) {
	o.events.WithLabelValues(provider, string(event), outcome).Inc()
	o.latency.WithLabelValues(provider, string(event)).Observe(elapsed.Seconds())
}

func (o *Observer) Compensated(provider string, event models.EventType) {
	o.compensations.WithLabelValues(provider, string(event)).Inc()
}

type HealthFunc func(ctx context.Context) error

// NewServeMux serves /metrics from gatherer and /healthz from healthFn.
func NewServeMux(gatherer prometheus.Gatherer, healthFn HealthFunc) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// StartMetricsServer serves /metrics and /healthz in the background.
func StartMetricsServer(port string, gatherer prometheus.Gatherer, healthFn HealthFunc) *http.Server {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           NewServeMux(gatherer, healthFn),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zap.L().Info("Metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("Metrics server stopped", zap.Error(err))
		}
	}()

	return srv
}
