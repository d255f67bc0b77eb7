// Package admin serves the operator HTTP endpoint: health, Prometheus
// metrics, a JSON stats view and a websocket stats stream.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/sqmean/pkg/server"
)

const (
	// DefaultStreamInterval is the push period of /stats/ws.
	DefaultStreamInterval = time.Second

	writeWait = 5 * time.Second
)

// StatsSource provides the server view served by /stats.
type StatsSource interface {
	Stats() server.Stats
}

// RouterOption configures NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	hub        *Hub
	registerer prometheus.Registerer
	tracer     trace.Tracer
}

// WithHub sets the hub serving /stats/ws.
// Default: a hub pushing every DefaultStreamInterval.
func WithHub(h *Hub) RouterOption {
	return func(o *routerOptions) { o.hub = h }
}

// WithRequestMetrics records request metrics into reg.
func WithRequestMetrics(reg prometheus.Registerer) RouterOption {
	return func(o *routerOptions) { o.registerer = reg }
}

// WithTracer wraps requests in spans from t.
func WithTracer(t trace.Tracer) RouterOption {
	return func(o *routerOptions) { o.tracer = t }
}

// NewRouter builds the admin routes.
func NewRouter(src StatsSource, gatherer prometheus.Gatherer, opts ...RouterOption) http.Handler {
	o := routerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	hub := o.hub
	if hub == nil {
		hub = NewHub(src, DefaultStreamInterval)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if o.tracer != nil {
		r.Use(Tracing(o.tracer))
	}
	if o.registerer != nil {
		r.Use(RequestMetrics(WithMetricsRegistry(o.registerer)))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.With(middleware.NoCache).Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(src.Stats())
	})
	r.Get("/stats/ws", hub.HandleWebSocket)

	return r
}
