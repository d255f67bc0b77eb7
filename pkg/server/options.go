package server

import (
	"log/slog"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/sqmean/pkg/dump"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	store    dump.Store
	registry *prometheus.Registry
	listener net.Listener
	tracer   trace.Tracer
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore sets the dump store. Default: a FileStore in Config.DumpDir.
func WithStore(s dump.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRegistry sets the Prometheus registry the collectors register with.
// Default: a private registry with Go and process collectors.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithListener makes Start use ln instead of binding a port.
func WithListener(ln net.Listener) Option {
	return func(o *options) { o.listener = ln }
}

// WithTracer sets the tracer for dump flush spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}
