package rpcfront

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/burrowcache/burrow"
	"github.com/burrowcache/burrow/auth"
	"github.com/burrowcache/burrow/internal/core"
	"github.com/burrowcache/burrow/interceptors"
	"github.com/burrowcache/burrow/ping"
	"github.com/burrowcache/burrow/policy"
	"github.com/burrowcache/burrow/ratelimit"
	"github.com/burrowcache/burrow/security"
	"github.com/burrowcache/burrow/tracing"
)

// Middleware priority levels, fixed like the teacher's own server — the
// order options are passed in never matters, only this table does.
const (
	orderRecovery = iota
	orderRequestID
	orderIPBlock
	orderAuth
	orderRateLimit
	orderTracing
)

// config collects the Options below, mirroring gorawrsquirrel's own
// config/Option split.
type config struct {
	builder      core.MiddlewareBuilder
	ipBlocker    *security.IPBlocker
	ipBlockErr   error
	authFunc     auth.AuthFunc
	rateLimiter  *ratelimit.Limiter
	policyResolver *policy.Resolver
	tracingCfg   *tracing.TracingConfig
	health       *health.Server
}

// Option configures a Server, same functional-options shape as the root
// burrow package's Option.
type Option func(*config)

// WithRecovery installs panic-recovery interceptors (always included by
// DefaultOptions, but exposed for callers building a bespoke chain).
func WithRecovery() Option {
	return func(c *config) {
		c.builder.Add(orderRecovery, interceptors.RecoveryUnary(), interceptors.RecoveryStream())
	}
}

// WithRequestID assigns a request ID to every incoming call.
func WithRequestID() Option {
	return func(c *config) {
		c.builder.Add(orderRequestID, interceptors.RequestIDUnary(), interceptors.RequestIDStream())
	}
}

// WithIPBlock denies requests per cfg's allow/deny CIDR list.
func WithIPBlock(cfg security.Config) Option {
	return func(c *config) {
		b, err := security.NewIPBlocker(cfg)
		if err != nil {
			c.ipBlockErr = err
			return
		}
		c.ipBlocker = b
		c.builder.Add(orderIPBlock, interceptors.IPBlockUnary(b), interceptors.IPBlockStream(b))
	}
}

// WithAuth installs an authentication interceptor calling fn on every
// request, populating contextx.Actor downstream handlers can read.
func WithAuth(fn auth.AuthFunc) Option {
	return func(c *config) {
		c.authFunc = fn
		c.builder.Add(orderAuth, interceptors.AuthUnary(fn), interceptors.AuthStream(fn))
	}
}

// WithRateLimitGlobal installs a global token-bucket limiter in front of
// every method not covered by a more specific policy group.
func WithRateLimitGlobal(rps float64, burst int, resolver *policy.Resolver) Option {
	return func(c *config) {
		c.rateLimiter = ratelimit.NewLimiter(rps, burst)
		c.policyResolver = resolver
		c.builder.Add(orderRateLimit, interceptors.RateLimitUnary(c.rateLimiter, resolver), interceptors.RateLimitStream(c.rateLimiter, resolver))
	}
}

// WithTracing installs OpenTelemetry span-per-RPC interceptors.
func WithTracing(cfg tracing.TracingConfig) Option {
	return func(c *config) {
		c.tracingCfg = &cfg
		c.builder.Add(orderTracing, tracing.UnaryServerInterceptor(&cfg), tracing.StreamServerInterceptor(&cfg))
	}
}

// WithHealth registers the standard gRPC health-checking protocol.
func WithHealth() Option {
	return func(c *config) { c.health = health.NewServer() }
}

// DefaultOptions mirrors gorawrsquirrel.DefaultOptions: the recommended
// baseline for production use.
func DefaultOptions() []Option {
	return []Option{WithRecovery(), WithRequestID(), WithHealth()}
}

// Server wraps a grpc.Server exposing a burrow.Cache[string, []byte] as
// CacheFront, plus the built-in Ping health check and Prometheus metrics
// endpoint, the same shape as the teacher's own Server.
type Server struct {
	grpcServer *grpc.Server
	front      *Front
	health     *health.Server
}

// NewServer builds a Server for cache, applying opts over DefaultOptions.
// It returns an error if any option failed to construct, such as
// WithIPBlock given a CIDR it cannot parse.
func NewServer(cache *burrow.Cache[string, []byte], opts ...Option) (*Server, error) {
	var cfg config
	for _, o := range DefaultOptions() {
		o(&cfg)
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.ipBlockErr != nil {
		return nil, fmt.Errorf("rpcfront: building IP blocker: %w", cfg.ipBlockErr)
	}

	unary, stream := cfg.builder.Build()
	serverOpts := core.BuildServerOptions(unary, stream, interceptors.ChainUnary, interceptors.ChainStream)

	gs := grpc.NewServer(serverOpts...)
	front := NewFront(cache)
	gs.RegisterService(&ServiceDesc, front)
	ping.Register(gs, ping.DefaultHandler())

	if cfg.health != nil {
		grpc_health_v1.RegisterHealthServer(gs, cfg.health)
		cfg.health.SetServingStatus("burrow.CacheFront", grpc_health_v1.HealthCheckResponse_SERVING)
	}

	return &Server{grpcServer: gs, front: front, health: cfg.health}, nil
}

// GRPC returns the underlying *grpc.Server for callers that need to
// register additional services.
func (s *Server) GRPC() *grpc.Server { return s.grpcServer }

// MetricsHandler serves Prometheus metrics for scraping.
func (s *Server) MetricsHandler() http.Handler { return promhttp.Handler() }
