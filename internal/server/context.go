package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

// CredentialResolver produces a credential for the configured mailbox.
type CredentialResolver interface {
	Resolve(ctx context.Context) (*google.Credential, error)
}

// CredentialRejecter is implemented by resolvers that must know when Gmail
// rejected the credential they produced.
type CredentialRejecter interface {
	Reject()
}

// ClientFactory builds a Gmail client from a resolved credential.
type ClientFactory func(ctx context.Context, cred *google.Credential) (*gmail.Client, error)

// ServerContext holds the state shared by every tool call: the settings
// snapshot, the cached Gmail client and the instrumentation sinks.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	settings config.Settings
	resolver CredentialResolver
	factory  ClientFactory
	logger   *slog.Logger
	limiter  *gmail.RateLimiter
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	readOnly bool

	// resolveMu serializes credential resolution; mu guards the cache so
	// health checks never wait on a consent flow.
	resolveMu  sync.Mutex
	mu         sync.RWMutex
	client     *gmail.Client
	credential *google.Credential
	shutdown   atomic.Bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithClientFactory replaces the Gmail client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(sc *ServerContext) { sc.factory = f }
}

// WithMetrics records tool, Gmail and credential metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger writes an audit record per tool call.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.audit = a }
}

// WithReadOnly marks the server as exposing only read-only tools.
func WithReadOnly(readOnly bool) Option {
	return func(sc *ServerContext) { sc.readOnly = readOnly }
}

// NewServerContext creates a server context. No credential is resolved
// until the first call to GmailClient.
func NewServerContext(ctx context.Context, settings config.Settings, resolver CredentialResolver, opts ...Option) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		settings: settings,
		resolver: resolver,
		logger:   slog.Default(),
		limiter: gmail.NewRateLimiter(gmail.RateLimitConfig{
			RequestsPerSecond: settings.RateLimit,
			BurstSize:         settings.RateBurst,
		}),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.factory == nil {
		sc.factory = sc.defaultFactory
	}
	return sc
}

func (sc *ServerContext) defaultFactory(ctx context.Context, cred *google.Credential) (*gmail.Client, error) {
	opts := []gmail.ClientOption{
		gmail.WithRateLimiter(sc.limiter),
		gmail.WithRequestTimeout(sc.settings.RequestTimeout),
	}
	if sc.metrics != nil {
		opts = append(opts, gmail.WithObserver(sc.metrics))
	}
	// The client outlives the tool call that created it.
	base := context.WithoutCancel(ctx)
	return gmail.NewClient(base, cred.HTTPClient(base), opts...)
}

// Settings returns the settings snapshot.
func (sc *ServerContext) Settings() config.Settings {
	return sc.settings
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// ReadOnly reports whether only read-only tools are exposed.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// GmailClient returns the cached Gmail client, resolving credentials and
// building the client on first use. Concurrent callers wait for a single
// resolution. Failures are *toolerr.Error values of kind auth.
func (sc *ServerContext) GmailClient(ctx context.Context) (*gmail.Client, error) {
	if sc.shutdown.Load() {
		return nil, toolerr.Transport("server is shutting down", nil)
	}
	if client := sc.cachedClient(); client != nil {
		return client, nil
	}

	sc.resolveMu.Lock()
	defer sc.resolveMu.Unlock()
	if client := sc.cachedClient(); client != nil {
		return client, nil
	}

	// Shutdown aborts a resolution in progress, including a consent flow.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sc.ctx, cancel)
	defer stop()

	ctx, span := instrumentation.StartSpan(ctx, "credentials.resolve")
	defer span.End()

	cred, err := sc.resolver.Resolve(ctx)
	if err != nil {
		sc.metrics.RecordCredentialResolution(ctx, "", false)
		instrumentation.SetSpanError(span, string(toolerr.KindAuth), err)
		if toolerr.KindOf(err) == toolerr.KindAuth {
			return nil, err
		}
		return nil, toolerr.Auth("credential resolution failed", err)
	}
	sc.metrics.RecordCredentialResolution(ctx, string(cred.Strategy), true)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithStrategy(string(cred.Strategy)).Build()...)

	client, err := sc.factory(ctx, cred)
	if err != nil {
		instrumentation.SetSpanError(span, string(toolerr.KindTransport), err)
		return nil, toolerr.Transport(fmt.Sprintf("failed to create Gmail client: %v", err), err)
	}
	instrumentation.SetSpanSuccess(span)

	sc.mu.Lock()
	sc.client = client
	sc.credential = cred
	sc.mu.Unlock()
	return client, nil
}

func (sc *ServerContext) cachedClient() *gmail.Client {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.client
}

// Invalidate drops client from the cache after Gmail rejected its
// credential, so the next call resolves again. A client that was already
// replaced is left alone. It reports whether the cache was cleared.
func (sc *ServerContext) Invalidate(client *gmail.Client) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if client == nil || sc.client != client {
		return false
	}
	logging.WithOperation(sc.logger, "credential.invalidate").Info("dropping rejected credential",
		logging.Strategy(string(sc.credential.Strategy)))
	if r, ok := sc.resolver.(CredentialRejecter); ok {
		r.Reject()
	}
	sc.client = nil
	sc.credential = nil
	return true
}

// Strategy returns the strategy of the cached credential, or "" when none
// is cached.
func (sc *ServerContext) Strategy() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.credential == nil {
		return ""
	}
	return string(sc.credential.Strategy)
}

// Subject returns the delegated mailbox, if one is configured.
func (sc *ServerContext) Subject() string {
	return sc.settings.DelegatedUser
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	return sc.shutdown.Load()
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	if !sc.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	sc.mu.Lock()
	sc.client = nil
	sc.credential = nil
	sc.mu.Unlock()
	sc.cancel()
	return nil
}
